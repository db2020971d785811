// Package agent implements the tutor's conversational turn cycle: listening,
// thinking and speaking, with barge-in and image-analysis routing.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/speech"
	"github.com/ashureev/lastminute/internal/voice"
)

const (
	// FallbackMessage replaces the reply when the chat or analysis call fails.
	FallbackMessage = "Something went wrong. Please try again."
	// NoAnnotationMessage answers an analyze request with nothing highlighted.
	NoAnnotationMessage = "There's no highlighted area yet. Draw on an image or the sketch pad first, then ask me to explain it."
)

var (
	// ErrBusy is returned when a turn is already waiting on the network.
	ErrBusy = errors.New("agent busy")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("empty message")
)

// Route identifies which path answered a turn.
type Route string

const (
	RouteChat     Route = "chat"
	RouteAnalysis Route = "analysis"
	RouteGuidance Route = "guidance"
)

// Speaker plays assistant replies. *speech.Player implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) speech.Outcome
	StopAll()
	Enabled() bool
	SetEnabled(enabled bool)
}

// AnnotationSource exposes the current annotation. *annotation.Store implements it.
type AnnotationSource interface {
	Get() (annotation.Annotation, bool)
}

// Listener receives state and transcript changes. Methods are called with
// the core's lock held, in order, and must not call back into the Core.
type Listener interface {
	OnState(State)
	OnMessage(domain.Message)
}

type nopListener struct{}

func (nopListener) OnState(State)            {}
func (nopListener) OnMessage(domain.Message) {}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithListener sets the listener notified of state and message changes.
func WithListener(l Listener) Option {
	return func(c *Core) { c.listener = l }
}

// WithRecognizer wires voice capture.
func WithRecognizer(r voice.Recognizer) Option {
	return func(c *Core) { c.voice = r }
}

// WithConversationLog records every turn for the given identity.
func WithConversationLog(log ConversationLogger, userID string) Option {
	return func(c *Core) {
		c.convLog = log
		c.userID = userID
	}
}

// WithTurnObserver registers a callback invoked once per settled turn.
func WithTurnObserver(fn func(route Route, failed bool)) Option {
	return func(c *Core) { c.observe = fn }
}

// Core is the tutor state machine. One Core serves one workspace.
type Core struct {
	chat        ChatService
	analysis    AnalysisService
	speaker     Speaker
	annotations AnnotationSource
	voice       voice.Recognizer
	listener    Listener
	logger      *slog.Logger
	convLog     ConversationLogger
	observe     func(Route, bool)
	userID      string

	// busy is held from send acceptance until the reply is appended.
	busy atomic.Bool

	mu         sync.Mutex
	state      State
	messages   []domain.Message
	sessionID  string
	sessionCtx string
	turn       uint64
	guard      voice.FinishGuard
	// stopReply cancels the pending reply playback of the latest turn.
	stopReply context.CancelFunc

	wg sync.WaitGroup
}

// New creates a Core.
func New(chat ChatService, analysis AnalysisService, speaker Speaker, annotations AnnotationSource, opts ...Option) *Core {
	c := &Core{
		chat:        chat,
		analysis:    analysis,
		speaker:     speaker,
		annotations: annotations,
		listener:    nopListener{},
		logger:      slog.Default(),
		convLog:     noopConversationLogger{},
		observe:     func(Route, bool) {},
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is waiting on the network.
func (c *Core) Busy() bool {
	return c.busy.Load()
}

// Messages returns a copy of the transcript.
func (c *Core) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// SetContext sets the tutoring context sent with chat requests. Switching to
// a different session clears the transcript.
func (c *Core) SetContext(sessionID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID != c.sessionID {
		c.messages = nil
		c.sessionID = sessionID
	}
	c.sessionCtx = text
}

// SetSpeechEnabled applies the user's speech toggle.
func (c *Core) SetSpeechEnabled(enabled bool) {
	c.speaker.SetEnabled(enabled)
}

// StopAudio stops playback without starting a turn.
func (c *Core) StopAudio() {
	c.interrupt()
}

// interrupt cancels pending reply playback and stops whatever is audible.
// It is the barge-in path and works in every state.
func (c *Core) interrupt() {
	c.mu.Lock()
	if c.stopReply != nil {
		c.stopReply()
		c.stopReply = nil
	}
	c.mu.Unlock()
	c.speaker.StopAll()
}

// Send starts a typed turn. It returns once the user message is appended;
// the reply arrives through the Listener. A send while busy is dropped.
func (c *Core) Send(ctx context.Context, text string) error {
	return c.send(ctx, text, EventSubmit)
}

// Wait blocks until every accepted turn has settled.
func (c *Core) Wait() {
	c.wg.Wait()
}

// StartListening begins voice capture, interrupting any playback.
func (c *Core) StartListening() error {
	if c.voice == nil || !c.voice.IsSupported() {
		return errors.New("voice capture not supported")
	}
	if c.busy.Load() {
		return ErrBusy
	}
	c.interrupt()
	c.voice.ClearTranscript()
	c.voice.StartListening()
	return nil
}

// StopListening ends voice capture immediately. A non-empty transcript then
// triggers a send through HandleVoiceChange.
func (c *Core) StopListening() {
	if c.voice != nil {
		c.voice.StopListening()
	}
}

// HandleVoiceChange reacts to a recognizer state change. The listening
// true->false edge with a transcript sends exactly once per utterance.
func (c *Core) HandleVoiceChange(ctx context.Context) {
	if c.voice == nil {
		return
	}
	listening := c.voice.IsListening()
	transcript := c.voice.Transcript()

	c.mu.Lock()
	text, fire := c.guard.Observe(listening, transcript)
	wake := listening && (c.state == StateIdle || c.state == StateSpeaking)
	if !listening && !fire && c.state == StateListening {
		c.transition(EventSilence)
	}
	c.mu.Unlock()

	if wake {
		c.interrupt()
		c.mu.Lock()
		c.transition(EventListen)
		c.mu.Unlock()
	}

	if !fire {
		return
	}
	c.voice.ClearTranscript()
	if err := c.send(ctx, text, EventTranscript); err != nil {
		c.logger.Info("voice send dropped", "session_id", c.sessionKey(), "error", err)
		c.mu.Lock()
		if c.state == StateListening {
			c.transition(EventSilence)
		}
		c.mu.Unlock()
	}
}

func (c *Core) send(ctx context.Context, text string, ev Event) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	c.interrupt()
	if ev == EventSubmit && c.voice != nil && c.voice.IsListening() {
		c.voice.ClearTranscript()
		c.voice.StopListening()
	}

	user := domain.Message{Role: domain.RoleUser, Content: text}
	c.mu.Lock()
	c.transition(ev)
	c.turn++
	turn := c.turn
	c.messages = append(c.messages, user)
	c.listener.OnMessage(user)
	history := make([]domain.Message, len(c.messages))
	copy(history, c.messages)
	sessionCtx := c.sessionCtx
	sessionID := c.sessionID
	c.mu.Unlock()

	turnID := uuid.NewString()
	c.logTurn(sessionID, turnID, "outbound", "user_message", text, nil)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.complete(ctx, turn, turnID, text, history, sessionCtx)
	}()
	return nil
}

func (c *Core) complete(ctx context.Context, turn uint64, turnID, text string, history []domain.Message, sessionCtx string) {
	reply, route, err := c.respond(ctx, text, history, sessionCtx)

	c.mu.Lock()
	if err != nil && ctx.Err() != nil {
		// The workspace went away. Nothing user-visible to report.
		c.transition(EventFail)
		c.mu.Unlock()
		c.busy.Store(false)
		c.observe(route, true)
		return
	}

	failed := err != nil
	if failed {
		c.logger.Warn("tutor turn failed", "session_id", c.sessionID, "route", route, "error", err)
		reply = FallbackMessage
	}
	assistant := domain.Message{Role: domain.RoleAssistant, Content: reply}
	c.messages = append(c.messages, assistant)
	c.listener.OnMessage(assistant)

	speak := !failed && c.speaker.Enabled()
	replyCtx, stop := context.WithCancel(ctx)
	defer stop()
	switch {
	case failed:
		c.transition(EventFail)
	case speak:
		c.transition(EventReply)
		c.stopReply = stop
	default:
		c.transition(EventReplyQuiet)
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	c.busy.Store(false)
	c.observe(route, failed)
	c.logTurn(sessionID, turnID, "inbound", "assistant_message", reply, map[string]any{
		"route":  string(route),
		"failed": failed,
	})

	if !speak {
		return
	}
	outcome := c.speaker.Speak(replyCtx, reply)

	c.mu.Lock()
	if c.turn == turn {
		c.stopReply = nil
		if c.state == StateSpeaking {
			c.transition(EventPlaybackDone)
		}
	}
	c.mu.Unlock()
	c.logger.Debug("reply playback finished", "session_id", sessionID, "outcome", outcome)
}

// respond picks one route per message and never retries on the other.
func (c *Core) respond(ctx context.Context, text string, history []domain.Message, sessionCtx string) (string, Route, error) {
	if IsAnalyzeIntent(text) {
		a, ok := c.annotations.Get()
		if !ok {
			return NoAnnotationMessage, RouteGuidance, nil
		}
		reply, err := c.analysis.Analyze(ctx, AnalysisRequest{
			Image:          a.ImageDataURL,
			AnnotationType: string(a.Type),
			Alt:            a.AltText,
			UserMessage:    text,
		})
		return reply, RouteAnalysis, err
	}
	reply, err := c.chat.Chat(ctx, history, sessionCtx)
	return reply, RouteChat, err
}

// transition applies ev and notifies the listener. Callers hold c.mu.
func (c *Core) transition(ev Event) bool {
	next, err := Transition(c.state, ev)
	if err != nil {
		c.logger.Debug("ignored agent event", "state", c.state, "event", ev)
		return false
	}
	if next != c.state {
		c.state = next
		c.listener.OnState(next)
	}
	return true
}

func (c *Core) sessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Core) logTurn(sessionID, turnID, direction, eventType, content string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["turn_id"] = turnID
	c.convLog.Log(ConversationLogEvent{
		UserID:     c.userID,
		SessionID:  sessionID,
		Channel:    "workspace",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}
