package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/speech"
	"github.com/ashureev/lastminute/internal/voice"
)

type fakeChat struct {
	mu      sync.Mutex
	calls   int
	history []domain.Message
	context string
	reply   string
	err     error
	gate    chan struct{}
}

func (f *fakeChat) Chat(ctx context.Context, messages []domain.Message, sessionContext string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.history = messages
	f.context = sessionContext
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeChat) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalysis struct {
	mu    sync.Mutex
	calls []AnalysisRequest
	reply string
}

func (f *fakeAnalysis) Analyze(_ context.Context, req AnalysisRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.reply, nil
}

type fakeSpeaker struct {
	mu       sync.Mutex
	enabled  bool
	spoken   []string
	outcomes []speech.Outcome
	stops    int
	hold     chan struct{}
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) speech.Outcome {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	hold := f.hold
	f.mu.Unlock()

	outcome := speech.OutcomePlayed
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			outcome = speech.OutcomeInterrupted
		}
	}
	f.mu.Lock()
	f.outcomes = append(f.outcomes, outcome)
	f.mu.Unlock()
	return outcome
}

func (f *fakeSpeaker) StopAll() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeSpeaker) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSpeaker) SetEnabled(enabled bool) {
	f.mu.Lock()
	f.enabled = enabled
	f.mu.Unlock()
}

func (f *fakeSpeaker) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type recordingListener struct {
	mu       sync.Mutex
	states   []State
	messages []domain.Message
}

func (l *recordingListener) OnState(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *recordingListener) OnMessage(m domain.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

func (l *recordingListener) States() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

type fixture struct {
	core     *Core
	chat     *fakeChat
	analysis *fakeAnalysis
	speaker  *fakeSpeaker
	store    *annotation.Store
	listener *recordingListener
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		chat:     &fakeChat{reply: "Recursion is a function calling itself."},
		analysis: &fakeAnalysis{reply: "That box highlights the base case."},
		speaker:  &fakeSpeaker{enabled: true},
		store:    annotation.NewStore(),
		listener: &recordingListener{},
	}
	opts = append([]Option{WithListener(f.listener)}, opts...)
	f.core = New(f.chat, f.analysis, f.speaker, f.store, opts...)
	return f
}

func TestSendWhileBusyDropsSecondMessage(t *testing.T) {
	f := newFixture()
	f.chat.gate = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, f.core.Send(ctx, "first"))
	assert.True(t, f.core.Busy())
	assert.ErrorIs(t, f.core.Send(ctx, "second"), ErrBusy)

	close(f.chat.gate)
	f.core.Wait()

	assert.Equal(t, 1, f.chat.Calls())
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleAssistant, Content: "Recursion is a function calling itself."},
	}, f.core.Messages())
	assert.Equal(t, []State{StateThinking, StateSpeaking, StateIdle}, f.listener.States())
	assert.False(t, f.core.Busy())
}

func TestSendRejectsBlankInput(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.core.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, f.core.Messages())
}

func TestAnalyzeIntentUsesAnnotation(t *testing.T) {
	f := newFixture()
	f.store.Set(annotation.Annotation{
		ImageDataURL: "data:image/png;base64,AAAA",
		Type:         annotation.TypeHighlightedRectangle,
		AltText:      "call stack diagram",
	})

	require.NoError(t, f.core.Send(context.Background(), "Explain this please"))
	f.core.Wait()

	assert.Equal(t, 0, f.chat.Calls())
	require.Len(t, f.analysis.calls, 1)
	assert.Equal(t, AnalysisRequest{
		Image:          "data:image/png;base64,AAAA",
		AnnotationType: "highlighted-rectangular-area-of",
		Alt:            "call stack diagram",
		UserMessage:    "Explain this please",
	}, f.analysis.calls[0])

	msgs := f.core.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "That box highlights the base case.", msgs[1].Content)
}

func TestAnalyzeIntentWithoutAnnotationGivesGuidance(t *testing.T) {
	var routes []Route
	f := newFixture(WithTurnObserver(func(r Route, failed bool) {
		routes = append(routes, r)
		assert.False(t, failed)
	}))

	require.NoError(t, f.core.Send(context.Background(), "what does this mean?"))
	f.core.Wait()

	assert.Equal(t, 0, f.chat.Calls())
	assert.Empty(t, f.analysis.calls)
	msgs := f.core.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, NoAnnotationMessage, msgs[1].Content)
	assert.Equal(t, []Route{RouteGuidance}, routes)
}

func TestChatFailureFallsBackToIdle(t *testing.T) {
	f := newFixture()
	f.chat.err = errors.New("connection refused")

	require.NoError(t, f.core.Send(context.Background(), "what is a heap?"))
	f.core.Wait()

	msgs := f.core.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, FallbackMessage, msgs[1].Content)
	assert.Equal(t, StateIdle, f.core.State())
	assert.Empty(t, f.speaker.Spoken())
	assert.Equal(t, 1, f.chat.Calls())
}

func TestSpeechDisabledSkipsSpeaking(t *testing.T) {
	f := newFixture()
	f.core.SetSpeechEnabled(false)

	require.NoError(t, f.core.Send(context.Background(), "hello"))
	f.core.Wait()

	assert.Empty(t, f.speaker.Spoken())
	assert.Equal(t, []State{StateThinking, StateIdle}, f.listener.States())
}

func TestNewSendInterruptsSpeech(t *testing.T) {
	f := newFixture()
	f.speaker.hold = make(chan struct{})
	ctx := context.Background()

	require.NoError(t, f.core.Send(ctx, "first"))
	require.Eventually(t, func() bool { return len(f.speaker.Spoken()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSpeaking, f.core.State())

	require.NoError(t, f.core.Send(ctx, "second"))
	require.Eventually(t, func() bool { return len(f.speaker.Spoken()) == 2 }, time.Second, 5*time.Millisecond)
	close(f.speaker.hold)
	f.core.Wait()

	f.speaker.mu.Lock()
	outcomes := append([]speech.Outcome(nil), f.speaker.outcomes...)
	stops := f.speaker.stops
	f.speaker.mu.Unlock()

	assert.Contains(t, outcomes, speech.OutcomeInterrupted)
	assert.GreaterOrEqual(t, stops, 2)
	assert.Equal(t, StateIdle, f.core.State())
	assert.Len(t, f.core.Messages(), 4)
}

func TestSetContextClearsOnSessionChange(t *testing.T) {
	f := newFixture()
	f.core.SetContext("s1", "topic: recursion")

	require.NoError(t, f.core.Send(context.Background(), "hi"))
	f.core.Wait()
	assert.Equal(t, "topic: recursion", f.chat.context)

	f.core.SetContext("s1", "topic: recursion, base case")
	assert.Len(t, f.core.Messages(), 2)

	f.core.SetContext("s2", "topic: sorting")
	assert.Empty(t, f.core.Messages())
}

func TestVoiceUtteranceSendsOnce(t *testing.T) {
	var core *Core
	ctx := context.Background()
	rec := voice.NewRemote(true, nil, func() { core.HandleVoiceChange(ctx) })
	f := newFixture(WithRecognizer(rec))
	core = f.core

	require.NoError(t, core.StartListening())
	assert.Equal(t, StateListening, core.State())

	rec.Update(true, "what is", "")
	rec.Update(true, "", "what is recursion")
	rec.Update(false, "", "")
	rec.Update(false, "", "")
	core.Wait()

	assert.Equal(t, 1, f.chat.Calls())
	msgs := core.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "what is recursion", msgs[0].Content)
	assert.Empty(t, rec.Transcript())
}

func TestVoiceStopWithoutTranscriptReturnsIdle(t *testing.T) {
	var core *Core
	ctx := context.Background()
	rec := voice.NewRemote(true, nil, func() { core.HandleVoiceChange(ctx) })
	f := newFixture(WithRecognizer(rec))
	core = f.core

	require.NoError(t, core.StartListening())
	core.StopListening()

	assert.Equal(t, StateIdle, core.State())
	assert.Equal(t, 0, f.chat.Calls())
}

func TestAssistantMessagesNeverExceedUserMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.core.Send(ctx, "question")
		}()
	}
	wg.Wait()
	f.core.Wait()

	var users, assistants int
	for _, m := range f.core.Messages() {
		if m.Role == domain.RoleUser {
			users++
		} else {
			assistants++
		}
	}
	assert.LessOrEqual(t, assistants, users)
	assert.Equal(t, users, f.chat.Calls())
}
