// Package workspace hosts one interaction engine per open study workspace and
// carries its events over a WebSocket.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/metrics"
	"github.com/ashureev/lastminute/internal/progress"
	"github.com/ashureev/lastminute/internal/speech"
	"github.com/ashureev/lastminute/internal/store"
	"github.com/ashureev/lastminute/internal/voice"
)

// SketchSurfaceID names the freeform sketch pad.
const SketchSurfaceID = "sketch"

// Default surface size until the browser reports its layout.
const (
	defaultSurfaceWidth  = 640
	defaultSurfaceHeight = 360
)

// Deps are the shared services every workspace uses.
type Deps struct {
	Repo     store.Repository
	Chat     agent.ChatService
	Analysis agent.AnalysisService
	// Synth may be nil, in which case speech stays muted.
	Synth   speech.Synthesizer
	ConvLog agent.ConversationLogger
	Metrics *metrics.Recorder
}

// Hooks connect one workspace to its transport.
type Hooks struct {
	Listener  agent.Listener
	Sink      speech.Sink
	SendVoice func(voice.Command)
	OnMuted   func(muted bool)
}

// Workspace is the engine state behind one open session.
type Workspace struct {
	Session     *domain.Session
	Engine      *progress.Engine
	Annotations *annotation.Store
	Player      *speech.Player
	Voice       *voice.Remote
	Core        *agent.Core
	CardBeats   []int

	surfaces     map[string]*annotation.Surface
	surfaceInfos []surfaceInfo
	narrative    string
}

// Bootstrap loads sessionID and builds its engine. A missing or expired
// session returns domain.ErrSessionNotFound.
func Bootstrap(ctx context.Context, deps Deps, sessionID, userID string, hooks Hooks) (*Workspace, error) {
	s, err := deps.Repo.GetSession(ctx, sessionID)
	if err != nil {
		deps.Metrics.SessionLoad(false)
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	deps.Metrics.SessionLoad(true)

	w := &Workspace{
		Session:     s,
		Annotations: annotation.NewStore(),
		CardBeats:   domain.AssignBeats(s.InteractiveStory.Topics, s.StoryBeats),
		surfaces:    make(map[string]*annotation.Surface),
		narrative:   s.NarrativeContext(),
	}
	w.Engine = progress.New(s.InteractiveStory.Topics, s.Checklist,
		progress.WithSubmitObserver(deps.Metrics.QuizSubmit),
	)
	w.buildSurfaces()

	w.Player = speech.NewPlayer(deps.Synth, hooks.Sink,
		speech.WithObserver(func(o speech.Outcome) { deps.Metrics.Playback(string(o)) }),
		speech.WithMutedListener(hooks.OnMuted),
	)
	w.Voice = voice.NewRemote(false, hooks.SendVoice, func() {
		if w.Core != nil {
			w.Core.HandleVoiceChange(ctx)
		}
	})

	convLog := deps.ConvLog
	if convLog == nil {
		convLog, _ = agent.NewConversationLogger(agent.ConversationLogConfig{}, nil)
	}
	opts := []agent.Option{
		agent.WithLogger(slog.Default().With("session_id", s.ID, "user_id", userID)),
		agent.WithRecognizer(w.Voice),
		agent.WithConversationLog(convLog, userID),
		agent.WithTurnObserver(func(r agent.Route, failed bool) { deps.Metrics.Turn(string(r), failed) }),
	}
	if hooks.Listener != nil {
		opts = append(opts, agent.WithListener(hooks.Listener))
	}
	w.Core = agent.New(deps.Chat, deps.Analysis, w.Player, w.Annotations, opts...)
	w.RefreshContext()

	if userID != "" {
		entry := domain.RecentSession{ID: s.ID, Title: s.Title(), UpdatedAt: time.Now().UTC()}
		if _, err := deps.Repo.AddRecentSession(ctx, userID, entry); err != nil {
			slog.Warn("Failed to record recent session", "error", err, "user_id", userID, "session_id", s.ID)
		}
	}

	slog.Info("Workspace bootstrapped",
		"session_id", s.ID,
		"user_id", userID,
		"topics", len(s.InteractiveStory.Topics),
		"surfaces", len(w.surfaces),
	)
	return w, nil
}

func (w *Workspace) buildSurfaces() {
	for i, beat := range w.Session.StoryBeats {
		id := "beat-" + strconv.Itoa(i)
		alt := strings.TrimSpace(beat.Caption)
		if alt == "" {
			alt = beat.Label
		}
		surface := annotation.NewSurface(id, w.Annotations, annotation.ToolFreehand, defaultSurfaceWidth, defaultSurfaceHeight)
		img, err := annotation.DecodeImageDataURL(beat.Image)
		switch {
		case errors.Is(err, annotation.ErrImageTooLarge):
			slog.Warn("Story beat image rejected", "session_id", w.Session.ID, "beat", i, "error", err)
		case err != nil:
			slog.Debug("Story beat has no inline image", "session_id", w.Session.ID, "beat", i, "error", err)
		}
		surface.SetSource(img, alt)
		w.addSurface(surface, surfaceInfo{ID: id, Label: beat.Label, Caption: beat.Caption, Beat: i, Tool: annotation.ToolFreehand})
	}

	sketch := annotation.NewSurface(SketchSurfaceID, w.Annotations, annotation.ToolFreehand, defaultSurfaceWidth, defaultSurfaceHeight)
	w.addSurface(sketch, surfaceInfo{ID: SketchSurfaceID, Label: "Sketch pad", Beat: -1, Tool: annotation.ToolFreehand})
}

func (w *Workspace) addSurface(s *annotation.Surface, info surfaceInfo) {
	w.surfaces[s.ID()] = s
	w.surfaceInfos = append(w.surfaceInfos, info)
}

// Surface returns the capture surface with id.
func (w *Workspace) Surface(id string) (*annotation.Surface, bool) {
	s, ok := w.surfaces[id]
	return s, ok
}

// RefreshContext regrounds the tutor on the narrative plus current progress.
func (w *Workspace) RefreshContext() {
	w.Core.SetContext(w.Session.ID, w.Engine.TutorContext(w.narrative))
}

// Ready builds the initial event for the browser.
func (w *Workspace) Ready() *readyPayload {
	return &readyPayload{
		Session:   w.Session,
		State:     w.Core.State(),
		Messages:  w.Core.Messages(),
		Progress:  w.Engine.Snapshot(),
		Surfaces:  w.surfaceInfos,
		CardBeats: w.CardBeats,
		Speech:    speechInfo{Enabled: w.Player.Enabled(), Muted: w.Player.Muted()},
	}
}

// Close stops playback and waits for in-flight turns to settle.
func (w *Workspace) Close() {
	w.Core.StopAudio()
	w.Core.Wait()
}
