package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/identity"
	"github.com/ashureev/lastminute/internal/metrics"
	"github.com/ashureev/lastminute/internal/voice"
)

// maxClientMessage bounds one client event. surface_source carries an image.
const maxClientMessage = 16 << 20

// Handler serves GET /ws/workspace?id=<session>.
type Handler struct {
	deps          Deps
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a workspace WebSocket handler.
func NewHandler(deps Deps, registry *Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		deps:          deps,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	sessionID := strings.TrimSpace(r.URL.Query().Get("id"))
	slog.Info("Workspace connection request", "user_id", userID, "session_id", sessionID, "tab_id", tabID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(maxClientMessage)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newConn(ws)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		conn.writeLoop(ctx)
	}()
	defer func() {
		conn.Close("workspace closed")
		<-writerDone
	}()

	h.registry.Register(userID, tabID, conn)
	defer h.registry.Unregister(userID, tabID, conn)
	h.deps.Metrics.ConnectionOpened()
	defer h.deps.Metrics.ConnectionClosed()

	sess := &session{conn: conn, sink: newAudioSink(conn), userID: userID, metrics: h.deps.Metrics}
	work, err := Bootstrap(ctx, h.deps, sessionID, userID, Hooks{
		Listener:  sess,
		Sink:      sess.sink,
		SendVoice: sess.sendVoice,
		OnMuted:   sess.sendMuted,
	})
	if err != nil {
		msg := "failed to load session"
		if errors.Is(err, domain.ErrSessionNotFound) {
			msg = "session not found or expired"
		} else {
			slog.Error("Workspace bootstrap failed", "error", err, "session_id", sessionID)
		}
		_ = conn.Send(serverEvent{Type: evSessionError, Error: msg})
		conn.Close("session unavailable")
		return
	}
	sess.ws = work
	defer func() {
		cancel()
		work.Close()
	}()

	if err := conn.Send(serverEvent{Type: evReady, Ready: work.Ready()}); err != nil {
		return
	}

	sess.readLoop(ctx, ws)
	slog.Info("Workspace session ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// session binds one connection to one workspace.
type session struct {
	conn    *Conn
	sink    *audioSink
	ws      *Workspace
	userID  string
	metrics *metrics.Recorder
}

var _ agent.Listener = (*session)(nil)

// OnState implements agent.Listener.
func (s *session) OnState(st agent.State) {
	_ = s.conn.Send(serverEvent{Type: evState, State: st})
}

// OnMessage implements agent.Listener.
func (s *session) OnMessage(m domain.Message) {
	_ = s.conn.Send(serverEvent{Type: evMessage, Message: &m})
}

func (s *session) sendVoice(cmd voice.Command) {
	_ = s.conn.Send(serverEvent{Type: evVoiceCommand, Command: cmd})
}

func (s *session) sendMuted(muted bool) {
	_ = s.conn.Send(serverEvent{Type: evMuted, Muted: &muted})
}

func (s *session) sendError(err error) {
	_ = s.conn.Send(serverEvent{Type: evError, Error: err.Error()})
}

func (s *session) sendProgress() {
	snap := s.ws.Engine.Snapshot()
	_ = s.conn.Send(serverEvent{Type: evProgress, Progress: &snap})
}

func (s *session) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("Workspace closed by client", "user_id", s.userID)
			} else {
				slog.Warn("Workspace read error", "error", err, "user_id", s.userID)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.sendError(errors.New("malformed event"))
			continue
		}
		s.dispatch(ctx, ev)
	}
}

//nolint:gocyclo // One case per client event type.
func (s *session) dispatch(ctx context.Context, ev clientEvent) {
	w := s.ws
	switch ev.Type {
	case evPing:
		_ = s.conn.Send(serverEvent{Type: evPong})

	case evSend:
		if err := w.Core.Send(ctx, ev.Text); err != nil {
			s.sendError(err)
		}
	case evMicStart:
		if err := w.Core.StartListening(); err != nil {
			s.sendError(err)
		}
	case evMicStop:
		w.Core.StopListening()
	case evVoice:
		if ev.Supported != nil {
			w.Voice.SetSupported(*ev.Supported)
		}
		w.Voice.Update(ev.Listening, ev.Interim, ev.Final)

	case evStopAudio:
		w.Core.StopAudio()
	case evSpeechToggle:
		if ev.Enabled != nil {
			w.Core.SetSpeechEnabled(*ev.Enabled)
		}
	case evAudioEnded:
		s.sink.Ended(ev.ID)

	case evQuizSelect:
		s.progressOp(w.Engine.Select(ev.Option))
	case evQuizSubmit:
		s.progressOp(w.Engine.Submit())
	case evOpenChange:
		// Typing only mutates the draft; no snapshot is pushed.
		if err := w.Engine.SetOpenAnswer(ev.Text); err != nil {
			s.sendError(err)
		}
	case evOpenSubmit:
		s.progressOp(w.Engine.SubmitOpen())
	case evNext:
		w.Engine.Next()
		s.progressOp(nil)
	case evPrev:
		w.Engine.Prev()
		s.progressOp(nil)
	case evChecklistToggle:
		s.progressOp(w.Engine.ToggleChecklist(ev.ID))

	case evSurfaceResize, evSurfaceSource, evSurfaceTool,
		evPointerDown, evPointerMove, evPointerUp, evAnnotationClear:
		s.surfaceOp(ev)

	default:
		s.sendError(errors.New("unknown event type " + ev.Type))
	}
}

// progressOp pushes a snapshot after a progression action and regrounds the
// tutor. Rejected actions leave the engine unchanged.
func (s *session) progressOp(err error) {
	if err != nil {
		s.sendError(err)
		return
	}
	s.ws.RefreshContext()
	s.sendProgress()
}

func (s *session) surfaceOp(ev clientEvent) {
	surface, ok := s.ws.Surface(ev.Surface)
	if !ok {
		s.sendError(errors.New("unknown surface " + ev.Surface))
		return
	}
	p := annotation.Point{X: ev.X, Y: ev.Y}

	switch ev.Type {
	case evSurfaceResize:
		surface.Resize(ev.Width, ev.Height)
	case evSurfaceTool:
		surface.SetTool(ev.Tool)
	case evSurfaceSource:
		if ev.Image == "" {
			surface.SetSource(nil, ev.Alt)
			return
		}
		img, err := annotation.DecodeImageDataURL(ev.Image)
		if err != nil {
			s.sendError(err)
			return
		}
		surface.SetSource(img, ev.Alt)
	case evPointerDown:
		surface.PointerDown(p)
	case evPointerMove:
		surface.PointerMove(p)
	case evPointerUp:
		a, published, err := surface.PointerUp()
		if err != nil {
			slog.Warn("Annotation composite failed", "error", err, "surface", surface.ID())
			s.sendError(err)
			return
		}
		if !published {
			return
		}
		s.metrics.AnnotationPublished(string(a.Type))
		_ = s.conn.Send(serverEvent{Type: evAnnotation, Annotation: &annotationPayload{Surface: surface.ID(), Annotation: a}})
	case evAnnotationClear:
		surface.Clear()
		_ = s.conn.Send(serverEvent{Type: evAnnotation, Annotation: &annotationPayload{Surface: surface.ID(), Cleared: true}})
	}
}
