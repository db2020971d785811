package tutor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/api"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/identity"
	"github.com/go-chi/chi/v5"
)

// UnavailableMessage is returned when no model is configured.
const UnavailableMessage = "The tutor isn't configured on this server yet, so I can't answer right now. Your quiz and checklist still work."

const defaultMaxBody = 8 << 20

// Handler serves POST /api/chat and POST /api/analyze.
type Handler struct {
	model     Model
	limiter   *RateLimiter
	maxBody   int64
	onRequest func(endpoint string, ok bool)
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBody bounds request bodies.
func WithMaxBody(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithRequestObserver is called once per handled request.
func WithRequestObserver(fn func(endpoint string, ok bool)) Option {
	return func(h *Handler) { h.onRequest = fn }
}

// NewHandler creates a tutor handler. A nil model answers every request with
// UnavailableMessage.
func NewHandler(model Model, limiter *RateLimiter, opts ...Option) *Handler {
	h := &Handler{
		model:     model,
		limiter:   limiter,
		maxBody:   defaultMaxBody,
		onRequest: func(string, bool) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the tutor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/analyze", h.Analyze)
	})
}

// Chat answers the conversation in the request body.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "chat") {
		return
	}

	var req agent.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		h.onRequest("chat", false)
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != domain.RoleUser {
		h.onRequest("chat", false)
		api.Error(w, http.StatusBadRequest, "messages must end with a user message")
		return
	}

	if h.model == nil {
		h.reply(w, "chat", UnavailableMessage)
		return
	}

	system := chatSystem(agent.TruncateContext(req.Context))
	content, err := h.model.Chat(r.Context(), system, req.Messages)
	if err != nil {
		h.fail(w, r, "chat", err)
		return
	}
	h.reply(w, "chat", content)
}

// Analyze explains the annotated image in the request body.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, "analyze") {
		return
	}

	var req agent.AnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&req); err != nil {
		h.onRequest("analyze", false)
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mime, data, err := annotation.DecodeDataURL(req.Image)
	if err != nil || !strings.HasPrefix(mime, "image/") {
		h.onRequest("analyze", false)
		api.Error(w, http.StatusBadRequest, "image must be an image data url")
		return
	}

	if h.model == nil {
		h.reply(w, "analyze", UnavailableMessage)
		return
	}

	prompt := analysisPrompt(req.AnnotationType, req.Alt, req.UserMessage)
	content, err := h.model.Describe(r.Context(), analysisSystemPrompt, Image{MIMEType: mime, Data: data}, prompt)
	if err != nil {
		h.fail(w, r, "analyze", err)
		return
	}
	h.reply(w, "analyze", content)
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	if h.limiter == nil {
		return true
	}
	key := identity.RateLimitKey(r)
	if h.limiter.Allow(key) {
		return true
	}
	slog.Warn("Tutor rate limit exceeded", "endpoint", endpoint, "user_id", key)
	h.onRequest(endpoint, false)
	api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func (h *Handler) reply(w http.ResponseWriter, endpoint, content string) {
	h.onRequest(endpoint, true)
	api.JSON(w, http.StatusOK, agent.Reply{Content: content})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	slog.Error("Tutor request failed",
		"endpoint", endpoint,
		"error", err,
		"user_id", identity.UserIDFromContext(r.Context()),
		"tab_id", identity.TabIDFromContext(r.Context()),
	)
	h.onRequest(endpoint, false)
	api.Error(w, http.StatusBadGateway, "tutor unavailable")
}
