package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxSessionBody bounds uploaded session payloads. Story beats carry images.
const maxSessionBody = 32 << 20

// Features tells the frontend which optional services are configured.
type Features struct {
	TutorEnabled  bool `json:"tutor_enabled"`
	SpeechEnabled bool `json:"speech_enabled"`
}

// SessionHandler handles session store endpoints.
type SessionHandler struct {
	*Handler
	features Features
	onLoad   func(found bool)
}

// NewSessionHandler creates a session handler. onLoad may be nil.
func NewSessionHandler(base *Handler, features Features, onLoad func(found bool)) *SessionHandler {
	if onLoad == nil {
		onLoad = func(bool) {}
	}
	return &SessionHandler{Handler: base, features: features, onLoad: onLoad}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Post("/session", h.CreateSession)
		r.Get("/session", h.GetSession)
		r.Get("/sessions/recent", h.RecentSessions)
	})
}

// GetConfig returns the optional feature flags for the frontend.
func (h *SessionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.features)
}

// CreateSession stores an uploaded session record and returns it with its id.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var s domain.Session
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody)).Decode(&s); err != nil {
		Error(w, http.StatusBadRequest, "invalid session payload")
		return
	}

	s.ID = uuid.NewString()
	s.CreatedAt = time.Time{}
	s.ExpiresAt = time.Time{}
	s.Normalize()

	if err := h.repo.CreateSession(r.Context(), &s); err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", identity.UserIDFromContext(r.Context()))
		Error(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	slog.Info("Session created",
		"session_id", s.ID,
		"user_id", identity.UserIDFromContext(r.Context()),
		"topics", len(s.InteractiveStory.Topics),
		"llm_used", s.LLMUsed,
	)
	JSON(w, http.StatusCreated, &s)
}

// GetSession returns the session named by the id query parameter.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		Error(w, http.StatusBadRequest, "missing id")
		return
	}

	s, err := h.repo.GetSession(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		h.onLoad(false)
		Error(w, http.StatusNotFound, "session not found or expired")
		return
	}
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	h.onLoad(true)
	JSON(w, http.StatusOK, s)
}

// RecentSessions returns the caller's recent-session list, newest first.
func (h *SessionHandler) RecentSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	list, err := h.repo.RecentSessions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load recent sessions", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load recent sessions")
		return
	}
	if list == nil {
		list = []domain.RecentSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}
