package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/identity"
)

// MaxContextChars bounds the session context sent with every chat request.
const MaxContextChars = 6000

// ChatService answers general tutoring questions.
type ChatService interface {
	Chat(ctx context.Context, messages []domain.Message, sessionContext string) (string, error)
}

// AnalysisService explains an annotated image.
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}

// ChatRequest is the chat service request body.
type ChatRequest struct {
	Messages []domain.Message `json:"messages"`
	Context  string           `json:"context"`
}

// AnalysisRequest is the image-analysis service request body.
type AnalysisRequest struct {
	Image          string `json:"image"`
	AnnotationType string `json:"annotationType"`
	Alt            string `json:"alt"`
	UserMessage    string `json:"userMessage,omitempty"`
}

// Reply is the response body of both services.
type Reply struct {
	Content string `json:"content"`
}

// ErrEmptyReply is returned when a service answers with no content.
var ErrEmptyReply = errors.New("empty reply")

// HTTPClient talks to the chat and analysis services over JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var (
	_ ChatService     = (*HTTPClient)(nil)
	_ AnalysisService = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the services rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Chat posts the conversation and the truncated session context.
func (c *HTTPClient) Chat(ctx context.Context, messages []domain.Message, sessionContext string) (string, error) {
	return c.post(ctx, "/api/chat", ChatRequest{
		Messages: messages,
		Context:  TruncateContext(sessionContext),
	})
}

// Analyze posts an annotation for explanation.
func (c *HTTPClient) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	return c.post(ctx, "/api/analyze", req)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Forward the caller's identity so the tutor rate-limits per device.
	if id, ok := identity.FromContext(ctx); ok && id.UserID != "" {
		req.AddCookie(&http.Cookie{Name: identity.AnonCookieName, Value: id.UserID})
		req.Header.Set(identity.TabHeaderName, id.TabID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("post %s: status %d", path, resp.StatusCode)
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return "", ErrEmptyReply
	}
	return reply.Content, nil
}

// TruncateContext cuts s to at most MaxContextChars runes.
func TruncateContext(s string) string {
	if utf8.RuneCountInString(s) <= MaxContextChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxContextChars])
}
