// Package tutor serves the chat and image-analysis endpoints the agent talks to.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/lastminute/internal/domain"
	"google.golang.org/genai"
)

// Model generates tutor replies.
type Model interface {
	Chat(ctx context.Context, system string, history []domain.Message) (string, error)
	Describe(ctx context.Context, system string, image Image, prompt string) (string, error)
}

// Image is a decoded annotation bitmap.
type Image struct {
	MIMEType string
	Data     []byte
}

// ErrNoContent is returned when the model produced no text.
var ErrNoContent = errors.New("model returned no content")

// GeminiModel implements Model on the Gemini API.
type GeminiModel struct {
	apiKey      string
	model       string
	temperature float32

	once    sync.Once
	client  *genai.Client
	initErr error
}

var _ Model = (*GeminiModel)(nil)

// NewGeminiModel creates a model client. The connection is established on first use.
func NewGeminiModel(apiKey, model string) *GeminiModel {
	return &GeminiModel{apiKey: apiKey, model: model, temperature: 0.4}
}

func (g *GeminiModel) getClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.initErr != nil {
		return nil, fmt.Errorf("create gemini client: %w", g.initErr)
	}
	return g.client, nil
}

// Chat answers the last message of history.
func (g *GeminiModel) Chat(ctx context.Context, system string, history []domain.Message) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := genai.RoleUser
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return g.generate(ctx, system, contents)
}

// Describe explains an annotated image.
func (g *GeminiModel) Describe(ctx context.Context, system string, image Image, prompt string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image.Data, image.MIMEType),
		genai.NewPartFromText(prompt),
	}
	return g.generate(ctx, system, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)})
}

func (g *GeminiModel) generate(ctx context.Context, system string, contents []*genai.Content) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}

	temp := g.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return "", ErrNoContent
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}
