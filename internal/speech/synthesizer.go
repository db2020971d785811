package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the speech service cannot produce audio.
var ErrUnavailable = errors.New("speech synthesis unavailable")

// Stream is an audio response body.
type Stream struct {
	Body     io.ReadCloser
	MIMEType string
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Stream, error)
}

// HTTPSynthesizer calls a speech service that accepts {"text": ...} and
// answers with binary audio.
type HTTPSynthesizer struct {
	url    string
	client *http.Client
}

// NewHTTPSynthesizer creates a synthesizer for the service at url.
func NewHTTPSynthesizer(url string, timeout time.Duration) *HTTPSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSynthesizer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Synthesize implements Synthesizer.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (*Stream, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.ContentLength == 0 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return &Stream{Body: resp.Body, MIMEType: mime}, nil
}
