// Package speech plays synthesized tutor replies, one clip at a time.
package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Outcome reports how a Speak call ended.
type Outcome string

const (
	OutcomePlayed      Outcome = "played"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeMuted       Outcome = "muted"
	OutcomeDisabled    Outcome = "disabled"
)

// Clip is a fully fetched piece of synthesized audio.
type Clip struct {
	ID       string
	Text     string
	MIMEType string
	Audio    []byte
}

// Sink outputs audio. Play must return promptly once ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, clip Clip) error
}

// Player owns the single audible stream. Every Speak first stops whatever is
// fetching or playing, so at most one clip is ever heard.
type Player struct {
	synth   Synthesizer
	sink    Sink
	logger  *slog.Logger
	observe func(Outcome)
	onMuted func(bool)

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	playing chan struct{}
	enabled bool
	muted   bool
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) { p.logger = logger }
}

// WithObserver registers a callback invoked with every Speak outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Player) { p.observe = fn }
}

// WithMutedListener registers a callback for muted indicator changes.
func WithMutedListener(fn func(muted bool)) Option {
	return func(p *Player) { p.onMuted = fn }
}

// NewPlayer creates a player. A nil synthesizer leaves the player muted.
func NewPlayer(synth Synthesizer, sink Sink, opts ...Option) *Player {
	p := &Player{
		synth:   synth,
		sink:    sink,
		logger:  slog.Default(),
		enabled: true,
		muted:   synth == nil,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetEnabled applies the user's speech toggle. Disabling stops playback.
func (p *Player) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
	if !enabled {
		p.StopAll()
	}
}

// Enabled reports the user's speech toggle.
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Muted reports whether synthesis is currently unavailable.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// StopAll cancels any in-flight fetch, stops the playing clip and waits for
// it to release the sink. Safe to call when nothing is playing.
func (p *Player) StopAll() {
	p.mu.Lock()
	p.gen++
	cancel, done := p.cancel, p.playing
	p.cancel, p.playing = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Speak synthesizes text and plays it, returning when the clip ends or is
// interrupted. Failures degrade to OutcomeMuted and are never returned.
func (p *Player) Speak(ctx context.Context, text string) Outcome {
	p.StopAll()

	p.mu.Lock()
	if !p.enabled || p.synth == nil || strings.TrimSpace(text) == "" {
		p.mu.Unlock()
		return p.finish(OutcomeDisabled)
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	defer p.release(gen, cancel)

	stream, err := p.synth.Synthesize(ctx, text)
	if err == nil && stream == nil {
		err = ErrUnavailable
	}
	if p.interrupted(ctx, gen) {
		if stream != nil {
			_ = stream.Body.Close()
		}
		return p.finish(OutcomeInterrupted)
	}
	if err != nil {
		p.logger.Warn("Speech synthesis failed, continuing muted", "error", err)
		p.setMuted(true)
		return p.finish(OutcomeMuted)
	}

	audio, err := io.ReadAll(stream.Body)
	if closeErr := stream.Body.Close(); closeErr != nil {
		p.logger.Debug("Failed to close speech response body", "error", closeErr)
	}
	if p.interrupted(ctx, gen) {
		return p.finish(OutcomeInterrupted)
	}
	if err != nil || len(audio) == 0 {
		p.logger.Warn("Speech synthesis returned no audio, continuing muted", "error", err)
		p.setMuted(true)
		return p.finish(OutcomeMuted)
	}
	p.setMuted(false)

	done := make(chan struct{})
	p.mu.Lock()
	if gen != p.gen || ctx.Err() != nil {
		p.mu.Unlock()
		return p.finish(OutcomeInterrupted)
	}
	p.playing = done
	p.mu.Unlock()

	err = p.sink.Play(ctx, Clip{
		ID:       uuid.NewString(),
		Text:     text,
		MIMEType: stream.MIMEType,
		Audio:    audio,
	})
	close(done)
	p.mu.Lock()
	if p.playing == done {
		p.playing = nil
	}
	p.mu.Unlock()

	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return p.finish(OutcomeInterrupted)
	case err != nil:
		p.logger.Warn("Audio playback failed", "error", err)
		return p.finish(OutcomeInterrupted)
	}
	return p.finish(OutcomePlayed)
}

func (p *Player) interrupted(ctx context.Context, gen uint64) bool {
	if ctx.Err() != nil {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen != p.gen
}

func (p *Player) release(gen uint64, cancel context.CancelFunc) {
	p.mu.Lock()
	if p.gen == gen {
		p.cancel = nil
	}
	p.mu.Unlock()
	cancel()
}

func (p *Player) setMuted(muted bool) {
	p.mu.Lock()
	changed := p.muted != muted
	p.muted = muted
	p.mu.Unlock()
	if changed && p.onMuted != nil {
		p.onMuted(muted)
	}
}

func (p *Player) finish(o Outcome) Outcome {
	if p.observe != nil {
		p.observe(o)
	}
	return o
}
