package workspace

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/lastminute/internal/speech"
)

// audioSink plays clips in the browser: an audio event followed by a binary
// frame, then waits for the browser's audio_ended acknowledgement.
type audioSink struct {
	conn *Conn

	mu   sync.Mutex
	acks map[string]chan struct{}
}

var _ speech.Sink = (*audioSink)(nil)

func newAudioSink(conn *Conn) *audioSink {
	return &audioSink{conn: conn, acks: make(map[string]chan struct{})}
}

// Play implements speech.Sink.
func (s *audioSink) Play(ctx context.Context, clip speech.Clip) error {
	ack := make(chan struct{})
	s.mu.Lock()
	s.acks[clip.ID] = ack
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.acks, clip.ID)
		s.mu.Unlock()
	}()

	header, err := json.Marshal(serverEvent{
		Type: evAudio,
		Audio: &audioPayload{
			ID:       clip.ID,
			MIMEType: clip.MIMEType,
			Bytes:    len(clip.Audio),
			Text:     clip.Text,
		},
	})
	if err != nil {
		return err
	}
	if err := s.conn.enqueue(
		frame{typ: websocket.MessageText, data: header},
		frame{typ: websocket.MessageBinary, data: clip.Audio},
	); err != nil {
		return err
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		_ = s.conn.Send(serverEvent{Type: evAudioStop, Audio: &audioPayload{ID: clip.ID}})
		return ctx.Err()
	case <-s.conn.Done():
		return errConnClosed
	}
}

// Ended acknowledges that the browser finished or dropped clip id.
func (s *audioSink) Ended(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ack, ok := s.acks[id]; ok {
		close(ack)
		delete(s.acks, id)
	}
}
