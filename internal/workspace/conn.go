package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	outboundQueueSize = 256
	writeTimeout      = 10 * time.Second
)

var errConnClosed = errors.New("workspace connection closed")

type frame struct {
	typ  websocket.MessageType
	data []byte
}

// Conn serializes writes to one workspace socket. Frames queued together are
// written back to back.
type Conn struct {
	ws        *websocket.Conn
	out       chan []frame
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	reason string
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:   ws,
		out:  make(chan []frame, outboundQueueSize),
		done: make(chan struct{}),
	}
}

// Send queues a JSON event.
func (c *Conn) Send(ev serverEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.enqueue(frame{typ: websocket.MessageText, data: data})
}

func (c *Conn) enqueue(frames ...frame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- frames:
		return nil
	case <-c.done:
		return errConnClosed
	}
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close stops accepting frames. The writer flushes what is queued and then
// closes the socket with reason.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) closeSocket() {
	if c.ws == nil {
		return
	}
	c.mu.Lock()
	reason := c.reason
	c.mu.Unlock()
	if reason == "" {
		reason = "workspace closed"
	}
	_ = c.ws.Close(websocket.StatusNormalClosure, reason)
}

// writeLoop drains the queue until ctx is done or the connection closes,
// then closes the socket.
func (c *Conn) writeLoop(ctx context.Context) {
	defer c.closeSocket()
	defer c.Close("workspace closed")
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.flush()
			return
		case frames := <-c.out:
			if err := c.write(ctx, frames); err != nil {
				if ctx.Err() == nil {
					slog.Debug("Workspace write error", "error", err)
				}
				return
			}
		}
	}
}

// flush writes what is already queued, so a terminal event reaches the
// client before the close frame.
func (c *Conn) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for {
		select {
		case frames := <-c.out:
			if err := c.write(ctx, frames); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, frames []frame) error {
	for _, f := range frames {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, f.typ, f.data)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}
