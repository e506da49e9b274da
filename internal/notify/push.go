package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/resy-watch/internal/watch"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned once the socket has been closed or a write failed.
var ErrClosed = errors.New("push channel closed")

// Frame types sent to the browser.
const (
	FrameBotMessage  = "bot_message"
	FrameTyping      = "typing"
	FrameWatchUpdate = "watch_update"
)

type Frame struct {
	Type  string       `json:"type"`
	Text  string       `json:"text"`
	Match *watch.Match `json:"match,omitempty"`
}

const defaultWriteTimeout = 10 * time.Second

// Push is the interactive-session notifier. Every watch started from one
// socket shares one Push, so frames on a socket keep a single order.
type Push struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewPush(conn *websocket.Conn) *Push {
	return &Push{conn: conn}
}

// Send writes one frame. The first failed write closes the channel for good.
func (p *Push) Send(ctx context.Context, f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.conn.SetWriteDeadline(deadline)
	if err := p.conn.WriteJSON(f); err != nil {
		p.closed = true
		_ = p.conn.Close()
		return err
	}
	return nil
}

func (p *Push) Reply(ctx context.Context, text string) error {
	return p.Send(ctx, Frame{Type: FrameBotMessage, Text: text})
}

func (p *Push) Typing(ctx context.Context) error {
	return p.Send(ctx, Frame{Type: FrameTyping})
}

// Deliver implements watch.Notifier.
func (p *Push) Deliver(ctx context.Context, text string, m *watch.Match) error {
	return p.Send(ctx, Frame{Type: FrameWatchUpdate, Text: text, Match: m})
}

// Close marks the channel gone; watches delivering to it will end.
func (p *Push) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}
