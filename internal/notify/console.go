package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/example/resy-watch/internal/watch"
)

// Console prints watch updates, one per line. A failed write is a dead
// channel and ends the watch.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Deliver(_ context.Context, text string, m *watch.Match) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, text); err != nil {
		return err
	}
	if m != nil && m.ConfigToken != "" {
		if _, err := fmt.Fprintf(c.w, "  config token: %s\n", m.ConfigToken); err != nil {
			return err
		}
	}
	return nil
}
