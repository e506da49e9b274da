package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/example/resy-watch/internal/watch"
)

type answer struct {
	line string
	err  error
}

// lineConfirm asks on out and reads y/n answers from in. Only "y" and
// "yes" accept. One goroutine reads in for the life of the process, so a
// prompt abandoned on cancellation leaves its answer to the next prompt.
type lineConfirm struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan answer
}

func newLineConfirm(in io.Reader, out io.Writer) *lineConfirm {
	return &lineConfirm{in: in, out: out, lines: make(chan answer)}
}

func (c *lineConfirm) read() {
	r := bufio.NewReader(c.in)
	for {
		line, err := r.ReadString('\n')
		c.lines <- answer{line, err}
		if err != nil {
			close(c.lines)
			return
		}
	}
}

func (c *lineConfirm) Confirm(ctx context.Context, m watch.Match) (bool, error) {
	if _, err := fmt.Fprintf(c.out, "Book %s? (y/n): ", m.Time); err != nil {
		return false, err
	}
	c.once.Do(func() { go c.read() })

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a, ok := <-c.lines:
		if !ok {
			return false, fmt.Errorf("read answer: %w", io.EOF)
		}
		if a.err != nil && a.line == "" {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
