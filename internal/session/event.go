package session

import (
	"context"
	"strings"

	"github.com/example/resy-watch/internal/watch"
)

type EventKind string

const (
	EventText  EventKind = "text"
	EventWatch EventKind = "watch"
)

// Event is one thing a processed message asks the transport to do: say
// something, or start a watch.
type Event struct {
	Kind  EventKind
	Text  string
	Watch *watch.Request
}

func Text(s string) Event { return Event{Kind: EventText, Text: s} }

func Watch(r watch.Request) Event { return Event{Kind: EventWatch, Watch: &r} }

// Processor turns one inbound message into events. Implementations are
// per session and may keep conversational state.
type Processor interface {
	Process(ctx context.Context, text string) ([]Event, error)
}

// MatchRecorder is implemented by processors that can act on the most
// recent match delivered to their session.
type MatchRecorder interface {
	Remember(m watch.Match)
	// Pending reports whether a remembered match has not been acted on.
	Pending() bool
}

var stopPhrases = map[string]struct{}{
	"stop watching":   {},
	"cancel watch":    {},
	"stop watch":      {},
	"cancel watching": {},
}

// IsStopCommand reports whether text asks to cancel all watches.
func IsStopCommand(text string) bool {
	_, ok := stopPhrases[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
