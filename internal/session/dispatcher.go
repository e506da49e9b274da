package session

import (
	"context"
	"fmt"

	"github.com/example/resy-watch/internal/supervisor"
	"github.com/example/resy-watch/internal/watch"
	"github.com/rs/zerolog"
)

// Dispatcher connects one session's transport to its processor and to the
// supervisor. The transport supplies Reply for conversational text and
// Notifier for watch updates; a Reply error means the channel is gone.
type Dispatcher struct {
	Processor  Processor
	Supervisor *supervisor.Supervisor
	Session    string
	Reply      func(ctx context.Context, text string) error
	Notifier   watch.Notifier
	// StartedText is sent after a watch starts.
	StartedText string
	Logger      zerolog.Logger
}

// HandleText runs text through the processor and acts on every event.
func (d *Dispatcher) HandleText(ctx context.Context, text string) error {
	events, err := d.Processor.Process(ctx, text)
	if err != nil {
		d.Logger.Warn().Err(err).Str("session", d.Session).Msg("process message failed")
		return d.Reply(ctx, fmt.Sprintf("Sorry, something went wrong: %v", err))
	}
	return d.Dispatch(ctx, events)
}

func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case EventText:
			if err := d.Reply(ctx, ev.Text); err != nil {
				return err
			}
		case EventWatch:
			if ev.Watch == nil {
				continue
			}
			if err := d.StartWatch(ctx, *ev.Watch); err != nil {
				return err
			}
		}
	}
	return nil
}

// StartWatch launches a watch for this session. A rejected request is
// reported to the user, not returned.
func (d *Dispatcher) StartWatch(ctx context.Context, req watch.Request) error {
	t, err := d.Supervisor.Start(d.Session, req, d.notifier())
	if err != nil {
		return d.Reply(ctx, fmt.Sprintf("Could not start watch: %v", err))
	}
	d.Logger.Info().Str("session", d.Session).Str("watch_id", t.ID.String()).Msg("watch started")
	return d.Reply(ctx, d.StartedText)
}

// Stop cancels every watch of the session and reports the outcome.
func (d *Dispatcher) Stop(ctx context.Context) error {
	n, err := d.Supervisor.StopSession(ctx, d.Session)
	if err != nil {
		return err
	}
	if n == 0 {
		return d.Reply(ctx, "No active watches to cancel.")
	}
	return d.Reply(ctx, "All watches cancelled.")
}

// notifier lets the processor see each match before the transport does,
// so "book it" can act on it.
func (d *Dispatcher) notifier() watch.Notifier {
	rec, ok := d.Processor.(MatchRecorder)
	if !ok {
		return d.Notifier
	}
	return watch.NotifierFunc(func(ctx context.Context, text string, m *watch.Match) error {
		if m != nil {
			rec.Remember(*m)
		}
		return d.Notifier.Deliver(ctx, text, m)
	})
}
