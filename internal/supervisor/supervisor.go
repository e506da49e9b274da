package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/resy-watch/internal/watch"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrShuttingDown = errors.New("supervisor is shutting down")

// Runner runs one watch to completion. *watch.Engine implements it.
type Runner interface {
	Run(ctx context.Context, req watch.Request, n watch.Notifier) watch.Result
}

// Supervisor owns one goroutine per active watch and the handle used to
// cancel it. Watches are grouped by session key (a websocket connection,
// a WhatsApp sender, the CLI).
type Supervisor struct {
	runner Runner
	logger zerolog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	tasks  map[uuid.UUID]*Task
	closed bool
}

func New(r Runner, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		runner: r,
		logger: logger.With().Str("component", "supervisor").Logger(),
		tasks:  map[uuid.UUID]*Task{},
	}
}

// Start validates req and launches its watch. The watch outlives the
// caller's request; it ends only through Stop, StopSession, Shutdown, or
// on its own.
func (s *Supervisor) Start(session string, req watch.Request, n watch.Notifier) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:        uuid.New(),
		Session:   session,
		Request:   req,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	logger := s.logger.With().Str("watch_id", t.ID.String()).Str("session", session).Logger()
	ctx = logger.WithContext(ctx)

	s.tasks[t.ID] = t
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.runner.Run(ctx, req, n)
		if res.Err != nil {
			logger.Warn().Err(res.Err).Str("state", string(res.State)).Msg("task ended")
		} else {
			logger.Debug().Str("state", string(res.State)).Msg("task ended")
		}
		t.finish(res)
		cancel()

		s.mu.Lock()
		delete(s.tasks, t.ID)
		s.mu.Unlock()
	}()
	return t, nil
}

// Active lists the unfinished watches of session, oldest first. An empty
// session lists every watch.
func (s *Supervisor) Active(session string) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.finished() {
			delete(s.tasks, t.ID)
			continue
		}
		if session == "" || t.Session == session {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

// StopSession cancels every active watch of session and waits until each
// has written its terminal log entry. It returns how many were stopped.
func (s *Supervisor) StopSession(ctx context.Context, session string) (int, error) {
	ts := s.Active(session)
	for _, t := range ts {
		t.Stop()
	}
	for _, t := range ts {
		if _, err := t.Wait(ctx); err != nil {
			return len(ts), err
		}
	}
	return len(ts), nil
}

// Shutdown refuses new watches, cancels all running ones and waits for
// them, or for ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, t := range s.tasks {
		t.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
