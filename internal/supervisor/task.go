package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/resy-watch/internal/watch"
	"github.com/google/uuid"
)

// Task is the handle for one running watch.
type Task struct {
	ID        uuid.UUID
	Session   string
	Request   watch.Request
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result watch.Result
}

// Stop requests cancellation. It does not wait.
func (t *Task) Stop() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the watch has ended or ctx is done.
func (t *Task) Wait(ctx context.Context) (watch.Result, error) {
	select {
	case <-t.done:
		r, _ := t.Result()
		return r, nil
	case <-ctx.Done():
		return watch.Result{}, ctx.Err()
	}
}

// Result reports the outcome once the watch has ended.
func (t *Task) Result() (watch.Result, bool) {
	if !t.finished() {
		return watch.Result{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, true
}

func (t *Task) finish(r watch.Result) {
	t.mu.Lock()
	t.result = r
	t.mu.Unlock()
	close(t.done)
}

func (t *Task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func sortTasks(ts []*Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].StartedAt.Equal(ts[j].StartedAt) {
			return ts[i].ID.String() < ts[j].ID.String()
		}
		return ts[i].StartedAt.Before(ts[j].StartedAt)
	})
}
