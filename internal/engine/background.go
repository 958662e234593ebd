package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTaskTimeout bounds a background task when the group has no
// explicit timeout.
const DefaultTaskTimeout = 5 * time.Second

// TaskGroup runs best-effort background work that must outlive the request
// that started it. Tasks get a context detached from the caller, bounded
// by a per-task timeout and cancelled when the group closes. Failures are
// logged, never returned to the caller that scheduled them.
type TaskGroup struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTaskGroup creates a TaskGroup. A nil logger uses slog.Default().
func NewTaskGroup(timeout time.Duration, logger *slog.Logger) *TaskGroup {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskGroup{
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger.With("component", "tasks"),
	}
}

// Go schedules fn. It returns false, without running fn, once the group is
// closed.
func (g *TaskGroup) Go(name string, fn func(ctx context.Context) error) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Debug("background task dropped, group closed", "task", name)
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			g.logger.Warn("background task failed", "task", name, "duration", time.Since(start), "error", err)
			return
		}
		g.logger.Debug("background task done", "task", name, "duration", time.Since(start))
	}()
	return true
}

// Wait blocks until every scheduled task has finished.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}

// Close stops accepting tasks and waits for running ones until ctx is
// done, at which point outstanding tasks are cancelled and ctx.Err() is
// returned.
func (g *TaskGroup) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		g.logger.Warn("background tasks cancelled on close", "error", ctx.Err())
		return ctx.Err()
	}
}
