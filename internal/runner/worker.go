package runner

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopTimeout is returned by Stop when the task does not finish
// within the grace period.
var ErrStopTimeout = errors.New("worker did not stop within timeout")

// Worker runs one task on a background goroutine with an explicit
// cancel-and-join lifecycle. The task must honor its context at safe
// points for Stop to work.
type Worker struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start launches the task. The returned worker must be waited or
// stopped exactly once.
func Start(ctx context.Context, task func(ctx context.Context) error) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		err := task(ctx)

		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()

	return w
}

// Wait blocks until the task finishes and returns its error.
func (w *Worker) Wait() error {
	<-w.done
	return w.taskErr()
}

// Done returns a channel closed when the task finishes.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the task and waits up to timeout for it to finish. The
// task's own error is returned when it stops in time.
func (w *Worker) Stop(timeout time.Duration) error {
	w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.taskErr()
	case <-timer.C:
		return ErrStopTimeout
	}
}

func (w *Worker) taskErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
