package cancel

import "context"

// JoinHandle holds a background goroutine whose context is cancelled
// when the handle is released, rather than when the goroutine happens to
// finish on its own. No other package in this module uses it: the racer
// (internal/fetcher) cancels losing probes through its own context, and
// the CLI's install loop runs under errgroup with a signal-aware context.
type JoinHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Go starts fn in a new goroutine with a context derived from ctx, and
// returns a handle that aborts it on Release.
func Go(ctx context.Context, fn func(ctx context.Context)) *JoinHandle {
	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(taskCtx)
	}()
	return &JoinHandle{cancel: cancel, done: done}
}

// Release aborts the task (if still running) and returns immediately.
// It does not wait for the goroutine to observe cancellation — callers
// that need that guarantee should also select on Done().
func (h *JoinHandle) Release() {
	h.cancel()
}

// Done reports when the task has returned, whether by completion,
// cancellation, or panic recovery further up the call stack.
func (h *JoinHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task returns or ctx is done, whichever comes
// first.
func (h *JoinHandle) Wait(ctx context.Context) {
	select {
	case <-h.done:
	case <-ctx.Done():
	}
}
