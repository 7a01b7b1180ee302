// Package fetcher implements the resolver's candidate-racing primitive
// and the fetcher capability set each candidate URL or mirror is wrapped
// in. Modeled on the single-package resolver's FuturesResolver: any
// number of candidates race concurrently, and the first hard result
// (success or error) wins while soft negatives are silently skipped.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoCandidateSucceeded is returned by Resolve when every pushed
// candidate finished as a soft negative or a hard error, or when no
// candidate was ever pushed.
var ErrNoCandidateSucceeded = errors.New("no candidate produced a result")

// Candidate is one probe pushed into a Racer. found=false with a nil
// error is a soft negative: this candidate has nothing to offer (e.g.
// "the artifact doesn't exist for this target") and is never forwarded
// to Resolve. A non-nil error is a hard failure. found=true is a win.
type Candidate[T any] func(ctx context.Context) (value T, found bool, err error)

// Racer runs Candidate probes concurrently and returns the first to
// succeed. Its channel has capacity 1, exactly like the single-package
// resolver's mpsc channel: once occupied, further hard results race to
// fill it and the loser is silently dropped, trusting that it was itself
// racing an equivalent result. Resolve cancels every still-running
// candidate as soon as it returns, win or exhaustion.
type Racer[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc

	results chan raceResult[T]
	wg      sync.WaitGroup
}

type raceResult[T any] struct {
	value T
	err   error
}

// NewRacer creates a Racer whose candidates observe cancellation of
// parent in addition to the racer's own completion.
func NewRacer[T any](parent context.Context) *Racer[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Racer[T]{ctx: ctx, cancel: cancel, results: make(chan raceResult[T], 1)}
}

// Push starts fn racing against every other pushed candidate. Safe to
// call before or after Resolve; fn receives a context that is cancelled
// once Resolve returns, so a candidate already in flight should select
// on ctx.Done() at its own suspension points.
func (r *Racer[T]) Push(fn Candidate[T]) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		value, found, err := fn(r.ctx)
		if !found && err == nil {
			return
		}
		if err != nil {
			slog.Warn("candidate fetcher failed", "error", err)
		}
		select {
		case r.results <- raceResult[T]{value: value, err: err}:
		default:
			// Another result already occupies the slot; whichever
			// candidate filled it got there first.
		}
	}()
}

// Resolve blocks until a candidate succeeds, every pushed candidate has
// finished without succeeding, or ctx is cancelled. Hard errors are
// logged and skipped past, not surfaced, unless nothing else ever
// succeeds.
func (r *Racer[T]) Resolve() (T, error) {
	defer r.cancel()

	allDone := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(allDone)
	}()

	var lastErr error
	for {
		select {
		case res := <-r.results:
			if res.err == nil {
				return res.value, nil
			}
			lastErr = res.err
		case <-allDone:
			select {
			case res := <-r.results:
				if res.err == nil {
					return res.value, nil
				}
				lastErr = res.err
			default:
			}
			var zero T
			if lastErr == nil {
				lastErr = ErrNoCandidateSucceeded
			}
			return zero, lastErr
		case <-r.ctx.Done():
			var zero T
			return zero, r.ctx.Err()
		}
	}
}
