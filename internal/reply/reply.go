// Package reply implements the fan-in side of a query: every backend that
// accepted a query reports exactly once into the shared reply, and the reply
// finishes exactly once when the last report arrives.
package reply

import (
	"context"
	"fmt"
	"sync"
)

// ErrorCode classifies the failure of a query.
type ErrorCode int

const (
	NoError ErrorCode = iota
	NetworkError
	NotFoundError
	UnknownError
)

func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NoError"
	case NetworkError:
		return "NetworkError"
	case NotFoundError:
		return "NotFoundError"
	default:
		return "UnknownError"
	}
}

// Sink is the reporting side of a reply as seen by a backend.
type Sink[T any] interface {
	AddResult(batch []T)
	AddError(code ErrorCode, message string)
}

// Reply accumulates results of type T from several backends.
//
// The counter starts unarmed (-1). Reports that arrive before SetPendingOps
// are remembered and subtracted when the reply is armed, so backends may
// complete in any order relative to the fan-out loop.
type Reply[T any] struct {
	mu         sync.Mutex
	pendingOps int
	early      int
	done       bool
	results    []T
	errorCode  ErrorCode
	errorMsg   string
	finished   chan struct{}
	callbacks  []func()
	finalize   func([]T) []T
}

func (r *Reply[T]) init(finalize func([]T) []T) {
	r.pendingOps = -1
	r.finished = make(chan struct{})
	r.finalize = finalize
}

// AddResult appends a (possibly empty) batch and counts one completed
// operation. It does not change the error state.
func (r *Reply[T]) AddResult(batch []T) {
	r.mu.Lock()
	r.results = append(r.results, batch...)
	finish := r.completeLocked()
	r.mu.Unlock()
	if finish {
		r.finish()
	}
}

// AddError records a failure and counts one completed operation. The last
// reported error wins; accumulated results are kept.
func (r *Reply[T]) AddError(code ErrorCode, message string) {
	r.mu.Lock()
	r.errorCode = code
	r.errorMsg = message
	finish := r.completeLocked()
	r.mu.Unlock()
	if finish {
		r.finish()
	}
}

// AddCachedResult appends results that were served without a backend
// operation, for example from the location cache. The counter is unaffected.
func (r *Reply[T]) AddCachedResult(batch []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		panic("reply: cached result added after completion")
	}
	r.results = append(r.results, batch...)
}

// SetPendingOps arms the reply with the number of backends that accepted the
// query. It must be called exactly once, after every backend has been offered
// the query. If nothing remains outstanding the reply finishes on a separate
// goroutine, so the caller can still register for completion.
func (r *Reply[T]) SetPendingOps(n int) {
	if n < 0 {
		panic(fmt.Sprintf("reply: negative pending operation count %d", n))
	}
	r.mu.Lock()
	if r.pendingOps >= 0 || r.done {
		r.mu.Unlock()
		panic("reply: SetPendingOps called twice")
	}
	if r.early > n {
		r.mu.Unlock()
		panic(fmt.Sprintf("reply: %d operations reported but only %d were started", r.early, n))
	}
	r.pendingOps = n - r.early
	r.early = 0
	finish := r.pendingOps == 0
	r.mu.Unlock()

	if finish {
		go r.finish()
	}
}

// completeLocked counts one report and says whether the reply is now complete.
func (r *Reply[T]) completeLocked() bool {
	if r.done {
		panic("reply: operation reported after the reply finished")
	}
	if r.pendingOps < 0 {
		r.early++
		return false
	}
	if r.pendingOps == 0 {
		panic("reply: more operations reported than were started")
	}
	r.pendingOps--
	return r.pendingOps == 0
}

func (r *Reply[T]) finish() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	if r.finalize != nil {
		r.results = r.finalize(r.results)
	}
	if len(r.results) > 0 {
		r.errorCode = NoError
		r.errorMsg = ""
	}
	r.done = true
	callbacks := r.callbacks
	r.callbacks = nil
	close(r.finished)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Finished returns a channel that is closed once the reply is complete.
func (r *Reply[T]) Finished() <-chan struct{} {
	return r.finished
}

// OnFinished registers fn to run once the reply is complete. If the reply is
// already complete fn runs on a new goroutine.
func (r *Reply[T]) OnFinished(fn func()) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		go fn()
		return
	}
	r.callbacks = append(r.callbacks, fn)
	r.mu.Unlock()
}

// Wait blocks until the reply is complete or ctx is done.
func (r *Reply[T]) Wait(ctx context.Context) error {
	select {
	case <-r.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsFinished reports whether the reply is complete.
func (r *Reply[T]) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// PendingOps returns the number of outstanding operations, or -1 before the
// reply has been armed.
func (r *Reply[T]) PendingOps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingOps
}

// Result returns a copy of the accumulated results.
func (r *Reply[T]) Result() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.results))
	copy(out, r.results)
	return out
}

func (r *Reply[T]) ErrorCode() ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCode
}

func (r *Reply[T]) ErrorMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorMsg
}
