package tasks

import (
	"context"
	"log"
	"sync/atomic"
)

// Runner is a unit of work the Service can execute. Request is the only
// implementation.
type Runner interface {
	run(ctx context.Context)
	claim() bool
}

// Request runs a closure on a worker and publishes its result. The result
// is written before the completion flag is set, so a caller that observes
// Completed() == true may read Result() without further synchronisation.
type Request[T any] struct {
	name   string
	fn     func(ctx context.Context) T
	result T

	queued atomic.Bool
	done   atomic.Bool
	doneCh chan struct{}
}

// NewRequest wraps fn. name shows up in logs.
func NewRequest[T any](name string, fn func(ctx context.Context) T) *Request[T] {
	return &Request[T]{
		name:   name,
		fn:     fn,
		doneCh: make(chan struct{}),
	}
}

// Name returns the label given at construction
func (r *Request[T]) Name() string {
	return r.name
}

// Completed reports whether the result is ready. It never blocks.
func (r *Request[T]) Completed() bool {
	return r.done.Load()
}

// Result returns the value produced by the closure. Only meaningful once
// Completed returns true; a closure that panicked yields the zero value.
func (r *Request[T]) Result() T {
	return r.result
}

// Done is closed when the request completes.
func (r *Request[T]) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Request[T]) claim() bool {
	return r.queued.CompareAndSwap(false, true)
}

func (r *Request[T]) run(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("request %s panicked: %v", r.name, p)
		}
		r.done.Store(true)
		close(r.doneCh)
	}()
	r.result = r.fn(ctx)
}
