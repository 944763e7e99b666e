// Package asyncval implements possibly-async values: a value that is either
// already available (any plain Go value) or still being computed (a
// *Deferred). Combinators compose both kinds uniformly and stay on the
// synchronous path whenever every input is already available, so an all-sync
// evaluation never allocates a Deferred or spawns a goroutine.
package asyncval

import (
	"context"
	"sync"
)

// Deferred is a value that becomes available at some later point. A Deferred
// is completed exactly once; further completions are ignored.
type Deferred struct {
	done chan struct{}
	once sync.Once

	value any
	err   error
}

// New returns an unresolved Deferred. Complete it with Complete.
func New() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Complete resolves d with the given value and error.
func (d *Deferred) Complete(value any, err error) {
	d.once.Do(func() {
		d.value = value
		d.err = err
		close(d.done)
	})
}

// Wait blocks until d is completed or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Go runs f in a new goroutine and returns a Deferred completed with its
// result. If f returns a *Deferred, the outer Deferred adopts its outcome.
func Go(f func() (any, error)) *Deferred {
	d := New()
	go func() {
		v, err := f()
		if err == nil {
			if inner, ok := v.(*Deferred); ok {
				v, err = inner.Wait(context.Background())
			}
		}
		d.Complete(v, err)
	}()
	return d
}

// Resolved returns an already-completed Deferred.
func Resolved(value any, err error) *Deferred {
	d := New()
	d.Complete(value, err)
	return d
}

// IsDeferred reports whether v is a *Deferred.
func IsDeferred(v any) bool {
	_, ok := v.(*Deferred)
	return ok
}

// Map applies f to v. If v is available, f runs immediately and its result is
// returned as-is, so a synchronous input yields a synchronous output. If v is
// a Deferred, Map returns a new Deferred that applies f once v completes.
// A Deferred returned by f is flattened in both branches.
func Map(ctx context.Context, v any, f func(any) (any, error)) (any, error) {
	d, ok := v.(*Deferred)
	if !ok {
		return f(v)
	}
	return Go(func() (any, error) {
		rv, err := d.Wait(ctx)
		if err != nil {
			return nil, err
		}
		return f(rv)
	}), nil
}

// Await forces v to a plain value, waiting on any chain of Deferreds.
func Await(ctx context.Context, v any) (any, error) {
	for {
		d, ok := v.(*Deferred)
		if !ok {
			return v, nil
		}
		var err error
		v, err = d.Wait(ctx)
		if err != nil {
			return nil, err
		}
	}
}

// All combines vs into a single possibly-async slice. When no element is a
// Deferred the input slice is returned unchanged. Otherwise All returns a
// Deferred that resolves to the slice with every element awaited, preserving
// positional order. The first element failure fails the whole combination.
func All(ctx context.Context, vs []any) any {
	async := false
	for _, v := range vs {
		if IsDeferred(v) {
			async = true
			break
		}
	}
	if !async {
		return vs
	}
	return Go(func() (any, error) {
		out := make([]any, len(vs))
		for i, v := range vs {
			rv, err := Await(ctx, v)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	})
}
