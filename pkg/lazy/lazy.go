// Package lazy provides a memoized asynchronous initializer: the first Get
// runs the load, concurrent callers wait for that same load, and a
// successful value is kept for every later call. A failed load is not
// cached, so the next Get tries again.
package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const loadKey = "load"

// Loader memoizes the result of load.
type Loader[T any] struct {
	load  func(ctx context.Context) (T, error)
	group singleflight.Group

	mu     sync.Mutex
	value  T
	loaded bool
}

// New returns a Loader around load.
func New[T any](load func(ctx context.Context) (T, error)) *Loader[T] {
	return &Loader[T]{load: load}
}

// Get returns the memoized value, running load if no call has succeeded
// yet. A caller whose ctx ends while waiting gets ctx.Err(); the load itself
// keeps running for the other waiters.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	if v, ok := l.Peek(); ok {
		return v, nil
	}

	ch := l.group.DoChan(loadKey, func() (interface{}, error) {
		if v, ok := l.Peek(); ok {
			return v, nil
		}
		// Detached from the first caller so one impatient caller cannot
		// fail the load for everybody else.
		v, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		l.mu.Lock()
		l.value, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		// A nil interface value arrives as an untyped nil.
		v, _ := res.Val.(T)
		return v, nil
	}
}

// Peek returns the value if a load has already succeeded.
func (l *Loader[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}
