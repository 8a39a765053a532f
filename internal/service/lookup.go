package service

import (
	"context"
	"fmt"
	"time"
)

// boundedLookup runs fn under a timeout and returns when fn answers or the
// timeout fires, whichever is first. A source that ignores its context is
// left to finish in the background. Panics are converted to errors.
func boundedLookup[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (*T, error)) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		val *T
		err error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- answer{err: fmt.Errorf("%s panicked: %v", name, p)}
			}
		}()
		val, err := fn(ctx)
		done <- answer{val: val, err: err}
	}()

	select {
	case a := <-done:
		return a.val, a.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
