package xmediator

import (
	"context"
	"fmt"
	"time"
)

// RecoveryMiddleware prevents subscriber panics from crashing dispatch and
// converts them into errors.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, e *Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, e)
		}
	}
}

// TimeoutMiddleware enforces a maximum processing time for a handler. When
// exceeded, it returns context.DeadlineExceeded; the handler goroutine keeps
// running until it observes ctx and is not preempted.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, e *Event) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						errCh <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
					}
				}()
				errCh <- next(tctx, e)
			}()

			select {
			case <-tctx.Done():
				return tctx.Err()
			case err := <-errCh:
				return err
			}
		}
	}
}

// Chain composes middlewares around a handler in order: the first middleware
// wraps the last.
func Chain(h Handler, mws ...Middleware) Handler {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
