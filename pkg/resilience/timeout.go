package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn with a derived deadline. A non-positive limit runs
// fn directly. The goroutine running fn is left to drain on its own when
// the deadline fires; fn must honor ctx cancellation to avoid leaking work.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}

	boundedCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(boundedCtx) }()

	select {
	case err := <-result:
		return err
	case <-boundedCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, limit)
	}
}
