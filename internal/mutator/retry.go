package mutator

import (
	"context"
	"log/slog"

	"github.com/lepinkainen/backlogsync/internal/errors"
)

// RetryOnConflict runs fn and, while it fails with a conflict, runs it again
// up to retries more times. Every other outcome is returned immediately.
// Each attempt must re-read the document, which Apply and the intents do.
func RetryOnConflict(ctx context.Context, retries int, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if !errors.IsConflictError(err) || attempt >= retries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Info("Write conflicted, retrying with a fresh read", "attempt", attempt+1, "of", retries)
	}
}
