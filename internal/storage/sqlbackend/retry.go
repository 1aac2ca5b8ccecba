package sqlbackend

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const serverRetryMaxElapsed = 10 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError reports whether err looks like a transient connection
// blip worth retrying in server mode, rather than a real query failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "driver: bad connection"),
		strings.Contains(msg, "invalid connection"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"):
		return true
	}
	return false
}

// withRetry runs op with exponential backoff when in server mode; embedded
// mode has driver-level retry on open and is otherwise single-writer, so it
// runs op once.
func (b *Backend) withRetry(ctx context.Context, op func() error) error {
	if !b.serverMode {
		return op()
	}
	bo := newServerRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
