package jobstore

import (
	"context"
	"time"

	"github.com/cuemby/jobflow/pkg/log"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds how a backend operation wrapper retries an error for
// which Temporary(err) is true.
type RetryPolicy struct {
	MaxAttempts int
	// Limiter paces retry attempts at a fixed rate; the wait between
	// attempts does not grow from one retry to the next.
	Limiter *rate.Limiter
}

// DefaultRetryPolicy makes up to 5 attempts (the first call plus at most 4
// retries of a transient error), waiting for
// tokens from a limiter that admits roughly one attempt every 200ms with a
// burst of 1, which in practice yields a short, bounded backoff before
// giving up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// Do runs op, retrying while it returns a Temporary error, up to
// MaxAttempts, pacing attempts through Limiter. A non-transient error (or
// a nil error) returns immediately. Context cancellation aborts the wait
// between attempts.
func (p RetryPolicy) Do(ctx context.Context, component string, op func() error) error {
	logger := log.WithComponent(component)
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !Temporary(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying transient backend error")
		if waitErr := p.Limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
	}
	return err
}
