package helper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds an exponential backoff: at most MaxRetries retries after
// the first attempt, waits doubling from InitialInterval up to MaxInterval.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used for object storage calls:
// three attempts, 1s then 2s apart.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      2,
	InitialInterval: time.Second,
	MaxInterval:     4 * time.Second,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op until it succeeds, returns a permanent error, the context is
// done or the policy is exhausted. It reports how many times op ran.
func Retry(ctx context.Context, p RetryPolicy, name string, op func(ctx context.Context) error) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", name).Int("attempt", attempts).Dur("wait", wait).Msg("retrying")
	})
	return attempts, err
}
