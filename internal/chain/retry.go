package chain

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy is the single read-retry configuration shared by every chain
// read. Writes and receipt waits are never routed through it: re-sending a
// transaction risks double submission.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	Jitter      float64
}

// DefaultRetryPolicy returns the policy applied when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		Jitter:      0.5,
	}
}

// Normalized fills unset fields from the default policy. A zero MaxAttempts
// must never reach backoff: WithMaxTries(0) disables the attempt cap
// entirely instead of capping it.
func (p RetryPolicy) Normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Jitter <= 0 {
		p.Jitter = def.Jitter
	}
	return p
}

// IsRetryable reports whether an error is a rate-limit response. Only those
// are retried; everything else propagates immediately.
func (p RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate")
}

// retry runs op under the policy, converting non-retryable errors to
// permanent ones so backoff stops immediately.
func retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, op func() (T, error)) (T, error) {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = p.BaseDelay
	backoffPolicy.MaxInterval = p.BaseDelay * 16
	backoffPolicy.RandomizationFactor = p.Jitter

	notify := func(err error, duration time.Duration) {
		logger.Debug("Retrying chain read after rate limit",
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	classified := func() (T, error) {
		value, err := op()
		if err != nil && !p.IsRetryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	return backoff.Retry(ctx, classified,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(notify))
}
