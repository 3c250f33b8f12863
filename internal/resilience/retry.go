package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
)

// RetryConfig holds tuning knobs for a [Retrier].
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the first failure.
	// Default: 2.
	MaxRetries int

	// BaseDelay seeds the exponential backoff: retry n waits
	// BaseDelay × 2^n, so the first retry waits twice the base.
	// Default: 250ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 5s.
	MaxDelay time.Duration

	// AttemptTimeout bounds each individual attempt. An attempt that exceeds
	// it fails with [fault.Timeout] and is retried like any other transient
	// fault. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return cfg
}

// Retrier re-runs an operation on transient faults with exponential backoff.
//
// Only errors whose [fault.Kind] is transient (rate limits, server errors,
// network faults, timeouts) consume the retry budget. Permanent faults fail
// immediately, and cancellation of the caller's context aborts the loop
// without being recorded as a failure at all.
type Retrier struct {
	name string
	cfg  RetryConfig
}

// NewRetrier creates a Retrier named for log attribution. Zero-value config
// fields are replaced with defaults.
func NewRetrier(name string, cfg RetryConfig) *Retrier {
	return &Retrier{name: name, cfg: cfg.withDefaults()}
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// exhausted. It returns the number of retries consumed alongside the final
// error. fn receives a context carrying the per-attempt deadline; callers
// must pass that context down to provider calls.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	_, retries, err := DoWithResult(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return retries, err
}

// DoWithResult is [Retrier.Do] for operations that produce a value. This is a
// package-level function because Go does not support method-level type
// parameters.
func DoWithResult[R any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (R, error)) (R, int, error) {
	var zero R
	retries := 0
	for {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if r.cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		}
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, retries, nil
		}

		// The caller going away is not a provider failure. Surface it
		// untouched so the pipeline can tell superseded work from broken work.
		if ctx.Err() != nil {
			return zero, retries, fault.New(fault.Cancelled, r.name, ctx.Err())
		}
		if fault.IsCancelled(err) {
			return zero, retries, err
		}

		// An attempt that hit its own deadline is a transient timeout even
		// when the provider reported it as a bare context error.
		if attemptCtx.Err() != nil && fault.KindOf(err) == fault.Cancelled {
			err = fault.New(fault.Timeout, r.name, err)
		}
		if !fault.Transient(err) {
			return zero, retries, err
		}
		if retries >= r.cfg.MaxRetries {
			slog.Warn("retry budget exhausted",
				"op", r.name, "retries", retries, "error", err)
			return zero, retries, err
		}

		// Retry n waits BaseDelay × 2^n, counting from 1.
		delay := min(r.cfg.BaseDelay<<(retries+1), r.cfg.MaxDelay)
		retries++
		slog.Debug("retrying after transient fault",
			"op", r.name, "attempt", retries, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, retries, fault.New(fault.Cancelled, r.name, ctx.Err())
		}
	}
}
