package processor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the backoff applied to transient processor failures.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig keeps the whole retry budget under half a minute so an
// inbound API call never hangs on the processor.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  25 * time.Second,
	}
}

// WithRetry wraps a Processor so transient failures are retried with
// exponential backoff. Permanent failures pass through untouched.
func WithRetry(p Processor, cfg RetryConfig) Processor {
	return &retrying{inner: p, cfg: cfg}
}

type retrying struct {
	inner Processor
	cfg   RetryConfig
}

func (r *retrying) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

func retry[T any](ctx context.Context, r *retrying, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, r.backoff(ctx))
}

func (r *retrying) CreateAuthorization(ctx context.Context, params AuthorizationParams) (Intent, error) {
	return retry(ctx, r, func() (Intent, error) {
		return r.inner.CreateAuthorization(ctx, params)
	})
}

func (r *retrying) RetrieveAuthorization(ctx context.Context, intentRef string) (Intent, error) {
	return retry(ctx, r, func() (Intent, error) {
		return r.inner.RetrieveAuthorization(ctx, intentRef)
	})
}

func (r *retrying) Capture(ctx context.Context, intentRef string) (CaptureReceipt, error) {
	return retry(ctx, r, func() (CaptureReceipt, error) {
		return r.inner.Capture(ctx, intentRef)
	})
}

func (r *retrying) CancelAuthorization(ctx context.Context, intentRef string) error {
	_, err := retry(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.inner.CancelAuthorization(ctx, intentRef)
	})
	return err
}

func (r *retrying) Refund(ctx context.Context, intentRef string, amount float64) (RefundReceipt, error) {
	return retry(ctx, r, func() (RefundReceipt, error) {
		return r.inner.Refund(ctx, intentRef, amount)
	})
}
