package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// backoff retries a call with exponential waits and ±20% jitter. Scoring,
// task generation and transcription all share it.
type backoff struct {
	cfg RetryConfig
	log *zap.Logger
}

func newBackoff(cfg RetryConfig, log *zap.Logger) backoff {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	if log == nil {
		log = zap.NewNop()
	}
	return backoff{cfg: cfg, log: log}
}

func (b backoff) run(ctx context.Context, fn func() error) error {
	schemaRetried := false
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= b.cfg.MaxAttempts || !retryable(err, &schemaRetried) {
			return err
		}

		wait := b.delay(attempt, err)
		b.log.Info("retrying model call",
			zap.String("purpose", PurposeFrom(ctx)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delay is the wait after the given (1-based) failed attempt. A vendor
// Retry-After wins over the computed curve.
func (b backoff) delay(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	d := float64(b.cfg.InitialWait) * math.Pow(b.cfg.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(b.cfg.MaxWait))
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(d)
}

// RetryProvider retries transient Generate failures.
type RetryProvider struct {
	inner Provider
	b     backoff
}

// WithRetry wraps p. MaxAttempts below one means a single attempt.
func WithRetry(p Provider, cfg RetryConfig, log *zap.Logger) Provider {
	return &RetryProvider{inner: p, b: newBackoff(cfg, log)}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (resp *Response, err error) {
	err = r.b.run(ctx, func() error {
		resp, err = r.inner.Generate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }
