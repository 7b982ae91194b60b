package inference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nftcreator/internal/config"
)

// Retrying retries transient generation failures with bounded exponential
// backoff. Generation has no side effects, so repeating it is safe.
type Retrying struct {
	next   Generator
	cfg    config.RetryConfig
	logger *zap.Logger
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

func NewRetrying(next Generator, cfg config.RetryConfig, logger *zap.Logger) *Retrying {
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

func (r *Retrying) Generate(ctx context.Context, prompt string) (Image, error) {
	attempts := r.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	backoff := r.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		img, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !IsTransient(err) || i == attempts || ctx.Err() != nil {
			return Image{}, err
		}

		if r.OnRetry != nil {
			r.OnRetry(i, err)
		}
		sleep := backoff
		if r.cfg.MaxBackoff > 0 && sleep > r.cfg.MaxBackoff {
			sleep = r.cfg.MaxBackoff
		}
		r.logger.Warn("image generation failed, retrying",
			zap.Int("attempt", i),
			zap.Duration("backoff", sleep),
			zap.Error(err),
		)

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return Image{}, lastErr
		}

		if r.cfg.BackoffMultiplier > 1 {
			backoff = backoff * time.Duration(r.cfg.BackoffMultiplier)
		}
	}
	return Image{}, lastErr
}
