// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/httputil"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// retryBaseDelay overrides RetryConfig.BaseDelay when positive. Tests set it
// to avoid real sleeps.
var retryBaseDelay time.Duration

// retrying wraps a Provider and retries KindRetriable failures with capped
// exponential backoff and jitter. Every other outcome returns immediately.
type retrying struct {
	Provider
	cfg types.RetryConfig
	log zerolog.Logger
}

// WithRetry decorates p with the retry policy in cfg. Zero fields take the
// defaults: 4 attempts, 1s base, 20s cap, 0.35 jitter.
func WithRetry(p Provider, cfg types.RetryConfig) Provider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 20 * time.Second
	}
	if cfg.Jitter <= 0 {
		cfg.Jitter = 0.35
	}
	return &retrying{Provider: p, cfg: cfg, log: logx.With("llm")}
}

func (r *retrying) Complete(ctx context.Context, req Request) (string, error) {
	base := r.cfg.BaseDelay
	if retryBaseDelay > 0 {
		base = retryBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := httputil.Backoff(attempt-1, base, r.cfg.MaxDelay, r.cfg.Jitter)
			r.log.Warn().Err(lastErr).Str("provider", r.Name()).Int("attempt", attempt+1).
				Dur("delay", delay).Msg("retrying provider call")
			if err := httputil.Sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		text, err := r.Provider.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if KindOf(err) != KindRetriable {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
