package llm

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"shopchat/internal/domain"
	"shopchat/internal/infra/config"
)

// RateLimitedProvider wraps an LLMProvider with a client-side token bucket
// so a burst of concurrent turns cannot trip the upstream 429 limiter.
// Waiting respects the caller's context deadline.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRateLimitedProvider wraps inner with the configured requests-per-second
// budget. Zero or negative rates disable limiting.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig, logger *slog.Logger) *RateLimitedProvider {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &RateLimitedProvider{inner: inner, limiter: limiter, logger: logger}
}

// Chat implements domain.LLMProvider. Blocks until a token is available or
// the context expires.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.logger.Warn("rate limit wait aborted", "provider", p.inner.Name(), "error", err)
			return nil, domain.NewDomainError("RateLimitedProvider.Chat", domain.ErrRateLimit, err.Error())
		}
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)
