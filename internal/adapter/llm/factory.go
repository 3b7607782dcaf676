package llm

import (
	"fmt"
	"log/slog"

	"shopchat/internal/domain"
	"shopchat/internal/infra/config"
)

// NewProvider builds the configured default provider and wraps it with the
// resilience layers. Wrapping order is rate limiter outside the circuit
// breaker, so throttled waits never count as breaker failures.
func NewProvider(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	pc, err := defaultProviderConfig(cfg)
	if err != nil {
		return nil, err
	}

	var provider domain.LLMProvider
	switch pc.Type {
	case "openai":
		provider = NewOpenAIProvider(pc, logger)
	case "ollama":
		provider = NewOllamaProvider(pc, logger)
	case "bedrock":
		provider, err = NewBedrockProvider(pc, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrConfiguration,
			fmt.Sprintf("unknown provider type %q", pc.Type))
	}

	if cfg.CircuitBreaker.Enabled {
		provider = NewCircuitBreakerProvider(provider, cfg.CircuitBreaker, logger)
	}
	if cfg.RateLimit.Enabled {
		provider = NewRateLimitedProvider(provider, cfg.RateLimit, logger)
	}

	logger.Info("llm provider ready", "provider", provider.Name(), "type", pc.Type,
		"circuit_breaker", cfg.CircuitBreaker.Enabled, "rate_limit", cfg.RateLimit.Enabled)
	return provider, nil
}

func defaultProviderConfig(cfg config.LLMConfig) (config.ProviderConfig, error) {
	if len(cfg.Providers) == 0 {
		return config.ProviderConfig{}, domain.NewDomainError("llm.NewProvider",
			domain.ErrProviderNotFound, "no providers configured")
	}
	if cfg.DefaultProvider == "" {
		return cfg.Providers[0], nil
	}
	for _, pc := range cfg.Providers {
		if pc.Name == cfg.DefaultProvider {
			return pc, nil
		}
	}
	return config.ProviderConfig{}, domain.NewDomainError("llm.NewProvider",
		domain.ErrProviderNotFound, cfg.DefaultProvider)
}
