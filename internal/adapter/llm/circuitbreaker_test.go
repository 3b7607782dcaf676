package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"shopchat/internal/domain"
	"shopchat/internal/infra/config"
)

// failingProvider always fails until healthy is flipped.
type failingProvider struct {
	healthy atomic.Bool
	calls   atomic.Int32
}

func (p *failingProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	p.calls.Add(1)
	if !p.healthy.Load() {
		return nil, fmt.Errorf("upstream down")
	}
	return &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: "ok"},
	}, nil
}

func (p *failingProvider) Name() string { return "failing" }

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingProvider{}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, testLogger())

	ctx := context.Background()
	req := domain.ChatRequest{}

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(ctx, req); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	// Open circuit fails fast without touching the provider.
	before := inner.calls.Load()
	if _, err := cb.Chat(ctx, req); err == nil {
		t.Fatal("expected fail-fast error")
	}
	if inner.calls.Load() != before {
		t.Error("open circuit still reached the provider")
	}
}

func TestCircuitBreakerRecovers(t *testing.T) {
	inner := &failingProvider{}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     20 * time.Millisecond,
	}, testLogger())

	ctx := context.Background()
	req := domain.ChatRequest{}

	cb.Chat(ctx, req)
	cb.Chat(ctx, req)
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	inner.healthy.Store(true)
	time.Sleep(30 * time.Millisecond)

	resp, err := cb.Chat(ctx, req)
	if err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("State = %v, want closed after probe", cb.State())
	}
}

func TestCircuitBreakerPassesSuccessThrough(t *testing.T) {
	inner := &failingProvider{}
	inner.healthy.Store(true)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, testLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if cb.Name() != "failing" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestRateLimitedProviderWaits(t *testing.T) {
	inner := &failingProvider{}
	inner.healthy.Store(true)
	rl := NewRateLimitedProvider(inner, config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		Burst:             1,
	}, testLogger())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := rl.Chat(ctx, domain.ChatRequest{}); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}
	// Burst 1 at 100 rps: two of the three calls must wait ~10ms each.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, expected rate limiting delay", elapsed)
	}
}

func TestRateLimitedProviderContextExpiry(t *testing.T) {
	inner := &failingProvider{}
	inner.healthy.Store(true)
	rl := NewRateLimitedProvider(inner, config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		Burst:             1,
	}, testLogger())

	ctx := context.Background()
	if _, err := rl.Chat(ctx, domain.ChatRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := rl.Chat(ctx, domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected context expiry error")
	}
}

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})
	if tr.MaxIdleConns != defaultMaxIdleConns {
		t.Errorf("MaxIdleConns = %d", tr.MaxIdleConns)
	}
	if tr.IdleConnTimeout != defaultIdleConnTimeout {
		t.Errorf("IdleConnTimeout = %v", tr.IdleConnTimeout)
	}
}

func TestNewProviderFactory(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "main",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai", Model: "gpt-test"},
		},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
	}
	p, err := NewProvider(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "main" {
		t.Errorf("Name = %q", p.Name())
	}
	if _, ok := p.(*CircuitBreakerProvider); !ok {
		t.Errorf("provider not wrapped with circuit breaker: %T", p)
	}
}

func TestNewProviderUnknownDefault(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "missing",
		Providers: []config.ProviderConfig{
			{Name: "main", Type: "openai"},
		},
	}
	_, err := NewProvider(cfg, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown default provider")
	}
}
