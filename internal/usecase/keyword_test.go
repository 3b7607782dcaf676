package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"shopchat/internal/domain"
)

func testKeywordRouter(t *testing.T) *KeywordRouter {
	t.Helper()
	kr, err := NewKeywordRouter([]KeywordRule{
		{Keywords: []string{"order", "delivery", "tracking"}, Role: "order"},
		{Keywords: []string{"paint", "brush", "price"}, Role: "product"},
	}, "triage")
	if err != nil {
		t.Fatalf("NewKeywordRouter: %v", err)
	}
	return kr
}

func TestKeywordRouterFirstRuleWins(t *testing.T) {
	kr := testKeywordRouter(t)

	cases := []struct {
		text string
		want string
	}{
		{"where is my order?", "order"},
		{"WHERE IS MY ORDER", "order"},
		{"how much is blue paint?", "product"},
		// "order" rule is declared first, so it wins on overlap.
		{"I want to order paint", "order"},
		{"hello there", "triage"},
	}
	for _, tc := range cases {
		if got := kr.Route(tc.text); got != tc.want {
			t.Errorf("Route(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestKeywordRouterRejectsEmptyDefault(t *testing.T) {
	_, err := NewKeywordRouter(nil, "")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestKeywordRouterRejectsIncompleteRule(t *testing.T) {
	_, err := NewKeywordRouter([]KeywordRule{{Keywords: nil, Role: "order"}}, "triage")
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func newTestKeywordTier(t *testing.T, llm domain.LLMProvider, tools domain.ToolExecutor) *KeywordTier {
	t.Helper()
	kt, err := NewKeywordTier(KeywordTierDeps{
		Router:      testKeywordRouter(t),
		LLM:         llm,
		Tools:       tools,
		Specialists: paintShopSpecialists(),
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewKeywordTier: %v", err)
	}
	return kt
}

func TestKeywordTierRoutesToSingleSpecialist(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		textReply("Your order 1042 ships tomorrow."),
	}}
	kt := newTestKeywordTier(t, llm, nil)

	result, err := kt.Respond(context.Background(), domain.TurnRequest{
		ConversationID: "conv-1",
		UserText:       "where is my order 1042?",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Text != "Your order 1042 ships tomorrow." {
		t.Errorf("Text = %q", result.Text)
	}
	if result.AwaitingUser {
		t.Error("statement reply should not await user")
	}

	req := llm.request(0)
	if req.Messages[0].Content != "You are the order agent." {
		t.Errorf("system prompt = %q, want order instructions", req.Messages[0].Content)
	}
	// No handoff tools in the degraded tier.
	for _, s := range req.Tools {
		if strings.HasPrefix(s.Name, handoffToolPrefix) {
			t.Errorf("degraded tier offered handoff tool %q", s.Name)
		}
	}
}

func TestKeywordTierSingleToolRound(t *testing.T) {
	tools := &mockToolExecutor{tools: map[string]domain.Tool{
		"order_status": &staticTool{name: "order_status", result: `{"status":"shipped"}`},
	}}
	llm := &scriptedLLM{responses: []domain.ChatResponse{
		toolCallReply("order_status", `{"order_id":"1042"}`),
		textReply("Order 1042 has shipped."),
	}}
	kt := newTestKeywordTier(t, llm, tools)

	result, err := kt.Respond(context.Background(), domain.TurnRequest{
		ConversationID: "conv-1",
		UserText:       "tracking for order 1042",
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Text != "Order 1042 has shipped." {
		t.Errorf("Text = %q", result.Text)
	}
	if llm.calls() != 2 {
		t.Fatalf("calls = %d, want 2", llm.calls())
	}
	// The forced final call carries no tools.
	if len(llm.request(1).Tools) != 0 {
		t.Error("final call should not offer tools")
	}
}

func TestKeywordTierBackendFailure(t *testing.T) {
	llm := &scriptedLLM{err: fmt.Errorf("upstream 502")}
	kt := newTestKeywordTier(t, llm, nil)

	_, err := kt.Respond(context.Background(), domain.TurnRequest{
		ConversationID: "conv-1",
		UserText:       "paint prices?",
	})
	if !errors.Is(err, domain.ErrBackendInvocation) {
		t.Fatalf("expected ErrBackendInvocation, got %v", err)
	}
}

func TestKeywordTierRejectsUnknownDefaultRole(t *testing.T) {
	kr, err := NewKeywordRouter(nil, "billing")
	if err != nil {
		t.Fatalf("NewKeywordRouter: %v", err)
	}
	_, err = NewKeywordTier(KeywordTierDeps{
		Router:      kr,
		LLM:         &scriptedLLM{},
		Specialists: paintShopSpecialists(),
		Logger:      testLogger(),
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
