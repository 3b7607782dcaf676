package usecase

import (
	"context"
	"strings"

	"shopchat/internal/domain"
)

// defaultFallback is used when no fallback reply is configured.
const defaultFallback = "Thanks for reaching out. Our support team is temporarily unavailable, please try again shortly or email support@shopchat.example."

// StaticRule maps trigger keywords to a canned reply.
type StaticRule struct {
	Keywords []string
	Reply    string
}

// StaticResponder is the last-resort tier: no backend, no state, just
// keyword-matched canned replies with a catch-all fallback. It never
// returns an error.
type StaticResponder struct {
	rules    []StaticRule
	fallback string
}

// NewStaticResponder creates the responder. Rules with no keywords or an
// empty reply are dropped; an empty fallback gets a built-in default.
func NewStaticResponder(rules []StaticRule, fallback string) *StaticResponder {
	if fallback == "" {
		fallback = defaultFallback
	}
	kept := make([]StaticRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Keywords) == 0 || r.Reply == "" {
			continue
		}
		kws := make([]string, len(r.Keywords))
		for i, k := range r.Keywords {
			kws[i] = strings.ToLower(k)
		}
		kept = append(kept, StaticRule{Keywords: kws, Reply: r.Reply})
	}
	return &StaticResponder{rules: kept, fallback: fallback}
}

var _ domain.Responder = (*StaticResponder)(nil)

// Name identifies the tier in selector logs.
func (sr *StaticResponder) Name() string { return "static" }

// Respond returns a canned reply. Total: every input gets a non-empty
// answer and the error is always nil.
func (sr *StaticResponder) Respond(_ context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	lowered := strings.ToLower(req.UserText)
	reply := sr.fallback
	for _, rule := range sr.rules {
		if matched := containsAny(lowered, rule.Keywords); matched {
			reply = rule.Reply
			break
		}
	}
	return &domain.TurnResult{
		Text:         reply,
		Messages:     []string{reply},
		AwaitingUser: EndsAwaitingUser(reply),
	}, nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
