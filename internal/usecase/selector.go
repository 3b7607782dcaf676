package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"shopchat/internal/domain"
)

// defaultApology is returned when every tier fails in one turn.
const defaultApology = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// TierConstructor builds one tier's responder. Called at most once per
// tier; a returned error marks the tier permanently unavailable.
type TierConstructor func(ctx context.Context) (domain.Responder, error)

type tierSlot struct {
	name      string
	construct TierConstructor

	once      sync.Once
	responder domain.Responder
	err       error
}

func (t *tierSlot) get(ctx context.Context) (domain.Responder, error) {
	t.once.Do(func() {
		t.responder, t.err = t.construct(ctx)
	})
	return t.responder, t.err
}

// Selector ranks the degradation tiers and answers every turn from the
// best tier that works. Tiers are constructed lazily on first use; a tier
// whose constructor fails is skipped for the life of the process, while a
// per-call failure only skips the tier for that turn. When all tiers fail
// the selector answers with the apology, so Respond is total.
type Selector struct {
	tiers   []*tierSlot
	apology string
	logger  *slog.Logger
}

// NewSelector creates a selector with no tiers. Add tiers best-first.
func NewSelector(apology string, logger *slog.Logger) *Selector {
	if apology == "" {
		apology = defaultApology
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{apology: apology, logger: logger}
}

// AddTier appends a tier at the next-lower rank.
func (s *Selector) AddTier(name string, construct TierConstructor) {
	s.tiers = append(s.tiers, &tierSlot{name: name, construct: construct})
}

// Respond answers one turn from the highest-ranked working tier.
func (s *Selector) Respond(ctx context.Context, req domain.TurnRequest) *domain.TurnResult {
	for _, slot := range s.tiers {
		responder, err := slot.get(ctx)
		if err != nil {
			s.logger.Debug("tier unavailable", "tier", slot.name, "error", err)
			continue
		}

		result, err := responder.Respond(ctx, req)
		if err != nil {
			if !domain.IsTierFailure(err) {
				s.logger.Error("tier returned non-recoverable error",
					"tier", slot.name, "conversation_id", req.ConversationID, "error", err)
			} else {
				s.logger.Warn("tier failed, degrading",
					"tier", slot.name, "conversation_id", req.ConversationID, "error", err)
			}
			continue
		}
		if result == nil || result.Text == "" {
			s.logger.Warn("tier returned empty result, degrading",
				"tier", slot.name, "conversation_id", req.ConversationID)
			continue
		}
		return result
	}

	s.logger.Error("all tiers failed", "conversation_id", req.ConversationID)
	return &domain.TurnResult{
		Text:         s.apology,
		Messages:     []string{s.apology},
		AwaitingUser: false,
	}
}

// Close shuts down every tier that was constructed and implements a
// Close method. Tiers never touched stay untouched.
func (s *Selector) Close(ctx context.Context) error {
	var errs []error
	for _, slot := range s.tiers {
		if slot.responder == nil {
			continue
		}
		if closer, ok := slot.responder.(interface{ Close(context.Context) error }); ok {
			if err := closer.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
