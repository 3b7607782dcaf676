package usecase

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"shopchat/internal/domain"
)

// Compressor trims conversation history to fit a token budget before it is
// replayed into a specialist's context window. The newest keepRecent
// messages are always kept, so the budget only drops older context.
type Compressor struct {
	enc        *tiktoken.Tiktoken
	budget     int
	keepRecent int
	logger     *slog.Logger
}

// NewCompressor creates a compressor with the given token budget. A budget
// of zero or less disables trimming.
func NewCompressor(budget, keepRecent int, logger *slog.Logger) (*Compressor, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, domain.WrapOp("NewCompressor", err)
	}
	if keepRecent < 0 {
		keepRecent = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{enc: enc, budget: budget, keepRecent: keepRecent, logger: logger}, nil
}

// CountTokens returns the token count of text under the cl100k_base encoding.
func (c *Compressor) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Fit returns the longest suffix of history whose total token count stays
// within the budget, never shorter than keepRecent messages. The input is
// not modified.
func (c *Compressor) Fit(history []domain.Message) []domain.Message {
	if c.budget <= 0 || len(history) == 0 {
		return history
	}

	keep := c.keepRecent
	if keep > len(history) {
		keep = len(history)
	}

	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += c.CountTokens(history[i].Content)
		if total > c.budget && len(history)-i > keep {
			break
		}
		cut = i
	}

	if cut > 0 {
		c.logger.Debug("history trimmed to token budget",
			"dropped", cut, "kept", len(history)-cut, "budget", c.budget)
	}
	return history[cut:]
}
