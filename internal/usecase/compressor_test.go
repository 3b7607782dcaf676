package usecase

import (
	"fmt"
	"strings"
	"testing"

	"shopchat/internal/domain"
)

func newTestCompressor(t *testing.T, budget, keepRecent int) *Compressor {
	t.Helper()
	c, err := NewCompressor(budget, keepRecent, testLogger())
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	return c
}

func TestCompressorCountTokens(t *testing.T) {
	c := newTestCompressor(t, 0, 0)
	if got := c.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(empty) = %d, want 0", got)
	}
	if got := c.CountTokens("hello world"); got <= 0 {
		t.Errorf("CountTokens = %d, want > 0", got)
	}
}

func TestCompressorDisabled(t *testing.T) {
	c := newTestCompressor(t, 0, 0)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: strings.Repeat("long message ", 500)},
	}
	if got := c.Fit(history); len(got) != 1 {
		t.Errorf("disabled compressor trimmed history: %d messages", len(got))
	}
}

func TestCompressorFitsWithinBudget(t *testing.T) {
	c := newTestCompressor(t, 50, 1)

	var history []domain.Message
	for i := 0; i < 20; i++ {
		history = append(history, domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("message number %d with a bit of padding text", i),
		})
	}

	fitted := c.Fit(history)
	if len(fitted) == 0 {
		t.Fatal("Fit returned empty history")
	}
	if len(fitted) >= len(history) {
		t.Errorf("Fit kept %d of %d messages, expected trimming", len(fitted), len(history))
	}
	// The newest message always survives.
	last := fitted[len(fitted)-1]
	if last.Content != history[len(history)-1].Content {
		t.Errorf("newest message dropped: %q", last.Content)
	}
	// Chronological order preserved: fitted is a suffix of history.
	offset := len(history) - len(fitted)
	for i, m := range fitted {
		if m.Content != history[offset+i].Content {
			t.Errorf("fitted[%d] = %q, not a suffix of history", i, m.Content)
		}
	}
}

func TestCompressorKeepRecentOverridesBudget(t *testing.T) {
	c := newTestCompressor(t, 1, 3)

	var history []domain.Message
	for i := 0; i < 10; i++ {
		history = append(history, domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("message %d is comfortably over one token", i),
		})
	}

	fitted := c.Fit(history)
	if len(fitted) < 3 {
		t.Errorf("Fit kept %d messages, keep_recent demands at least 3", len(fitted))
	}
}

func TestCompressorShortHistoryUntouched(t *testing.T) {
	c := newTestCompressor(t, 10000, 2)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	if got := c.Fit(history); len(got) != 2 {
		t.Errorf("Fit trimmed a history already under budget: %d messages", len(got))
	}
}
