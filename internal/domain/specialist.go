package domain

import "context"

// Specialist is a named responder that owns one category of user intent.
// Immutable after registry construction.
type Specialist struct {
	Name         string   `json:"name"          yaml:"name"`
	Capability   string   `json:"capability"    yaml:"capability"`
	Instructions string   `json:"instructions"  yaml:"instructions"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Orchestrator bool     `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`
}

// HandoffEdge is a directed, labeled transition between two specialists.
// The label is the human-readable routing reason used for diagnostics.
type HandoffEdge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label"  yaml:"label"`
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	ConversationID string
	UserText       string
	History        []Message
}

// TurnResult is the outcome of one turn. Text is always the last element
// of Messages; Messages may carry commentary plus a final answer when a
// tier emits more than one assistant-visible message.
type TurnResult struct {
	Text         string
	Messages     []string
	AwaitingUser bool
}

// Responder is one backend tier implementation of the turn contract.
// Tiers are ranked by the selector; each must be safe for concurrent use
// across different conversation IDs.
type Responder interface {
	Name() string
	Respond(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// ReleasableHandle is implemented by affinity cache handles that hold
// backend-side resources. Release is best-effort: the cache logs and
// swallows release errors on eviction.
type ReleasableHandle interface {
	Release(ctx context.Context) error
}
