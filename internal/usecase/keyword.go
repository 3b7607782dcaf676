package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"shopchat/internal/domain"
	"shopchat/internal/infra/tracer"
)

// KeywordRule maps a set of trigger keywords to a specialist role.
type KeywordRule struct {
	Keywords []string
	Role     string
}

// KeywordRouter picks a specialist by substring match against the user
// text. First matching rule wins; rules are checked in declaration order.
type KeywordRouter struct {
	rules       []KeywordRule
	defaultRole string
}

// NewKeywordRouter creates a router. Keywords are matched case-insensitively.
func NewKeywordRouter(rules []KeywordRule, defaultRole string) (*KeywordRouter, error) {
	if defaultRole == "" {
		return nil, domain.NewDomainError("NewKeywordRouter", domain.ErrConfiguration, "empty default role")
	}
	lowered := make([]KeywordRule, 0, len(rules))
	for _, r := range rules {
		if r.Role == "" || len(r.Keywords) == 0 {
			return nil, domain.NewDomainError("NewKeywordRouter", domain.ErrConfiguration, "incomplete keyword rule")
		}
		kws := make([]string, len(r.Keywords))
		for i, k := range r.Keywords {
			kws[i] = strings.ToLower(k)
		}
		lowered = append(lowered, KeywordRule{Keywords: kws, Role: r.Role})
	}
	return &KeywordRouter{rules: lowered, defaultRole: defaultRole}, nil
}

// Route returns the specialist role for the given user text.
func (kr *KeywordRouter) Route(text string) string {
	lowered := strings.ToLower(text)
	for _, rule := range kr.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				return rule.Role
			}
		}
	}
	return kr.defaultRole
}

// KeywordTierDeps holds injected dependencies for the keyword tier.
type KeywordTierDeps struct {
	Router      *KeywordRouter
	LLM         domain.LLMProvider
	Tools       domain.ToolExecutor
	Specialists []domain.Specialist
	Compressor  *Compressor // optional
	Logger      *slog.Logger
}

// KeywordTier is the degraded middle tier: route once by keyword, call a
// single specialist with at most one round of tool calls, no handoffs, no
// affinity. It carries its own specialist definitions so it stays usable
// when full orchestration cannot be constructed.
type KeywordTier struct {
	deps        KeywordTierDeps
	specialists map[string]domain.Specialist
}

// NewKeywordTier validates dependencies and creates the tier.
func NewKeywordTier(deps KeywordTierDeps) (*KeywordTier, error) {
	const op = "NewKeywordTier"
	if deps.Router == nil {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration, "nil router")
	}
	if deps.LLM == nil {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration, "nil LLM provider")
	}
	if len(deps.Specialists) == 0 {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration, "no specialists")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	byName := make(map[string]domain.Specialist, len(deps.Specialists))
	for _, s := range deps.Specialists {
		byName[s.Name] = s
	}
	if _, ok := byName[deps.Router.defaultRole]; !ok {
		return nil, domain.NewDomainError(op, domain.ErrConfiguration,
			"router default role is not a declared specialist")
	}
	return &KeywordTier{deps: deps, specialists: byName}, nil
}

var _ domain.Responder = (*KeywordTier)(nil)

// Name identifies the tier in selector logs.
func (kt *KeywordTier) Name() string { return "keyword" }

// Respond routes the turn to one specialist and runs a single bounded
// exchange: one chat call, optionally one round of tool execution, then
// one forced final call without tools.
func (kt *KeywordTier) Respond(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	const op = "KeywordTier.Respond"

	ctx, span := tracer.StartSpan(ctx, "keyword.respond",
		trace.WithAttributes(tracer.StringAttr("conversation.id", req.ConversationID)),
	)
	defer span.End()

	role := kt.deps.Router.Route(req.UserText)
	spec, ok := kt.specialists[role]
	if !ok {
		spec = kt.specialists[kt.deps.Router.defaultRole]
		role = spec.Name
	}
	span.SetAttributes(tracer.StringAttr("turn.role", role))
	kt.deps.Logger.Debug("keyword routed turn",
		"conversation_id", req.ConversationID, "role", role)

	history := req.History
	if kt.deps.Compressor != nil {
		history = kt.deps.Compressor.Fit(history)
	}
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: spec.Instructions, Timestamp: time.Now()})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: req.UserText, Timestamp: time.Now()})

	resp, err := kt.deps.LLM.Chat(ctx, domain.ChatRequest{
		Messages: msgs,
		Tools:    kt.schemasFor(spec),
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewDomainError(op, domain.ErrBackendInvocation, err.Error())
	}

	assistant := resp.Message
	if len(assistant.ToolCalls) > 0 && kt.deps.Tools != nil {
		msgs = append(msgs, assistant)
		for _, call := range assistant.ToolCalls {
			msgs = append(msgs, kt.executeTool(ctx, call))
		}
		// Final call without tools so the model must answer in prose.
		resp, err = kt.deps.LLM.Chat(ctx, domain.ChatRequest{Messages: msgs})
		if err != nil {
			tracer.RecordError(span, err)
			return nil, domain.NewDomainError(op, domain.ErrBackendInvocation, err.Error())
		}
		assistant = resp.Message
	}

	text := strings.TrimSpace(assistant.Content)
	if text == "" {
		err := domain.NewDomainError(op, domain.ErrBackendInvocation, "specialist produced no reply")
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return &domain.TurnResult{
		Text:         text,
		Messages:     []string{text},
		AwaitingUser: EndsAwaitingUser(text),
	}, nil
}

func (kt *KeywordTier) schemasFor(spec domain.Specialist) []domain.ToolSchema {
	if kt.deps.Tools == nil {
		return nil
	}
	var schemas []domain.ToolSchema
	for _, name := range spec.Tools {
		tool, err := kt.deps.Tools.Get(name)
		if err != nil {
			continue
		}
		schemas = append(schemas, tool.Schema())
	}
	return schemas
}

func (kt *KeywordTier) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	tool, err := kt.deps.Tools.Get(call.Name)
	if err != nil {
		return toolResultMessage(call, "tool "+call.Name+" is not available")
	}
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		kt.deps.Logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		return toolResultMessage(call, "tool "+call.Name+" failed: "+err.Error())
	}
	return toolResultMessage(call, result.Content)
}
