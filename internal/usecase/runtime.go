package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"shopchat/internal/domain"
	"shopchat/internal/infra/tracer"
)

// handoffToolPrefix marks the synthesized tools a specialist calls to
// transfer the turn to another specialist.
const handoffToolPrefix = "transfer_to_"

// handoffToolParams is the argument schema for handoff tools. Routing is
// carried by the tool name; no arguments are needed.
var handoffToolParams = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)

// RuntimeDeps holds injected dependencies for the orchestration runtime.
type RuntimeDeps struct {
	LLM            domain.LLMProvider
	Tools          domain.ToolExecutor
	Graph          *HandoffGraph
	Affinity       *AffinityCache
	Compressor     *Compressor // optional, nil = no history trimming
	Logger         *slog.Logger
	MaxIterations  int
	FollowUpMarker string
}

// Runtime drives one conversation turn through the specialist graph:
// pick the entry specialist via the affinity cache, run its tool loop,
// follow at most one handoff, and record the serving specialist back
// into the cache on success.
type Runtime struct {
	deps RuntimeDeps
}

// NewRuntime validates dependencies and creates the runtime.
func NewRuntime(deps RuntimeDeps) (*Runtime, error) {
	if deps.LLM == nil {
		return nil, domain.NewDomainError("NewRuntime", domain.ErrConfiguration, "nil LLM provider")
	}
	if deps.Graph == nil {
		return nil, domain.NewDomainError("NewRuntime", domain.ErrConfiguration, "nil handoff graph")
	}
	if deps.Affinity == nil {
		return nil, domain.NewDomainError("NewRuntime", domain.ErrConfiguration, "nil affinity cache")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 8
	}
	if deps.FollowUpMarker == "" {
		deps.FollowUpMarker = "[follow-up] "
	}
	return &Runtime{deps: deps}, nil
}

var _ domain.Responder = (*Runtime)(nil)

// Name identifies the tier in selector logs.
func (r *Runtime) Name() string { return "orchestration" }

// Close releases all cached specialist threads.
func (r *Runtime) Close(ctx context.Context) error {
	return r.deps.Affinity.Close(ctx)
}

// RoleThread is the per-(conversation, specialist) backend handle cached
// by the affinity cache. It carries the running message transcript for
// that specialist so a follow-up turn resumes with full context.
type RoleThread struct {
	mu       sync.Mutex
	role     string
	messages []domain.Message
}

// NewRoleThread creates a thread for the given specialist role.
func NewRoleThread(role string) *RoleThread {
	return &RoleThread{role: role}
}

// Role returns the specialist role this thread belongs to.
func (t *RoleThread) Role() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.role
}

// Snapshot returns a copy of the transcript.
func (t *RoleThread) Snapshot() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Replace swaps the transcript for a new one.
func (t *RoleThread) Replace(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = messages
}

// Release drops the transcript. Implements domain.ReleasableHandle.
func (t *RoleThread) Release(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	return nil
}

var _ domain.ReleasableHandle = (*RoleThread)(nil)

// Respond processes one turn under full orchestration.
func (r *Runtime) Respond(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	const op = "Runtime.Respond"
	turnID := generateTurnID(time.Now())

	ctx, span := tracer.StartSpan(ctx, "runtime.respond",
		trace.WithAttributes(
			tracer.StringAttr("turn.id", turnID),
			tracer.StringAttr("conversation.id", req.ConversationID),
		),
	)
	defer span.End()

	entry, thread, followUp := r.entryPoint(req.ConversationID)
	span.SetAttributes(tracer.StringAttr("turn.entry_role", entry))

	userText := req.UserText
	if followUp {
		userText = r.deps.FollowUpMarker + req.UserText
	}

	r.deps.Logger.Debug("turn started",
		"turn_id", turnID,
		"conversation_id", req.ConversationID,
		"entry_role", entry,
		"follow_up", followUp,
	)

	msgs := r.openingMessages(entry, thread, req.History, userText)

	current := entry
	hops := 0
	var emitted []string
	var totalUsage domain.Usage

	for i := 0; i < r.deps.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return nil, domain.NewDomainError(op, domain.ErrTimeout, err.Error())
		}
		span.AddEvent("runtime.iteration", trace.WithAttributes(
			tracer.IntAttr("iteration", i),
			tracer.StringAttr("role", current),
		))

		resp, err := r.deps.LLM.Chat(ctx, domain.ChatRequest{
			Messages: msgs,
			Tools:    r.toolSchemasFor(current),
		})
		if err != nil {
			tracer.RecordError(span, err)
			r.deps.Logger.Warn("specialist backend call failed",
				"turn_id", turnID, "role", current, "error", err)
			return nil, domain.NewDomainError(op, domain.ErrBackendInvocation, err.Error())
		}

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		assistant := resp.Message
		assistant.Role = domain.RoleAssistant
		msgs = append(msgs, assistant)
		if s := strings.TrimSpace(assistant.Content); s != "" {
			emitted = append(emitted, s)
		}

		if len(assistant.ToolCalls) == 0 {
			break
		}

		stop := false
		for _, call := range assistant.ToolCalls {
			if target, isHandoff := handoffTarget(call.Name); isHandoff {
				if !r.deps.Graph.Allows(current, target) {
					err := domain.NewDomainError(op, domain.ErrRoutingViolation,
						fmt.Sprintf("%s -> %s", current, target))
					tracer.RecordError(span, err)
					return nil, err
				}
				if hops >= 1 {
					// One handoff per turn. If the target already produced
					// an answer, end the turn with it; otherwise ask the
					// specialist to answer directly.
					if len(emitted) > 0 {
						stop = true
						break
					}
					msgs = append(msgs, toolResultMessage(call,
						"Handoff limit reached for this turn. Answer the customer directly."))
					continue
				}
				hops++
				label, _ := r.deps.Graph.LabelFor(current, target)
				r.deps.Logger.Info("handoff",
					"turn_id", turnID,
					"conversation_id", req.ConversationID,
					"from", current,
					"to", target,
					"label", label,
				)
				span.AddEvent("runtime.handoff", trace.WithAttributes(
					tracer.StringAttr("from", current),
					tracer.StringAttr("to", target),
				))
				msgs = append(msgs, toolResultMessage(call,
					fmt.Sprintf("Transferred to %s: %s", target, label)))
				msgs[0] = r.systemMessage(target)
				current = target
				continue
			}

			msgs = append(msgs, r.executeTool(ctx, turnID, call))
		}
		if stop {
			break
		}
	}

	if len(emitted) == 0 {
		err := domain.NewDomainError(op, domain.ErrBackendInvocation,
			fmt.Sprintf("specialist %s produced no reply within %d iterations", current, r.deps.MaxIterations))
		tracer.RecordError(span, err)
		return nil, err
	}

	final := emitted[len(emitted)-1]
	awaiting := EndsAwaitingUser(final)

	// Persist the serving specialist's thread only after a successful turn,
	// so failed or cancelled turns never move the conversation's affinity.
	if thread == nil || thread.Role() != current {
		thread = NewRoleThread(current)
	}
	thread.Replace(msgs[1:])
	r.deps.Affinity.Put(req.ConversationID, current, thread)

	r.deps.Logger.Info("turn completed",
		"turn_id", turnID,
		"conversation_id", req.ConversationID,
		"role", current,
		"hops", hops,
		"awaiting_user", awaiting,
		"tokens", totalUsage.TotalTokens,
	)
	tracer.SetOK(span)

	return &domain.TurnResult{
		Text:         final,
		Messages:     emitted,
		AwaitingUser: awaiting,
	}, nil
}

// entryPoint decides which specialist opens the turn. A conversation
// returns to its last specialist only while that specialist's handle is
// still live in the cache; everything else starts at the orchestrator.
func (r *Runtime) entryPoint(conversationID string) (string, *RoleThread, bool) {
	orch := r.deps.Graph.Orchestrator()

	role, ok := r.deps.Affinity.LastRole(conversationID)
	if !ok || role == orch {
		return orch, nil, false
	}
	if _, known := r.deps.Graph.Specialist(role); !known {
		return orch, nil, false
	}
	handle, live := r.deps.Affinity.Get(conversationID, role)
	if !live {
		return orch, nil, false
	}
	thread, ok := handle.(*RoleThread)
	if !ok {
		return orch, nil, false
	}
	return role, thread, true
}

// openingMessages assembles the context for the entry specialist: its
// system prompt, either the cached thread or the (trimmed) caller-supplied
// history, then the user turn.
func (r *Runtime) openingMessages(entry string, thread *RoleThread, history []domain.Message, userText string) []domain.Message {
	msgs := []domain.Message{r.systemMessage(entry)}

	if thread != nil {
		msgs = append(msgs, thread.Snapshot()...)
	} else {
		if r.deps.Compressor != nil {
			history = r.deps.Compressor.Fit(history)
		}
		msgs = append(msgs, history...)
	}

	return append(msgs, domain.Message{
		Role:      domain.RoleUser,
		Content:   userText,
		Timestamp: time.Now(),
	})
}

func (r *Runtime) systemMessage(role string) domain.Message {
	spec, _ := r.deps.Graph.Specialist(role)
	return domain.Message{
		Role:      domain.RoleSystem,
		Content:   spec.Instructions,
		Timestamp: time.Now(),
	}
}

// toolSchemasFor returns the specialist's declared tools plus one
// synthesized handoff tool per outgoing graph edge. The edge label becomes
// the tool description so the model knows when to transfer.
func (r *Runtime) toolSchemasFor(role string) []domain.ToolSchema {
	spec, ok := r.deps.Graph.Specialist(role)
	if !ok {
		return nil
	}

	var schemas []domain.ToolSchema
	if r.deps.Tools != nil {
		for _, name := range spec.Tools {
			tool, err := r.deps.Tools.Get(name)
			if err != nil {
				r.deps.Logger.Warn("declared tool not registered", "role", role, "tool", name)
				continue
			}
			schemas = append(schemas, tool.Schema())
		}
	}

	for _, target := range r.deps.Graph.TargetsFor(role) {
		label, _ := r.deps.Graph.LabelFor(role, target)
		schemas = append(schemas, domain.ToolSchema{
			Name:        handoffToolPrefix + target,
			Description: label,
			Parameters:  handoffToolParams,
		})
	}
	return schemas
}

// executeTool runs one ordinary tool call. Tool errors never abort the
// turn: they come back as error-shaped tool results for the specialist to
// narrate.
func (r *Runtime) executeTool(ctx context.Context, turnID string, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "runtime.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	tool, err := r.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return toolResultMessage(call, fmt.Sprintf("tool %s is not available: %s", call.Name, err))
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		r.deps.Logger.Warn("tool execution failed",
			"turn_id", turnID, "tool", call.Name, "error", err)
		return toolResultMessage(call, fmt.Sprintf("tool %s failed: %s", call.Name, err))
	}
	if result.IsError {
		r.deps.Logger.Warn("tool returned error result",
			"turn_id", turnID, "tool", call.Name)
	}

	tracer.SetOK(span)
	return toolResultMessage(call, result.Content)
}

func toolResultMessage(call domain.ToolCall, content string) domain.Message {
	return domain.Message{
		Role:    domain.RoleTool,
		Name:    call.Name,
		Content: content,
		ToolCalls: []domain.ToolCall{{
			ID:   call.ID,
			Name: call.Name,
		}},
		Timestamp: time.Now(),
	}
}

// handoffTarget extracts the target specialist from a handoff tool name.
func handoffTarget(toolName string) (string, bool) {
	if !strings.HasPrefix(toolName, handoffToolPrefix) {
		return "", false
	}
	target := toolName[len(handoffToolPrefix):]
	return target, target != ""
}

// EndsAwaitingUser reports whether reply text ends the turn waiting on the
// customer: the trimmed final message ends with a question mark.
func EndsAwaitingUser(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?")
}

func generateTurnID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
