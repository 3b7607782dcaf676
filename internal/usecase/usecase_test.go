package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"shopchat/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

// --- Mocks ---

// scriptedLLM replays a fixed sequence of responses and records every
// request it receives.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	requests  []domain.ChatRequest
	err       error
	callIdx   int
}

func (m *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.callIdx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	resp := m.responses[m.callIdx]
	m.callIdx++
	return &resp, nil
}

func (m *scriptedLLM) Name() string { return "scripted" }

func (m *scriptedLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedLLM) request(i int) domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func textReply(text string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: text},
	}
}

func handoffReply(target string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: "call-1", Name: handoffToolPrefix + target},
			},
		},
	}
}

func toolCallReply(toolName string, args string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{
			Role: domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{
				{ID: "call-1", Name: toolName, Arguments: json.RawMessage(args)},
			},
		},
	}
}

type mockToolExecutor struct {
	tools map[string]domain.Tool
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	var out []domain.ToolSchema
	for _, t := range m.tools {
		out = append(out, t.Schema())
	}
	return out
}

type staticTool struct {
	name   string
	result string
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *staticTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{Content: t.result}, nil
}

type errorTool struct {
	name string
}

func (t *errorTool) Name() string        { return t.name }
func (t *errorTool) Description() string { return "error test tool" }
func (t *errorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name}
}
func (t *errorTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return nil, fmt.Errorf("boom")
}

// --- Fixtures ---

func paintShopSpecialists() []domain.Specialist {
	return []domain.Specialist{
		{Name: "triage", Capability: "routing", Instructions: "You are the triage agent.", Orchestrator: true},
		{Name: "product", Capability: "product questions", Instructions: "You are the product expert.", Tools: []string{"search_products"}},
		{Name: "order", Capability: "order lookups", Instructions: "You are the order agent.", Tools: []string{"order_status"}},
	}
}

func paintShopEdges() []domain.HandoffEdge {
	return []domain.HandoffEdge{
		{Source: "triage", Target: "product", Label: "product availability and pricing"},
		{Source: "triage", Target: "order", Label: "order status and delivery"},
		{Source: "product", Target: "triage", Label: "anything outside products"},
		{Source: "order", Target: "triage", Label: "anything outside orders"},
	}
}

func paintShopGraph(t *testing.T) *HandoffGraph {
	t.Helper()
	g, err := BuildGraph(paintShopSpecialists(), paintShopEdges())
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	return g
}

func newTestAffinity(t *testing.T, capacity int) *AffinityCache {
	t.Helper()
	c, err := NewAffinityCache(capacity, defaultTestTTL, testLogger())
	if err != nil {
		t.Fatalf("NewAffinityCache: %v", err)
	}
	return c
}

func newTestRuntime(t *testing.T, llm domain.LLMProvider, tools domain.ToolExecutor) (*Runtime, *AffinityCache) {
	t.Helper()
	cache := newTestAffinity(t, 16)
	rt, err := NewRuntime(RuntimeDeps{
		LLM:           llm,
		Tools:         tools,
		Graph:         paintShopGraph(t),
		Affinity:      cache,
		Logger:        testLogger(),
		MaxIterations: 8,
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return rt, cache
}
