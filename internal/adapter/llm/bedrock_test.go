package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"shopchat/internal/domain"
)

type fakeConverseClient struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverseClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestBedrockChat(t *testing.T) {
	client := &fakeConverseClient{
		output: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberText{Value: "Your order has shipped."},
					},
				},
			},
			Usage: &types.TokenUsage{
				InputTokens:  aws.Int32(12),
				OutputTokens: aws.Int32(6),
			},
		},
	}
	p := newBedrockProviderWithClient("bedrock", "anthropic.claude-3-haiku", client, testLogger())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleUser, Content: "where is my order?"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Your order has shipped." {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", resp.Usage.TotalTokens)
	}

	// System prompt is lifted out of the message list.
	in := client.lastInput
	if len(in.System) != 1 {
		t.Fatalf("System blocks = %d, want 1", len(in.System))
	}
	if len(in.Messages) != 1 {
		t.Errorf("Messages = %d, want 1 (system excluded)", len(in.Messages))
	}
	if aws.ToString(in.ModelId) != "anthropic.claude-3-haiku" {
		t.Errorf("ModelId = %q", aws.ToString(in.ModelId))
	}
}

func TestBedrockToolUseRoundTrip(t *testing.T) {
	client := &fakeConverseClient{
		output: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberToolUse{
							Value: types.ToolUseBlock{
								ToolUseId: aws.String("tool-1"),
								Name:      aws.String("order_status"),
							},
						},
					},
				},
			},
		},
	}
	p := newBedrockProviderWithClient("bedrock", "model", client, testLogger())

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "order 1042?"}},
		Tools: []domain.ToolSchema{{
			Name:        "order_status",
			Description: "look up an order",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Name != "order_status" {
		t.Errorf("tool name = %q", resp.Message.ToolCalls[0].Name)
	}
	if client.lastInput.ToolConfig == nil || len(client.lastInput.ToolConfig.Tools) != 1 {
		t.Error("tool config was not forwarded")
	}
}

func TestBedrockToolResultMessage(t *testing.T) {
	m := domain.Message{
		Role:    domain.RoleTool,
		Name:    "order_status",
		Content: `{"status":"shipped"}`,
		ToolCalls: []domain.ToolCall{
			{ID: "tool-1", Name: "order_status"},
		},
	}
	msg := toBedrockMessage(m)
	if msg == nil {
		t.Fatal("toBedrockMessage returned nil")
	}
	if msg.Role != types.ConversationRoleUser {
		t.Errorf("Role = %v, tool results are sent as user messages", msg.Role)
	}
	block, ok := msg.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("block type = %T", msg.Content[0])
	}
	if aws.ToString(block.Value.ToolUseId) != "tool-1" {
		t.Errorf("ToolUseId = %q", aws.ToString(block.Value.ToolUseId))
	}
}
