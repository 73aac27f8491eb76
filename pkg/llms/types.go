package llms

import (
	"context"
)

// Message roles on the chat wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single chat turn. Assistant messages may carry tool
// calls; tool messages must reference the call they answer via
// ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is an LLM-issued function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable function to the model, in the
// OpenAI tools format.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the JSON-schema description of one function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token accounting from the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatOptions overrides per-request parameters. Zero fields fall back
// to the provider's configured defaults.
type ChatOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Provider is an LLM chat endpoint.
type Provider interface {
	// Chat runs a plain completion and returns the assistant message.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Message, error)

	// ChatWithTools runs a completion with function calling enabled.
	// The returned message may contain tool calls instead of content.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDefinition, opts *ChatOptions) (*Message, error)
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage answers the tool call identified by callID.
func ToolMessage(content, callID, name string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// Temperature is a convenience for building ChatOptions literals.
func Temperature(t float64) *float64 {
	return &t
}

// PruneOrphanToolMessages drops tool messages whose tool_call_id does
// not match a tool call in a preceding assistant message. Windowed
// history can cut an assistant/tool pair in half, and OpenAI-compatible
// endpoints reject the orphaned tool message outright.
func PruneOrphanToolMessages(messages []Message) []Message {
	known := make(map[string]bool)
	pruned := make([]Message, 0, len(messages))

	for _, m := range messages {
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				known[tc.ID] = true
			}
		}
		if m.Role == RoleTool && !known[m.ToolCallID] {
			continue
		}
		pruned = append(pruned, m)
	}

	return pruned
}
