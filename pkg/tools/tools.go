package tools

import (
	"context"
	"time"

	"github.com/lexhub/lexhub/pkg/llms"
)

// Tool is one callable capability exposed to agents through native
// function calling.
type Tool interface {
	Name() string
	Description() string

	// Definition returns the JSON-schema function definition sent to
	// the LLM.
	Definition() llms.ToolDefinition

	// Execute runs the tool. Failures are reported in the result, not
	// as Go errors, so agents can feed them back to the model as
	// observations.
	Execute(ctx context.Context, args map[string]any) ToolResult
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Success       bool
	Content       string
	Error         string
	ToolName      string
	ExecutionTime time.Duration
	Metadata      map[string]any
}

func successResult(toolName, content string) ToolResult {
	return ToolResult{Success: true, Content: content, ToolName: toolName}
}

func errorResult(toolName, message string) ToolResult {
	return ToolResult{Success: false, Error: message, ToolName: toolName}
}

// stringArg fetches a required string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// objectSchema builds the common single-level JSON schema for tool
// parameters.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
