package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/observability"
)

// primaryArgKeys is the probing order for coercing a bare-string
// argument into the tool's main parameter. Models occasionally emit a
// raw string instead of a JSON object; the first key the tool's schema
// declares wins.
var primaryArgKeys = []string{
	"query", "url", "city", "code", "expression", "file_path", "input", "user_input",
}

// Registry holds the tool catalog in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns the function definitions for the whole catalog,
// in registration order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	out := make([]llms.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

// ParseArguments decodes raw JSON arguments for a tool call. When the
// payload is not a JSON object, the whole string is coerced into the
// tool's primary parameter.
func (r *Registry) ParseArguments(toolName, raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}

	// Maybe the model wrapped a plain string in quotes.
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		raw = s
	}
	if raw == "" {
		return map[string]any{}
	}

	key := r.primaryArgument(toolName)
	if key == "" {
		return map[string]any{}
	}
	slog.Debug("Coerced bare-string tool arguments",
		"tool", toolName,
		"key", key)
	return map[string]any{key: raw}
}

func (r *Registry) primaryArgument(toolName string) string {
	tool, ok := r.tools[toolName]
	if !ok {
		return ""
	}
	properties, ok := tool.Definition().Function.Parameters["properties"].(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range primaryArgKeys {
		if _, declared := properties[key]; declared {
			return key
		}
	}
	return ""
}

// Execute runs the named tool with tracing and timing. Unknown tools
// come back as failed results so the agent loop can report them to the
// model.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	tracer := observability.GetTracer("tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecute)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrToolName, name))

	tool, ok := r.tools[name]
	if !ok {
		err := fmt.Sprintf("unknown tool: %s", name)
		span.SetStatus(codes.Error, err)
		return errorResult(name, err)
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	result.ToolName = name
	result.ExecutionTime = time.Since(start)

	if result.Success {
		span.SetStatus(codes.Ok, "")
		slog.Debug("Tool executed",
			"tool", name,
			"duration", result.ExecutionTime)
	} else {
		span.SetStatus(codes.Error, result.Error)
		slog.Warn("Tool execution failed",
			"tool", name,
			"error", result.Error)
	}
	return result
}
