package agent

import (
	"context"
	"log/slog"

	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/tools"
)

// ToolCallAgent runs the native function-calling loop: the model
// thinks with the tool catalog attached, the agent executes any tool
// calls, and observations flow back as tool messages until the model
// answers without calling tools.
type ToolCallAgent struct {
	BaseAgent

	Registry   *tools.Registry
	MaxObserve int

	// observations keeps raw tool output for the run, used afterwards
	// to build the source-links appendix.
	observations []string
}

// Run executes the loop for one request. The working history starts
// fresh from the agent's system prompt.
func (a *ToolCallAgent) Run(ctx context.Context, request string) (string, error) {
	a.resetMessages(a.SystemPrompt)
	a.observations = nil
	return a.run(ctx, request, a.step)
}

// Observations returns the raw tool outputs collected during the last
// run.
func (a *ToolCallAgent) Observations() []string {
	return a.observations
}

func (a *ToolCallAgent) step(ctx context.Context) (bool, string, error) {
	toolCalls, content, err := a.think(ctx)
	if err != nil {
		return false, "", err
	}

	if len(toolCalls) == 0 {
		// Short acknowledgements are not answers; keep looping until
		// the model produces substantial content.
		if len([]rune(content)) > substantialRunes {
			return true, content, nil
		}
		return false, "", nil
	}

	a.act(ctx, toolCalls)
	return false, "", nil
}

// think asks the model for the next move with the tool catalog
// attached, and records its reply in the working history.
func (a *ToolCallAgent) think(ctx context.Context) ([]llms.ToolCall, string, error) {
	if a.NextStepPrompt != "" {
		a.appendMessage(llms.UserMessage(a.NextStepPrompt))
	}

	msg, err := a.LLM.ChatWithTools(ctx, a.messages, a.Registry.Definitions(), nil)
	if err != nil {
		return nil, "", err
	}

	a.appendMessage(llms.Message{
		Role:      llms.RoleAssistant,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	})

	return msg.ToolCalls, msg.Content, nil
}

// act executes each requested tool call and feeds the observation back
// as a tool message. Failures become "Error: ..." observations so the
// model can recover instead of the run aborting.
func (a *ToolCallAgent) act(ctx context.Context, toolCalls []llms.ToolCall) {
	for _, tc := range toolCalls {
		name := tc.Function.Name
		args := a.Registry.ParseArguments(name, tc.Function.Arguments)

		result := a.Registry.Execute(ctx, name, args)

		var observation string
		if result.Success {
			observation = result.Content
			a.observations = append(a.observations, result.Content)
		} else {
			observation = "Error: " + result.Error
			slog.Warn("Tool call failed",
				"agent", a.Name,
				"tool", name,
				"error", result.Error)
		}

		observation = truncateRunes(observation, a.maxObserve())
		a.appendMessage(llms.ToolMessage(observation, tc.ID, name))
	}
}

func (a *ToolCallAgent) maxObserve() int {
	if a.MaxObserve > 0 {
		return a.MaxObserve
	}
	return 2000
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
