package agent

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/observability"
)

// stepFunc advances the agent by one think/act iteration. It reports
// whether the run is finished and, if so, the final answer.
type stepFunc func(ctx context.Context) (done bool, final string, err error)

// BaseAgent carries the run-loop machinery shared by all agents:
// bounded stepping, state enforcement, stuck detection, and the forced
// final answer at the step limit.
type BaseAgent struct {
	Name           string
	SystemPrompt   string
	NextStepPrompt string
	LLM            llms.Provider

	MaxSteps           int
	DuplicateThreshold int

	state             AgentState
	currentStep       int
	messages          []llms.Message
	statusCallback    StatusCallback
	stuckHintInjected bool
}

func (a *BaseAgent) State() AgentState { return a.state }

func (a *BaseAgent) SetStatusCallback(cb StatusCallback) { a.statusCallback = cb }

func (a *BaseAgent) updateStatus(phase, message, state string) {
	if a.statusCallback != nil {
		a.statusCallback(phase, message, state)
	}
}

// resetMessages starts a fresh working history with the given system
// prompt. Agents are stateless between runs; durable history lives in
// the memory manager.
func (a *BaseAgent) resetMessages(systemPrompt string) {
	a.messages = nil
	if systemPrompt != "" {
		a.messages = append(a.messages, llms.SystemMessage(systemPrompt))
	}
}

func (a *BaseAgent) appendMessage(msg llms.Message) {
	a.messages = append(a.messages, msg)
}

// run drives the step loop. A non-idle state at entry means a previous
// run did not unwind cleanly; it is reset rather than refused so one
// bad query cannot wedge the agent.
func (a *BaseAgent) run(ctx context.Context, request string, step stepFunc) (string, error) {
	if a.state != StateIdle {
		slog.Warn("Agent not idle at run start, forcing reset",
			"agent", a.Name,
			"state", a.state.String())
		a.state = StateIdle
		a.currentStep = 0
	}
	a.state = StateRunning
	a.stuckHintInjected = false
	defer func() {
		a.state = StateIdle
		a.currentStep = 0
	}()

	tracer := observability.GetTracer("agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRun)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrAgentName, a.Name))

	a.appendMessage(llms.UserMessage(request))

	maxSteps := a.MaxSteps
	if maxSteps < 1 {
		maxSteps = 10
	}

	for a.currentStep = 1; a.currentStep <= maxSteps; a.currentStep++ {
		done, final, err := step(ctx)
		if err != nil {
			a.state = StateError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		if a.isStuck() {
			a.handleStuck()
		}

		if done {
			a.state = StateFinished
			span.SetStatus(codes.Ok, "")
			return final, nil
		}
	}

	final := a.forcedFinalAnswer(ctx, maxSteps)
	a.state = StateFinished
	span.SetStatus(codes.Ok, "")
	return final, nil
}

// isStuck reports whether the latest assistant messages repeat the same
// content back to back. An identical answer further back in the history
// does not count; only an unbroken trailing run does.
func (a *BaseAgent) isStuck() bool {
	threshold := a.DuplicateThreshold
	if threshold < 1 {
		threshold = 2
	}

	last := ""
	run := 0
	for i := len(a.messages) - 1; i >= 0; i-- {
		m := a.messages[i]
		if m.Role != llms.RoleAssistant || m.Content == "" {
			continue
		}
		if last == "" {
			last = m.Content
			run = 1
			continue
		}
		if m.Content != last {
			break
		}
		run++
	}
	return run >= threshold
}

// handleStuck nudges the model toward a different strategy. The hint is
// injected at most once per run.
func (a *BaseAgent) handleStuck() {
	if a.stuckHintInjected {
		return
	}
	a.stuckHintInjected = true

	slog.Warn("Agent appears stuck in duplicate responses, injecting strategy hint",
		"agent", a.Name,
		"step", a.currentStep)
	a.NextStepPrompt = stuckPrompt + "\n" + a.NextStepPrompt
}

// forcedFinalAnswer demands a tool-free answer after the step limit,
// falling back to the last substantial assistant message and then to a
// canned apology.
func (a *BaseAgent) forcedFinalAnswer(ctx context.Context, maxSteps int) string {
	slog.Warn("Agent reached max steps, forcing final answer",
		"agent", a.Name,
		"max_steps", maxSteps)

	messages := append([]llms.Message{}, a.messages...)
	messages = append(messages, llms.SystemMessage(maxStepsFinalPrompt))

	msg, err := a.LLM.Chat(ctx, messages, nil)
	if err == nil && strings.TrimSpace(msg.Content) != "" {
		return msg.Content
	}
	if err != nil {
		slog.Warn("Forced final answer generation failed", "agent", a.Name, "error", err)
	}

	if content := a.lastSubstantialAssistantContent(substantialRunes); content != "" {
		return content
	}
	return maxStepsFallback(maxSteps)
}

// substantialRunes is the minimum rune length for assistant content to
// count as a real answer rather than a filler acknowledgement.
const substantialRunes = 50

func (a *BaseAgent) lastSubstantialAssistantContent(minLen int) string {
	for i := len(a.messages) - 1; i >= 0; i-- {
		m := a.messages[i]
		if m.Role == llms.RoleAssistant && len([]rune(m.Content)) > minLen {
			return m.Content
		}
	}
	return ""
}
