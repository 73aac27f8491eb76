package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/tools"
)

// SpecialistAgent handles one legal domain. Each task runs the
// function-calling loop under an intent-specific plan, then passes a
// critic gate that can trigger a bounded re-search before the answer
// goes out.
type SpecialistAgent struct {
	ToolCallAgent

	Domain          LegalDomain
	MaxCriticRounds int

	// mu serializes ExecuteTask. One specialist per domain is shared
	// across sessions, and the embedded run state is per-task.
	mu sync.Mutex
}

func NewSpecialistAgent(domain LegalDomain, llm llms.Provider, registry *tools.Registry, cfg config.AgentConfig) *SpecialistAgent {
	a := &SpecialistAgent{
		Domain:          domain,
		MaxCriticRounds: cfg.MaxCriticRounds,
	}
	a.Name = strings.ToLower(string(domain)) + "_agent"
	a.LLM = llm
	a.Registry = registry
	a.MaxSteps = cfg.MaxSteps
	a.DuplicateThreshold = cfg.DuplicateThreshold
	a.MaxObserve = cfg.MaxObserve
	if a.MaxCriticRounds < 1 {
		a.MaxCriticRounds = 2
	}
	return a
}

// ExecuteTask answers one user message under the given intent,
// assembling the plan, running the loop, and applying the critic gate.
func (a *SpecialistAgent) ExecuteTask(ctx context.Context, userMessage string, intent LegalIntent, contextText string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateStatus("📋 制定计划", "正在制定精细化执行计划...", "running")

	domainDesc := domainDescriptions[a.Domain]
	if domainDesc == "" {
		domainDesc = "法律"
	}
	intentDesc := intentDescriptions[intent]
	if intentDesc == "" {
		intentDesc = "处理"
	}

	systemPrompt := specialistSystemPrompt(domainDesc, intentDesc)
	if contextText != "" {
		systemPrompt += "\n\n上下文信息：\n" + contextText
	}
	systemPrompt += "\n\n执行计划：" + planForIntent(intent)

	a.SystemPrompt = systemPrompt
	a.NextStepPrompt = nextStepPromptForIntent(intent)

	// Clarification turns only need to ask a question back; cap the
	// loop tighter so the agent cannot wander off into tool calls.
	configuredSteps := a.MaxSteps
	if intent == IntentClarification && (a.MaxSteps == 0 || a.MaxSteps > 5) {
		a.MaxSteps = 5
	}
	defer func() { a.MaxSteps = configuredSteps }()

	a.updateStatus("⚡ 执行任务", "开始执行计划，将进行关键词提取、工具调用等步骤...", "running")
	result, err := a.Run(ctx, userMessage)
	if err != nil {
		slog.Error("Specialist run failed", "agent", a.Name, "error", err)
		result = ""
	}

	if strings.TrimSpace(result) == "" {
		result = a.lastSubstantialAssistantContent(substantialRunes)
	}
	if strings.TrimSpace(result) == "" {
		result = specialistFallback(a.Domain, intent)
	}

	result = a.criticGate(ctx, userMessage, intent, result)

	if appendix := sourceLinksAppendix(a.Observations()); appendix != "" {
		result += appendix
	}
	return result
}

// criticGate evaluates the answer and, on rejection, re-searches with
// refined keywords and regenerates. At most MaxCriticRounds
// evaluations run; the answer ships regardless after that.
func (a *SpecialistAgent) criticGate(ctx context.Context, userMessage string, intent LegalIntent, result string) string {
	a.updateStatus("🔍 自我评估", "正在严格评估回答质量...", "running")

	round := 0
	for round < a.MaxCriticRounds {
		if answerMeetsHardCriteria(result) {
			slog.Debug("Critic short-circuit: answer meets hard criteria", "agent", a.Name)
			break
		}

		acceptable, feedback := a.evaluate(ctx, userMessage, intent, result)
		if acceptable {
			break
		}

		round++
		slog.Info("Critic rejected answer",
			"agent", a.Name,
			"round", round,
			"feedback", feedback)
		if round >= a.MaxCriticRounds {
			break
		}

		a.updateStatus(fmt.Sprintf("🔄 重新搜索（第%d轮）", round),
			"根据评估反馈重新构建搜索关键词...", "running")
		result = a.refineAndRegenerate(ctx, userMessage, intent, round, feedback, result)
	}
	return result
}

var (
	statuteCitationRe = regexp.MustCompile(`《[^》]+》第[^条]{1,20}条`)
	opinionSections   = []string{"【案情摘要】", "【法律分析】", "【法律依据】", "【结论与建议】"}
)

// answerMeetsHardCriteria is the deterministic part of the critic: a
// concrete statute citation plus legal-opinion structure passes
// without burning an LLM call.
func answerMeetsHardCriteria(result string) bool {
	if !statuteCitationRe.MatchString(result) {
		return false
	}
	for _, section := range opinionSections {
		if strings.Contains(result, section) {
			return true
		}
	}
	return false
}

type criticJSON struct {
	IsAcceptable *bool  `json:"is_acceptable"`
	Feedback     string `json:"feedback"`
}

// evaluate runs the LLM critic at temperature 0. Parse failures pass
// the answer through; the critic must never block a response on its
// own malfunction.
func (a *SpecialistAgent) evaluate(ctx context.Context, userMessage string, intent LegalIntent, result string) (bool, string) {
	messages := []llms.Message{
		llms.SystemMessage(criticSystemPrompt),
		llms.UserMessage(criticUserPrompt(userMessage, a.Domain, intent, truncateRunes(result, 2000))),
	}
	msg, err := a.LLM.Chat(ctx, messages, &llms.ChatOptions{
		Temperature: llms.Temperature(0.0),
		MaxTokens:   500,
	})
	if err != nil {
		slog.Warn("Critic evaluation failed, accepting answer", "agent", a.Name, "error", err)
		return true, "评估失败，默认通过"
	}

	var parsed criticJSON
	raw := extractJSONObject(msg.Content)
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil || parsed.IsAcceptable == nil {
		slog.Warn("Critic returned unparseable verdict, accepting answer", "agent", a.Name)
		return true, "评估失败，默认通过"
	}

	feedback := parsed.Feedback
	if feedback == "" {
		feedback = "可以返回"
	}
	return *parsed.IsAcceptable, feedback
}

// refineAndRegenerate turns critic feedback into a sharper search, runs
// it, and asks the model for an improved answer grounded in the new
// results.
func (a *SpecialistAgent) refineAndRegenerate(ctx context.Context, userMessage string, intent LegalIntent, round int, feedback, previous string) string {
	query := a.refinedSearchQuery(ctx, userMessage, intent, feedback)
	if query == "" {
		return previous
	}

	a.appendMessage(llms.SystemMessage(fmt.Sprintf(
		"【Critic反馈 - 第%d轮】\n%s\n\n需要重新搜索，新的搜索关键词：%s", round, feedback, query)))

	searchResult := a.Registry.Execute(ctx, "web_search", map[string]any{"query": query})
	if searchResult.Success {
		a.observations = append(a.observations, searchResult.Content)
		a.appendMessage(llms.SystemMessage(
			"【重新搜索的结果】\n" + truncateRunes(searchResult.Content, 2000)))
	} else {
		slog.Warn("Critic re-search failed", "agent", a.Name, "error", searchResult.Error)
	}

	a.updateStatus("📝 重新生成回答", "基于新的搜索结果重新生成回答...", "running")

	messages := append([]llms.Message{}, a.messages...)
	messages = append(messages, llms.UserMessage(improvedAnswerPrompt(feedback)))

	msg, err := a.LLM.Chat(ctx, messages, nil)
	if err != nil || strings.TrimSpace(msg.Content) == "" {
		slog.Warn("Answer regeneration failed, keeping previous answer", "agent", a.Name, "error", err)
		return previous
	}

	a.appendMessage(llms.AssistantMessage(msg.Content))
	return msg.Content
}

func (a *SpecialistAgent) refinedSearchQuery(ctx context.Context, userMessage string, intent LegalIntent, feedback string) string {
	msg, err := a.LLM.Chat(ctx, []llms.Message{
		llms.UserMessage(refinedQueryPrompt(userMessage, a.Domain, intent, feedback)),
	}, &llms.ChatOptions{
		Temperature: llms.Temperature(0.3),
		MaxTokens:   200,
	})
	if err != nil {
		slog.Warn("Refined search query generation failed", "agent", a.Name, "error", err)
		return ""
	}
	return strings.Trim(strings.TrimSpace(msg.Content), `"'`)
}

var urlRe = regexp.MustCompile(`https?://[^\s)\]>"'，。；》】]+`)

// sourceLinksAppendix extracts source URLs from tool observations and
// renders the clickable-sources footer, capped at five links.
func sourceLinksAppendix(observations []string) string {
	seen := make(map[string]bool)
	var urls []string
	for _, obs := range observations {
		for _, u := range urlRe.FindAllString(obs, -1) {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		return ""
	}
	if len(urls) > 5 {
		urls = urls[:5]
	}

	var b strings.Builder
	b.WriteString("\n\n---\n**🔗 信息来源（点击查看原文）：**\n")
	for i, u := range urls {
		title := u
		if len([]rune(title)) > 50 {
			title = string([]rune(title)[:50]) + "..."
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, title, u)
	}
	return b.String()
}
