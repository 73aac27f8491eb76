package agent

import (
	"context"
	"log/slog"

	"github.com/lexhub/lexhub/pkg/llms"
)

// GeneralAgent answers non-legal questions briefly and steers the user
// toward the legal capabilities. Single LLM call, no tools.
type GeneralAgent struct {
	BaseAgent
}

func NewGeneralAgent(llm llms.Provider) *GeneralAgent {
	a := &GeneralAgent{}
	a.Name = "general_chat_agent"
	a.LLM = llm
	a.SystemPrompt = generalSystemPrompt
	a.MaxSteps = 1
	return a
}

func (a *GeneralAgent) Answer(ctx context.Context, userMessage, contextText string) string {
	a.updateStatus("💬 处理非法律问题", "正在生成回答...", "running")

	systemPrompt := a.SystemPrompt
	if contextText != "" {
		systemPrompt += "\n\n上下文信息：\n" + contextText
	}

	msg, err := a.LLM.Chat(ctx, []llms.Message{
		llms.SystemMessage(systemPrompt),
		llms.UserMessage(userMessage),
	}, &llms.ChatOptions{MaxTokens: 500})
	if err != nil {
		slog.Warn("General agent answer failed", "error", err)
		a.updateStatus("❌ 错误", "处理过程中发生错误", "error")
		return generalFallback
	}

	a.updateStatus("✅ 完成", "回答生成完毕", "complete")
	return msg.Content + generalGuidance
}
