package flow

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lexhub/lexhub/pkg/agent"
	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/memory"
	"github.com/lexhub/lexhub/pkg/observability"
	"github.com/lexhub/lexhub/pkg/tools"
)

// LegalFlow orchestrates one consultation turn: context assembly,
// routing, specialist execution, and memory writes. One flow serves
// many sessions; per-session state lives in the memory manager.
type LegalFlow struct {
	cfg      *config.Config
	llm      llms.Provider
	memory   *memory.Manager
	registry *tools.Registry

	router      *agent.Router
	specialists map[agent.LegalDomain]*agent.SpecialistAgent
	general     *agent.GeneralAgent

	statusCallback agent.StatusCallback
}

// NewLegalFlow builds the flow with the full specialist pool. Agents
// are stateless between runs, so the pool is shared across sessions.
func NewLegalFlow(cfg *config.Config, llm llms.Provider, mem *memory.Manager, registry *tools.Registry) *LegalFlow {
	specialists := make(map[agent.LegalDomain]*agent.SpecialistAgent, len(agent.SpecialistDomains))
	for _, domain := range agent.SpecialistDomains {
		specialists[domain] = agent.NewSpecialistAgent(domain, llm, registry, cfg.Agents)
	}

	return &LegalFlow{
		cfg:         cfg,
		llm:         llm,
		memory:      mem,
		registry:    registry,
		router:      agent.NewRouter(llm, cfg.LLM.RouterModel),
		specialists: specialists,
		general:     agent.NewGeneralAgent(llm),
	}
}

// SetStatusCallback wires progress updates through to every agent in
// the pool.
func (f *LegalFlow) SetStatusCallback(cb agent.StatusCallback) {
	f.statusCallback = cb
	for _, a := range f.specialists {
		a.SetStatusCallback(cb)
	}
	f.general.SetStatusCallback(cb)
}

func (f *LegalFlow) updateStatus(phase, message, state string) {
	if f.statusCallback != nil {
		f.statusCallback(phase, message, state)
	}
}

// Execute runs one user turn end to end and returns the answer. Errors
// never escape: any failure becomes an apologetic answer so the
// conversation can continue.
func (f *LegalFlow) Execute(ctx context.Context, sessionID, userMessage string) string {
	tracer := observability.GetTracer("flow")
	ctx, span := tracer.Start(ctx, observability.SpanFlowExecute)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrSessionID, sessionID))

	answer, err := f.execute(ctx, sessionID, userMessage)
	if err != nil {
		slog.Error("Flow execution failed", "session_id", sessionID, "error", err)
		span.RecordError(err)
		f.updateStatus("❌ 错误", "处理过程中发生错误", "error")
		return fmt.Sprintf("抱歉，系统在处理您的问题时遇到了技术问题：%v。请稍后重试或咨询专业律师。", err)
	}
	return answer
}

func (f *LegalFlow) execute(ctx context.Context, sessionID, userMessage string) (string, error) {
	f.memory.AddMessage(sessionID, "user", userMessage, nil)

	f.updateStatus("🔍 Phase 1: 意图识别", "正在分析问题的法律领域和意图...", "running")
	contextText := f.memory.GetFullContext(ctx, sessionID, userMessage)

	route := f.router.Route(ctx, userMessage, contextText)
	slog.Info("Routed user turn",
		"session_id", sessionID,
		"domain", route.Domain,
		"intent", route.Intent)

	f.updateStatus("⚙️ Phase 2: 智能路由",
		fmt.Sprintf("识别结果：%s / %s，正在分发任务...", route.Domain, route.Intent), "running")

	f.memory.UpdateGlobalState(sessionID, memory.StateUpdate{
		Domain:    string(route.Domain),
		Intent:    string(route.Intent),
		Parties:   route.Parties,
		Amounts:   route.Amounts,
		Dates:     route.Dates,
		Locations: route.Locations,
	})
	// Entities just merged belong in the working context too.
	contextText = f.memory.GetFullContext(ctx, sessionID, userMessage)

	f.updateStatus("⚡ Phase 3: 专业Agent执行", "专业Agent正在处理您的问题...", "running")
	var answer string
	if route.Domain == agent.DomainNonLegal {
		answer = f.general.Answer(ctx, userMessage, contextText)
	} else {
		specialist, ok := f.specialists[route.Domain]
		if !ok {
			return "", fmt.Errorf("no specialist for domain %s", route.Domain)
		}
		answer = specialist.ExecuteTask(ctx, userMessage, route.Intent, contextText)
	}

	f.memory.AddMessage(sessionID, "assistant", answer, map[string]any{
		"domain": string(route.Domain),
		"intent": string(route.Intent),
	})

	if err := f.memory.SaveConversation(ctx, sessionID, userMessage, answer, string(route.Intent)); err != nil {
		slog.Warn("Long-term conversation save failed", "session_id", sessionID, "error", err)
	}
	if err := f.memory.CheckAndArchive(ctx, sessionID); err != nil {
		slog.Warn("Session archive failed", "session_id", sessionID, "error", err)
	}

	f.updateStatus("✅ Phase 4: 完成", "回答已生成", "complete")
	return answer, nil
}

// ResetSession clears the session's short-term memory and global state.
// Long-term records survive.
func (f *LegalFlow) ResetSession(sessionID string) {
	f.memory.ResetSession(sessionID)
}

// Stats reports memory usage across tiers.
func (f *LegalFlow) Stats(ctx context.Context) (memory.Stats, error) {
	return f.memory.GetStats(ctx)
}
