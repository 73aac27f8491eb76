package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/llms"
	"github.com/lexhub/lexhub/pkg/tools"
)

// scriptedLLM returns queued responses in order and records every
// request for assertions. Safe for concurrent callers.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []llms.Message
	requests  [][]llms.Message
	opts      []*llms.ChatOptions
	err       error
}

func (m *scriptedLLM) next() (*llms.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &llms.Message{Role: llms.RoleAssistant, Content: "默认回答"}, nil
	}
	msg := m.responses[0]
	m.responses = m.responses[1:]
	return &msg, nil
}

func (m *scriptedLLM) Chat(_ context.Context, messages []llms.Message, opts *llms.ChatOptions) (*llms.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, messages)
	m.opts = append(m.opts, opts)
	return m.next()
}

func (m *scriptedLLM) ChatWithTools(_ context.Context, messages []llms.Message, _ []llms.ToolDefinition, opts *llms.ChatOptions) (*llms.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, messages)
	m.opts = append(m.opts, opts)
	return m.next()
}

// echoTool records invocations and returns a fixed payload.
type echoTool struct {
	name    string
	payload string
	calls   []map[string]any
	fail    bool
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "测试工具" }
func (t *echoTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.name,
			Description: "测试工具",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
			},
		},
	}
}
func (t *echoTool) Execute(_ context.Context, args map[string]any) tools.ToolResult {
	t.calls = append(t.calls, args)
	if t.fail {
		return tools.ToolResult{Success: false, Error: "工具故障"}
	}
	return tools.ToolResult{Success: true, Content: t.payload}
}

func assistantToolCall(id, name, arguments string) llms.Message {
	return llms.Message{
		Role: llms.RoleAssistant,
		ToolCalls: []llms.ToolCall{{
			ID:   id,
			Type: "function",
			Function: llms.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}
}

func TestRouterParsesFencedJSON(t *testing.T) {
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage("```json\n{\"domain\": \"Labor\", \"intent\": \"Calculation\", \"parties\": [\"张三\"], \"amounts\": [\"8000元\"]}\n```"),
	}}
	router := NewRouter(llm, "qwen-flash")

	result := router.Route(context.Background(), "公司裁员赔偿怎么算", "")
	assert.Equal(t, DomainLabor, result.Domain)
	assert.Equal(t, IntentCalculation, result.Intent)
	assert.Equal(t, []string{"张三"}, result.Parties)
	assert.Equal(t, []string{"8000元"}, result.Amounts)

	require.Len(t, llm.opts, 1)
	assert.Equal(t, "qwen-flash", llm.opts[0].Model)
	assert.Equal(t, 0.1, *llm.opts[0].Temperature)
}

func TestRouterNormalizesLegacyDomainNames(t *testing.T) {
	tests := []struct {
		raw  string
		want LegalDomain
	}{
		{"LABOR_LAW", DomainLabor},
		{"family_law", DomainFamily},
		{"Contract Law", DomainContract},
		{"NON_LEGAL", DomainNonLegal},
		{"劳动纠纷", DomainLabor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDomain(tt.raw), "raw %q", tt.raw)
	}
}

func TestRouterKeywordRescueForNonLegal(t *testing.T) {
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(`{"domain": "NonLegal", "intent": "QARetrieval"}`),
	}}
	router := NewRouter(llm, "qwen-flash")

	result := router.Route(context.Background(), "公司拖欠我三个月工资怎么办", "")
	assert.Equal(t, DomainLabor, result.Domain)
}

func TestRouterFallbackOnLLMError(t *testing.T) {
	llm := &scriptedLLM{err: fmt.Errorf("boom")}
	router := NewRouter(llm, "qwen-flash")

	result := router.Route(context.Background(), "离婚后孩子抚养权归谁", "")
	assert.Equal(t, DomainFamily, result.Domain)
	assert.Equal(t, IntentQARetrieval, result.Intent)
}

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		message string
		want    LegalDomain
	}{
		{"他偷了我的手机会判刑吗", DomainCriminal},
		{"离婚财产分割的规则", DomainFamily},
		{"试用期被解雇有补偿吗", DomainLabor},
		{"对方违约不履行协议", DomainContract},
		{"股东可以查账吗", DomainCorporate},
		{"去哪个法院起诉", DomainProcedural},
		{"今天天气怎么样", DomainNonLegal},
		{"这个法条怎么理解", DomainFamily},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyByKeywords(tt.message), "message %q", tt.message)
	}
}

func TestNormalizeIntent(t *testing.T) {
	assert.Equal(t, IntentQARetrieval, normalizeIntent("QA_Retrieval"))
	assert.Equal(t, IntentDocDrafting, normalizeIntent("doc_drafting"))
	assert.Equal(t, IntentQARetrieval, normalizeIntent("随便什么"))
}

func newToolCallAgent(llm llms.Provider, registry *tools.Registry) *ToolCallAgent {
	a := &ToolCallAgent{}
	a.Name = "test_agent"
	a.LLM = llm
	a.Registry = registry
	a.MaxSteps = 5
	a.DuplicateThreshold = 2
	a.MaxObserve = 2000
	return a
}

func TestToolCallAgentRunsToolThenAnswers(t *testing.T) {
	search := &echoTool{name: "web_search", payload: "《劳动合同法》第四十七条 经济补偿按年限支付"}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	llm := &scriptedLLM{responses: []llms.Message{
		assistantToolCall("call_1", "web_search", `{"query":"劳动合同法 经济补偿"}`),
		llms.AssistantMessage("根据《劳动合同法》第四十七条，经济补偿按劳动者在本单位工作的年限，每满一年支付一个月工资的标准向劳动者支付，六个月以上不满一年的按一年计算。"),
	}}

	a := newToolCallAgent(llm, registry)
	result, err := a.Run(context.Background(), "裁员赔偿怎么算")
	require.NoError(t, err)
	assert.Contains(t, result, "第四十七条")

	require.Len(t, search.calls, 1)
	assert.Equal(t, "劳动合同法 经济补偿", search.calls[0]["query"])
	assert.Equal(t, StateIdle, a.State())
	require.Len(t, a.Observations(), 1)
}

func TestToolCallAgentFeedsErrorObservation(t *testing.T) {
	broken := &echoTool{name: "web_search", fail: true}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(broken))

	llm := &scriptedLLM{responses: []llms.Message{
		assistantToolCall("call_1", "web_search", `{"query":"x"}`),
		llms.AssistantMessage("搜索失败，暂时无法联网核实最新条文，以下基于已有法律知识回答：劳动者可以先与用人单位协商，协商不成可以向劳动监察部门投诉或者申请劳动仲裁。"),
	}}

	a := newToolCallAgent(llm, registry)
	_, err := a.Run(context.Background(), "问题")
	require.NoError(t, err)

	// The failure reached the model as a tool message, not a Go error.
	last := llm.requests[len(llm.requests)-1]
	var toolMsg *llms.Message
	for i := range last {
		if last[i].Role == llms.RoleTool {
			toolMsg = &last[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, "Error: 工具故障")
}

func TestToolCallAgentCapsObservation(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	search := &echoTool{name: "web_search", payload: string(long)}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	llm := &scriptedLLM{responses: []llms.Message{
		assistantToolCall("call_1", "web_search", `{"query":"x"}`),
		llms.AssistantMessage("已根据检索到的资料完成分析：建议劳动者保留证据并依法向当地劳动争议仲裁委员会申请仲裁，必要时向人民法院提起诉讼维护自身权益。"),
	}}

	a := newToolCallAgent(llm, registry)
	a.MaxObserve = 100
	_, err := a.Run(context.Background(), "问题")
	require.NoError(t, err)

	last := llm.requests[len(llm.requests)-1]
	for _, m := range last {
		if m.Role == llms.RoleTool {
			assert.LessOrEqual(t, len([]rune(m.Content)), 103)
		}
	}
}

func TestToolCallAgentForcedFinalAtMaxSteps(t *testing.T) {
	search := &echoTool{name: "web_search", payload: "结果"}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	// Keeps calling the tool forever; never answers on its own.
	llm := &scriptedLLM{responses: []llms.Message{
		assistantToolCall("call_1", "web_search", `{"query":"a"}`),
		assistantToolCall("call_2", "web_search", `{"query":"b"}`),
		llms.AssistantMessage("强制终止后的最终回答：建议咨询专业律师。"),
	}}

	a := newToolCallAgent(llm, registry)
	a.MaxSteps = 2
	result, err := a.Run(context.Background(), "问题")
	require.NoError(t, err)
	assert.Contains(t, result, "最终回答")

	// The forced-final request must demand a tool-free answer.
	finalReq := llm.requests[len(llm.requests)-1]
	assert.Equal(t, maxStepsFinalPrompt, finalReq[len(finalReq)-1].Content)
}

func TestToolCallAgentForcedFinalFallbackMessage(t *testing.T) {
	search := &echoTool{name: "web_search", payload: "结果"}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	llm := &scriptedLLM{responses: []llms.Message{
		assistantToolCall("call_1", "web_search", `{"query":"a"}`),
		llms.AssistantMessage(""), // forced final comes back empty
	}}

	a := newToolCallAgent(llm, registry)
	a.MaxSteps = 1
	result, err := a.Run(context.Background(), "问题")
	require.NoError(t, err)
	assert.Equal(t, maxStepsFallback(1), result)
}

func TestBaseAgentForcesIdleReset(t *testing.T) {
	answer := "针对您的问题：用人单位应当依法足额支付劳动报酬，拖欠工资的可以向劳动监察大队投诉，也可以直接申请劳动仲裁要求支付欠薪。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(answer),
	}}
	a := newToolCallAgent(llm, tools.NewRegistry())
	a.state = StateRunning // simulate a run that never unwound

	result, err := a.Run(context.Background(), "问题")
	require.NoError(t, err)
	assert.Equal(t, answer, result)
	assert.Equal(t, StateIdle, a.State())
}

func TestToolCallAgentLoopsOnShortContent(t *testing.T) {
	answer := "详细回答：根据《劳动合同法》第八十五条，用人单位逾期不支付劳动报酬的，由劳动行政部门责令按应付金额百分之五十以上百分之一百以下的标准加付赔偿金。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage("好的"), // filler, not an answer
		llms.AssistantMessage(answer),
	}}

	a := newToolCallAgent(llm, tools.NewRegistry())
	result, err := a.Run(context.Background(), "拖欠工资有赔偿吗")
	require.NoError(t, err)

	// The short acknowledgement must not end the run.
	assert.Equal(t, answer, result)
	assert.Len(t, llm.requests, 2)
}

func TestStuckDetectionIgnoresNonConsecutiveDuplicates(t *testing.T) {
	a := &BaseAgent{DuplicateThreshold: 2}
	a.appendMessage(llms.AssistantMessage("回答甲"))
	a.appendMessage(llms.AssistantMessage("回答乙"))
	a.appendMessage(llms.AssistantMessage("回答甲"))
	// The duplicate is separated by a different answer; not a loop.
	assert.False(t, a.isStuck())

	a.appendMessage(llms.AssistantMessage("回答甲"))
	// Now the same content repeats back to back.
	assert.True(t, a.isStuck())
}

func TestStuckDetectionSkipsToolMessages(t *testing.T) {
	a := &BaseAgent{DuplicateThreshold: 2}
	a.appendMessage(llms.AssistantMessage("重复内容"))
	a.appendMessage(llms.ToolMessage("观察结果", "call_1", "web_search"))
	a.appendMessage(llms.AssistantMessage("重复内容"))
	assert.True(t, a.isStuck())
}

func TestStuckHintInjectedOnce(t *testing.T) {
	a := &BaseAgent{Name: "test_agent", NextStepPrompt: "下一步提示"}

	a.handleStuck()
	a.handleStuck()
	a.handleStuck()

	assert.Equal(t, 1, strings.Count(a.NextStepPrompt, stuckPrompt))
	assert.Contains(t, a.NextStepPrompt, "下一步提示")
}

func TestAnswerMeetsHardCriteria(t *testing.T) {
	good := "【法律分析】根据《民法典》第一千零八十七条，离婚时夫妻共同财产由双方协议处理。"
	assert.True(t, answerMeetsHardCriteria(good))

	noCitation := "【法律分析】财产原则上平分。"
	assert.False(t, answerMeetsHardCriteria(noCitation))

	noStructure := "根据《民法典》第一千零八十七条处理。"
	assert.False(t, answerMeetsHardCriteria(noStructure))
}

func newSpecialist(llm llms.Provider, registry *tools.Registry) *SpecialistAgent {
	return NewSpecialistAgent(DomainLabor, llm, registry, config.AgentConfig{
		MaxSteps:           5,
		MaxCriticRounds:    2,
		DuplicateThreshold: 2,
		MaxObserve:         2000,
	})
}

func TestSpecialistAcceptsStructuredAnswerWithoutCritic(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "web_search", payload: "法条"}))

	answer := "【案情摘要】公司经济性裁员，劳动者被解除劳动合同。【法律依据】《劳动合同法》第四十七条，经济补偿按工作年限支付。【结论与建议】可以主张N+1补偿，协商不成申请劳动仲裁。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(answer),
	}}

	a := newSpecialist(llm, registry)
	result := a.ExecuteTask(context.Background(), "裁员赔偿", IntentQARetrieval, "")
	assert.Equal(t, answer, result)
	// Only the run-loop call happened; the critic never fired.
	assert.Len(t, llm.requests, 1)
}

func TestSpecialistCriticRejectTriggersResearch(t *testing.T) {
	search := &echoTool{name: "web_search", payload: "《劳动合同法》第四十七条原文 https://example.com/law47"}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	improved := "【案情摘要】裁员。【法律依据】《劳动合同法》第四十七条。【结论与建议】应支付经济补偿。"
	weak := "一般来说经济性裁员是有经济补偿的，补偿金额和工作年限有关系，具体标准各地执行可能有差异，建议您咨询当地劳动部门或者专业律师了解详细情况。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(weak), // run loop answer, no citation
		llms.AssistantMessage(`{"is_acceptable": false, "feedback": "缺少具体法条引用"}`), // critic verdict
		llms.AssistantMessage("劳动合同法 第四十七条 经济补偿 规定"),                              // refined query
		llms.AssistantMessage(improved),                                          // regenerated answer
	}}

	a := newSpecialist(llm, registry)
	result := a.ExecuteTask(context.Background(), "裁员赔偿怎么算", IntentQARetrieval, "")

	assert.Contains(t, result, "第四十七条")
	assert.Contains(t, result, "信息来源")
	assert.Contains(t, result, "https://example.com/law47")

	// Re-search hit web_search with the refined keywords.
	require.NotEmpty(t, search.calls)
	assert.Equal(t, "劳动合同法 第四十七条 经济补偿 规定", search.calls[len(search.calls)-1]["query"])
}

func TestSpecialistCriticFailOpen(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "web_search", payload: "法条"}))

	weak := "从一般法律常识来看，这类纠纷通常可以先行协商解决，协商不成的可以考虑调解、仲裁或者诉讼等途径，建议保留好相关证据材料之后再决定下一步行动。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(weak),
		llms.AssistantMessage("这不是JSON"), // critic malfunction
	}}

	a := newSpecialist(llm, registry)
	result := a.ExecuteTask(context.Background(), "问题", IntentQARetrieval, "")
	assert.Equal(t, weak, result)
}

func TestSpecialistFallbackOnEmptyResult(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "web_search", payload: "法条"}))

	llm := &scriptedLLM{err: fmt.Errorf("llm down")}
	a := newSpecialist(llm, registry)

	result := a.ExecuteTask(context.Background(), "问题", IntentCalculation, "")
	assert.Contains(t, result, "Labor")
	assert.Contains(t, result, "Calculation")
	assert.Contains(t, result, "建议您咨询专业律师")
}

func TestSpecialistClarificationCapsSteps(t *testing.T) {
	search := &echoTool{name: "web_search", payload: "结果"}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(search))

	// Model calls a tool every step; the cap cuts it off after 5 and
	// the next response becomes the forced final answer.
	var responses []llms.Message
	for i := 0; i < 5; i++ {
		responses = append(responses, assistantToolCall(fmt.Sprintf("call_%d", i), "web_search", `{"query":"x"}`))
	}
	responses = append(responses, llms.AssistantMessage("请补充说明您的具体情况，例如合同签订时间和金额。"))
	llm := &scriptedLLM{responses: responses}

	a := newSpecialist(llm, registry)
	a.MaxSteps = 10

	result := a.ExecuteTask(context.Background(), "我想咨询", IntentClarification, "")
	assert.Contains(t, result, "请补充说明")
	// 5 think calls plus the forced final answer.
	assert.Len(t, search.calls, 5)
	assert.Equal(t, 10, a.MaxSteps)
}

func TestSpecialistSerializesConcurrentTasks(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "web_search", payload: "法条"}))

	answer := "【案情摘要】公司经济性裁员。【法律依据】《劳动合同法》第四十七条，经济补偿按工作年限支付。【结论与建议】可主张经济补偿，协商不成申请劳动仲裁。"
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage(answer),
		llms.AssistantMessage(answer),
	}}

	// One specialist per domain is shared across sessions; parallel
	// requests must not interleave its working history.
	a := newSpecialist(llm, registry)

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.ExecuteTask(context.Background(), "裁员赔偿", IntentQARetrieval, "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, answer, results[0])
	assert.Equal(t, answer, results[1])
	assert.Equal(t, StateIdle, a.State())
}

func TestSpecialistSystemPromptCarriesPlanAndContext(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "web_search", payload: "法条"}))

	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage("【法律分析】依据已知金额按现行规定进行计算。【法律依据】《民法典》第一条。【结论与建议】按上述口径计算应付金额，建议与对方核对后确认具体数额。"),
	}}
	a := newSpecialist(llm, registry)

	a.ExecuteTask(context.Background(), "问题", IntentCalculation, "=== 当前案件已知事实 ===\n已知金额：8000元")

	require.NotEmpty(t, llm.requests)
	system := llm.requests[0][0]
	assert.Equal(t, llms.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "执行计划：计算计划")
	assert.Contains(t, system.Content, "python_executor")
	assert.Contains(t, system.Content, "上下文信息：")
	assert.Contains(t, system.Content, "已知金额：8000元")
}

func TestSourceLinksAppendix(t *testing.T) {
	observations := []string{
		"1. 结果 链接：https://example.com/a 摘要：x",
		"2. 结果 链接：https://example.com/b\n3. https://example.com/a 重复",
	}
	appendix := sourceLinksAppendix(observations)
	assert.Contains(t, appendix, "🔗 信息来源（点击查看原文）：")
	assert.Equal(t, 1, countOccurrences(appendix, "https://example.com/a)"))
	assert.Contains(t, appendix, "https://example.com/b")

	assert.Empty(t, sourceLinksAppendix([]string{"没有链接的观察"}))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestGeneralAgentAppendsGuidance(t *testing.T) {
	llm := &scriptedLLM{responses: []llms.Message{
		llms.AssistantMessage("今天状态不错！"),
	}}
	a := NewGeneralAgent(llm)

	result := a.Answer(context.Background(), "你好", "")
	assert.Contains(t, result, "今天状态不错！")
	assert.Contains(t, result, "💡 **提示**：我是专业的法律助手")
	assert.Contains(t, result, "📋 **劳动法**")
}

func TestGeneralAgentFallbackOnError(t *testing.T) {
	llm := &scriptedLLM{err: fmt.Errorf("down")}
	a := NewGeneralAgent(llm)

	result := a.Answer(context.Background(), "你好", "")
	assert.Equal(t, generalFallback, result)
}
