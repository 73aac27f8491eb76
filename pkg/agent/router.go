package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lexhub/lexhub/pkg/llms"
)

// RouteResult is the router's classification of one user turn.
type RouteResult struct {
	Domain LegalDomain
	Intent LegalIntent

	Parties   []string
	Amounts   []string
	Dates     []string
	Locations []string
}

// Router classifies each user turn into a legal domain and intent and
// extracts case entities. Classification is a short structured call,
// so it runs on the cheaper router model.
type Router struct {
	llm         llms.Provider
	routerModel string
}

func NewRouter(llm llms.Provider, routerModel string) *Router {
	return &Router{llm: llm, routerModel: routerModel}
}

type routerJSON struct {
	Domain    string   `json:"domain"`
	Intent    string   `json:"intent"`
	Parties   []string `json:"parties"`
	Amounts   []string `json:"amounts"`
	Dates     []string `json:"dates"`
	Locations []string `json:"locations"`
}

// Route never fails outright: LLM or parse errors fall back to keyword
// classification so the flow always has a destination.
func (r *Router) Route(ctx context.Context, userMessage, contextText string) RouteResult {
	history := extractHistoryContext(contextText)

	messages := []llms.Message{
		llms.SystemMessage(routerSystemPrompt),
		llms.UserMessage(routerUserPrompt(history, userMessage)),
	}
	msg, err := r.llm.Chat(ctx, messages, &llms.ChatOptions{
		Model:       r.routerModel,
		Temperature: llms.Temperature(0.1),
		MaxTokens:   500,
	})
	if err != nil {
		slog.Warn("Router LLM call failed, falling back to keyword classification", "error", err)
		return RouteResult{
			Domain: classifyByKeywords(userMessage),
			Intent: IntentQARetrieval,
		}
	}

	var parsed routerJSON
	raw := extractJSONObject(msg.Content)
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil {
		slog.Warn("Router returned unparseable classification", "response", msg.Content)
		return RouteResult{
			Domain: classifyByKeywords(userMessage),
			Intent: IntentQARetrieval,
		}
	}

	domain := normalizeDomain(parsed.Domain)
	if domain == DomainNonLegal {
		// The model under-classifies legal questions; a keyword pass
		// rescues the obvious ones.
		if kw := classifyByKeywords(userMessage); kw != DomainNonLegal {
			domain = kw
		}
	}

	return RouteResult{
		Domain:    domain,
		Intent:    normalizeIntent(parsed.Intent),
		Parties:   parsed.Parties,
		Amounts:   parsed.Amounts,
		Dates:     parsed.Dates,
		Locations: parsed.Locations,
	}
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)\{.*?\}`)
)

// extractJSONObject pulls the first JSON object out of a model reply,
// fenced or bare.
func extractJSONObject(s string) string {
	if m := fencedJSONRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return bareJSONRe.FindString(s)
}

func extractHistoryContext(contextText string) string {
	if !strings.Contains(contextText, "=== 对话历史 ===") {
		return ""
	}
	section := strings.SplitN(contextText, "=== 对话历史 ===", 2)[1]
	if idx := strings.Index(section, "==="); idx >= 0 {
		section = section[:idx]
	}

	lines := strings.Split(strings.TrimSpace(section), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	if len(lines) == 0 {
		return ""
	}
	return "对话历史：\n" + strings.Join(lines, "\n") + "\n"
}

// normalizeDomain maps model output to the domain enum, tolerating
// case, separators, and legacy names like LABOR_LAW.
func normalizeDomain(s string) LegalDomain {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	switch normalized {
	case "LABOR", "LABOR_LAW":
		return DomainLabor
	case "FAMILY", "FAMILY_LAW":
		return DomainFamily
	case "CONTRACT", "CONTRACT_LAW":
		return DomainContract
	case "CORPORATE", "CORPORATE_LAW":
		return DomainCorporate
	case "CRIMINAL", "CRIMINAL_LAW":
		return DomainCriminal
	case "PROCEDURAL", "PROCEDURAL_QUERY":
		return DomainProcedural
	case "NON_LEGAL", "NONLEGAL":
		return DomainNonLegal
	}
	return fuzzyMatchDomain(s)
}

// fuzzyMatchDomain handles free-form domain strings the strict mapping
// misses.
func fuzzyMatchDomain(s string) LegalDomain {
	lower := strings.ToLower(s)
	switch {
	case containsAny(lower, "labor", "劳动", "工资", "裁员", "试用期", "加班"):
		return DomainLabor
	case containsAny(lower, "family", "婚姻", "家事", "离婚", "抚养", "继承"):
		return DomainFamily
	case containsAny(lower, "contract", "合同", "违约"):
		return DomainContract
	case containsAny(lower, "corporate", "公司", "股权", "治理"):
		return DomainCorporate
	case containsAny(lower, "criminal", "刑事", "刑法", "犯罪", "量刑", "处罚", "抢劫", "盗窃", "诈骗", "嫌疑人"):
		return DomainCriminal
	case containsAny(lower, "procedural", "程序", "法院", "起诉", "诉讼"):
		return DomainProcedural
	}
	return DomainNonLegal
}

var domainKeywords = []struct {
	domain   LegalDomain
	keywords []string
}{
	{DomainCriminal, []string{"抢", "偷", "盗", "骗", "杀", "伤害", "处罚", "判刑", "量刑", "罪", "嫌疑人", "被告人"}},
	{DomainFamily, []string{"婚姻", "离婚", "结婚", "抚养", "赡养", "继承", "财产分割", "夫妻"}},
	{DomainLabor, []string{"工资", "加班", "裁员", "解雇", "劳动合同", "试用期", "五险一金", "工伤"}},
	{DomainContract, []string{"合同", "协议", "违约", "履行", "解除", "签订"}},
	{DomainCorporate, []string{"公司", "企业", "股东", "股权", "董事会", "法人"}},
	{DomainProcedural, []string{"法院", "起诉", "诉讼", "仲裁", "上诉", "执行", "管辖"}},
}

// classifyByKeywords is the loose fallback classification applied when
// the model cannot or will not commit to a legal domain.
func classifyByKeywords(userMessage string) LegalDomain {
	for _, entry := range domainKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(userMessage, kw) {
				return entry.domain
			}
		}
	}

	// A bare 法 strongly suggests a legal question even without a
	// domain keyword.
	if strings.Contains(userMessage, "法") {
		switch {
		case strings.Contains(userMessage, "婚"):
			return DomainFamily
		case strings.Contains(userMessage, "刑"), strings.Contains(userMessage, "犯罪"):
			return DomainCriminal
		case strings.Contains(userMessage, "劳动"):
			return DomainLabor
		case strings.Contains(userMessage, "合同"):
			return DomainContract
		case strings.Contains(userMessage, "公司"):
			return DomainCorporate
		default:
			// Family questions dominate the undifferentiated rest.
			return DomainFamily
		}
	}

	return DomainNonLegal
}

func normalizeIntent(s string) LegalIntent {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	switch normalized {
	case "QA_RETRIEVAL", "QARETRIEVAL":
		return IntentQARetrieval
	case "CASE_ANALYSIS", "CASEANALYSIS":
		return IntentCaseAnalysis
	case "DOC_DRAFTING", "DOCDRAFTING":
		return IntentDocDrafting
	case "CALCULATION":
		return IntentCalculation
	case "REVIEW_CONTRACT", "REVIEWCONTRACT":
		return IntentReviewContract
	case "CLARIFICATION":
		return IntentClarification
	}
	return IntentQARetrieval
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
