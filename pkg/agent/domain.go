package agent

// LegalDomain classifies a consultation into a practice area.
type LegalDomain string

const (
	DomainLabor      LegalDomain = "Labor"
	DomainFamily     LegalDomain = "Family"
	DomainContract   LegalDomain = "Contract"
	DomainCorporate  LegalDomain = "Corporate"
	DomainCriminal   LegalDomain = "Criminal"
	DomainProcedural LegalDomain = "Procedural"
	DomainNonLegal   LegalDomain = "NonLegal"
)

// LegalIntent classifies what the user wants done.
type LegalIntent string

const (
	IntentQARetrieval    LegalIntent = "QARetrieval"
	IntentCaseAnalysis   LegalIntent = "CaseAnalysis"
	IntentDocDrafting    LegalIntent = "DocDrafting"
	IntentCalculation    LegalIntent = "Calculation"
	IntentReviewContract LegalIntent = "ReviewContract"
	IntentClarification  LegalIntent = "Clarification"
)

// SpecialistDomains lists the domains served by specialist agents, in
// pool order. NonLegal routes to the general agent instead.
var SpecialistDomains = []LegalDomain{
	DomainLabor,
	DomainFamily,
	DomainContract,
	DomainCorporate,
	DomainCriminal,
	DomainProcedural,
}

var domainDescriptions = map[LegalDomain]string{
	DomainLabor:      "劳动法专家，擅长处理裁员、工资、劳动合同等劳动法相关问题",
	DomainFamily:     "婚姻家事法专家，擅长处理离婚、抚养权、财产分割等婚姻家事相关问题",
	DomainContract:   "合同法专家，擅长处理合同纠纷、合同审查等合同法相关问题",
	DomainCorporate:  "公司法专家，擅长处理公司治理、股权纠纷等公司法相关问题",
	DomainCriminal:   "刑法专家，擅长处理刑事案件、量刑等刑法相关问题",
	DomainProcedural: "程序法专家，擅长处理诉讼程序、法院管辖、诉讼费等程序性问题",
}

var intentDescriptions = map[LegalIntent]string{
	IntentQARetrieval:    "法律法规、法条、类似案例查询",
	IntentCaseAnalysis:   "案情分析（用户描述了一个故事）",
	IntentDocDrafting:    "起草文书（合同、起诉状、律师函）",
	IntentCalculation:    "计算赔偿金、刑期、诉讼费",
	IntentReviewContract: "审查合同风险",
	IntentClarification:  "信息不足，需要反问",
}
