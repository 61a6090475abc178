package router

import (
	"strings"
	"unicode"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

type keywordRule struct {
	agentKey string
	intent   string
	keywords []string
}

// Evaluated top to bottom; first match wins. A chart request beats every
// other topic so "chart my goals" still lands on reporting.
var keywordRules = []keywordRule{
	{agentKey: contractx.AgentReporting, intent: "spending_chart", keywords: []string{"chart", "graph"}},
	{agentKey: contractx.AgentGoalSetting, intent: "goal_progress", keywords: []string{"goal"}},
	{agentKey: contractx.AgentSafety, intent: "safety_check", keywords: []string{"safety"}},
	{agentKey: contractx.AgentTaxPension, intent: "tax_profile", keywords: []string{"tax"}},
	{agentKey: contractx.AgentInvestment, intent: "investment_snapshot", keywords: []string{"invest"}},
	{agentKey: contractx.AgentCashFlow, intent: "cash_flow_summary", keywords: []string{"cash"}},
	{agentKey: contractx.AgentDebtStrategy, intent: "debt_payoff", keywords: []string{"debt", "payoff", "refinance", "loan"}},
	{agentKey: contractx.AgentReminderScheduler, intent: "set_reminder", keywords: []string{"remind", "schedule", "recurring", "check"}},
	{agentKey: contractx.AgentCompliancePrivacy, intent: "data_access", keywords: []string{"privacy", "delete", "scrub", "access", "audit"}},
	{agentKey: contractx.AgentConversation, intent: "small_talk", keywords: []string{"help", "hello", "hi", "greet", "clarify", "explain", "joke"}},
}

const defaultHeuristicIntent = "baseline_snapshot"

// heuristicClassify is a pure function of text.
func heuristicClassify(text string) contractx.Classification {
	lower := strings.ToLower(text)
	tokens := tokenize(lower)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if matchKeyword(lower, tokens, kw) {
				return contractx.Classification{
					AgentKey: rule.agentKey,
					Intent:   rule.intent,
					Params:   map[string]any{},
					Source:   contractx.SourceHeuristic,
				}
			}
		}
	}
	return contractx.Classification{
		AgentKey: contractx.AgentOnboarding,
		Intent:   defaultHeuristicIntent,
		Params:   map[string]any{},
		Source:   contractx.SourceHeuristic,
	}
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchKeyword: keywords of two letters or fewer must equal a whole token so
// "hi" does not fire on "this"; longer ones match anywhere in the lower-cased
// text, so "flowchart", "reinvest" and "pretax" count.
func matchKeyword(lower string, tokens []string, keyword string) bool {
	if len(keyword) > 2 {
		return strings.Contains(lower, keyword)
	}
	for _, token := range tokens {
		if token == keyword {
			return true
		}
	}
	return false
}
