package handler

import (
	"context"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	payloadx "github.com/tanpawarit/Chative-Finance-Assistant/agent/payload"
	promptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/prompt"
)

type Options struct {
	Models  llmx.Models
	Prompts promptx.PromptSet
	Now     func() time.Time
}

// Defaults builds the handler for every built-in capability.
func Defaults(ctx context.Context, m *manifestx.Manifest, opts Options) (map[string]contractx.Handler, error) {
	debt, err := NewDebtStrategy(ctx, opts.Models.Generative, opts.Prompts.DebtStrategy)
	if err != nil {
		return nil, err
	}
	reminders, err := NewReminderScheduler(ctx, opts.Models.Generative, opts.Prompts.ReminderScheduler)
	if err != nil {
		return nil, err
	}
	privacy, err := NewCompliancePrivacy(ctx, opts.Models.Generative, opts.Prompts.CompliancePrivacy)
	if err != nil {
		return nil, err
	}
	conversation, err := NewConversation(ctx, opts.Models.Conversation, opts.Prompts.Conversation, m)
	if err != nil {
		return nil, err
	}

	return map[string]contractx.Handler{
		contractx.AgentOnboarding:        contractx.HandlerFunc(Onboarding),
		contractx.AgentReporting:         contractx.HandlerFunc(Reporting),
		contractx.AgentGoalSetting:       NewGoalSetting(opts.Now),
		contractx.AgentSafety:            contractx.HandlerFunc(Safety),
		contractx.AgentTaxPension:        contractx.HandlerFunc(TaxPension),
		contractx.AgentInvestment:        contractx.HandlerFunc(Investment),
		contractx.AgentCashFlow:          contractx.HandlerFunc(CashFlow),
		contractx.AgentDebtStrategy:      debt,
		contractx.AgentReminderScheduler: reminders,
		contractx.AgentCompliancePrivacy: privacy,
		contractx.AgentConversation:      conversation,
	}, nil
}

// NewDefaultRegistry wires Defaults into a validated Registry.
func NewDefaultRegistry(
	ctx context.Context,
	m *manifestx.Manifest,
	validator *payloadx.Validator,
	opts Options,
) (*Registry, error) {
	handlers, err := Defaults(ctx, m, opts)
	if err != nil {
		return nil, err
	}
	return NewRegistry(m, validator, handlers)
}
