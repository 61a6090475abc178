package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
)

// generate invokes the model and converts its output. Completion and parse
// failures are logged and replaced by fallback; the caller validates the result.
func generate[T any](
	ctx context.Context,
	agentKey string,
	structured *llmx.Structured[T],
	input any,
	convert func(T) (contractx.AgentResponse, bool, error),
	fallback func() (contractx.AgentResponse, error),
) (contractx.AgentResponse, error) {
	out, err := structured.Invoke(ctx, input)
	if err != nil {
		log.Warn().Err(err).Str("agent", agentKey).Msg("generative handler using deterministic fallback")
		return fallback()
	}
	resp, ok, err := convert(out)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	if !ok {
		log.Warn().Str("agent", agentKey).Msg("model output incomplete; using deterministic fallback")
		return fallback()
	}
	return resp, nil
}

type debtStrategyOutput struct {
	Text     string   `json:"text"`
	Strategy string   `json:"strategy"`
	Order    []string `json:"order"`
}

type DebtStrategy struct {
	llm *llmx.Structured[debtStrategyOutput]
}

func NewDebtStrategy(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*DebtStrategy, error) {
	s, err := llmx.NewStructured[debtStrategyOutput](ctx, chatModel, systemPrompt, "handler.debt_strategy")
	if err != nil {
		return nil, err
	}
	return &DebtStrategy{llm: s}, nil
}

func (d *DebtStrategy) Handle(ctx context.Context, text string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	debts := hctx.Debts()
	return generate(ctx, contractx.AgentDebtStrategy, d.llm,
		map[string]any{"text": text, "debts": debts},
		func(out debtStrategyOutput) (contractx.AgentResponse, bool, error) {
			if strings.TrimSpace(out.Text) == "" {
				return contractx.AgentResponse{}, false, nil
			}
			if out.Order == nil {
				out.Order = []string{}
			}
			out.Strategy = strings.ToLower(strings.TrimSpace(out.Strategy))
			resp, err := respond(contractx.ContentText, out)
			return resp, true, err
		},
		func() (contractx.AgentResponse, error) {
			return respond(contractx.ContentText, avalanchePlan(debts))
		},
	)
}

// avalanchePlan orders debts by APR, highest first, breaking ties on the smaller balance.
func avalanchePlan(debts []contractx.Debt) debtStrategyOutput {
	sorted := make([]contractx.Debt, 0, len(debts))
	for _, d := range debts {
		if strings.TrimSpace(d.Name) != "" && d.Balance > 0 {
			sorted = append(sorted, d)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].APR != sorted[j].APR {
			return sorted[i].APR > sorted[j].APR
		}
		return sorted[i].Balance < sorted[j].Balance
	})

	order := make([]string, 0, len(sorted))
	for _, d := range sorted {
		order = append(order, d.Name)
	}
	if len(sorted) == 0 {
		return debtStrategyOutput{
			Text:     "Share each debt's balance and interest rate and I will build a payoff order.",
			Strategy: "avalanche",
			Order:    order,
		}
	}
	first := sorted[0]
	return debtStrategyOutput{
		Text: fmt.Sprintf(
			"Pay the minimum on everything, then put every extra dollar toward %s (%.1f%% APR) first.",
			first.Name, first.APR,
		),
		Strategy: "avalanche",
		Order:    order,
	}
}

type reminder struct {
	Title        string `json:"title"`
	Cron         string `json:"cron,omitempty"`
	DelayMinutes int    `json:"delay_minutes,omitempty"`
	Note         string `json:"note,omitempty"`
}

type reminderOutput struct {
	Text      string     `json:"text"`
	Reminders []reminder `json:"reminders"`
	Buttons   []string   `json:"buttons"`
}

var reminderButtons = []string{"Confirm", "Change time", "Cancel"}

const monthlyCron = "0 9 1 * *"

type ReminderScheduler struct {
	llm *llmx.Structured[reminderOutput]
}

func NewReminderScheduler(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*ReminderScheduler, error) {
	s, err := llmx.NewStructured[reminderOutput](ctx, chatModel, systemPrompt, "handler.reminder_scheduler")
	if err != nil {
		return nil, err
	}
	return &ReminderScheduler{llm: s}, nil
}

func (r *ReminderScheduler) Handle(ctx context.Context, text string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	goals := hctx.Goals()
	return generate(ctx, contractx.AgentReminderScheduler, r.llm,
		map[string]any{"text": text, "goals": goals},
		func(out reminderOutput) (contractx.AgentResponse, bool, error) {
			kept := make([]reminder, 0, len(out.Reminders))
			for _, rem := range out.Reminders {
				rem.Title = strings.TrimSpace(rem.Title)
				rem.Cron = strings.TrimSpace(rem.Cron)
				rem.DelayMinutes = max(rem.DelayMinutes, 0)
				if rem.Title != "" {
					kept = append(kept, rem)
				}
			}
			if len(kept) == 0 {
				return contractx.AgentResponse{}, false, nil
			}
			out.Reminders = kept
			if len(out.Buttons) == 0 {
				out.Buttons = append([]string(nil), reminderButtons...)
			}
			resp, err := respond(contractx.ContentButtons, out)
			return resp, true, err
		},
		func() (contractx.AgentResponse, error) {
			return respond(contractx.ContentButtons, suggestedReminders(goals))
		},
	)
}

func suggestedReminders(goals []contractx.Goal) reminderOutput {
	reminders := []reminder{{
		Title: "Monthly budget check-in",
		Cron:  monthlyCron,
		Note:  "Review last month's spending against your budget.",
	}}
	for _, g := range goals {
		if len(reminders) == 3 {
			break
		}
		name := strings.TrimSpace(g.Name)
		if name == "" || g.Saved >= g.Target {
			continue
		}
		reminders = append(reminders, reminder{
			Title: "Transfer to " + name,
			Cron:  monthlyCron,
		})
	}
	return reminderOutput{
		Text:      "I can set these reminders for the first of each month at 09:00 UTC. Shall I?",
		Reminders: reminders,
		Buttons:   append([]string(nil), reminderButtons...),
	}
}

type complianceOutput struct {
	Text    string   `json:"text"`
	Actions []string `json:"actions"`
}

type CompliancePrivacy struct {
	llm *llmx.Structured[complianceOutput]
}

func NewCompliancePrivacy(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*CompliancePrivacy, error) {
	s, err := llmx.NewStructured[complianceOutput](ctx, chatModel, systemPrompt, "handler.compliance_privacy")
	if err != nil {
		return nil, err
	}
	return &CompliancePrivacy{llm: s}, nil
}

func (c *CompliancePrivacy) Handle(ctx context.Context, text string, _ contractx.HandlerContext) (contractx.AgentResponse, error) {
	return generate(ctx, contractx.AgentCompliancePrivacy, c.llm,
		map[string]any{"text": text},
		func(out complianceOutput) (contractx.AgentResponse, bool, error) {
			if strings.TrimSpace(out.Text) == "" {
				return contractx.AgentResponse{}, false, nil
			}
			if out.Actions == nil {
				out.Actions = []string{}
			}
			resp, err := respond(contractx.ContentText, out)
			return resp, true, err
		},
		func() (contractx.AgentResponse, error) {
			return respond(contractx.ContentText, privacyActions(text))
		},
	)
}

func privacyActions(text string) complianceOutput {
	actions := []string{"Export my data", "View access log", "Delete my transactions"}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "delete") || strings.Contains(lower, "scrub") {
		actions = []string{"Delete my transactions", "Export my data", "View access log"}
	}
	return complianceOutput{
		Text:    "You control your data. Nothing changes until you pick an action and confirm it.",
		Actions: actions,
	}
}

type conversationOutput struct {
	Text     string   `json:"text"`
	Messages []string `json:"messages"`
}

// Conversation answers small talk directly and, when called with
// source=Data, narrates another agent's payload.
type Conversation struct {
	llm      *llmx.Structured[conversationOutput]
	manifest *manifestx.Manifest
}

func NewConversation(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	m *manifestx.Manifest,
) (*Conversation, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is required", contractx.ErrValidation)
	}
	s, err := llmx.NewStructured[conversationOutput](ctx, chatModel, systemPrompt, "handler.conversation")
	if err != nil {
		return nil, err
	}
	return &Conversation{llm: s, manifest: m}, nil
}

func (c *Conversation) Handle(ctx context.Context, text string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	if hctx.String(contractx.CtxSource) == contractx.SourceData {
		return c.narrate(ctx, hctx)
	}
	return generate(ctx, contractx.AgentConversation, c.llm,
		map[string]any{"mode": "chat", "text": text},
		conversationResponse,
		func() (contractx.AgentResponse, error) {
			return respond(contractx.ContentText, conversationOutput{Text: c.greeting()})
		},
	)
}

// narrate requires a messages array from the model; anything else falls back
// to "<agent> completed".
func (c *Conversation) narrate(ctx context.Context, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	agent := hctx.String(contractx.CtxAgent)
	upstream := hctx.SourcePayload()
	return generate(ctx, contractx.AgentConversation, c.llm,
		map[string]any{"mode": "narrate", "agent": c.manifest.DisplayName(agent), "payload": upstream},
		func(out conversationOutput) (contractx.AgentResponse, bool, error) {
			if len(nonEmpty(out.Messages)) == 0 {
				return contractx.AgentResponse{}, false, nil
			}
			return conversationResponse(conversationOutput{Messages: out.Messages})
		},
		func() (contractx.AgentResponse, error) {
			return respond(contractx.ContentText, conversationOutput{Text: CompletedText(agent, upstream)})
		},
	)
}

func conversationResponse(out conversationOutput) (contractx.AgentResponse, bool, error) {
	body := map[string]any{}
	if msgs := nonEmpty(out.Messages); len(msgs) > 0 {
		body["messages"] = msgs
	}
	if t := strings.TrimSpace(out.Text); t != "" {
		body["text"] = t
	}
	if len(body) == 0 {
		return contractx.AgentResponse{}, false, nil
	}
	return contractx.AgentResponse{ContentType: contractx.ContentText, Payload: body}, true, nil
}

func (c *Conversation) greeting() string {
	names := make([]string, 0, len(c.manifest.All()))
	for _, d := range c.manifest.All() {
		if d.Key == contractx.AgentConversation {
			continue
		}
		names = append(names, d.DisplayName)
	}
	return "Hi! I can help with: " + strings.Join(names, ", ") + ". What would you like to look at?"
}

// CompletedText is the deterministic narration: "<agent> completed", plus
// ": missing a, b" when the upstream payload lists missing_info.
func CompletedText(agent string, upstream contractx.Payload) string {
	text := agent + " completed"
	if missing := nonEmpty(upstream.Strings("missing_info")); len(missing) > 0 {
		text += ": missing " + strings.Join(missing, ", ")
	}
	return text
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
