package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
)

var (
	//go:embed template/router.txt
	routerRaw string

	//go:embed template/conversation.txt
	conversationRaw string

	//go:embed template/debt_strategy.txt
	debtStrategyRaw string

	//go:embed template/reminder_scheduler.txt
	reminderSchedulerRaw string

	//go:embed template/compliance_privacy.txt
	compliancePrivacyRaw string
)

// PromptSet holds rendered system prompts.
type PromptSet struct {
	Router            string
	Conversation      string
	DebtStrategy      string
	ReminderScheduler string
	CompliancePrivacy string
}

type capability struct {
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Intents     []string `json:"intents"`
}

// LoadPromptSet renders every template against the manifest.
func LoadPromptSet(m *manifestx.Manifest) (PromptSet, error) {
	if m == nil {
		return PromptSet{}, fmt.Errorf("%w: manifest is nil", contractx.ErrPromptMissing)
	}

	caps := make([]capability, 0, len(m.All()))
	for _, d := range m.All() {
		caps = append(caps, capability{
			DisplayName: d.DisplayName,
			Description: d.Description,
			Intents:     d.Intents,
		})
	}
	capsJSON, err := json.MarshalIndent(caps, "", "  ")
	if err != nil {
		return PromptSet{}, fmt.Errorf("marshal capabilities: %w", err)
	}
	intentJSON, err := json.MarshalIndent(m.IntentTable(), "", "  ")
	if err != nil {
		return PromptSet{}, fmt.Errorf("marshal intent table: %w", err)
	}

	r := strings.NewReplacer(
		"{{capabilities}}", string(capsJSON),
		"{{intent_table}}", string(intentJSON),
	)
	render := func(raw string) string {
		return strings.TrimSpace(r.Replace(raw))
	}

	set := PromptSet{
		Router:            render(routerRaw),
		Conversation:      render(conversationRaw),
		DebtStrategy:      render(debtStrategyRaw),
		ReminderScheduler: render(reminderSchedulerRaw),
		CompliancePrivacy: render(compliancePrivacyRaw),
	}
	for name, p := range map[string]string{
		"router":             set.Router,
		"conversation":       set.Conversation,
		"debt_strategy":      set.DebtStrategy,
		"reminder_scheduler": set.ReminderScheduler,
		"compliance_privacy": set.CompliancePrivacy,
	} {
		if p == "" {
			return PromptSet{}, fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return set, nil
}
