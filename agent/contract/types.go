package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ContentType string

const (
	ContentText    ContentType = "TEXT"
	ContentImage   ContentType = "IMAGE"
	ContentButtons ContentType = "BUTTONS"
	ContentChart   ContentType = "CHART"
)

func ParseContentType(raw string) (ContentType, error) {
	ct := ContentType(strings.ToUpper(strings.TrimSpace(raw)))
	if !ct.Valid() {
		return "", fmt.Errorf("%w: unknown content type=%q", ErrValidation, raw)
	}
	return ct, nil
}

func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentButtons, ContentChart:
		return true
	default:
		return false
	}
}

// Agent keys. They must match the keys declared in the capability manifest.
const (
	AgentOnboarding        = "onboarding"
	AgentReporting         = "reporting"
	AgentGoalSetting       = "goal_setting"
	AgentSafety            = "safety"
	AgentTaxPension        = "tax_pension"
	AgentInvestment        = "investment"
	AgentCashFlow          = "cash_flow"
	AgentDebtStrategy      = "debt_strategy"
	AgentReminderScheduler = "reminder_scheduler"
	AgentCompliancePrivacy = "compliance_privacy"
	AgentConversation      = "conversation"
)

// Payload is the JSON-object body of an AgentResponse.
type Payload map[string]any

// ToPayload converts any JSON-serialisable value into its decoded object form.
func ToPayload(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrSchemaViolation, err)
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object: %v", ErrSchemaViolation, err)
	}
	return out, nil
}

func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return strings.TrimSpace(v)
}

func (p Payload) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

type AgentResponse struct {
	ContentType ContentType `json:"content_type"`
	Payload     Payload     `json:"payload"`
}

// Classification is the router output. AgentKey is always a manifest key.
type Classification struct {
	AgentKey string         `json:"agent"`
	Intent   string         `json:"intent,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Source   string         `json:"source"`
}

const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

type TranscriptStep struct {
	Agent       string      `json:"agent"`
	ContentType ContentType `json:"content_type"`
	Payload     Payload     `json:"payload"`
}

// TranscriptEntry is one persisted message owned by the caller.
type TranscriptEntry struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Sender         string      `json:"sender"`
	ContentType    ContentType `json:"content_type"`
	Payload        Payload     `json:"payload"`
	Timestamp      time.Time   `json:"timestamp"`
}

const SenderUser = "user"
