package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Finance-Assistant/pkg/openrouter"
)

// Role selects per-call-site model overrides.
type Role string

const (
	RoleRouter       Role = "router"
	RoleConversation Role = "conversation"
	RoleGenerative   Role = "generative"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RouterModel             string  `envconfig:"ROUTER_MODEL" split_words:"true"`
	ConversationModel       string  `envconfig:"CONVERSATION_MODEL" split_words:"true"`
	GenerativeModel         string  `envconfig:"GENERATIVE_MODEL" split_words:"true"`
	RouterTemperature       float32 `envconfig:"ROUTER_TEMPERATURE" split_words:"true" default:"0"`
	ConversationTemperature float32 `envconfig:"CONVERSATION_TEMPERATURE" split_words:"true" default:"-1"`
	GenerativeTemperature   float32 `envconfig:"GENERATIVE_TEMPERATURE" split_words:"true" default:"-1"`
}

// Enabled reports whether a completion API is configured. When it is not,
// every call site runs on its deterministic fallback.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

// Validate accepts an unconfigured API but rejects a half-configured one.
func (c Config) Validate() error {
	hasKey := strings.TrimSpace(c.APIKey) != ""
	hasModel := strings.TrimSpace(c.Model) != ""
	if hasKey && !hasModel {
		return fmt.Errorf("%w: default model is required when an api key is set", contractx.ErrValidation)
	}
	if hasModel && !hasKey {
		return fmt.Errorf("%w: openrouter api key is required when a model is set", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	var override string
	var overrideTemp float32 = -1
	switch role {
	case RoleRouter:
		override, overrideTemp = c.RouterModel, c.RouterTemperature
	case RoleConversation:
		override, overrideTemp = c.ConversationModel, c.ConversationTemperature
	case RoleGenerative:
		override, overrideTemp = c.GenerativeModel, c.GenerativeTemperature
	}
	if v := strings.TrimSpace(override); v != "" {
		modelName = v
	}
	if overrideTemp >= 0 {
		temp = overrideTemp
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
