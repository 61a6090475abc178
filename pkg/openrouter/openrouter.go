package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ChatModelBuilder builds the eino chat model behind one llm role.
type ChatModelBuilder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ ChatModelBuilder = (*Config)(nil)

// Models that reject the reasoning block unless it is explicitly disabled.
var reasoningExcluded = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

// Config addresses one model on an OpenAI-compatible endpoint. It is filled
// per role by the llm package rather than read from the environment.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	MaxCompletionToken *int
	Temperature        float32
	Timeout            time.Duration
	SiteURL            string
	SiteName           string
}

func (c *Config) endpoint() string {
	if trimmed := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); trimmed != "" {
		return trimmed
	}
	return DefaultBaseURL
}

func (c *Config) extraFields() map[string]any {
	if !reasoningExcluded[strings.TrimSpace(c.Model)] {
		return nil
	}
	return map[string]any{
		"reasoning": map[string]any{"exclude": true, "effort": "none"},
	}
}

// New returns a chat model speaking the OpenAI wire format.
func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	temperature := c.Temperature
	m, err := openaimodel.NewChatModel(ctx, &openaimodel.ChatModelConfig{
		BaseURL:     c.endpoint(),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       strings.TrimSpace(c.Model),
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &temperature,
		Timeout:     c.Timeout,
		ExtraFields: c.extraFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: chat model %s: %w", c.Model, err)
	}
	return m, nil
}

// NewClient returns nil when no API key is configured.
func NewClient(cfg Config) *openaisdk.Client {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.endpoint()),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	// attribution headers read by openrouter.ai
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}

// Preflight checks that the endpoint serves modelName before the first turn.
func Preflight(ctx context.Context, client *openaisdk.Client, modelName string) error {
	if client == nil {
		return errors.New("openrouter: no api key configured")
	}
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return errors.New("openrouter: model is empty")
	}
	m, err := client.Models.Get(ctx, modelName)
	switch {
	case err != nil:
		return fmt.Errorf("openrouter: get model %s: %w", modelName, err)
	case m == nil || m.ID == "":
		return fmt.Errorf("openrouter: model %s not found", modelName)
	}
	return nil
}
