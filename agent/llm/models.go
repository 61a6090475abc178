package llm

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

// Models hands out one chat model per role.
type Models struct {
	Router       einomodel.BaseChatModel
	Conversation einomodel.BaseChatModel
	Generative   einomodel.BaseChatModel
}

// NewModels builds OpenRouter-backed models, or disabled ones when no API is configured.
func NewModels(ctx context.Context, cfg Config) (Models, error) {
	if !cfg.Enabled() {
		log.Warn().Msg("completion api is not configured; running on deterministic fallbacks")
		return DisabledModels(), nil
	}
	if err := cfg.Validate(); err != nil {
		return Models{}, err
	}

	var out Models
	for role, dst := range map[Role]*einomodel.BaseChatModel{
		RoleRouter:       &out.Router,
		RoleConversation: &out.Conversation,
		RoleGenerative:   &out.Generative,
	} {
		roleCfg := cfg.OpenRouterFor(role)
		m, err := roleCfg.New(ctx)
		if err != nil {
			return Models{}, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		*dst = m
	}
	return out, nil
}

func DisabledModels() Models {
	return Models{
		Router:       disabledModel{},
		Conversation: disabledModel{},
		Generative:   disabledModel{},
	}
}

type disabledModel struct{}

func (disabledModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return nil, fmt.Errorf("%w: completion api disabled", contractx.ErrModelInvoke)
}

func (disabledModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("%w: completion api disabled", contractx.ErrModelInvoke)
}
