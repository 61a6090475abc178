// Package router classifies a user message into a manifest agent key.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("finance-assistant/router")

var errUnresolvedAgent = errors.New("classified agent is not in the manifest")

type routerOutput struct {
	Agent  string         `json:"agent"`
	Intent string         `json:"intent"`
	Params map[string]any `json:"params"`
}

type Router struct {
	manifest *manifestx.Manifest
	llm      *llmx.Structured[routerOutput]
}

var _ contractx.Classifier = (*Router)(nil)

func New(
	ctx context.Context,
	m *manifestx.Manifest,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (*Router, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is required", contractx.ErrValidation)
	}
	structured, err := llmx.NewStructured[routerOutput](ctx, chatModel, systemPrompt, "router.classify")
	if err != nil {
		return nil, err
	}
	return &Router{manifest: m, llm: structured}, nil
}

// Classify never fails. Completion errors, unparsable output and unknown
// agent names all downgrade to the keyword heuristic.
func (r *Router) Classify(ctx context.Context, text string) contractx.Classification {
	ctx, span := tracer.Start(ctx, "router.classify")
	defer span.End()

	out, err := r.classifyWithModel(ctx, text)
	if err == nil {
		span.SetAttributes(
			attribute.String("router.agent", out.AgentKey),
			attribute.String("router.source", out.Source),
		)
		return out
	}

	log.Warn().Err(err).Msg("router falling back to keyword heuristic")
	out = heuristicClassify(text)
	if !r.manifest.Has(out.AgentKey) {
		// keyword table and manifest disagree; onboarding is the documented default
		out.AgentKey = contractx.AgentOnboarding
	}
	span.SetAttributes(
		attribute.String("router.agent", out.AgentKey),
		attribute.String("router.source", out.Source),
	)
	return out
}

func (r *Router) classifyWithModel(ctx context.Context, text string) (contractx.Classification, error) {
	raw, err := r.llm.Invoke(ctx, text)
	if err != nil {
		return contractx.Classification{}, err
	}

	key, ok := r.manifest.Resolve(raw.Agent)
	if !ok {
		return contractx.Classification{}, fmt.Errorf("%w: %q", errUnresolvedAgent, raw.Agent)
	}

	params := raw.Params
	if params == nil {
		params = map[string]any{}
	}
	return contractx.Classification{
		AgentKey: key,
		Intent:   strings.TrimSpace(raw.Intent),
		Params:   params,
		Source:   contractx.SourceModel,
	}, nil
}
