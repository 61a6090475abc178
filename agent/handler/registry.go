// Package handler implements one capability per manifest key and the static
// registry that dispatches to them.
package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	payloadx "github.com/tanpawarit/Chative-Finance-Assistant/agent/payload"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("finance-assistant/handler")

// Registry is a read-only key to handler map built once at startup.
type Registry struct {
	handlers  map[string]contractx.Handler
	validator *payloadx.Validator
}

var _ contractx.Dispatcher = (*Registry)(nil)

// NewRegistry requires exactly one handler and one schema per manifest key.
func NewRegistry(
	m *manifestx.Manifest,
	validator *payloadx.Validator,
	handlers map[string]contractx.Handler,
) (*Registry, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is required", contractx.ErrValidation)
	}
	if validator == nil {
		return nil, fmt.Errorf("%w: payload validator is required", contractx.ErrValidation)
	}

	var problems []string
	for _, key := range m.Keys() {
		if h, ok := handlers[key]; !ok || h == nil {
			problems = append(problems, fmt.Sprintf("no handler for %q", key))
		}
		if !validator.Has(key) {
			problems = append(problems, fmt.Sprintf("no schema for %q", key))
		}
	}
	extra := make([]string, 0)
	for key := range handlers {
		if !m.Has(key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		problems = append(problems, fmt.Sprintf("handler %q is not in the manifest", key))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", contractx.ErrManifest, strings.Join(problems, "; "))
	}

	own := make(map[string]contractx.Handler, len(handlers))
	for k, h := range handlers {
		own[k] = h
	}
	return &Registry{handlers: own, validator: validator}, nil
}

func (r *Registry) Has(key string) bool {
	_, ok := r.handlers[key]
	return ok
}

// Dispatch runs the handler bound to key and validates its payload.
// A schema violation is returned as is and must stop the turn.
func (r *Registry) Dispatch(
	ctx context.Context,
	key string,
	text string,
	hctx contractx.HandlerContext,
) (contractx.AgentResponse, error) {
	h, ok := r.handlers[key]
	if !ok {
		return contractx.AgentResponse{}, fmt.Errorf("%w: %q", contractx.ErrUnknownAgent, key)
	}

	ctx, span := tracer.Start(ctx, "handler.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("handler.agent", key))

	resp, err := h.Handle(ctx, text, hctx)
	if err != nil {
		span.RecordError(err)
		return contractx.AgentResponse{}, fmt.Errorf("agent=%s: %w", key, err)
	}
	if err := r.validator.Validate(key, resp); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("agent", key).Msg("handler payload rejected")
		return contractx.AgentResponse{}, err
	}

	span.SetAttributes(attribute.String("handler.content_type", string(resp.ContentType)))
	log.Debug().Str("agent", key).Str("content_type", string(resp.ContentType)).Msg("handler completed")
	return resp, nil
}
