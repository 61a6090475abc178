// Package workflow runs one conversation turn through the fixed router and
// handler graph.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultMaxHops = 3

var tracer = otel.Tracer("finance-assistant/workflow")

type Config struct {
	MaxHops int
}

type Executor struct {
	classifier contractx.Classifier
	dispatcher contractx.Dispatcher
	formatter  contractx.Formatter

	keys    []string
	known   map[string]struct{}
	chains  []chain
	maxHops int

	runner compose.Runnable[*TurnState, *TurnState]
}

func New(
	ctx context.Context,
	m *manifestx.Manifest,
	classifier contractx.Classifier,
	dispatcher contractx.Dispatcher,
	formatter contractx.Formatter,
	cfg Config,
) (*Executor, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is required", contractx.ErrValidation)
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", contractx.ErrValidation)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", contractx.ErrValidation)
	}
	if formatter == nil {
		return nil, fmt.Errorf("%w: formatter is required", contractx.ErrValidation)
	}

	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	e := &Executor{
		classifier: classifier,
		dispatcher: dispatcher,
		formatter:  formatter,
		keys:       m.Keys(),
		known:      make(map[string]struct{}, len(m.Keys())),
		maxHops:    maxHops,
	}
	for _, k := range e.keys {
		e.known[k] = struct{}{}
	}
	for _, c := range defaultChains {
		_, fromOK := e.known[c.from]
		_, toOK := e.known[c.to]
		if !fromOK || !toOK {
			return nil, fmt.Errorf("%w: chain %s->%s references an unknown agent", contractx.ErrManifest, c.from, c.to)
		}
		e.chains = append(e.chains, c)
	}

	runner, err := e.compileTurnGraph(ctx)
	if err != nil {
		return nil, err
	}
	e.runner = runner
	return e, nil
}

// RunTurn routes text and runs up to MaxHops handlers. The returned state is
// done on success; handler schema violations and the hop limit are returned as errors.
func (e *Executor) RunTurn(ctx context.Context, text string, hctx contractx.HandlerContext) (TurnState, error) {
	start := newTurnState(strings.TrimSpace(text), hctx)
	out, err := e.runner.Invoke(ctx, &start, compose.WithRuntimeMaxSteps(e.maxSteps()))
	if err != nil {
		return TurnState{}, err
	}
	if out == nil || !out.Done {
		return TurnState{}, contractx.ErrIncompleteTurn
	}
	return *out, nil
}

// Outcome is a finished turn: the deliverable message and the state behind it.
type Outcome struct {
	Response contractx.AgentResponse
	State    TurnState
}

// Agent is the key of the handler whose result was delivered.
func (o Outcome) Agent() string {
	return o.State.FinalAgent()
}

// HandleTurn is the inbound entry point: route, run the handlers and return
// one deliverable message.
func (e *Executor) HandleTurn(ctx context.Context, text string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	out, err := e.Turn(ctx, text, hctx)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	return out.Response, nil
}

// Turn runs the turn and shapes the final result through the formatter.
func (e *Executor) Turn(ctx context.Context, text string, hctx contractx.HandlerContext) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "workflow.turn")
	defer span.End()

	started := time.Now()
	st, err := e.RunTurn(ctx, text, hctx)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("turn failed")
		return Outcome{}, err
	}

	final, err := e.formatter.Finalize(ctx, st.FinalAgent(), st.Result)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("agent", st.FinalAgent()).Msg("formatting failed")
		return Outcome{}, err
	}

	span.SetAttributes(
		attribute.StringSlice("workflow.agents", st.Agents()),
		attribute.String("workflow.route_source", st.Route.Source),
		attribute.String("workflow.content_type", string(final.ContentType)),
	)
	log.Info().
		Strs("agents", st.Agents()).
		Str("route_source", st.Route.Source).
		Str("intent", st.Route.Intent).
		Str("content_type", string(final.ContentType)).
		Dur("elapsed", time.Since(started)).
		Msg("turn completed")
	return Outcome{Response: final, State: st}, nil
}

// maxSteps is a runtime backstop; the hop limit in runHandler trips first.
func (e *Executor) maxSteps() int {
	return 2*e.maxHops + 4
}
