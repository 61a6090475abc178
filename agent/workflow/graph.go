package workflow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

const routerNode = "router"

// chain is a conditional second hop taken when from returns when.
type chain struct {
	from string
	when contractx.ContentType
	to   string
}

// Completing the baseline snapshot goes straight on to the spending report.
var defaultChains = []chain{
	{from: contractx.AgentOnboarding, when: contractx.ContentText, to: contractx.AgentReporting},
}

func handlerNode(key string) string {
	return "handler." + key
}

func (e *Executor) compileTurnGraph(ctx context.Context) (compose.Runnable[*TurnState, *TurnState], error) {
	graph := compose.NewGraph[*TurnState, *TurnState]()

	if err := graph.AddLambdaNode(routerNode,
		compose.InvokableLambda(func(ctx context.Context, in *TurnState) (*TurnState, error) {
			if in == nil {
				return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
			}
			out := in.routed(e.classifier.Classify(ctx, in.Text))
			return &out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", routerNode, err)
	}

	routeTargets := make(map[string]bool, len(e.keys))
	for _, key := range e.keys {
		key := key
		if err := graph.AddLambdaNode(handlerNode(key),
			compose.InvokableLambda(func(ctx context.Context, in *TurnState) (*TurnState, error) {
				return e.runHandler(ctx, key, in)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", handlerNode(key), err)
		}
		routeTargets[handlerNode(key)] = true
	}

	if err := graph.AddEdge(compose.START, routerNode); err != nil {
		return nil, fmt.Errorf("add edge start->%s: %w", routerNode, err)
	}
	if err := graph.AddBranch(routerNode, compose.NewGraphBranch(e.nextNode, routeTargets)); err != nil {
		return nil, fmt.Errorf("add branch %s: %w", routerNode, err)
	}

	chained := make(map[string][]chain)
	for _, c := range e.chains {
		chained[c.from] = append(chained[c.from], c)
	}
	for _, key := range e.keys {
		links, ok := chained[key]
		if !ok {
			if err := graph.AddEdge(handlerNode(key), compose.END); err != nil {
				return nil, fmt.Errorf("add edge %s->end: %w", handlerNode(key), err)
			}
			continue
		}
		targets := map[string]bool{compose.END: true}
		for _, c := range links {
			targets[handlerNode(c.to)] = true
		}
		if err := graph.AddBranch(handlerNode(key), compose.NewGraphBranch(e.nextNode, targets)); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", handlerNode(key), err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("workflow.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile workflow graph: %w", err)
	}
	return runner, nil
}

// nextNode maps the state's pending agent to a node, or END once the turn is done.
func (e *Executor) nextNode(_ context.Context, in *TurnState) (string, error) {
	if in == nil {
		return "", fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}
	if in.Done {
		return compose.END, nil
	}
	if _, ok := e.known[in.NextAgent]; !ok {
		return "", fmt.Errorf("%w: %q", contractx.ErrUnknownAgent, in.NextAgent)
	}
	return handlerNode(in.NextAgent), nil
}

func (e *Executor) runHandler(ctx context.Context, key string, in *TurnState) (*TurnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}
	if in.Hops >= e.maxHops {
		return nil, fmt.Errorf("%w: %d hops, next=%s", contractx.ErrHopLimit, in.Hops, key)
	}

	resp, err := e.dispatcher.Dispatch(ctx, key, in.Text, in.Context)
	if err != nil {
		return nil, err
	}

	next := ""
	for _, c := range e.chains {
		if c.from == key && c.when == resp.ContentType {
			next = c.to
			break
		}
	}
	out := in.handled(key, resp, next)
	return &out, nil
}
