package contract

import "context"

// Handler is implemented by every capability listed in the manifest.
type Handler interface {
	Handle(ctx context.Context, text string, hctx HandlerContext) (AgentResponse, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, text string, hctx HandlerContext) (AgentResponse, error)

func (f HandlerFunc) Handle(ctx context.Context, text string, hctx HandlerContext) (AgentResponse, error) {
	return f(ctx, text, hctx)
}

type Classifier interface {
	Classify(ctx context.Context, text string) Classification
}

type Dispatcher interface {
	Dispatch(ctx context.Context, key string, text string, hctx HandlerContext) (AgentResponse, error)
}

type Formatter interface {
	Finalize(ctx context.Context, agentKey string, resp AgentResponse) (AgentResponse, error)
}
