package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

// Structured sends one system prompt plus a user payload to the completion API
// and decodes a single JSON object into T.
type Structured[T any] struct {
	runner compose.Runnable[string, T]
}

func NewStructured[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (*Structured[T], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is nil for %s", contractx.ErrValidation, graphName)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: %s", contractx.ErrPromptMissing, graphName)
	}
	runner, err := compileStructuredLLMGraph[T](ctx, chatModel, systemPrompt, graphName)
	if err != nil {
		return nil, err
	}
	return &Structured[T]{runner: runner}, nil
}

// Invoke marshals input (strings pass through) and returns the decoded object.
// Transport failures and unparsable output both surface as ErrModelInvoke.
func (s *Structured[T]) Invoke(ctx context.Context, input any) (T, error) {
	var zero T

	var text string
	switch v := input.(type) {
	case string:
		text = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("%w: marshal input: %v", contractx.ErrValidation, err)
		}
		text = string(raw)
	}

	out, err := s.runner.Invoke(ctx, text)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[string, T], error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[string, T]()
	if err := graph.AddLambdaNode("messages",
		compose.InvokableLambda(func(ctx context.Context, input string) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(input),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add structured messages node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("sanitize", compose.InvokableLambda(sanitizeJSONMessage)); err != nil {
		return nil, fmt.Errorf("add structured sanitize node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "messages"},
		{"messages", "model"},
		{"model", "sanitize"},
		{"sanitize", "parse_json"},
		{"parse_json", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add structured edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph %s: %w", graphName, err)
	}
	return runner, nil
}

// sanitizeJSONMessage strips markdown fences and prose around the first JSON object.
func sanitizeJSONMessage(_ context.Context, msg *schema.Message) (*schema.Message, error) {
	if msg == nil {
		return nil, errors.New("empty model response")
	}
	content := strings.TrimSpace(msg.Content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, errors.New("model response is not a json object")
	}

	out := *msg
	out.Content = content[start : end+1]
	return &out, nil
}
