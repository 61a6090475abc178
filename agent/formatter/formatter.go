// Package formatter turns a handler result into the single message delivered
// to the user.
package formatter

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

// DefaultPassthrough lists the content types delivered without re-narration.
var DefaultPassthrough = []contractx.ContentType{
	contractx.ContentChart,
	contractx.ContentImage,
	contractx.ContentButtons,
}

type Formatter struct {
	dispatcher  contractx.Dispatcher
	passthrough map[contractx.ContentType]struct{}
}

var _ contractx.Formatter = (*Formatter)(nil)

// New builds a Formatter that narrates through the conversation capability.
// A nil passthrough means DefaultPassthrough; an empty, non-nil one narrates everything.
func New(dispatcher contractx.Dispatcher, passthrough []contractx.ContentType) (*Formatter, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", contractx.ErrValidation)
	}
	if passthrough == nil {
		passthrough = DefaultPassthrough
	}
	set := make(map[contractx.ContentType]struct{}, len(passthrough))
	for _, ct := range passthrough {
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: passthrough content type=%q", contractx.ErrValidation, ct)
		}
		set[ct] = struct{}{}
	}
	return &Formatter{dispatcher: dispatcher, passthrough: set}, nil
}

func (f *Formatter) Passthrough(ct contractx.ContentType) bool {
	_, ok := f.passthrough[ct]
	return ok
}

// Finalize returns resp untouched for conversation results and passthrough
// content types, otherwise re-narrates it. Either way a messages array is
// collapsed into one text bubble.
func (f *Formatter) Finalize(ctx context.Context, agentKey string, resp contractx.AgentResponse) (contractx.AgentResponse, error) {
	if agentKey == contractx.AgentConversation || f.Passthrough(resp.ContentType) {
		return MergeMessages(resp), nil
	}

	narrated, err := f.dispatcher.Dispatch(ctx, contractx.AgentConversation, "", contractx.HandlerContext{
		contractx.CtxSource:  contractx.SourceData,
		contractx.CtxAgent:   agentKey,
		contractx.CtxPayload: resp.Payload,
	})
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	log.Debug().Str("agent", agentKey).Str("from", string(resp.ContentType)).Msg("result re-narrated")
	return MergeMessages(narrated), nil
}

// MergeMessages folds a TEXT payload's messages into a single text field.
// Other payloads are returned as is.
func MergeMessages(resp contractx.AgentResponse) contractx.AgentResponse {
	if resp.ContentType != contractx.ContentText {
		return resp
	}
	msgs := resp.Payload.Strings("messages")
	if _, ok := resp.Payload["messages"]; !ok {
		return resp
	}

	out := make(contractx.Payload, len(resp.Payload))
	for k, v := range resp.Payload {
		if k != "messages" {
			out[k] = v
		}
	}
	if merged := Merge(msgs); merged != "" {
		out["text"] = merged
	}
	return contractx.AgentResponse{ContentType: resp.ContentType, Payload: out}
}

// Merge keeps the first and last fragments verbatim and lists any middle
// fragments under "Try these:".
func Merge(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, s := range fragments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + "\n\n" + parts[1]
	}

	var b strings.Builder
	b.WriteString(parts[0])
	b.WriteString("\n\nTry these:")
	for _, m := range parts[1 : len(parts)-1] {
		b.WriteString("\n• ")
		b.WriteString(m)
	}
	b.WriteString("\n\n")
	b.WriteString(parts[len(parts)-1])
	return b.String()
}
