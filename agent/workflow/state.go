package workflow

import (
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

type Phase string

const (
	PhaseStarted Phase = "started"
	PhaseRouted  Phase = "routed"
	PhaseHandled Phase = "handled"
	PhaseDone    Phase = "done"
)

// TurnState is owned by one turn. Transitions return a new value; the
// receiver is never modified.
type TurnState struct {
	Text       string
	Context    contractx.HandlerContext
	Phase      Phase
	Route      contractx.Classification
	NextAgent  string
	Transcript []contractx.TranscriptStep
	Result     contractx.AgentResponse
	Hops       int
	Done       bool
}

func newTurnState(text string, hctx contractx.HandlerContext) TurnState {
	return TurnState{Text: text, Context: hctx, Phase: PhaseStarted}
}

func (s TurnState) clone() TurnState {
	out := s
	out.Transcript = append([]contractx.TranscriptStep(nil), s.Transcript...)
	return out
}

func (s TurnState) routed(c contractx.Classification) TurnState {
	out := s.clone()
	out.Route = c
	out.NextAgent = c.AgentKey
	out.Phase = PhaseRouted
	return out
}

// handled records one hop. An empty next marks the turn done.
func (s TurnState) handled(agent string, resp contractx.AgentResponse, next string) TurnState {
	out := s.clone()
	out.Transcript = append(out.Transcript, contractx.TranscriptStep{
		Agent:       agent,
		ContentType: resp.ContentType,
		Payload:     resp.Payload,
	})
	out.Result = resp
	out.Hops++
	out.NextAgent = next
	out.Phase = PhaseHandled
	if next == "" {
		out.Done = true
		out.Phase = PhaseDone
	}
	return out
}

// Agents lists the keys in transcript order.
func (s TurnState) Agents() []string {
	out := make([]string, 0, len(s.Transcript))
	for _, step := range s.Transcript {
		out = append(out, step.Agent)
	}
	return out
}

// FinalAgent is the key of the handler that produced Result.
func (s TurnState) FinalAgent() string {
	if len(s.Transcript) == 0 {
		return ""
	}
	return s.Transcript[len(s.Transcript)-1].Agent
}
