package router

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
)

type fakeChatModel struct {
	content string
	err     error
	calls   int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newTestRouter(t *testing.T, chatModel einomodel.BaseChatModel) *Router {
	t.Helper()

	m, err := manifestx.Default()
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	r, err := New(context.Background(), m, chatModel, "route the message")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestClassifyResolvesDisplayName(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{
		content: "```json\n{\"agent\":\"Debt Strategy Agent\",\"intent\":\"debt_payoff\",\"params\":{\"amount\":500}}\n```",
	})

	got := r.Classify(context.Background(), "anything")
	if got.AgentKey != contractx.AgentDebtStrategy {
		t.Fatalf("agent key = %q, want %q", got.AgentKey, contractx.AgentDebtStrategy)
	}
	if got.Source != contractx.SourceModel {
		t.Fatalf("source = %q, want model", got.Source)
	}
	if got.Intent != "debt_payoff" {
		t.Fatalf("intent = %q", got.Intent)
	}
	if got.Params["amount"] != float64(500) {
		t.Fatalf("params = %#v", got.Params)
	}
}

func TestClassifyUnknownAgentFallsBack(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{content: `{"agent":"Crypto Oracle","intent":"moon"}`})

	got := r.Classify(context.Background(), "what about my taxes")
	if got.AgentKey != contractx.AgentTaxPension {
		t.Fatalf("agent key = %q, want %q", got.AgentKey, contractx.AgentTaxPension)
	}
	if got.Source != contractx.SourceHeuristic {
		t.Fatalf("source = %q, want heuristic", got.Source)
	}
}

func TestClassifyMalformedJSONFallsBack(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeChatModel{content: "I think the reporting agent fits"})

	got := r.Classify(context.Background(), "draw a graph")
	if got.AgentKey != contractx.AgentReporting {
		t.Fatalf("agent key = %q, want %q", got.AgentKey, contractx.AgentReporting)
	}
}

func TestClassifyDisabledModel(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, llmx.DisabledModels().Router)

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "chart of spending", text: "I want a chart of my spending", want: contractx.AgentReporting},
		{name: "chart beats goal", text: "Show my goal progress as a chart", want: contractx.AgentReporting},
		{name: "goal", text: "How are my Goals going?", want: contractx.AgentGoalSetting},
		{name: "safety", text: "safety check", want: contractx.AgentSafety},
		{name: "tax", text: "tax question", want: contractx.AgentTaxPension},
		{name: "investing", text: "I started investing", want: contractx.AgentInvestment},
		{name: "cash", text: "cash position", want: contractx.AgentCashFlow},
		{name: "loan", text: "pay down my car loan", want: contractx.AgentDebtStrategy},
		{name: "reminder", text: "set a reminder for rent", want: contractx.AgentReminderScheduler},
		{name: "privacy", text: "please delete my data", want: contractx.AgentCompliancePrivacy},
		{name: "greeting", text: "hi there", want: contractx.AgentConversation},
		{name: "hi inside word", text: "this month", want: contractx.AgentOnboarding},
		{name: "chart inside word", text: "flowchart of spending", want: contractx.AgentReporting},
		{name: "invest inside word", text: "reinvest my dividends", want: contractx.AgentInvestment},
		{name: "tax inside word", text: "pretax savings", want: contractx.AgentTaxPension},
		{name: "mixed case substring", text: "My PAYOFF plan", want: contractx.AgentDebtStrategy},
		{name: "default", text: "where do I start", want: contractx.AgentOnboarding},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := r.Classify(context.Background(), tc.text)
			if got.AgentKey != tc.want {
				t.Fatalf("Classify(%q) = %q, want %q", tc.text, got.AgentKey, tc.want)
			}
			if got.Source != contractx.SourceHeuristic {
				t.Fatalf("source = %q, want heuristic", got.Source)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{content: `{"agent":"Cash Flow Agent","intent":"cash_flow_summary","params":{}}`}
	r := newTestRouter(t, fake)

	first := r.Classify(context.Background(), "how is my month")
	for i := 0; i < 5; i++ {
		got := r.Classify(context.Background(), "how is my month")
		if got.AgentKey != first.AgentKey {
			t.Fatalf("call %d agent = %q, want %q", i, got.AgentKey, first.AgentKey)
		}
	}
	if fake.calls != 6 {
		t.Fatalf("model calls = %d, want 6", fake.calls)
	}
}

func TestNewRequiresManifest(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil, &fakeChatModel{}, "prompt")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
