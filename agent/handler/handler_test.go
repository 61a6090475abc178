package handler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
	llmx "github.com/tanpawarit/Chative-Finance-Assistant/agent/llm"
	manifestx "github.com/tanpawarit/Chative-Finance-Assistant/agent/manifest"
	payloadx "github.com/tanpawarit/Chative-Finance-Assistant/agent/payload"
	promptx "github.com/tanpawarit/Chative-Finance-Assistant/agent/prompt"
)

type fakeChatModel struct {
	content string
	err     error
	inputs  [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

var fixedNow = func() time.Time { return time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	manifest  *manifestx.Manifest
	validator *payloadx.Validator
	prompts   promptx.PromptSet
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	m, err := manifestx.Default()
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	v, err := payloadx.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	prompts, err := promptx.LoadPromptSet(m)
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	return fixture{manifest: m, validator: v, prompts: prompts}
}

func (f fixture) registry(t *testing.T, models llmx.Models) *Registry {
	t.Helper()

	r, err := NewDefaultRegistry(context.Background(), f.manifest, f.validator, Options{
		Models:  models,
		Prompts: f.prompts,
		Now:     fixedNow,
	})
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	return r
}

func generativeModels(chatModel einomodel.BaseChatModel) llmx.Models {
	return llmx.Models{Router: chatModel, Conversation: chatModel, Generative: chatModel}
}

func TestEveryHandlerReturnsValidPayloadWithoutData(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.registry(t, llmx.DisabledModels())

	for _, key := range f.manifest.Keys() {
		resp, err := r.Dispatch(context.Background(), key, "hello", nil)
		if err != nil {
			t.Fatalf("Dispatch(%s) error = %v", key, err)
		}
		if !resp.ContentType.Valid() {
			t.Fatalf("Dispatch(%s) content type = %q", key, resp.ContentType)
		}
	}
}

func TestNewRegistryRequiresEveryManifestKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handlers, err := Defaults(context.Background(), f.manifest, Options{Models: llmx.DisabledModels(), Prompts: f.prompts})
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}

	delete(handlers, contractx.AgentSafety)
	_, err = NewRegistry(f.manifest, f.validator, handlers)
	if !errors.Is(err, contractx.ErrManifest) || !strings.Contains(err.Error(), `"safety"`) {
		t.Fatalf("missing handler err = %v", err)
	}

	handlers[contractx.AgentSafety] = contractx.HandlerFunc(Safety)
	handlers["crypto"] = contractx.HandlerFunc(Safety)
	_, err = NewRegistry(f.manifest, f.validator, handlers)
	if !errors.Is(err, contractx.ErrManifest) || !strings.Contains(err.Error(), `"crypto"`) {
		t.Fatalf("extra handler err = %v", err)
	}
}

func TestDispatchUnknownAgent(t *testing.T) {
	t.Parallel()

	r := newFixture(t).registry(t, llmx.DisabledModels())
	_, err := r.Dispatch(context.Background(), "Reporting Agent", "x", nil)
	if !errors.Is(err, contractx.ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestDispatchSchemaViolationIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handlers, err := Defaults(context.Background(), f.manifest, Options{Models: llmx.DisabledModels(), Prompts: f.prompts})
	if err != nil {
		t.Fatalf("Defaults() error = %v", err)
	}
	handlers[contractx.AgentReporting] = contractx.HandlerFunc(func(context.Context, string, contractx.HandlerContext) (contractx.AgentResponse, error) {
		return contractx.AgentResponse{
			ContentType: contractx.ContentChart,
			Payload:     contractx.Payload{"title": "Spending", "labels": []string{"Food"}},
		}, nil
	})
	r, err := NewRegistry(f.manifest, f.validator, handlers)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	_, err = r.Dispatch(context.Background(), contractx.AgentReporting, "chart", nil)
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("err = %v, want ErrSchemaViolation", err)
	}
}

func TestOnboardingBranches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hctx    contractx.HandlerContext
		want    contractx.ContentType
		missing []string
	}{
		{
			name: "profile complete",
			hctx: contractx.HandlerContext{"profile": map[string]any{"monthly_income": 5000, "monthly_expenses": 3500}},
			want: contractx.ContentText,
		},
		{
			name: "ledger only",
			hctx: contractx.HandlerContext{"ledger": []any{
				map[string]any{"date": "2026-01-03", "amount": 4000, "category": "Salary"},
				map[string]any{"date": "2026-01-09", "amount": -1200, "category": "Rent"},
			}},
			want: contractx.ContentText,
		},
		{
			name:    "statement upload",
			hctx:    contractx.HandlerContext{"onboarding_image_url": "https://cdn.example.com/statement.png"},
			want:    contractx.ContentImage,
			missing: []string{"monthly_income", "monthly_expenses"},
		},
		{
			name:    "nothing known",
			hctx:    contractx.HandlerContext{"profile": map[string]any{"monthly_income": "6000"}},
			want:    contractx.ContentButtons,
			missing: []string{"monthly_expenses"},
		},
	}

	v := payloadx.MustNewValidator()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resp, err := Onboarding(context.Background(), "", tc.hctx)
			if err != nil {
				t.Fatalf("Onboarding() error = %v", err)
			}
			if resp.ContentType != tc.want {
				t.Fatalf("content type = %s, want %s", resp.ContentType, tc.want)
			}
			if err := v.Validate(contractx.AgentOnboarding, resp); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got := resp.Payload.Strings("missing_info"); strings.Join(got, ",") != strings.Join(tc.missing, ",") {
				t.Fatalf("missing_info = %v, want %v", got, tc.missing)
			}
		})
	}
}

func TestOnboardingSnapshotNumbers(t *testing.T) {
	t.Parallel()

	resp, err := Onboarding(context.Background(), "", contractx.HandlerContext{
		"profile": contractx.Profile{MonthlyIncome: 5000, MonthlyExpenses: 4000},
	})
	if err != nil {
		t.Fatalf("Onboarding() error = %v", err)
	}
	snap, _ := resp.Payload["snapshot"].(map[string]any)
	if snap["net"] != float64(1000) || snap["savings_rate"] != float64(20) {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestReportingSources(t *testing.T) {
	t.Parallel()

	ledger := contractx.HandlerContext{"ledger": []contractx.Transaction{
		{Date: "2026-01-02", Category: "Food", Amount: -40},
		{Date: "2026-01-05", Category: "Rent", Amount: -1200},
		{Date: "2026-01-07", Category: "Food", Amount: -60.5},
		{Date: "2026-01-08", Category: "Salary", Amount: 5000},
		{Date: "2026-01-09", Amount: -10},
	}}
	resp, err := Reporting(context.Background(), "", ledger)
	if err != nil {
		t.Fatalf("Reporting() error = %v", err)
	}
	if got := strings.Join(resp.Payload.Strings("labels"), ","); got != "Rent,Food,Uncategorized" {
		t.Fatalf("labels = %s", got)
	}
	if resp.Payload["total"] != 1310.5 {
		t.Fatalf("total = %v", resp.Payload["total"])
	}

	resp, err = Reporting(context.Background(), "", contractx.HandlerContext{"budgets": map[string]any{"Food": 300, "Fun": 100}})
	if err != nil {
		t.Fatalf("Reporting() error = %v", err)
	}
	if resp.Payload.String("title") != "Budget by category" {
		t.Fatalf("title = %q", resp.Payload.String("title"))
	}

	resp, err = Reporting(context.Background(), "show me a chart", nil)
	if err != nil {
		t.Fatalf("Reporting() error = %v", err)
	}
	labels := resp.Payload.Strings("labels")
	values, _ := resp.Payload["values"].([]any)
	if resp.ContentType != contractx.ContentChart || len(labels) == 0 || len(values) == 0 {
		t.Fatalf("empty reporting = %#v", resp)
	}
}

func TestGoalSettingMonthlyNeeded(t *testing.T) {
	t.Parallel()

	g := NewGoalSetting(fixedNow)
	resp, err := g.Handle(context.Background(), "", contractx.HandlerContext{"goals": []any{
		map[string]any{"name": "Emergency fund", "target": 6000, "saved": 1200, "deadline": "2026-07-01"},
		map[string]any{"name": "Trip", "target": 1000, "saved": 1500},
	}})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if err := payloadx.MustNewValidator().Validate(contractx.AgentGoalSetting, resp); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	goals, _ := resp.Payload["goals"].([]any)
	if len(goals) != 2 {
		t.Fatalf("goals = %#v", goals)
	}
	first := goals[0].(map[string]any)
	if first["progress_pct"] != float64(20) || first["monthly_needed"] != float64(800) {
		t.Fatalf("first goal = %#v", first)
	}
	second := goals[1].(map[string]any)
	if second["progress_pct"] != float64(100) {
		t.Fatalf("second goal = %#v", second)
	}
}

func TestSafetyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fund, expenses float64
		want           string
	}{
		{fund: 20000, expenses: 3000, want: "healthy"},
		{fund: 10000, expenses: 3000, want: "building"},
		{fund: 1000, expenses: 3000, want: "at_risk"},
		{fund: 1000, expenses: 0, want: "unknown"},
	}
	for _, tc := range tests {
		resp, err := Safety(context.Background(), "", contractx.HandlerContext{
			"profile": contractx.Profile{EmergencyFund: tc.fund, MonthlyExpenses: tc.expenses},
		})
		if err != nil {
			t.Fatalf("Safety() error = %v", err)
		}
		if got := resp.Payload.String("status"); got != tc.want {
			t.Fatalf("status(%v/%v) = %s, want %s", tc.fund, tc.expenses, got, tc.want)
		}
	}
}

func TestTaxPensionPercentages(t *testing.T) {
	t.Parallel()

	resp, err := TaxPension(context.Background(), "", contractx.HandlerContext{
		"profile": map[string]any{"tax_bracket": 0.32, "pension_contribution_rate": 5},
	})
	if err != nil {
		t.Fatalf("TaxPension() error = %v", err)
	}
	if resp.Payload["tax_bracket"] != float64(32) {
		t.Fatalf("tax_bracket = %v", resp.Payload["tax_bracket"])
	}
	if got := len(resp.Payload.Strings("suggestions")); got != 3 {
		t.Fatalf("suggestions = %d, want 3", got)
	}
	if _, ok := resp.Payload["missing_info"]; ok {
		t.Fatal("missing_info must be omitted when profile is complete")
	}
}

func TestInvestmentAllocation(t *testing.T) {
	t.Parallel()

	resp, err := Investment(context.Background(), "", contractx.HandlerContext{"holdings": []contractx.Holding{
		{Symbol: "VTI", AssetClass: "Equity", Value: 7000},
		{Symbol: "BND", AssetClass: "bond", Value: 3000},
		{Symbol: "VXUS", AssetClass: "equity", Value: 1000},
	}})
	if err != nil {
		t.Fatalf("Investment() error = %v", err)
	}
	if resp.ContentType != contractx.ContentChart {
		t.Fatalf("content type = %s", resp.ContentType)
	}
	if got := strings.Join(resp.Payload.Strings("labels"), ","); got != "equity,bond" {
		t.Fatalf("labels = %s", got)
	}

	resp, err = Investment(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Investment() error = %v", err)
	}
	if resp.ContentType != contractx.ContentText {
		t.Fatalf("no holdings content type = %s", resp.ContentType)
	}
}

func TestCashFlowMonths(t *testing.T) {
	t.Parallel()

	resp, err := CashFlow(context.Background(), "", contractx.HandlerContext{"ledger": []contractx.Transaction{
		{Date: "2026-02-01", Amount: 3000},
		{Date: "2026-01-01", Amount: 3000},
		{Date: "2026-01-10", Amount: -3500},
		{Date: "not a date", Amount: -25},
	}})
	if err != nil {
		t.Fatalf("CashFlow() error = %v", err)
	}
	if err := payloadx.MustNewValidator().Validate(contractx.AgentCashFlow, resp); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	months, _ := resp.Payload["months"].([]any)
	if len(months) != 3 || months[0].(map[string]any)["month"] != "2026-01" {
		t.Fatalf("months = %#v", months)
	}
	if resp.Payload["net"] != float64(2475) {
		t.Fatalf("net = %v", resp.Payload["net"])
	}
}

func TestDebtStrategyFallbackIsAvalanche(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.registry(t, llmx.DisabledModels())
	resp, err := r.Dispatch(context.Background(), contractx.AgentDebtStrategy, "plan my debt", contractx.HandlerContext{
		"debts": []contractx.Debt{
			{Name: "Car", Balance: 9000, APR: 6.5},
			{Name: "Card", Balance: 2500, APR: 24.9},
			{Name: "Store card", Balance: 400, APR: 24.9},
		},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := strings.Join(resp.Payload.Strings("order"), ","); got != "Store card,Card,Car" {
		t.Fatalf("order = %s", got)
	}
}

func TestDebtStrategyInvalidModelPayloadIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.registry(t, generativeModels(&fakeChatModel{
		content: `{"text":"Go all in","strategy":"yolo","order":["Card"]}`,
	}))
	_, err := r.Dispatch(context.Background(), contractx.AgentDebtStrategy, "plan", nil)
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("err = %v, want ErrSchemaViolation", err)
	}
}

func TestReminderSchedulerUsesModelOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fake := &fakeChatModel{content: `{"text":"Set?","reminders":[{"title":"Pay rent","cron":"0 8 28 * *"},{"title":" "}]}`}
	r := f.registry(t, generativeModels(fake))

	resp, err := r.Dispatch(context.Background(), contractx.AgentReminderScheduler, "remind me to pay rent", nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	reminders, _ := resp.Payload["reminders"].([]any)
	if len(reminders) != 1 {
		t.Fatalf("reminders = %#v", reminders)
	}
	if got := resp.Payload.Strings("buttons"); len(got) != len(reminderButtons) {
		t.Fatalf("buttons = %v", got)
	}
	if len(fake.inputs) != 1 || !strings.Contains(fake.inputs[0][1].Content, "pay rent") {
		t.Fatalf("model input = %#v", fake.inputs)
	}
}

func TestReminderSchedulerClampsNegativeDelay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fake := &fakeChatModel{content: `{"text":"Set?","reminders":[{"title":"Move savings","delay_minutes":-30},{"title":"Check rent","delay_minutes":90}]}`}
	r := f.registry(t, generativeModels(fake))

	resp, err := r.Dispatch(context.Background(), contractx.AgentReminderScheduler, "remind me later", nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	reminders, _ := resp.Payload["reminders"].([]any)
	if len(reminders) != 2 {
		t.Fatalf("reminders = %#v", reminders)
	}
	first, _ := reminders[0].(map[string]any)
	if _, ok := first["delay_minutes"]; ok {
		t.Fatalf("negative delay kept: %#v", first)
	}
	second, _ := reminders[1].(map[string]any)
	if second["delay_minutes"] != float64(90) {
		t.Fatalf("delay = %#v", second["delay_minutes"])
	}
}

func TestReminderSchedulerFallbackSuggestsGoals(t *testing.T) {
	t.Parallel()

	r := newFixture(t).registry(t, llmx.DisabledModels())
	resp, err := r.Dispatch(context.Background(), contractx.AgentReminderScheduler, "remind me", contractx.HandlerContext{
		"goals": []contractx.Goal{{Name: "House", Target: 50000, Saved: 1000}},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.ContentType != contractx.ContentButtons {
		t.Fatalf("content type = %s", resp.ContentType)
	}
	reminders, _ := resp.Payload["reminders"].([]any)
	if len(reminders) != 2 || reminders[1].(map[string]any)["title"] != "Transfer to House" {
		t.Fatalf("reminders = %#v", reminders)
	}
}

func TestConversationNarrationFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := f.registry(t, generativeModels(&fakeChatModel{content: `{"text":"no messages here"}`}))

	resp, err := r.Dispatch(context.Background(), contractx.AgentConversation, "", contractx.HandlerContext{
		contractx.CtxSource:  contractx.SourceData,
		contractx.CtxAgent:   contractx.AgentInvestment,
		contractx.CtxPayload: contractx.Payload{"text": "x", "missing_info": []any{"holdings", "risk_tolerance"}},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := resp.Payload.String("text"); got != "investment completed: missing holdings, risk_tolerance" {
		t.Fatalf("text = %q", got)
	}
}

func TestConversationNarrationUsesMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fake := &fakeChatModel{content: `{"messages":["Your allocation is ready.","Try: rebalance","Anything else?"]}`}
	r := f.registry(t, generativeModels(fake))

	resp, err := r.Dispatch(context.Background(), contractx.AgentConversation, "", contractx.HandlerContext{
		contractx.CtxSource:  contractx.SourceData,
		contractx.CtxAgent:   contractx.AgentInvestment,
		contractx.CtxPayload: contractx.Payload{"title": "Investment allocation"},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := resp.Payload.Strings("messages"); len(got) != 3 {
		t.Fatalf("messages = %v", got)
	}
	if !strings.Contains(fake.inputs[0][1].Content, `"agent":"Investment Agent"`) {
		t.Fatalf("narration input = %s", fake.inputs[0][1].Content)
	}
}

func TestConversationChatFallbackListsCapabilities(t *testing.T) {
	t.Parallel()

	r := newFixture(t).registry(t, llmx.DisabledModels())
	resp, err := r.Dispatch(context.Background(), contractx.AgentConversation, "hello", nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	text := resp.Payload.String("text")
	if !strings.Contains(text, "Reporting Agent") || strings.Contains(text, "Conversation Agent") {
		t.Fatalf("greeting = %q", text)
	}
}
