package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

var onboardingButtons = []string{"Add monthly income", "Add monthly expenses", "Upload a bank statement"}

type snapshot struct {
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
	Net             float64 `json:"net"`
	SavingsRate     float64 `json:"savings_rate"`
}

// Onboarding returns a TEXT baseline snapshot once income and expenses are
// known, an IMAGE acknowledgement for an uploaded statement, or BUTTONS asking
// for what is missing.
func Onboarding(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	profile := hctx.Profile()
	ledger := hctx.Ledger()

	income, expenses := profile.MonthlyIncome, profile.MonthlyExpenses
	if len(ledger) > 0 && (income <= 0 || expenses <= 0) {
		avgIncome, avgExpenses := averageMonthly(ledger)
		if income <= 0 {
			income = avgIncome
		}
		if expenses <= 0 {
			expenses = avgExpenses
		}
	}

	if (income > 0 && expenses > 0) || len(ledger) > 0 {
		snap := snapshot{
			MonthlyIncome:   round2(income),
			MonthlyExpenses: round2(expenses),
			Net:             round2(income - expenses),
		}
		if income > 0 {
			snap.SavingsRate = round1(snap.Net / income * 100)
		}
		return respond(contractx.ContentText, struct {
			Text     string   `json:"text"`
			Snapshot snapshot `json:"snapshot"`
		}{
			Text: fmt.Sprintf(
				"Your baseline: %.2f in and %.2f out each month, leaving %.2f (%.1f%% savings rate).",
				snap.MonthlyIncome, snap.MonthlyExpenses, snap.Net, snap.SavingsRate,
			),
			Snapshot: snap,
		})
	}

	missing := make([]string, 0, 2)
	if income <= 0 {
		missing = append(missing, "monthly_income")
	}
	if expenses <= 0 {
		missing = append(missing, "monthly_expenses")
	}

	if url := hctx.String(contractx.CtxOnboardingImageURL); url != "" {
		return respond(contractx.ContentImage, struct {
			ChartURL    string   `json:"chartUrl"`
			Caption     string   `json:"caption"`
			MissingInfo []string `json:"missing_info"`
		}{
			ChartURL:    url,
			Caption:     "Statement received. I will build your baseline from it.",
			MissingInfo: missing,
		})
	}

	return respond(contractx.ContentButtons, struct {
		Text        string   `json:"text"`
		Buttons     []string `json:"buttons"`
		MissingInfo []string `json:"missing_info"`
	}{
		Text:        "Let's set up your baseline. What would you like to add first?",
		Buttons:     append([]string(nil), onboardingButtons...),
		MissingInfo: missing,
	})
}

func averageMonthly(ledger []contractx.Transaction) (float64, float64) {
	months := monthlyTotals(ledger)
	if len(months) == 0 {
		return 0, 0
	}
	var income, expenses float64
	for _, m := range months {
		income += m.Income
		expenses += m.Expenses
	}
	n := float64(len(months))
	return income / n, expenses / n
}

// Reporting charts spending by category from the ledger, falling back to
// budgets, and always returns at least one bar.
func Reporting(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	title := "Spending by category"
	items := spendingByCategory(hctx.Ledger())
	if len(items) == 0 {
		if budgets := hctx.Budgets(); len(budgets) > 0 {
			title = "Budget by category"
			items = sortedLabelValues(budgets)
		}
	}
	if len(items) == 0 {
		items = []labelValue{{label: "No spending recorded", value: 0}}
	}

	labels, values, total := splitLabelValues(items)
	return respond(contractx.ContentChart, struct {
		Title     string    `json:"title"`
		ChartType string    `json:"chartType"`
		Labels    []string  `json:"labels"`
		Values    []float64 `json:"values"`
		Total     float64   `json:"total"`
	}{
		Title:     title,
		ChartType: "bar",
		Labels:    labels,
		Values:    values,
		Total:     total,
	})
}

type goalProgress struct {
	Name          string  `json:"name"`
	Target        float64 `json:"target"`
	Saved         float64 `json:"saved"`
	ProgressPct   float64 `json:"progress_pct"`
	MonthlyNeeded float64 `json:"monthly_needed,omitempty"`
	Deadline      string  `json:"deadline,omitempty"`
}

// GoalSetting reports progress on each savings goal and the monthly amount
// needed to hit its deadline.
type GoalSetting struct {
	now func() time.Time
}

func NewGoalSetting(now func() time.Time) *GoalSetting {
	if now == nil {
		now = time.Now
	}
	return &GoalSetting{now: now}
}

func (g *GoalSetting) Handle(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	goals := hctx.Goals()
	now := g.now()

	out := make([]goalProgress, 0, len(goals))
	lines := make([]string, 0, len(goals))
	for _, goal := range goals {
		name := strings.TrimSpace(goal.Name)
		if name == "" {
			continue
		}
		gp := goalProgress{
			Name:     name,
			Target:   round2(goal.Target),
			Saved:    round2(goal.Saved),
			Deadline: strings.TrimSpace(goal.Deadline),
		}
		if goal.Target > 0 {
			gp.ProgressPct = clamp(round1(goal.Saved/goal.Target*100), 0, 100)
		}
		remaining := goal.Target - goal.Saved
		if months, ok := monthsUntil(gp.Deadline, now); ok && remaining > 0 {
			gp.MonthlyNeeded = round2(remaining / float64(months))
		}
		out = append(out, gp)

		line := fmt.Sprintf("%s: %.1f%% of %.2f", gp.Name, gp.ProgressPct, gp.Target)
		if gp.MonthlyNeeded > 0 {
			line += fmt.Sprintf(", %.2f a month to finish by %s", gp.MonthlyNeeded, gp.Deadline)
		}
		lines = append(lines, line)
	}

	text := "You have no savings goals yet. Tell me what you are saving for and how much you need."
	if len(lines) > 0 {
		text = "Goal progress: " + strings.Join(lines, "; ") + "."
	}
	return respond(contractx.ContentText, struct {
		Text  string         `json:"text"`
		Goals []goalProgress `json:"goals"`
	}{Text: text, Goals: out})
}

// monthsUntil returns at least one month for any parsable deadline.
func monthsUntil(deadline string, now time.Time) (int, bool) {
	if deadline == "" {
		return 0, false
	}
	var due time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
		due, err = time.Parse(layout, deadline)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, false
	}
	months := (due.Year()-now.Year())*12 + int(due.Month()) - int(now.Month())
	if months < 1 {
		months = 1
	}
	return months, true
}

// Safety measures emergency fund coverage in months of expenses.
func Safety(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	profile := hctx.Profile()

	type safetyPayload struct {
		Text                string   `json:"text"`
		Status              string   `json:"status"`
		EmergencyFundMonths float64  `json:"emergency_fund_months"`
		MissingInfo         []string `json:"missing_info,omitempty"`
	}

	if profile.MonthlyExpenses <= 0 {
		return respond(contractx.ContentText, safetyPayload{
			Text:        "I need your monthly expenses to size your emergency fund.",
			Status:      "unknown",
			MissingInfo: []string{"monthly_expenses"},
		})
	}

	months := round1(max(profile.EmergencyFund, 0) / profile.MonthlyExpenses)
	var status, advice string
	switch {
	case months >= 6:
		status, advice = "healthy", "You are well covered."
	case months >= 3:
		status, advice = "building", "Keep adding until you reach six months."
	default:
		status, advice = "at_risk", "Aim for at least three months before investing more."
	}
	return respond(contractx.ContentText, safetyPayload{
		Text:                fmt.Sprintf("Your emergency fund covers %.1f months of expenses. %s", months, advice),
		Status:              status,
		EmergencyFundMonths: months,
	})
}

// TaxPension summarises the tax bracket and pension contribution rate.
// Rates given as fractions (0.22) are reported as percentages (22).
func TaxPension(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	profile := hctx.Profile()
	bracket := asPercent(profile.TaxBracket)
	pension := asPercent(profile.PensionContribRate)

	suggestions := make([]string, 0, 3)
	missing := make([]string, 0, 2)
	if bracket <= 0 {
		missing = append(missing, "tax_bracket")
	} else if bracket >= 30 {
		suggestions = append(suggestions, "Prioritise tax-advantaged accounts; each contribution saves at your marginal rate.")
	}
	if pension <= 0 {
		missing = append(missing, "pension_contribution_rate")
	} else if pension < 10 {
		suggestions = append(suggestions, "Raise pension contributions toward 10% of income.")
	}
	suggestions = append(suggestions, "Review deductible expenses before the tax year ends.")

	text := "Here is your tax and pension profile."
	if bracket > 0 {
		text = fmt.Sprintf("You are in the %.0f%% tax bracket", bracket)
		if pension > 0 {
			text += fmt.Sprintf(" and contribute %.1f%% to your pension", pension)
		}
		text += "."
	}

	return respond(contractx.ContentText, struct {
		Text                    string   `json:"text"`
		TaxBracket              float64  `json:"tax_bracket"`
		PensionContributionRate float64  `json:"pension_contribution_rate"`
		Suggestions             []string `json:"suggestions"`
		MissingInfo             []string `json:"missing_info,omitempty"`
	}{
		Text:                    text,
		TaxBracket:              bracket,
		PensionContributionRate: pension,
		Suggestions:             suggestions,
		MissingInfo:             missing,
	})
}

func asPercent(v float64) float64 {
	if v > 0 && v <= 1 {
		return round1(v * 100)
	}
	return round1(v)
}

// Investment charts holdings by asset class.
func Investment(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	sums := make(map[string]float64)
	for _, h := range hctx.Holdings() {
		if h.Value <= 0 {
			continue
		}
		class := strings.ToLower(strings.TrimSpace(h.AssetClass))
		if class == "" {
			class = "other"
		}
		sums[class] += h.Value
	}

	if len(sums) == 0 {
		return respond(contractx.ContentText, struct {
			Text        string   `json:"text"`
			MissingInfo []string `json:"missing_info"`
		}{
			Text:        "I do not see any investments yet. Share your holdings to see your allocation.",
			MissingInfo: []string{"holdings"},
		})
	}

	labels, values, total := splitLabelValues(sortedLabelValues(sums))
	return respond(contractx.ContentChart, struct {
		Title     string    `json:"title"`
		ChartType string    `json:"chartType"`
		Labels    []string  `json:"labels"`
		Values    []float64 `json:"values"`
		Total     float64   `json:"total"`
	}{
		Title:     "Investment allocation",
		ChartType: "doughnut",
		Labels:    labels,
		Values:    values,
		Total:     total,
	})
}

// CashFlow totals income and expenses from the ledger, or from the profile
// when no ledger is supplied.
func CashFlow(_ context.Context, _ string, hctx contractx.HandlerContext) (contractx.AgentResponse, error) {
	months := monthlyTotals(hctx.Ledger())

	var income, expenses float64
	for _, m := range months {
		income += m.Income
		expenses += m.Expenses
	}
	if len(months) == 0 {
		profile := hctx.Profile()
		income, expenses = profile.MonthlyIncome, profile.MonthlyExpenses
	}
	income, expenses = round2(income), round2(expenses)
	net := round2(income - expenses)

	var text string
	switch {
	case income == 0 && expenses == 0:
		text = "No cash flow recorded yet. Add transactions or your monthly income and expenses."
	case net >= 0:
		text = fmt.Sprintf("You brought in %.2f and spent %.2f, a surplus of %.2f.", income, expenses, net)
	default:
		text = fmt.Sprintf("You brought in %.2f and spent %.2f, a shortfall of %.2f.", income, expenses, -net)
	}

	return respond(contractx.ContentText, struct {
		Text     string       `json:"text"`
		Income   float64      `json:"income"`
		Expenses float64      `json:"expenses"`
		Net      float64      `json:"net"`
		Months   []monthTotal `json:"months"`
	}{
		Text:     text,
		Income:   income,
		Expenses: expenses,
		Net:      net,
		Months:   months,
	})
}

func respond(ct contractx.ContentType, body any) (contractx.AgentResponse, error) {
	p, err := contractx.ToPayload(body)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	return contractx.AgentResponse{ContentType: ct, Payload: p}, nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
