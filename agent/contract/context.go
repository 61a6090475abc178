package contract

import (
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// HandlerContext is the optional bag of domain data supplied by the caller.
// Accessors never fail: absent or malformed keys decode to zero values.
type HandlerContext map[string]any

const (
	CtxProfile            = "profile"
	CtxLedger             = "ledger"
	CtxBudgets            = "budgets"
	CtxGoals              = "goals"
	CtxHoldings           = "holdings"
	CtxDebts              = "debts"
	CtxOnboardingImageURL = "onboarding_image_url"

	CtxSource  = "source"
	CtxAgent   = "agent"
	CtxPayload = "payload"

	SourceData = "Data"
)

type Profile struct {
	MonthlyIncome      float64 `json:"monthly_income,omitempty"`
	MonthlyExpenses    float64 `json:"monthly_expenses,omitempty"`
	EmergencyFund      float64 `json:"emergency_fund,omitempty"`
	Age                int     `json:"age,omitempty"`
	RiskTolerance      string  `json:"risk_tolerance,omitempty"`
	TaxBracket         float64 `json:"tax_bracket,omitempty"`
	PensionContribRate float64 `json:"pension_contribution_rate,omitempty"`
}

type Transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Amount      float64 `json:"amount"`
}

type Goal struct {
	Name     string  `json:"name"`
	Target   float64 `json:"target"`
	Saved    float64 `json:"saved"`
	Deadline string  `json:"deadline,omitempty"`
}

type Holding struct {
	Symbol     string  `json:"symbol"`
	AssetClass string  `json:"asset_class"`
	Value      float64 `json:"value"`
}

type Debt struct {
	Name           string  `json:"name"`
	Balance        float64 `json:"balance"`
	APR            float64 `json:"apr"`
	MinimumPayment float64 `json:"minimum_payment,omitempty"`
}

func (c HandlerContext) Profile() Profile {
	var out Profile
	c.decode(CtxProfile, &out)
	return out
}

func (c HandlerContext) Ledger() []Transaction {
	var out []Transaction
	c.decode(CtxLedger, &out)
	return out
}

func (c HandlerContext) Budgets() map[string]float64 {
	var out map[string]float64
	c.decode(CtxBudgets, &out)
	return out
}

func (c HandlerContext) Goals() []Goal {
	var out []Goal
	c.decode(CtxGoals, &out)
	return out
}

func (c HandlerContext) Holdings() []Holding {
	var out []Holding
	c.decode(CtxHoldings, &out)
	return out
}

func (c HandlerContext) Debts() []Debt {
	var out []Debt
	c.decode(CtxDebts, &out)
	return out
}

func (c HandlerContext) String(key string) string {
	if c == nil {
		return ""
	}
	v, _ := c[key].(string)
	return strings.TrimSpace(v)
}

// SourcePayload returns the upstream payload carried by a formatter request.
func (c HandlerContext) SourcePayload() Payload {
	if c == nil {
		return nil
	}
	switch v := c[CtxPayload].(type) {
	case Payload:
		return v
	case map[string]any:
		return Payload(v)
	default:
		return nil
	}
}

func (c HandlerContext) decode(key string, out any) {
	if c == nil {
		return
	}
	raw, ok := c[key]
	if !ok || raw == nil {
		return
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       finiteFloatHook,
		Result:           out,
	})
	if err != nil {
		return
	}
	// partial decodes are kept; bad fields stay zero
	_ = dec.Decode(raw)
}

// finiteFloatHook zeroes NaN and infinite values bound for float fields,
// including weakly typed strings such as "NaN" or "-Inf".
func finiteFloatHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Float32 && to.Kind() != reflect.Float64 {
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return data, nil
		}
		f = parsed
	default:
		return data, nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || (to.Kind() == reflect.Float32 && math.Abs(f) > math.MaxFloat32) {
		return float64(0), nil
	}
	return data, nil
}
