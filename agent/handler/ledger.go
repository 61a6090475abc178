package handler

import (
	"math"
	"sort"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

type monthTotal struct {
	Month    string  `json:"month"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

type labelValue struct {
	label string
	value float64
}

// monthlyTotals groups the ledger by calendar month, oldest first.
// Inflows are positive amounts; outflows are negative and reported as positive expenses.
func monthlyTotals(ledger []contractx.Transaction) []monthTotal {
	byMonth := make(map[string]*monthTotal)
	for _, tx := range ledger {
		month := monthOf(tx.Date)
		mt, ok := byMonth[month]
		if !ok {
			mt = &monthTotal{Month: month}
			byMonth[month] = mt
		}
		if tx.Amount >= 0 {
			mt.Income += tx.Amount
		} else {
			mt.Expenses += -tx.Amount
		}
	}

	out := make([]monthTotal, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, monthTotal{
			Month:    mt.Month,
			Income:   round2(mt.Income),
			Expenses: round2(mt.Expenses),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func monthOf(date string) string {
	date = strings.TrimSpace(date)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01")
		}
	}
	return "unknown"
}

// spendingByCategory sums outflows per category, largest first.
func spendingByCategory(ledger []contractx.Transaction) []labelValue {
	sums := make(map[string]float64)
	for _, tx := range ledger {
		if tx.Amount >= 0 {
			continue
		}
		cat := strings.TrimSpace(tx.Category)
		if cat == "" {
			cat = "Uncategorized"
		}
		sums[cat] += -tx.Amount
	}
	return sortedLabelValues(sums)
}

func sortedLabelValues(sums map[string]float64) []labelValue {
	out := make([]labelValue, 0, len(sums))
	for k, v := range sums {
		out = append(out, labelValue{label: k, value: round2(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].label < out[j].label
	})
	return out
}

func splitLabelValues(items []labelValue) ([]string, []float64, float64) {
	labels := make([]string, 0, len(items))
	values := make([]float64, 0, len(items))
	var total float64
	for _, item := range items {
		labels = append(labels, item.label)
		values = append(values, item.value)
		total += item.value
	}
	return labels, values, round2(total)
}

// finite maps NaN and overflowed sums to zero so payloads always encode.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return finite(math.Round(finite(v)*100) / 100)
}

func round1(v float64) float64 {
	return finite(math.Round(finite(v)*10) / 10)
}
