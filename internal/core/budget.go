package core

import "fmt"

// Utilization above this percentage marks a category as at risk.
const atRiskUtilizationPercent = 75

type (
	// BudgetCategory is the derived budget line for one category. It is
	// recomputed on every change to income or the expense set and never
	// persisted.
	BudgetCategory struct {
		Category          string
		AllocationPercent int64
		Budget            Money
		Spent             Money
		Remaining         Money
		// UtilizationPercent is capped at 100 for display; the uncapped
		// overage is still derivable from Remaining, which may go negative.
		UtilizationPercent float64
	}

	InsightLevel string

	Insight struct {
		Level   InsightLevel
		Message string
	}

	BudgetBreakdown struct {
		TotalIncome Money
		TotalBudget Money
		TotalSpent  Money
		// TotalRemaining is income minus total spend, deliberately not
		// TotalBudget minus total spend: it answers "how much of my
		// paycheck is left", while per-category Remaining answers "how
		// much of this category's slice is left".
		TotalRemaining    Money
		BudgetUsedPercent float64
		Categories        []BudgetCategory
		Insights          []Insight
	}
)

const (
	InsightPositive InsightLevel = "positive"
	InsightWarning  InsightLevel = "warning"
	InsightCritical InsightLevel = "critical"
)

// ComputeBudget applies the fixed allocation table to the given income and
// expense set. All eight categories are present in the result regardless of
// whether any expense exists in them.
func ComputeBudget(income Money, expenses []ExpenseRecord) BudgetBreakdown {
	totals := TotalsByCategory(expenses)
	totalSpent := TotalSpent(expenses)

	breakdown := BudgetBreakdown{
		TotalIncome:    income,
		TotalSpent:     totalSpent,
		TotalRemaining: Money{Cents: income.Cents - totalSpent.Cents},
		Categories:     make([]BudgetCategory, 0, len(Categories)),
	}

	for _, name := range Categories {
		pct := DefaultAllocationPercent[name]
		budget := Money{Cents: income.Cents * pct / 100}
		spent := totals[name]

		utilization := 0.0
		if budget.Cents > 0 {
			utilization = float64(spent.Cents) / float64(budget.Cents) * 100
			if utilization > 100 {
				utilization = 100
			}
			if utilization < 0 {
				utilization = 0
			}
		}

		breakdown.TotalBudget.Cents += budget.Cents
		breakdown.Categories = append(breakdown.Categories, BudgetCategory{
			Category:           name,
			AllocationPercent:  pct,
			Budget:             budget,
			Spent:              spent,
			Remaining:          Money{Cents: budget.Cents - spent.Cents},
			UtilizationPercent: utilization,
		})
	}

	if breakdown.TotalBudget.Cents > 0 {
		breakdown.BudgetUsedPercent = float64(totalSpent.Cents) / float64(breakdown.TotalBudget.Cents) * 100
	}

	breakdown.Insights = deriveInsights(breakdown)
	return breakdown
}

// deriveInsights emits one warning per at-risk category, a single positive
// message when none is at risk, and an over-budget message when total
// remaining goes negative. The warning set and the over-budget message are
// independent, not mutually exclusive.
func deriveInsights(b BudgetBreakdown) []Insight {
	var insights []Insight

	atRisk := 0
	for _, cat := range b.Categories {
		if cat.UtilizationPercent > atRiskUtilizationPercent {
			atRisk++
			insights = append(insights, Insight{
				Level:   InsightWarning,
				Message: fmt.Sprintf("%s is at %.1f%% of budget", cat.Category, cat.UtilizationPercent),
			})
		}
	}
	if atRisk == 0 {
		insights = append(insights, Insight{
			Level:   InsightPositive,
			Message: "Great job! All categories are within budget.",
		})
	}

	if b.TotalRemaining.Cents < 0 {
		overage := Money{Cents: -b.TotalRemaining.Cents}
		insights = append(insights, Insight{
			Level:   InsightCritical,
			Message: fmt.Sprintf("You've exceeded your total budget by %s", overage),
		})
	}

	return insights
}
