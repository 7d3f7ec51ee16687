package core

// TotalsByCategory sums amounts per category. Only categories actually
// present in the list appear in the result; absent categories are not
// zero-filled.
func TotalsByCategory(expenses []ExpenseRecord) map[string]Money {
	totals := make(map[string]Money)
	for _, e := range expenses {
		t := totals[e.Category]
		t.Cents += e.Amount.Cents
		totals[e.Category] = t
	}
	return totals
}

// TotalSpent sums all amounts.
func TotalSpent(expenses []ExpenseRecord) Money {
	var total Money
	for _, e := range expenses {
		total.Cents += e.Amount.Cents
	}
	return total
}

// AverageSpend returns the mean expense amount, zero for an empty list.
func AverageSpend(expenses []ExpenseRecord) Money {
	if len(expenses) == 0 {
		return Money{}
	}
	return Money{Cents: TotalSpent(expenses).Cents / int64(len(expenses))}
}

// PercentOfTotal returns the category's share of total spend as a
// percentage, exactly 0 when the total is 0.
func PercentOfTotal(categoryTotal, totalSpent Money) float64 {
	if totalSpent.Cents == 0 {
		return 0
	}
	return float64(categoryTotal.Cents) / float64(totalSpent.Cents) * 100
}
