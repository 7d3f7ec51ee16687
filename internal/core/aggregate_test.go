package core

import "testing"

func expense(category string, cents int64) ExpenseRecord {
	return ExpenseRecord{
		ID:          "e",
		Amount:      Money{Cents: cents},
		Category:    category,
		Description: "d",
		OwnerID:     "u",
	}
}

func TestTotalsByCategoryPartition(t *testing.T) {
	expenses := []ExpenseRecord{
		expense(CategoryFood, 3000),
		expense(CategoryFood, 7000),
		expense(CategoryTravel, 1500),
		expense(CategoryOther, 25),
	}

	totals := TotalsByCategory(expenses)
	if len(totals) != 3 {
		t.Fatalf("expected 3 categories present, got %d", len(totals))
	}
	if totals[CategoryFood].Cents != 10000 {
		t.Fatalf("food total = %d", totals[CategoryFood].Cents)
	}
	if _, ok := totals[CategoryShopping]; ok {
		t.Fatalf("absent categories must not be zero-filled")
	}

	// The per-category totals partition the overall total.
	var sum int64
	for _, m := range totals {
		sum += m.Cents
	}
	if total := TotalSpent(expenses); sum != total.Cents {
		t.Fatalf("sum of category totals %d != total spent %d", sum, total.Cents)
	}
}

func TestPercentOfTotal(t *testing.T) {
	if got := PercentOfTotal(Money{Cents: 500}, Money{}); got != 0 {
		t.Fatalf("zero total must yield exactly 0, got %v", got)
	}
	if got := PercentOfTotal(Money{Cents: 2500}, Money{Cents: 10000}); got != 25 {
		t.Fatalf("got %v, want 25", got)
	}
}

func TestSingleCategoryIsHundredPercent(t *testing.T) {
	// Two expenses in the same category, amounts 30 and 70.
	expenses := []ExpenseRecord{
		expense(CategoryFood, 3000),
		expense(CategoryFood, 7000),
	}
	totals := TotalsByCategory(expenses)
	total := TotalSpent(expenses)
	if totals[CategoryFood].Cents != 10000 {
		t.Fatalf("category total = %d", totals[CategoryFood].Cents)
	}
	if got := PercentOfTotal(totals[CategoryFood], total); got != 100 {
		t.Fatalf("only category present should be 100%%, got %v", got)
	}
}

func TestAverageSpend(t *testing.T) {
	if got := AverageSpend(nil); got.Cents != 0 {
		t.Fatalf("empty list average = %d", got.Cents)
	}
	expenses := []ExpenseRecord{
		expense(CategoryFood, 1000),
		expense(CategoryTravel, 2000),
	}
	if got := AverageSpend(expenses); got.Cents != 1500 {
		t.Fatalf("average = %d, want 1500", got.Cents)
	}
}
