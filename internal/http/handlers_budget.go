package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"zerobudget/internal/core"
	"zerobudget/internal/storage"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ownerID, creds, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	result, err := s.expenses.LoadExpenses(r.Context(), ownerID, creds)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense load failed", "owner_id", ownerID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to load expenses")
		return
	}

	totals := core.TotalsByCategory(result.Expenses)
	totalSpent := core.TotalSpent(result.Expenses)

	type categorySlice struct {
		Category string  `json:"category"`
		Total    float64 `json:"total"`
		Percent  float64 `json:"percent"`
	}
	categories := make([]categorySlice, 0, len(totals))
	// Walk the display order so the chart is stable across loads.
	for _, name := range core.Categories {
		total, ok := totals[name]
		if !ok {
			continue
		}
		categories = append(categories, categorySlice{
			Category: name,
			Total:    total.Float64(),
			Percent:  core.PercentOfTotal(total, totalSpent),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalSpent": totalSpent.Float64(),
		"categories": categories,
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ownerID, creds, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	income, err := s.settings.GetIncome(r.Context(), ownerID)
	if errors.Is(err, storage.ErrIncomeNotSet) {
		writeJSONError(w, http.StatusNotFound, "set your monthly income first")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Income lookup failed", "owner_id", ownerID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	result, err := s.expenses.LoadExpenses(r.Context(), ownerID, creds)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense load failed", "owner_id", ownerID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to load expenses")
		return
	}

	breakdown := core.ComputeBudget(income, result.Expenses)

	type categoryView struct {
		Category           string  `json:"category"`
		AllocationPercent  int64   `json:"allocationPercent"`
		Budget             float64 `json:"budget"`
		Spent              float64 `json:"spent"`
		Remaining          float64 `json:"remaining"`
		UtilizationPercent float64 `json:"utilizationPercent"`
	}
	categories := make([]categoryView, 0, len(breakdown.Categories))
	for _, c := range breakdown.Categories {
		categories = append(categories, categoryView{
			Category:           c.Category,
			AllocationPercent:  c.AllocationPercent,
			Budget:             c.Budget.Float64(),
			Spent:              c.Spent.Float64(),
			Remaining:          c.Remaining.Float64(),
			UtilizationPercent: c.UtilizationPercent,
		})
	}

	type insightView struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	insights := make([]insightView, 0, len(breakdown.Insights))
	for _, i := range breakdown.Insights {
		insights = append(insights, insightView{Level: string(i.Level), Message: i.Message})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalIncome":       breakdown.TotalIncome.Float64(),
		"totalBudget":       breakdown.TotalBudget.Float64(),
		"totalSpent":        breakdown.TotalSpent.Float64(),
		"totalRemaining":    breakdown.TotalRemaining.Float64(),
		"budgetUsedPercent": breakdown.BudgetUsedPercent,
		"categories":        categories,
		"insights":          insights,
	})
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	ownerID, _, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	switch r.Method {
	case http.MethodGet:
		income, err := s.settings.GetIncome(r.Context(), ownerID)
		if errors.Is(err, storage.ErrIncomeNotSet) {
			writeJSONError(w, http.StatusNotFound, "income not set")
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "Income lookup failed", "owner_id", ownerID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"income": income.Float64()})

	case http.MethodPut:
		var in struct {
			Income float64 `json:"income"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		income := core.MoneyFromFloat(in.Income)
		if err := income.Validate(); err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, "income must be positive")
			return
		}
		if err := s.settings.SetIncome(r.Context(), ownerID, income); err != nil {
			slog.ErrorContext(r.Context(), "Income update failed", "owner_id", ownerID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"income": income.Float64()})

	default:
		w.Header().Set("Allow", "GET, PUT")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
