package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"zerobudget/internal/core"
	"zerobudget/internal/services"
)

// expenseView is the wire shape of one expense. Amounts cross the API as
// dollars, dates as YYYY-MM-DD.
type expenseView struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

func toExpenseView(e core.ExpenseRecord) expenseView {
	return expenseView{
		ID:          e.ID,
		Amount:      e.Amount.Float64(),
		Category:    e.Category,
		Description: e.Description,
		Date:        e.OccurredAt.Format("2006-01-02"),
	}
}

type expenseInput struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

func (in expenseInput) toServiceInput() (services.NewExpenseInput, error) {
	occurredAt, err := parseOccurredAt(in.Date)
	if err != nil {
		return services.NewExpenseInput{}, err
	}
	return services.NewExpenseInput{
		Amount:      core.MoneyFromFloat(in.Amount),
		Category:    sanitizeInput(in.Category),
		Description: sanitizeInput(in.Description),
		OccurredAt:  occurredAt,
	}, nil
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExpenses(w, r)
	case http.MethodPost:
		s.createExpense(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
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

	visible := result.Expenses
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filtered := make([]core.ExpenseRecord, 0, len(visible))
		for _, e := range visible {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		visible = filtered
	}

	views := make([]expenseView, 0, len(visible))
	for _, e := range visible {
		views = append(views, toExpenseView(e))
	}
	failures := result.Failures
	if failures == nil {
		failures = []services.LoadFailure{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expenses":     views,
		"failures":     failures,
		"totalSpent":   core.TotalSpent(visible).Float64(),
		"averageSpend": core.AverageSpend(visible).Float64(),
	})
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	ownerID, creds, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var in expenseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svcInput, err := in.toServiceInput()
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	record, err := s.expenses.CreateExpense(r.Context(), ownerID, creds, svcInput)
	if err != nil {
		if isValidationError(err) {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Expense create failed", "owner_id", ownerID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save expense")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": record.ID})
}

func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/expenses/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	ownerID, creds, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var in expenseInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		svcInput, err := in.toServiceInput()
		if err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.expenses.UpdateExpense(r.Context(), ownerID, creds, id, svcInput); err != nil {
			s.writeExpenseMutationError(w, r, "update", ownerID, id, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})

	case http.MethodDelete:
		if err := s.expenses.DeleteExpense(r.Context(), ownerID, creds, id); err != nil {
			s.writeExpenseMutationError(w, r, "delete", ownerID, id, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeExpenseMutationError(w http.ResponseWriter, r *http.Request, op, ownerID, id string, err error) {
	switch {
	case errors.Is(err, core.ErrWrongOwner):
		writeJSONError(w, http.StatusNotFound, "expense not found")
	case isValidationError(err):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Expense mutation failed",
			"op", op, "owner_id", ownerID, "external_expense_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to "+op+" expense")
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrEmptyDescription) ||
		errors.Is(err, core.ErrUnknownCategory)
}
