package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"zerobudget/internal/assistant"
)

// chatApology is the reply when the assistant backend fails. The client shows
// it as a normal assistant turn, so the request still succeeds.
const chatApology = "Sorry, I encountered an error while processing your request. Please try again."

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ownerID, creds, ok := callerIdentity(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var in struct {
		Message string              `json:"message"`
		History []assistant.Message `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	// The assistant sees whatever loaded; a partial list is better than no
	// answer.
	result, err := s.expenses.LoadExpenses(r.Context(), ownerID, creds)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense load for chat failed", "owner_id", ownerID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"reply": chatApology})
		return
	}

	history := append(in.History, assistant.Message{Role: "user", Content: in.Message})
	reply, err := s.chat.Complete(r.Context(), result.Expenses, history)
	if err != nil {
		slog.ErrorContext(r.Context(), "Chat completion failed", "owner_id", ownerID, "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"reply": chatApology})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}
