package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"zerobudget/internal/auth"
	"zerobudget/internal/vault"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// callerIdentity pulls the authenticated user and vault credentials from the
// request. The access token came through the auth middleware; the collection
// key rides on its own header because the identity provider does not know it.
func callerIdentity(r *http.Request) (ownerID string, creds vault.Credentials, ok bool) {
	ownerID, ok = auth.UserIDFromContext(r.Context())
	if !ok {
		return "", vault.Credentials{}, false
	}
	token, ok := auth.AccessTokenFromContext(r.Context())
	if !ok {
		return "", vault.Credentials{}, false
	}
	return ownerID, vault.Credentials{
		AccessToken:   token,
		CollectionKey: strings.TrimSpace(r.Header.Get("X-Collection-Key")),
	}, true
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseOccurredAt accepts RFC 3339 timestamps and bare dates.
func parseOccurredAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
