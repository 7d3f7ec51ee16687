// Package http exposes the expense, budget, settings, and chat API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"zerobudget/internal/assistant"
	"zerobudget/internal/auth"
	"zerobudget/internal/core"
	"zerobudget/internal/services"
	"zerobudget/internal/vault"
)

// ExpenseOps is the slice of the expense service the handlers use.
type ExpenseOps interface {
	LoadExpenses(ctx context.Context, ownerID string, creds vault.Credentials) (services.LoadResult, error)
	CreateExpense(ctx context.Context, ownerID string, creds vault.Credentials, in services.NewExpenseInput) (core.ExpenseRecord, error)
	UpdateExpense(ctx context.Context, ownerID string, creds vault.Credentials, id string, in services.NewExpenseInput) error
	DeleteExpense(ctx context.Context, ownerID string, creds vault.Credentials, id string) error
}

// IncomeStore reads and writes the per-user monthly income setting.
type IncomeStore interface {
	GetIncome(ctx context.Context, ownerID string) (core.Money, error)
	SetIncome(ctx context.Context, ownerID string, income core.Money) error
}

// ChatCompleter answers questions over the user's expense data.
type ChatCompleter interface {
	Complete(ctx context.Context, expenses []core.ExpenseRecord, history []assistant.Message) (string, error)
}

type Server struct {
	http.Server
	expenses    ExpenseOps
	settings    IncomeStore
	chat        ChatCompleter
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. All /api routes sit behind the bearer-token check.
func NewServer(addr string, verifier *auth.Verifier, expenses ExpenseOps, settings IncomeStore, chat ChatCompleter) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		expenses:    expenses,
		settings:    settings,
		chat:        chat,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	authed := func(h http.HandlerFunc) http.Handler {
		return verifier.Middleware(s.withSecurityHeaders(h))
	}
	mux.Handle("/api/expenses", authed(s.handleExpenses))
	mux.Handle("/api/expenses/", authed(s.handleExpenseByID))
	mux.Handle("/api/summary", authed(s.handleSummary))
	mux.Handle("/api/budget", authed(s.handleBudget))
	mux.Handle("/api/settings/income", authed(s.handleIncome))
	mux.Handle("/api/chat", authed(s.handleChat))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit the write paths.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
