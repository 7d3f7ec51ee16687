package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"zerobudget/internal/storage"
)

// ReconcilerConfig holds configuration for the intent reconciler.
type ReconcilerConfig struct {
	// PollInterval is how often to scan for stale intents.
	PollInterval time.Duration

	// StaleAfter is how long an intent may sit untouched before the scan
	// picks it up.
	StaleAfter time.Duration

	// BatchSize is the max number of intents to process per scan.
	BatchSize int
}

// DefaultReconcilerConfig returns sensible defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval: 30 * time.Second,
		StaleAfter:   5 * time.Minute,
		BatchSize:    50,
	}
}

// Reconciler drives stalled write intents to a terminal state. Intents stuck
// at vault_written get their metadata row re-inserted; intents stuck at
// pending are abandoned, since the vault write was never confirmed.
type Reconciler struct {
	store  MetadataStore
	config ReconcilerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(store MetadataStore, config ReconcilerConfig) *Reconciler {
	return &Reconciler{store: store, config: config}
}

// Start begins the scan loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Intent reconciler started",
		"poll_interval", r.config.PollInterval,
		"stale_after", r.config.StaleAfter,
		"batch_size", r.config.BatchSize)

	return nil
}

// Stop gracefully stops the reconciler and waits for completion.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Intent reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Intent reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	// Scan immediately on startup to catch leftovers from a crash.
	r.Scan(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Scan(ctx)
		}
	}
}

// Scan processes one batch of stale intents.
func (r *Reconciler) Scan(ctx context.Context) {
	cutoff := time.Now().Add(-r.config.StaleAfter)
	intents, err := r.store.ListStaleIntents(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list stale intents", "error", err)
		return
	}
	if len(intents) == 0 {
		return
	}

	slog.InfoContext(ctx, "Reconciling stale intents", "count", len(intents))

	for _, intent := range intents {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := r.repair(ctx, intent); err != nil {
			slog.ErrorContext(ctx, "Intent repair failed",
				"intent_id", intent.ID, "state", intent.State, "error", err)
		}
	}
}

// Repair handles a single intent, typically delivered via an AMQP repair
// event. It is safe to call for intents that already reached a terminal
// state.
func (r *Reconciler) Repair(ctx context.Context, intentID int64, ownerID, externalID string) error {
	return r.repair(ctx, storage.WriteIntent{
		ID:                intentID,
		OwnerID:           ownerID,
		ExternalExpenseID: externalID,
		State:             storage.IntentVaultWritten,
	})
}

func (r *Reconciler) repair(ctx context.Context, intent storage.WriteIntent) error {
	switch intent.State {
	case storage.IntentPending:
		// The vault write was never confirmed; there is nothing to index.
		if err := r.store.MarkIntentAbandoned(ctx, intent.ID, "stale before vault write confirmed"); err != nil {
			return fmt.Errorf("abandon pending intent %d: %w", intent.ID, err)
		}
		slog.InfoContext(ctx, "Abandoned stale pending intent", "intent_id", intent.ID)
		return nil

	case storage.IntentVaultWritten:
		if intent.ExternalExpenseID == "" {
			if err := r.store.MarkIntentAbandoned(ctx, intent.ID, "vault_written without external id"); err != nil {
				return fmt.Errorf("abandon intent %d: %w", intent.ID, err)
			}
			return nil
		}

		err := r.store.InsertMetadata(ctx, intent.OwnerID, intent.ExternalExpenseID)
		if err != nil && !isDuplicate(err) {
			return fmt.Errorf("repair metadata for intent %d: %w", intent.ID, err)
		}

		if err := r.store.MarkIntentComplete(ctx, intent.ID); err != nil {
			return fmt.Errorf("complete intent %d: %w", intent.ID, err)
		}
		slog.InfoContext(ctx, "Repaired vault-written intent",
			"intent_id", intent.ID,
			"external_expense_id", intent.ExternalExpenseID)
		return nil

	default:
		// Already terminal.
		return nil
	}
}

// isDuplicate matches the sqlite unique-constraint error on re-insert. The
// driver does not export a typed error for it.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
