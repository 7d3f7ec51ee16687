// Package services orchestrates expense flows across the vault API, the
// SQLite metadata index, and AMQP repair events.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"zerobudget/internal/core"
	"zerobudget/internal/vault"
)

// LoadFailure describes one expense id that could not be materialized.
type LoadFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// LoadResult carries the expenses that loaded plus the ids that did not.
// A vault outage on one record never hides the rest of the list.
type LoadResult struct {
	Expenses []core.ExpenseRecord
	Failures []LoadFailure
}

// ExpenseService orchestrates expense operations across the vault and SQLite.
type ExpenseService struct {
	store      MetadataStore
	vault      VaultStore
	events     EventPublisher
	fetchLimit int
}

func NewExpenseService(store MetadataStore, vaultStore VaultStore, events EventPublisher, fetchLimit int) *ExpenseService {
	if fetchLimit < 1 {
		fetchLimit = 1
	}
	return &ExpenseService{
		store:      store,
		vault:      vaultStore,
		events:     events,
		fetchLimit: fetchLimit,
	}
}

// LoadExpenses materializes the owner's expense list: the metadata index
// names the ids, the vault holds the payloads. Individual vault failures and
// records that fail validation become Failures; only a metadata read error is
// fatal. Result order follows the metadata index (newest first).
func (s *ExpenseService) LoadExpenses(ctx context.Context, ownerID string, creds vault.Credentials) (LoadResult, error) {
	entries, err := s.store.ListMetadata(ctx, ownerID)
	if err != nil {
		return LoadResult{}, fmt.Errorf("list expense metadata: %w", err)
	}
	if len(entries) == 0 {
		return LoadResult{Expenses: []core.ExpenseRecord{}}, nil
	}

	type slot struct {
		record core.ExpenseRecord
		fail   *LoadFailure
	}
	slots := make([]slot, len(entries))
	now := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			raw, err := s.vault.Read(gctx, creds, entry.ExternalExpenseID)
			if err != nil {
				slog.WarnContext(gctx, "Vault read failed",
					"external_expense_id", entry.ExternalExpenseID, "error", err)
				slots[i].fail = &LoadFailure{ID: entry.ExternalExpenseID, Reason: "vault read failed"}
				return nil
			}

			record := core.Normalize(raw, now)
			// The metadata row, not the payload, is authoritative for the id.
			record.ID = entry.ExternalExpenseID
			if record.OwnerID == "" {
				record.OwnerID = entry.OwnerID
			}

			if err := record.ValidateFor(ownerID); err != nil {
				slog.WarnContext(gctx, "Skipping invalid expense record",
					"external_expense_id", entry.ExternalExpenseID, "error", err)
				slots[i].fail = &LoadFailure{ID: entry.ExternalExpenseID, Reason: err.Error()}
				return nil
			}

			slots[i].record = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LoadResult{}, fmt.Errorf("load expenses: %w", err)
	}

	result := LoadResult{Expenses: make([]core.ExpenseRecord, 0, len(entries))}
	for _, sl := range slots {
		if sl.fail != nil {
			result.Failures = append(result.Failures, *sl.fail)
			continue
		}
		result.Expenses = append(result.Expenses, sl.record)
	}
	return result, nil
}

// NewExpenseInput is what the API accepts for a new or updated expense.
type NewExpenseInput struct {
	Amount      core.Money
	Category    string
	Description string
	OccurredAt  time.Time
}

func (in NewExpenseInput) validate() error {
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if in.Description == "" {
		return core.ErrEmptyDescription
	}
	if !core.ValidCategory(in.Category) {
		return fmt.Errorf("%w: %q", core.ErrUnknownCategory, in.Category)
	}
	return nil
}

// CreateExpense writes the payload to the vault and indexes it locally. The
// intent log brackets the two writes so a crash in between leaves a
// reconcilable trail instead of an orphan.
func (s *ExpenseService) CreateExpense(ctx context.Context, ownerID string, creds vault.Credentials, in NewExpenseInput) (core.ExpenseRecord, error) {
	if err := in.validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	intentID, err := s.store.CreateIntent(ctx, ownerID)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("create write intent: %w", err)
	}

	externalID, err := s.vault.Write(ctx, creds, vault.WritePayload{
		Amount:    in.Amount.Float64(),
		Cat:       in.Category,
		Desc:      in.Description,
		Timestamp: occurredAt.UTC().Format(time.RFC3339),
		UserID:    ownerID,
	})
	if err != nil {
		if markErr := s.store.MarkIntentAbandoned(ctx, intentID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "Failed to abandon write intent",
				"intent_id", intentID, "error", markErr)
		}
		return core.ExpenseRecord{}, fmt.Errorf("vault write: %w", err)
	}

	if err := s.store.MarkIntentVaultWritten(ctx, intentID, externalID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark intent vault-written",
			"intent_id", intentID, "external_expense_id", externalID, "error", err)
	}

	if err := s.store.InsertMetadata(ctx, ownerID, externalID); err != nil {
		// The vault holds the payload but the index row is missing. Leave
		// the intent at vault_written and hand repair off to the worker.
		slog.ErrorContext(ctx, "Metadata insert failed after vault write",
			"intent_id", intentID, "external_expense_id", externalID, "error", err)
		s.publishRepair(ctx, intentID, ownerID, externalID)
		return core.ExpenseRecord{}, fmt.Errorf("insert expense metadata: %w", err)
	}

	if err := s.store.MarkIntentComplete(ctx, intentID); err != nil {
		slog.ErrorContext(ctx, "Failed to complete write intent",
			"intent_id", intentID, "error", err)
	}

	return core.ExpenseRecord{
		ID:          externalID,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		OccurredAt:  occurredAt,
		OwnerID:     ownerID,
	}, nil
}

// UpdateExpense replaces the vault payload in place. The metadata row does
// not change, so no intent bracketing is needed.
func (s *ExpenseService) UpdateExpense(ctx context.Context, ownerID string, creds vault.Credentials, id string, in NewExpenseInput) error {
	if err := in.validate(); err != nil {
		return err
	}

	owned, err := s.store.HasMetadata(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("check expense ownership: %w", err)
	}
	if !owned {
		return core.ErrWrongOwner
	}

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	if err := s.vault.Update(ctx, creds, id, vault.WritePayload{
		Amount:    in.Amount.Float64(),
		Cat:       in.Category,
		Desc:      in.Description,
		Timestamp: occurredAt.UTC().Format(time.RFC3339),
		UserID:    ownerID,
	}); err != nil {
		return fmt.Errorf("vault update: %w", err)
	}
	return nil
}

// DeleteExpense removes the vault payload first, then the metadata row. If
// the vault delete fails the row stays so the expense does not silently
// vanish from the list while its payload survives.
func (s *ExpenseService) DeleteExpense(ctx context.Context, ownerID string, creds vault.Credentials, id string) error {
	owned, err := s.store.HasMetadata(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("check expense ownership: %w", err)
	}
	if !owned {
		return core.ErrWrongOwner
	}

	if err := s.vault.Delete(ctx, creds, id); err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}

	if err := s.store.DeleteMetadata(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete expense metadata: %w", err)
	}

	slog.InfoContext(ctx, "Expense deleted", "owner_id", ownerID, "external_expense_id", id)
	return nil
}

func (s *ExpenseService) publishRepair(ctx context.Context, intentID int64, ownerID, externalID string) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping repair event",
			"intent_id", intentID)
		return
	}
	if err := s.events.PublishIntentRepair(ctx, intentID, ownerID, externalID); err != nil {
		// Don't fail the request path over the broker. The periodic
		// stale-intent scan picks the row up anyway.
		slog.ErrorContext(ctx, "Failed to publish repair event",
			"intent_id", intentID, "error", err)
	}
}
