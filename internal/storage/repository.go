package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zerobudget/internal/core"

	_ "modernc.org/sqlite"
)

// Intent states for the two-store write path.
const (
	IntentPending      = "pending"
	IntentVaultWritten = "vault_written"
	IntentComplete     = "complete"
	IntentAbandoned    = "abandoned"
)

var ErrIncomeNotSet = errors.New("income not set")

// WriteIntent is one row of the intent log.
type WriteIntent struct {
	ID                int64
	OwnerID           string
	ExternalExpenseID string
	State             string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SQLiteRepository holds the metadata index, per-user settings, and the
// write-intent log. Expense payloads themselves never touch this database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertMetadata records that the vault holds an expense for the owner.
// Rows are immutable once created.
func (r *SQLiteRepository) InsertMetadata(ctx context.Context, ownerID, externalID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_metadata (owner_id, external_expense_id) VALUES (?, ?)`,
		ownerID, externalID)
	if err != nil {
		return fmt.Errorf("insert expense metadata: %w", err)
	}

	slog.InfoContext(ctx, "Expense metadata created",
		"owner_id", ownerID,
		"external_expense_id", externalID)
	return nil
}

// ListMetadata returns the owner's metadata rows, newest first. This is the
// sole authoritative index of which expense ids belong to which user.
func (r *SQLiteRepository) ListMetadata(ctx context.Context, ownerID string) ([]core.MetadataEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner_id, external_expense_id, created_at
		   FROM expense_metadata
		  WHERE owner_id = ?
		  ORDER BY created_at DESC, id DESC`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("select expense metadata: %w", err)
	}
	defer rows.Close()

	var entries []core.MetadataEntry
	for rows.Next() {
		var e core.MetadataEntry
		if err := rows.Scan(&e.OwnerID, &e.ExternalExpenseID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense metadata: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expense metadata: %w", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) DeleteMetadata(ctx context.Context, ownerID, externalID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM expense_metadata WHERE owner_id = ? AND external_expense_id = ?`,
		ownerID, externalID)
	if err != nil {
		return fmt.Errorf("delete expense metadata: %w", err)
	}
	return nil
}

// GetIncome returns the owner's monthly income. ErrIncomeNotSet when the
// owner never saved one.
func (r *SQLiteRepository) GetIncome(ctx context.Context, ownerID string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_income_cents FROM user_settings WHERE owner_id = ?`,
		ownerID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, ErrIncomeNotSet
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("select income: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// SetIncome is the single write path for the income setting.
func (r *SQLiteRepository) SetIncome(ctx context.Context, ownerID string, income core.Money) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (owner_id, monthly_income_cents, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (owner_id) DO UPDATE
		    SET monthly_income_cents = excluded.monthly_income_cents,
		        updated_at = CURRENT_TIMESTAMP`,
		ownerID, income.Cents)
	if err != nil {
		return fmt.Errorf("upsert income: %w", err)
	}

	slog.InfoContext(ctx, "Income updated", "owner_id", ownerID, "income_cents", income.Cents)
	return nil
}

// CreateIntent opens a pending row before the vault write starts.
func (r *SQLiteRepository) CreateIntent(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO write_intents (owner_id, state) VALUES (?, ?)`,
		ownerID, IntentPending)
	if err != nil {
		return 0, fmt.Errorf("create write intent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write intent id: %w", err)
	}
	return id, nil
}

// MarkIntentVaultWritten records the id the vault handed back; the metadata
// row is still missing at this point.
func (r *SQLiteRepository) MarkIntentVaultWritten(ctx context.Context, id int64, externalID string) error {
	return r.setIntentState(ctx, id, IntentVaultWritten, externalID, "")
}

func (r *SQLiteRepository) MarkIntentComplete(ctx context.Context, id int64) error {
	return r.setIntentState(ctx, id, IntentComplete, "", "")
}

func (r *SQLiteRepository) MarkIntentAbandoned(ctx context.Context, id int64, reason string) error {
	return r.setIntentState(ctx, id, IntentAbandoned, "", reason)
}

func (r *SQLiteRepository) setIntentState(ctx context.Context, id int64, state, externalID, lastError string) error {
	var err error
	if externalID != "" {
		_, err = r.db.ExecContext(ctx,
			`UPDATE write_intents
			    SET state = ?, external_expense_id = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`,
			state, externalID, id)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE write_intents
			    SET state = ?, last_error = NULLIF(?, ''), updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`,
			state, lastError, id)
	}
	if err != nil {
		return fmt.Errorf("update write intent %d to %s: %w", id, state, err)
	}
	return nil
}

// GetIntent fetches a single intent row.
func (r *SQLiteRepository) GetIntent(ctx context.Context, id int64) (WriteIntent, error) {
	var (
		intent     WriteIntent
		externalID sql.NullString
		lastError  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, external_expense_id, state, last_error, created_at, updated_at
		   FROM write_intents WHERE id = ?`, id).
		Scan(&intent.ID, &intent.OwnerID, &externalID, &intent.State, &lastError,
			&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return WriteIntent{}, fmt.Errorf("select write intent %d: %w", id, err)
	}
	intent.ExternalExpenseID = externalID.String
	intent.LastError = lastError.String
	return intent, nil
}

// ListStaleIntents returns non-terminal intent rows untouched since the
// cutoff, oldest first, for the reconcile worker to inspect.
func (r *SQLiteRepository) ListStaleIntents(ctx context.Context, cutoff time.Time, limit int) ([]WriteIntent, error) {
	// CURRENT_TIMESTAMP writes 'YYYY-MM-DD HH:MM:SS' text, so the cutoff is
	// bound in the same shape for a correct lexicographic comparison.
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, external_expense_id, state, last_error, created_at, updated_at
		   FROM write_intents
		  WHERE state IN (?, ?) AND updated_at < ?
		  ORDER BY updated_at ASC
		  LIMIT ?`,
		IntentPending, IntentVaultWritten, cutoff.UTC().Format("2006-01-02 15:04:05"), limit)
	if err != nil {
		return nil, fmt.Errorf("select stale write intents: %w", err)
	}
	defer rows.Close()

	var intents []WriteIntent
	for rows.Next() {
		var (
			intent     WriteIntent
			externalID sql.NullString
			lastError  sql.NullString
		)
		if err := rows.Scan(&intent.ID, &intent.OwnerID, &externalID, &intent.State,
			&lastError, &intent.CreatedAt, &intent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan write intent: %w", err)
		}
		intent.ExternalExpenseID = externalID.String
		intent.LastError = lastError.String
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate write intents: %w", err)
	}
	return intents, nil
}

// HasMetadata reports whether the metadata row for the given pair exists.
func (r *SQLiteRepository) HasMetadata(ctx context.Context, ownerID, externalID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM expense_metadata WHERE owner_id = ? AND external_expense_id = ?`,
		ownerID, externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check expense metadata: %w", err)
	}
	return true, nil
}
