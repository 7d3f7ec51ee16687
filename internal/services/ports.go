package services

import (
	"context"
	"time"

	"zerobudget/internal/core"
	"zerobudget/internal/storage"
	"zerobudget/internal/vault"
)

// MetadataStore is the slice of the SQLite repository the expense flows use.
type MetadataStore interface {
	InsertMetadata(ctx context.Context, ownerID, externalID string) error
	ListMetadata(ctx context.Context, ownerID string) ([]core.MetadataEntry, error)
	DeleteMetadata(ctx context.Context, ownerID, externalID string) error
	HasMetadata(ctx context.Context, ownerID, externalID string) (bool, error)

	CreateIntent(ctx context.Context, ownerID string) (int64, error)
	MarkIntentVaultWritten(ctx context.Context, id int64, externalID string) error
	MarkIntentComplete(ctx context.Context, id int64) error
	MarkIntentAbandoned(ctx context.Context, id int64, reason string) error
	ListStaleIntents(ctx context.Context, cutoff time.Time, limit int) ([]storage.WriteIntent, error)
}

// VaultStore is the slice of the vault client the expense flows use.
type VaultStore interface {
	Write(ctx context.Context, creds vault.Credentials, payload vault.WritePayload) (string, error)
	Read(ctx context.Context, creds vault.Credentials, id string) (core.RawRecord, error)
	Update(ctx context.Context, creds vault.Credentials, id string, payload vault.WritePayload) error
	Delete(ctx context.Context, creds vault.Credentials, id string) error
}

// EventPublisher emits repair events for intents that stalled mid-write.
type EventPublisher interface {
	PublishIntentRepair(ctx context.Context, intentID int64, ownerID, externalID string) error
}
