package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"zerobudget/internal/core"
	"zerobudget/internal/storage"
	"zerobudget/internal/vault"
)

// fakeStore is an in-memory MetadataStore.
type fakeStore struct {
	mu       sync.Mutex
	metadata []core.MetadataEntry
	intents  map[int64]*storage.WriteIntent
	nextID   int64

	insertMetadataErr error
	listMetadataErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{intents: map[int64]*storage.WriteIntent{}}
}

func (f *fakeStore) InsertMetadata(ctx context.Context, ownerID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertMetadataErr != nil {
		return f.insertMetadataErr
	}
	for _, e := range f.metadata {
		if e.OwnerID == ownerID && e.ExternalExpenseID == externalID {
			return errors.New("UNIQUE constraint failed: expense_metadata")
		}
	}
	f.metadata = append(f.metadata, core.MetadataEntry{
		OwnerID:           ownerID,
		ExternalExpenseID: externalID,
		CreatedAt:         time.Now(),
	})
	return nil
}

func (f *fakeStore) ListMetadata(ctx context.Context, ownerID string) ([]core.MetadataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listMetadataErr != nil {
		return nil, f.listMetadataErr
	}
	var out []core.MetadataEntry
	for i := len(f.metadata) - 1; i >= 0; i-- {
		if f.metadata[i].OwnerID == ownerID {
			out = append(out, f.metadata[i])
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteMetadata(ctx context.Context, ownerID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.metadata {
		if e.OwnerID == ownerID && e.ExternalExpenseID == externalID {
			f.metadata = append(f.metadata[:i], f.metadata[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) HasMetadata(ctx context.Context, ownerID, externalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.metadata {
		if e.OwnerID == ownerID && e.ExternalExpenseID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateIntent(ctx context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.intents[f.nextID] = &storage.WriteIntent{
		ID: f.nextID, OwnerID: ownerID, State: storage.IntentPending,
	}
	return f.nextID, nil
}

func (f *fakeStore) MarkIntentVaultWritten(ctx context.Context, id int64, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].State = storage.IntentVaultWritten
	f.intents[id].ExternalExpenseID = externalID
	return nil
}

func (f *fakeStore) MarkIntentComplete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].State = storage.IntentComplete
	return nil
}

func (f *fakeStore) MarkIntentAbandoned(ctx context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].State = storage.IntentAbandoned
	f.intents[id].LastError = reason
	return nil
}

func (f *fakeStore) ListStaleIntents(ctx context.Context, cutoff time.Time, limit int) ([]storage.WriteIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.WriteIntent
	for _, i := range f.intents {
		if i.State == storage.IntentPending || i.State == storage.IntentVaultWritten {
			out = append(out, *i)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeVault is an in-memory VaultStore.
type fakeVault struct {
	mu      sync.Mutex
	records map[string]core.RawRecord
	nextID  int
	reads   int

	writeErr  error
	readErr   error
	deleteErr error
}

func newFakeVault() *fakeVault {
	return &fakeVault{records: map[string]core.RawRecord{}}
}

func (f *fakeVault) Write(ctx context.Context, creds vault.Credentials, p vault.WritePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.nextID++
	id := fmt.Sprintf("exp-%d", f.nextID)
	f.records[id] = core.RawRecord{
		VaultID:   id,
		Amount:    p.Amount,
		Cat:       p.Cat,
		Desc:      p.Desc,
		Timestamp: p.Timestamp,
		UserID:    p.UserID,
	}
	return id, nil
}

func (f *fakeVault) Read(ctx context.Context, creds vault.Credentials, id string) (core.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return core.RawRecord{}, f.readErr
	}
	raw, ok := f.records[id]
	if !ok {
		return core.RawRecord{}, errors.New("not found")
	}
	return raw, nil
}

func (f *fakeVault) Update(ctx context.Context, creds vault.Credentials, id string, p vault.WritePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return errors.New("not found")
	}
	f.records[id] = core.RawRecord{
		VaultID: id, Amount: p.Amount, Cat: p.Cat, Desc: p.Desc,
		Timestamp: p.Timestamp, UserID: p.UserID,
	}
	return nil
}

func (f *fakeVault) Delete(ctx context.Context, creds vault.Credentials, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.records, id)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []int64
}

func (f *fakePublisher) PublishIntentRepair(ctx context.Context, intentID int64, ownerID, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, intentID)
	return nil
}

var testVaultCreds = vault.Credentials{AccessToken: "tok", CollectionKey: "key"}

func validInput() NewExpenseInput {
	return NewExpenseInput{
		Amount:      core.Money{Cents: 1250},
		Category:    core.CategoryFood,
		Description: "lunch",
		OccurredAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateExpenseHappyPath(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)

	record, err := svc.CreateExpense(context.Background(), "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if record.ID == "" {
		t.Fatal("record has no id")
	}
	if record.OwnerID != "user-1" {
		t.Errorf("owner = %q", record.OwnerID)
	}

	owned, _ := store.HasMetadata(context.Background(), "user-1", record.ID)
	if !owned {
		t.Error("metadata row missing after create")
	}
	if store.intents[1].State != storage.IntentComplete {
		t.Errorf("intent state = %q", store.intents[1].State)
	}
}

func TestCreateExpenseRejectsInvalidInput(t *testing.T) {
	svc := NewExpenseService(newFakeStore(), newFakeVault(), nil, 4)

	cases := []struct {
		name   string
		mutate func(*NewExpenseInput)
		want   error
	}{
		{"zero amount", func(in *NewExpenseInput) { in.Amount = core.Money{} }, core.ErrInvalidAmount},
		{"negative amount", func(in *NewExpenseInput) { in.Amount = core.Money{Cents: -100} }, core.ErrInvalidAmount},
		{"empty description", func(in *NewExpenseInput) { in.Description = "" }, core.ErrEmptyDescription},
		{"unknown category", func(in *NewExpenseInput) { in.Category = "Groceries" }, core.ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.CreateExpense(context.Background(), "user-1", testVaultCreds, in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateExpenseVaultFailureAbandonsIntent(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	vaultStore.writeErr = errors.New("vault down")
	svc := NewExpenseService(store, vaultStore, nil, 4)

	_, err := svc.CreateExpense(context.Background(), "user-1", testVaultCreds, validInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if store.intents[1].State != storage.IntentAbandoned {
		t.Errorf("intent state = %q", store.intents[1].State)
	}
	if len(store.metadata) != 0 {
		t.Error("metadata row created despite vault failure")
	}
}

func TestCreateExpenseMetadataFailurePublishesRepair(t *testing.T) {
	store := newFakeStore()
	store.insertMetadataErr = errors.New("disk full")
	vaultStore := newFakeVault()
	events := &fakePublisher{}
	svc := NewExpenseService(store, vaultStore, events, 4)

	_, err := svc.CreateExpense(context.Background(), "user-1", testVaultCreds, validInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if store.intents[1].State != storage.IntentVaultWritten {
		t.Errorf("intent state = %q, want vault_written", store.intents[1].State)
	}
	if len(events.events) != 1 || events.events[0] != 1 {
		t.Errorf("repair events = %v", events.events)
	}
}

func TestLoadExpensesEmpty(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)

	result, err := svc.LoadExpenses(context.Background(), "user-1", testVaultCreds)
	if err != nil {
		t.Fatalf("LoadExpenses: %v", err)
	}
	if result.Expenses == nil || len(result.Expenses) != 0 {
		t.Errorf("expenses = %v", result.Expenses)
	}
	if vaultStore.reads != 0 {
		t.Errorf("vault read %d times for empty index", vaultStore.reads)
	}
}

func TestLoadExpensesPartialFailure(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	first, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	in := validInput()
	in.Category = core.CategoryTravel
	second, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, in)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	// Simulate a payload that vanished from the vault.
	delete(vaultStore.records, first.ID)

	result, err := svc.LoadExpenses(ctx, "user-1", testVaultCreds)
	if err != nil {
		t.Fatalf("LoadExpenses: %v", err)
	}
	if len(result.Expenses) != 1 || result.Expenses[0].ID != second.ID {
		t.Fatalf("expenses = %+v", result.Expenses)
	}
	if len(result.Failures) != 1 || result.Failures[0].ID != first.ID {
		t.Fatalf("failures = %+v", result.Failures)
	}
}

func TestLoadExpensesSkipsWrongOwner(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	record, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	// Tamper with the stored payload so it claims another owner.
	raw := vaultStore.records[record.ID]
	raw.UserID = "someone-else"
	vaultStore.records[record.ID] = raw

	result, err := svc.LoadExpenses(ctx, "user-1", testVaultCreds)
	if err != nil {
		t.Fatalf("LoadExpenses: %v", err)
	}
	if len(result.Expenses) != 0 {
		t.Errorf("wrong-owner record surfaced: %+v", result.Expenses)
	}
	if len(result.Failures) != 1 {
		t.Errorf("failures = %+v", result.Failures)
	}
}

func TestLoadExpensesMetadataErrorIsFatal(t *testing.T) {
	store := newFakeStore()
	store.listMetadataErr = errors.New("db locked")
	svc := NewExpenseService(store, newFakeVault(), nil, 4)

	if _, err := svc.LoadExpenses(context.Background(), "user-1", testVaultCreds); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteExpense(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	record, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if err := svc.DeleteExpense(ctx, "user-1", testVaultCreds, record.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	owned, _ := store.HasMetadata(ctx, "user-1", record.ID)
	if owned {
		t.Error("metadata row survived delete")
	}
}

func TestDeleteExpenseWrongOwner(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	record, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	err = svc.DeleteExpense(ctx, "user-2", testVaultCreds, record.ID)
	if !errors.Is(err, core.ErrWrongOwner) {
		t.Fatalf("error = %v, want ErrWrongOwner", err)
	}
}

func TestDeleteExpenseVaultFailureKeepsMetadata(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	record, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	vaultStore.deleteErr = errors.New("vault down")
	if err := svc.DeleteExpense(ctx, "user-1", testVaultCreds, record.ID); err == nil {
		t.Fatal("expected error")
	}
	owned, _ := store.HasMetadata(ctx, "user-1", record.ID)
	if !owned {
		t.Error("metadata row deleted despite vault failure")
	}
}

func TestUpdateExpense(t *testing.T) {
	store := newFakeStore()
	vaultStore := newFakeVault()
	svc := NewExpenseService(store, vaultStore, nil, 4)
	ctx := context.Background()

	record, err := svc.CreateExpense(ctx, "user-1", testVaultCreds, validInput())
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	in := validInput()
	in.Amount = core.Money{Cents: 9900}
	in.Description = "dinner"
	if err := svc.UpdateExpense(ctx, "user-1", testVaultCreds, record.ID, in); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got := vaultStore.records[record.ID].Amount; got != 99 {
		t.Errorf("stored amount = %v", got)
	}

	if err := svc.UpdateExpense(ctx, "user-2", testVaultCreds, record.ID, in); !errors.Is(err, core.ErrWrongOwner) {
		t.Errorf("wrong-owner update error = %v", err)
	}
}
