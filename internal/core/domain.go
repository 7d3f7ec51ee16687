package core

import (
	"errors"
	"strings"
	"time"
)

// The fixed category set every expense must fall into. The allocation table
// drives the budget engine and always sums to 100.
const (
	CategoryFood          = "Food & Dining"
	CategoryTransport     = "Transportation"
	CategoryShopping      = "Shopping"
	CategoryEntertainment = "Entertainment"
	CategoryBills         = "Bills & Utilities"
	CategoryHealthcare    = "Healthcare"
	CategoryTravel        = "Travel"
	CategoryOther         = "Other"
)

// Categories lists the fixed category set in display order.
var Categories = []string{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryEntertainment,
	CategoryBills,
	CategoryHealthcare,
	CategoryTravel,
	CategoryOther,
}

// DefaultAllocationPercent maps each category to its share of monthly income.
var DefaultAllocationPercent = map[string]int64{
	CategoryFood:          15,
	CategoryTransport:     10,
	CategoryShopping:      10,
	CategoryEntertainment: 5,
	CategoryBills:         25,
	CategoryHealthcare:    10,
	CategoryTravel:        5,
	CategoryOther:         20,
}

type (
	Money struct {
		Cents int64
	}

	// ExpenseRecord is the canonical in-memory expense shape. Raw vault
	// payloads are mapped into it by Normalize and accepted into the
	// visible list only after ValidateFor passes.
	ExpenseRecord struct {
		ID          string
		Amount      Money
		Category    string
		Description string
		OccurredAt  time.Time
		OwnerID     string
	}

	// MetadataEntry is the per-user index row pointing at a vault-stored
	// payload. Immutable once created.
	MetadataEntry struct {
		OwnerID           string
		ExternalExpenseID string
		CreatedAt         time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrMissingID        = errors.New("missing record id")
	ErrWrongOwner       = errors.New("record owned by another user")
)

// ValidCategory reports whether name belongs to the fixed category set.
func ValidCategory(name string) bool {
	_, ok := DefaultAllocationPercent[name]
	return ok
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateFor checks a record at the acceptance boundary. Records failing any
// check are dropped from the visible list, never repaired.
func (e ExpenseRecord) ValidateFor(ownerID string) error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrMissingID
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !ValidCategory(e.Category) {
		return ErrUnknownCategory
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if e.OwnerID != ownerID {
		return ErrWrongOwner
	}
	return nil
}
