package core

import (
	"time"
)

// RawRecord is the union of the two payload shapes the vault has stored over
// time: the short-form fields written by the current client (cat, desc,
// timestamp, userId) and the long-form fields left behind by the legacy one
// (category, description, date, supabaseUserId). A payload may carry either
// spelling of each field, or both.
type RawRecord struct {
	VaultID     string  `json:"_id,omitempty"`
	LegacyID    string  `json:"id,omitempty"`
	Amount      float64 `json:"amount"`
	Cat         string  `json:"cat,omitempty"`
	Category    string  `json:"category,omitempty"`
	Desc        string  `json:"desc,omitempty"`
	Description string  `json:"description,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Date        string  `json:"date,omitempty"`
	UserID      string  `json:"userId,omitempty"`
	OwnerID     string  `json:"supabaseUserId,omitempty"`
}

// Normalize maps a raw vault payload into the canonical record. The
// short-form field wins when both spellings are present, timestamp wins over
// date, and a record carrying neither timestamp is stamped with now.
//
// Normalize is a pure transform: it never rejects. Validation happens where
// the record is accepted into the visible list (ValidateFor).
func Normalize(raw RawRecord, now time.Time) ExpenseRecord {
	return ExpenseRecord{
		ID:          firstNonEmpty(raw.VaultID, raw.LegacyID),
		Amount:      MoneyFromFloat(raw.Amount),
		Category:    firstNonEmpty(raw.Cat, raw.Category),
		Description: firstNonEmpty(raw.Desc, raw.Description),
		OccurredAt:  parseOccurredAt(firstNonEmpty(raw.Timestamp, raw.Date), now),
		OwnerID:     firstNonEmpty(raw.UserID, raw.OwnerID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseOccurredAt accepts RFC 3339 timestamps and bare dates; anything else
// falls back to now.
func parseOccurredAt(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return now
}
