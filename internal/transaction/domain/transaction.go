package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency = "USD"
	UnknownVendor   = "Unknown Vendor"
)

var (
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrAlreadyProcessed    = errors.New("message already processed")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrInvalidTransaction  = errors.New("invalid transaction")
)

// RecurrencePattern is how often a recurring charge repeats
type RecurrencePattern string

const (
	RecurrenceDaily     RecurrencePattern = "DAILY"
	RecurrenceWeekly    RecurrencePattern = "WEEKLY"
	RecurrenceMonthly   RecurrencePattern = "MONTHLY"
	RecurrenceQuarterly RecurrencePattern = "QUARTERLY"
	RecurrenceYearly    RecurrencePattern = "YEARLY"
)

// ParseRecurrencePattern maps free text onto a pattern. ok is false for
// anything outside the known set.
func ParseRecurrencePattern(s string) (RecurrencePattern, bool) {
	switch p := RecurrencePattern(strings.ToUpper(strings.TrimSpace(s))); p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceQuarterly, RecurrenceYearly:
		return p, true
	case "ANNUAL", "ANNUALLY":
		return RecurrenceYearly, true
	}
	return "", false
}

// Status of a stored transaction
type Status string

const (
	StatusProcessed Status = "processed"
	StatusManual    Status = "manual"
)

// ExtractionMethod records which extractor produced a candidate
type ExtractionMethod string

const (
	MethodAI        ExtractionMethod = "ai"
	MethodHeuristic ExtractionMethod = "heuristic"
)

// TransactionCandidate is the unpersisted result of extraction
type TransactionCandidate struct {
	Date              time.Time         `json:"date"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Vendor            string            `json:"vendor"`
	Description       string            `json:"description"`
	Recurring         bool              `json:"recurring"`
	RecurrencePattern RecurrencePattern `json:"recurrence_pattern,omitempty"`
}

// Normalize applies the defaults every stored candidate must satisfy
func (c *TransactionCandidate) Normalize() {
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if len(c.Currency) != 3 {
		c.Currency = DefaultCurrency
	}
	c.Vendor = strings.TrimSpace(c.Vendor)
	if c.Vendor == "" {
		c.Vendor = UnknownVendor
	}
	c.Description = strings.TrimSpace(c.Description)
	if !c.Recurring {
		c.RecurrencePattern = ""
		return
	}
	if p, ok := ParseRecurrencePattern(string(c.RecurrencePattern)); ok {
		c.RecurrencePattern = p
	} else {
		c.RecurrencePattern = RecurrenceMonthly
	}
}

// Transaction is a persisted candidate with its category and owners
type Transaction struct {
	ID                string           `json:"id" gorm:"primaryKey"`
	UserID            string           `json:"user_id" gorm:"index;not null"`
	AccountID         *string          `json:"account_id,omitempty" gorm:"index;uniqueIndex:idx_txn_account_message"`
	MessageID         string           `json:"message_id,omitempty" gorm:"uniqueIndex:idx_txn_account_message"`
	Date              time.Time        `json:"date" gorm:"index"`
	Amount            decimal.Decimal  `json:"amount" gorm:"type:numeric(19,4);not null"`
	Currency          string           `json:"currency" gorm:"size:3;not null"`
	Vendor            string           `json:"vendor" gorm:"not null"`
	Description       string           `json:"description" gorm:"type:text"`
	Recurring         bool             `json:"recurring"`
	RecurrencePattern *string          `json:"recurrence_pattern,omitempty" gorm:"size:16"`
	CategoryID        *string          `json:"category_id,omitempty" gorm:"index"`
	Status            Status           `json:"status" gorm:"size:16;not null"`
	Method            ExtractionMethod `json:"extraction_method" gorm:"size:16"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Candidate returns the extraction fields of a stored transaction
func (t *Transaction) Candidate() TransactionCandidate {
	c := TransactionCandidate{
		Date:        t.Date,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Vendor:      t.Vendor,
		Description: t.Description,
		Recurring:   t.Recurring,
	}
	if t.RecurrencePattern != nil {
		c.RecurrencePattern = RecurrencePattern(*t.RecurrencePattern)
	}
	return c
}
