package repository

import (
	"context"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
)

// ProcessedEmailRepository is the dedup ledger: one record per (account, message)
type ProcessedEmailRepository interface {
	// Exists reports whether the message already has a ledger record
	Exists(ctx context.Context, accountID, messageID string) (bool, error)
	// Record inserts the entry unless one exists. Returns false when the key was already taken,
	// in which case the stored record is left untouched.
	Record(ctx context.Context, record *emaildomain.ProcessedEmail) (bool, error)
	// Find returns the record for a message, or nil
	Find(ctx context.Context, accountID, messageID string) (*emaildomain.ProcessedEmail, error)
	// CountByOutcome returns record counts per outcome for an account
	CountByOutcome(ctx context.Context, accountID string) (map[emaildomain.Outcome]int64, error)
	// DeleteByAccount removes every record of an account
	DeleteByAccount(ctx context.Context, accountID string) error
}
