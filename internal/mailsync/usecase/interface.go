package usecase

import (
	"context"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
)

// SyncUsecase drives mailbox ingestion
type SyncUsecase interface {
	// SyncAccount runs one cycle for one account. It returns ErrAccountBusy
	// when a cycle for the account is already in flight.
	SyncAccount(ctx context.Context, accountID string) (*BatchReport, error)
	// RunCycle syncs every schedulable account on a bounded worker pool
	RunCycle(ctx context.Context) ([]*BatchReport, error)
}

// Categorizer assigns a category id to a candidate, or nil
type Categorizer interface {
	Categorize(ctx context.Context, candidate *txndomain.TransactionCandidate) *string
}

// FailureNotifier is told when an account enters the failed state
type FailureNotifier interface {
	AccountFailed(ctx context.Context, account *accountdomain.EmailAccount, cause error)
}

// CredentialSealer protects tokens at rest
type CredentialSealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}
