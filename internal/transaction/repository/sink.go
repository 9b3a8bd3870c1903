package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailrepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommitRequest carries everything the sink writes for one extracted message
type CommitRequest struct {
	UserID     string
	AccountID  string
	MessageID  string
	Subject    string
	ReceivedAt time.Time
	Candidate  txndomain.TransactionCandidate
	CategoryID *string
	Method     txndomain.ExtractionMethod
}

// Sink is the only writer of transactions and ledger records for the pipeline
type Sink interface {
	// Commit writes the transaction and its success ledger record atomically.
	// Returns ErrAlreadyProcessed when the message already has a record,
	// and an error wrapping ErrPersistenceFailed for anything else.
	Commit(ctx context.Context, req CommitRequest) (*txndomain.Transaction, error)
	// Record writes a ledger entry with no transaction (ignored or failed outcomes)
	Record(ctx context.Context, record *emaildomain.ProcessedEmail) (bool, error)
}

type gormSink struct {
	db *gorm.DB
}

// NewSink creates a Sink backed by gorm
func NewSink(db *gorm.DB) Sink {
	return &gormSink{db: db}
}

func (s *gormSink) Commit(ctx context.Context, req CommitRequest) (*txndomain.Transaction, error) {
	candidate := req.Candidate
	candidate.Normalize()

	now := time.Now()
	accountID := req.AccountID
	txn := &txndomain.Transaction{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		AccountID:   &accountID,
		MessageID:   req.MessageID,
		Date:        candidate.Date,
		Amount:      candidate.Amount,
		Currency:    candidate.Currency,
		Vendor:      candidate.Vendor,
		Description: candidate.Description,
		Recurring:   candidate.Recurring,
		CategoryID:  req.CategoryID,
		Status:      txndomain.StatusProcessed,
		Method:      req.Method,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if candidate.Recurring {
		pattern := string(candidate.RecurrencePattern)
		txn.RecurrencePattern = &pattern
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := emailrepo.NewProcessedEmailRepository(tx)
		inserted, err := ledger.Record(ctx, &emaildomain.ProcessedEmail{
			AccountID:   req.AccountID,
			MessageID:   req.MessageID,
			Subject:     req.Subject,
			ReceivedAt:  req.ReceivedAt,
			Outcome:     emaildomain.OutcomeSuccess,
			ProcessedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return txndomain.ErrAlreadyProcessed
		}
		return tx.Create(txn).Error
	})
	if err != nil {
		if errors.Is(err, txndomain.ErrAlreadyProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", txndomain.ErrPersistenceFailed, err)
	}
	return txn, nil
}

func (s *gormSink) Record(ctx context.Context, record *emaildomain.ProcessedEmail) (bool, error) {
	inserted, err := emailrepo.NewProcessedEmailRepository(s.db).Record(ctx, record)
	if err != nil {
		return false, fmt.Errorf("%w: %w", txndomain.ErrPersistenceFailed, err)
	}
	return inserted, nil
}
