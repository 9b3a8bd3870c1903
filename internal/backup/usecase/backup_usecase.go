package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backupdomain "github.com/Retr0-XD/FInance-Monkey/internal/backup/domain"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
)

// ExportResult describes one written backup
type ExportResult struct {
	Name         string    `json:"name"`
	Transactions int       `json:"transactions"`
	ExportedAt   time.Time `json:"exported_at"`
}

// BackupUsecase mirrors users' transactions to an external store
type BackupUsecase interface {
	Export(ctx context.Context, userID string) (*ExportResult, error)
	// Latest returns the transactions of the newest backup, or an empty list
	Latest(ctx context.Context, userID string) ([]txndomain.Transaction, error)
	// ExportAll backs up every user with transactions. Per-user failures are logged and skipped.
	ExportAll(ctx context.Context) error
}

type backupUsecase struct {
	store        backupdomain.Store
	transactions txnrepo.TransactionRepository
	now          func() time.Time
}

// NewBackupUsecase creates a backup usecase. A nil store disables backups.
func NewBackupUsecase(store backupdomain.Store, transactions txnrepo.TransactionRepository) BackupUsecase {
	return &backupUsecase{store: store, transactions: transactions, now: time.Now}
}

func (u *backupUsecase) Export(ctx context.Context, userID string) (*ExportResult, error) {
	if u.store == nil {
		return nil, backupdomain.ErrNotConfigured
	}

	txns, err := u.transactions.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if txns == nil {
		txns = []txndomain.Transaction{}
	}

	now := u.now().UTC()
	data, err := json.Marshal(backupdomain.Snapshot{UserID: userID, ExportedAt: now, Transactions: txns})
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	name := backupdomain.ObjectName(userID, now)
	if err := u.store.Put(ctx, name, data); err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("user_id", userID).Str("name", name).Int("transactions", len(txns)).Msg("backup written")
	return &ExportResult{Name: name, Transactions: len(txns), ExportedAt: now}, nil
}

func (u *backupUsecase) Latest(ctx context.Context, userID string) ([]txndomain.Transaction, error) {
	if u.store == nil {
		return nil, backupdomain.ErrNotConfigured
	}

	_, data, err := u.store.Latest(ctx, backupdomain.Prefix(userID))
	if err != nil {
		return nil, fmt.Errorf("fetch backup: %w", err)
	}
	if data == nil {
		return []txndomain.Transaction{}, nil
	}

	var snapshot backupdomain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	if snapshot.Transactions == nil {
		return []txndomain.Transaction{}, nil
	}
	return snapshot.Transactions, nil
}

func (u *backupUsecase) ExportAll(ctx context.Context) error {
	if u.store == nil {
		return nil
	}
	log := logger.Component(logger.FromContext(ctx), "backup")

	users, err := u.transactions.UsersWithTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var failed int
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := u.Export(ctx, userID); err != nil {
			failed++
			log.Warn().Err(err).Str("user_id", userID).Msg("backup failed, skipping user")
		}
	}
	log.Info().Int("users", len(users)).Int("failed", failed).Msg("backup run finished")
	if failed > 0 && failed == len(users) {
		return errors.New("every backup in the run failed")
	}
	return nil
}
