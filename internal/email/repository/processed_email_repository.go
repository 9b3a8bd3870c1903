package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// processedEmailRepository implements ProcessedEmailRepository interface
type processedEmailRepository struct {
	db *gorm.DB
}

// NewProcessedEmailRepository creates a new instance of processedEmailRepository.
// Pass a transaction handle to make Record part of a larger unit of work.
func NewProcessedEmailRepository(db *gorm.DB) ProcessedEmailRepository {
	return &processedEmailRepository{
		db: db,
	}
}

func (r *processedEmailRepository) Exists(ctx context.Context, accountID, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&emaildomain.ProcessedEmail{}).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record relies on the unique index so two writers racing on the same key
// cannot both insert.
func (r *processedEmailRepository) Record(ctx context.Context, record *emaildomain.ProcessedEmail) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = time.Now()
	}

	// INSERT ... ON CONFLICT (account_id, message_id) DO NOTHING
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *processedEmailRepository) Find(ctx context.Context, accountID, messageID string) (*emaildomain.ProcessedEmail, error) {
	var record emaildomain.ProcessedEmail
	err := r.db.WithContext(ctx).Where("account_id = ? AND message_id = ?", accountID, messageID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *processedEmailRepository) CountByOutcome(ctx context.Context, accountID string) (map[emaildomain.Outcome]int64, error) {
	var rows []struct {
		Outcome emaildomain.Outcome
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&emaildomain.ProcessedEmail{}).
		Select("outcome, COUNT(*) AS count").
		Where("account_id = ?", accountID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[emaildomain.Outcome]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

func (r *processedEmailRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&emaildomain.ProcessedEmail{}).Error
}
