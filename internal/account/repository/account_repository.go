package repository

import (
	"context"
	"errors"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *accountdomain.EmailAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = accountdomain.StatusPending
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) Update(ctx context.Context, account *accountdomain.EmailAccount) error {
	account.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&accountdomain.EmailAccount{}).Error
}

func (r *accountRepository) first(ctx context.Context, query string, args ...interface{}) (*accountdomain.EmailAccount, error) {
	var account accountdomain.EmailAccount
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*accountdomain.EmailAccount, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *accountRepository) FindByUserAndAddress(ctx context.Context, userID, emailAddress string) (*accountdomain.EmailAccount, error) {
	return r.first(ctx, "user_id = ? AND email_address = ?", userID, emailAddress)
}

func (r *accountRepository) FindByAddress(ctx context.Context, emailAddress string) ([]accountdomain.EmailAccount, error) {
	var accounts []accountdomain.EmailAccount
	err := r.db.WithContext(ctx).Where("email_address = ?", emailAddress).Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) ListByUser(ctx context.Context, userID string) ([]accountdomain.EmailAccount, error) {
	var accounts []accountdomain.EmailAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) ListSchedulable(ctx context.Context) ([]accountdomain.EmailAccount, error) {
	var accounts []accountdomain.EmailAccount
	err := r.db.WithContext(ctx).
		Where("status IN ?", []accountdomain.Status{
			accountdomain.StatusPending,
			accountdomain.StatusConnected,
			accountdomain.StatusFailed,
		}).
		Order("created_at ASC").
		Find(&accounts).Error
	return accounts, err
}

// ReleaseStale recovers rows left in syncing by a process that died mid-cycle
func (r *accountRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("status = ? AND updated_at < ?", accountdomain.StatusSyncing, cutoff).
		Updates(map[string]interface{}{
			"status":     accountdomain.StatusConnected,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// BeginSync decides the revoke race in the UPDATE itself so a revoke landing
// between the read and the transition is not overwritten.
func (r *accountRepository) BeginSync(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("id = ? AND status <> ?", id, accountdomain.StatusRevoked).
		Updates(map[string]interface{}{
			"status":     accountdomain.StatusSyncing,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id string, status accountdomain.Status, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("id = ? AND status <> ?", id, accountdomain.StatusRevoked).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now(),
		}).Error
}

// AdvanceWatermark guards monotonicity in the UPDATE itself so concurrent
// triggers for the same account cannot move it backwards.
func (r *accountRepository) AdvanceWatermark(ctx context.Context, id string, watermark time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("id = ? AND (last_sync_at IS NULL OR last_sync_at < ?)", id, watermark).
		Updates(map[string]interface{}{
			"last_sync_at": watermark,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *accountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"updated_at":   time.Now(),
	}
	// Google omits the refresh token on most refreshes
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *accountRepository) AdvanceHistoryID(ctx context.Context, id string, historyID uint64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&accountdomain.EmailAccount{}).
		Where("id = ? AND history_id < ?", id, historyID).
		Update("history_id", historyID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
