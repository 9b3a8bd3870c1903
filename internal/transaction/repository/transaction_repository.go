package repository

import (
	"context"
	"errors"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository defines access to stored transactions outside the sync pipeline
type TransactionRepository interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]txndomain.Transaction, int64, error)
	ListAllByUser(ctx context.Context, userID string) ([]txndomain.Transaction, error)
	// ListBetween returns the user's transactions dated in [start, end)
	ListBetween(ctx context.Context, userID string, start, end time.Time) ([]txndomain.Transaction, error)
	// FindByID returns nil when the transaction does not exist or belongs to someone else
	FindByID(ctx context.Context, userID, id string) (*txndomain.Transaction, error)
	Create(ctx context.Context, txn *txndomain.Transaction) error
	Update(ctx context.Context, txn *txndomain.Transaction) error
	// Delete returns false when nothing matched
	Delete(ctx context.Context, userID, id string) (bool, error)
	CountRecurring(ctx context.Context, userID string) (int64, error)
	FindByMessage(ctx context.Context, accountID, messageID string) (*txndomain.Transaction, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
	UsersWithTransactions(ctx context.Context) ([]string, error)
	DetachAccount(ctx context.Context, accountID string) error
}

// CategoryRepository defines the interface for category lookups
type CategoryRepository interface {
	Seed(ctx context.Context, categories []txndomain.Category) error
	List(ctx context.Context) ([]txndomain.Category, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new instance of transactionRepository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]txndomain.Transaction, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	q := r.db.WithContext(ctx).Model(&txndomain.Transaction{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []txndomain.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *transactionRepository) ListAllByUser(ctx context.Context, userID string) ([]txndomain.Transaction, error) {
	var txns []txndomain.Transaction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("date ASC").Find(&txns).Error
	return txns, err
}

func (r *transactionRepository) ListBetween(ctx context.Context, userID string, start, end time.Time) ([]txndomain.Transaction, error) {
	var txns []txndomain.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date < ?", userID, start, end).
		Order("date ASC").
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepository) FindByID(ctx context.Context, userID, id string) (*txndomain.Transaction, error) {
	var txn txndomain.Transaction
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) Create(ctx context.Context, txn *txndomain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *transactionRepository) Update(ctx context.Context, txn *txndomain.Transaction) error {
	txn.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *transactionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&txndomain.Transaction{})
	return result.RowsAffected > 0, result.Error
}

func (r *transactionRepository) CountRecurring(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&txndomain.Transaction{}).
		Where("user_id = ? AND recurring = ?", userID, true).
		Count(&count).Error
	return count, err
}

func (r *transactionRepository) FindByMessage(ctx context.Context, accountID, messageID string) (*txndomain.Transaction, error) {
	var txn txndomain.Transaction
	err := r.db.WithContext(ctx).Where("account_id = ? AND message_id = ?", accountID, messageID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&txndomain.Transaction{}).Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

func (r *transactionRepository) UsersWithTransactions(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&txndomain.Transaction{}).Distinct("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

// DetachAccount keeps a disconnected mailbox's transactions but drops the link to it
func (r *transactionRepository) DetachAccount(ctx context.Context, accountID string) error {
	return r.db.WithContext(ctx).
		Model(&txndomain.Transaction{}).
		Where("account_id = ?", accountID).
		Update("account_id", nil).Error
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new instance of categoryRepository
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// Seed inserts missing categories and leaves existing rows alone
func (r *categoryRepository) Seed(ctx context.Context, categories []txndomain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&categories).Error
}

func (r *categoryRepository) List(ctx context.Context) ([]txndomain.Category, error) {
	var cats []txndomain.Category
	err := r.db.WithContext(ctx).Order("position ASC").Find(&cats).Error
	return cats, err
}

func (r *categoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&txndomain.Category{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
