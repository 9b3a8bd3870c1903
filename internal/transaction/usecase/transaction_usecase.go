package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txndto "github.com/Retr0-XD/FInance-Monkey/internal/transaction/dto"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/shopspring/decimal"
)

const (
	uncategorized     = "Uncategorized"
	defaultTrendRange = 12
	maxTrendRange     = 36
)

// TransactionUsecase covers manual edits and spending analytics
type TransactionUsecase interface {
	Get(ctx context.Context, userID, id string) (*txndomain.Transaction, error)
	Create(ctx context.Context, userID string, req *txndto.TransactionRequest) (*txndomain.Transaction, error)
	Update(ctx context.Context, userID, id string, req *txndto.TransactionRequest) (*txndomain.Transaction, error)
	Delete(ctx context.Context, userID, id string) error

	Spending(ctx context.Context, userID string, start, end time.Time) (*txndto.SpendingSummary, error)
	// MonthlyTrends returns one bucket per calendar month, oldest first, ending with the current month
	MonthlyTrends(ctx context.Context, userID string, months int) (*txndto.MonthlyTrends, error)
	Stats(ctx context.Context, userID string) (*txndto.TransactionStats, error)
}

type transactionUsecase struct {
	transactions txnrepo.TransactionRepository
	categories   txnrepo.CategoryRepository
	now          func() time.Time
}

// NewTransactionUsecase creates a new transaction usecase
func NewTransactionUsecase(transactions txnrepo.TransactionRepository, categories txnrepo.CategoryRepository) TransactionUsecase {
	return &transactionUsecase{
		transactions: transactions,
		categories:   categories,
		now:          time.Now,
	}
}

func (u *transactionUsecase) Get(ctx context.Context, userID, id string) (*txndomain.Transaction, error) {
	txn, err := u.transactions.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, txndomain.ErrTransactionNotFound
	}
	return txn, nil
}

func (u *transactionUsecase) Create(ctx context.Context, userID string, req *txndto.TransactionRequest) (*txndomain.Transaction, error) {
	txn := &txndomain.Transaction{
		UserID: userID,
		Status: txndomain.StatusManual,
	}
	if err := u.apply(ctx, txn, req); err != nil {
		return nil, err
	}
	if err := u.transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("transaction_id", txn.ID).Str("user_id", userID).Msg("manual transaction created")
	return txn, nil
}

func (u *transactionUsecase) Update(ctx context.Context, userID, id string, req *txndto.TransactionRequest) (*txndomain.Transaction, error) {
	txn, err := u.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := u.apply(ctx, txn, req); err != nil {
		return nil, err
	}
	if err := u.transactions.Update(ctx, txn); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return txn, nil
}

func (u *transactionUsecase) Delete(ctx context.Context, userID, id string) error {
	deleted, err := u.transactions.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return txndomain.ErrTransactionNotFound
	}
	return nil
}

// apply copies the editable fields onto txn under the same defaults extraction uses
func (u *transactionUsecase) apply(ctx context.Context, txn *txndomain.Transaction, req *txndto.TransactionRequest) error {
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", txndomain.ErrInvalidTransaction)
	}
	if req.CategoryID != nil && *req.CategoryID != "" {
		ok, err := u.categories.Exists(ctx, *req.CategoryID)
		if err != nil {
			return err
		}
		if !ok {
			return txndomain.ErrCategoryNotFound
		}
	}

	candidate := txndomain.TransactionCandidate{
		Date:              u.now().UTC(),
		Amount:            req.Amount,
		Currency:          req.Currency,
		Vendor:            req.Vendor,
		Description:       req.Description,
		Recurring:         req.Recurring,
		RecurrencePattern: txndomain.RecurrencePattern(req.RecurrencePattern),
	}
	if !txn.Date.IsZero() {
		// An edit without a date keeps the one already booked
		candidate.Date = txn.Date.UTC()
	}
	if req.Date != nil {
		candidate.Date = req.Date.UTC()
	}
	candidate.Normalize()

	txn.Date = candidate.Date
	txn.Amount = candidate.Amount
	txn.Currency = candidate.Currency
	txn.Vendor = candidate.Vendor
	txn.Description = candidate.Description
	txn.Recurring = candidate.Recurring
	txn.RecurrencePattern = nil
	if candidate.Recurring {
		pattern := string(candidate.RecurrencePattern)
		txn.RecurrencePattern = &pattern
	}
	txn.CategoryID = nil
	if req.CategoryID != nil && *req.CategoryID != "" {
		id := *req.CategoryID
		txn.CategoryID = &id
	}
	return nil
}

func (u *transactionUsecase) Spending(ctx context.Context, userID string, start, end time.Time) (*txndto.SpendingSummary, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", txndomain.ErrInvalidTransaction)
	}

	txns, err := u.transactions.ListBetween(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	names, err := u.categoryNames(ctx)
	if err != nil {
		return nil, err
	}
	recurring, err := u.transactions.CountRecurring(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &txndto.SpendingSummary{
		TotalSpending:      decimal.Zero,
		SpendingByCategory: []txndto.CategorySpending{},
		RecurringCount:     recurring,
		PeriodStart:        start,
		PeriodEnd:          end,
	}

	byCategory := map[string]*txndto.CategorySpending{}
	for _, txn := range txns {
		summary.TotalSpending = summary.TotalSpending.Add(txn.Amount)

		key := ""
		if txn.CategoryID != nil {
			key = *txn.CategoryID
		}
		bucket, ok := byCategory[key]
		if !ok {
			bucket = &txndto.CategorySpending{CategoryName: uncategorized, Amount: decimal.Zero}
			if key != "" {
				id := key
				bucket.CategoryID = &id
				if name, found := names[key]; found {
					bucket.CategoryName = name
				}
			}
			byCategory[key] = bucket
		}
		bucket.Amount = bucket.Amount.Add(txn.Amount)
	}

	for _, bucket := range byCategory {
		summary.SpendingByCategory = append(summary.SpendingByCategory, *bucket)
	}
	sort.Slice(summary.SpendingByCategory, func(i, j int) bool {
		a, b := summary.SpendingByCategory[i], summary.SpendingByCategory[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.CategoryName < b.CategoryName
	})
	return summary, nil
}

func (u *transactionUsecase) MonthlyTrends(ctx context.Context, userID string, months int) (*txndto.MonthlyTrends, error) {
	if months <= 0 {
		months = defaultTrendRange
	}
	if months > maxTrendRange {
		months = maxTrendRange
	}

	now := u.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := current.AddDate(0, -(months - 1), 0)
	end := current.AddDate(0, 1, 0)

	txns, err := u.transactions.ListBetween(ctx, userID, first, end)
	if err != nil {
		return nil, err
	}

	trends := &txndto.MonthlyTrends{MonthlyTrends: make([]txndto.MonthlySpending, months)}
	for i := range trends.MonthlyTrends {
		month := first.AddDate(0, i, 0)
		trends.MonthlyTrends[i] = txndto.MonthlySpending{
			Month:    strings.ToUpper(month.Month().String()),
			Year:     month.Year(),
			Spending: decimal.Zero,
		}
	}
	for _, txn := range txns {
		d := txn.Date.UTC()
		i := (d.Year()-first.Year())*12 + int(d.Month()) - int(first.Month())
		if i < 0 || i >= months {
			continue
		}
		trends.MonthlyTrends[i].Spending = trends.MonthlyTrends[i].Spending.Add(txn.Amount)
	}
	return trends, nil
}

func (u *transactionUsecase) Stats(ctx context.Context, userID string) (*txndto.TransactionStats, error) {
	now := u.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// Weeks start on Monday
	weekday := (int(now.Weekday()) + 6) % 7
	startOfWeek := startOfDay.AddDate(0, 0, -weekday)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(time.Nanosecond)

	var (
		stats = &txndto.TransactionStats{}
		err   error
	)
	if stats.Today, err = u.Spending(ctx, userID, startOfDay, end); err != nil {
		return nil, err
	}
	if stats.ThisWeek, err = u.Spending(ctx, userID, startOfWeek, end); err != nil {
		return nil, err
	}
	if stats.ThisMonth, err = u.Spending(ctx, userID, startOfMonth, end); err != nil {
		return nil, err
	}
	if stats.YearlyTrend, err = u.MonthlyTrends(ctx, userID, defaultTrendRange); err != nil {
		return nil, err
	}
	return stats, nil
}

func (u *transactionUsecase) categoryNames(ctx context.Context) (map[string]string, error) {
	cats, err := u.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}
