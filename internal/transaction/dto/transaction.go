package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRequest creates a manual transaction or replaces the editable
// fields of an existing one. A missing date means now.
type TransactionRequest struct {
	Date              *time.Time      `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Vendor            string          `json:"vendor" binding:"required"`
	Description       string          `json:"description"`
	Recurring         bool            `json:"recurring"`
	RecurrencePattern string          `json:"recurrence_pattern"`
	CategoryID        *string         `json:"category_id"`
}

type CategorySpending struct {
	CategoryID   *string         `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Amount       decimal.Decimal `json:"amount"`
}

// SpendingSummary totals a user's transactions over [PeriodStart, PeriodEnd)
type SpendingSummary struct {
	TotalSpending      decimal.Decimal    `json:"total_spending"`
	SpendingByCategory []CategorySpending `json:"spending_by_category"`
	RecurringCount     int64              `json:"recurring_transactions_count"`
	PeriodStart        time.Time          `json:"period_start"`
	PeriodEnd          time.Time          `json:"period_end"`
}

type MonthlySpending struct {
	Month    string          `json:"month"`
	Year     int             `json:"year"`
	Spending decimal.Decimal `json:"spending"`
}

type MonthlyTrends struct {
	MonthlyTrends []MonthlySpending `json:"monthly_trends"`
}

// TransactionStats is the dashboard view
type TransactionStats struct {
	Today       *SpendingSummary `json:"today"`
	ThisWeek    *SpendingSummary `json:"this_week"`
	ThisMonth   *SpendingSummary `json:"this_month"`
	YearlyTrend *MonthlyTrends   `json:"yearly_trend"`
}
