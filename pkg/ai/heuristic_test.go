package ai

import (
	"context"
	"testing"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractHeuristic(t *testing.T, doc Document) *txndomain.TransactionCandidate {
	t.Helper()
	h := &HeuristicExtractor{now: func() time.Time { return fixedNow }}
	result, err := h.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, txndomain.MethodHeuristic, result.Method)
	return result.Candidate
}

func TestHeuristic_NetflixSubscription(t *testing.T) {
	received := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := extractHeuristic(t, Document{
		Subject:    "Your Netflix payment confirmation",
		Body:       "Subscription renewal, Netflix, $15.99 monthly",
		ReceivedAt: received,
	})
	require.NotNil(t, c)

	assert.True(t, decimal.RequireFromString("15.99").Equal(c.Amount))
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, "Netflix", c.Vendor)
	assert.Equal(t, "Your Netflix payment confirmation", c.Description)
	assert.True(t, c.Recurring)
	assert.Equal(t, txndomain.RecurrenceMonthly, c.RecurrencePattern)
	assert.Equal(t, received, c.Date)
}

func TestHeuristic_KeywordGate(t *testing.T) {
	docs := []Document{
		{Subject: "Team lunch on Friday", Body: "See you at noon, bring $20 for pizza"},
		{Subject: "Weekly newsletter", Body: "Top stories this week"},
		{Subject: "", Body: ""},
	}
	for _, doc := range docs {
		assert.Nil(t, extractHeuristic(t, doc), "subject %q", doc.Subject)
	}

	alert := extractHeuristic(t, Document{Subject: "Card transaction alert", Body: "USD 12.00 at Blue Bottle"})
	assert.NotNil(t, alert, "matches the subject:transaction mail filter")
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		amount   string
		currency string
	}{
		{"total with symbol", "Your total: $42.50 for order #123", "42.50", "USD"},
		{"no markers", "Thanks for your order, it ships soon", "29.99", "USD"},
		{"symbol with space and thousands", "Charged $ 1,249.00 today", "1249.00", "USD"},
		{"euro symbol", "Betrag €12.30", "12.30", "EUR"},
		{"amount label no symbol", "Amount due: 88.10", "88.10", "USD"},
		{"total label no symbol", "Order total 19.95", "19.95", "USD"},
		{"iso prefix", "Paid GBP 7.25 to Tesco", "7.25", "GBP"},
		{"iso suffix", "You paid 64.00 EUR", "64.00", "EUR"},
		{"first match wins", "Refund $5.00, new total $50.00", "5.00", "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, currency := ExtractAmount(tt.text)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(amount), "got %s", amount)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestHeuristic_LabeledVendorAndDescription(t *testing.T) {
	c := extractHeuristic(t, Document{
		Subject: "Receipt #4411",
		Body:    "Merchant: Joe's Hardware. Thank you\nItem: Cordless drill\nTotal: $89.00",
	})
	require.NotNil(t, c)

	assert.Equal(t, "Joe's Hardware", c.Vendor)
	assert.Equal(t, "Cordless drill", c.Description)
	assert.True(t, decimal.RequireFromString("89.00").Equal(c.Amount))
	assert.False(t, c.Recurring)
	assert.Empty(t, c.RecurrencePattern)
}

func TestHeuristic_UnknownVendorAndPlaceholder(t *testing.T) {
	c := extractHeuristic(t, Document{Body: "Your invoice is attached."})
	require.NotNil(t, c)

	assert.Equal(t, txndomain.UnknownVendor, c.Vendor)
	assert.Equal(t, "Transaction from email", c.Description)
	assert.Equal(t, fixedNow.AddDate(0, 0, -1), c.Date)
	assert.True(t, DefaultFallbackAmount.Equal(c.Amount))
}

func TestHeuristic_RecurrenceMapping(t *testing.T) {
	tests := []struct {
		body string
		want txndomain.RecurrencePattern
	}{
		{"Your weekly payment of $3.00", txndomain.RecurrenceWeekly},
		{"Annual membership payment $99.00", txndomain.RecurrenceYearly},
		{"Quarterly subscription invoice $30.00", txndomain.RecurrenceQuarterly},
		{"Recurring charge, billed daily, $1.00", txndomain.RecurrenceDaily},
		{"Membership payment received $10.00", txndomain.RecurrenceMonthly},
		{"Monthly plan, billed weekly? payment $4.00", txndomain.RecurrenceMonthly},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			c := extractHeuristic(t, Document{Body: tt.body})
			require.NotNil(t, c)
			assert.True(t, c.Recurring)
			assert.Equal(t, tt.want, c.RecurrencePattern)
		})
	}
}
