package ai

import (
	"context"
	"regexp"
	"strings"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"github.com/shopspring/decimal"
)

// DefaultFallbackAmount is used when a transaction is detected but no amount can be read
var DefaultFallbackAmount = decimal.RequireFromString("29.99")

const descriptionPlaceholder = "Transaction from email"

var transactionKeywords = []string{
	"payment", "purchase", "receipt", "invoice", "order",
	"charge", "confirmation", "paid", "amount", "transaction",
}

var recurringKeywords = []string{
	"subscription", "recurring", "monthly", "yearly", "weekly",
	"quarterly", "annual", "membership",
}

// Checked in order, first hit wins
var recurrenceKeywords = []struct {
	keywords []string
	pattern  txndomain.RecurrencePattern
}{
	{[]string{"monthly"}, txndomain.RecurrenceMonthly},
	{[]string{"weekly"}, txndomain.RecurrenceWeekly},
	{[]string{"yearly", "annual"}, txndomain.RecurrenceYearly},
	{[]string{"quarterly"}, txndomain.RecurrenceQuarterly},
	{[]string{"daily"}, txndomain.RecurrenceDaily},
}

var knownMerchants = []string{
	"Amazon", "Walmart", "Target", "Best Buy", "Costco", "Netflix", "Spotify",
	"Uber", "Lyft", "DoorDash", "Grubhub", "Instacart", "Apple", "Google",
	"Microsoft", "Steam", "PlayStation", "Xbox", "Adobe", "Zoom", "Slack",
}

const amountNumber = `(\d{1,3}(?:,\d{3})+\.\d{2}|\d+\.\d{2})`

const isoCodes = `USD|EUR|GBP|CAD|AUD|INR|JPY|CHF`

type amountPattern struct {
	re       *regexp.Regexp
	number   int // capture group holding the number
	currency int // capture group naming the currency, 0 when the pattern has none
}

// amountPatterns are tried in order, first match wins
var amountPatterns = []amountPattern{
	{regexp.MustCompile(`([$€£₹])\s*` + amountNumber), 2, 1},
	{regexp.MustCompile(`(?i)\bamount\b[^\d\n]{0,30}?` + amountNumber), 1, 0},
	{regexp.MustCompile(`(?i)\btotal\b[^\d\n]{0,30}?` + amountNumber), 1, 0},
	{regexp.MustCompile(`\b(` + isoCodes + `)\s*` + amountNumber), 2, 1},
	{regexp.MustCompile(amountNumber + `\s*(` + isoCodes + `)\b`), 1, 2},
}

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₹": "INR",
}

var vendorLabels = labelPatterns("from", "merchant", "vendor", "store", "seller", "company")
var descriptionLabels = labelPatterns("description", "item", "product", "service", "regarding", "for")

func labelPatterns(labels ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(labels))
	for _, l := range labels {
		out = append(out, regexp.MustCompile(`(?i)\b`+l+`:[ \t]*([^\r\n<]+)`))
	}
	return out
}

// HeuristicExtractor runs fixed pattern rules. It never fails.
type HeuristicExtractor struct {
	now func() time.Time
}

// NewHeuristicExtractor creates the deterministic extractor
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{now: time.Now}
}

func (h *HeuristicExtractor) Extract(_ context.Context, doc Document) (*Result, error) {
	return &Result{Candidate: h.extract(doc), Method: txndomain.MethodHeuristic}, nil
}

func (h *HeuristicExtractor) extract(doc Document) *txndomain.TransactionCandidate {
	text := doc.Text()
	lower := strings.ToLower(text)

	if !containsAny(lower, transactionKeywords) {
		return nil
	}

	amount, currency := ExtractAmount(text)

	date := doc.ReceivedAt
	if date.IsZero() {
		date = h.now().AddDate(0, 0, -1)
	}

	c := &txndomain.TransactionCandidate{
		Date:        date,
		Amount:      amount,
		Currency:    currency,
		Vendor:      extractVendor(text),
		Description: extractDescription(doc),
		Recurring:   containsAny(lower, recurringKeywords),
	}
	if c.Recurring {
		c.RecurrencePattern = inferRecurrence(lower)
	}
	c.Normalize()
	return c
}

// ExtractAmount applies the ordered currency patterns. First match wins.
func ExtractAmount(text string) (decimal.Decimal, string) {
	for _, p := range amountPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(m[p.number], ",", ""))
		if err != nil {
			continue
		}
		marker := ""
		if p.currency > 0 {
			marker = m[p.currency]
		}
		return d, currencyFor(marker)
	}
	return DefaultFallbackAmount, txndomain.DefaultCurrency
}

func currencyFor(marker string) string {
	if code, ok := currencySymbols[marker]; ok {
		return code
	}
	if len(marker) == 3 {
		return strings.ToUpper(marker)
	}
	return txndomain.DefaultCurrency
}

func extractVendor(text string) string {
	if v := labeledValue(text, vendorLabels, 60, true); v != "" {
		return v
	}
	for _, merchant := range knownMerchants {
		if strings.Contains(text, merchant) {
			return merchant
		}
	}
	return txndomain.UnknownVendor
}

func extractDescription(doc Document) string {
	if v := labeledValue(doc.Body, descriptionLabels, 255, false); v != "" {
		return v
	}
	if s := strings.TrimSpace(doc.Subject); s != "" {
		return s
	}
	return descriptionPlaceholder
}

// labeledValue returns the rest of the line after the first label found, in label order.
// With firstSentence the value also ends at the first sentence break.
func labeledValue(text string, labels []*regexp.Regexp, maxLen int, firstSentence bool) string {
	for _, re := range labels {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[1])
		if firstSentence {
			if i := strings.Index(v, ". "); i > 0 {
				v = v[:i]
			}
		}
		if len(v) > maxLen {
			v = v[:maxLen]
		}
		v = strings.TrimRight(strings.TrimSpace(v), ".,;")
		if v != "" {
			return v
		}
	}
	return ""
}

func inferRecurrence(lower string) txndomain.RecurrencePattern {
	for _, rk := range recurrenceKeywords {
		if containsAny(lower, rk.keywords) {
			return rk.pattern
		}
	}
	return txndomain.RecurrenceMonthly
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
