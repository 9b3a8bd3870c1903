package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"

	"github.com/shopspring/decimal"
)

// NoTransactionSentinel is what the model answers when a message holds no transaction
const NoTransactionSentinel = "NO_TRANSACTION"

var ErrUnparsableResponse = errors.New("unparsable classifier response")

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseResponse reads a classifier answer. It returns (nil, nil) for the
// no-transaction sentinel and tolerates prose around the JSON object.
func ParseResponse(response string, now time.Time) (*txndomain.TransactionCandidate, error) {
	if strings.Contains(response, NoTransactionSentinel) {
		return nil, nil
	}

	raw, ok := FirstJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparsableResponse)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}

	c := &txndomain.TransactionCandidate{
		Date:        parseDate(firstOf(fields, "transactionDate", "date"), now),
		Amount:      parseAmount(fields["amount"]),
		Currency:    stringField(fields["currency"]),
		Vendor:      stringField(fields["vendor"]),
		Description: stringField(fields["description"]),
		Recurring:   parseBool(fields["recurring"]),
	}
	if c.Recurring {
		c.RecurrencePattern = txndomain.RecurrencePattern(stringField(firstOf(fields, "recurrencePattern", "recurrence_pattern")))
	}
	c.Normalize()
	return c, nil
}

// FirstJSONObject returns the first balanced {...} in s, skipping braces inside strings
func FirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

func firstOf(fields map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func parseDate(v interface{}, now time.Time) time.Time {
	s := stringField(v)
	if s == "" {
		return now
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

func parseAmount(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, t)
		if d, err := decimal.NewFromString(cleaned); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func parseBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	}
	return false
}
