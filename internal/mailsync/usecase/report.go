package usecase

import "time"

// ResultOutcome is the per-message result of one sync cycle
type ResultOutcome string

const (
	ResultSuccess    ResultOutcome = "success"
	ResultIgnored    ResultOutcome = "ignored"
	ResultFailed     ResultOutcome = "failed"
	ResultRetryLater ResultOutcome = "retry_later"
	// ResultDuplicate is a ledger hit, nothing was done
	ResultDuplicate ResultOutcome = "duplicate"
)

// Terminal reports whether the message has a ledger record and never needs another attempt
func (o ResultOutcome) Terminal() bool {
	return o != ResultRetryLater
}

// MessageResult describes what happened to one message
type MessageResult struct {
	MessageID     string        `json:"message_id"`
	Subject       string        `json:"subject,omitempty"`
	ReceivedAt    time.Time     `json:"received_at"`
	Outcome       ResultOutcome `json:"outcome"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Err           string        `json:"error,omitempty"`
}

// BatchReport summarises one account's sync cycle
type BatchReport struct {
	AccountID string          `json:"account_id"`
	Fetched   int             `json:"fetched"`
	Results   []MessageResult `json:"results"`
	// Watermark is the stored watermark after the cycle
	Watermark  *time.Time `json:"watermark,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Err        string     `json:"error,omitempty"`
}

// Count returns how many results have the given outcome
func (r *BatchReport) Count(outcome ResultOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// contiguousWatermark returns the received time of the last message in the
// longest prefix of terminal results. Results must be in received order.
// Nil means nothing can be advanced.
func contiguousWatermark(results []MessageResult) *time.Time {
	var mark *time.Time
	for i := range results {
		if !results[i].Outcome.Terminal() {
			break
		}
		t := results[i].ReceivedAt
		mark = &t
	}
	return mark
}
