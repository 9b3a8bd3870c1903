package domain

import "time"

// Outcome is the terminal result of processing one message
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeRetryLater Outcome = "retry_later"
)

// ProcessedEmail is the dedup ledger entry for one message of one account.
// It is written once and never updated.
type ProcessedEmail struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	AccountID    string    `json:"account_id" gorm:"uniqueIndex:idx_account_message;not null"`
	MessageID    string    `json:"message_id" gorm:"uniqueIndex:idx_account_message;not null"`
	Subject      string    `json:"subject"`
	ReceivedAt   time.Time `json:"received_at"`
	Outcome      Outcome   `json:"outcome" gorm:"size:16;index;not null"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"type:text"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// TableName specifies the table name for GORM
func (ProcessedEmail) TableName() string {
	return "processed_emails"
}
