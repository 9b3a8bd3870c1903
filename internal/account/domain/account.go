package domain

import (
	"errors"
	"time"
)

// Status is the sync state of a connected mailbox
type Status string

const (
	StatusPending   Status = "pending"
	StatusConnected Status = "connected"
	StatusSyncing   Status = "syncing"
	StatusFailed    Status = "failed"
	StatusRevoked   Status = "revoked"
)

// Schedulable reports whether the periodic cycle should pick the account up
func (s Status) Schedulable() bool {
	return s == StatusPending || s == StatusConnected || s == StatusFailed
}

// Provider names the mailbox backend
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

var (
	ErrAccountNotFound = errors.New("email account not found")
	ErrAccountBusy     = errors.New("email account is already syncing")
	ErrAccountRevoked  = errors.New("email account access has been revoked")
)

// EmailAccount is a mailbox connected by a user. Credentials are stored sealed.
type EmailAccount struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"index;uniqueIndex:idx_user_address;not null"`
	EmailAddress string     `json:"email_address" gorm:"uniqueIndex:idx_user_address;not null"`
	Provider     Provider   `json:"provider" gorm:"size:16;not null;default:gmail"`
	ServerAddr   string     `json:"server_addr,omitempty"` // IMAP host:port
	AccessToken  string     `json:"-" gorm:"type:text"`
	RefreshToken string     `json:"-" gorm:"type:text"`
	Status       Status     `json:"status" gorm:"size:16;index;not null"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"` // watermark
	LastError    string     `json:"last_error,omitempty" gorm:"type:text"`
	HistoryID    uint64     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ConnectivitySummary is the read-only view shown to the account owner
type ConnectivitySummary struct {
	AccountID        string     `json:"account_id"`
	EmailAddress     string     `json:"email_address"`
	Status           Status     `json:"status"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	ProcessedCount   int64      `json:"processed_count"`
	FailedCount      int64      `json:"failed_count"`
	TransactionCount int64      `json:"transaction_count"`
	Message          string     `json:"message"`
}
