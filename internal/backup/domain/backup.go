package domain

import (
	"context"
	"errors"
	"time"

	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
)

// TimestampLayout is the yyyyMMdd_HHmmss suffix of backup object names
const TimestampLayout = "20060102_150405"

var ErrNotConfigured = errors.New("backup store not configured")

// Store is a flat object store for backup files
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Latest returns the newest object whose name starts with prefix, or nil data when there is none
	Latest(ctx context.Context, prefix string) (name string, data []byte, err error)
}

// Snapshot is the JSON document written for one user
type Snapshot struct {
	UserID       string                  `json:"user_id"`
	ExportedAt   time.Time               `json:"exported_at"`
	Transactions []txndomain.Transaction `json:"transactions"`
}

// Prefix is the object name prefix shared by every backup of a user
func Prefix(userID string) string {
	return userID + "_transactions_"
}

// ObjectName names a backup taken at t
func ObjectName(userID string, t time.Time) string {
	return Prefix(userID) + t.UTC().Format(TimestampLayout) + ".json"
}
