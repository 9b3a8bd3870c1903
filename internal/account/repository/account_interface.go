package repository

import (
	"context"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
)

// AccountRepository defines the interface for connected mailbox persistence
type AccountRepository interface {
	Create(ctx context.Context, account *accountdomain.EmailAccount) error
	Update(ctx context.Context, account *accountdomain.EmailAccount) error
	Delete(ctx context.Context, id string) error
	// FindByID returns nil when the account does not exist
	FindByID(ctx context.Context, id string) (*accountdomain.EmailAccount, error)
	FindByUserAndAddress(ctx context.Context, userID, emailAddress string) (*accountdomain.EmailAccount, error)
	FindByAddress(ctx context.Context, emailAddress string) ([]accountdomain.EmailAccount, error)
	ListByUser(ctx context.Context, userID string) ([]accountdomain.EmailAccount, error)
	// ListSchedulable returns accounts the periodic cycle should sync
	ListSchedulable(ctx context.Context) ([]accountdomain.EmailAccount, error)
	// ReleaseStale moves accounts stuck in syncing since before the cutoff back to connected
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	// BeginSync moves the account to syncing unless it has been revoked. Returns false when nothing moved.
	BeginSync(ctx context.Context, id string) (bool, error)
	// UpdateStatus never touches a revoked account
	UpdateStatus(ctx context.Context, id string, status accountdomain.Status, lastError string) error
	// AdvanceWatermark moves last_sync_at forward only. Returns false when the stored value was newer.
	AdvanceWatermark(ctx context.Context, id string, watermark time.Time) (bool, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) error
	// AdvanceHistoryID stores a Gmail push history id if it is newer. Returns false for stale ids.
	AdvanceHistoryID(ctx context.Context, id string, historyID uint64) (bool, error)
}
