package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountdto "github.com/Retr0-XD/FInance-Monkey/internal/account/dto"
	accountrepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailrepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/database"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
	"github.com/Retr0-XD/FInance-Monkey/pkg/sealer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type probeSource struct {
	errs  []error
	calls int
}

func (s *probeSource) Fetch(ctx context.Context, creds emaildomain.Credentials, req emaildomain.FetchRequest) ([]*emaildomain.Email, error) {
	return nil, nil
}

func (s *probeSource) Probe(ctx context.Context, creds emaildomain.Credentials) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type fakeWatcher struct {
	historyID uint64
	stopped   int
}

func (w *fakeWatcher) Watch(ctx context.Context, creds emaildomain.Credentials, topicName string) (uint64, error) {
	return w.historyID, nil
}

func (w *fakeWatcher) Stop(ctx context.Context, creds emaildomain.Credentials) error {
	w.stopped++
	return nil
}

type harness struct {
	db      *gorm.DB
	uc      AccountUsecase
	source  *probeSource
	watcher *fakeWatcher
	repo    accountrepo.AccountRepository
	ledger  emailrepo.ProcessedEmailRepository
	txns    txnrepo.TransactionRepository
}

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := database.NewTestDB(t, &accountdomain.EmailAccount{}, &emaildomain.ProcessedEmail{}, &txndomain.Transaction{})
	s, err := sealer.New(testKey)
	require.NoError(t, err)

	h := &harness{
		db:      db,
		source:  &probeSource{},
		watcher: &fakeWatcher{historyID: 4242},
		repo:    accountrepo.NewAccountRepository(db),
		ledger:  emailrepo.NewProcessedEmailRepository(db),
		txns:    txnrepo.NewTransactionRepository(db),
	}
	h.uc = NewAccountUsecase(Deps{
		Accounts:     h.repo,
		Ledger:       h.ledger,
		Transactions: h.txns,
		Sources:      map[accountdomain.Provider]emaildomain.Source{accountdomain.ProviderGmail: h.source},
		Sealer:       s,
		ProbeRetry:   retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Watcher:      h.watcher,
		PushTopic:    "projects/p/topics/mail",
	})
	return h
}

func connectReq() *accountdto.ConnectRequest {
	return &accountdto.ConnectRequest{
		EmailAddress: " Alice@Example.org ",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
}

func TestConnect_ProbeSucceeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", account.EmailAddress)
	assert.Equal(t, accountdomain.StatusConnected, account.Status)
	assert.Equal(t, accountdomain.ProviderGmail, account.Provider)
	assert.Equal(t, uint64(4242), account.HistoryID)

	stored, err := h.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "access-1", stored.AccessToken, "tokens are sealed at rest")
	assert.NotEqual(t, "refresh-1", stored.RefreshToken)
	assert.Equal(t, uint64(4242), stored.HistoryID)
}

func TestConnect_TransientProbeFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	h.source.errs = []error{emaildomain.Unavailable(errors.New("reset"), false)}

	account, err := h.uc.Connect(context.Background(), "u1", connectReq())
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.calls)
	assert.Equal(t, accountdomain.StatusConnected, account.Status)
}

func TestConnect_PermanentProbeFailureLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.source.errs = []error{emaildomain.Unavailable(errors.New("invalid_grant"), true)}

	account, err := h.uc.Connect(context.Background(), "u1", connectReq())
	require.NoError(t, err)
	assert.Equal(t, 1, h.source.calls)
	assert.Equal(t, accountdomain.StatusPending, account.Status)
	assert.Contains(t, account.LastError, "invalid_grant")
	assert.Zero(t, account.HistoryID, "no watch without a working credential")
}

func TestConnect_ReconnectUpdatesExistingAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)
	watermark := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = h.repo.AdvanceWatermark(ctx, first.ID, watermark)
	require.NoError(t, err)

	req := connectReq()
	req.AccessToken = "access-2"
	second, err := h.uc.Connect(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	accounts, err := h.uc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NotNil(t, accounts[0].LastSyncAt)
	assert.True(t, accounts[0].LastSyncAt.Equal(watermark), "reconnect keeps the watermark")
}

func TestConnect_UnknownProvider(t *testing.T) {
	h := newHarness(t)
	req := connectReq()
	req.Provider = accountdomain.ProviderIMAP

	_, err := h.uc.Connect(context.Background(), "u1", req)
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestGet_OtherUsersAccountIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)

	_, err = h.uc.Get(ctx, "u2", account.ID)
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)
	_, err = h.uc.Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)
}

func TestRevoke_WipesTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)

	require.NoError(t, h.uc.Revoke(ctx, "u1", account.ID))

	stored, err := h.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, accountdomain.StatusRevoked, stored.Status)
	assert.Empty(t, stored.AccessToken)
	assert.Empty(t, stored.RefreshToken)
}

func TestRevoke_BusyAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)
	require.NoError(t, h.repo.UpdateStatus(ctx, account.ID, accountdomain.StatusSyncing, ""))

	assert.ErrorIs(t, h.uc.Revoke(ctx, "u1", account.ID), accountdomain.ErrAccountBusy)
}

func TestDisconnect_KeepsTransactions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)

	sink := txnrepo.NewSink(h.db)
	_, err = sink.Commit(ctx, txnrepo.CommitRequest{
		UserID:     "u1",
		AccountID:  account.ID,
		MessageID:  "m1",
		ReceivedAt: time.Now().UTC(),
		Candidate:  txndomain.TransactionCandidate{Date: time.Now().UTC(), Amount: decimal.RequireFromString("9.99"), Vendor: "Netflix"},
		Method:     txndomain.MethodHeuristic,
	})
	require.NoError(t, err)

	require.NoError(t, h.uc.Disconnect(ctx, "u1", account.ID))
	assert.Equal(t, 1, h.watcher.stopped)

	gone, err := h.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	counts, err := h.ledger.CountByOutcome(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)

	txns, err := h.txns.ListAllByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Nil(t, txns[0].AccountID)
}

func TestStatus_Summary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account, err := h.uc.Connect(ctx, "u1", connectReq())
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, outcome := range []emaildomain.Outcome{emaildomain.OutcomeSuccess, emaildomain.OutcomeIgnored, emaildomain.OutcomeFailed} {
		_, err := h.ledger.Record(ctx, &emaildomain.ProcessedEmail{
			AccountID:   account.ID,
			MessageID:   string(rune('a' + i)),
			Outcome:     outcome,
			ReceivedAt:  now,
			ProcessedAt: now,
		})
		require.NoError(t, err)
	}

	summary, err := h.uc.Status(ctx, "u1", account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.ProcessedCount)
	assert.Equal(t, int64(1), summary.FailedCount)
	assert.Equal(t, int64(0), summary.TransactionCount)
	assert.Equal(t, "Connected. Waiting for the first sync.", summary.Message)
}

func TestDescribe(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		account accountdomain.EmailAccount
		want    string
	}{
		{"connected", accountdomain.EmailAccount{Status: accountdomain.StatusConnected, LastSyncAt: &at}, "Connected. Messages processed up to Fri, 01 Mar 2024 12:00:00 UTC."},
		{"syncing", accountdomain.EmailAccount{Status: accountdomain.StatusSyncing}, "Sync in progress."},
		{"revoked", accountdomain.EmailAccount{Status: accountdomain.StatusRevoked}, "Access revoked. Reconnect the mailbox to resume syncing."},
		{"pending", accountdomain.EmailAccount{Status: accountdomain.StatusPending}, "Waiting for the first sync."},
		{"pending with error", accountdomain.EmailAccount{Status: accountdomain.StatusPending, LastError: "bad password"}, "Credential check failed: bad password."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(&tt.account))
		})
	}
	failed := describe(&accountdomain.EmailAccount{Status: accountdomain.StatusFailed, LastError: "timeout"})
	assert.Contains(t, failed, "Last sync failed: timeout")
}
