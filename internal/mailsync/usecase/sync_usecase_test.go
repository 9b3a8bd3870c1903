package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountrepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailrepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/ai"
	"github.com/Retr0-XD/FInance-Monkey/pkg/categorizer"
	"github.com/Retr0-XD/FInance-Monkey/pkg/database"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	t1       = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2       = t1.Add(time.Hour)
	t3       = t2.Add(time.Hour)
)

// fakeSource serves a fixed mailbox, honouring Since and Limit like a provider would
type fakeSource struct {
	mu      sync.Mutex
	emails  []*emaildomain.Email
	errs    []error
	calls   int
	lastReq emaildomain.FetchRequest
	started chan struct{}
	release chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, creds emaildomain.Credentials, req emaildomain.FetchRequest) ([]*emaildomain.Email, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}

	out := make([]*emaildomain.Email, 0, len(f.emails))
	for _, e := range f.emails {
		if e.ReceivedAt.Before(req.Since) {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) Probe(ctx context.Context, creds emaildomain.Credentials) error { return nil }

// flakySink fails selected messages
type flakySink struct {
	txnrepo.Sink
	failCommit map[string]bool
	failRecord map[string]bool
}

func (s *flakySink) Commit(ctx context.Context, req txnrepo.CommitRequest) (*txndomain.Transaction, error) {
	if s.failCommit[req.MessageID] {
		return nil, fmt.Errorf("%w: disk full", txndomain.ErrPersistenceFailed)
	}
	return s.Sink.Commit(ctx, req)
}

func (s *flakySink) Record(ctx context.Context, record *emaildomain.ProcessedEmail) (bool, error) {
	if s.failRecord[record.MessageID] {
		return false, fmt.Errorf("%w: disk full", txndomain.ErrPersistenceFailed)
	}
	return s.Sink.Record(ctx, record)
}

type recordingNotifier struct {
	mu     sync.Mutex
	failed []string
}

func (n *recordingNotifier) AccountFailed(ctx context.Context, account *accountdomain.EmailAccount, cause error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, account.ID)
}

type blockingGenerator struct{}

func (blockingGenerator) Name() string { return "blocking" }

func (blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type harness struct {
	db       *gorm.DB
	accounts accountrepo.AccountRepository
	ledger   emailrepo.ProcessedEmailRepository
	txns     txnrepo.TransactionRepository
	sink     txnrepo.Sink
	source   *fakeSource
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := database.NewTestDB(t,
		&accountdomain.EmailAccount{},
		&emaildomain.ProcessedEmail{},
		&txndomain.Transaction{},
		&txndomain.Category{},
	)
	require.NoError(t, txnrepo.NewCategoryRepository(db).Seed(context.Background(), txndomain.DefaultCategories()))

	return &harness{
		db:       db,
		accounts: accountrepo.NewAccountRepository(db),
		ledger:   emailrepo.NewProcessedEmailRepository(db),
		txns:     txnrepo.NewTransactionRepository(db),
		sink:     txnrepo.NewSink(db),
		source:   &fakeSource{},
		notifier: &recordingNotifier{},
	}
}

func (h *harness) usecase(t *testing.T, extractor ai.Extractor, sink txnrepo.Sink) *syncUsecase {
	t.Helper()
	if extractor == nil {
		extractor = ai.NewFallbackExtractor(nil, ai.NewHeuristicExtractor())
	}
	if sink == nil {
		sink = h.sink
	}
	uc := NewSyncUsecase(Deps{
		Accounts:    h.accounts,
		Ledger:      h.ledger,
		Sink:        sink,
		Extractor:   extractor,
		Categorizer: categorizer.New(nil, txnrepo.NewCategoryRepository(h.db)),
		Sources:     map[accountdomain.Provider]emaildomain.Source{accountdomain.ProviderGmail: h.source},
		Notifier:    h.notifier,
	}, Options{
		BatchSize:   10,
		Workers:     2,
		Lookback:    30 * 24 * time.Hour,
		MailTimeout: time.Second,
		MailRetry:   retry.Policy{Name: "mail", MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 2 * time.Millisecond},
	}).(*syncUsecase)
	uc.now = func() time.Time { return fixedNow }
	return uc
}

func (h *harness) account(t *testing.T, address string, status accountdomain.Status) *accountdomain.EmailAccount {
	t.Helper()
	a := &accountdomain.EmailAccount{
		UserID:       "user-1",
		EmailAddress: address,
		Provider:     accountdomain.ProviderGmail,
		AccessToken:  "access",
		Status:       status,
	}
	require.NoError(t, h.accounts.Create(context.Background(), a))
	return a
}

func (h *harness) reload(t *testing.T, id string) *accountdomain.EmailAccount {
	t.Helper()
	a, err := h.accounts.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func netflixEmail(id string, at time.Time) *emaildomain.Email {
	return &emaildomain.Email{
		ID:         id,
		Subject:    "Your Netflix payment confirmation",
		Body:       "Subscription renewal, Netflix, $15.99 monthly",
		ReceivedAt: at,
	}
}

func TestSyncAccount_NetflixScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusPending)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	report, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Add(-30*24*time.Hour), h.source.lastReq.Since, "null watermark uses the lookback window")
	assert.Equal(t, 10, h.source.lastReq.Limit)

	require.Len(t, report.Results, 1)
	assert.Equal(t, ResultSuccess, report.Results[0].Outcome)

	txn, err := h.txns.FindByMessage(ctx, account.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.True(t, decimal.RequireFromString("15.99").Equal(txn.Amount))
	assert.Contains(t, txn.Vendor, "Netflix")
	assert.True(t, txn.Recurring)
	require.NotNil(t, txn.RecurrencePattern)
	assert.Equal(t, "MONTHLY", *txn.RecurrencePattern)
	require.NotNil(t, txn.CategoryID)
	assert.Equal(t, txndomain.CategoryEntertainment, *txn.CategoryID)
	assert.Equal(t, report.Results[0].TransactionID, txn.ID)

	record, err := h.ledger.Find(ctx, account.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, emaildomain.OutcomeSuccess, record.Outcome)

	stored := h.reload(t, account.ID)
	assert.Equal(t, accountdomain.StatusConnected, stored.Status)
	require.NotNil(t, stored.LastSyncAt)
	assert.True(t, t1.Equal(*stored.LastSyncAt))
}

func TestSyncAccount_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}
	uc := h.usecase(t, nil, nil)

	_, err := uc.SyncAccount(ctx, account.ID)
	require.NoError(t, err)
	report, err := uc.SyncAccount(ctx, account.ID)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, ResultDuplicate, report.Results[0].Outcome)

	count, err := h.txns.CountByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSyncAccount_NonFinancialMessageIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{{ID: "m1", Subject: "Lunch tomorrow?", Body: "Noon works.", ReceivedAt: t1}}

	report, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, ResultIgnored, report.Results[0].Outcome)

	record, err := h.ledger.Find(ctx, account.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, emaildomain.OutcomeIgnored, record.Outcome)

	count, err := h.txns.CountByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncAccount_AITimeoutFallsBackToHeuristic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	aiPolicy := retry.Policy{Name: "ai", MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond}
	extractor := ai.NewFallbackExtractor(
		ai.NewAIExtractor(blockingGenerator{}, aiPolicy, 5*time.Millisecond),
		ai.NewHeuristicExtractor(),
	)

	report, err := h.usecase(t, extractor, nil).SyncAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ResultSuccess, report.Results[0].Outcome)

	txn, err := h.txns.FindByMessage(ctx, account.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, txndomain.MethodHeuristic, txn.Method)
}

func TestSyncAccount_PersistenceFailureRecordedAsFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1), netflixEmail("m2", t2)}

	sink := &flakySink{Sink: h.sink, failCommit: map[string]bool{"m1": true}}
	report, err := h.usecase(t, nil, sink).SyncAccount(ctx, account.ID)
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, ResultFailed, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Err, "disk full")
	assert.Equal(t, ResultSuccess, report.Results[1].Outcome)

	record, err := h.ledger.Find(ctx, account.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, emaildomain.OutcomeFailed, record.Outcome)
	assert.Contains(t, record.ErrorMessage, "disk full")

	txn, err := h.txns.FindByMessage(ctx, account.ID, "m1")
	require.NoError(t, err)
	assert.Nil(t, txn, "failed commit leaves no transaction")

	// A failed record is terminal: the poison message is not retried
	stored := h.reload(t, account.ID)
	require.NotNil(t, stored.LastSyncAt)
	assert.True(t, t2.Equal(*stored.LastSyncAt))
	assert.Equal(t, accountdomain.StatusConnected, stored.Status)
}

func TestSyncAccount_WatermarkStopsAtRetryLaterAndNeverRegresses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1), netflixEmail("m2", t2), netflixEmail("m3", t3)}

	// m2 can neither be committed nor recorded
	broken := &flakySink{Sink: h.sink, failCommit: map[string]bool{"m2": true}, failRecord: map[string]bool{"m2": true}}
	report, err := h.usecase(t, nil, broken).SyncAccount(ctx, account.ID)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Equal(t, ResultSuccess, report.Results[0].Outcome)
	assert.Equal(t, ResultRetryLater, report.Results[1].Outcome)
	assert.Equal(t, ResultSuccess, report.Results[2].Outcome, "later messages still processed")
	require.NotNil(t, report.Watermark)
	assert.True(t, t1.Equal(*report.Watermark))

	first := h.reload(t, account.ID).LastSyncAt
	require.NotNil(t, first)
	assert.True(t, t1.Equal(*first))

	// Next cycle picks m2 up again; m1 and m3 are ledger hits
	report, err = h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.NoError(t, err)
	outcomes := map[string]ResultOutcome{}
	for _, r := range report.Results {
		outcomes[r.MessageID] = r.Outcome
	}
	assert.Equal(t, ResultDuplicate, outcomes["m1"])
	assert.Equal(t, ResultSuccess, outcomes["m2"])
	assert.Equal(t, ResultDuplicate, outcomes["m3"])

	second := h.reload(t, account.ID).LastSyncAt
	require.NotNil(t, second)
	assert.False(t, second.Before(*first))
	assert.True(t, t3.Equal(*second))

	count, err := h.txns.CountByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSyncAccount_FetchFailureMarksAccountFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.errs = []error{emaildomain.Unavailable(errors.New("token revoked"), true)}

	report, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, emaildomain.ErrSourceUnavailable)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Err)
	assert.Equal(t, 1, h.source.calls, "permanent failures are not retried")

	stored := h.reload(t, account.ID)
	assert.Equal(t, accountdomain.StatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "token revoked")
	assert.Nil(t, stored.LastSyncAt)
	assert.Equal(t, []string{account.ID}, h.notifier.failed)
}

func TestSyncAccount_TransientFetchFailureRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusFailed)
	h.source.errs = []error{
		emaildomain.Unavailable(errors.New("connection reset"), false),
		emaildomain.RateLimited(errors.New("slow down")),
	}
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	report, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, h.source.calls)
	assert.Equal(t, 1, report.Count(ResultSuccess))

	stored := h.reload(t, account.ID)
	assert.Equal(t, accountdomain.StatusConnected, stored.Status)
	assert.Empty(t, stored.LastError)
}

func TestSyncAccount_RetryExhaustionMarksFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusFailed)
	transient := emaildomain.Unavailable(errors.New("connection reset"), false)
	h.source.errs = []error{transient, transient, transient}

	_, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrMaxRetries)
	assert.Equal(t, 3, h.source.calls)
	assert.Equal(t, accountdomain.StatusFailed, h.reload(t, account.ID).Status)
	assert.Empty(t, h.notifier.failed, "no alert when the account was already failed")
}

func TestSyncAccount_Guards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	uc := h.usecase(t, nil, nil)

	_, err := uc.SyncAccount(ctx, "missing")
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)

	revoked := h.account(t, "r@example.org", accountdomain.StatusRevoked)
	_, err = uc.SyncAccount(ctx, revoked.ID)
	assert.ErrorIs(t, err, accountdomain.ErrAccountRevoked)
}

// revokingAccounts revokes the account right after it is loaded, as a
// concurrent Revoke request would
type revokingAccounts struct {
	accountrepo.AccountRepository
	db *gorm.DB
}

func (r revokingAccounts) FindByID(ctx context.Context, id string) (*accountdomain.EmailAccount, error) {
	account, err := r.AccountRepository.FindByID(ctx, id)
	if err != nil || account == nil {
		return account, err
	}
	err = r.db.Model(&accountdomain.EmailAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": accountdomain.StatusRevoked, "access_token": ""}).Error
	return account, err
}

func TestSyncAccount_RevokeAfterLoadWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}
	h.accounts = revokingAccounts{AccountRepository: h.accounts, db: h.db}

	_, err := h.usecase(t, nil, nil).SyncAccount(ctx, account.ID)
	assert.ErrorIs(t, err, accountdomain.ErrAccountRevoked)

	assert.Equal(t, accountdomain.StatusRevoked, h.reload(t, account.ID).Status)
	assert.Zero(t, h.source.calls, "revoked mailbox is never fetched")
	count, err := h.txns.CountByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncAccount_InFlightGuard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.started = make(chan struct{})
	h.source.release = make(chan struct{})
	uc := h.usecase(t, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := uc.SyncAccount(ctx, account.ID)
		done <- err
	}()

	<-h.source.started
	_, err := uc.SyncAccount(ctx, account.ID)
	assert.ErrorIs(t, err, accountdomain.ErrAccountBusy)

	close(h.source.release)
	require.NoError(t, <-done)
}

func TestRunCycle_SyncsSchedulableAccounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.account(t, "a@example.org", accountdomain.StatusConnected)
	b := h.account(t, "b@example.org", accountdomain.StatusPending)
	h.account(t, "c@example.org", accountdomain.StatusRevoked)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	reports, err := h.usecase(t, nil, nil).RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	ids := []string{reports[0].AccountID, reports[1].AccountID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	for _, id := range ids {
		count, err := h.txns.CountByAccount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "ledger keys are per account")
	}
}

// cancellingExtractor simulates shutdown arriving between extraction and commit
type cancellingExtractor struct {
	ai.Extractor
	cancel context.CancelFunc
}

func (e cancellingExtractor) Extract(ctx context.Context, doc ai.Document) (*ai.Result, error) {
	res, err := e.Extractor.Extract(ctx, doc)
	e.cancel()
	return res, err
}

func TestSyncAccount_CancelledCommitIsRetriedLater(t *testing.T) {
	h := newHarness(t)
	account := h.account(t, "a@example.org", accountdomain.StatusConnected)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractor := cancellingExtractor{Extractor: ai.NewFallbackExtractor(nil, ai.NewHeuristicExtractor()), cancel: cancel}

	report, err := h.usecase(t, extractor, nil).SyncAccount(ctx, account.ID)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ResultRetryLater, report.Results[0].Outcome)

	record, err := h.ledger.Find(context.Background(), account.ID, "m1")
	require.NoError(t, err)
	assert.Nil(t, record, "abandoned message has no ledger entry")
	assert.Nil(t, h.reload(t, account.ID).LastSyncAt)
}

func TestRunCycle_ReleasesStaleSyncingAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	stuck := h.account(t, "a@example.org", accountdomain.StatusSyncing)
	require.NoError(t, h.db.Model(&accountdomain.EmailAccount{}).
		Where("id = ?", stuck.ID).
		Update("updated_at", fixedNow.Add(-2*time.Hour)).Error)
	h.source.emails = []*emaildomain.Email{netflixEmail("m1", t1)}

	reports, err := h.usecase(t, nil, nil).RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, stuck.ID, reports[0].AccountID)
	assert.Equal(t, accountdomain.StatusConnected, h.reload(t, stuck.ID).Status)
}

func TestContiguousWatermark(t *testing.T) {
	assert.Nil(t, contiguousWatermark(nil))
	assert.Nil(t, contiguousWatermark([]MessageResult{{Outcome: ResultRetryLater, ReceivedAt: t1}}))

	mark := contiguousWatermark([]MessageResult{
		{Outcome: ResultSuccess, ReceivedAt: t1},
		{Outcome: ResultFailed, ReceivedAt: t2},
		{Outcome: ResultRetryLater, ReceivedAt: t3},
		{Outcome: ResultSuccess, ReceivedAt: t3.Add(time.Hour)},
	})
	require.NotNil(t, mark)
	assert.True(t, t2.Equal(*mark))
}
