package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountrepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailrepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/ai"
	"github.com/Retr0-XD/FInance-Monkey/pkg/categorizer"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
	"github.com/Retr0-XD/FInance-Monkey/pkg/sealer"

	"golang.org/x/oauth2"
)

// Options tunes the orchestrator
type Options struct {
	BatchSize   int
	Workers     int
	Lookback    time.Duration
	MailTimeout time.Duration
	MailRetry   retry.Policy
	// SyncLease is how long a syncing row may sit untouched before it is
	// considered abandoned by a dead process
	SyncLease time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Lookback <= 0 {
		o.Lookback = 30 * 24 * time.Hour
	}
	if o.MailTimeout <= 0 {
		o.MailTimeout = 30 * time.Second
	}
	if o.SyncLease <= 0 {
		o.SyncLease = time.Hour
	}
	if o.MailRetry.Name == "" {
		o.MailRetry.Name = "mail"
	}
	return o
}

// Deps are the collaborators of the orchestrator. Notifier, Sealer and
// Categorizer are optional.
type Deps struct {
	Accounts    accountrepo.AccountRepository
	Ledger      emailrepo.ProcessedEmailRepository
	Sink        txnrepo.Sink
	Extractor   ai.Extractor
	Categorizer Categorizer
	Sources     map[accountdomain.Provider]emaildomain.Source
	Sealer      CredentialSealer
	Notifier    FailureNotifier
}

// syncUsecase implements SyncUsecase interface
type syncUsecase struct {
	Deps
	opts Options
	now  func() time.Time

	inFlight sync.Map // account id -> struct{}
}

// NewSyncUsecase creates the sync orchestrator
func NewSyncUsecase(deps Deps, opts Options) SyncUsecase {
	if deps.Sealer == nil {
		deps.Sealer, _ = sealer.New("")
	}
	if deps.Categorizer == nil {
		deps.Categorizer = categorizer.New(nil, nil)
	}
	return &syncUsecase{
		Deps: deps,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

func (u *syncUsecase) SyncAccount(ctx context.Context, accountID string) (*BatchReport, error) {
	if _, busy := u.inFlight.LoadOrStore(accountID, struct{}{}); busy {
		return nil, accountdomain.ErrAccountBusy
	}
	defer u.inFlight.Delete(accountID)

	account, err := u.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	if account.Status == accountdomain.StatusRevoked {
		return nil, accountdomain.ErrAccountRevoked
	}

	log := logger.FromContext(ctx).With().Str("account_id", account.ID).Logger()
	ctx = logger.WithContext(ctx, log)
	// Bookkeeping writes must land even when the cycle is being abandoned
	persistCtx := context.WithoutCancel(ctx)

	report := &BatchReport{AccountID: account.ID, StartedAt: u.now(), Watermark: account.LastSyncAt}
	previous := account.Status

	started, err := u.Accounts.BeginSync(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("mark account syncing: %w", err)
	}
	if !started {
		// Revoked or deleted since it was loaded
		return nil, accountdomain.ErrAccountRevoked
	}

	emails, err := u.fetch(ctx, account)
	if err != nil {
		report.FinishedAt = u.now()
		report.Err = err.Error()
		if ctx.Err() != nil {
			// Shutdown, not a provider failure
			_ = u.Accounts.UpdateStatus(persistCtx, account.ID, previous, account.LastError)
			return report, ctx.Err()
		}
		u.fail(persistCtx, account, err)
		return report, err
	}
	report.Fetched = len(emails)
	log.Info().Int("fetched", len(emails)).Msg("batch fetched")

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.Before(emails[j].ReceivedAt)
	})

	for i, email := range emails {
		if ctx.Err() != nil {
			for _, rest := range emails[i:] {
				report.Results = append(report.Results, MessageResult{
					MessageID:  rest.ID,
					Subject:    rest.Subject,
					ReceivedAt: rest.ReceivedAt,
					Outcome:    ResultRetryLater,
					Err:        ctx.Err().Error(),
				})
			}
			break
		}
		report.Results = append(report.Results, u.processMessage(ctx, account, email))
	}

	if mark := contiguousWatermark(report.Results); mark != nil {
		advanced, err := u.Accounts.AdvanceWatermark(persistCtx, account.ID, mark.UTC())
		if err != nil {
			log.Error().Err(err).Msg("failed to advance watermark")
		} else if advanced {
			report.Watermark = mark
		}
	}

	if err := u.Accounts.UpdateStatus(persistCtx, account.ID, accountdomain.StatusConnected, ""); err != nil {
		log.Error().Err(err).Msg("failed to mark account connected")
	}
	report.FinishedAt = u.now()

	log.Info().
		Int("success", report.Count(ResultSuccess)).
		Int("ignored", report.Count(ResultIgnored)).
		Int("failed", report.Count(ResultFailed)).
		Int("duplicate", report.Count(ResultDuplicate)).
		Int("retry_later", report.Count(ResultRetryLater)).
		Msg("sync cycle finished")

	return report, ctx.Err()
}

func (u *syncUsecase) fail(ctx context.Context, account *accountdomain.EmailAccount, cause error) {
	log := logger.FromContext(ctx)
	log.Error().Err(cause).Bool("permanent", emaildomain.IsPermanent(cause)).Msg("sync cycle failed")

	if err := u.Accounts.UpdateStatus(ctx, account.ID, accountdomain.StatusFailed, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to mark account failed")
	}
	if u.Notifier != nil && account.Status != accountdomain.StatusFailed {
		u.Notifier.AccountFailed(ctx, account, cause)
	}
}

// fetch pulls one batch under the mail retry policy
func (u *syncUsecase) fetch(ctx context.Context, account *accountdomain.EmailAccount) ([]*emaildomain.Email, error) {
	source, ok := u.Sources[account.Provider]
	if !ok || source == nil {
		return nil, emaildomain.Unavailable(fmt.Errorf("no source for provider %q", account.Provider), true)
	}

	creds, err := u.credentials(ctx, account)
	if err != nil {
		return nil, emaildomain.Unavailable(err, true)
	}

	since := u.now().Add(-u.opts.Lookback)
	if account.LastSyncAt != nil {
		since = *account.LastSyncAt
	}
	req := emaildomain.FetchRequest{Since: since, Limit: u.opts.BatchSize}

	var emails []*emaildomain.Email
	err = retry.Do(ctx, u.opts.MailRetry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, u.opts.MailTimeout)
		defer cancel()

		batch, err := source.Fetch(callCtx, creds, req)
		switch {
		case err == nil:
			emails = batch
			return nil
		case emaildomain.IsPermanent(err):
			return retry.Permanent(err)
		case errors.Is(err, emaildomain.ErrSourceRateLimited):
			return fmt.Errorf("%w: %w", retry.ErrRateLimited, err)
		default:
			return err
		}
	})
	return emails, err
}

// credentials opens the stored tokens and wires refresh write-back
func (u *syncUsecase) credentials(ctx context.Context, account *accountdomain.EmailAccount) (emaildomain.Credentials, error) {
	access, err := u.Sealer.Open(account.AccessToken)
	if err != nil {
		return emaildomain.Credentials{}, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := u.Sealer.Open(account.RefreshToken)
	if err != nil {
		return emaildomain.Credentials{}, fmt.Errorf("open refresh token: %w", err)
	}

	persistCtx := context.WithoutCancel(ctx)
	return emaildomain.Credentials{
		EmailAddress: account.EmailAddress,
		AccessToken:  access,
		RefreshToken: refresh,
		ServerAddr:   account.ServerAddr,
		OnRefresh: func(token *oauth2.Token) error {
			sealedAccess, err := u.Sealer.Seal(token.AccessToken)
			if err != nil {
				return err
			}
			sealedRefresh, err := u.Sealer.Seal(token.RefreshToken)
			if err != nil {
				return err
			}
			return u.Accounts.UpdateTokens(persistCtx, account.ID, sealedAccess, sealedRefresh)
		},
	}, nil
}

// processMessage runs one message through dedup, extraction, categorization and the sink.
// It never returns an error: every failure becomes a result.
func (u *syncUsecase) processMessage(ctx context.Context, account *accountdomain.EmailAccount, email *emaildomain.Email) MessageResult {
	log := logger.FromContext(ctx).With().Str("message_id", email.ID).Logger()
	result := MessageResult{MessageID: email.ID, Subject: email.Subject, ReceivedAt: email.ReceivedAt}

	seen, err := u.Ledger.Exists(ctx, account.ID, email.ID)
	if err != nil {
		log.Error().Err(err).Msg("ledger lookup failed")
		return retryLater(result, err)
	}
	if seen {
		result.Outcome = ResultDuplicate
		return result
	}

	extracted, err := u.extract(ctx, email)
	if err != nil {
		if ctx.Err() != nil {
			return retryLater(result, err)
		}
		log.Warn().Err(err).Msg("extraction failed")
		return u.record(ctx, account, email, result, emaildomain.OutcomeFailed, err)
	}
	if !extracted.Found() {
		log.Debug().Str("method", string(extracted.Method)).Msg("no transaction in message")
		return u.record(ctx, account, email, result, emaildomain.OutcomeIgnored, nil)
	}

	categoryID := u.Categorizer.Categorize(ctx, extracted.Candidate)

	txn, err := u.Sink.Commit(ctx, txnrepo.CommitRequest{
		UserID:     account.UserID,
		AccountID:  account.ID,
		MessageID:  email.ID,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
		Candidate:  *extracted.Candidate,
		CategoryID: categoryID,
		Method:     extracted.Method,
	})
	switch {
	case err == nil:
		log.Info().
			Str("transaction_id", txn.ID).
			Str("vendor", txn.Vendor).
			Str("amount", txn.Amount.String()).
			Str("method", string(txn.Method)).
			Msg("transaction stored")
		result.Outcome = ResultSuccess
		result.TransactionID = txn.ID
		return result
	case errors.Is(err, txndomain.ErrAlreadyProcessed):
		result.Outcome = ResultDuplicate
		return result
	case ctx.Err() != nil:
		// Abandoned mid-commit, the transaction rolled back
		return retryLater(result, err)
	default:
		log.Error().Err(err).Msg("commit failed, recording message as failed")
		return u.record(context.WithoutCancel(ctx), account, email, result, emaildomain.OutcomeFailed, err)
	}
}

func (u *syncUsecase) extract(ctx context.Context, email *emaildomain.Email) (res *ai.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()
	return u.Extractor.Extract(ctx, ai.Document{
		Subject:    email.Subject,
		Body:       email.Body,
		ReceivedAt: email.ReceivedAt,
	})
}

// record writes a ledger entry without a transaction. If the ledger itself
// cannot be written the message is left for the next cycle.
func (u *syncUsecase) record(ctx context.Context, account *accountdomain.EmailAccount, email *emaildomain.Email, result MessageResult, outcome emaildomain.Outcome, cause error) MessageResult {
	entry := &emaildomain.ProcessedEmail{
		AccountID:  account.ID,
		MessageID:  email.ID,
		Subject:    email.Subject,
		ReceivedAt: email.ReceivedAt,
		Outcome:    outcome,
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
		result.Err = cause.Error()
	}

	inserted, err := u.Sink.Record(ctx, entry)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("message_id", email.ID).Msg("ledger write failed")
		return retryLater(result, err)
	}
	switch {
	case !inserted:
		result.Outcome = ResultDuplicate
	case outcome == emaildomain.OutcomeIgnored:
		result.Outcome = ResultIgnored
	default:
		result.Outcome = ResultFailed
	}
	return result
}

func retryLater(result MessageResult, err error) MessageResult {
	result.Outcome = ResultRetryLater
	result.Err = err.Error()
	return result
}

func (u *syncUsecase) RunCycle(ctx context.Context) ([]*BatchReport, error) {
	log := logger.FromContext(ctx)

	released, err := u.Accounts.ReleaseStale(ctx, u.now().Add(-u.opts.SyncLease))
	if err != nil {
		log.Error().Err(err).Msg("failed to release stale syncing accounts")
	} else if released > 0 {
		log.Warn().Int64("accounts", released).Msg("released accounts stuck in syncing")
	}

	accounts, err := u.Accounts.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedulable accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	jobs := make(chan string, len(accounts))
	for _, a := range accounts {
		jobs <- a.ID
	}
	close(jobs)

	workers := u.opts.Workers
	if workers > len(accounts) {
		workers = len(accounts)
	}

	var (
		mu      sync.Mutex
		reports = make([]*BatchReport, 0, len(accounts))
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					return
				}
				report, err := u.SyncAccount(ctx, id)
				if err != nil {
					if errors.Is(err, accountdomain.ErrAccountBusy) {
						log.Debug().Str("account_id", id).Msg("account already syncing, skipped")
						continue
					}
					log.Warn().Err(err).Str("account_id", id).Msg("account sync failed")
				}
				if report != nil {
					mu.Lock()
					reports = append(reports, report)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	log.Info().Int("accounts", len(accounts)).Int("reports", len(reports)).Msg("sync cycle complete")
	return reports, ctx.Err()
}
