package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountdto "github.com/Retr0-XD/FInance-Monkey/internal/account/dto"
	accountrepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailrepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	txnrepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
	"github.com/Retr0-XD/FInance-Monkey/pkg/sealer"
)

var ErrInvalidProvider = errors.New("unsupported mailbox provider")

// AccountUsecase manages connected mailboxes
type AccountUsecase interface {
	// Connect probes the credential and creates or refreshes the account.
	// A failed probe still stores the account, as pending with the error.
	Connect(ctx context.Context, userID string, req *accountdto.ConnectRequest) (*accountdomain.EmailAccount, error)
	Disconnect(ctx context.Context, userID, accountID string) error
	Revoke(ctx context.Context, userID, accountID string) error
	List(ctx context.Context, userID string) ([]accountdomain.EmailAccount, error)
	Get(ctx context.Context, userID, accountID string) (*accountdomain.EmailAccount, error)
	Status(ctx context.Context, userID, accountID string) (*accountdomain.ConnectivitySummary, error)
}

// Watcher registers Gmail push notifications for a mailbox
type Watcher interface {
	Watch(ctx context.Context, creds emaildomain.Credentials, topicName string) (uint64, error)
	Stop(ctx context.Context, creds emaildomain.Credentials) error
}

type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// Deps are the collaborators of the account usecase. Watcher is optional.
type Deps struct {
	Accounts     accountrepo.AccountRepository
	Ledger       emailrepo.ProcessedEmailRepository
	Transactions txnrepo.TransactionRepository
	Sources      map[accountdomain.Provider]emaildomain.Source
	Sealer       Sealer
	ProbeRetry   retry.Policy
	Watcher      Watcher
	PushTopic    string
}

// accountUsecase implements AccountUsecase interface
type accountUsecase struct {
	Deps
}

// NewAccountUsecase creates a new account usecase
func NewAccountUsecase(deps Deps) AccountUsecase {
	if deps.ProbeRetry.Name == "" {
		deps.ProbeRetry.Name = "probe"
	}
	if deps.Sealer == nil {
		deps.Sealer, _ = sealer.New("")
	}
	return &accountUsecase{Deps: deps}
}

func (u *accountUsecase) Connect(ctx context.Context, userID string, req *accountdto.ConnectRequest) (*accountdomain.EmailAccount, error) {
	provider := req.Provider
	if provider == "" {
		provider = accountdomain.ProviderGmail
	}
	source, ok := u.Sources[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProvider, provider)
	}

	address := strings.ToLower(strings.TrimSpace(req.EmailAddress))
	log := logger.FromContext(ctx).With().Str("user_id", userID).Str("email", address).Logger()

	creds := emaildomain.Credentials{
		EmailAddress: address,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ServerAddr:   req.ServerAddr,
	}
	probeErr := u.probe(ctx, source, creds)

	sealedAccess, err := u.Sealer.Seal(req.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := u.Sealer.Seal(req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	account, err := u.Accounts.FindByUserAndAddress(ctx, userID, address)
	if err != nil {
		return nil, err
	}
	isNew := account == nil
	if isNew {
		account = &accountdomain.EmailAccount{UserID: userID, EmailAddress: address}
	}
	account.Provider = provider
	account.ServerAddr = req.ServerAddr
	account.AccessToken = sealedAccess
	account.RefreshToken = sealedRefresh
	account.Status = accountdomain.StatusConnected
	account.LastError = ""
	if probeErr != nil {
		log.Warn().Err(probeErr).Msg("credential probe failed, account left pending")
		account.Status = accountdomain.StatusPending
		account.LastError = probeErr.Error()
	}

	if isNew {
		err = u.Accounts.Create(ctx, account)
	} else {
		err = u.Accounts.Update(ctx, account)
	}
	if err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}

	if probeErr == nil && provider == accountdomain.ProviderGmail && u.Watcher != nil && u.PushTopic != "" {
		historyID, err := u.Watcher.Watch(ctx, creds, u.PushTopic)
		if err != nil {
			log.Warn().Err(err).Msg("gmail watch failed, relying on scheduled sync")
		} else if _, err := u.Accounts.AdvanceHistoryID(ctx, account.ID, historyID); err != nil {
			log.Warn().Err(err).Msg("failed to store history id")
		} else {
			account.HistoryID = historyID
		}
	}

	log.Info().Str("account_id", account.ID).Str("status", string(account.Status)).Bool("new", isNew).Msg("mailbox connected")
	return account, nil
}

// probe uses the aggressive retry profile; auth failures stop it immediately
func (u *accountUsecase) probe(ctx context.Context, source emaildomain.Source, creds emaildomain.Credentials) error {
	return retry.Do(ctx, u.ProbeRetry, func(ctx context.Context) error {
		err := source.Probe(ctx, creds)
		switch {
		case err == nil:
			return nil
		case emaildomain.IsPermanent(err):
			return retry.Permanent(err)
		case errors.Is(err, emaildomain.ErrSourceRateLimited):
			return fmt.Errorf("%w: %w", retry.ErrRateLimited, err)
		default:
			return err
		}
	})
}

func (u *accountUsecase) Get(ctx context.Context, userID, accountID string) (*accountdomain.EmailAccount, error) {
	account, err := u.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// Someone else's account looks the same as a missing one
	if account == nil || account.UserID != userID {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

func (u *accountUsecase) List(ctx context.Context, userID string) ([]accountdomain.EmailAccount, error) {
	return u.Accounts.ListByUser(ctx, userID)
}

func (u *accountUsecase) Disconnect(ctx context.Context, userID, accountID string) error {
	account, err := u.Get(ctx, userID, accountID)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx).With().Str("account_id", account.ID).Logger()

	if account.Provider == accountdomain.ProviderGmail && u.Watcher != nil && u.PushTopic != "" {
		if creds, err := u.credentials(account); err == nil {
			if err := u.Watcher.Stop(ctx, creds); err != nil {
				log.Warn().Err(err).Msg("failed to stop gmail watch")
			}
		}
	}

	// Transactions outlive the mailbox they came from
	if err := u.Transactions.DetachAccount(ctx, account.ID); err != nil {
		return fmt.Errorf("detach transactions: %w", err)
	}
	if err := u.Ledger.DeleteByAccount(ctx, account.ID); err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	if err := u.Accounts.Delete(ctx, account.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	log.Info().Msg("mailbox disconnected")
	return nil
}

func (u *accountUsecase) Revoke(ctx context.Context, userID, accountID string) error {
	account, err := u.Get(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if account.Status == accountdomain.StatusSyncing {
		return accountdomain.ErrAccountBusy
	}

	account.AccessToken = ""
	account.RefreshToken = ""
	account.Status = accountdomain.StatusRevoked
	account.LastError = ""
	return u.Accounts.Update(ctx, account)
}

func (u *accountUsecase) Status(ctx context.Context, userID, accountID string) (*accountdomain.ConnectivitySummary, error) {
	account, err := u.Get(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	counts, err := u.Ledger.CountByOutcome(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	txnCount, err := u.Transactions.CountByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	summary := &accountdomain.ConnectivitySummary{
		AccountID:        account.ID,
		EmailAddress:     account.EmailAddress,
		Status:           account.Status,
		LastSyncAt:       account.LastSyncAt,
		LastError:        account.LastError,
		FailedCount:      counts[emaildomain.OutcomeFailed],
		TransactionCount: txnCount,
	}
	for _, n := range counts {
		summary.ProcessedCount += n
	}
	summary.Message = describe(account)
	return summary, nil
}

func (u *accountUsecase) credentials(account *accountdomain.EmailAccount) (emaildomain.Credentials, error) {
	access, err := u.Sealer.Open(account.AccessToken)
	if err != nil {
		return emaildomain.Credentials{}, err
	}
	refresh, err := u.Sealer.Open(account.RefreshToken)
	if err != nil {
		return emaildomain.Credentials{}, err
	}
	return emaildomain.Credentials{
		EmailAddress: account.EmailAddress,
		AccessToken:  access,
		RefreshToken: refresh,
		ServerAddr:   account.ServerAddr,
	}, nil
}

// describe renders the human readable connectivity line
func describe(account *accountdomain.EmailAccount) string {
	switch account.Status {
	case accountdomain.StatusConnected:
		if account.LastSyncAt == nil {
			return "Connected. Waiting for the first sync."
		}
		return fmt.Sprintf("Connected. Messages processed up to %s.", account.LastSyncAt.UTC().Format(time.RFC1123))
	case accountdomain.StatusSyncing:
		return "Sync in progress."
	case accountdomain.StatusFailed:
		return fmt.Sprintf("Last sync failed: %s. It will be retried on the next cycle; reconnect the mailbox if this keeps happening.", account.LastError)
	case accountdomain.StatusRevoked:
		return "Access revoked. Reconnect the mailbox to resume syncing."
	case accountdomain.StatusPending:
		if account.LastError != "" {
			return fmt.Sprintf("Credential check failed: %s.", account.LastError)
		}
		return "Waiting for the first sync."
	default:
		return string(account.Status)
	}
}
