package notification

import (
	"context"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	authrepo "github.com/Retr0-XD/FInance-Monkey/internal/auth/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/fcm"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
)

// PushSender delivers a notification and returns tokens that are no longer registered
type PushSender interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// FailureAlerter pushes a notification to the owner's devices when a mailbox stops syncing
type FailureAlerter struct {
	tokens authrepo.FCMTokenRepository
	sender PushSender
}

func NewFailureAlerter(tokens authrepo.FCMTokenRepository, sender PushSender) *FailureAlerter {
	return &FailureAlerter{tokens: tokens, sender: sender}
}

// AccountFailed is best effort. Errors are logged and never reach the sync cycle.
func (a *FailureAlerter) AccountFailed(ctx context.Context, account *accountdomain.EmailAccount, cause error) {
	log := logger.Component(logger.FromContext(ctx), "alerts").With().Str("account_id", account.ID).Logger()

	registered, err := a.tokens.GetTokensByUserID(ctx, account.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load device tokens")
		return
	}
	if len(registered) == 0 {
		return
	}
	tokens := make([]string, 0, len(registered))
	for _, t := range registered {
		tokens = append(tokens, t.Token)
	}

	body := "We could not sync " + account.EmailAddress + "."
	if cause != nil {
		body += " " + cause.Error()
	}
	stale, err := a.sender.SendToDevices(ctx, tokens, fcm.NotificationData{
		Title: "Mailbox sync failed",
		Body:  body,
		Data: map[string]string{
			"type":         "account_failed",
			"account_id":   account.ID,
			"email":        account.EmailAddress,
			"click_action": "/accounts/" + account.ID,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to send failure alert")
		return
	}
	if len(stale) > 0 {
		if err := a.tokens.DeleteTokens(ctx, stale); err != nil {
			log.Warn().Err(err).Msg("failed to remove stale device tokens")
		}
	}
	log.Info().Int("devices", len(tokens)-len(stale)).Msg("failure alert sent")
}
