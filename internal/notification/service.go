package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountrepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// SyncTrigger runs an immediate sync for one account
type SyncTrigger interface {
	SyncAccount(ctx context.Context, accountID string) error
}

// SyncTriggerFunc adapts a function to SyncTrigger
type SyncTriggerFunc func(ctx context.Context, accountID string) error

func (f SyncTriggerFunc) SyncAccount(ctx context.Context, accountID string) error {
	return f(ctx, accountID)
}

// Service listens for Gmail push notifications and syncs the mailbox they name
type Service struct {
	pubsubClient *pubsub.Client
	accounts     accountrepo.AccountRepository
	trigger      SyncTrigger
	topicName    string
	subName      string
	log          zerolog.Logger
}

// NewService connects to Pub/Sub. topicName may be a full resource name.
func NewService(ctx context.Context, projectID, topicName, credentialsFile string, accounts accountrepo.AccountRepository, trigger SyncTrigger) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	s := newService(accounts, trigger, topicName, logger.Component(logger.FromContext(ctx), "pubsub"))
	s.pubsubClient = client
	return s, nil
}

func newService(accounts accountrepo.AccountRepository, trigger SyncTrigger, topicName string, log zerolog.Logger) *Service {
	if parts := strings.Split(topicName, "/"); len(parts) > 1 {
		topicName = parts[len(parts)-1]
	}
	if topicName == "" {
		topicName = "gmail-updates"
	}
	return &Service{
		accounts:  accounts,
		trigger:   trigger,
		topicName: topicName,
		subName:   topicName + "-sub", // Convention: topic-sub
		log:       log,
	}
}

// Start ensures the subscription exists and blocks receiving until ctx is done
func (s *Service) Start(ctx context.Context) error {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check subscription %s: %w", s.subName, err)
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("check topic %s: %w", s.topicName, err)
		}
		if !topicExists {
			return fmt.Errorf("topic %s does not exist", s.topicName)
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("create subscription %s: %w", s.subName, err)
		}
		s.log.Info().Str("subscription", s.subName).Msg("created subscription")
	}

	s.log.Info().Str("subscription", s.subName).Msg("listening for gmail notifications")
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(logger.WithContext(ctx, s.log), msg.Data)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	return s.pubsubClient.Close()
}

// handleMessage syncs every account watching the address. Notifications that
// carry a history id no newer than the stored one are ignored.
func (s *Service) handleMessage(ctx context.Context, data []byte) {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		s.log.Warn().Err(err).Msg("malformed gmail notification")
		return
	}
	address := strings.ToLower(strings.TrimSpace(notification.EmailAddress))

	accounts, err := s.accounts.FindByAddress(ctx, address)
	if err != nil {
		s.log.Error().Err(err).Str("email", address).Msg("failed to look up accounts")
		return
	}
	if len(accounts) == 0 {
		s.log.Debug().Str("email", address).Msg("no account for notification")
		return
	}

	for _, account := range accounts {
		log := s.log.With().Str("account_id", account.ID).Uint64("history_id", notification.HistoryID).Logger()
		if account.Provider != accountdomain.ProviderGmail || !account.Status.Schedulable() {
			continue
		}

		newer, err := s.accounts.AdvanceHistoryID(ctx, account.ID, notification.HistoryID)
		if err != nil {
			log.Error().Err(err).Msg("failed to store history id")
			continue
		}
		if !newer {
			log.Debug().Msg("stale notification ignored")
			continue
		}

		err = s.trigger.SyncAccount(logger.WithContext(ctx, log), account.ID)
		switch {
		case errors.Is(err, accountdomain.ErrAccountBusy):
			log.Debug().Msg("sync already running")
		case err != nil:
			log.Warn().Err(err).Msg("push-triggered sync failed")
		}
	}
}
