package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"
	accountRepo "github.com/Retr0-XD/FInance-Monkey/internal/account/repository"
	accountUsecase "github.com/Retr0-XD/FInance-Monkey/internal/account/usecase"
	authdomain "github.com/Retr0-XD/FInance-Monkey/internal/auth/domain"
	authRepo "github.com/Retr0-XD/FInance-Monkey/internal/auth/repository"
	authUsecase "github.com/Retr0-XD/FInance-Monkey/internal/auth/usecase"
	backupdomain "github.com/Retr0-XD/FInance-Monkey/internal/backup/domain"
	backupUsecase "github.com/Retr0-XD/FInance-Monkey/internal/backup/usecase"
	emaildomain "github.com/Retr0-XD/FInance-Monkey/internal/email/domain"
	emailRepo "github.com/Retr0-XD/FInance-Monkey/internal/email/repository"
	"github.com/Retr0-XD/FInance-Monkey/internal/mailsync/scheduler"
	syncUsecase "github.com/Retr0-XD/FInance-Monkey/internal/mailsync/usecase"
	"github.com/Retr0-XD/FInance-Monkey/internal/notification"
	txndomain "github.com/Retr0-XD/FInance-Monkey/internal/transaction/domain"
	txnRepo "github.com/Retr0-XD/FInance-Monkey/internal/transaction/repository"
	"github.com/Retr0-XD/FInance-Monkey/pkg/ai"
	"github.com/Retr0-XD/FInance-Monkey/pkg/categorizer"
	"github.com/Retr0-XD/FInance-Monkey/pkg/config"
	"github.com/Retr0-XD/FInance-Monkey/pkg/database"
	"github.com/Retr0-XD/FInance-Monkey/pkg/drive"
	"github.com/Retr0-XD/FInance-Monkey/pkg/fcm"
	"github.com/Retr0-XD/FInance-Monkey/pkg/gcs"
	"github.com/Retr0-XD/FInance-Monkey/pkg/gmail"
	"github.com/Retr0-XD/FInance-Monkey/pkg/imap"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
	"github.com/Retr0-XD/FInance-Monkey/pkg/sealer"

	"gorm.io/gorm"
)

// App holds the wired services shared by every command
type App struct {
	Config *config.Config
	DB     *gorm.DB

	Auth         authUsecase.AuthUsecase
	Accounts     accountUsecase.AccountUsecase
	Sync         syncUsecase.SyncUsecase
	Backup       backupUsecase.BackupUsecase
	AccountRepo  accountRepo.AccountRepository
	Transactions txnRepo.TransactionRepository
	Categories   txnRepo.CategoryRepository

	backupReady bool
	closers     []func() error
}

// Models lists every table the service owns
func Models() []interface{} {
	return []interface{}{
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&accountdomain.EmailAccount{},
		&emaildomain.ProcessedEmail{},
		&txndomain.Category{},
		&txndomain.Transaction{},
	}
}

// Migrate creates the schema and seeds the built-in categories
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := txnRepo.NewCategoryRepository(db).Seed(ctx, txndomain.DefaultCategories()); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}

// NewApp connects to the database, migrates it and wires the services
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, db)
}

func newApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	log := logger.FromContext(ctx)
	app := &App{Config: cfg, DB: db}

	seal, err := sealer.New(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, err
	}
	if cfg.TokenEncryptionKey == "" {
		log.Warn().Msg("TOKEN_ENCRYPTION_KEY not set, mailbox credentials are stored unsealed")
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	app.AccountRepo = accountRepo.NewAccountRepository(db)
	ledger := emailRepo.NewProcessedEmailRepository(db)
	app.Transactions = txnRepo.NewTransactionRepository(db)
	app.Categories = txnRepo.NewCategoryRepository(db)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	sources := map[accountdomain.Provider]emaildomain.Source{
		accountdomain.ProviderGmail: gmailService,
		accountdomain.ProviderIMAP:  imap.NewSource(cfg.MailTimeout),
	}

	extractor, err := ai.NewExtractor(ctx, ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
		Retry:         retry.FromConfig("ai", cfg.AIRetry),
		Timeout:       cfg.AITimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	var rules []categorizer.Rule
	if cfg.CategoryRulesFile != "" {
		if rules, err = categorizer.LoadRules(cfg.CategoryRulesFile); err != nil {
			return nil, err
		}
	}

	var notifier syncUsecase.FailureNotifier
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize FCM client, failure alerts disabled")
		} else {
			notifier = notification.NewFailureAlerter(fcmTokenRepo, fcmClient)
		}
	}

	store, err := app.backupStore(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.BackupProvider).Msg("backup store unavailable, backups disabled")
		store = nil
	}

	app.Auth = authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	app.Sync = syncUsecase.NewSyncUsecase(syncUsecase.Deps{
		Accounts:    app.AccountRepo,
		Ledger:      ledger,
		Sink:        txnRepo.NewSink(db),
		Extractor:   extractor,
		Categorizer: categorizer.New(rules, app.Categories),
		Sources:     sources,
		Sealer:      seal,
		Notifier:    notifier,
	}, syncUsecase.Options{
		BatchSize:   cfg.SyncBatchSize,
		Workers:     cfg.SyncWorkers,
		Lookback:    cfg.SyncLookback,
		MailTimeout: cfg.MailTimeout,
		MailRetry:   retry.FromConfig("mail", cfg.MailRetry),
	})
	app.Accounts = accountUsecase.NewAccountUsecase(accountUsecase.Deps{
		Accounts:     app.AccountRepo,
		Ledger:       ledger,
		Transactions: app.Transactions,
		Sources:      sources,
		Sealer:       seal,
		ProbeRetry:   retry.FromConfig("probe", cfg.ProbeRetry),
		Watcher:      gmailService,
		PushTopic:    cfg.GooglePubSubTopic,
	})
	app.Backup = backupUsecase.NewBackupUsecase(store, app.Transactions)
	app.backupReady = store != nil
	return app, nil
}

// backupStore returns nil when backups are turned off
func (a *App) backupStore(ctx context.Context) (backupdomain.Store, error) {
	switch a.Config.BackupProvider {
	case "drive":
		store, err := drive.NewStore(ctx, a.Config.GoogleCredentials, drive.DefaultFolder)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		store, err := gcs.NewStore(ctx, a.Config.BackupBucket, "", a.Config.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown backup provider %q", a.Config.BackupProvider)
	}
}

// Serve runs the HTTP API, the cron schedules and the Pub/Sub listener until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(ctx)
	if err := sched.Add("sync", a.Config.SyncSchedule, func(ctx context.Context) error {
		_, err := a.Sync.RunCycle(ctx)
		return err
	}); err != nil {
		return err
	}
	if a.backupReady {
		if err := sched.Add("backup", a.Config.BackupSchedule, a.Backup.ExportAll); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	var wg sync.WaitGroup
	if a.Config.GoogleProjectID != "" {
		notifService, err := notification.NewService(ctx, a.Config.GoogleProjectID, a.Config.GooglePubSubTopic, a.Config.GoogleCredentials, a.AccountRepo,
			notification.SyncTriggerFunc(func(ctx context.Context, accountID string) error {
				_, err := a.Sync.SyncAccount(ctx, accountID)
				return err
			}))
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize notification service, push sync disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer notifService.Close()
				if err := notifService.Start(ctx); err != nil {
					log.Error().Err(err).Msg("notification service stopped")
				}
			}()
		}
	} else {
		log.Warn().Msg("GOOGLE_PROJECT_ID not configured, push sync disabled")
	}

	err := NewHandler(a).Start(ctx, ":"+a.Config.Port)
	cancel()
	wg.Wait()
	return err
}

// Close releases the database and any store clients
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
