package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	api "github.com/Retr0-XD/FInance-Monkey/cmd/api"
	syncUsecase "github.com/Retr0-XD/FInance-Monkey/internal/mailsync/usecase"
	"github.com/Retr0-XD/FInance-Monkey/pkg/config"
	"github.com/Retr0-XD/FInance-Monkey/pkg/database"
	"github.com/Retr0-XD/FInance-Monkey/pkg/logger"

	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel, logFormat string
	root := &cobra.Command{
		Use:           "finance-monkey",
		Short:         "Turns financial emails into categorized transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg = config.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			log := logger.New(cfg.LogLevel, cfg.LogFormat)
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
			return cfg.Validate()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(serveCmd(), syncCmd(), migrateCmd(), backupCmd())
	return root
}

// withApp wires the services, runs fn and releases them
func withApp(ctx context.Context, fn func(app *api.App) error) error {
	app, err := api.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("shutdown")
		}
	}()
	return fn(app)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sync and backup schedules and the Gmail push listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *api.App) error {
				return app.Serve(cmd.Context())
			})
		},
	}
}

func syncCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the batch reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *api.App) error {
				var reports []*syncUsecase.BatchReport
				var err error
				if accountID != "" {
					var report *syncUsecase.BatchReport
					report, err = app.Sync.SyncAccount(cmd.Context(), accountID)
					if report != nil {
						reports = append(reports, report)
					}
				} else {
					reports, err = app.Sync.RunCycle(cmd.Context())
				}
				if printErr := printJSON(cmd, reports); printErr != nil {
					return errors.Join(err, printErr)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "sync only this account id")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the built-in categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := api.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log := logger.FromContext(cmd.Context())
			log.Info().Msg("migration complete")
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export one user's transactions to the backup store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *api.App) error {
				result, err := app.Backup.Export(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to export")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
