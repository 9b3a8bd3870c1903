package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Retr0-XD/FInance-Monkey/pkg/config"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection opens the database named by DATABASE_URL. URLs starting with
// "sqlite:" open a local SQLite file, everything else goes to Postgres.
func NewConnection(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if path, ok := strings.CutPrefix(cfg.DatabaseURL, "sqlite:"); ok {
		return NewSQLiteConnection(path)
	}
	return NewPostgresConnection(ctx, cfg)
}

// NewSQLiteConnection opens a SQLite database. Use ":memory:" style DSNs in tests.
func NewSQLiteConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewPostgresConnection opens the database and waits for it with the probe
// backoff profile, so the service can start while the database is still booting.
func NewPostgresConnection(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	var db *gorm.DB
	policy := retry.FromConfig("database", cfg.ProbeRetry)
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		conn, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		db = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}
