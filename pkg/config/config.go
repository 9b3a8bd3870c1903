package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RetryConfig describes the backoff profile of one class of external call
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	// AI classifier
	AIProvider    string // "auto", "gemini", "ollama" or "none"
	GeminiAPIKey  string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	AITimeout     time.Duration

	// Sync pipeline
	SyncBatchSize int
	SyncSchedule  string // cron expression
	SyncWorkers   int
	SyncLookback  time.Duration
	MailTimeout   time.Duration

	MailRetry  RetryConfig
	AIRetry    RetryConfig
	ProbeRetry RetryConfig

	// Backup mirror
	BackupProvider string // "drive", "gcs" or "none"
	BackupBucket   string
	BackupSchedule string

	TokenEncryptionKey string
	CategoryRulesFile  string

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour), // 7 days

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentials:   getEnv("GOOGLE_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", ""),
		OllamaModel:   getEnv("OLLAMA_MODEL", ""),
		AITimeout:     getDuration("AI_TIMEOUT", 30*time.Second),

		SyncBatchSize: getInt("SYNC_BATCH_SIZE", 50),
		SyncSchedule:  getEnv("SYNC_SCHEDULE", "*/15 * * * *"),
		SyncWorkers:   getInt("SYNC_WORKERS", 4),
		SyncLookback:  getDuration("SYNC_LOOKBACK", 30*24*time.Hour),
		MailTimeout:   getDuration("MAIL_TIMEOUT", 30*time.Second),

		MailRetry:  getRetry("MAIL_RETRY", RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}),
		AIRetry:    getRetry("AI_RETRY", RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}),
		ProbeRetry: getRetry("PROBE_RETRY", RetryConfig{MaxAttempts: 10, InitialDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second}),

		BackupProvider: getEnv("BACKUP_PROVIDER", "none"),
		BackupBucket:   getEnv("BACKUP_BUCKET", ""),
		BackupSchedule: getEnv("BACKUP_SCHEDULE", "0 1 1 * *"),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		CategoryRulesFile:  getEnv("CATEGORY_RULES_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Validate reports settings the pipeline cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.SyncBatchSize <= 0 {
		errs = append(errs, errors.New("SYNC_BATCH_SIZE must be positive"))
	}
	if c.SyncWorkers <= 0 {
		errs = append(errs, errors.New("SYNC_WORKERS must be positive"))
	}
	if c.BackupProvider == "gcs" && c.BackupBucket == "" {
		errs = append(errs, errors.New("BACKUP_BUCKET is required for the gcs backup provider"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getRetry(prefix string, defaults RetryConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:  getInt(prefix+"_ATTEMPTS", defaults.MaxAttempts),
		InitialDelay: getDuration(prefix+"_INITIAL", defaults.InitialDelay),
		Multiplier:   getFloat(prefix+"_MULTIPLIER", defaults.Multiplier),
		MaxDelay:     getDuration(prefix+"_MAX", defaults.MaxDelay),
	}
}
