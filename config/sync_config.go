package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Sync engine
	Sync SyncConfig

	// CORS
	AllowedOrigins []string
}

// SyncConfig holds every sync engine tunable in one place instead of
// scattering defaults across call sites.
type SyncConfig struct {
	// PageSize is the number of message ids requested per listing page.
	PageSize int
	// BatchSize is the number of full messages fetched concurrently per batch.
	BatchSize int
	// BatchDelay is the pause inserted between successive fetch batches.
	BatchDelay time.Duration

	// MaxPages caps a synchronous full sync.
	MaxPages int
	// MaxBackgroundPages caps a sync continued in the background.
	MaxBackgroundPages int
	// DeltaMaxMessages caps a single-pass delta sync.
	DeltaMaxMessages int

	// MaxRetries is the retry budget per upstream call (attempts = MaxRetries+1).
	MaxRetries int
	// RetryBaseDelay is the base for exponential backoff between retries.
	RetryBaseDelay time.Duration

	// ChunkSize is the number of messages persisted per transaction.
	ChunkSize int
	// TxWaitTimeout bounds transaction acquisition.
	TxWaitTimeout time.Duration
	// TxExecTimeout bounds transaction execution; exceeding it fails the chunk.
	TxExecTimeout time.Duration

	// PushTopic is the Pub/Sub topic push watches register against.
	// Empty disables watch registration.
	PushTopic string
}

// DefaultSyncConfig returns the engine defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PageSize:           50,
		BatchSize:          10,
		BatchDelay:         100 * time.Millisecond,
		MaxPages:           5,
		MaxBackgroundPages: 20,
		DeltaMaxMessages:   50,
		MaxRetries:         3,
		RetryBaseDelay:     time.Second,
		ChunkSize:          10,
		TxWaitTimeout:      10 * time.Second,
		TxExecTimeout:      30 * time.Second,
	}
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailsync"),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		Sync: SyncConfig{
			PageSize:           getEnvInt("SYNC_PAGE_SIZE", 50),
			BatchSize:          getEnvInt("SYNC_BATCH_SIZE", 10),
			BatchDelay:         getEnvDuration("SYNC_BATCH_DELAY", 100*time.Millisecond),
			MaxPages:           getEnvInt("SYNC_MAX_PAGES", 5),
			MaxBackgroundPages: getEnvInt("SYNC_MAX_BACKGROUND_PAGES", 20),
			DeltaMaxMessages:   getEnvInt("SYNC_DELTA_MAX_MESSAGES", 50),
			MaxRetries:         getEnvInt("SYNC_MAX_RETRIES", 3),
			RetryBaseDelay:     getEnvDuration("SYNC_RETRY_BASE_DELAY", time.Second),
			ChunkSize:          getEnvInt("SYNC_CHUNK_SIZE", 10),
			TxWaitTimeout:      getEnvDuration("SYNC_TX_WAIT_TIMEOUT", 10*time.Second),
			TxExecTimeout:      getEnvDuration("SYNC_TX_EXEC_TIMEOUT", 30*time.Second),
			PushTopic:          getEnv("SYNC_PUSH_TOPIC", ""),
		},

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
