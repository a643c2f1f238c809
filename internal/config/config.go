package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
	BackendLocal  = "local"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Lock     LockConfig
	Engine   EngineConfig
	WhatsApp WhatsAppConfig
	Sheets   SheetsConfig
	Alerts   AlertsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig holds logger options.
type LogConfig struct {
	Level string
}

// StorageConfig selects the stock repository implementation.
type StorageConfig struct {
	Backend string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI             string
	DBName          string
	StockCollection string
}

// RedisConfig holds the shared Redis connection used by cache and locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig controls the summary cache in front of read aggregations.
type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

// LockConfig controls per-record serialization.
type LockConfig struct {
	Backend string
	TTL     time.Duration
}

// EngineConfig tunes the allocation engine.
type EngineConfig struct {
	MaxRetries int
}

// WhatsAppConfig contains credentials for stock alerts sent through the Meta
// WhatsApp Cloud API. Alerts are disabled when AccessToken is empty.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	APIVersion    string
	AlertTo       string
}

// Enabled reports whether alerts can be delivered.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && c.AlertTo != ""
}

// SheetsConfig contains configuration for the movement mirror. The mirror is
// disabled when CredentialsPath is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the mirror is configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// AlertsConfig holds scheduler-related settings.
type AlertsConfig struct {
	CronSchedule string
	Timezone     string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	redisDB, err := getenvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getenvInt("STOCK_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getenvDuration("SUMMARY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getenvDuration("STOCK_LOCK_TTL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getenvWithDefault("STOCK_STORE", StoreMongo)),
		},
		MongoDB: MongoDBConfig{
			URI:             getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:          getenvWithDefault("MONGODB_DB_NAME", "erp"),
			StockCollection: getenvWithDefault("MONGODB_STOCK_COLLECTION", "stocks"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getenvWithDefault("SUMMARY_CACHE_BACKEND", BackendMemory)),
			TTL:     cacheTTL,
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getenvWithDefault("STOCK_LOCK_BACKEND", BackendLocal)),
			TTL:     lockTTL,
		},
		Engine: EngineConfig{
			MaxRetries: maxRetries,
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			AlertTo:       os.Getenv("WHATSAPP_ALERT_TO"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Alerts: AlertsConfig{
			CronSchedule: getenvWithDefault("STOCK_ALERT_CRON", "0 7 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "Africa/Conakry"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Backend {
	case StoreMongo:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STOCK_STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendNone:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR must be provided when SUMMARY_CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported SUMMARY_CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("SUMMARY_CACHE_TTL must be positive")
	}

	switch c.Lock.Backend {
	case BackendLocal:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR must be provided when STOCK_LOCK_BACKEND=redis")
		}
		if c.Lock.TTL <= 0 {
			return errors.New("STOCK_LOCK_TTL must be positive")
		}
	default:
		return fmt.Errorf("unsupported STOCK_LOCK_BACKEND %q", c.Lock.Backend)
	}

	if c.Engine.MaxRetries < 1 {
		return errors.New("STOCK_MAX_RETRIES must be at least 1")
	}

	if c.WhatsApp.AccessToken != "" {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.AlertTo == "":
			return errors.New("WHATSAPP_ALERT_TO must be provided")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Sheets.CredentialsPath != "" && c.Sheets.SpreadsheetID == "" {
		return errors.New("GOOGLE_SHEET_DATABASE_ID must be provided")
	}

	if c.Alerts.CronSchedule == "" {
		return errors.New("STOCK_ALERT_CRON must be provided")
	}

	if c.Alerts.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
