package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultBaseURL is the production Wheelhouse API endpoint.
const DefaultBaseURL = "https://api.usewheelhouse.com/wheelhouse_pro_api"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	APIKey      string
	UserAPIKey  string
	BaseURL     string `validate:"required,url"`
	MockMode    bool
	FixturePath string `validate:"required"`

	DataBasePath  string `validate:"required"`
	StorageFormat string `validate:"oneof=parquet csv"`

	BatchSize         int           `validate:"gt=0"`
	MaxPages          int           `validate:"gt=0"`
	MaxRetries        int           `validate:"gt=0"`
	RetryDelay        time.Duration `validate:"gt=0"`
	BackoffMultiplier float64       `validate:"gte=1"`
	RequestsPerSecond float64       `validate:"gte=0"`
	Timeout           time.Duration `validate:"gt=0"`

	StaleAfterDays int `validate:"gte=0"`

	LogLevel  string
	LogFormat string
}

// Load reads the .env file (if any) and returns a populated Config struct.
// A missing .env just means the process environment is used as-is.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIKey:      getEnv("WHEELHOUSE_API_KEY", ""),
		UserAPIKey:  getEnv("WHEELHOUSE_USER_API_KEY", ""),
		BaseURL:     getEnv("WHEELHOUSE_BASE_URL", DefaultBaseURL),
		MockMode:    getEnvBool("WHEELHOUSE_MOCK", false),
		FixturePath: getEnv("WHEELHOUSE_FIXTURE_PATH", filepath.Join("fixtures", "wheelhouse_listings.json")),

		DataBasePath:  getEnv("DATA_BASE_PATH", "data"),
		StorageFormat: getEnv("STORAGE_FORMAT", "parquet"),

		BatchSize:         getEnvInt("ETL_BATCH_SIZE", 100),
		MaxPages:          getEnvInt("ETL_MAX_PAGES", 1000),
		MaxRetries:        getEnvInt("ETL_MAX_RETRIES", 3),
		RetryDelay:        getEnvDuration("ETL_RETRY_DELAY", time.Second),
		BackoffMultiplier: getEnvFloat("ETL_BACKOFF_MULTIPLIER", 2.0),
		RequestsPerSecond: getEnvFloat("ETL_RATE_LIMIT", 10),
		Timeout:           getEnvDuration("ETL_TIMEOUT", 30*time.Second),

		StaleAfterDays: getEnvInt("HEALTH_STALE_AFTER_DAYS", 2),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Validate checks the loaded settings against their constraints. Credential
// presence is deliberately not part of this: mock mode runs without keys, and
// the API client enforces them itself.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HasCredentials reports whether both API keys are configured.
func (c *Config) HasCredentials() bool {
	return c.APIKey != "" && c.UserAPIKey != ""
}

// RawRoot returns the directory holding the per-listing partition folders.
func (c *Config) RawRoot() string {
	return filepath.Join(c.DataBasePath, "raw")
}

// HealthFilePath returns the default location of the health report.
func (c *Config) HealthFilePath() string {
	return filepath.Join(c.DataBasePath, "health.json")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
