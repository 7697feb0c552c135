// Package config loads service configuration from the environment, with
// optional support for the platform's encrypted .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backend identifiers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Model provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderMock      = "mock"
)

// Config holds all service settings.
type Config struct {
	// API server
	APIHost  string
	APIPort  int
	LogLevel string

	// Persistence
	StoreBackend string
	SQLitePath   string
	MySQLDSN     string

	// Internal platform APIs
	InternalAPIKey string
	BaseURL        string
	GoogleAPIURL   string
	FileServiceURL string
	EmailEndpoint  string

	// AI analysis
	ModelProvider string
	ModelName     string
	ModelAPIKey   string

	// Engine
	MaxSteps        int
	ShutdownTimeout time.Duration

	// DefaultFlow overrides the canonical default plan. Each entry is a
	// step name; empty keeps the built-in flow.
	DefaultFlow []string

	// EncryptedEnvPath points to an AES-encrypted .env file that is
	// decrypted and loaded into the environment before the env overrides
	// are applied. Empty disables the feature.
	EncryptedEnvPath string
}

const (
	DefaultAPIHost  = "0.0.0.0"
	DefaultAPIPort  = 8000
	MaxTCPPort      = 65535
	DefaultMaxSteps = 100

	DefaultSQLitePath      = "./convoflow.db"
	DefaultShutdownTimeout = 10 * time.Second
)

var (
	ErrInvalidAPIPort      = errors.New("invalid API port")
	ErrInvalidStoreBackend = errors.New("store backend must be one of: memory, sqlite, mysql")
	ErrMissingMySQLDSN     = errors.New("mysql backend requires MYSQL_DSN")
	ErrInvalidProvider     = errors.New("model provider must be one of: anthropic, openai, google, mock")
	ErrMissingModelAPIKey  = errors.New("model provider requires MODEL_API_KEY")
	ErrInvalidMaxSteps     = errors.New("max steps must be positive")
)

// NewDefaultConfig creates a configuration with development defaults: an
// in-process SQLite store and the mock model provider.
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:         DefaultAPIHost,
		APIPort:         DefaultAPIPort,
		LogLevel:        "info",
		StoreBackend:    StoreSQLite,
		SQLitePath:      DefaultSQLitePath,
		BaseURL:         "http://localhost:5010",
		GoogleAPIURL:    "http://localhost:5020",
		FileServiceURL:  "http://localhost:5019",
		ModelProvider:   ProviderMock,
		ModelName:       "",
		MaxSteps:        DefaultMaxSteps,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// When ENCRYPTED_ENV_FILE is set, that file is decrypted and loaded into
// the environment first, so its variables participate in the overrides.
func (c *Config) LoadFromEnv() error {
	if path := os.Getenv("ENCRYPTED_ENV_FILE"); path != "" {
		c.EncryptedEnvPath = path
		if err := LoadEncryptedEnvFile(path, os.Getenv("CONFIG_ENCRYPTION_KEY")); err != nil {
			return fmt.Errorf("load encrypted env file: %w", err)
		}
	}

	loadEnvStr("API_HOST", &c.APIHost)
	loadEnvStr("LOG_LEVEL", &c.LogLevel)
	loadEnvStr("STORE_BACKEND", &c.StoreBackend)
	loadEnvStr("SQLITE_PATH", &c.SQLitePath)
	loadEnvStr("MYSQL_DSN", &c.MySQLDSN)
	loadEnvStr("INTERNAL_API_KEY", &c.InternalAPIKey)
	loadEnvStr("REMOTE_API_BASE_URL", &c.BaseURL)
	loadEnvStr("GOOGLE_API_URL", &c.GoogleAPIURL)
	loadEnvStr("FILE_SERVICE_URL", &c.FileServiceURL)
	loadEnvStr("EMAIL_ENDPOINT", &c.EmailEndpoint)
	loadEnvStr("MODEL_PROVIDER", &c.ModelProvider)
	loadEnvStr("MODEL_NAME", &c.ModelName)
	loadEnvStr("MODEL_API_KEY", &c.ModelAPIKey)

	if s := os.Getenv("DEFAULT_FLOW"); s != "" {
		parts := strings.Split(s, ",")
		flow := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				flow = append(flow, p)
			}
		}
		c.DefaultFlow = flow
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("MAX_STEPS", &c.MaxSteps, 0, 10000); err != nil {
		return err
	}
	if s := os.Getenv("SHUTDOWN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %q", s)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate checks that all configuration values are consistent.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return ErrMissingMySQLDSN
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreBackend, c.StoreBackend)
	}
	switch c.ModelProvider {
	case ProviderMock:
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		if c.ModelAPIKey == "" {
			return fmt.Errorf("%w (provider %s)", ErrMissingModelAPIKey, c.ModelProvider)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProvider, c.ModelProvider)
	}
	if c.MaxSteps <= 0 {
		return ErrInvalidMaxSteps
	}
	return nil
}

func loadEnvStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value lies in (min, max].
func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]", key, v, min+1, max)
	}
	*dst = v
	return nil
}
