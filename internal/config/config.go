package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration, loaded from environment
// variables with sensible defaults.
//
// Environment Variables:
// Backend (translation):
// - BACKEND_API_KEY: API key for the translation backend (required)
// - BACKEND_API_URL: OpenAI-compatible endpoint URL (optional)
// - BACKEND_MODEL: Model name to use (default: gpt-4o-mini)
// - MODEL_MANIFEST: Path of the verified-model manifest (default: data/models.json)
//
// OCR:
// - OCR_API_URL: Recognition service base URL (default: http://localhost:8884)
//
// Downloads:
// - DOWNLOAD_STATUS_TTL: Downloaded-state cache TTL (default: 30s)
// - DOWNLOAD_ALLOW_CELLULAR: Permit downloads on cellular (default: false)
// - DOWNLOAD_REFRESH_CRON: Schedule for periodic status refresh (default: @every 10m)
// - NETWORK_PROBE_URL: Connectivity probe endpoint (default: https://connectivitycheck.gstatic.com/generate_204)
// - NETWORK_PROBE_INTERVAL: Probe interval (default: 15s)
//
// Camera:
// - CAMERA_MAX_PARALLEL: Per-frame translation fan-out cap (default: 20)
//
// Core:
// - OP_TIMEOUT: Per-call timeout for vendor operations (default: 30s)
// - RETRY_MAX_ATTEMPTS: Retry attempts for transient failures (default: 3)
// - RETRY_INITIAL_DELAY: First backoff delay (default: 1s)
//
// Storage / HTTP / Logging:
// - DB_PATH: SQLite database path (default: data/globaltranslation.db)
// - HTTP_ADDR: Listen address (default: :8080)
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - LOG_FILE: Optional log file path

type Config struct {
	Backend  BackendConfig
	OCR      OCRConfig
	Download DownloadConfig
	Camera   CameraConfig
	Retry    RetryConfig
	Storage  StorageConfig
	HTTP     HTTPConfig
	Log      LogConfig

	// OpTimeout bounds any single vendor call that could otherwise
	// hang indefinitely.
	OpTimeout time.Duration
}

type BackendConfig struct {
	APIKey       string
	APIURL       string
	Model        string
	ManifestPath string
}

type OCRConfig struct {
	APIURL string
}

type DownloadConfig struct {
	StatusTTL     time.Duration
	AllowCellular bool
	RefreshCron   string
	ProbeURL      string
	ProbeInterval time.Duration
}

type CameraConfig struct {
	MaxParallel int
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

type StorageConfig struct {
	DBPath string
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
	File  string
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance from environment variables
// and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Backend: BackendConfig{
			APIKey:       getEnvString("BACKEND_API_KEY", ""),
			APIURL:       getEnvString("BACKEND_API_URL", ""),
			Model:        getEnvString("BACKEND_MODEL", "gpt-4o-mini"),
			ManifestPath: getEnvString("MODEL_MANIFEST", "data/models.json"),
		},
		OCR: OCRConfig{
			APIURL: getEnvString("OCR_API_URL", "http://localhost:8884"),
		},
		Download: DownloadConfig{
			StatusTTL:     getEnvDuration("DOWNLOAD_STATUS_TTL", 30*time.Second),
			AllowCellular: getEnvBool("DOWNLOAD_ALLOW_CELLULAR", false),
			RefreshCron:   getEnvString("DOWNLOAD_REFRESH_CRON", "@every 10m"),
			ProbeURL:      getEnvString("NETWORK_PROBE_URL", "https://connectivitycheck.gstatic.com/generate_204"),
			ProbeInterval: getEnvDuration("NETWORK_PROBE_INTERVAL", 15*time.Second),
		},
		Camera: CameraConfig{
			MaxParallel: getEnvInt("CAMERA_MAX_PARALLEL", 20),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", time.Second),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "data/globaltranslation.db"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
		OpTimeout: getEnvDuration("OP_TIMEOUT", 30*time.Second),
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Backend.APIKey == "" {
		return fmt.Errorf("BACKEND_API_KEY is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Camera.MaxParallel <= 0 {
		return fmt.Errorf("CAMERA_MAX_PARALLEL must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value from environment variables with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
