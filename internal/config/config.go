package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Timezone  string          `yaml:"timezone"`

	// Sites replaces the built-in agency list when non-empty
	Sites []SiteConfig `yaml:"sites" validate:"dive"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type" validate:"omitempty,oneof=mysql postgres memory"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
	Index   string `yaml:"index"`
}

// ScraperConfig contains scraper-specific settings
type ScraperConfig struct {
	TimeoutSeconds         int    `yaml:"timeout_seconds" validate:"min=20,max=30"`
	MaxAttempts            int    `yaml:"max_attempts" validate:"min=1,max=5"`
	RetryMinDelaySeconds   int    `yaml:"retry_min_delay_seconds" validate:"min=0"`
	RetryMaxDelaySeconds   int    `yaml:"retry_max_delay_seconds" validate:"gtefield=RetryMinDelaySeconds"`
	RequestDelaySeconds    int    `yaml:"request_delay_seconds" validate:"min=0"`
	RequestJitterSeconds   int    `yaml:"request_jitter_seconds" validate:"min=0"`
	ParallelAdapters       int    `yaml:"parallel_adapters" validate:"min=1"`
	DailyRunEnabled        bool   `yaml:"daily_run_enabled"`
	DailyRunTime           string `yaml:"daily_run_time" validate:"omitempty,datetime=15:04"`
	City                   string `yaml:"city"`
	UserAgent              string `yaml:"user_agent"`
	MaxBodyBytes           int64  `yaml:"max_body_bytes" validate:"min=0"`
	CircuitBreakerFailures int    `yaml:"circuit_breaker_failures" validate:"min=0"`
	RunTimeoutMinutes      int    `yaml:"run_timeout_minutes" validate:"min=0"`
}

// RateLimitConfig limits how often the API trigger endpoints may be called
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// CleanupConfig controls purging of soft-deleted listings
type CleanupConfig struct {
	RetentionDays    int `yaml:"retention_days" validate:"min=1"`
	MaxDeletionCount int `yaml:"max_deletion_count" validate:"min=1"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Type: "mysql",
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Index: "listings",
			},
		},
		Scraper: ScraperConfig{
			TimeoutSeconds:         25,
			MaxAttempts:            3,
			RetryMinDelaySeconds:   1,
			RetryMaxDelaySeconds:   5,
			RequestDelaySeconds:    1,
			RequestJitterSeconds:   1,
			ParallelAdapters:       1,
			DailyRunEnabled:        false,
			DailyRunTime:           "06:00",
			City:                   "Chapecó",
			UserAgent:              "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			MaxBodyBytes:           10 << 20,
			CircuitBreakerFailures: 3,
			RunTimeoutMinutes:      30,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 6,
			RequestsPerHour:   60,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Cleanup: CleanupConfig{
			RetentionDays:    90,
			MaxDeletionCount: 10000,
		},
		Timezone: "America/Sao_Paulo",
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadDotEnv loads variables from .env style files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks value ranges after loading
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetTimeout returns the per-request timeout as a duration
func (c *ScraperConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelays returns the jittered retry delay bounds
func (c *ScraperConfig) GetRetryDelays() (time.Duration, time.Duration) {
	return time.Duration(c.RetryMinDelaySeconds) * time.Second,
		time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

// GetRequestDelay returns the minimum spacing between requests to one host
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetRequestJitter returns the random extra spacing between requests
func (c *ScraperConfig) GetRequestJitter() time.Duration {
	return time.Duration(c.RequestJitterSeconds) * time.Second
}

// GetRunTimeout bounds a whole monitoring run; zero disables the bound
func (c *ScraperConfig) GetRunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// Location returns the configured timezone, falling back to local time
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
