// Package config provides configuration management for the report harvester.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	API       APIConfig
	Reports   ReportsConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Sink      SinkConfig
	Backfill  BackfillConfig
	Harvest   HarvestConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP trigger server configuration
type ServerConfig struct {
	Host string
	Port string
}

// AuthConfig holds the LWA token exchange configuration
type AuthConfig struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	SafetyMargin  time.Duration
}

// APIConfig holds the Reports API configuration
type APIConfig struct {
	Endpoint       string
	MarketplaceIDs []string
}

// ReportsConfig holds the enabled report types and per-type overrides
type ReportsConfig struct {
	Enabled   []string
	Overrides map[string]ReportOverride
}

// ReportOverride holds per-report-type tuning. Zero values mean "use the
// registry default".
type ReportOverride struct {
	PollInterval time.Duration
	PollDeadline time.Duration
}

// RateLimitConfig holds outbound rate limiting configuration per route class
type RateLimitConfig struct {
	CreateRPS   float64
	CreateBurst int
	StatusRPS   float64
	StatusBurst int
	FetchRPS    float64
	FetchBurst  int
	MaxAttempts int
	// QuotaBudget is the shared cross-process requests-per-window budget.
	// Zero disables the Redis quota tracker.
	QuotaBudget int
	QuotaWindow time.Duration
}

// RedisConfig holds Redis configuration for cross-process quota coordination
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SinkConfig holds artifact sink configuration
type SinkConfig struct {
	// Backend selects the sink implementation: "s3" or "fs".
	Backend   string
	Directory string
	S3        S3Config
}

// S3Config holds S3-compatible object storage configuration
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// BackfillConfig holds backfill driver configuration
type BackfillConfig struct {
	InterWindowDelay time.Duration
	ProgressEvery    int
}

// HarvestConfig holds the fan-out worker pool configuration
type HarvestConfig struct {
	MaxConcurrency int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			TokenEndpoint: getEnv("SP_API_TOKEN_ENDPOINT", "https://api.amazon.com/auth/o2/token"),
			ClientID:      getEnv("SP_API_CLIENT_ID", ""),
			ClientSecret:  getEnv("SP_API_CLIENT_SECRET", ""),
			RefreshToken:  getEnv("SP_API_REFRESH_TOKEN", ""),
			SafetyMargin:  getEnvAsDuration("SP_API_TOKEN_SAFETY_MARGIN", 60*time.Second),
		},
		API: APIConfig{
			Endpoint:       getEnv("SP_API_ENDPOINT", "https://sellingpartnerapi-fe.amazon.com"),
			MarketplaceIDs: splitList(getEnv("SP_API_MARKETPLACE_IDS", "A1VC38T7YXB528")),
		},
		RateLimit: RateLimitConfig{
			CreateRPS:   getEnvAsFloat("RATE_LIMIT_CREATE_RPS", 0.0167),
			CreateBurst: getEnvAsInt("RATE_LIMIT_CREATE_BURST", 15),
			StatusRPS:   getEnvAsFloat("RATE_LIMIT_STATUS_RPS", 2),
			StatusBurst: getEnvAsInt("RATE_LIMIT_STATUS_BURST", 15),
			FetchRPS:    getEnvAsFloat("RATE_LIMIT_FETCH_RPS", 0.0167),
			FetchBurst:  getEnvAsInt("RATE_LIMIT_FETCH_BURST", 15),
			MaxAttempts: getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 8),
			QuotaBudget: getEnvAsInt("RATE_LIMIT_QUOTA_BUDGET", 0),
			QuotaWindow: getEnvAsDuration("RATE_LIMIT_QUOTA_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Sink: SinkConfig{
			Backend:   getEnv("SINK_BACKEND", "fs"),
			Directory: getEnv("SINK_DIRECTORY", "data"),
			S3: S3Config{
				Endpoint:  getEnv("SINK_S3_ENDPOINT", ""),
				Region:    getEnv("SINK_S3_REGION", "us-east-1"),
				Bucket:    getEnv("SINK_S3_BUCKET", ""),
				AccessKey: getEnv("SINK_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("SINK_S3_SECRET_KEY", ""),
			},
		},
		Backfill: BackfillConfig{
			InterWindowDelay: getEnvAsDuration("BACKFILL_INTER_WINDOW_DELAY", 30*time.Second),
			ProgressEvery:    getEnvAsInt("BACKFILL_PROGRESS_EVERY", 5),
		},
		Harvest: HarvestConfig{
			MaxConcurrency: getEnvAsInt("HARVEST_MAX_CONCURRENCY", 4),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Reports = loadReportsConfig()

	return config, nil
}

// Validate checks that required acquisition settings are present.
func (c *Config) Validate() error {
	if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" || c.Auth.RefreshToken == "" {
		return fmt.Errorf("SP_API_CLIENT_ID, SP_API_CLIENT_SECRET and SP_API_REFRESH_TOKEN must be set")
	}
	if c.Sink.Backend == "s3" && c.Sink.S3.Bucket == "" {
		return fmt.Errorf("SINK_S3_BUCKET must be set when SINK_BACKEND=s3")
	}
	return nil
}

// loadReportsConfig loads the enabled report types and per-type overrides.
// Override env vars are keyed by an upper-cased type name with dashes
// replaced by underscores, e.g. LEDGER_SUMMARY_POLL_INTERVAL=20s.
func loadReportsConfig() ReportsConfig {
	enabled := splitList(getEnv("ENABLED_REPORTS",
		"sales-and-traffic,settlement,ledger-summary,ledger-detail,"+
			"brand-analytics-search-query-weekly,brand-analytics-search-query-monthly,"+
			"brand-analytics-repeat-purchase-weekly,brand-analytics-repeat-purchase-monthly,"+
			"all-orders,fba-inventory"))

	overrides := make(map[string]ReportOverride)
	for _, name := range enabled {
		prefix := strings.ReplaceAll(strings.ToUpper(name), "-", "_")
		override := ReportOverride{
			PollInterval: getEnvAsDuration(prefix+"_POLL_INTERVAL", 0),
			PollDeadline: getEnvAsDuration(prefix+"_POLL_DEADLINE", 0),
		}
		if override != (ReportOverride{}) {
			overrides[name] = override
		}
	}

	return ReportsConfig{
		Enabled:   enabled,
		Overrides: overrides,
	}
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
