// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port           string
	Env            string // "development", "staging", "production"
	LogLevel       string
	LogFormat      string // "text" or "json"
	RequestTimeout time.Duration
	CORSOrigins    []string
	RateLimitRPM   int

	// Receipt journal
	DatabaseURL   string // PostgreSQL connection string (optional, uses in-memory if not set)
	ReceiptSecret string // HMAC key for journal entries (optional, unsigned if not set)

	// Chain settings
	NodeRPCURL           string
	SignerBridgeURL      string // Websocket signing bridge (optional, writes fail without it)
	ContractAddress      string
	ContractMetadataPath string // ink! metadata JSON (optional, embedded default)
	SS58Prefix           uint16
	QueryCaller          string // Origin of read-only calls (defaults to the contract)
	StorageDepositLimit  string // Attached to every write (optional, unlimited if not set)
	TrackerWindow        int
	DialAttempts         int

	// Observability
	OTLPEndpoint     string  // OpenTelemetry collector (optional, tracing disabled if not set)
	TraceSampleRatio float64 // Fraction of traces kept (1 keeps all)

	// MCP
	APIURL string // Escrow API the MCP server talks to
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultNodeRPCURL     = "ws://127.0.0.1:9944"
	DefaultSS58Prefix     = 0
	DefaultTrackerWindow  = 10
	DefaultRequestTimeout = 120 // seconds
	DefaultDialAttempts   = 5
	DefaultRateLimit      = 120 // requests per minute
	DefaultAPIURL         = "http://localhost:8080"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		RequestTimeout:       time.Duration(getEnvInt64("REQUEST_TIMEOUT", DefaultRequestTimeout)) * time.Second,
		CORSOrigins:          getEnvList("CORS_ORIGINS"),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ReceiptSecret:        os.Getenv("RECEIPT_HMAC_SECRET"),
		NodeRPCURL:           getEnv("NODE_RPC_URL", DefaultNodeRPCURL),
		SignerBridgeURL:      os.Getenv("SIGNER_BRIDGE_URL"),
		ContractAddress:      strings.TrimSpace(os.Getenv("CONTRACT_ADDRESS")), // Required, no default
		ContractMetadataPath: os.Getenv("CONTRACT_METADATA_PATH"),
		SS58Prefix:           uint16(getEnvInt64("SS58_PREFIX", DefaultSS58Prefix)),
		QueryCaller:          strings.TrimSpace(os.Getenv("QUERY_CALLER")),
		StorageDepositLimit:  os.Getenv("STORAGE_DEPOSIT_LIMIT"),
		TrackerWindow:        int(getEnvInt64("TRACKER_WINDOW", DefaultTrackerWindow)),
		DialAttempts:         int(getEnvInt64("DIAL_ATTEMPTS", DefaultDialAttempts)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:     getEnvFloat("TRACE_SAMPLE_RATIO", 1),
		APIURL:               getEnv("ESCROW_API_URL", DefaultAPIURL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if !ss58.Valid(c.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS must be a valid SS58 address")
	}
	if c.QueryCaller != "" && !ss58.Valid(c.QueryCaller) {
		return fmt.Errorf("QUERY_CALLER must be a valid SS58 address")
	}

	if c.NodeRPCURL == "" {
		return fmt.Errorf("NODE_RPC_URL is required")
	}

	if c.SS58Prefix > 16383 {
		return fmt.Errorf("SS58_PREFIX must be below 16384")
	}
	if c.TrackerWindow < 1 {
		return fmt.Errorf("TRACKER_WINDOW must be at least 1")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.StorageDepositLimit != "" {
		if _, err := strconv.ParseUint(c.StorageDepositLimit, 10, 64); err != nil {
			return fmt.Errorf("STORAGE_DEPOSIT_LIMIT must be a whole number of base units")
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
