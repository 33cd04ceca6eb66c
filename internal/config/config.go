// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects which verifier/payer pair the gate uses.
type Mode string

const (
	ModeMock   Mode = "mock"
	ModeSolana Mode = "solana"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Host     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional, uses in-memory stores if not set)
	DatabaseURL string

	// Payment mode
	PaymentMode Mode

	// Mock verifier/payer settings
	MockSecret    string
	MockPayerAddr string

	// Solana settings
	SolanaPrivateKey string `json:"-"` // base58 or JSON byte array, excluded from serialization
	SolanaRPCURL     string
	Commitment       string
	AmountTolerance  int64

	// Pricing defaults
	RecipientWallet string
	DefaultPrice    string
	DefaultAsset    string
	DefaultNetwork  string
	DefaultTTLSecs  int64
	MaxBodyBytes    int64
	NonceGraceSecs  int64
	IdempotencyTTL  time.Duration

	// HTTP server timeouts
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint, empty = disabled

	// GatewayURL is where client-side processes (the MCP server, the demo
	// call-weather route) dial the gate's HTTP API. Distinct from Host,
	// which is a bind address and may be unroutable (e.g. 0.0.0.0).
	GatewayURL string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultHost            = "0.0.0.0"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultPrice           = "0.001"
	DefaultAsset           = "USDC"
	DefaultNetwork         = "mock"
	DefaultTTLSeconds      = 300
	DefaultMaxBodyBytes    = 1 << 20 // 1MB
	DefaultNonceGraceSecs  = 60
	DefaultIdempotencyTTL  = time.Hour
	DefaultSolanaRPCURL    = "https://api.devnet.solana.com"
	DefaultCommitment      = "confirmed"
	DefaultAmountTolerance = 0

	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second
	DefaultHTTPIdleTimeout  = 60 * time.Second

	DefaultGatewayURL = "http://localhost:8080"
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		Host:     getEnv("HOST", DefaultHost),
		Env:      getEnv("ENV", DefaultEnv),
		LogLevel: getEnv("LOG_LEVEL", DefaultLogLevel),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		PaymentMode: Mode(getEnv("PAYMENT_MODE", string(ModeMock))),

		MockSecret:    getEnv("MOCK_SECRET", "mock-secret"),
		MockPayerAddr: os.Getenv("MOCK_PAYER_ADDRESS"),

		SolanaPrivateKey: os.Getenv("SOLANA_PRIVATE_KEY"),
		SolanaRPCURL:     getEnv("SOLANA_RPC_URL", DefaultSolanaRPCURL),
		Commitment:       getEnv("SOLANA_COMMITMENT", DefaultCommitment),
		AmountTolerance:  getEnvInt64("AMOUNT_TOLERANCE", DefaultAmountTolerance),

		RecipientWallet: os.Getenv("RECIPIENT_WALLET"),
		DefaultPrice:    getEnv("DEFAULT_PRICE", DefaultPrice),
		DefaultAsset:    getEnv("DEFAULT_ASSET", DefaultAsset),
		DefaultNetwork:  getEnv("DEFAULT_NETWORK", DefaultNetwork),
		DefaultTTLSecs:  getEnvInt64("DEFAULT_TTL_SECONDS", DefaultTTLSeconds),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		NonceGraceSecs:  getEnvInt64("NONCE_GRACE_SECONDS", DefaultNonceGraceSecs),
		IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", DefaultIdempotencyTTL),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", DefaultHTTPIdleTimeout),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		GatewayURL: getEnv("GATEWAY_URL", DefaultGatewayURL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present for the
// selected payment mode. A misconfigured payer/verifier fails fast at
// startup rather than surfacing as a runtime error mid-request.
func (c *Config) Validate() error {
	switch c.PaymentMode {
	case ModeMock:
		if c.MockSecret == "" {
			return fmt.Errorf("MOCK_SECRET is required in mock payment mode")
		}
	case ModeSolana:
		if c.SolanaRPCURL == "" {
			return fmt.Errorf("SOLANA_RPC_URL is required in solana payment mode")
		}
	default:
		return fmt.Errorf("PAYMENT_MODE must be %q or %q, got %q", ModeMock, ModeSolana, c.PaymentMode)
	}

	if c.RecipientWallet == "" {
		slog.Warn("RECIPIENT_WALLET not set — routes must set an explicit recipient")
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.DefaultTTLSecs < 1 {
		return fmt.Errorf("DEFAULT_TTL_SECONDS must be at least 1, got %d", c.DefaultTTLSecs)
	}

	if c.HTTPWriteTimeout > 0 && c.HTTPWriteTimeout < c.HTTPReadTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%v) must be >= HTTP_READ_TIMEOUT (%v)", c.HTTPWriteTimeout, c.HTTPReadTimeout)
	}

	return nil
}

// ValidatePayerConfig additionally requires a private key when this process
// acts as a client-side payer in solana mode. Kept separate from Validate
// because most processes only run the server side of the gate.
func (c *Config) ValidatePayerConfig() error {
	if c.PaymentMode == ModeSolana && c.SolanaPrivateKey == "" {
		return fmt.Errorf("SOLANA_PRIVATE_KEY is required to act as a payer in solana mode")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
