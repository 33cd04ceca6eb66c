package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PAYMENT_MODE", "mock")
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, ModeMock, cfg.PaymentMode)
	assert.Equal(t, DefaultSolanaRPCURL, cfg.SolanaRPCURL)
	assert.Equal(t, "mock-secret", cfg.MockSecret)
}

func TestLoad_InvalidPaymentMode(t *testing.T) {
	setEnv(t, "PAYMENT_MODE", "bogus")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_MODE must be")
}

func TestLoad_GatewayURLDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "PAYMENT_MODE", "mock")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayURL, cfg.GatewayURL)

	setEnv(t, "GATEWAY_URL", "http://gate.internal:9090")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "http://gate.internal:9090", cfg.GatewayURL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid mock config",
			config: Config{
				PaymentMode:    ModeMock,
				MockSecret:     "s",
				Port:           "8080",
				DefaultTTLSecs: 300,
			},
			wantErr: "",
		},
		{
			name: "missing mock secret",
			config: Config{
				PaymentMode:    ModeMock,
				Port:           "8080",
				DefaultTTLSecs: 300,
			},
			wantErr: "MOCK_SECRET is required",
		},
		{
			name: "missing solana rpc url",
			config: Config{
				PaymentMode:    ModeSolana,
				Port:           "8080",
				DefaultTTLSecs: 300,
			},
			wantErr: "SOLANA_RPC_URL is required",
		},
		{
			name: "invalid port",
			config: Config{
				PaymentMode:    ModeMock,
				MockSecret:     "s",
				Port:           "not-a-port",
				DefaultTTLSecs: 300,
			},
			wantErr: "PORT must be a number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidatePayerConfig(t *testing.T) {
	cfg := Config{PaymentMode: ModeSolana}
	assert.Error(t, cfg.ValidatePayerConfig())

	cfg.SolanaPrivateKey = "abc"
	assert.NoError(t, cfg.ValidatePayerConfig())

	mockCfg := Config{PaymentMode: ModeMock}
	assert.NoError(t, mockCfg.ValidatePayerConfig())
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
