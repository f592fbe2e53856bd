package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contract = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

func TestLoad_WithValidConfig(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", contract)
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://app.example, ,https://admin.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, contract, cfg.ContractAddress)
	assert.Equal(t, DefaultNodeRPCURL, cfg.NodeRPCURL)
	assert.Equal(t, uint16(DefaultSS58Prefix), cfg.SS58Prefix)
	assert.Equal(t, DefaultTrackerWindow, cfg.TrackerWindow)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.QueryCaller)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", contract)
	t.Setenv("QUERY_CALLER", alice)
	t.Setenv("SS58_PREFIX", "42")
	t.Setenv("TRACKER_WINDOW", "25")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("STORAGE_DEPOSIT_LIMIT", "1000000")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, alice, cfg.QueryCaller)
	assert.Equal(t, uint16(42), cfg.SS58Prefix)
	assert.Equal(t, 25, cfg.TrackerWindow)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "1000000", cfg.StorageDepositLimit)
	assert.Equal(t, 0.25, cfg.TraceSampleRatio)
}

func TestLoad_MissingContract(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTRACT_ADDRESS is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			ContractAddress: contract,
			NodeRPCURL:      DefaultNodeRPCURL,
			TrackerWindow:   DefaultTrackerWindow,
			RequestTimeout:  time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"invalid contract", func(c *Config) { c.ContractAddress = "0x1234" }, "CONTRACT_ADDRESS must be a valid SS58 address"},
		{"invalid query caller", func(c *Config) { c.QueryCaller = "bogus" }, "QUERY_CALLER"},
		{"missing node url", func(c *Config) { c.NodeRPCURL = "" }, "NODE_RPC_URL is required"},
		{"prefix too large", func(c *Config) { c.SS58Prefix = 20000 }, "SS58_PREFIX"},
		{"zero window", func(c *Config) { c.TrackerWindow = 0 }, "TRACKER_WINDOW"},
		{"sample ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }, "TRACE_SAMPLE_RATIO"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"fractional deposit limit", func(c *Config) { c.StorageDepositLimit = "1.5" }, "STORAGE_DEPOSIT_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvInt64(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "a, b,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST"))
	assert.Nil(t, getEnvList("NONEXISTENT_VAR"))
}
