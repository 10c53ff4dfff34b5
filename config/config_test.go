package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelpento.lv/flasharb/oracle"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
engine:
  address: "0x7000000000000000000000000000000000000001"
  owner: "0x7000000000000000000000000000000000000002"
  base_asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
  quote_asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
  price_oracle: "0x986b5E1e1755e3C2440e960477f25201B0a8bbD4"
  base_decimals: 6
  quote_decimals: 18
lender:
  address: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
  premium_bps: 45
  max_loan_amount: "5000000000000"
oracle:
  rpc_endpoint: "http://localhost:8545"
  rate_limit:
    requests_per_second: 2
    burst_size: 4
    wait_timeout: 2s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flasharb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, uint8(6), cfg.Engine.BaseDecimals)
	assert.Equal(t, "quote_per_base", cfg.Engine.RateConvention)
	assert.Equal(t, uint64(45), cfg.Lender.PremiumBps)
	assert.Equal(t, uint8(100), cfg.Lender.MaxLoanPercentage)
	assert.Equal(t, 2*time.Second, cfg.Oracle.RateLimit.WaitTimeout)
	assert.Equal(t, 128, cfg.Oracle.CacheSize)
	assert.Equal(t, "flasharb", cfg.Metrics.Namespace)

	provider, err := cfg.Lender.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000000), provider.MaxLoanAmount.Uint64())
	assert.Nil(t, provider.MinLoanAmount)

	engine, err := cfg.Engine.Arbitrage(provider.ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"), engine.LendingFacility)
	assert.Equal(t, oracle.QuotePerBase, engine.RateConvention)
	assert.Equal(t, uint8(18), engine.QuoteDecimals)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open config file")

	_, err = Load(writeConfig(t, validYAML+"\nunknown_section: true\n"))
	assert.ErrorContains(t, err, "failed to decode config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr []string
	}{
		{
			name:   "Valid",
			mutate: func(c *Config) {},
		},
		{
			name: "MissingOwnerAndBadOracle",
			mutate: func(c *Config) {
				c.Engine.Owner = ""
				c.Engine.PriceOracle = "0x1234"
			},
			wantErr: []string{"owner must be specified", "price_oracle is not a valid address"},
		},
		{
			name:    "SameAssets",
			mutate:  func(c *Config) { c.Engine.QuoteAsset = c.Engine.BaseAsset },
			wantErr: []string{"base_asset and quote_asset must differ"},
		},
		{
			name:    "UnknownConvention",
			mutate:  func(c *Config) { c.Engine.RateConvention = "sideways" },
			wantErr: []string{"unknown rate convention"},
		},
		{
			name:    "PremiumTooHigh",
			mutate:  func(c *Config) { c.Lender.PremiumBps = 10001 },
			wantErr: []string{"lender: premium cannot exceed 10000 bps"},
		},
		{
			name:    "BadLoanAmount",
			mutate:  func(c *Config) { c.Lender.MinLoanAmount = "1.5" },
			wantErr: []string{"min_loan_amount"},
		},
		{
			name:    "ZeroRateLimit",
			mutate:  func(c *Config) { c.Oracle.RateLimit.BurstSize = 0 },
			wantErr: []string{"oracle rate limit: burst size must be positive"},
		},
		{
			name: "RateLimitIgnoredWithoutRPC",
			mutate: func(c *Config) {
				c.Oracle.RPCEndpoint = ""
				c.Oracle.RateLimit.BurstSize = 0
			},
		},
		{
			name: "AggregatesEverything",
			mutate: func(c *Config) {
				c.Engine.Address = ""
				c.Lender.Address = ""
				c.Logging.Encoding = "xml"
			},
			wantErr: []string{"engine: address must be specified", "lender: address must be specified", `logging: unknown encoding "xml"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration validation failed")
			for _, msg := range tt.wantErr {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvOwner, "0x7000000000000000000000000000000000000009")
	t.Setenv(EnvPremiumBps, "9")
	t.Setenv(EnvDebug, "true")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "0x7000000000000000000000000000000000000009", cfg.Engine.Owner)
	assert.Equal(t, uint64(9), cfg.Lender.PremiumBps)
	assert.True(t, cfg.Logging.Debug)

	t.Setenv(EnvPremiumBps, "lots")
	_, err = Load(writeConfig(t, validYAML))
	assert.ErrorContains(t, err, EnvPremiumBps)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FLASHARB_TEST_VALUE=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FLASHARB_TEST_VALUE") })

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv", GetEnvWithDefault("FLASHARB_TEST_VALUE", "default"))
	assert.Equal(t, "default", GetEnvWithDefault("FLASHARB_TEST_UNSET", "default"))

	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestSave(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
