package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v2"
)

const defaultConfigName = ".flasharb.yaml"

// maxTokenDecimals matches the precision bound of the price guard
const maxTokenDecimals = 36

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Lender  LenderConfig  `yaml:"lender"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig holds the engine accounts and pair settings. Addresses are
// hex strings.
type EngineConfig struct {
	Address        string `yaml:"address"`
	Owner          string `yaml:"owner"`
	BaseAsset      string `yaml:"base_asset"`
	QuoteAsset     string `yaml:"quote_asset"`
	PriceOracle    string `yaml:"price_oracle"`
	BaseDecimals   uint8  `yaml:"base_decimals"`
	QuoteDecimals  uint8  `yaml:"quote_decimals"`
	RateConvention string `yaml:"rate_convention"` // quote_per_base or base_per_quote
}

// LenderConfig describes the flash loan pool. Amounts are decimal strings in
// base units.
type LenderConfig struct {
	Address           string `yaml:"address"`
	PremiumBps        uint64 `yaml:"premium_bps"`
	MaxLoanPercentage uint8  `yaml:"max_loan_percentage"`
	MinLoanAmount     string `yaml:"min_loan_amount"`
	MaxLoanAmount     string `yaml:"max_loan_amount"`
}

type OracleConfig struct {
	RPCEndpoint string          `yaml:"rpc_endpoint"`
	CacheSize   int             `yaml:"cache_size"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Debug       bool     `yaml:"debug"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths,omitempty"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

// Default returns a configuration with every optional field filled in
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseDecimals:   18,
			QuoteDecimals:  18,
			RateConvention: oracle.QuotePerBase.String(),
		},
		Lender: LenderConfig{
			PremiumBps:        5, // Aave v3 flashLoanSimple premium
			MaxLoanPercentage: 100,
		},
		Oracle: OracleConfig{
			CacheSize: 128,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
				WaitTimeout:       5 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Namespace: "flasharb",
		},
		Logging: LoggingConfig{
			Encoding: "json",
		},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides and validates the result. An empty path selects
// ~/.flasharb.yaml.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, defaultConfigName)
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML
func Save(cfg *Config, cfgFile string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, data, 0o600)
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var errors []string

	if err := c.Engine.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("engine: %v", err))
	}
	if err := c.Lender.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("lender: %v", err))
	}
	if c.Oracle.RPCEndpoint != "" {
		if err := c.Oracle.RateLimit.Validate(); err != nil {
			errors = append(errors, fmt.Sprintf("oracle rate limit: %v", err))
		}
		if c.Oracle.CacheSize <= 0 {
			errors = append(errors, "oracle: cache_size must be positive")
		}
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		errors = append(errors, fmt.Sprintf("logging: unknown encoding %q", c.Logging.Encoding))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (e *EngineConfig) Validate() error {
	var errors []string

	for _, f := range []struct {
		name  string
		value string
	}{
		{"address", e.Address},
		{"owner", e.Owner},
		{"base_asset", e.BaseAsset},
		{"quote_asset", e.QuoteAsset},
		{"price_oracle", e.PriceOracle},
	} {
		if _, err := ParseAddress(f.name, f.value); err != nil {
			errors = append(errors, err.Error())
		}
	}
	if e.BaseAsset != "" && strings.EqualFold(e.BaseAsset, e.QuoteAsset) {
		errors = append(errors, "base_asset and quote_asset must differ")
	}
	if e.BaseDecimals > maxTokenDecimals || e.QuoteDecimals > maxTokenDecimals {
		errors = append(errors, fmt.Sprintf("token decimals cannot exceed %d", maxTokenDecimals))
	}
	if _, err := oracle.ParseRateConvention(e.RateConvention); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, ", "))
	}
	return nil
}

func (l *LenderConfig) Validate() error {
	_, err := l.ProviderConfig()
	return err
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	return nil
}

// Arbitrage converts the engine section into engine settings for a pool at
// lender
func (e *EngineConfig) Arbitrage(lender common.Address) (arbitrage.Config, error) {
	if err := e.Validate(); err != nil {
		return arbitrage.Config{}, err
	}
	convention, err := oracle.ParseRateConvention(e.RateConvention)
	if err != nil {
		return arbitrage.Config{}, err
	}

	return arbitrage.Config{
		Address:         common.HexToAddress(e.Address),
		Owner:           common.HexToAddress(e.Owner),
		LendingFacility: lender,
		BaseAsset:       common.HexToAddress(e.BaseAsset),
		QuoteAsset:      common.HexToAddress(e.QuoteAsset),
		PriceOracle:     common.HexToAddress(e.PriceOracle),
		BaseDecimals:    e.BaseDecimals,
		QuoteDecimals:   e.QuoteDecimals,
		RateConvention:  convention,
	}, nil
}

// ProviderConfig converts the lender section into pool settings
func (l *LenderConfig) ProviderConfig() (*flashloan.ProviderConfig, error) {
	addr, err := ParseAddress("address", l.Address)
	if err != nil {
		return nil, err
	}
	minLoan, err := parseAmount("min_loan_amount", l.MinLoanAmount)
	if err != nil {
		return nil, err
	}
	maxLoan, err := parseAmount("max_loan_amount", l.MaxLoanAmount)
	if err != nil {
		return nil, err
	}

	cfg := &flashloan.ProviderConfig{
		ContractAddress:   addr,
		MinLoanAmount:     minLoan,
		MaxLoanAmount:     maxLoan,
		MaxLoanPercentage: l.MaxLoanPercentage,
		PremiumBps:        l.PremiumBps,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseAddress parses a non-zero hex address
func ParseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, fmt.Errorf("%s must be specified", field)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s is not a valid address: %q", field, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s cannot be the zero address", field)
	}
	return addr, nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := math.ParseUnits(s, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
