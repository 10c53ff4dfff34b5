package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvEngineAddress = "FLASHARB_ENGINE_ADDRESS"
	EnvOwner         = "FLASHARB_OWNER"
	EnvPriceOracle   = "FLASHARB_PRICE_ORACLE"
	EnvLender        = "FLASHARB_LENDER"
	EnvPremiumBps    = "FLASHARB_PREMIUM_BPS"
	EnvRPCEndpoint   = "FLASHARB_RPC_ENDPOINT"
	EnvDebug         = "FLASHARB_DEBUG"
)

// LoadEnv loads environment variables from the given .env files, or .env in
// the working directory. Missing files are not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides file settings with FLASHARB_* variables
func (c *Config) ApplyEnv() error {
	c.Engine.Address = GetEnvWithDefault(EnvEngineAddress, c.Engine.Address)
	c.Engine.Owner = GetEnvWithDefault(EnvOwner, c.Engine.Owner)
	c.Engine.PriceOracle = GetEnvWithDefault(EnvPriceOracle, c.Engine.PriceOracle)
	c.Lender.Address = GetEnvWithDefault(EnvLender, c.Lender.Address)
	c.Oracle.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.Oracle.RPCEndpoint)

	if v := os.Getenv(EnvPremiumBps); v != "" {
		bps, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPremiumBps, err)
		}
		c.Lender.PremiumBps = bps
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		c.Logging.Debug = debug
	}
	return nil
}
