package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCalldataRoundTrip(t *testing.T) {
	out, err := run(t, "calldata", "swap",
		"--amount-in", "1000000000",
		"--min-out", "1",
		"--path", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48,0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		"--to", "0x7000000000000000000000000000000000000001",
		"--deadline", "1700000000")
	require.NoError(t, err)

	payload := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(payload, "0x38ed1739"), payload)

	out, err = run(t, "calldata", "decode", payload)
	require.NoError(t, err)
	assert.Contains(t, out, "amountIn:     1000000000")
	assert.Contains(t, out, "path[1]:      0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	assert.Contains(t, out, "deadline:     1700000000")

	_, err = run(t, "calldata", "decode", "0x1234")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := run(t, "simulate", "--scenario", "../examples/scenarios/uniswap_vs_fixed.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario uniswap-vs-fixed")
	assert.Contains(t, out, "not-owner")
	assert.Contains(t, out, "authorization")
	assert.Contains(t, out, "profit 64.354268")
	assert.Contains(t, out, "deviation 79 bps")
	assert.Contains(t, out, "insufficient_proceeds")
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flasharb.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	_, err = run(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	// defaults carry no addresses
	_, err = run(t, "config", "validate", "--config", path)
	assert.ErrorContains(t, err, "configuration validation failed")

	valid := `
engine:
  address: "0x7000000000000000000000000000000000000001"
  owner: "0x7000000000000000000000000000000000000002"
  base_asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
  quote_asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
  price_oracle: "0x986b5E1e1755e3C2440e960477f25201B0a8bbD4"
lender:
  address: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"
`
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o600))
	out, err = run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, out, "(5 bps)")
	assert.Contains(t, out, "quote_per_base")
}
