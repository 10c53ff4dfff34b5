package simulator

import (
	"context"
	"testing"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	usdc   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	engine = common.HexToAddress("0x7000000000000000000000000000000000000001")
	lender = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
)

// 1000 USDC buys 0.5 WETH which sells for 1010 USDC, 0.45% premium
const fixedScenario = `
name: fixed
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
oracle:
  rate: "0.0005"
balances:
  - {asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", holder: "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2", amount: "1000000000000"}
  - {asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", holder: "0x7000000000000000000000000000000000000010", amount: "1000000000000000000000"}
  - {asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", holder: "0x7000000000000000000000000000000000000011", amount: "1000000000000"}
venues:
  - {kind: fixed_rate, name: Buy, address: "0x7000000000000000000000000000000000000010", token_in: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", token_out: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", numerator: "500000000", denominator: "1"}
  - {kind: fixed_rate, name: Sell, address: "0x7000000000000000000000000000000000000011", token_in: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", token_out: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", numerator: "2020", denominator: "1000000000000"}
attempts:
  - name: at-floor
    amount: "1000000000"
    min_profit: "5500000"
    max_deviation_bps: 100
    buy:
      venue: "0x7000000000000000000000000000000000000010"
      swap: {amount_in: "1000000000", path: ["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]}
    sell:
      venue: "0x7000000000000000000000000000000000000011"
      swap: {path: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"]}
  - name: above-floor
    amount: "1000000000"
    min_profit: "6000000"
    max_deviation_bps: 100
    buy:
      venue: "0x7000000000000000000000000000000000000010"
      swap: {amount_in: "1000000000", path: ["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"]}
    sell:
      venue: "0x7000000000000000000000000000000000000011"
      swap: {path: ["0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"]}
  - name: raw-payload-on-unknown-venue
    amount: "1000000000"
    max_deviation_bps: 100
    buy:
      venue: "0x7000000000000000000000000000000000000099"
      payload: "0xdeadbeef"
    sell:
      venue: "0x7000000000000000000000000000000000000011"
`

func TestRunFixedScenario(t *testing.T) {
	sc, err := Parse([]byte(fixedScenario))
	require.NoError(t, err)

	report, err := NewSimulator(zaptest.NewLogger(t)).Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "fixed", report.Scenario)

	ok := report.Results[0]
	assert.Equal(t, "at-floor", ok.Name)
	assert.Equal(t, "ok", ok.Kind())
	require.NotNil(t, ok.Outcome)
	assert.Equal(t, uint64(5_500000), ok.Outcome.Profit.Uint64())
	assert.Equal(t, uint64(4_500000), ok.Outcome.Fee.Uint64())
	assert.Equal(t, uint64(5_500000), ok.After[ledger.Holding{Asset: usdc, Holder: engine}].Uint64())

	changes := ok.Changes()
	require.NotEmpty(t, changes)
	var engineChange, lenderChange *BalanceChange
	for i := range changes {
		switch changes[i].Holding {
		case ledger.Holding{Asset: usdc, Holder: engine}:
			engineChange = &changes[i]
		case ledger.Holding{Asset: usdc, Holder: lender}:
			lenderChange = &changes[i]
		}
	}
	require.NotNil(t, engineChange)
	assert.True(t, engineChange.Before.IsZero())
	require.NotNil(t, lenderChange)
	assert.Equal(t, uint64(1_000_004_500000), lenderChange.After.Uint64())

	floor := report.Results[1]
	assert.Equal(t, "profit_below_floor", floor.Kind())
	assert.ErrorIs(t, floor.Err, types.ErrProfitBelowFloor)
	assert.Nil(t, floor.Outcome)
	assert.Equal(t, floor.Before, floor.After)
	assert.Empty(t, floor.Changes())

	unknown := report.Results[2]
	assert.Equal(t, "venue", unknown.Kind())
	assert.Equal(t, unknown.Before, unknown.After)

	assert.Equal(t, "engine", report.HolderName(engine))
	assert.Equal(t, "lender", report.HolderName(lender))
	assert.Equal(t, usdc.Hex(), report.HolderName(usdc))
}

func TestRunExampleScenario(t *testing.T) {
	sc, err := Load("../examples/scenarios/uniswap_vs_fixed.yaml")
	require.NoError(t, err)

	report, err := NewSimulator(zaptest.NewLogger(t)).Run(context.Background(), sc)
	require.NoError(t, err)

	var kinds []string
	for _, r := range report.Results {
		kinds = append(kinds, r.Kind())
		if r.Err != nil {
			assert.Equal(t, r.Before, r.After, r.Name)
		}
	}
	assert.Equal(t, []string{
		"authorization",
		"profit_below_floor",
		"deviation_exceeded",
		"oracle",
		"ok",
		"insufficient_proceeds",
	}, kinds)

	profitable := report.Results[4].Outcome
	require.NotNil(t, profitable)
	assert.Equal(t, uint64(64_354268), profitable.Profit.Uint64())
	assert.Equal(t, uint64(79), profitable.DeviationBps)
	assert.Equal(t, "4960273038901078125", profitable.QuoteObtained.Dec())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "UnknownField",
			yaml:    "name: x\nsurprise: 1\n",
			wantErr: "failed to decode scenario",
		},
		{
			name:    "Empty",
			yaml:    "name: x\n",
			wantErr: "at least one attempt is required",
		},
		{
			name:    "NoOracle",
			yaml:    "name: x\n",
			wantErr: "oracle: rate or error must be specified",
		},
		{
			name:    "UnknownVenueKind",
			yaml:    "venues:\n  - {kind: curve, address: \"0x7000000000000000000000000000000000000010\"}\n",
			wantErr: `unknown kind "curve"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLegInstruction(t *testing.T) {
	leg := LegSpec{Venue: "0x7000000000000000000000000000000000000010", Payload: "0xdeadbeef", Swap: &SwapSpec{}}
	_, err := leg.Instruction(engine)
	assert.ErrorContains(t, err, "exclusive")

	leg = LegSpec{Venue: "0x7000000000000000000000000000000000000010", Payload: "0xzz"}
	_, err = leg.Instruction(engine)
	assert.ErrorContains(t, err, "invalid payload")

	leg = LegSpec{Venue: "0x7000000000000000000000000000000000000010", Swap: &SwapSpec{Path: []string{usdc.Hex()}}}
	_, err = leg.Instruction(engine)
	assert.ErrorContains(t, err, "at least two tokens")

	leg = LegSpec{Venue: "0x7000000000000000000000000000000000000010", Swap: &SwapSpec{Path: []string{usdc.Hex(), weth.Hex()}}}
	instr, err := leg.Instruction(engine)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x7000000000000000000000000000000000000010"), instr.Venue)
	assert.NotEmpty(t, instr.Payload)

	_, err = (&AttemptSpec{}).Request()
	assert.ErrorContains(t, err, "amount must be specified")
}
