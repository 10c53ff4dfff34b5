package fixedrate

import (
	"context"
	"math"
	"testing"

	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	usdt   = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	venue  = common.HexToAddress("0x5000000000000000000000000000000000000001")
	trader = common.HexToAddress("0x5000000000000000000000000000000000000002")
)

func payload(t *testing.T, amountIn, minOut uint64, path ...common.Address) []byte {
	t.Helper()
	data, err := uniswap.EncodeSwapExactTokensForTokens(&uniswap.SwapParams{
		AmountIn:     uint256.NewInt(amountIn),
		AmountOutMin: uint256.NewInt(minOut),
		Path:         path,
		To:           trader,
		Deadline:     uint256.NewInt(math.MaxUint64),
	})
	require.NoError(t, err)
	return data
}

func TestFixedRateRouter(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemLedger(zaptest.NewLogger(t))
	require.NoError(t, l.Mint(ctx, weth, venue, uint256.NewInt(1_000_000)))
	require.NoError(t, l.Mint(ctx, usdt, trader, uint256.NewInt(1000)))

	// 1 usdt buys 0.5 weth
	router, err := NewRouter(Config{
		Address:     venue,
		TokenIn:     usdt,
		TokenOut:    weth,
		Numerator:   uint256.NewInt(1),
		Denominator: uint256.NewInt(2),
	}, l, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "FixedRate", router.GetName())

	t.Run("Fill", func(t *testing.T) {
		require.NoError(t, l.Approve(ctx, usdt, trader, venue, uint256.NewInt(100)))
		ret, err := router.Invoke(ctx, trader, payload(t, 100, 50, usdt, weth))
		require.NoError(t, err)

		amounts, err := uniswap.DecodeAmounts(ret)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), amounts[1].Uint64())

		bal, err := l.BalanceOf(ctx, weth, trader)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), bal.Uint64())
	})

	t.Run("WrongDirection", func(t *testing.T) {
		_, err := router.Invoke(ctx, trader, payload(t, 10, 0, weth, usdt))
		assert.Error(t, err)
	})

	t.Run("MinOut", func(t *testing.T) {
		require.NoError(t, l.Approve(ctx, usdt, trader, venue, uint256.NewInt(100)))
		_, err := router.Invoke(ctx, trader, payload(t, 100, 51, usdt, weth))
		assert.ErrorIs(t, err, uniswap.ErrInsufficientOutputAmount)
	})

	t.Run("ZeroAmountUsesAllowance", func(t *testing.T) {
		require.NoError(t, l.Approve(ctx, usdt, trader, venue, uint256.NewInt(10)))
		_, err := router.Invoke(ctx, trader, payload(t, 0, 0, usdt, weth))
		require.NoError(t, err)

		bal, err := l.BalanceOf(ctx, weth, trader)
		require.NoError(t, err)
		assert.Equal(t, uint64(55), bal.Uint64())
	})
}

func TestNewRouterValidation(t *testing.T) {
	l := ledger.NewMemLedger(nil)
	logger := zaptest.NewLogger(t)

	_, err := NewRouter(Config{Address: venue, TokenIn: usdt, TokenOut: weth, Numerator: uint256.NewInt(1)}, l, logger)
	assert.Error(t, err)

	_, err = NewRouter(Config{Address: venue, TokenIn: usdt, TokenOut: usdt, Numerator: uint256.NewInt(1), Denominator: uint256.NewInt(1)}, l, logger)
	assert.Error(t, err)

	_, err = NewRouter(Config{TokenIn: usdt, TokenOut: weth, Numerator: uint256.NewInt(1), Denominator: uint256.NewInt(1)}, l, logger)
	assert.Error(t, err)
}
