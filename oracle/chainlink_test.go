package oracle

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var ethUsdFeed = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

type mockAggregator struct {
	t        *testing.T
	abi      abi.ABI
	decimals uint8
	answer   *big.Int
	err      error
	calls    map[string]*int32
}

func newMockAggregator(t *testing.T, decimals uint8, answer *big.Int) *mockAggregator {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	require.NoError(t, err)
	return &mockAggregator{
		t:        t,
		abi:      parsed,
		decimals: decimals,
		answer:   answer,
		calls:    map[string]*int32{"decimals": new(int32), "latestRoundData": new(int32), "description": new(int32)},
	}
}

func (m *mockAggregator) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	require.Equal(m.t, ethUsdFeed, *msg.To)

	method, err := m.abi.MethodById(msg.Data[:4])
	require.NoError(m.t, err)
	atomic.AddInt32(m.calls[method.Name], 1)

	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(m.decimals)
	case "description":
		return method.Outputs.Pack("ETH / USD")
	default:
		round, _ := new(big.Int).SetString("110680464442257320247", 10)
		return method.Outputs.Pack(round, m.answer, big.NewInt(1700000000), big.NewInt(1700000012), round)
	}
}

func (m *mockAggregator) count(method string) int32 {
	return atomic.LoadInt32(m.calls[method])
}

func newTestReader(t *testing.T, caller ContractCaller) *FeedReader {
	t.Helper()
	r, err := NewFeedReader(caller, DefaultReaderConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestFeedReader(t *testing.T) {
	ctx := context.Background()

	t.Run("LatestRate", func(t *testing.T) {
		agg := newMockAggregator(t, 8, big.NewInt(3000_12345678))
		o, err := NewChainlinkOracle(newTestReader(t, agg), ethUsdFeed)
		require.NoError(t, err)
		assert.Equal(t, ethUsdFeed, o.Feed())

		rate, err := o.LatestRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3000_12345678), rate.Value.Uint64())
		assert.Equal(t, int64(1700000012), rate.UpdatedAt.Unix())
		assert.Equal(t, "110680464442257320247", rate.Round.String())

		_, err = o.LatestRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), agg.count("decimals"), "decimals must be cached")
		assert.Equal(t, int32(2), agg.count("latestRoundData"))
	})

	t.Run("NormalizesDecimals", func(t *testing.T) {
		answer, _ := new(big.Int).SetString("3000123456789000000000", 10) // 18 decimals
		rate, err := newTestReader(t, newMockAggregator(t, 18, answer)).LatestRate(ctx, ethUsdFeed)
		require.NoError(t, err)
		assert.Equal(t, uint64(3000_12345678), rate.Value.Uint64())

		rate, err = newTestReader(t, newMockAggregator(t, 6, big.NewInt(3000_123456))).LatestRate(ctx, ethUsdFeed)
		require.NoError(t, err)
		assert.Equal(t, uint64(3000_12345600), rate.Value.Uint64())
	})

	t.Run("NonPositiveAnswer", func(t *testing.T) {
		for _, answer := range []*big.Int{big.NewInt(0), big.NewInt(-5)} {
			_, err := newTestReader(t, newMockAggregator(t, 8, answer)).LatestRate(ctx, ethUsdFeed)
			assert.Error(t, err)
		}
	})

	t.Run("CallError", func(t *testing.T) {
		agg := newMockAggregator(t, 8, big.NewInt(1))
		agg.err = errors.New("connection refused")
		_, err := newTestReader(t, agg).LatestRate(ctx, ethUsdFeed)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("Description", func(t *testing.T) {
		desc, err := newTestReader(t, newMockAggregator(t, 8, big.NewInt(1))).Description(ctx, ethUsdFeed)
		require.NoError(t, err)
		assert.Equal(t, "ETH / USD", desc)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		r, err := NewFeedReader(newMockAggregator(t, 8, big.NewInt(1)), ReaderConfig{RequestsPerSecond: 0.001, BurstSize: 1}, zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = r.Decimals(ctx, ethUsdFeed)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = r.LatestRoundData(cctx, ethUsdFeed)
		assert.ErrorContains(t, err, "rate limit")
	})
}

func TestNewFeedReaderValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, err := NewFeedReader(nil, DefaultReaderConfig(), logger)
	assert.Error(t, err)
	_, err = NewFeedReader(newMockAggregator(t, 8, big.NewInt(1)), ReaderConfig{}, logger)
	assert.Error(t, err)

	_, err = NewChainlinkOracle(nil, ethUsdFeed)
	assert.Error(t, err)
}
