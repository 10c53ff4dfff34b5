package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AggregatorV3ABI covers the read methods of a Chainlink price feed
const AggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig configures a FeedReader
type ReaderConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	CacheSize         int
}

// DefaultReaderConfig returns conservative defaults for public RPC endpoints
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CacheSize:         128,
	}
}

// RoundData is the raw result of latestRoundData
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// FeedReader reads Chainlink aggregator feeds through a rate limited caller
type FeedReader struct {
	caller   ContractCaller
	abi      abi.ABI
	limiter  *rate.Limiter
	decimals *lru.Cache
	logger   *zap.Logger
}

// NewFeedReader creates a new feed reader
func NewFeedReader(caller ContractCaller, cfg ReaderConfig, logger *zap.Logger) (*FeedReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultReaderConfig().CacheSize
	}

	parsedABI, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decimals cache: %w", err)
	}

	return &FeedReader{
		caller:   caller,
		abi:      parsedABI,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		decimals: cache,
		logger:   logger,
	}, nil
}

// Decimals returns the feed precision, cached per feed
func (r *FeedReader) Decimals(ctx context.Context, feed common.Address) (uint8, error) {
	if v, ok := r.decimals.Get(feed); ok {
		return v.(uint8), nil
	}

	out, err := r.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("invalid decimals response from %s", feed.Hex())
	}

	r.decimals.Add(feed, dec)
	return dec, nil
}

// Description returns the feed's pair description, e.g. "ETH / USD"
func (r *FeedReader) Description(ctx context.Context, feed common.Address) (string, error) {
	out, err := r.call(ctx, feed, "description")
	if err != nil {
		return "", err
	}
	desc, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("invalid description response from %s", feed.Hex())
	}
	return desc, nil
}

// LatestRoundData returns the raw latest round of a feed
func (r *FeedReader) LatestRoundData(ctx context.Context, feed common.Address) (*RoundData, error) {
	out, err := r.call(ctx, feed, "latestRoundData")
	if err != nil {
		return nil, err
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("invalid latestRoundData response from %s", feed.Hex())
	}

	round := &RoundData{}
	for i, dst := range []**big.Int{&round.RoundID, &round.Answer, &round.StartedAt, &round.UpdatedAt, &round.AnsweredInRound} {
		v, ok := out[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("invalid latestRoundData field %d from %s", i, feed.Hex())
		}
		*dst = v
	}
	return round, nil
}

// LatestRate returns the feed answer normalized to RateDecimals
func (r *FeedReader) LatestRate(ctx context.Context, feed common.Address) (Rate, error) {
	dec, err := r.Decimals(ctx, feed)
	if err != nil {
		return Rate{}, err
	}
	round, err := r.LatestRoundData(ctx, feed)
	if err != nil {
		return Rate{}, err
	}
	if round.Answer.Sign() <= 0 {
		return Rate{}, fmt.Errorf("feed %s reported non-positive answer %s", feed.Hex(), round.Answer)
	}

	answer, err := math.FromBig(round.Answer)
	if err != nil {
		return Rate{}, err
	}
	value, err := normalize(answer, dec)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to normalize answer from %s: %w", feed.Hex(), err)
	}

	r.logger.Debug("Feed read",
		zap.Stringer("feed", feed),
		zap.String("answer", round.Answer.String()),
		zap.Uint8("decimals", dec),
		zap.String("rate", value.Dec()))

	return Rate{
		Value:     value,
		UpdatedAt: time.Unix(round.UpdatedAt.Int64(), 0),
		Round:     round.RoundID,
	}, nil
}

func (r *FeedReader) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	callData, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &feed,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, feed.Hex(), err)
	}

	out, err := r.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, feed.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s response from %s", method, feed.Hex())
	}
	return out, nil
}

// normalize rescales a value with dec decimals to RateDecimals
func normalize(v *uint256.Int, dec uint8) (*uint256.Int, error) {
	switch {
	case dec == RateDecimals:
		return v, nil
	case dec > RateDecimals:
		scale, err := math.Pow10(dec - RateDecimals)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Div(v, scale), nil
	default:
		scale, err := math.Pow10(RateDecimals - dec)
		if err != nil {
			return nil, err
		}
		return math.Mul(v, scale)
	}
}

// ChainlinkOracle binds a FeedReader to one feed
type ChainlinkOracle struct {
	reader *FeedReader
	feed   common.Address
}

var _ FeedSource = (*ChainlinkOracle)(nil)

// NewChainlinkOracle creates a PriceOracle backed by feed
func NewChainlinkOracle(reader *FeedReader, feed common.Address) (*ChainlinkOracle, error) {
	if reader == nil {
		return nil, fmt.Errorf("feed reader cannot be nil")
	}
	if feed == (common.Address{}) {
		return nil, fmt.Errorf("feed address cannot be zero")
	}
	return &ChainlinkOracle{reader: reader, feed: feed}, nil
}

// Feed returns the aggregator address
func (o *ChainlinkOracle) Feed() common.Address {
	return o.feed
}

// LatestRate returns the feed's latest answer at RateDecimals
func (o *ChainlinkOracle) LatestRate(ctx context.Context) (Rate, error) {
	return o.reader.LatestRate(ctx, o.feed)
}
