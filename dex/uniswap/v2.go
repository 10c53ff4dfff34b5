package uniswap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/michaelpento.lv/flasharb/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Contract addresses
var (
	MainnetRouter  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
)

var mainnetInitCode = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")

// RouterConfig configures a V2 router venue
type RouterConfig struct {
	Name     string
	Address  common.Address
	Factory  common.Address
	InitCode []byte
}

// Router is a Uniswap V2 style router venue executing
// swapExactTokensForTokens against pairs held on a ledger.
type Router struct {
	name     string
	address  common.Address
	factory  common.Address
	initCode []byte
	ledger   ledger.Ledger
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.RWMutex
	pairs map[common.Address]*Pair
}

// NewRouter creates a new router venue
func NewRouter(cfg RouterConfig, l ledger.Ledger, logger *zap.Logger) (*Router, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("router address cannot be zero")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	r := &Router{
		name:     cfg.Name,
		address:  cfg.Address,
		factory:  cfg.Factory,
		initCode: cfg.InitCode,
		ledger:   l,
		logger:   logger,
		now:      time.Now,
		pairs:    make(map[common.Address]*Pair),
	}
	if r.name == "" {
		r.name = "UniswapV2"
	}
	if r.factory == (common.Address{}) {
		r.factory = MainnetFactory
	}
	if len(r.initCode) == 0 {
		r.initCode = mainnetInitCode
	}
	return r, nil
}

// GetName returns the exchange name
func (r *Router) GetName() string {
	return r.name
}

// Address returns the router contract address
func (r *Router) Address() common.Address {
	return r.address
}

// CreatePair registers the pair for two tokens and returns its address
func (r *Router) CreatePair(tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, fmt.Errorf("UniswapV2: IDENTICAL_ADDRESSES")
	}
	token0, token1 := SortTokens(tokenA, tokenB)
	addr := r.PairFor(token0, token1)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pairs[addr]; !ok {
		r.pairs[addr] = &Pair{Address: addr, Token0: token0, Token1: token1}
	}
	return addr, nil
}

// AddLiquidity moves reserves from provider into the pair, creating it if needed
func (r *Router) AddLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, amountA, amountB *uint256.Int) error {
	addr, err := r.CreatePair(tokenA, tokenB)
	if err != nil {
		return err
	}
	return r.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := r.ledger.Transfer(ctx, tokenA, provider, addr, amountA); err != nil {
			return fmt.Errorf("failed to deposit %s: %w", tokenA.Hex(), err)
		}
		if err := r.ledger.Transfer(ctx, tokenB, provider, addr, amountB); err != nil {
			return fmt.Errorf("failed to deposit %s: %w", tokenB.Hex(), err)
		}
		return nil
	})
}

// PairFor calculates the pair address for two tokens
func (r *Router) PairFor(tokenA, tokenB common.Address) common.Address {
	return pairFor(r.factory, r.initCode, tokenA, tokenB)
}

// GetReserves returns the reserves of a token pair, ordered as requested
func (r *Router) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*uint256.Int, *uint256.Int, error) {
	addr := r.PairFor(tokenA, tokenB)

	r.mu.RLock()
	_, ok := r.pairs[addr]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenA.Hex(), tokenB.Hex())
	}

	reserveA, err := r.ledger.BalanceOf(ctx, tokenA, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	reserveB, err := r.ledger.BalanceOf(ctx, tokenB, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	return reserveA, reserveB, nil
}

// GetAmountsOut walks path hop by hop and returns the amount at each step
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("invalid path length")
	}

	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn.Clone()

	// hops are priced from pre-swap reserves, so each pair may appear once
	seen := make(map[common.Address]struct{}, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		if path[i] == path[i+1] {
			return nil, fmt.Errorf("%w: identical tokens %s", ErrPairRevisited, path[i].Hex())
		}
		pair := r.PairFor(path[i], path[i+1])
		if _, ok := seen[pair]; ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrPairRevisited, path[i].Hex(), path[i+1].Hex())
		}
		seen[pair] = struct{}{}
	}

	// For each pair in path, calculate output amount
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := r.GetReserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if amounts[i+1], err = GetAmountOut(amounts[i], reserveIn, reserveOut); err != nil {
			return nil, err
		}
	}

	return amounts, nil
}

// Invoke executes swapExactTokensForTokens calldata on behalf of caller.
// The input is pulled through the allowance caller granted the router.
func (r *Router) Invoke(ctx context.Context, caller common.Address, payload []byte) ([]byte, error) {
	params, err := DecodeSwap(payload)
	if err != nil {
		return nil, err
	}

	if params.Deadline.Lt(uint256.NewInt(uint64(r.now().Unix()))) {
		return nil, ErrExpired
	}

	amountIn := params.AmountIn
	if amountIn.IsZero() {
		if amountIn, err = r.ledger.Allowance(ctx, params.TokenIn(), caller, r.address); err != nil {
			return nil, fmt.Errorf("failed to read allowance: %w", err)
		}
	}

	amounts, err := r.GetAmountsOut(ctx, amountIn, params.Path)
	if err != nil {
		return nil, err
	}
	if amounts[len(amounts)-1].Lt(params.AmountOutMin) {
		return nil, fmt.Errorf("%w: got %s, want at least %s",
			ErrInsufficientOutputAmount, amounts[len(amounts)-1].Dec(), params.AmountOutMin.Dec())
	}

	firstPair := r.PairFor(params.Path[0], params.Path[1])
	if err := r.ledger.TransferFrom(ctx, params.TokenIn(), r.address, caller, firstPair, amounts[0]); err != nil {
		return nil, fmt.Errorf("UniswapV2: TRANSFER_FAILED: %w", err)
	}

	for i := 0; i < len(params.Path)-1; i++ {
		pair := r.PairFor(params.Path[i], params.Path[i+1])
		to := params.To
		if i < len(params.Path)-2 {
			to = r.PairFor(params.Path[i+1], params.Path[i+2])
		}
		if err := r.ledger.Transfer(ctx, params.Path[i+1], pair, to, amounts[i+1]); err != nil {
			return nil, fmt.Errorf("UniswapV2: TRANSFER_FAILED: %w", err)
		}
	}

	r.logger.Debug("Swap executed",
		zap.String("router", r.name),
		zap.Stringer("caller", caller),
		zap.String("amount_in", amounts[0].Dec()),
		zap.String("amount_out", amounts[len(amounts)-1].Dec()))

	return EncodeAmounts(amounts)
}
