package fixedrate

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config describes a one-directional market quoting out = in * Numerator / Denominator
type Config struct {
	Name        string
	Address     common.Address
	TokenIn     common.Address
	TokenOut    common.Address
	Numerator   *uint256.Int
	Denominator *uint256.Int
}

// Router fills swapExactTokensForTokens calls at a fixed rate out of its
// own inventory.
type Router struct {
	cfg    Config
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewRouter creates a fixed rate venue
func NewRouter(cfg Config, l ledger.Ledger, logger *zap.Logger) (*Router, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("router address cannot be zero")
	}
	if cfg.TokenIn == cfg.TokenOut {
		return nil, fmt.Errorf("token in and token out must differ")
	}
	if cfg.Numerator == nil || cfg.Denominator == nil || cfg.Denominator.IsZero() {
		return nil, fmt.Errorf("rate must have a non-zero denominator")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "FixedRate"
	}
	return &Router{cfg: cfg, ledger: l, logger: logger}, nil
}

// GetName returns the venue name
func (r *Router) GetName() string {
	return r.cfg.Name
}

// Address returns the venue address
func (r *Router) Address() common.Address {
	return r.cfg.Address
}

// Quote returns the output for amountIn
func (r *Router) Quote(amountIn *uint256.Int) (*uint256.Int, error) {
	return math.MulDiv(amountIn, r.cfg.Numerator, r.cfg.Denominator)
}

// Invoke fills a swapExactTokensForTokens payload for caller
func (r *Router) Invoke(ctx context.Context, caller common.Address, payload []byte) ([]byte, error) {
	params, err := uniswap.DecodeSwap(payload)
	if err != nil {
		return nil, err
	}
	if len(params.Path) != 2 || params.TokenIn() != r.cfg.TokenIn || params.TokenOut() != r.cfg.TokenOut {
		return nil, fmt.Errorf("%s: unsupported path", r.cfg.Name)
	}

	amountIn := params.AmountIn
	if amountIn.IsZero() {
		if amountIn, err = r.ledger.Allowance(ctx, r.cfg.TokenIn, caller, r.cfg.Address); err != nil {
			return nil, fmt.Errorf("failed to read allowance: %w", err)
		}
	}

	amountOut, err := r.Quote(amountIn)
	if err != nil {
		return nil, err
	}
	if amountOut.Lt(params.AmountOutMin) {
		return nil, fmt.Errorf("%w: got %s, want at least %s",
			uniswap.ErrInsufficientOutputAmount, amountOut.Dec(), params.AmountOutMin.Dec())
	}

	if err := r.ledger.TransferFrom(ctx, r.cfg.TokenIn, r.cfg.Address, caller, r.cfg.Address, amountIn); err != nil {
		return nil, fmt.Errorf("%s: failed to pull input: %w", r.cfg.Name, err)
	}
	if err := r.ledger.Transfer(ctx, r.cfg.TokenOut, r.cfg.Address, params.To, amountOut); err != nil {
		return nil, fmt.Errorf("%s: failed to pay out: %w", r.cfg.Name, err)
	}

	r.logger.Debug("Fixed rate fill",
		zap.String("venue", r.cfg.Name),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", amountOut.Dec()))

	return uniswap.EncodeAmounts([]*uint256.Int{amountIn, amountOut})
}
