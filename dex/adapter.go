package dex

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// SwapAdapter executes trade legs on behalf of one account and measures
// what each leg actually delivered.
type SwapAdapter struct {
	ledger   ledger.Ledger
	registry *Registry
	account  common.Address
	logger   *zap.Logger
}

// NewSwapAdapter creates a swap adapter trading from account
func NewSwapAdapter(l ledger.Ledger, registry *Registry, account common.Address, logger *zap.Logger) (*SwapAdapter, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if account == (common.Address{}) {
		return nil, fmt.Errorf("account cannot be zero")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &SwapAdapter{
		ledger:   l,
		registry: registry,
		account:  account,
		logger:   logger,
	}, nil
}

// Swap grants the venue exactly amountIn of assetIn, runs the payload and
// returns the increase in the account's assetOut balance. The venue's own
// return value is ignored.
func (a *SwapAdapter) Swap(ctx context.Context, instr types.SwapInstruction, assetIn common.Address, amountIn *uint256.Int, assetOut common.Address) (*uint256.Int, error) {
	venue, err := a.registry.Resolve(instr.Venue)
	if err != nil {
		return nil, err
	}

	before, err := a.ledger.BalanceOf(ctx, assetOut, a.account)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read balance before swap: %w", types.ErrVenueFailure, err)
	}

	if err := a.ledger.Approve(ctx, assetIn, a.account, instr.Venue, amountIn); err != nil {
		return nil, fmt.Errorf("%w: failed to approve venue: %w", types.ErrVenueFailure, err)
	}

	ret, err := a.invoke(ctx, venue, instr.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrVenueFailure, instr.Venue.Hex(), err)
	}

	// Leftover allowance must not outlive the leg
	if err := a.ledger.Approve(ctx, assetIn, a.account, instr.Venue, new(uint256.Int)); err != nil {
		return nil, fmt.Errorf("%w: failed to revoke approval: %w", types.ErrVenueFailure, err)
	}

	after, err := a.ledger.BalanceOf(ctx, assetOut, a.account)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read balance after swap: %w", types.ErrVenueFailure, err)
	}

	if after.Lt(before) {
		return nil, fmt.Errorf("%w: %s balance decreased from %s to %s",
			types.ErrVenueFailure, assetOut.Hex(), before.Dec(), after.Dec())
	}
	received := new(uint256.Int).Sub(after, before)
	if received.IsZero() {
		return nil, fmt.Errorf("%w: %s delivered nothing", types.ErrVenueFailure, instr.Venue.Hex())
	}

	a.logger.Debug("Swap leg executed",
		zap.Stringer("venue", instr.Venue),
		zap.Stringer("asset_in", assetIn),
		zap.String("amount_in", amountIn.Dec()),
		zap.Stringer("asset_out", assetOut),
		zap.String("received", received.Dec()),
		zap.Int("return_data_len", len(ret)))

	return received, nil
}

// invoke runs the venue, converting a panic into an error
func (a *SwapAdapter) invoke(ctx context.Context, venue Venue, payload []byte) (ret []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("venue panicked: %v", r)
		}
	}()
	return venue.Invoke(ctx, a.account, payload)
}
