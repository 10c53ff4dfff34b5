package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is the settlement environment the engine runs against. Every
// mutation performed with a context obtained inside Atomic belongs to that
// unit of work and is discarded if the unit fails. Collaborators called from
// inside a unit must pass on the context they were given; a fresh context
// is treated as an outside caller and waits until the unit ends.
type Ledger interface {
	// BalanceOf returns the balance of holder in asset
	BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error)

	// Allowance returns how much spender may pull from owner
	Allowance(ctx context.Context, asset, owner, spender common.Address) (*uint256.Int, error)

	// Transfer moves amount of asset from one holder to another
	Transfer(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error

	// Approve sets the allowance of spender over owner's asset
	Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error

	// TransferFrom moves amount on behalf of from, consuming spender's allowance
	TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *uint256.Int) error

	// Atomic runs fn as one unit of work. If fn returns an error or panics,
	// every mutation made through the context handed to fn is reverted.
	// Calls nested inside an open unit revert only their own mutations.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// Holding identifies one balance slot
type Holding struct {
	Asset  common.Address
	Holder common.Address
}
