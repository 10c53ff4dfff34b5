package dex

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Venue represents a trading venue reachable through an opaque call
type Venue interface {
	// Address returns the venue's call target and ledger account
	Address() common.Address

	// Invoke executes payload on behalf of caller. The venue may pull funds
	// the caller approved and pay out to any holder. The returned data is
	// informational only.
	Invoke(ctx context.Context, caller common.Address, payload []byte) ([]byte, error)
}

// Named is implemented by venues that report a display name
type Named interface {
	GetName() string
}
