package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RateDecimals is the fixed precision of every oracle rate
const RateDecimals = 8

// ErrNoRate is returned by an oracle that has nothing to report
var ErrNoRate = errors.New("no rate available")

// Rate is a reference exchange rate with RateDecimals of precision
type Rate struct {
	Value     *uint256.Int
	UpdatedAt time.Time
	Round     *big.Int
}

// PriceOracle supplies the reference rate between the base and quote assets
type PriceOracle interface {
	LatestRate(ctx context.Context) (Rate, error)
}

// FeedSource is implemented by oracles bound to one on-chain aggregator
type FeedSource interface {
	Feed() common.Address
}

// StaticOracle reports a rate set by its owner. Used by the simulator and
// tests.
type StaticOracle struct {
	mu   sync.RWMutex
	rate Rate
	err  error
}

// NewStaticOracle creates an oracle reporting value
func NewStaticOracle(value *uint256.Int) *StaticOracle {
	o := &StaticOracle{}
	o.SetRate(value)
	return o
}

// SetRate replaces the reported rate and clears any injected error
func (o *StaticOracle) SetRate(value *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var v *uint256.Int
	if value != nil {
		v = value.Clone()
	}
	o.rate = Rate{Value: v, UpdatedAt: time.Now()}
	o.err = nil
}

// SetError makes every subsequent read fail with err
func (o *StaticOracle) SetError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// LatestRate returns the configured rate
func (o *StaticOracle) LatestRate(_ context.Context) (Rate, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.err != nil {
		return Rate{}, o.err
	}
	if o.rate.Value == nil {
		return Rate{}, ErrNoRate
	}
	return Rate{Value: o.rate.Value.Clone(), UpdatedAt: o.rate.UpdatedAt}, nil
}
