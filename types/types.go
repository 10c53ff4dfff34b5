package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxDeviationBps is the largest tolerance a request may carry (100%)
const MaxDeviationBps uint64 = 10000

// LoanRequest carries the per-call parameters of one arbitrage attempt
type LoanRequest struct {
	Amount          *uint256.Int // Base asset to borrow, must be non-zero
	MinProfit       *uint256.Int // Profit floor in base units, nil means zero
	MaxDeviationBps uint64       // Allowed oracle deviation in basis points
}

// SwapInstruction describes one trade leg. The payload is forwarded to the
// venue untouched.
type SwapInstruction struct {
	Venue   common.Address
	Payload []byte
}

// ArbitrageOutcome describes a committed, fully repaid arbitrage
type ArbitrageOutcome struct {
	Profit        *uint256.Int
	BuyVenue      common.Address
	SellVenue     common.Address
	LoanAmount    *uint256.Int
	Fee           *uint256.Int
	QuoteObtained *uint256.Int
	BaseReturned  *uint256.Int
	RealizedRate  *uint256.Int
	ReferenceRate *uint256.Int
	DeviationBps  uint64
	Fingerprint   uint64
}

// MinProfitOrZero returns the request floor, treating nil as zero
func (r LoanRequest) MinProfitOrZero() *uint256.Int {
	if r.MinProfit == nil {
		return new(uint256.Int)
	}
	return r.MinProfit
}
