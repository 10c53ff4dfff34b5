package utils

import (
	"errors"
	"fmt"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/holiman/uint256"
)

// ProfitCalculator does the repayment and profit accounting of a flash loan
// round trip. All arithmetic is checked.
type ProfitCalculator struct{}

// NewProfitCalculator creates a new profit calculator
func NewProfitCalculator() *ProfitCalculator {
	return &ProfitCalculator{}
}

// Repayment returns loan + fee
func (p *ProfitCalculator) Repayment(loan, fee *uint256.Int) (*uint256.Int, error) {
	if loan == nil || fee == nil {
		return nil, errors.New("invalid parameters")
	}
	owed, err := math.Add(loan, fee)
	if err != nil {
		return nil, fmt.Errorf("%w: repayment %w", types.ErrInsufficientProceeds, err)
	}
	return owed, nil
}

// NetProfit returns ending - starting - (loan + fee). Funds the account held
// before the loan are never counted as profit.
func (p *ProfitCalculator) NetProfit(starting, ending, loan, fee *uint256.Int) (*uint256.Int, error) {
	if starting == nil || ending == nil {
		return nil, errors.New("invalid parameters")
	}
	owed, err := p.Repayment(loan, fee)
	if err != nil {
		return nil, err
	}

	gained, err := math.Sub(ending, starting)
	if err != nil {
		return nil, fmt.Errorf("%w: balance fell from %s to %s", types.ErrInsufficientProceeds, starting.Dec(), ending.Dec())
	}
	profit, err := math.Sub(gained, owed)
	if err != nil {
		return nil, fmt.Errorf("%w: returned %s, owe %s", types.ErrInsufficientProceeds, gained.Dec(), owed.Dec())
	}
	return profit, nil
}

// CheckFloor fails when profit is below minProfit
func (p *ProfitCalculator) CheckFloor(profit, minProfit *uint256.Int) error {
	if minProfit == nil {
		return nil
	}
	if profit.Lt(minProfit) {
		return fmt.Errorf("%w: profit < min: %s < %s", types.ErrProfitBelowFloor, profit.Dec(), minProfit.Dec())
	}
	return nil
}
