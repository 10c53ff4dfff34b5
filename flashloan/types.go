package flashloan

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ProviderConfig contains configuration for flash loan providers
type ProviderConfig struct {
	ContractAddress   common.Address
	MinLoanAmount     *uint256.Int // nil means no minimum
	MaxLoanAmount     *uint256.Int // nil means no absolute cap
	MaxLoanPercentage uint8        // Share of pool liquidity that may be lent, 1-100
	PremiumBps        uint64       // In basis points (1 = 0.01%)
}

// Validate checks the provider configuration
func (c *ProviderConfig) Validate() error {
	if c.ContractAddress == (common.Address{}) {
		return fmt.Errorf("contract address cannot be zero")
	}
	if c.MaxLoanPercentage == 0 || c.MaxLoanPercentage > 100 {
		return fmt.Errorf("max loan percentage must be between 1 and 100, got %d", c.MaxLoanPercentage)
	}
	if c.PremiumBps > 10000 {
		return fmt.Errorf("premium cannot exceed 10000 bps, got %d", c.PremiumBps)
	}
	if c.MinLoanAmount != nil && c.MaxLoanAmount != nil && c.MinLoanAmount.Gt(c.MaxLoanAmount) {
		return fmt.Errorf("min loan amount %s exceeds max loan amount %s", c.MinLoanAmount.Dec(), c.MaxLoanAmount.Dec())
	}
	return nil
}
