package math

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrOverflow       = errors.New("uint256 overflow")
	ErrUnderflow      = errors.New("uint256 underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// BpsDenominator is the number of basis points in 100%
const BpsDenominator = 10000

// maxPow10 is the largest exponent whose power of ten fits in 256 bits
const maxPow10 = 77

var pow10 [maxPow10 + 1]*uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i <= maxPow10; i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Add returns x + y or ErrOverflow
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x - y or ErrUnderflow when y > x
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrUnderflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x * y or ErrOverflow
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// MulDiv returns floor(x * y / d) using a 512-bit intermediate product
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// AbsDiff returns |x - y|
func AbsDiff(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Sub(y, x)
	}
	return new(uint256.Int).Sub(x, y)
}

// Pow10 returns 10^n
func Pow10(n uint8) (*uint256.Int, error) {
	if n > maxPow10 {
		return nil, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
	}
	return new(uint256.Int).Set(pow10[n]), nil
}

// PercentMul applies a basis point rate with half-up rounding, the way
// lending pools compute premiums.
func PercentMul(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps == 0 {
		return new(uint256.Int), nil
	}
	product, err := Mul(amount, uint256.NewInt(bps))
	if err != nil {
		return nil, err
	}
	product, err = Add(product, uint256.NewInt(BpsDenominator/2))
	if err != nil {
		return nil, err
	}
	return product.Div(product, uint256.NewInt(BpsDenominator)), nil
}

// FromBig converts a non-negative big.Int that fits in 256 bits
func FromBig(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return nil, errors.New("nil value")
	}
	if x.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrUnderflow, x)
	}
	z, overflow := uint256.FromBig(x)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, x)
	}
	return z, nil
}

// ParseUnits converts a human readable amount such as "1000.5" into base
// units of a token with the given precision.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return FromBig(scaled.BigInt())
}

// FormatUnits renders base units as a decimal string with the given precision
func FormatUnits(x *uint256.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).String()
}

// ToFloat64 returns the nearest float64, for metrics only
func ToFloat64(x *uint256.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}
