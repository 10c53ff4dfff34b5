package oracle

import (
	"context"
	"fmt"
	stdmath "math"
	"strings"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/holiman/uint256"
)

// maxTokenDecimals bounds token precision so scale factors stay well inside
// 256 bits
const maxTokenDecimals = 36

// RateConvention states which way round the oracle quotes the pair
type RateConvention int

const (
	// QuotePerBase means the oracle reports whole quote units per whole base unit
	QuotePerBase RateConvention = iota
	// BasePerQuote means the oracle reports whole base units per whole quote unit
	BasePerQuote
)

func (c RateConvention) String() string {
	switch c {
	case QuotePerBase:
		return "quote_per_base"
	case BasePerQuote:
		return "base_per_quote"
	default:
		return fmt.Sprintf("RateConvention(%d)", int(c))
	}
}

// ParseRateConvention parses the configuration form of a convention. The
// empty string selects QuotePerBase.
func ParseRateConvention(s string) (RateConvention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quote_per_base":
		return QuotePerBase, nil
	case "base_per_quote":
		return BasePerQuote, nil
	default:
		return 0, fmt.Errorf("unknown rate convention %q", s)
	}
}

// Verdict is the outcome of a passed price check
type Verdict struct {
	Realized     *uint256.Int
	Reference    *uint256.Int
	DeviationBps uint64
}

// PriceGuard compares the rate realized by a trade against the oracle
type PriceGuard struct {
	oracle     PriceOracle
	convention RateConvention
	baseScale  *uint256.Int
	quoteScale *uint256.Int
	rateScale  *uint256.Int
}

// NewPriceGuard creates a guard for a base/quote pair with the given token
// precisions
func NewPriceGuard(oracle PriceOracle, baseDecimals, quoteDecimals uint8, convention RateConvention) (*PriceGuard, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if baseDecimals > maxTokenDecimals || quoteDecimals > maxTokenDecimals {
		return nil, fmt.Errorf("token decimals cannot exceed %d", maxTokenDecimals)
	}
	if convention != QuotePerBase && convention != BasePerQuote {
		return nil, fmt.Errorf("invalid rate convention %s", convention)
	}

	baseScale, _ := math.Pow10(baseDecimals)
	quoteScale, _ := math.Pow10(quoteDecimals)
	rateScale, _ := math.Pow10(RateDecimals)

	return &PriceGuard{
		oracle:     oracle,
		convention: convention,
		baseScale:  baseScale,
		quoteScale: quoteScale,
		rateScale:  rateScale,
	}, nil
}

// Convention returns the configured rate convention
func (g *PriceGuard) Convention() RateConvention {
	return g.convention
}

// RealizedRate converts a fill of baseSpent for quoteObtained into a rate
// with RateDecimals of precision in the configured convention
func (g *PriceGuard) RealizedRate(baseSpent, quoteObtained *uint256.Int) (*uint256.Int, error) {
	if baseSpent.IsZero() || quoteObtained.IsZero() {
		return nil, fmt.Errorf("cannot price an empty fill")
	}

	num, numScale, den, denScale := quoteObtained, g.baseScale, baseSpent, g.quoteScale
	if g.convention == BasePerQuote {
		num, numScale, den, denScale = baseSpent, g.quoteScale, quoteObtained, g.baseScale
	}

	multiplier, err := math.Mul(numScale, g.rateScale)
	if err != nil {
		return nil, err
	}
	divisor, err := math.Mul(den, denScale)
	if err != nil {
		return nil, err
	}
	return math.MulDiv(num, multiplier, divisor)
}

// DeviationBps returns |realized - reference| * 10000 / reference rounded
// toward zero. Values beyond uint64 saturate.
func DeviationBps(realized, reference *uint256.Int) (uint64, error) {
	if reference.IsZero() {
		return 0, math.ErrDivisionByZero
	}
	dev, err := math.MulDiv(math.AbsDiff(realized, reference), uint256.NewInt(math.BpsDenominator), reference)
	if err != nil || !dev.IsUint64() {
		return stdmath.MaxUint64, nil
	}
	return dev.Uint64(), nil
}

// Check fetches the reference rate and rejects the fill if its deviation
// exceeds maxDeviationBps. A missing or non-positive reference never passes.
func (g *PriceGuard) Check(ctx context.Context, baseSpent, quoteObtained *uint256.Int, maxDeviationBps uint64) (*Verdict, error) {
	ref, err := g.oracle.LatestRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrOracleUnavailable, err)
	}
	if ref.Value == nil || ref.Value.IsZero() {
		return nil, fmt.Errorf("%w: non-positive reference rate", types.ErrOracleUnavailable)
	}

	realized, err := g.RealizedRate(baseSpent, quoteObtained)
	if err != nil {
		return nil, fmt.Errorf("%w: realized rate out of range: %w", types.ErrDeviationExceeded, err)
	}

	dev, err := DeviationBps(realized, ref.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrOracleUnavailable, err)
	}
	if dev > maxDeviationBps {
		return nil, fmt.Errorf("%w: %d > %d bps (realized %s, reference %s)",
			types.ErrDeviationExceeded, dev, maxDeviationBps, realized.Dec(), ref.Value.Dec())
	}

	return &Verdict{
		Realized:     realized,
		Reference:    ref.Value,
		DeviationBps: dev,
	}, nil
}
