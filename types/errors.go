package types

import "errors"

// Failure kinds surfaced by the engine. Every error returned from an
// arbitrage attempt wraps exactly one of these.
var (
	ErrUnauthorized         = errors.New("caller is not the owner")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrVenueFailure         = errors.New("venue failure")
	ErrDeviationExceeded    = errors.New("deviation too big")
	ErrOracleUnavailable    = errors.New("oracle unavailable")
	ErrInsufficientProceeds = errors.New("insufficient proceeds")
	ErrProfitBelowFloor     = errors.New("profit below floor")
	ErrRepaymentFailure     = errors.New("repayment failure")
	ErrUnexpectedCallback   = errors.New("unexpected callback")
	ErrLoanUnavailable      = errors.New("loan unavailable")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "authorization"},
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrVenueFailure, "venue"},
	{ErrDeviationExceeded, "deviation_exceeded"},
	{ErrOracleUnavailable, "oracle"},
	{ErrInsufficientProceeds, "insufficient_proceeds"},
	{ErrProfitBelowFloor, "profit_below_floor"},
	{ErrRepaymentFailure, "repayment"},
	{ErrUnexpectedCallback, "unexpected_callback"},
	{ErrLoanUnavailable, "loan"},
}

// KindOf returns a short label for the failure kind wrapped by err, used for
// metrics and reporting. Unclassified errors map to "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
