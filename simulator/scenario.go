package simulator

import (
	"fmt"
	stdmath "math"
	"os"
	"strings"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v2"
)

// Venue kinds
const (
	KindUniswap   = "uniswap"
	KindFixedRate = "fixed_rate"
)

// Scenario is a self-contained arbitrage setup. All amounts are decimal
// strings in token base units; oracle rates are human readable.
type Scenario struct {
	Name     string              `yaml:"name"`
	Engine   config.EngineConfig `yaml:"engine"`
	Lender   config.LenderConfig `yaml:"lender"`
	Oracle   OracleSpec          `yaml:"oracle"`
	Balances []BalanceSpec       `yaml:"balances"`
	Venues   []VenueSpec         `yaml:"venues"`
	Attempts []AttemptSpec       `yaml:"attempts"`
}

type OracleSpec struct {
	Rate  string `yaml:"rate"`
	Error string `yaml:"error"`
}

type BalanceSpec struct {
	Asset  string `yaml:"asset"`
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

// VenueSpec describes a uniswap router with pairs or a fixed rate market
type VenueSpec struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`

	// uniswap
	Factory string     `yaml:"factory"`
	Pairs   []PairSpec `yaml:"pairs"`

	// fixed_rate
	TokenIn     string `yaml:"token_in"`
	TokenOut    string `yaml:"token_out"`
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
}

type PairSpec struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

// AttemptSpec is one ExecuteArbitrage call. OracleRate and OracleError
// change the oracle before the call.
type AttemptSpec struct {
	Name            string  `yaml:"name"`
	Caller          string  `yaml:"caller"`
	Amount          string  `yaml:"amount"`
	MinProfit       string  `yaml:"min_profit"`
	MaxDeviationBps uint64  `yaml:"max_deviation_bps"`
	OracleRate      string  `yaml:"oracle_rate"`
	OracleError     string  `yaml:"oracle_error"`
	Buy             LegSpec `yaml:"buy"`
	Sell            LegSpec `yaml:"sell"`
}

// LegSpec gives a leg's payload as raw hex or as a swap to encode
type LegSpec struct {
	Venue   string    `yaml:"venue"`
	Payload string    `yaml:"payload"`
	Swap    *SwapSpec `yaml:"swap"`
}

// SwapSpec encodes swapExactTokensForTokens. To defaults to the engine and
// a zero deadline means no deadline.
type SwapSpec struct {
	AmountIn     string   `yaml:"amount_in"`
	AmountOutMin string   `yaml:"amount_out_min"`
	Path         []string `yaml:"path"`
	To           string   `yaml:"to"`
	Deadline     uint64   `yaml:"deadline"`
}

// Load reads and validates a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{
		Engine: config.Default().Engine,
		Lender: config.Default().Lender,
	}
	if err := yaml.UnmarshalStrict(data, sc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks the static parts of a scenario
func (s *Scenario) Validate() error {
	var errors []string

	if err := s.Engine.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("engine: %v", err))
	}
	if err := s.Lender.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("lender: %v", err))
	}
	if s.Oracle.Rate == "" && s.Oracle.Error == "" {
		errors = append(errors, "oracle: rate or error must be specified")
	}
	for i, v := range s.Venues {
		switch v.Kind {
		case KindUniswap, KindFixedRate:
		default:
			errors = append(errors, fmt.Sprintf("venues[%d]: unknown kind %q", i, v.Kind))
		}
	}
	if len(s.Attempts) == 0 {
		errors = append(errors, "at least one attempt is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid scenario: %s", strings.Join(errors, "; "))
	}
	return nil
}

// Request builds the loan request of an attempt
func (a *AttemptSpec) Request() (types.LoanRequest, error) {
	amount, err := parseAmount("amount", a.Amount)
	if err != nil {
		return types.LoanRequest{}, err
	}
	req := types.LoanRequest{Amount: amount, MaxDeviationBps: a.MaxDeviationBps}
	if a.MinProfit != "" {
		if req.MinProfit, err = parseAmount("min_profit", a.MinProfit); err != nil {
			return types.LoanRequest{}, err
		}
	}
	return req, nil
}

// Instruction builds the swap instruction of a leg. Encoded swaps pay to
// recipient unless they name another address.
func (l *LegSpec) Instruction(recipient common.Address) (types.SwapInstruction, error) {
	venue, err := config.ParseAddress("venue", l.Venue)
	if err != nil {
		return types.SwapInstruction{}, err
	}

	switch {
	case l.Payload != "" && l.Swap != nil:
		return types.SwapInstruction{}, fmt.Errorf("leg on %s: payload and swap are exclusive", l.Venue)
	case l.Payload != "":
		payload, err := hexutil.Decode(l.Payload)
		if err != nil {
			return types.SwapInstruction{}, fmt.Errorf("leg on %s: invalid payload: %w", l.Venue, err)
		}
		return types.SwapInstruction{Venue: venue, Payload: payload}, nil
	case l.Swap != nil:
		params, err := l.Swap.Params(recipient)
		if err != nil {
			return types.SwapInstruction{}, fmt.Errorf("leg on %s: %w", l.Venue, err)
		}
		payload, err := uniswap.EncodeSwapExactTokensForTokens(params)
		if err != nil {
			return types.SwapInstruction{}, err
		}
		return types.SwapInstruction{Venue: venue, Payload: payload}, nil
	default:
		return types.SwapInstruction{Venue: venue}, nil
	}
}

// Params converts the swap description into router call parameters
func (s *SwapSpec) Params(recipient common.Address) (*uniswap.SwapParams, error) {
	amountIn, err := parseOptionalAmount("amount_in", s.AmountIn)
	if err != nil {
		return nil, err
	}
	minOut, err := parseOptionalAmount("amount_out_min", s.AmountOutMin)
	if err != nil {
		return nil, err
	}
	if len(s.Path) < 2 {
		return nil, fmt.Errorf("swap path needs at least two tokens")
	}
	path := make([]common.Address, len(s.Path))
	for i, p := range s.Path {
		if path[i], err = config.ParseAddress(fmt.Sprintf("path[%d]", i), p); err != nil {
			return nil, err
		}
	}
	to := recipient
	if s.To != "" {
		if to, err = config.ParseAddress("to", s.To); err != nil {
			return nil, err
		}
	}
	deadline := s.Deadline
	if deadline == 0 {
		deadline = stdmath.MaxUint64
	}

	return &uniswap.SwapParams{
		AmountIn:     amountIn,
		AmountOutMin: minOut,
		Path:         path,
		To:           to,
		Deadline:     uint256.NewInt(deadline),
	}, nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s must be specified", field)
	}
	v, err := math.ParseUnits(s, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseOptionalAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return parseAmount(field, s)
}
