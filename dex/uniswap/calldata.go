package uniswap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const RouterABI = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}]`

const swapMethod = "swapExactTokensForTokens"

var routerABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse UniswapV2Router ABI: %v", err))
	}
	routerABI = parsed
}

// SwapParams represents the arguments of swapExactTokensForTokens
type SwapParams struct {
	AmountIn     *uint256.Int // Zero means the full allowance granted to the router
	AmountOutMin *uint256.Int
	Path         []common.Address
	To           common.Address
	Deadline     *uint256.Int // Unix seconds
}

// TokenIn returns the first token of the path
func (p *SwapParams) TokenIn() common.Address {
	return p.Path[0]
}

// TokenOut returns the last token of the path
func (p *SwapParams) TokenOut() common.Address {
	return p.Path[len(p.Path)-1]
}

// EncodeSwapExactTokensForTokens encodes parameters for swapExactTokensForTokens
func EncodeSwapExactTokensForTokens(params *SwapParams) ([]byte, error) {
	if params == nil {
		return nil, fmt.Errorf("params cannot be nil")
	}
	if len(params.Path) < 2 {
		return nil, fmt.Errorf("invalid path")
	}

	return routerABI.Pack(swapMethod,
		bigOrZero(params.AmountIn),
		bigOrZero(params.AmountOutMin),
		params.Path,
		params.To,
		bigOrZero(params.Deadline),
	)
}

// DecodeSwap decodes swapExactTokensForTokens calldata
func DecodeSwap(data []byte) (*SwapParams, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid data length")
	}

	// Decode method signature
	method, err := routerABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to decode method: %w", err)
	}
	if method.Name != swapMethod {
		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}

	// Decode parameters
	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}

	path, ok := params["path"].([]common.Address)
	if !ok || len(path) < 2 {
		return nil, fmt.Errorf("invalid path")
	}
	to, ok := params["to"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid to address")
	}

	amountIn, err := uintParam(params, "amountIn")
	if err != nil {
		return nil, err
	}
	amountOutMin, err := uintParam(params, "amountOutMin")
	if err != nil {
		return nil, err
	}
	deadline, err := uintParam(params, "deadline")
	if err != nil {
		return nil, err
	}

	return &SwapParams{
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Path:         path,
		To:           to,
		Deadline:     deadline,
	}, nil
}

// EncodeAmounts packs the router's return value
func EncodeAmounts(amounts []*uint256.Int) ([]byte, error) {
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		out[i] = a.ToBig()
	}
	return routerABI.Methods[swapMethod].Outputs.Pack(out)
}

// DecodeAmounts unpacks the router's return value
func DecodeAmounts(data []byte) ([]*uint256.Int, error) {
	values, err := routerABI.Methods[swapMethod].Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode amounts: %w", err)
	}
	raw, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid amounts")
	}

	amounts := make([]*uint256.Int, len(raw))
	for i, a := range raw {
		if amounts[i], err = math.FromBig(a); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

func uintParam(params map[string]interface{}, name string) (*uint256.Int, error) {
	v, ok := params[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return math.FromBig(v)
}

func bigOrZero(x *uint256.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x.ToBig()
}
