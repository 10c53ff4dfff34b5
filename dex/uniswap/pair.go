package uniswap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientLiquidity    = errors.New("UniswapV2Library: INSUFFICIENT_LIQUIDITY")
	ErrInsufficientInputAmount  = errors.New("UniswapV2Library: INSUFFICIENT_INPUT_AMOUNT")
	ErrInsufficientOutputAmount = errors.New("UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	ErrExpired                  = errors.New("UniswapV2Router: EXPIRED")
	ErrPairNotFound             = errors.New("UniswapV2: PAIR_NOT_FOUND")
	ErrPairRevisited            = errors.New("UniswapV2Router: PAIR_REVISITED")
)

var (
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)
)

// Pair is a constant product pool whose reserves are the ledger balances of
// its address.
type Pair struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
}

// SortTokens orders two tokens the way pair addresses are derived
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// pairFor calculates the CREATE2 pair address for two tokens
func pairFor(factory common.Address, initCode []byte, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{
		0xff,
	}, factory.Bytes(), salt, initCode)[12:])
}

// GetAmountOut calculates output amount for an input amount with the 0.3% fee
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee, err := math.Mul(amountIn, feeNumerator)
	if err != nil {
		return nil, err
	}
	scaledReserve, err := math.Mul(reserveIn, feeDenominator)
	if err != nil {
		return nil, err
	}
	denominator, err := math.Add(scaledReserve, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return math.MulDiv(amountInWithFee, reserveOut, denominator)
}

func (p *Pair) String() string {
	return fmt.Sprintf("%s/%s@%s", p.Token0.Hex(), p.Token1.Hex(), p.Address.Hex())
}
