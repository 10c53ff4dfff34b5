package cmd

import (
	"fmt"
	stdmath "math"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var swapFlags struct {
	amountIn string
	minOut   string
	path     []string
	to       string
	deadline uint64
}

var calldataCmd = &cobra.Command{
	Use:   "calldata",
	Short: "Build and inspect swap leg payloads",
}

var calldataSwapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Encode a swapExactTokensForTokens payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		amountIn, err := math.ParseUnits(swapFlags.amountIn, 0)
		if err != nil {
			return fmt.Errorf("amount-in: %w", err)
		}
		minOut, err := math.ParseUnits(swapFlags.minOut, 0)
		if err != nil {
			return fmt.Errorf("min-out: %w", err)
		}
		if len(swapFlags.path) < 2 {
			return fmt.Errorf("path needs at least two tokens")
		}
		path := make([]common.Address, len(swapFlags.path))
		for i, p := range swapFlags.path {
			if path[i], err = config.ParseAddress(fmt.Sprintf("path[%d]", i), p); err != nil {
				return err
			}
		}
		to, err := config.ParseAddress("to", swapFlags.to)
		if err != nil {
			return err
		}
		deadline := swapFlags.deadline
		if deadline == 0 {
			deadline = stdmath.MaxUint64
		}

		payload, err := uniswap.EncodeSwapExactTokensForTokens(&uniswap.SwapParams{
			AmountIn:     amountIn,
			AmountOutMin: minOut,
			Path:         path,
			To:           to,
			Deadline:     uint256.NewInt(deadline),
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(payload))
		return nil
	},
}

var calldataDecodeCmd = &cobra.Command{
	Use:   "decode PAYLOAD",
	Short: "Decode a swapExactTokensForTokens payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		params, err := uniswap.DecodeSwap(payload)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "amountIn:     %s\n", params.AmountIn.Dec())
		fmt.Fprintf(w, "amountOutMin: %s\n", params.AmountOutMin.Dec())
		for i, p := range params.Path {
			fmt.Fprintf(w, "path[%d]:      %s\n", i, p.Hex())
		}
		fmt.Fprintf(w, "to:           %s\n", params.To.Hex())
		fmt.Fprintf(w, "deadline:     %s\n", params.Deadline.Dec())
		return nil
	},
}

func init() {
	f := calldataSwapCmd.Flags()
	f.StringVar(&swapFlags.amountIn, "amount-in", "0", "input amount in base units, 0 spends the whole allowance")
	f.StringVar(&swapFlags.minOut, "min-out", "0", "minimum output in base units")
	f.StringSliceVar(&swapFlags.path, "path", nil, "comma separated token path")
	f.StringVar(&swapFlags.to, "to", "", "recipient, normally the engine address")
	f.Uint64Var(&swapFlags.deadline, "deadline", 0, "unix deadline, 0 for none")
	_ = calldataSwapCmd.MarkFlagRequired("path")
	_ = calldataSwapCmd.MarkFlagRequired("to")

	calldataCmd.AddCommand(calldataSwapCmd, calldataDecodeCmd)
}
