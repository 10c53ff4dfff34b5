package cmd

import (
	"fmt"
	"io"

	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scenarioFile string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an arbitrage scenario against an in-memory ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		sc, err := simulator.Load(scenarioFile)
		if err != nil {
			return err
		}

		report, err := simulator.NewSimulator(log).Run(cmd.Context(), sc)
		if err != nil {
			log.Error("Simulation failed", zap.String("scenario", scenarioFile), zap.Error(err))
			return err
		}

		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario YAML file")
	_ = simulateCmd.MarkFlagRequired("scenario")
}

func printReport(w io.Writer, report *simulator.Report) {
	format := func(asset common.Address, x *uint256.Int) string {
		switch asset {
		case report.Engine.BaseAsset:
			return math.FormatUnits(x, report.Engine.BaseDecimals)
		case report.Engine.QuoteAsset:
			return math.FormatUnits(x, report.Engine.QuoteDecimals)
		default:
			return x.Dec()
		}
	}
	base := report.Engine.BaseAsset

	fmt.Fprintf(w, "Scenario %s\n", report.Scenario)
	for i, r := range report.Results {
		fmt.Fprintf(w, "[%d] %-24s %s\n", i+1, r.Name, r.Kind())
		if r.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", r.Err)
			continue
		}

		o := r.Outcome
		fmt.Fprintf(w, "    profit %s  fee %s  deviation %d bps\n",
			format(base, o.Profit), format(base, o.Fee), o.DeviationBps)
		fmt.Fprintf(w, "    bought %s, sold back for %s\n",
			format(report.Engine.QuoteAsset, o.QuoteObtained), format(base, o.BaseReturned))
		for _, c := range r.Changes() {
			fmt.Fprintf(w, "    %-44s %s  %s -> %s\n",
				report.HolderName(c.Holding.Holder),
				c.Holding.Asset.Hex()[:10],
				format(c.Holding.Asset, c.Before),
				format(c.Holding.Asset, c.After))
		}
	}
}
