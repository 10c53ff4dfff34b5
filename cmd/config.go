package cmd

import (
	"fmt"
	"os"

	"github.com/michaelpento.lv/flasharb/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the engine configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the config file, apply environment overrides and validate it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		engine, err := cfg.Engine.Arbitrage(common.HexToAddress(cfg.Lender.Address))
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "configuration is valid")
		fmt.Fprintf(w, "  engine  %s\n", engine.Address.Hex())
		fmt.Fprintf(w, "  owner   %s\n", engine.Owner.Hex())
		fmt.Fprintf(w, "  lender  %s (%d bps)\n", engine.LendingFacility.Hex(), cfg.Lender.PremiumBps)
		fmt.Fprintf(w, "  pair    %s/%s (%s)\n", engine.BaseAsset.Hex(), engine.QuoteAsset.Hex(), engine.RateConvention)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init FILE",
	Short: "Write a configuration file with default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil {
			return fmt.Errorf("%s already exists", args[0])
		}
		if err := config.Save(config.Default(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configInitCmd)
}
