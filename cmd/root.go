package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "Flash loan arbitrage engine",
	Long: `flasharb borrows an asset with a flash loan, buys on one venue, checks the
fill against a price oracle, sells on another venue and repays the loan in
one all-or-nothing unit of work.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flasharb.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(simulateCmd, calldataCmd, oracleCmd, configCmd)
}

func initConfig() {
	envErr := config.LoadEnv()
	if !debug {
		debug, _ = strconv.ParseBool(os.Getenv(config.EnvDebug))
	}

	log := utils.InitLogger(debug)
	if envErr != nil {
		log.Warn("Failed to load .env file", zap.Error(envErr))
	}
}
