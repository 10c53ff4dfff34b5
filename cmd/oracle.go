package cmd

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rpcEndpoint string
	feeds       []string
)

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Read Chainlink price feeds normalized to 8 decimals",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg := config.Default()
		if cfgFile != "" {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
		} else if err := cfg.ApplyEnv(); err != nil {
			return err
		}

		endpoint := rpcEndpoint
		if endpoint == "" {
			endpoint = cfg.Oracle.RPCEndpoint
		}
		if endpoint == "" {
			return fmt.Errorf("an RPC endpoint is required (--rpc or %s)", config.EnvRPCEndpoint)
		}
		targets := feeds
		if len(targets) == 0 && cfg.Engine.PriceOracle != "" {
			targets = []string{cfg.Engine.PriceOracle}
		}
		if len(targets) == 0 {
			return fmt.Errorf("at least one --feed is required")
		}

		client, err := ethclient.DialContext(cmd.Context(), endpoint)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
		}
		defer client.Close()

		reader, err := oracle.NewFeedReader(client, oracle.ReaderConfig{
			RequestsPerSecond: cfg.Oracle.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Oracle.RateLimit.BurstSize,
			CacheSize:         cfg.Oracle.CacheSize,
		}, log)
		if err != nil {
			return err
		}

		for _, f := range targets {
			feed, err := config.ParseAddress("feed", f)
			if err != nil {
				return err
			}
			if err := printFeed(cmd, reader, feed, cfg.Oracle.RateLimit); err != nil {
				log.Warn("Failed to read feed", zap.Stringer("feed", feed), zap.Error(err))
				fmt.Fprintf(cmd.OutOrStdout(), "%s  error: %v\n", feed.Hex(), err)
			}
		}
		return nil
	},
}

func printFeed(cmd *cobra.Command, reader *oracle.FeedReader, feed common.Address, limits config.RateLimitConfig) error {
	ctx := cmd.Context()
	if limits.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.WaitTimeout)
		defer cancel()
	}

	description, err := reader.Description(ctx, feed)
	if err != nil {
		return err
	}
	orc, err := oracle.NewChainlinkOracle(reader, feed)
	if err != nil {
		return err
	}
	rate, err := orc.LatestRate(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s  round %s  updated %s\n",
		feed.Hex(), description,
		math.FormatUnits(rate.Value, oracle.RateDecimals),
		rate.Round, rate.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	return nil
}

func init() {
	oracleCmd.Flags().StringVar(&rpcEndpoint, "rpc", "", "Ethereum JSON-RPC endpoint")
	oracleCmd.Flags().StringSliceVar(&feeds, "feed", nil, "aggregator address, repeatable")
}
