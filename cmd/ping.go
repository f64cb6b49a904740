package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/ui"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the configured RPC endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := searchContext()
		defer cancel()

		client := newClient()
		latency, blockNum, err := client.Ping(ctx)
		if err != nil {
			return fmt.Errorf("endpoint unreachable: %w", err)
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("reading chain id: %w", err)
		}

		fmt.Println(ui.KeyValueBlock("RPC Endpoint", [][2]string{
			{"URL", cfg.RPCURL},
			{"Chain ID", fmt.Sprintf("%d", chainID)},
			{"Block", fmt.Sprintf("%d", blockNum)},
			{"Latency", latency.Round(time.Millisecond).String()},
		}))
		return nil
	},
}
