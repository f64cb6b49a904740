package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <url>",
	Short: "Set the forked-node RPC endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.RPCURL = args[0]
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("RPC endpoint set to %s", args[0])))
		return nil
	},
}

var configSetSpenderCmd = &cobra.Command{
	Use:   "set-spender <address>",
	Short: "Set the allowance-role spender account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		cfg.Spender = addr.Hex()
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Spender set to %s", addr.Hex())))
		return nil
	},
}

var configAddHolderCmd = &cobra.Command{
	Use:   "add-holder <address>",
	Short: "Add a preferred holder account for searches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		for _, h := range cfg.Holders {
			if h == addr.Hex() {
				fmt.Println(ui.Warn("holder already configured"))
				return nil
			}
		}
		cfg.Holders = append(cfg.Holders, addr.Hex())
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Added holder %s", addr.Hex())))
		return nil
	},
}

var configSetConcurrencyCmd = &cobra.Command{
	Use:   "set-concurrency <n>",
	Short: "Set the batch-mode concurrency limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid concurrency %q", args[0])
		}
		cfg.Concurrency = n
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Concurrency set to %d", n)))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configSetRPCCmd, configSetSpenderCmd, configAddHolderCmd, configSetConcurrencyCmd)
}
