package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/finder"
	"github.com/w3kit/slotfinder/internal/ui"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy <address>",
	Short: "Resolve a proxy's implementation contract",
	Long: `Resolve one hop of proxy indirection for a contract.

Tries, in order: the standardized implementation-pointer slots
(EIP-1967 logic and beacon, EIP-1822, legacy OpenZeppelin), EIP-1167
minimal-proxy bytecode, and the public accessors known non-standard
token proxies expose (target, tokenState, erc20Impl, erc20Store, ...).

Examples:
  slotfinder proxy 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := searchContext()
		defer cancel()

		link, err := finder.NewProxyResolver(newClient()).Resolve(ctx, addr)
		if err != nil {
			return fmt.Errorf("resolving proxy: %w", err)
		}

		if link == nil {
			fmt.Println(ui.KeyValueBlock("Proxy Resolution", [][2]string{
				{"Contract", ui.Addr(addr.Hex())},
				{"Status", ui.Warn("unresolvable")},
				{"Note", ui.Meta("no implementation pointer discoverable on-chain")},
			}))
			return nil
		}

		fmt.Println(ui.KeyValueBlock("Proxy Resolution", [][2]string{
			{"Proxy", ui.Addr(link.Proxy.Hex())},
			{"Implementation", ui.Addr(link.Target.Hex())},
			{"Method", link.Method},
		}))
		return nil
	},
}
