package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/finder"
	"github.com/w3kit/slotfinder/internal/ui"
)

var (
	simFrom   string
	simTo     string
	simAmount string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <token>",
	Short: "Simulate transferFrom with discovered slot overrides",
	Long: `Discover a token's slots, then simulate
transferFrom(from, to, amount) with balance and allowance overrides
applied via eth_call.

A token whose transfer still fails with both overrides correctly set is
classified "complex": its transfer depends on state beyond the two
mappings, so overriding balance+allowance alone cannot make it succeed.

Examples:
  slotfinder simulate 0xToken --from 0xSender --to 0xRecipient
  slotfinder simulate 0xToken --from 0xSender --to 0xRouter --amount 1000000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		if simFrom == "" || simTo == "" {
			return fmt.Errorf("--from and --to are required")
		}
		from, err := parseAddress(simFrom)
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}
		to, err := parseAddress(simTo)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		amount, ok := new(big.Int).SetString(simAmount, 10)
		if !ok {
			return fmt.Errorf("invalid amount %q", simAmount)
		}

		opts, err := finderOptions()
		if err != nil {
			return err
		}

		ctx, cancel := searchContext()
		defer cancel()

		client := newClient()

		spin := ui.NewSpinner("Discovering slots...")
		spin.Start()
		report, err := finder.New(client, opts).Find(ctx, token)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		complex, err := finder.NewTransferSim(client).Simulate(ctx, token, report, from, to, amount)
		if err != nil {
			return fmt.Errorf("simulating transferFrom: %w", err)
		}

		verdict := ui.Success("transferFrom succeeds with overrides")
		if complex {
			verdict = ui.Warn("complex — transfer depends on state beyond balance/allowance")
		}

		pairs := [][2]string{
			{"Token", ui.Addr(token.Hex())},
			{"From", ui.Addr(from.Hex())},
			{"To", ui.Addr(to.Hex())},
			{"Amount", amount.String()},
		}
		for _, role := range []finder.Role{finder.RoleBalance, finder.RoleAllowance} {
			if res, ok := report[role]; ok {
				status := "not found (" + string(res.Reason) + ")"
				if res.Found() {
					status = fmt.Sprintf("slot %d @ %s", res.Slot.Slot, res.Slot.Contract.Hex())
				}
				pairs = append(pairs, [2]string{string(role), status})
			}
		}
		pairs = append(pairs, [2]string{"Verdict", verdict})

		fmt.Println(ui.KeyValueBlock("transferFrom Simulation", pairs))
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simFrom, "from", "", "token sender (owner of overridden balance)")
	simulateCmd.Flags().StringVar(&simTo, "to", "", "recipient; also the spender and msg.sender")
	simulateCmd.Flags().StringVar(&simAmount, "amount", "1000000000000", "raw token amount to transfer")
}
