package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/finder"
	"github.com/w3kit/slotfinder/internal/ui"
)

var (
	overridesOwner   string
	overridesSpender string
)

var overridesCmd = &cobra.Command{
	Use:   "overrides <token>",
	Short: "Build eth_call state overrides for a token",
	Long: `Discover a token's slots and print the state override map that sets
the owner's balance and the owner→spender allowance to the probe value
(2^95-1). The output plugs straight into eth_call's third parameter.

Examples:
  slotfinder overrides 0xToken --owner 0xSender --spender 0xRouter`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		if overridesOwner == "" {
			return fmt.Errorf("--owner is required (the account whose slots get overridden)")
		}
		owner, err := parseAddress(overridesOwner)
		if err != nil {
			return fmt.Errorf("owner: %w", err)
		}
		spender := owner
		if overridesSpender != "" {
			if spender, err = parseAddress(overridesSpender); err != nil {
				return fmt.Errorf("spender: %w", err)
			}
		}

		opts, err := finderOptions()
		if err != nil {
			return err
		}

		ctx, cancel := searchContext()
		defer cancel()

		spin := ui.NewSpinner("Discovering slots...")
		spin.Start()
		report, err := finder.New(newClient(), opts).Find(ctx, token)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		override := finder.ReportOverrides(report, owner, spender)
		if len(override) == 0 {
			fmt.Println(ui.Warn("no slots found — nothing to override"))
			for role, res := range report {
				fmt.Printf("  %s %s\n", role, ui.Meta(string(res.Reason)))
			}
			return nil
		}

		out, err := json.MarshalIndent(override, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	overridesCmd.Flags().StringVar(&overridesOwner, "owner", "", "account whose balance/allowance is overridden (required)")
	overridesCmd.Flags().StringVar(&overridesSpender, "spender", "", "spender for the allowance key (default: owner)")
}
