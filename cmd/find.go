package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/finder"
	"github.com/w3kit/slotfinder/internal/ui"
)

var (
	findHolders     []string
	findSpender     string
	findRoles       []string
	findConcurrency int
	findMaxDepth    int
	findJSON        bool
)

var findCmd = &cobra.Command{
	Use:   "find <token>...",
	Short: "Find balance/allowance storage slots for tokens",
	Long: `Search for the storage slots behind balanceOf and allowance.

For each token the search detects the compiler from bytecode, tries the
matching layout scheme first and every remaining scheme on exhaustion,
and verifies candidates by injecting a probe value through an eth_call
state override. When the direct search finds nothing, proxy indirection
is resolved and the search recurses into the implementation contract.

Examples:
  slotfinder find 0xToken
  slotfinder find 0xToken --holder 0xWhale --role balance
  slotfinder find 0xA 0xB 0xC --concurrency 8 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := make([]common.Address, 0, len(args))
		for _, arg := range args {
			addr, err := parseAddress(arg)
			if err != nil {
				return err
			}
			tokens = append(tokens, addr)
		}

		roles, err := parseRoles(findRoles)
		if err != nil {
			return err
		}

		opts, err := finderOptions()
		if err != nil {
			return err
		}

		concurrency := findConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Concurrency
		}

		ctx, cancel := searchContext()
		defer cancel()

		f := finder.New(newClient(), opts)

		spin := ui.NewSpinner(fmt.Sprintf("Searching %d token(s)...", len(tokens)))
		if !findJSON {
			spin.Start()
		}
		reports, err := f.FindAll(ctx, tokens, concurrency, roles...)
		if !findJSON {
			spin.Stop()
		}
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if findJSON {
			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		for _, token := range tokens {
			printReport(token, reports[token])
		}
		return nil
	},
}

func init() {
	findCmd.Flags().StringSliceVar(&findHolders, "holder", nil, "candidate holder account (repeatable; non-zero balance preferred)")
	findCmd.Flags().StringVar(&findSpender, "spender", "", "spender account for the allowance search")
	findCmd.Flags().StringSliceVar(&findRoles, "role", nil, "roles to search: balance, allowance (default: both)")
	findCmd.Flags().IntVar(&findConcurrency, "concurrency", 0, "max concurrent token searches (default: config)")
	findCmd.Flags().IntVar(&findMaxDepth, "max-depth", 0, "max proxy hops per role (default: config)")
	findCmd.Flags().BoolVar(&findJSON, "json", false, "print raw JSON report")
}

// finderOptions merges flags over config into finder.Options.
func finderOptions() (finder.Options, error) {
	var opts finder.Options

	holders := findHolders
	if len(holders) == 0 {
		holders = cfg.Holders
	}
	for _, h := range holders {
		addr, err := parseAddress(h)
		if err != nil {
			return opts, fmt.Errorf("holder: %w", err)
		}
		opts.Policy.Holders = append(opts.Policy.Holders, addr)
	}

	spender := findSpender
	if spender == "" {
		spender = cfg.Spender
	}
	if spender != "" {
		addr, err := parseAddress(spender)
		if err != nil {
			return opts, fmt.Errorf("spender: %w", err)
		}
		opts.Spender = addr
	}

	opts.MaxDepth = findMaxDepth
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = cfg.MaxDepth
	}
	return opts, nil
}

func parseRoles(raw []string) ([]finder.Role, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	roles := make([]finder.Role, 0, len(raw))
	for _, r := range raw {
		switch strings.ToLower(r) {
		case "balance":
			roles = append(roles, finder.RoleBalance)
		case "allowance":
			roles = append(roles, finder.RoleAllowance)
		default:
			return nil, fmt.Errorf("unknown role %q, use balance or allowance", r)
		}
	}
	return roles, nil
}

func printReport(token common.Address, report finder.Report) {
	for _, role := range []finder.Role{finder.RoleBalance, finder.RoleAllowance} {
		res, ok := report[role]
		if !ok {
			continue
		}
		if !res.Found() {
			fmt.Println(ui.KeyValueBlock(fmt.Sprintf("%s — %s", token.Hex(), role), [][2]string{
				{"Status", ui.Warn("not found")},
				{"Reason", ui.Meta(string(res.Reason))},
			}))
			continue
		}
		v := res.Slot
		pairs := [][2]string{
			{"Status", ui.Success("verified")},
			{"Contract", ui.Addr(v.Contract.Hex())},
			{"Scheme", ui.Scheme(v.Scheme.Name)},
			{"Declared Slot", fmt.Sprintf("%d", v.Slot)},
			{"Storage Key", ui.Addr(v.Key.Hex())},
			{"Accessor", v.Accessor},
		}
		if v.Compiler.Lang != finder.LangUnknown {
			compiler := string(v.Compiler.Lang)
			if v.Compiler.Version != "" {
				compiler += " " + v.Compiler.Version
			}
			pairs = append(pairs, [2]string{"Compiler", compiler})
		}
		for _, link := range v.Proxies {
			pairs = append(pairs, [2]string{"Proxy Hop", fmt.Sprintf("%s → %s (%s)", link.Proxy.Hex(), link.Target.Hex(), link.Method)})
		}
		fmt.Println(ui.KeyValueBlock(fmt.Sprintf("%s — %s", token.Hex(), role), pairs))
	}
}
