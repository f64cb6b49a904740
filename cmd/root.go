package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/chain"
	"github.com/w3kit/slotfinder/internal/config"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/w3kit/slotfinder/cmd.Version=1.2.3" .
var Version = "1.0.0"

var (
	cfgDir  string
	cfg     *config.Config
	rpcURL  string
	verbose bool
	timeout int
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "slotfinder",
	Short: "Find ERC-20 balance and allowance storage slots",
	Long: `slotfinder locates the storage slots behind balanceOf and allowance
for arbitrary ERC-20 tokens, without source code.

Candidate slots are verified by round-tripping an eth_call state override
through the token's own accessors against a forked node, so nothing is
ever written on-chain. Proxy indirection (EIP-1967/1822/1167 and known
non-standard layouts) is followed automatically.

The RPC endpoint comes from --rpc, the RPC_URL_FORK env var, or the
persisted config (default: ~/.slotfinder/config.json).`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if rpcURL != "" {
			cfg.RPCURL = rpcURL
		}
		if timeout > 0 {
			cfg.TimeoutSecs = timeout
		}

		lvl := log.LevelWarn
		if verbose {
			lvl = log.LevelDebug
		}
		log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// SLOTFINDER_CONFIG_DIR env var overrides --config flag.
	if envDir := os.Getenv("SLOTFINDER_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.slotfinder)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "RPC endpoint of the forked node")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 0, "per-token search timeout in seconds")

	// Register all sub-commands.
	rootCmd.AddCommand(
		findCmd,
		compilerCmd,
		proxyCmd,
		storageCmd,
		overridesCmd,
		simulateCmd,
		configCmd,
		pingCmd,
	)
}

// newClient builds the JSON-RPC client for the configured endpoint.
func newClient() *chain.EVMClient {
	return chain.NewEVMClient(cfg.RPCURL)
}

// searchContext returns a context bounded by the configured timeout.
func searchContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSecs)*time.Second)
}

// parseAddress validates and parses a 0x-prefixed address argument.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
