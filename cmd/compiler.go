package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/finder"
	"github.com/w3kit/slotfinder/internal/ui"
)

var compilerCmd = &cobra.Command{
	Use:   "compiler <address>",
	Short: "Detect the compiler of a deployed contract",
	Long: `Inspect deployed bytecode and report the compiler that produced it.

Detection reads the CBOR metadata trailer most toolchains append to
runtime bytecode, falling back to the function-dispatcher prefix for
contracts with no metadata. Unrecognized bytecode reports "unknown";
the slot search then tries every layout scheme instead of one.

Examples:
  slotfinder compiler 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := searchContext()
		defer cancel()

		code, err := newClient().GetCode(ctx, addr)
		if err != nil {
			return fmt.Errorf("fetching bytecode: %w", err)
		}
		if len(code) == 0 {
			return fmt.Errorf("no code at %s (not a contract)", addr.Hex())
		}

		info := finder.DetectCompiler(code)

		pairs := [][2]string{
			{"Contract", ui.Addr(addr.Hex())},
			{"Bytecode", fmt.Sprintf("%d bytes", len(code))},
			{"Compiler", string(info.Lang)},
		}
		if info.Version != "" {
			pairs = append(pairs, [2]string{"Version", ui.Val(info.Version)})
		}
		if info.Lang == finder.LangUnknown {
			pairs = append(pairs, [2]string{"Note", ui.Meta("metadata absent or unrecognized; searches will try all schemes")})
		}

		fmt.Println(ui.KeyValueBlock("Compiler Detection", pairs))
		return nil
	},
}
