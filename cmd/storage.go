package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/w3kit/slotfinder/internal/ui"
)

var storageCmd = &cobra.Command{
	Use:   "storage <address> <slot>",
	Short: "Read a raw storage slot from a contract",
	Long: `Read the raw 32-byte value at a specific storage slot of a contract.

Storage slots can be specified as decimal numbers or hex (0x-prefixed).
The output shows both hex and decimal interpretations, plus an address
interpretation (useful for proxy implementation slots).

Common slots:
  0    — First state variable
  0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc
         — EIP-1967 implementation slot (proxy contracts)
  0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103
         — EIP-1967 admin slot

Examples:
  slotfinder storage 0xContract 0
  slotfinder storage 0xProxy 0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		key, err := parseSlot(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := searchContext()
		defer cancel()

		spin := ui.NewSpinner("Reading storage...")
		spin.Start()
		value, err := newClient().GetStorageAt(ctx, addr, key)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("reading storage: %w", err)
		}

		pairs := [][2]string{
			{"Contract", ui.Addr(addr.Hex())},
			{"Slot", args[1]},
			{"Raw (hex)", ui.Val(value.Hex())},
			{"Decimal", value.Big().String()},
		}

		// Values with 12 leading zero bytes often hold an address.
		if asAddr := common.BytesToAddress(value[12:]); asAddr != (common.Address{}) && allZero(value[:12]) {
			pairs = append(pairs, [2]string{"As Address", ui.Addr(asAddr.Hex())})
		}
		if value == (common.Hash{}) {
			pairs = append(pairs, [2]string{"Note", ui.Meta("slot is empty (zero)")})
		}

		fmt.Println(ui.KeyValueBlock("Storage Read", pairs))
		return nil
	},
}

// parseSlot accepts a decimal index or a 0x-prefixed 32-byte key.
func parseSlot(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") {
		return common.HexToHash(s), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return common.Hash{}, fmt.Errorf("invalid slot %q, use decimal or 0x-prefixed hex", s)
	}
	return common.BigToHash(n), nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
