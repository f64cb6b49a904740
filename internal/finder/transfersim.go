package finder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/w3kit/slotfinder/internal/chain"
	"github.com/w3kit/slotfinder/internal/contract"
)

// TransferSim validates discovered slots by simulating
// transferFrom(owner, recipient, amount) with balance and allowance
// overrides applied. A token whose transfer still fails with both overrides
// correctly set is "complex": its transfer depends on state beyond the two
// mappings (LDO is the canonical example).
type TransferSim struct {
	backend Backend
}

// NewTransferSim creates a simulator over the given backend.
func NewTransferSim(backend Backend) *TransferSim {
	return &TransferSim{backend: backend}
}

// Simulate runs the transferFrom dry-run. The recipient doubles as the
// spender and msg.sender, mirroring a router pulling funds. Returns
// complex=true when the report is missing a role, the call reverts, or the
// token returns false. Only transport failures return an error.
func (s *TransferSim) Simulate(ctx context.Context, token common.Address, report Report, owner, recipient common.Address, amount *big.Int) (complex bool, err error) {
	balance, okB := report[RoleBalance]
	allowance, okA := report[RoleAllowance]
	if !okB || !okA || !balance.Found() || !allowance.Found() {
		return true, nil
	}

	override := make(chain.StateOverride)
	merge := func(target common.Address, key common.Hash) {
		acct, ok := override[target]
		if !ok {
			acct = chain.OverrideAccount{StateDiff: make(map[common.Hash]common.Hash)}
		}
		acct.StateDiff[key] = ProbeWord()
		override[target] = acct
	}
	merge(balance.Slot.Contract, balance.Slot.KeyFor(owner, recipient))
	merge(allowance.Slot.Contract, allowance.Slot.KeyFor(owner, recipient))

	data := contract.TransferFromData(owner, recipient, amount)
	out, err := s.backend.CallContract(ctx, &recipient, token, data, override)
	if err != nil {
		if chain.IsCallError(err) {
			log.Debug("transferFrom reverted under overrides", "token", token, "err", err)
			return true, nil
		}
		return false, err
	}

	// A compliant transferFrom returns a single bool word; empty return
	// data (pre-EIP-20 tokens) counts as success.
	if len(out) >= 32 && new(big.Int).SetBytes(out[:32]).Sign() == 0 {
		return true, nil
	}
	return false, nil
}
