package finder

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/w3kit/slotfinder/internal/chain"
)

// BuildOverrides turns verified slots into the eth_call state override map
// a simulator feeds alongside a call: each slot's key is re-derived for the
// given owner/spender pair and set to value. Diffs landing on the same
// storage contract are merged into one stateDiff.
func BuildOverrides(slots []VerifiedSlot, owner, spender common.Address, value common.Hash) chain.StateOverride {
	out := make(chain.StateOverride)
	for _, v := range slots {
		acct, ok := out[v.Contract]
		if !ok {
			acct = chain.OverrideAccount{StateDiff: make(map[common.Hash]common.Hash)}
		}
		acct.StateDiff[v.KeyFor(owner, spender)] = value
		out[v.Contract] = acct
	}
	return out
}

// ReportOverrides builds overrides from a search report, using every role
// that was found. The probe value is injected by default.
func ReportOverrides(report Report, owner, spender common.Address) chain.StateOverride {
	var slots []VerifiedSlot
	for _, res := range report {
		if res.Found() {
			slots = append(slots, *res.Slot)
		}
	}
	return BuildOverrides(slots, owner, spender, ProbeWord())
}
