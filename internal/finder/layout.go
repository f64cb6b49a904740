package finder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Role names the mapping being searched for. Balance and allowance live in
// separate declared slots, so a verification for one role never carries over
// to the other.
type Role string

const (
	RoleBalance   Role = "balance"
	RoleAllowance Role = "allowance"
)

func (r Role) String() string { return string(r) }

// maxDeclaredSlot bounds the declared-index enumeration. Core accounting
// variables sit near slot 0 in practice; anything beyond this is noise.
const maxDeclaredSlot = 310

// LayoutScheme derives a mapping entry's storage key from the mapping's
// declared slot index and the entry key. Schemes are immutable values; the
// catalog below is the closed set of supported layouts.
type LayoutScheme struct {
	Name    string
	Lang    Lang
	MaxSlot uint64

	// derive computes keccak over a 64-byte preimage whose order is the
	// scheme's distinguishing feature.
	derive func(word common.Hash, key common.Address) common.Hash
}

// SolidityScheme: key = keccak256(pad32(entryKey) ++ pad32(declaredSlot)).
var SolidityScheme = LayoutScheme{
	Name:    "solidity-keccak",
	Lang:    LangSolidity,
	MaxSlot: maxDeclaredSlot,
	derive: func(word common.Hash, key common.Address) common.Hash {
		return crypto.Keccak256Hash(common.BytesToHash(key.Bytes()).Bytes(), word.Bytes())
	},
}

// VyperScheme: key = keccak256(pad32(declaredSlot) ++ pad32(entryKey)).
var VyperScheme = LayoutScheme{
	Name:    "vyper-keccak",
	Lang:    LangVyper,
	MaxSlot: maxDeclaredSlot,
	derive: func(word common.Hash, key common.Address) common.Hash {
		return crypto.Keccak256Hash(word.Bytes(), common.BytesToHash(key.Bytes()).Bytes())
	},
}

// Schemes is the full catalog, in default search order.
var Schemes = []LayoutScheme{SolidityScheme, VyperScheme}

// SchemesFor orders the catalog for a detection result: the matching scheme
// first (fast path), the rest as the exhaustive fallback. LangUnknown gets
// the whole catalog in default order.
func SchemesFor(lang Lang) []LayoutScheme {
	ordered := make([]LayoutScheme, 0, len(Schemes))
	for _, s := range Schemes {
		if s.Lang == lang {
			ordered = append(ordered, s)
		}
	}
	for _, s := range Schemes {
		if s.Lang != lang {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// BalanceKey derives the storage key of balances[owner] declared at slot.
func (s LayoutScheme) BalanceKey(slot uint64, owner common.Address) common.Hash {
	word := uint256.NewInt(slot).Bytes32()
	return s.derive(common.Hash(word), owner)
}

// AllowanceKey derives the storage key of allowances[owner][spender]
// declared at slot. The outer derivation keyed by owner yields the inner
// mapping's slot word; nesting the derivation once more with spender gives
// the entry key.
func (s LayoutScheme) AllowanceKey(slot uint64, owner, spender common.Address) common.Hash {
	outer := s.BalanceKey(slot, owner)
	return s.derive(outer, spender)
}

// SlotCandidate is one (scheme, declared index, derived key) triple to try
// for a role. Candidates are generated in index-ascending order so a search
// is reproducible.
type SlotCandidate struct {
	Scheme LayoutScheme
	Slot   uint64
	Key    common.Hash
	Role   Role
}

// Candidates enumerates every candidate the scheme yields for the role,
// index-ascending. Spender is ignored for RoleBalance.
func Candidates(scheme LayoutScheme, role Role, owner, spender common.Address) []SlotCandidate {
	out := make([]SlotCandidate, 0, scheme.MaxSlot)
	for slot := uint64(0); slot < scheme.MaxSlot; slot++ {
		var key common.Hash
		switch role {
		case RoleAllowance:
			key = scheme.AllowanceKey(slot, owner, spender)
		default:
			key = scheme.BalanceKey(slot, owner)
		}
		out = append(out, SlotCandidate{Scheme: scheme, Slot: slot, Key: key, Role: role})
	}
	return out
}
