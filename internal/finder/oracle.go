package finder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/w3kit/slotfinder/internal/chain"
)

// Backend is the chain capability surface the finder consumes.
// *chain.EVMClient implements it; tests substitute an httptest-backed
// client or a fake.
type Backend interface {
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
	GetStorageAt(ctx context.Context, address common.Address, key common.Hash) (common.Hash, error)
	CallContract(ctx context.Context, from *common.Address, to common.Address, data []byte, override chain.StateOverride) ([]byte, error)
	CallUint(ctx context.Context, to common.Address, data []byte, override chain.StateOverride) (*big.Int, error)
	CallAddress(ctx context.Context, to common.Address, data []byte) (common.Address, error)
}

// probeValue is the amount injected into a candidate slot: 2^95-1, large
// enough to be unmistakable against real balances yet far below the uint256
// range where fee-on-transfer math could overflow.
var probeValue = uint256.MustFromHex("0x7fffffffffffffffffffffff")

// ProbeWord returns the injected value as a storage word.
func ProbeWord() common.Hash {
	return common.Hash(probeValue.Bytes32())
}

// Oracle verifies slot candidates by round-tripping a storage override
// through a live accessor call. Overrides ride on eth_call's state override
// parameter, so they are scoped to the single verification call and never
// leak into node state or into concurrent verifications.
type Oracle struct {
	backend Backend
}

// NewOracle creates an Oracle over the given backend.
func NewOracle(backend Backend) *Oracle {
	return &Oracle{backend: backend}
}

// Verify overrides (storage, cand.Key) with the probe value, invokes the
// accessor calldata against token, and reports whether the returned value
// round-trips exactly. token and storage differ when a proxy keeps its
// balances in a satellite contract.
//
// A revert or a value that does not round-trip both mean "not verified";
// only transport failures return an error.
func (o *Oracle) Verify(ctx context.Context, token, storage common.Address, accessor []byte, cand SlotCandidate) (bool, error) {
	override := chain.StateOverride{
		storage: chain.OverrideAccount{
			StateDiff: map[common.Hash]common.Hash{cand.Key: ProbeWord()},
		},
	}

	got, err := o.backend.CallUint(ctx, token, accessor, override)
	if err != nil {
		if chain.IsCallError(err) {
			return false, nil
		}
		return false, err
	}

	verified := got.Cmp(probeValue.ToBig()) == 0
	if verified {
		log.Debug("candidate verified", "token", token, "storage", storage,
			"role", cand.Role, "scheme", cand.Scheme.Name, "slot", cand.Slot, "key", cand.Key)
	}
	return verified, nil
}
