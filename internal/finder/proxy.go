package finder

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/w3kit/slotfinder/internal/chain"
	"github.com/w3kit/slotfinder/internal/contract"
)

// Well-known implementation-pointer storage slots used by standard proxies.
var (
	eip1967LogicSlot  = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	eip1967BeaconSlot = common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50")
	eip1822LogicSlot  = common.HexToHash("0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7")
	ozLogicSlot       = common.HexToHash("0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3")
)

// EIP-1167 minimal proxy bytecode, split around the pushed target address.
var (
	eip1167Prefix = common.FromHex("0x363d3d373d3d3d363d")
	eip1167Suffix = common.FromHex("0x57fd5bf3")
)

// beaconAccessors are tried against a beacon contract to obtain the logic
// address: implementation() and childImplementation().
var beaconAccessors = [][]byte{
	{0x5c, 0x60, 0xda, 0x1b},
	{0xda, 0x52, 0x57, 0x16},
}

// tokenAccessors name public accessors that non-standard token proxies
// expose for their storage contract. Trying them in order per hop lets the
// orchestrator walk two-level chains (Synthetix target→tokenState, GUSD
// erc20Impl→erc20Store) one resolution at a time.
var tokenAccessors = []struct {
	name string
	sig  string
}{
	{"target", "target()"},                 // Synthetix proxy
	{"tokenState", "tokenState()"},         // Synthetix logic
	{"erc20Impl", "erc20Impl()"},           // GUSD proxy
	{"erc20Store", "erc20Store()"},         // GUSD logic
	{"balances", "balances()"},             // satellite balance store
	{"allowances", "allowances()"},         // satellite allowance store
	{"implementation", "implementation()"}, // EIP-897
	{"masterCopy", "masterCopy()"},         // Gnosis safe proxy
}

// ProxyLink records one resolved step of proxy indirection.
type ProxyLink struct {
	Proxy  common.Address
	Target common.Address
	Method string
}

// ProxyResolver discovers the contract that actually owns a token's
// balance/allowance storage when the token itself turns up nothing.
type ProxyResolver struct {
	backend Backend
}

// NewProxyResolver creates a resolver over the given backend.
func NewProxyResolver(backend Backend) *ProxyResolver {
	return &ProxyResolver{backend: backend}
}

// Resolve attempts one hop of proxy resolution for addr: standardized
// implementation-pointer slots first, then minimal-proxy bytecode, then
// public accessors. A nil link with nil error means the implementation
// pointer is not discoverable on-chain; that is an expected terminal
// outcome, not an error. Only transport failures return an error.
func (r *ProxyResolver) Resolve(ctx context.Context, addr common.Address) (*ProxyLink, error) {
	if link, err := r.fromSlots(ctx, addr); link != nil || err != nil {
		return link, err
	}
	if link, err := r.fromBytecode(ctx, addr); link != nil || err != nil {
		return link, err
	}
	return r.fromAccessors(ctx, addr)
}

func (r *ProxyResolver) fromSlots(ctx context.Context, addr common.Address) (*ProxyLink, error) {
	slots := []struct {
		key    common.Hash
		method string
	}{
		{eip1967LogicSlot, "eip1967.logic"},
		{eip1822LogicSlot, "eip1822"},
		{ozLogicSlot, "openzeppelin.logic"},
	}
	for _, s := range slots {
		word, err := r.backend.GetStorageAt(ctx, addr, s.key)
		if err != nil {
			return nil, err
		}
		if target := wordToAddress(word); target != (common.Address{}) {
			return &ProxyLink{Proxy: addr, Target: target, Method: s.method}, nil
		}
	}

	// A beacon slot points at a contract that itself exposes the logic
	// address through an accessor.
	word, err := r.backend.GetStorageAt(ctx, addr, eip1967BeaconSlot)
	if err != nil {
		return nil, err
	}
	if beacon := wordToAddress(word); beacon != (common.Address{}) {
		for _, sel := range beaconAccessors {
			target, err := r.backend.CallAddress(ctx, beacon, sel)
			if err != nil {
				if chain.IsCallError(err) {
					continue
				}
				return nil, err
			}
			if target != (common.Address{}) {
				return &ProxyLink{Proxy: addr, Target: target, Method: "eip1967.beacon"}, nil
			}
		}
	}
	return nil, nil
}

func (r *ProxyResolver) fromBytecode(ctx context.Context, addr common.Address) (*ProxyLink, error) {
	code, err := r.backend.GetCode(ctx, addr)
	if err != nil {
		return nil, err
	}
	target, ok := parseMinimalProxy(code)
	if !ok {
		return nil, nil
	}
	return &ProxyLink{Proxy: addr, Target: target, Method: "eip1167"}, nil
}

func (r *ProxyResolver) fromAccessors(ctx context.Context, addr common.Address) (*ProxyLink, error) {
	for _, acc := range tokenAccessors {
		target, err := r.backend.CallAddress(ctx, addr, contract.Selector(acc.sig))
		if err != nil {
			// Reverts just mean the accessor doesn't exist here.
			if chain.IsCallError(err) {
				continue
			}
			return nil, err
		}
		if target == (common.Address{}) || target == addr {
			continue
		}
		log.Debug("proxy accessor resolved", "proxy", addr, "accessor", acc.name, "target", target)
		return &ProxyLink{Proxy: addr, Target: target, Method: "call:" + acc.name + "()"}, nil
	}
	return nil, nil
}

// parseMinimalProxy extracts the delegate target from EIP-1167 runtime code.
// Vanity-address clones push fewer than 20 bytes, so the push width is read
// from the opcode.
func parseMinimalProxy(code []byte) (common.Address, bool) {
	if !bytes.HasPrefix(code, eip1167Prefix) || !bytes.HasSuffix(code, eip1167Suffix) {
		return common.Address{}, false
	}
	rest := code[len(eip1167Prefix):]
	if len(rest) == 0 {
		return common.Address{}, false
	}
	op := rest[0]
	if op < 0x60 || op > 0x73 { // PUSH1..PUSH20
		return common.Address{}, false
	}
	n := int(op-0x60) + 1
	if len(rest) < 1+n {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(rest[1 : 1+n])
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// wordToAddress interprets a storage word as an address, or zero when the
// word is empty or not address-shaped.
func wordToAddress(word common.Hash) common.Address {
	for _, b := range word[:12] {
		if b != 0 {
			return common.Address{}
		}
	}
	return common.BytesToAddress(word[12:])
}
