package finder

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/w3kit/slotfinder/internal/chain"
	"github.com/w3kit/slotfinder/internal/contract"
)

// tokenFixture is a by-construction ERC-20: its mappings live at known
// declared slots under a known layout scheme, so the expected storage keys
// are computable independently of the search.
type tokenFixture struct {
	addr          common.Address
	scheme        LayoutScheme
	balanceSlot   uint64
	allowanceSlot uint64
	hasAllowance  bool
	// storageAt redirects mapping reads to a satellite contract,
	// modelling Synthetix-style proxies. Zero means self.
	storageAt common.Address
	// principalOnly makes balanceOf revert and principalBalanceOf serve
	// balances, modelling AAVE-style tokens.
	principalOnly bool
	// opaque makes balance reads return a constant regardless of storage,
	// so no candidate can ever round-trip.
	opaque bool
}

func (f *tokenFixture) storageOwner() common.Address {
	if f.storageAt != (common.Address{}) {
		return f.storageAt
	}
	return f.addr
}

// mockNode is a JSON-RPC test server that models eth_call with stateDiff
// overrides faithfully: overrides apply to a single call and never leak
// into stored state.
type mockNode struct {
	t         *testing.T
	srv       *httptest.Server
	tokens    map[common.Address]*tokenFixture
	code      map[common.Address][]byte
	storage   map[common.Address]map[common.Hash]common.Hash
	accessors map[common.Address]map[[4]byte]common.Address
}

func newMockNode(t *testing.T) *mockNode {
	t.Helper()
	n := &mockNode{
		t:         t,
		tokens:    make(map[common.Address]*tokenFixture),
		code:      make(map[common.Address][]byte),
		storage:   make(map[common.Address]map[common.Hash]common.Hash),
		accessors: make(map[common.Address]map[[4]byte]common.Address),
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *mockNode) client() *chain.EVMClient {
	return chain.NewEVMClient(n.srv.URL)
}

func (n *mockNode) addToken(f *tokenFixture) {
	n.tokens[f.addr] = f
}

func (n *mockNode) setCode(addr common.Address, code []byte) {
	n.code[addr] = code
}

func (n *mockNode) setStorage(addr common.Address, key, val common.Hash) {
	if n.storage[addr] == nil {
		n.storage[addr] = make(map[common.Hash]common.Hash)
	}
	n.storage[addr][key] = val
}

func (n *mockNode) setAccessor(addr common.Address, sig string, target common.Address) {
	if n.accessors[addr] == nil {
		n.accessors[addr] = make(map[[4]byte]common.Address)
	}
	n.accessors[addr][[4]byte(contract.Selector(sig))] = target
}

// seedBalance writes owner's balance into the fixture's storage contract at
// the scheme-derived key.
func (n *mockNode) seedBalance(f *tokenFixture, owner common.Address, amount *big.Int) {
	key := f.scheme.BalanceKey(f.balanceSlot, owner)
	n.setStorage(f.storageOwner(), key, common.BigToHash(amount))
}

func (n *mockNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
		ID     int               `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	reply := func(result interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"jsonrpc": "2.0", "id": req.ID, "result": result,
		})
	}
	revert := func() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]interface{}{"code": 3, "message": "execution reverted"},
		})
	}

	switch req.Method {
	case "eth_blockNumber", "eth_chainId":
		reply("0x1")

	case "eth_getCode":
		var addr string
		json.Unmarshal(req.Params[0], &addr) //nolint:errcheck
		reply("0x" + common.Bytes2Hex(n.code[common.HexToAddress(addr)]))

	case "eth_getStorageAt":
		var addr, key string
		json.Unmarshal(req.Params[0], &addr) //nolint:errcheck
		json.Unmarshal(req.Params[1], &key)  //nolint:errcheck
		reply(n.storage[common.HexToAddress(addr)][common.HexToHash(key)].Hex())

	case "eth_call":
		var obj struct {
			From string `json:"from"`
			To   string `json:"to"`
			Data string `json:"data"`
		}
		json.Unmarshal(req.Params[0], &obj) //nolint:errcheck
		var override chain.StateOverride
		if len(req.Params) > 2 {
			json.Unmarshal(req.Params[2], &override) //nolint:errcheck
		}
		result, ok := n.execCall(common.HexToAddress(obj.From), common.HexToAddress(obj.To), common.FromHex(obj.Data), override)
		if !ok {
			revert()
			return
		}
		reply(result)

	default:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]interface{}{"code": -32601, "message": "method not found"},
		})
	}
}

// readWord resolves a storage word under the call's override, falling back
// to stored state.
func (n *mockNode) readWord(addr common.Address, key common.Hash, override chain.StateOverride) common.Hash {
	if acct, ok := override[addr]; ok {
		if val, ok := acct.StateDiff[key]; ok {
			return val
		}
	}
	return n.storage[addr][key]
}

func (n *mockNode) execCall(from, to common.Address, data []byte, override chain.StateOverride) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	sel := [4]byte(data[:4])

	if f, ok := n.tokens[to]; ok {
		balanceSel := [4]byte(contract.SelBalanceOf)
		if f.principalOnly {
			balanceSel = [4]byte(contract.Selector("principalBalanceOf(address)"))
		}

		switch sel {
		case balanceSel:
			if len(data) < 36 {
				return "", false
			}
			if f.opaque {
				return common.BigToHash(big.NewInt(42)).Hex(), true
			}
			owner := common.BytesToAddress(data[16:36])
			key := f.scheme.BalanceKey(f.balanceSlot, owner)
			return n.readWord(f.storageOwner(), key, override).Hex(), true

		case [4]byte(contract.SelAllowance):
			if !f.hasAllowance || len(data) < 68 {
				return "", false
			}
			if f.opaque {
				return common.BigToHash(big.NewInt(42)).Hex(), true
			}
			owner := common.BytesToAddress(data[16:36])
			spender := common.BytesToAddress(data[48:68])
			key := f.scheme.AllowanceKey(f.allowanceSlot, owner, spender)
			return n.readWord(f.storageOwner(), key, override).Hex(), true

		case [4]byte(contract.SelTransferFrom):
			// Succeeds only when balance and allowance, as visible under
			// the call's override, both cover the amount.
			if f.opaque || !f.hasAllowance || len(data) < 100 {
				return "", false
			}
			owner := common.BytesToAddress(data[16:36])
			amount := new(big.Int).SetBytes(data[68:100])
			balance := n.readWord(f.storageOwner(), f.scheme.BalanceKey(f.balanceSlot, owner), override)
			allowance := n.readWord(f.storageOwner(), f.scheme.AllowanceKey(f.allowanceSlot, owner, from), override)
			if balance.Big().Cmp(amount) < 0 || allowance.Big().Cmp(amount) < 0 {
				return "", false
			}
			return common.BigToHash(big.NewInt(1)).Hex(), true
		}
	}

	if target, ok := n.accessors[to][sel]; ok {
		return common.BytesToHash(target.Bytes()).Hex(), true
	}
	return "", false
}
