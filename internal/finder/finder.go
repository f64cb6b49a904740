package finder

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/w3kit/slotfinder/internal/chain"
	"github.com/w3kit/slotfinder/internal/contract"
)

// NotFoundReason tags a terminal miss so callers can tell "genuinely
// absent" from "proxy hid its storage" from "proxy chain loops".
type NotFoundReason string

const (
	ReasonExhausted       NotFoundReason = "exhausted"
	ReasonProxyUnresolved NotFoundReason = "proxy-unresolvable"
	ReasonCycleDetected   NotFoundReason = "cycle-detected"
	ReasonSkipped         NotFoundReason = "skipped"
)

// VerifiedSlot is the terminal output unit: a candidate plus proof that
// overriding its key reproduced the injected value through the accessor.
// Contract is the storage-owning contract, which differs from Token when
// the token proxies its storage elsewhere.
type VerifiedSlot struct {
	Token    common.Address `json:"token"`
	Contract common.Address `json:"contract"`
	Role     Role           `json:"role"`
	Scheme   LayoutScheme   `json:"scheme"`
	Slot     uint64         `json:"slot"`
	Key      common.Hash    `json:"key"`
	Accessor string         `json:"accessor"`
	Compiler CompilerInfo   `json:"compiler"`
	Proxies  []ProxyLink    `json:"proxies,omitempty"`
}

// KeyFor re-derives the storage key of this slot for a different entry
// key pair. Used when building overrides for accounts other than the one
// the search verified with.
func (v VerifiedSlot) KeyFor(owner, spender common.Address) common.Hash {
	if v.Role == RoleAllowance {
		return v.Scheme.AllowanceKey(v.Slot, owner, spender)
	}
	return v.Scheme.BalanceKey(v.Slot, owner)
}

// Result is the per-role outcome: a VerifiedSlot or a tagged miss.
type Result struct {
	Slot   *VerifiedSlot  `json:"slot,omitempty"`
	Reason NotFoundReason `json:"reason,omitempty"`
}

// Found reports whether the role's slot was verified.
func (r Result) Found() bool { return r.Slot != nil }

// Report maps each searched role to its outcome. Every requested role is
// present; there are no silent partial results.
type Report map[Role]Result

// AccountPolicy selects the account a search verifies against. Preferring
// a holder with a non-zero balance avoids false negatives on tokens whose
// balanceOf derives from auxiliary state (rebasing tokens return zero for
// empty accounts even when the candidate slot is right).
type AccountPolicy struct {
	// Holders are candidate owner accounts, tried in order.
	Holders []common.Address
	// Fallback is used when no holder has a balance.
	Fallback common.Address
}

// Select returns the first holder with a non-zero balance on token, or the
// fallback. Reverting balance reads just disqualify a holder.
func (p AccountPolicy) Select(ctx context.Context, backend Backend, token common.Address) (common.Address, error) {
	for _, h := range p.Holders {
		bal, err := backend.CallUint(ctx, token, contract.BalanceOfData(contract.SelBalanceOf, h), nil)
		if err != nil {
			if chain.IsCallError(err) {
				continue
			}
			return common.Address{}, err
		}
		if bal.Sign() > 0 {
			return h, nil
		}
	}
	if p.Fallback != (common.Address{}) {
		return p.Fallback, nil
	}
	if len(p.Holders) > 0 {
		return p.Holders[0], nil
	}
	return defaultOwner, nil
}

// Defaults carried over from the reference deployment: an arbitrary owner
// and spender pair for searches with no injected accounts, and the native
// asset pseudo-address that must never be searched.
var (
	defaultOwner   = common.HexToAddress("0xb634316E06cC0B358437CbadD4dC94F1D3a92B3b")
	defaultSpender = common.HexToAddress("0x7C8E77390e999DA2f826305844078B88DC39aB82")
	nativeAsset    = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
)

const defaultMaxDepth = 4

// Options tune a Finder. Zero values get sensible defaults.
type Options struct {
	// Policy picks the search account. Zero value falls back to the
	// default owner.
	Policy AccountPolicy
	// Spender is the allowance-role spender account.
	Spender common.Address
	// MaxDepth bounds proxy traversal.
	MaxDepth int
}

// Finder drives the slot search: account selection, compiler detection,
// scheme/candidate iteration through the oracle, and proxy traversal.
// A Finder is safe for concurrent use; each Find call is independent.
type Finder struct {
	backend  Backend
	oracle   *Oracle
	resolver *ProxyResolver
	policy   AccountPolicy
	spender  common.Address
	maxDepth int
}

// New creates a Finder over the given backend.
func New(backend Backend, opts Options) *Finder {
	spender := opts.Spender
	if spender == (common.Address{}) {
		spender = defaultSpender
	}
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	return &Finder{
		backend:  backend,
		oracle:   NewOracle(backend),
		resolver: NewProxyResolver(backend),
		policy:   opts.Policy,
		spender:  spender,
		maxDepth: depth,
	}
}

// Find locates the storage slots for the requested roles of token. Roles
// default to balance+allowance and are searched concurrently; they succeed
// or fail independently. Only transport errors are returned; everything
// else resolves to a per-role Result.
func (f *Finder) Find(ctx context.Context, token common.Address, roles ...Role) (Report, error) {
	if len(roles) == 0 {
		roles = []Role{RoleBalance, RoleAllowance}
	}

	report := make(Report, len(roles))
	if token == nativeAsset {
		for _, role := range roles {
			report[role] = Result{Reason: ReasonSkipped}
		}
		return report, nil
	}

	owner, err := f.policy.Select(ctx, f.backend, token)
	if err != nil {
		return nil, err
	}

	code, err := f.backend.GetCode(ctx, token)
	if err != nil {
		return nil, err
	}
	compiler := DetectCompiler(code)
	log.Debug("compiler detected", "token", token, "lang", compiler.Lang, "version", compiler.Version, "owner", owner)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, role := range roles {
		g.Go(func() error {
			res, err := f.searchRole(gctx, token, owner, compiler, role)
			if err != nil {
				return err
			}
			mu.Lock()
			report[role] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// FindAll searches many tokens, at most limit concurrently. Per-token
// transport errors abort the batch.
func (f *Finder) FindAll(ctx context.Context, tokens []common.Address, limit int, roles ...Role) (map[common.Address]Report, error) {
	if limit <= 0 {
		limit = 1
	}
	out := make(map[common.Address]Report, len(tokens))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, token := range tokens {
		g.Go(func() error {
			report, err := f.Find(gctx, token, roles...)
			if err != nil {
				return err
			}
			mu.Lock()
			out[token] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// searchRole runs the direct search, following proxy links on exhaustion.
// Visited addresses and a depth bound guarantee termination on cyclic or
// deep proxy graphs.
func (f *Finder) searchRole(ctx context.Context, token, owner common.Address, compiler CompilerInfo, role Role) (Result, error) {
	visited := map[common.Address]bool{token: true}
	var links []ProxyLink

	storage := token
	for depth := 0; depth <= f.maxDepth; depth++ {
		slot, err := f.searchDirect(ctx, token, storage, owner, compiler, role)
		if err != nil {
			return Result{}, err
		}
		if slot != nil {
			slot.Proxies = links
			log.Info("slot found", "token", token, "role", role, "contract", slot.Contract,
				"scheme", slot.Scheme.Name, "slot", slot.Slot)
			return Result{Slot: slot}, nil
		}

		link, err := f.resolver.Resolve(ctx, storage)
		if err != nil {
			return Result{}, err
		}
		if link == nil {
			reason := ReasonExhausted
			if len(links) > 0 || f.looksDelegating(ctx, storage) {
				reason = ReasonProxyUnresolved
			}
			log.Warn("slot not found", "token", token, "role", role, "reason", reason)
			return Result{Reason: reason}, nil
		}
		if visited[link.Target] {
			log.Warn("slot not found", "token", token, "role", role, "reason", ReasonCycleDetected,
				"proxy", link.Proxy, "target", link.Target)
			return Result{Reason: ReasonCycleDetected}, nil
		}
		visited[link.Target] = true
		links = append(links, *link)
		storage = link.Target
	}

	log.Warn("slot not found", "token", token, "role", role, "reason", ReasonExhausted, "depth", f.maxDepth)
	return Result{Reason: ReasonExhausted}, nil
}

// searchDirect exhausts every applicable scheme and declared index for one
// (call target, storage target) pair. The accessor call always goes to the
// token; the override lands on the storage target.
func (f *Finder) searchDirect(ctx context.Context, token, storage, owner common.Address, compiler CompilerInfo, role Role) (*VerifiedSlot, error) {
	for _, acc := range accessorsFor(role) {
		data := acc.calldata(owner, f.spender)

		// A plain call that reverts means the accessor doesn't exist on
		// this token; skip the whole candidate sweep for it.
		if _, err := f.backend.CallUint(ctx, token, data, nil); err != nil {
			if chain.IsCallError(err) {
				continue
			}
			return nil, err
		}

		for _, scheme := range SchemesFor(compiler.Lang) {
			for _, cand := range Candidates(scheme, role, owner, f.spender) {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				ok, err := f.oracle.Verify(ctx, token, storage, data, cand)
				if err != nil {
					return nil, err
				}
				if ok {
					return &VerifiedSlot{
						Token:    token,
						Contract: storage,
						Role:     role,
						Scheme:   scheme,
						Slot:     cand.Slot,
						Key:      cand.Key,
						Accessor: acc.name,
						Compiler: compiler,
					}, nil
				}
			}
		}
	}
	return nil, nil
}

// looksDelegating is the heuristic behind the proxy-unresolvable verdict:
// a small contract containing DELEGATECALL that we failed to resolve is
// treated as a proxy with a private implementation pointer.
func (f *Finder) looksDelegating(ctx context.Context, addr common.Address) bool {
	code, err := f.backend.GetCode(ctx, addr)
	if err != nil || len(code) == 0 || len(code) > 1024 {
		return false
	}
	for _, op := range code {
		if op == 0xf4 {
			return true
		}
	}
	return false
}

// accessor pairs a read-method name with its calldata builder. Balance
// searches also probe principalBalanceOf for AAVE-style tokens.
type accessor struct {
	name     string
	calldata func(owner, spender common.Address) []byte
}

func accessorsFor(role Role) []accessor {
	if role == RoleAllowance {
		return []accessor{{
			name: "allowance",
			calldata: func(owner, spender common.Address) []byte {
				return contract.AllowanceData(owner, spender)
			},
		}}
	}
	return []accessor{
		{
			name: "balanceOf",
			calldata: func(owner, _ common.Address) []byte {
				return contract.BalanceOfData(contract.SelBalanceOf, owner)
			},
		},
		{
			name: "principalBalanceOf",
			calldata: func(owner, _ common.Address) []byte {
				return contract.BalanceOfData(contract.Selector("principalBalanceOf(address)"), owner)
			},
		},
	}
}
