package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EVMClient is a minimal JSON-RPC client for EVM chains.
type EVMClient struct {
	url    string
	client *http.Client
}

// StateOverride is the per-call state override map accepted by eth_call as
// its third parameter. Only stateDiff is used here: storage writes layered
// on top of current state for the duration of a single call. Nothing
// persists on the node, so concurrent calls never observe each other's
// overrides.
type StateOverride map[common.Address]OverrideAccount

// OverrideAccount describes the override applied to one contract.
type OverrideAccount struct {
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// RPCError is a JSON-RPC error returned by the node. An eth_call that
// reverts surfaces as an RPCError; transport problems surface as plain
// errors wrapping the underlying cause.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ErrNoReturnData marks a call that succeeded but returned no data, which
// is what hitting a fallback function instead of a real accessor looks
// like.
var ErrNoReturnData = errors.New("no return data")

// IsCallError reports whether err is a node-side call failure (revert,
// out-of-gas, invalid opcode, empty return) rather than a transport
// failure.
func IsCallError(err error) bool {
	if errors.Is(err, ErrNoReturnData) {
		return true
	}
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// NewEVMClient creates a new EVM JSON-RPC client pointed at url.
func NewEVMClient(url string) *EVMClient {
	return &EVMClient{
		url: url,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// URL returns the endpoint this client talks to.
func (c *EVMClient) URL() string { return c.url }

// GetCode returns the deployed bytecode at address. Empty means EOA.
func (c *EVMClient) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	result, err := c.call(ctx, "eth_getCode", address.Hex(), "latest")
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return nil, fmt.Errorf("parsing code: %w", err)
	}
	return common.FromHex(hexStr), nil
}

// GetStorageAt reads the raw 32-byte word at (address, key).
func (c *EVMClient) GetStorageAt(ctx context.Context, address common.Address, key common.Hash) (common.Hash, error) {
	result, err := c.call(ctx, "eth_getStorageAt", address.Hex(), key.Hex(), "latest")
	if err != nil {
		return common.Hash{}, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return common.Hash{}, fmt.Errorf("parsing storage word: %w", err)
	}
	return common.HexToHash(hexStr), nil
}

// BlockNumber returns the latest block number.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	n, err := parseQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("parsing block number: %w", err)
	}
	return n.Uint64(), nil
}

// ChainID returns the chain's ID.
func (c *EVMClient) ChainID(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	n, err := parseQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("parsing chain id: %w", err)
	}
	return n.Int64(), nil
}

// callObject is the eth_call transaction object.
type callObject struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// CallContract performs eth_call against latest state, optionally with a
// per-call state override.
func (c *EVMClient) CallContract(ctx context.Context, from *common.Address, to common.Address, data []byte, override StateOverride) ([]byte, error) {
	obj := callObject{
		To:   to.Hex(),
		Data: "0x" + common.Bytes2Hex(data),
	}
	if from != nil {
		obj.From = from.Hex()
	}

	params := []interface{}{obj, "latest"}
	if len(override) > 0 {
		params = append(params, override)
	}

	result, err := c.call(ctx, "eth_call", params...)
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := json.Unmarshal(result, &hexStr); err != nil {
		return nil, fmt.Errorf("parsing call result: %w", err)
	}
	return common.FromHex(hexStr), nil
}

// CallUint calls a view method expected to return a single uint256.
func (c *EVMClient) CallUint(ctx context.Context, to common.Address, data []byte, override StateOverride) (*big.Int, error) {
	out, err := c.CallContract(ctx, nil, to, data, override)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoReturnData
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short return data (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// CallAddress calls a view method expected to return a single address.
func (c *EVMClient) CallAddress(ctx context.Context, to common.Address, data []byte) (common.Address, error) {
	out, err := c.CallContract(ctx, nil, to, data, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, ErrNoReturnData
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("short return data (%d bytes)", len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// Ping tests the RPC endpoint and returns latency + block number.
func (c *EVMClient) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (c *EVMClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func parseQuantity(raw json.RawMessage) (*big.Int, error) {
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(hexStr, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity: %s", hexStr)
	}
	return n, nil
}
