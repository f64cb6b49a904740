package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// rpcMock creates a test HTTP server that serves a fixed JSON-RPC response
// per method. Pass method→result pairs; any unknown method returns an RPC error.
func rpcMock(t *testing.T, responses map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if result, ok := responses[req.Method]; ok {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  result,
			})
		} else {
			json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
			})
		}
	}))
}

// rpcCapture records the raw request body and serves a fixed result.
func rpcCapture(t *testing.T, result interface{}, captured *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body) //nolint:errcheck
		*captured = body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"jsonrpc": "2.0", "id": 1, "result": result,
		})
	}))
}

var (
	testAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testKey  = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
)

// ---------------------------------------------------------------------------
// reads
// ---------------------------------------------------------------------------

func TestGetCode(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_getCode": "0x6080604052"})
	defer srv.Close()

	code, err := NewEVMClient(srv.URL).GetCode(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x6080604052"), code)
}

func TestGetStorageAt(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_getStorageAt": "0x00000000000000000000000000000000000000000000000000000000000000ff",
	})
	defer srv.Close()

	word, err := NewEVMClient(srv.URL).GetStorageAt(context.Background(), testAddr, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(255), word.Big().Int64())
}

func TestBlockNumber(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_blockNumber": "0x10"})
	defer srv.Close()

	n, err := NewEVMClient(srv.URL).BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)
}

// ---------------------------------------------------------------------------
// eth_call + overrides
// ---------------------------------------------------------------------------

func TestCallContractSendsStateOverride(t *testing.T) {
	var captured []byte
	srv := rpcCapture(t, "0x0000000000000000000000000000000000000000000000000000000000000001", &captured)
	defer srv.Close()

	override := StateOverride{
		testAddr: {StateDiff: map[common.Hash]common.Hash{testKey: common.HexToHash("0x01")}},
	}
	_, err := NewEVMClient(srv.URL).CallContract(context.Background(), nil, testAddr, []byte{0x70, 0xa0, 0x82, 0x31}, override)
	require.NoError(t, err)

	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal(captured, &req))
	assert.Equal(t, "eth_call", req.Method)
	require.Len(t, req.Params, 3, "override must ride as the third parameter")

	var sent StateOverride
	require.NoError(t, json.Unmarshal(req.Params[2], &sent))
	assert.Equal(t, override[testAddr].StateDiff[testKey], sent[testAddr].StateDiff[testKey])
}

func TestCallContractOmitsEmptyOverride(t *testing.T) {
	var captured []byte
	srv := rpcCapture(t, "0x", &captured)
	defer srv.Close()

	_, err := NewEVMClient(srv.URL).CallContract(context.Background(), nil, testAddr, nil, nil)
	require.NoError(t, err)

	var req struct {
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal(captured, &req))
	assert.Len(t, req.Params, 2)
}

func TestCallUintShortData(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{"eth_call": "0x01"})
	defer srv.Close()

	_, err := NewEVMClient(srv.URL).CallUint(context.Background(), testAddr, nil, nil)
	require.Error(t, err)
	assert.False(t, IsCallError(err))
}

func TestCallUintEmptyReturnIsCallError(t *testing.T) {
	// A fallback function answers any selector with empty data; that is
	// an absent accessor, not a transport problem.
	srv := rpcMock(t, map[string]interface{}{"eth_call": "0x"})
	defer srv.Close()

	_, err := NewEVMClient(srv.URL).CallUint(context.Background(), testAddr, nil, nil)
	require.ErrorIs(t, err, ErrNoReturnData)
	assert.True(t, IsCallError(err))
}

func TestCallAddress(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{
		"eth_call": "0x0000000000000000000000002000000000000000000000000000000000000002",
	})
	defer srv.Close()

	addr, err := NewEVMClient(srv.URL).CallAddress(context.Background(), testAddr, []byte{0x5c, 0x60, 0xda, 0x1b})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2000000000000000000000000000000000000002"), addr)
}

// ---------------------------------------------------------------------------
// error taxonomy
// ---------------------------------------------------------------------------

func TestRevertSurfacesAsCallError(t *testing.T) {
	srv := rpcMock(t, map[string]interface{}{}) // every method errors
	defer srv.Close()

	_, err := NewEVMClient(srv.URL).CallContract(context.Background(), nil, testAddr, nil, nil)
	require.Error(t, err)
	assert.True(t, IsCallError(err))
}

func TestTransportErrorIsNotCallError(t *testing.T) {
	srv := rpcMock(t, nil)
	srv.Close() // unreachable endpoint

	_, err := NewEVMClient(srv.URL).CallContract(context.Background(), nil, testAddr, nil, nil)
	require.Error(t, err)
	assert.False(t, IsCallError(err))
}

func TestBadJSONIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not valid json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewEVMClient(srv.URL).BlockNumber(context.Background())
	require.Error(t, err)
	assert.False(t, IsCallError(err))
}
