package testutil

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// CallHandler answers an eth_call. Returning ok=false makes the node report
// an execution revert.
type CallHandler func(to common.Address, data []byte) (ret []byte, ok bool)

// MockChain is the state served by StartMockEthRPC.
type MockChain struct {
	Head uint64
	Logs []types.Log
	Call CallHandler

	mu      sync.Mutex
	methods map[string]int
}

// MethodCount returns how many times method was requested, counting each
// element of a batch.
func (c *MockChain) MethodCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.methods[method]
}

// StartMockEthRPC creates a mock Ethereum node serving eth_blockNumber,
// eth_getLogs and eth_call, including JSON-RPC batches.
func StartMockEthRPC(t *testing.T, chain *MockChain) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
			var reqs []JSONRPCRequest
			if err := json.Unmarshal(trimmed, &reqs); err != nil {
				_ = json.NewEncoder(w).Encode(rpcError(json.RawMessage(`null`), -32700, "parse error"))
				return
			}
			resps := make([]map[string]json.RawMessage, len(reqs))
			for i, req := range reqs {
				resps[i] = chain.handle(req)
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
			return
		}
		_ = json.NewEncoder(w).Encode(chain.handle(req))
	}))
}

func (c *MockChain) handle(req JSONRPCRequest) map[string]json.RawMessage {
	c.mu.Lock()
	if c.methods == nil {
		c.methods = make(map[string]int)
	}
	c.methods[req.Method]++
	c.mu.Unlock()

	switch req.Method {
	case "eth_blockNumber":
		result, _ := json.Marshal("0x" + strconv.FormatUint(c.Head, 16))
		return rpcResult(req.ID, result)

	case "eth_getLogs":
		from, to := parseLogRange(req.Params, c.Head)
		logs := make([]types.Log, 0)
		for _, l := range c.Logs {
			if l.BlockNumber >= from && l.BlockNumber <= to {
				logs = append(logs, l)
			}
		}
		result, err := json.Marshal(logs)
		if err != nil {
			return rpcError(req.ID, -32603, err.Error())
		}
		return rpcResult(req.ID, result)

	case "eth_call":
		to, data, ok := parseEthCall(req.Params)
		if !ok {
			return rpcError(req.ID, -32602, "invalid eth_call params")
		}
		if c.Call == nil {
			return rpcError(req.ID, 3, "execution reverted")
		}
		ret, ok := c.Call(to, data)
		if !ok {
			return rpcError(req.ID, 3, "execution reverted")
		}
		result, _ := json.Marshal("0x" + hex.EncodeToString(ret))
		return rpcResult(req.ID, result)

	default:
		return rpcError(req.ID, -32601, "method not found: "+req.Method)
	}
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(rpcResult(id, result))
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	_ = json.NewEncoder(w).Encode(rpcError(id, code, message))
}

func rpcResult(id, result json.RawMessage) map[string]json.RawMessage {
	return map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	}
}

func rpcError(id json.RawMessage, code int, message string) map[string]json.RawMessage {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	return map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	}
}

func parseLogRange(params json.RawMessage, head uint64) (uint64, uint64) {
	var p []struct {
		FromBlock string `json:"fromBlock"`
		ToBlock   string `json:"toBlock"`
	}
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return 0, head
	}
	return parseBlockArg(p[0].FromBlock, 0, head), parseBlockArg(p[0].ToBlock, head, head)
}

func parseBlockArg(s string, def, head uint64) uint64 {
	switch s {
	case "":
		return def
	case "latest", "safe", "finalized", "pending":
		return head
	case "earliest":
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return def
	}
	return n
}

func parseEthCall(params json.RawMessage) (common.Address, []byte, bool) {
	var p []json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return common.Address{}, nil, false
	}
	var callObj map[string]string
	if err := json.Unmarshal(p[0], &callObj); err != nil {
		return common.Address{}, nil, false
	}
	// go-ethereum may use "data" or "input" for the calldata field
	dataHex := callObj["data"]
	if dataHex == "" {
		dataHex = callObj["input"]
	}
	data, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil || !common.IsHexAddress(callObj["to"]) {
		return common.Address{}, nil, false
	}
	return common.HexToAddress(callObj["to"]), data, true
}
