package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"charge2earn/core/types"
	"charge2earn/crypto"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	codeUnavailable    = -32030
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// AccountResult is the raw ledger view of an address.
type AccountResult struct {
	Address string         `json:"address"`
	Hex     common.Address `json:"hex"`
	Balance uint64         `json:"balance"`
	Owner   common.Address `json:"owner"`
	Data    hexutil.Bytes  `json:"data,omitempty"`
}

func accountResult(addr common.Address, acct *types.Account, withData bool) AccountResult {
	out := AccountResult{
		Address: crypto.EncodeAddress(addr),
		Hex:     addr,
		Balance: acct.Balance,
		Owner:   acct.Owner,
	}
	if withData {
		out.Data = acct.Data
	}
	return out
}

// BalanceResult answers c2e_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// StatusResult answers c2e_status.
type StatusResult struct {
	Height uint64      `json:"height"`
	Root   common.Hash `json:"root"`
}

// TransactionResult answers c2e_sendTransaction and c2e_simulateTransaction.
type TransactionResult struct {
	Hash      common.Hash   `json:"hash"`
	Simulated bool          `json:"simulated,omitempty"`
	Receipt   *types.Receipt `json:"receipt"`
}
