package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/runtime"
	"charge2earn/core/types"
	"charge2earn/crypto"
	"charge2earn/indexer"
	"charge2earn/native/charge2earn"
)

const defaultPageSize = 50

func invalidParams(message string, data interface{}) (interface{}, *RPCError, int) {
	return nil, &RPCError{Code: codeInvalidParams, Message: message, Data: data}, http.StatusBadRequest
}

func serverError(message string, err error) (interface{}, *RPCError, int) {
	return nil, &RPCError{Code: codeServerError, Message: message, Data: err.Error()}, http.StatusInternalServerError
}

func notFound(what string) (interface{}, *RPCError, int) {
	return nil, &RPCError{Code: codeNotFound, Message: what + " not found"}, http.StatusNotFound
}

func success(result interface{}) (interface{}, *RPCError, int) {
	return result, nil, http.StatusOK
}

func paramAddress(req *RPCRequest, idx int) (common.Address, *RPCError) {
	if len(req.Params) <= idx {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("address parameter %d required", idx)}
	}
	var raw string
	if err := json.Unmarshal(req.Params[idx], &raw); err != nil {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: "address must be a string", Data: err.Error()}
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid address", Data: err.Error()}
	}
	return addr, nil
}

// paramUint reads an optional unsigned integer, returning fallback when the
// parameter is absent.
func paramUint(req *RPCRequest, idx int, fallback uint64) (uint64, *RPCError) {
	if len(req.Params) <= idx {
		return fallback, nil
	}
	var v uint64
	if err := json.Unmarshal(req.Params[idx], &v); err != nil {
		return 0, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("parameter %d must be an unsigned integer", idx), Data: err.Error()}
	}
	return v, nil
}

func paramTransaction(req *RPCRequest) (*types.Transaction, *RPCError) {
	if len(req.Params) == 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "transaction parameter required"}
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid transaction format", Data: err.Error()}
	}
	if len(tx.Signatures) == 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "transaction is unsigned"}
	}
	return &tx, nil
}

func (s *Server) query() *charge2earn.Query {
	return charge2earn.NewQuery(s.ledger.Snapshot())
}

func (s *Server) handleSendTransaction(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	tx, rpcErr := paramTransaction(req)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	hash, err := tx.Hash()
	if err != nil {
		return invalidParams("failed to hash transaction", err.Error())
	}
	receipt, err := s.ledger.Execute(ctx, tx)
	if errors.Is(err, runtime.ErrDuplicateTransaction) {
		return nil, &RPCError{Code: codeDuplicateTx, Message: "transaction has already been submitted", Data: hash.Hex()}, http.StatusConflict
	}
	if err != nil {
		return serverError("failed to execute transaction", err)
	}
	return success(TransactionResult{Hash: hash, Receipt: receipt})
}

func (s *Server) handleSimulateTransaction(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	tx, rpcErr := paramTransaction(req)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	hash, err := tx.Hash()
	if err != nil {
		return invalidParams("failed to hash transaction", err.Error())
	}
	receipt, err := s.ledger.Simulate(ctx, tx)
	if err != nil {
		return serverError("failed to simulate transaction", err)
	}
	return success(TransactionResult{Hash: hash, Simulated: true, Receipt: receipt})
}

func (s *Server) handleStatus(context.Context, *RPCRequest) (interface{}, *RPCError, int) {
	return success(StatusResult{Height: s.ledger.Height(), Root: s.ledger.Root()})
}

func (s *Server) handleGetBalance(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	addr, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	acct, err := s.ledger.Account(addr)
	if err != nil {
		return serverError("failed to load account", err)
	}
	return success(BalanceResult{Address: crypto.EncodeAddress(addr), Balance: acct.Balance})
}

func (s *Server) handleGetAccount(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	addr, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	acct, err := s.ledger.Account(addr)
	if err != nil {
		return serverError("failed to load account", err)
	}
	return success(accountResult(addr, acct, true))
}

func (s *Server) handleGetCharger(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	addr, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	record, found, err := s.query().Charger(addr)
	if err != nil {
		return serverError("failed to load charger", err)
	}
	if !found {
		return notFound("charger")
	}
	return success(charge2earn.ChargerView{Account: addr, ChargerRecord: *record})
}

func (s *Server) handleListChargers(context.Context, *RPCRequest) (interface{}, *RPCError, int) {
	chargers, err := s.query().Chargers()
	if err != nil {
		return serverError("failed to list chargers", err)
	}
	return success(chargers)
}

func (s *Server) handleGetDriver(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	owner, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	record, found, err := s.query().Driver(owner)
	if err != nil {
		return serverError("failed to load driver", err)
	}
	if !found {
		return notFound("driver")
	}
	addr, err := charge2earn.DriverAddress(owner)
	if err != nil {
		return serverError("failed to derive driver address", err)
	}
	return success(charge2earn.DriverView{Account: addr, DriverAccount: *record})
}

func (s *Server) handleGetPurchased(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	owner, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	record, found, err := s.query().Purchased(owner)
	if err != nil {
		return serverError("failed to load purchased points", err)
	}
	if !found {
		return notFound("purchased points")
	}
	return success(record)
}

func (s *Server) handleGetSession(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	addr, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	record, found, err := s.query().Session(addr)
	if err != nil {
		return serverError("failed to load session", err)
	}
	if !found {
		return notFound("session")
	}
	return success(record)
}

func (s *Server) handleGetListing(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	seller, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	record, found, err := s.query().Listing(seller)
	if err != nil {
		return serverError("failed to load listing", err)
	}
	if !found {
		return notFound("listing")
	}
	addr, err := charge2earn.ListingAddress(seller)
	if err != nil {
		return serverError("failed to derive listing address", err)
	}
	return success(charge2earn.ListingView{Account: addr, ListingRecord: *record})
}

func (s *Server) handleListListings(context.Context, *RPCRequest) (interface{}, *RPCError, int) {
	listings, err := s.query().Listings()
	if err != nil {
		return serverError("failed to list listings", err)
	}
	return success(listings)
}

func (s *Server) handleLeaderboard(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	limit, rpcErr := paramUint(req, 0, defaultPageSize)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	board, err := s.query().Leaderboard(int(min(limit, 1000)))
	if err != nil {
		return serverError("failed to rank drivers", err)
	}
	return success(board)
}

func (s *Server) handleDriverSessions(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	if s.history == nil {
		return s.historyUnavailable()
	}
	owner, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	limit, rpcErr := paramUint(req, 1, defaultPageSize)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	driver, err := charge2earn.DriverAddress(owner)
	if err != nil {
		return serverError("failed to derive driver address", err)
	}
	sessions, err := s.history.DriverSessions(ctx, crypto.EncodeAddress(driver), int(min(limit, 500)))
	if err != nil {
		return serverError("failed to query sessions", err)
	}
	return success(sessions)
}

func (s *Server) historyUnavailable() (interface{}, *RPCError, int) {
	return nil, &RPCError{Code: codeUnavailable, Message: "history index not configured"}, http.StatusServiceUnavailable
}

func (s *Server) handleChargerSessions(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	if s.history == nil {
		return s.historyUnavailable()
	}
	charger, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	limit, rpcErr := paramUint(req, 1, defaultPageSize)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	sessions, err := s.history.ChargerSessions(ctx, crypto.EncodeAddress(charger), int(min(limit, 500)))
	if err != nil {
		return serverError("failed to query sessions", err)
	}
	return success(sessions)
}

func (s *Server) handleGetTransaction(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	if s.history == nil {
		return s.historyUnavailable()
	}
	if len(req.Params) == 0 {
		return invalidParams("transaction hash required", nil)
	}
	var hash common.Hash
	if err := json.Unmarshal(req.Params[0], &hash); err != nil {
		return invalidParams("invalid transaction hash", err.Error())
	}
	record, ok, err := s.history.Transaction(ctx, hash.Hex())
	if err != nil {
		return serverError("failed to query transaction", err)
	}
	if !ok {
		return notFound("transaction")
	}
	return success(record)
}

// EventsParams filters c2e_events. Heights are inclusive; zero leaves a
// bound open.
type EventsParams struct {
	Type       string `json:"type,omitempty"`
	FromHeight uint64 `json:"fromHeight,omitempty"`
	ToHeight   uint64 `json:"toHeight,omitempty"`
	Limit      uint64 `json:"limit,omitempty"`
}

func (s *Server) handleEvents(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	if s.history == nil {
		return s.historyUnavailable()
	}
	var params EventsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			return invalidParams("invalid event filter", err.Error())
		}
	}
	if params.ToHeight > 0 && params.FromHeight > params.ToHeight {
		return invalidParams("fromHeight must not exceed toHeight", nil)
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	evts, err := s.history.Events(ctx, indexer.EventFilter{
		Type:       params.Type,
		FromHeight: params.FromHeight,
		ToHeight:   params.ToHeight,
		Limit:      int(min(limit, 500)),
	})
	if err != nil {
		return serverError("failed to query events", err)
	}
	return success(evts)
}

func (s *Server) handleFaucet(_ context.Context, req *RPCRequest) (interface{}, *RPCError, int) {
	if s.faucet == nil {
		return nil, &RPCError{Code: codeUnavailable, Message: "faucet disabled"}, http.StatusServiceUnavailable
	}
	addr, rpcErr := paramAddress(req, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	amount, rpcErr := paramUint(req, 1, 0)
	if rpcErr != nil {
		return nil, rpcErr, http.StatusBadRequest
	}
	if amount == 0 {
		return invalidParams("amount must be positive", nil)
	}
	current, err := s.ledger.Account(addr)
	if err != nil {
		return serverError("failed to load account", err)
	}
	if current.Owner != types.SystemProgram {
		return invalidParams("faucet can only fund wallets", addr.Hex()+" is program-owned")
	}
	if err := s.faucet.Charge(addr, amount); err != nil {
		s.metrics.RecordThrottle("faucet_quota")
		return nil, &RPCError{Code: codeRateLimited, Message: "faucet quota exceeded", Data: err.Error()}, http.StatusTooManyRequests
	}
	acct, err := s.ledger.Credit(addr, amount)
	if errors.Is(err, cerrors.ErrIllegalOwner) {
		return invalidParams("faucet can only fund wallets", err.Error())
	}
	if err != nil {
		return serverError("failed to credit account", err)
	}
	return success(accountResult(addr, acct, false))
}
