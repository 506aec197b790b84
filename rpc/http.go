// Package rpc serves the ledger over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"charge2earn/core/state"
	"charge2earn/core/types"
	"charge2earn/indexer"
	nativecommon "charge2earn/native/common"
	"charge2earn/observability"
	"charge2earn/observability/logging"
)

const defaultMaxRequestBytes = 1 << 20

// Ledger is the node surface the server drives.
type Ledger interface {
	Execute(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Simulate(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Account(addr common.Address) (*types.Account, error)
	Credit(addr common.Address, amount uint64) (*types.Account, error)
	Snapshot() *state.Manager
	Height() uint64
	Root() common.Hash
}

// History answers indexed queries. It may be nil.
type History interface {
	DriverSessions(ctx context.Context, driver string, limit int) ([]indexer.SessionRecord, error)
	ChargerSessions(ctx context.Context, charger string, limit int) ([]indexer.SessionRecord, error)
	Events(ctx context.Context, filter indexer.EventFilter) ([]indexer.EventRecord, error)
	Transaction(ctx context.Context, hash string) (*indexer.TxRecord, bool, error)
}

type ServerConfig struct {
	// AuthToken guards mutating methods. Empty disables them.
	AuthToken string
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit    float64
	Burst        int
	TrustProxy   bool
	MaxBodyBytes int64

	Faucet      bool
	FaucetQuota nativecommon.Quota

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// TokenFromEnv reads a bearer token from the named environment variable.
func TokenFromEnv(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

type Server struct {
	ledger  Ledger
	history History
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *clientLimiter
	faucet  *nativecommon.QuotaTracker
	metrics interface {
		Observe(method string, code int, duration time.Duration)
		RecordThrottle(reason string)
	}

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(ledger Ledger, history History, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger:  ledger,
		history: history,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "rpc")),
		limiter: newClientLimiter(cfg.RateLimit, cfg.Burst),
		metrics: observability.ModuleMetrics(),
	}
	if cfg.Faucet {
		s.faucet = nativecommon.NewQuotaTracker(cfg.FaucetQuota)
	}
	return s
}

// Handler routes JSON-RPC on "/", Prometheus on "/metrics" and liveness on
// "/healthz".
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.Handler(), "c2e-rpc"),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc listening", slog.String("addr", listener.Addr().String()))
	return srv.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type methodHandler func(ctx context.Context, req *RPCRequest) (interface{}, *RPCError, int)

type method struct {
	handler  methodHandler
	mutating bool
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"c2e_sendTransaction":     {s.handleSendTransaction, true},
		"c2e_simulateTransaction": {s.handleSimulateTransaction, false},
		"c2e_status":              {s.handleStatus, false},
		"c2e_getBalance":          {s.handleGetBalance, false},
		"c2e_getAccount":          {s.handleGetAccount, false},
		"c2e_getCharger":          {s.handleGetCharger, false},
		"c2e_listChargers":        {s.handleListChargers, false},
		"c2e_getDriver":           {s.handleGetDriver, false},
		"c2e_getPurchased":        {s.handleGetPurchased, false},
		"c2e_getSession":          {s.handleGetSession, false},
		"c2e_getListing":          {s.handleGetListing, false},
		"c2e_listListings":        {s.handleListListings, false},
		"c2e_leaderboard":         {s.handleLeaderboard, false},
		"c2e_driverSessions":      {s.handleDriverSessions, false},
		"c2e_chargerSessions":     {s.handleChargerSessions, false},
		"c2e_getTransaction":      {s.handleGetTransaction, false},
		"c2e_events":              {s.handleEvents, false},
		"c2e_faucet":              {s.handleFaucet, true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Type", "application/json")

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	source := clientSource(r, s.cfg.TrustProxy)
	if !s.limiter.allow(source) {
		s.metrics.RecordThrottle("rate_limit")
		s.metrics.Observe(req.Method, codeRateLimited, time.Since(start))
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
		return
	}
	if m.mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.logger.Warn("rpc authentication failed",
				slog.String("request_id", requestID),
				slog.String("method", req.Method),
				slog.String("source", source),
				logging.MaskField("authorization", r.Header.Get("Authorization")))
			s.metrics.Observe(req.Method, authErr.Code, time.Since(start))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	result, rpcErr, status := m.handler(r.Context(), req)
	logger := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("source", source),
		slog.Duration("elapsed", time.Since(start)),
	)
	if rpcErr != nil {
		s.metrics.Observe(req.Method, rpcErr.Code, time.Since(start))
		if status >= http.StatusInternalServerError {
			logger.Error("rpc request failed", slog.String("error", rpcErr.Message))
		} else {
			logger.Debug("rpc request rejected", slog.Int("code", rpcErr.Code), slog.String("error", rpcErr.Message))
		}
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.metrics.Observe(req.Method, 0, time.Since(start))
	logger.Debug("rpc request served")
	writeResult(w, req.ID, result)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
