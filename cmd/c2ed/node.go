package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"charge2earn/config"
	"charge2earn/core/events"
	"charge2earn/core/runtime"
	"charge2earn/indexer"
	"charge2earn/native/charge2earn"
	"charge2earn/observability"
	"charge2earn/observability/logging"
	"charge2earn/rpc"
	"charge2earn/storage"
)

// node bundles the long-lived components of a running daemon.
type node struct {
	db      *storage.LevelDB
	index   *indexer.Indexer
	runtime *runtime.Runtime
	server  *rpc.Server
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// openNode opens the ledger state and the history index, registers the
// program and applies genesis on an empty ledger.
func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath(), storage.LevelOptions{})
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	index, err := indexer.Open(cfg.IndexerPath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open indexer: %w", err)
	}
	n := &node{db: db, index: index}

	params, err := cfg.ProgramParams()
	if err != nil {
		n.close()
		return nil, err
	}
	rt, err := runtime.New(db, runtime.Options{
		Rent:    cfg.RentSchedule(),
		Logger:  logger,
		Emitter: events.Fanout{observability.Events()},
		Sinks:   []runtime.ReceiptSink{index},
		Workers: cfg.Workers,
	})
	if err != nil {
		n.close()
		return nil, fmt.Errorf("open runtime: %w", err)
	}
	program := charge2earn.New(params)
	program.SetPauses(cfg.PauseView())
	rt.Register(program)
	n.runtime = rt

	if rt.Height() == 0 {
		alloc, err := cfg.GenesisAlloc()
		if err != nil {
			n.close()
			return nil, err
		}
		if err := rt.Genesis(alloc); err != nil && !errors.Is(err, runtime.ErrGenesisApplied) {
			n.close()
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied", slog.Int("allocations", len(alloc)), slog.String("root", rt.Root().Hex()))
	}

	indexed, err := index.LastHeight(ctx)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("read indexer height: %w", err)
	}
	logger.Info("ledger opened",
		slog.Uint64("height", rt.Height()),
		slog.Uint64("indexedHeight", indexed),
		slog.String("root", rt.Root().Hex()))

	token := rpc.TokenFromEnv(cfg.RPC.AuthTokenEnv)
	if token == "" {
		logger.Warn("no RPC auth token configured; mutating methods are disabled",
			slog.String("env", cfg.RPC.AuthTokenEnv))
	} else {
		logger.Info("RPC auth token loaded", logging.MaskField("token", token))
	}
	n.server = rpc.NewServer(rt, index, rpc.ServerConfig{
		AuthToken:         token,
		RateLimit:         cfg.RPC.RateLimit,
		Burst:             cfg.RPC.Burst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		Faucet:            cfg.Faucet.Enabled,
		FaucetQuota:       cfg.FaucetQuota(),
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
	}, logger)
	return n, nil
}

func (n *node) close() {
	if n.index != nil {
		_ = n.index.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}
