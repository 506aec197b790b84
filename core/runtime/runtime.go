// Package runtime executes signed transactions against ledger state: it
// verifies signatures, loads the declared accounts, dispatches to the owning
// program, enforces the host invariants and commits atomically.
package runtime

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/events"
	"charge2earn/core/host"
	"charge2earn/core/state"
	"charge2earn/core/types"
	"charge2earn/observability"
	"charge2earn/storage"
	"charge2earn/storage/trie"
)

var (
	ErrDuplicateTransaction = errors.New("runtime: transaction already applied")
	ErrUnknownProgram       = errors.New("runtime: unknown program")
	ErrGenesisApplied       = errors.New("runtime: genesis already applied")
)

var (
	headRootKey   = []byte("head-root")
	headHeightKey = []byte("head-height")
)

// Program is a native program the runtime can dispatch to.
type Program interface {
	ID() common.Address
	Process(ctx *host.Context, accounts []*host.AccountInfo, data []byte) error
}

// InstructionNamer is implemented by programs that can label instructions for
// metrics and traces.
type InstructionNamer interface {
	InstructionName(data []byte) string
}

// ReceiptSink consumes committed receipts, e.g. to index history.
type ReceiptSink interface {
	IndexReceipts(ctx context.Context, height uint64, receipts []*types.Receipt) error
}

// Options tunes a runtime.
type Options struct {
	Rent    host.Rent
	Logger  *slog.Logger
	Emitter events.Emitter
	// Sinks receive the receipts of every committed height.
	Sinks []ReceiptSink
	// Workers bounds the handlers run concurrently inside one wave. Zero
	// means no limit.
	Workers int
}

// Runtime owns the committed ledger state. All methods are safe for
// concurrent use; commits are serialised.
type Runtime struct {
	mu       sync.Mutex
	db       storage.Database
	state    *state.Manager
	height   uint64
	programs map[common.Address]Program

	rent    host.Rent
	logger  *slog.Logger
	emitter events.Emitter
	sinks   []ReceiptSink
	workers int
	metrics *observability.RuntimeMetrics
	tracer  trace.Tracer
}

// New opens the runtime on db, resuming from the last committed head.
func New(db storage.Database, opts Options) (*Runtime, error) {
	root, height, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("runtime: open state at %x: %w", root, err)
	}
	if err := state.EnsureStateVersion(tr, height == 0); err != nil {
		return nil, err
	}
	rt := &Runtime{
		db:       db,
		state:    state.NewManager(tr),
		height:   height,
		programs: make(map[common.Address]Program),
		rent:     opts.Rent,
		logger:   opts.Logger,
		emitter:  opts.Emitter,
		sinks:    opts.Sinks,
		workers:  opts.Workers,
		metrics:  observability.Runtime(),
		tracer:   otel.Tracer("charge2earn/runtime"),
	}
	if rt.rent == (host.Rent{}) {
		rt.rent = host.DefaultRent()
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}
	if rt.emitter == nil {
		rt.emitter = events.NoopEmitter{}
	}
	rt.metrics.SetHeight(height)
	return rt, nil
}

func loadHead(db storage.Database) ([]byte, uint64, error) {
	ok, err := db.Has(headRootKey)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	root, err := db.Get(headRootKey)
	if err != nil {
		return nil, 0, err
	}
	raw, err := db.Get(headHeightKey)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) != 8 {
		return nil, 0, fmt.Errorf("runtime: corrupt head height")
	}
	return root, binary.BigEndian.Uint64(raw), nil
}

// Register makes program dispatchable.
func (r *Runtime) Register(program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[program.ID()] = program
}

// Height returns the latest committed height.
func (r *Runtime) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.height
}

// Root returns the latest committed state root.
func (r *Runtime) Root() common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Root()
}

// Snapshot returns a private view of committed state for queries.
func (r *Runtime) Snapshot() *state.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Copy()
}

// Account returns the committed account at addr.
func (r *Runtime) Account(addr common.Address) (*types.Account, error) {
	return r.Snapshot().Account(addr)
}

// Genesis funds the given identities and commits height 1. It may only run
// on an empty ledger.
func (r *Runtime) Genesis(alloc map[common.Address]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.height != 0 {
		return ErrGenesisApplied
	}
	staged := r.state.Copy()
	for addr, balance := range alloc {
		if err := staged.PutAccount(addr, &types.Account{Balance: balance}); err != nil {
			return err
		}
	}
	return r.commitLocked(staged, nil)
}

// Credit adds amount to a system-owned identity outside of any program. It
// backs the development faucet and commits a new height.
func (r *Runtime) Credit(addr common.Address, amount uint64) (*types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.Copy()
	acct, err := staged.Account(addr)
	if err != nil {
		return nil, err
	}
	if acct.Owner != types.SystemProgram {
		return nil, fmt.Errorf("%w: %s is program-owned", cerrors.ErrIllegalOwner, addr.Hex())
	}
	if acct.Balance > ^uint64(0)-amount {
		return nil, fmt.Errorf("%w: balance overflow", cerrors.ErrInvalidArgument)
	}
	acct.Balance += amount
	if err := staged.PutAccount(addr, acct); err != nil {
		return nil, err
	}
	if err := r.commitLocked(staged, nil); err != nil {
		return nil, err
	}
	return acct, nil
}

// Simulate executes tx against committed state and discards the result.
func (r *Runtime) Simulate(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	r.mu.Lock()
	snapshot := r.state.Copy()
	height := r.height
	r.mu.Unlock()

	job := r.prepare(snapshot, tx, nil)
	if job.fatal != nil {
		return nil, job.fatal
	}
	r.run(ctx, job)
	return job.receipt(height + 1), nil
}

// Execute applies a single transaction and commits a new height. Failed
// instructions still return a receipt; the error is reserved for replays and
// storage failures.
func (r *Runtime) Execute(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipts, err := r.ExecuteBatch(ctx, []*types.Transaction{tx})
	if err != nil {
		return nil, err
	}
	if errors.Is(receipts[0].err, ErrDuplicateTransaction) {
		return nil, ErrDuplicateTransaction
	}
	return receipts[0].Receipt, nil
}

// BatchReceipt pairs a receipt with the execution error behind it.
type BatchReceipt struct {
	*types.Receipt
	err error
}

// Err returns the error that rejected the transaction, if any.
func (b BatchReceipt) Err() error { return b.err }

// ExecuteBatch applies txs as one height. Non-conflicting transactions of a
// wave run concurrently; results are committed in submission order. Each
// transaction is atomic on its own: a rejected one leaves no trace while the
// rest of the batch proceeds.
func (r *Runtime) ExecuteBatch(ctx context.Context, txs []*types.Transaction) ([]BatchReceipt, error) {
	ctx, span := r.tracer.Start(ctx, "runtime.ExecuteBatch", trace.WithAttributes(attribute.Int("txs", len(txs))))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.state.Copy()
	height := r.height + 1
	jobs := make([]*job, len(txs))
	inBatch := make(map[common.Hash]struct{}, len(txs))
	waves := Schedule(txs)
	r.metrics.ObserveBatch(len(waves))

	for _, wave := range waves {
		for _, idx := range wave {
			jobs[idx] = r.prepare(staged, txs[idx], inBatch)
			if jobs[idx].fatal != nil {
				span.RecordError(jobs[idx].fatal)
				span.SetStatus(codes.Error, "prepare failed")
				return nil, jobs[idx].fatal
			}
		}
		group, gctx := errgroup.WithContext(ctx)
		if r.workers > 0 {
			group.SetLimit(r.workers)
		}
		for _, idx := range wave {
			j := jobs[idx]
			group.Go(func() error {
				r.run(gctx, j)
				return nil
			})
		}
		_ = group.Wait()
		for _, idx := range wave {
			if err := r.apply(staged, jobs[idx]); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "apply failed")
				return nil, err
			}
		}
	}

	var committed []events.Event
	out := make([]BatchReceipt, len(jobs))
	receipts := make([]*types.Receipt, 0, len(jobs))
	for i, j := range jobs {
		out[i] = BatchReceipt{Receipt: j.receipt(height), err: j.err}
		if errors.Is(j.err, ErrDuplicateTransaction) {
			continue
		}
		receipts = append(receipts, out[i].Receipt)
		if j.err == nil {
			committed = append(committed, j.hctx.Events()...)
		}
	}
	if err := r.commitLocked(staged, committed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, err
	}
	for _, sink := range r.sinks {
		if err := sink.IndexReceipts(ctx, height, receipts); err != nil {
			r.logger.Warn("receipt sink failed", slog.Uint64("height", height), slog.Any("error", err))
		}
	}
	return out, nil
}

func (r *Runtime) commitLocked(staged *state.Manager, committed []events.Event) error {
	height := r.height + 1
	if r.height == 0 {
		if err := staged.SetStateVersion(state.StateVersion); err != nil {
			return err
		}
	}
	root, err := staged.Commit(height)
	if err != nil {
		return fmt.Errorf("runtime: commit height %d: %w", height, err)
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], height)
	if err := r.db.Put(headRootKey, root.Bytes()); err != nil {
		return err
	}
	if err := r.db.Put(headHeightKey, raw[:]); err != nil {
		return err
	}
	r.state = staged
	r.height = height
	r.metrics.SetHeight(height)
	r.logger.Debug("runtime committed", slog.Uint64("height", height), slog.String("root", root.Hex()), slog.Int("events", len(committed)))
	for _, e := range committed {
		r.emitter.Emit(e)
	}
	return nil
}
