package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/host"
	"charge2earn/core/state"
	"charge2earn/core/types"
)

// job is one transaction moving through prepare, run and apply.
type job struct {
	tx       *types.Transaction
	hash     common.Hash
	program  Program
	name     string
	// accounts follows the instruction's positions; a repeated address
	// shares one AccountInfo. unique lists each account once, in order of
	// first reference, and before holds its stored copy.
	accounts []*host.AccountInfo
	unique   []*host.AccountInfo
	before   []*types.Account
	hctx     *host.Context

	// err rejects the transaction; fatal aborts the whole batch.
	err   error
	fatal error
}

// prepare validates tx and loads private copies of its accounts from st.
// seen tracks hashes already admitted to the current batch and may be nil.
func (r *Runtime) prepare(st *state.Manager, tx *types.Transaction, seen map[common.Hash]struct{}) *job {
	j := &job{tx: tx}
	hash, err := tx.Hash()
	if err != nil {
		j.err = fmt.Errorf("%w: encode transaction: %v", cerrors.ErrInvalidArgument, err)
		return j
	}
	j.hash = hash
	if seen != nil {
		if _, dup := seen[hash]; dup {
			j.err = ErrDuplicateTransaction
			return j
		}
		seen[hash] = struct{}{}
	}
	applied, err := st.TransactionSeen(hash)
	if err != nil {
		j.fatal = err
		return j
	}
	if applied {
		j.err = ErrDuplicateTransaction
		return j
	}

	ix := tx.Instruction
	program, ok := r.programs[ix.ProgramID]
	if !ok {
		j.err = fmt.Errorf("%w: %w %s", cerrors.ErrInvalidArgument, ErrUnknownProgram, ix.ProgramID.Hex())
		return j
	}
	j.program = program
	j.name = "unknown"
	if namer, ok := program.(InstructionNamer); ok {
		j.name = namer.InstructionName(ix.Data)
	}

	signers, err := tx.Signers()
	if err != nil {
		j.err = fmt.Errorf("%w: %v", cerrors.ErrMissingSignature, err)
		return j
	}
	signed := make(map[common.Address]struct{}, len(signers))
	for _, s := range signers {
		signed[s] = struct{}{}
	}
	for _, meta := range ix.Accounts {
		if _, ok := signed[meta.Address]; meta.IsSigner && !ok {
			j.err = fmt.Errorf("%w: %s", cerrors.ErrMissingSignature, meta.Address.Hex())
			return j
		}
	}

	j.accounts = make([]*host.AccountInfo, len(ix.Accounts))
	byAddress := make(map[common.Address]*host.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		if info, ok := byAddress[meta.Address]; ok {
			info.IsSigner = info.IsSigner || meta.IsSigner
			info.IsWritable = info.IsWritable || meta.IsWritable
			j.accounts[i] = info
			continue
		}
		acct, err := st.Account(meta.Address)
		if err != nil {
			j.fatal = err
			return j
		}
		info := host.NewAccountInfo(meta, acct)
		byAddress[meta.Address] = info
		j.accounts[i] = info
		j.unique = append(j.unique, info)
		j.before = append(j.before, acct)
	}
	j.hctx = host.NewContext(program.ID(), r.rent)
	return j
}

// run executes the handler and checks the host invariants. It touches only
// the job's private accounts, so jobs of one wave may run concurrently.
func (r *Runtime) run(ctx context.Context, j *job) {
	if j.err != nil || j.program == nil {
		return
	}
	_, span := r.tracer.Start(ctx, "runtime.instruction")
	span.SetAttributes(
		attribute.String("instruction", j.name),
		attribute.String("tx", j.hash.Hex()),
	)
	defer span.End()

	started := time.Now()
	err := j.program.Process(j.hctx, j.accounts, j.tx.Instruction.Data)
	if err == nil {
		err = checkInvariants(j.program.ID(), j.before, j.unique)
	}
	j.err = err
	kind := cerrors.KindOf(err)
	r.metrics.ObserveTransaction(j.name, kind.String(), time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		r.logger.Info("instruction rejected",
			slog.String("tx", j.hash.Hex()),
			slog.String("instruction", j.name),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
	}
}

// apply writes a successful job's accounts into st.
func (r *Runtime) apply(st *state.Manager, j *job) error {
	if j.err != nil {
		return nil
	}
	programID := j.program.ID()
	for i, info := range j.unique {
		if !info.IsWritable {
			continue
		}
		after := info.Account()
		if after.Equal(j.before[i]) {
			continue
		}
		if err := st.PutAccount(info.Address, after); err != nil {
			return err
		}
		if j.before[i].Owner != programID && after.Owner == programID {
			if err := st.IndexProgramAccount(programID, info.Address); err != nil {
				return err
			}
		}
	}
	return st.MarkTransactionSeen(j.hash)
}

func (j *job) receipt(height uint64) *types.Receipt {
	rc := &types.Receipt{TxHash: j.hash, Height: height, Success: j.err == nil}
	if j.err != nil {
		rc.ErrorKind = cerrors.KindOf(j.err).String()
		rc.Error = j.err.Error()
		return rc
	}
	for _, e := range j.hctx.Events() {
		rc.Events = append(rc.Events, *e.Event())
	}
	return rc
}

// checkInvariants enforces what every program must respect regardless of its
// own logic: read-only accounts are untouched, native value is conserved, and
// only accounts the program owns (or just allocated) change data or owner.
func checkInvariants(programID common.Address, before []*types.Account, after []*host.AccountInfo) error {
	sumBefore := new(uint256.Int)
	sumAfter := new(uint256.Int)
	for i, info := range after {
		prev := before[i]
		sumBefore.Add(sumBefore, uint256.NewInt(prev.Balance))
		sumAfter.Add(sumAfter, uint256.NewInt(info.Balance))

		now := info.Account()
		if !info.IsWritable {
			if !now.Equal(prev) {
				return fmt.Errorf("%w: %s", cerrors.ErrReadonlyModified, info.Address.Hex())
			}
			continue
		}
		if now.Owner != prev.Owner {
			allocated := prev.Owner == types.SystemProgram && len(prev.Data) == 0 && now.Owner == programID
			if !allocated {
				return fmt.Errorf("%w: owner of %s changed", cerrors.ErrIllegalOwner, info.Address.Hex())
			}
			continue
		}
		if now.Owner != programID && !bytes.Equal(now.Data, prev.Data) {
			return fmt.Errorf("%w: data of foreign account %s modified", cerrors.ErrIllegalOwner, info.Address.Hex())
		}
		if now.Owner != programID && now.Owner != types.SystemProgram && now.Balance < prev.Balance {
			return fmt.Errorf("%w: foreign account %s debited", cerrors.ErrIllegalOwner, info.Address.Hex())
		}
	}
	if !sumBefore.Eq(sumAfter) {
		return fmt.Errorf("%w: before %s after %s", cerrors.ErrBalanceMismatch, sumBefore, sumAfter)
	}
	return nil
}
