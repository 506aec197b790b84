package runtime

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/host"
	"charge2earn/core/types"
	"charge2earn/storage"
)

var testProgramID = common.HexToAddress("0x7e57000000000000000000000000000000000001")

const (
	opTransfer byte = iota
	opMint
	opTouchReadonly
	opTransferThenFail
	opCreate
)

type testProgram struct{}

func (testProgram) ID() common.Address { return testProgramID }

func (testProgram) InstructionName(data []byte) string { return "test" }

func (testProgram) Process(ctx *host.Context, accounts []*host.AccountInfo, data []byte) error {
	switch data[0] {
	case opTransfer:
		return ctx.Transfer(accounts[0], accounts[1], uint64(data[1]))
	case opMint:
		accounts[0].Balance += 5
		return nil
	case opTouchReadonly:
		accounts[1].Balance--
		accounts[0].Balance++
		return nil
	case opTransferThenFail:
		if err := ctx.Transfer(accounts[0], accounts[1], uint64(data[1])); err != nil {
			return err
		}
		return cerrors.ErrInvalidArgument
	case opCreate:
		seeds := [][]byte{[]byte("slot"), accounts[0].Address.Bytes()}
		_, bump, err := host.FindProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return err
		}
		if err := ctx.CreateAccount(accounts[0], accounts[1], 4, seeds, bump); err != nil {
			return err
		}
		copy(accounts[1].Data, []byte{1, 2, 3, 4})
		return nil
	}
	return cerrors.ErrInvalidArgument
}

type wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func newRuntime(t *testing.T, db storage.Database, alloc map[common.Address]uint64) *Runtime {
	t.Helper()
	rt, err := New(db, Options{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	rt.Register(testProgram{})
	if alloc != nil {
		if err := rt.Genesis(alloc); err != nil {
			t.Fatalf("genesis: %v", err)
		}
	}
	return rt
}

func signedTx(t *testing.T, nonce uint64, data []byte, metas []types.AccountMeta, signers ...wallet) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Instruction: types.Instruction{ProgramID: testProgramID, Accounts: metas, Data: data},
		Nonce:       nonce,
	}
	for _, w := range signers {
		if err := tx.Sign(w.key); err != nil {
			t.Fatalf("sign: %v", err)
		}
	}
	return tx
}

func balanceOf(t *testing.T, rt *Runtime, addr common.Address) uint64 {
	t.Helper()
	acct, err := rt.Account(addr)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	return acct.Balance
}

func TestExecuteTransferCommits(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice, bob := newWallet(t), newWallet(t)
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 100})

	tx := signedTx(t, 1, []byte{opTransfer, 30}, []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: bob.addr, IsWritable: true},
	}, alice)
	receipt, err := rt.Execute(context.Background(), tx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("expected success, got %s: %s", receipt.ErrorKind, receipt.Error)
	}
	if balanceOf(t, rt, alice.addr) != 70 || balanceOf(t, rt, bob.addr) != 30 {
		t.Fatalf("unexpected balances")
	}
	if rt.Height() != 2 {
		t.Fatalf("expected height 2, got %d", rt.Height())
	}
	if _, err := rt.Execute(context.Background(), tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestExecuteRejections(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice, bob := newWallet(t), newWallet(t)
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 100, bob.addr: 10})

	transferMetas := []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: bob.addr, IsWritable: true},
	}
	cases := []struct {
		name string
		tx   *types.Transaction
		kind cerrors.Kind
	}{
		{"unsigned", signedTx(t, 1, []byte{opTransfer, 1}, transferMetas), cerrors.KindMissingSignature},
		{"wrong signer", signedTx(t, 2, []byte{opTransfer, 1}, transferMetas, bob), cerrors.KindMissingSignature},
		{"aliased mint", signedTx(t, 3, []byte{opMint}, []types.AccountMeta{
			{Address: alice.addr, IsSigner: true, IsWritable: true},
			{Address: alice.addr, IsWritable: true},
		}, alice), cerrors.KindBalanceMismatch},
		{"mint", signedTx(t, 4, []byte{opMint}, transferMetas, alice), cerrors.KindBalanceMismatch},
		{"readonly", signedTx(t, 5, []byte{opTouchReadonly}, []types.AccountMeta{
			{Address: alice.addr, IsSigner: true, IsWritable: true},
			{Address: bob.addr},
		}, alice), cerrors.KindReadonlyModified},
		{"handler failure", signedTx(t, 6, []byte{opTransferThenFail, 50}, transferMetas, alice), cerrors.KindInvalidArgument},
	}
	root := rt.Root()
	for _, tc := range cases {
		receipt, err := rt.Execute(context.Background(), tc.tx)
		if err != nil {
			t.Fatalf("%s: execute: %v", tc.name, err)
		}
		if receipt.Success || receipt.ErrorKind != tc.kind.String() {
			t.Fatalf("%s: expected %s, got success=%v kind=%s", tc.name, tc.kind, receipt.Success, receipt.ErrorKind)
		}
	}
	if balanceOf(t, rt, alice.addr) != 100 || balanceOf(t, rt, bob.addr) != 10 {
		t.Fatalf("rejected transactions changed balances")
	}
	if rt.Root() != root {
		t.Fatalf("rejected transactions changed the state root")
	}
}

func TestRepeatedAccountSharesOneView(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice, bob := newWallet(t), newWallet(t)
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 100, bob.addr: 10})

	// Paying yourself is a no-op; the signer flag comes from the second position.
	self := signedTx(t, 1, []byte{opTransfer, 30}, []types.AccountMeta{
		{Address: alice.addr, IsWritable: true},
		{Address: alice.addr, IsSigner: true, IsWritable: true},
	}, alice)
	receipt, err := rt.Execute(context.Background(), self)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("expected success, got %s: %s", receipt.ErrorKind, receipt.Error)
	}
	if got := balanceOf(t, rt, alice.addr); got != 100 {
		t.Fatalf("self transfer changed the balance to %d", got)
	}

	// bob is read-only at position 1 but writable at position 2.
	touch := signedTx(t, 2, []byte{opTouchReadonly}, []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: bob.addr},
		{Address: bob.addr, IsWritable: true},
	}, alice)
	receipt, err = rt.Execute(context.Background(), touch)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("expected success, got %s: %s", receipt.ErrorKind, receipt.Error)
	}
	if balanceOf(t, rt, alice.addr) != 101 || balanceOf(t, rt, bob.addr) != 9 {
		t.Fatalf("unexpected balances after aliased write")
	}
}

func TestCreateAccountIndexesProgramAccount(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice := newWallet(t)
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 10_000_000})

	slot, _, err := host.FindProgramAddress([][]byte{[]byte("slot"), alice.addr.Bytes()}, testProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	tx := signedTx(t, 1, []byte{opCreate}, []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: slot, IsWritable: true},
	}, alice)
	receipt, err := rt.Execute(context.Background(), tx)
	if err != nil || !receipt.Success {
		t.Fatalf("execute: err=%v receipt=%+v", err, receipt)
	}
	list, err := rt.Snapshot().ProgramAccounts(testProgramID)
	if err != nil {
		t.Fatalf("program accounts: %v", err)
	}
	if len(list) != 1 || list[0] != slot {
		t.Fatalf("unexpected program accounts %v", list)
	}
	acct, err := rt.Account(slot)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Owner != testProgramID || string(acct.Data) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected slot account %+v", acct)
	}
}

func TestSimulateDoesNotCommit(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice, bob := newWallet(t), newWallet(t)
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 100})

	tx := signedTx(t, 1, []byte{opTransfer, 40}, []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: bob.addr, IsWritable: true},
	}, alice)
	receipt, err := rt.Simulate(context.Background(), tx)
	if err != nil || !receipt.Success {
		t.Fatalf("simulate: err=%v receipt=%+v", err, receipt)
	}
	if balanceOf(t, rt, alice.addr) != 100 || rt.Height() != 1 {
		t.Fatalf("simulation leaked state")
	}
}

func TestExecuteBatchRunsIndependentTransactions(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	wallets := make([]wallet, 6)
	alloc := make(map[common.Address]uint64)
	for i := range wallets {
		wallets[i] = newWallet(t)
		alloc[wallets[i].addr] = 50
	}
	rt := newRuntime(t, db, alloc)

	sink := newWallet(t)
	var txs []*types.Transaction
	for i, w := range wallets {
		txs = append(txs, signedTx(t, uint64(i), []byte{opTransfer, 10}, []types.AccountMeta{
			{Address: w.addr, IsSigner: true, IsWritable: true},
			{Address: sink.addr, IsWritable: true},
		}, w))
	}
	// Overdraft in the middle must not disturb its neighbours.
	txs = append(txs, signedTx(t, 99, []byte{opTransfer, 200}, []types.AccountMeta{
		{Address: wallets[0].addr, IsSigner: true, IsWritable: true},
		{Address: wallets[1].addr, IsWritable: true},
	}, wallets[0]))

	receipts, err := rt.ExecuteBatch(context.Background(), txs)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	for i, rc := range receipts[:len(wallets)] {
		if !rc.Success {
			t.Fatalf("tx %d failed: %s", i, rc.Error)
		}
	}
	last := receipts[len(receipts)-1]
	if last.Success || !errors.Is(last.Err(), cerrors.ErrInsufficientFunds) {
		t.Fatalf("expected overdraft rejection, got %+v", last.Receipt)
	}
	if got := balanceOf(t, rt, sink.addr); got != 60 {
		t.Fatalf("expected sink balance 60, got %d", got)
	}
}

func TestRuntimeResumesFromDisk(t *testing.T) {
	dir := t.TempDir()
	alice, bob := newWallet(t), newWallet(t)

	db, err := storage.NewLevelDB(dir, storage.LevelOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rt := newRuntime(t, db, map[common.Address]uint64{alice.addr: 100})
	tx := signedTx(t, 1, []byte{opTransfer, 25}, []types.AccountMeta{
		{Address: alice.addr, IsSigner: true, IsWritable: true},
		{Address: bob.addr, IsWritable: true},
	}, alice)
	if _, err := rt.Execute(context.Background(), tx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	root := rt.Root()
	db.Close()

	reopened, err := storage.NewLevelDB(dir, storage.LevelOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rt = newRuntime(t, reopened, nil)
	if rt.Height() != 2 || rt.Root() != root {
		t.Fatalf("unexpected head height=%d root=%s", rt.Height(), rt.Root().Hex())
	}
	if balanceOf(t, rt, bob.addr) != 25 {
		t.Fatalf("transfer not persisted")
	}
	if err := rt.Genesis(map[common.Address]uint64{bob.addr: 1}); !errors.Is(err, ErrGenesisApplied) {
		t.Fatalf("expected genesis rejection, got %v", err)
	}
	if _, err := rt.Execute(context.Background(), tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected replay rejection after restart, got %v", err)
	}
}

func TestCreditFundsIdentity(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	alice := newWallet(t)
	rt := newRuntime(t, db, nil)
	acct, err := rt.Credit(alice.addr, 500)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if acct.Balance != 500 || balanceOf(t, rt, alice.addr) != 500 {
		t.Fatalf("credit not applied")
	}
}
