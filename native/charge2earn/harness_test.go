package charge2earn

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/runtime"
	"charge2earn/core/types"
	"charge2earn/storage"
)

const startingBalance = 10 * UnitsPerCoin

type wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

type harness struct {
	t       *testing.T
	rt      *runtime.Runtime
	program *Program
	// treasury collects registration fees in tests that do not care where
	// the fee goes.
	treasury wallet
	nonce    uint64
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func newHarness(t *testing.T, params Params, funded ...wallet) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	rt, err := runtime.New(db, runtime.Options{})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	program := New(params)
	rt.Register(program)
	treasury := newWallet(t)
	alloc := make(map[common.Address]uint64, len(funded)+1)
	alloc[treasury.addr] = startingBalance
	for _, w := range funded {
		alloc[w.addr] = startingBalance
	}
	if err := rt.Genesis(alloc); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return &harness{t: t, rt: rt, program: program, treasury: treasury}
}

func (h *harness) exec(ix types.Instruction, err error, signers ...wallet) *types.Receipt {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("build instruction: %v", err)
	}
	h.nonce++
	tx := &types.Transaction{Instruction: ix, Nonce: h.nonce}
	for _, s := range signers {
		if err := tx.Sign(s.key); err != nil {
			h.t.Fatalf("sign: %v", err)
		}
	}
	receipt, execErr := h.rt.Execute(context.Background(), tx)
	if execErr != nil {
		h.t.Fatalf("execute: %v", execErr)
	}
	return receipt
}

func (h *harness) mustSucceed(receipt *types.Receipt) {
	h.t.Helper()
	if !receipt.Success {
		h.t.Fatalf("expected success, got %s: %s", receipt.ErrorKind, receipt.Error)
	}
}

func (h *harness) mustFail(receipt *types.Receipt, kind cerrors.Kind) {
	h.t.Helper()
	if receipt.Success {
		h.t.Fatalf("expected %s, got success", kind)
	}
	if receipt.ErrorKind != kind.String() {
		h.t.Fatalf("expected %s, got %s: %s", kind, receipt.ErrorKind, receipt.Error)
	}
}

func (h *harness) query() *Query {
	return NewQuery(h.rt.Snapshot())
}

func (h *harness) native(addr common.Address) uint64 {
	h.t.Helper()
	acct, err := h.rt.Account(addr)
	if err != nil {
		h.t.Fatalf("account: %v", err)
	}
	return acct.Balance
}

func (h *harness) driverBalance(owner common.Address) uint64 {
	h.t.Helper()
	record, ok, err := h.query().Driver(owner)
	if err != nil {
		h.t.Fatalf("driver: %v", err)
	}
	if !ok {
		h.t.Fatalf("driver record of %s missing", owner.Hex())
	}
	return record.Balance
}

func (h *harness) listing(seller common.Address) *ListingRecord {
	h.t.Helper()
	record, ok, err := h.query().Listing(seller)
	if err != nil {
		h.t.Fatalf("listing: %v", err)
	}
	if !ok {
		h.t.Fatalf("listing of %s missing", seller.Hex())
	}
	return record
}

func (h *harness) registerCharger(operator, recipient wallet, code string, reward, price uint64) common.Address {
	h.t.Helper()
	ix, err := NewAddChargerInstruction(operator.addr, recipient.addr, AddCharger{
		Code:       code,
		Name:       "Depot " + code,
		City:       "Lisbon",
		Address:    "Rua Augusta 1",
		Latitude:   38.7106,
		Longitude:  -9.1366,
		PowerKW:    150,
		RewardRate: reward,
		PriceRate:  price,
	})
	h.mustSucceed(h.exec(ix, err, operator))
	addr, err := ChargerAddress(code, operator.addr)
	if err != nil {
		h.t.Fatalf("charger address: %v", err)
	}
	return addr
}

// charge opens and settles one session.
func (h *harness) charge(driver wallet, charger common.Address, operator wallet, start, end int64) {
	h.t.Helper()
	ix, err := NewStartSessionInstruction(driver.addr, charger, start)
	h.mustSucceed(h.exec(ix, err, driver))
	ix, err = NewStopSessionInstruction(driver.addr, charger, operator.addr, start, end)
	h.mustSucceed(h.exec(ix, err, driver))
}

// pointsInCirculation sums every point-holding record and every settled
// session's award.
func (h *harness) pointsInCirculation() (held, awarded uint64) {
	h.t.Helper()
	snapshot := h.rt.Snapshot()
	addrs, err := snapshot.ProgramAccounts(ProgramID)
	if err != nil {
		h.t.Fatalf("program accounts: %v", err)
	}
	for _, addr := range addrs {
		acct, err := snapshot.Account(addr)
		if err != nil {
			h.t.Fatalf("account: %v", err)
		}
		switch RecordKind(acct.Data[0]) {
		case KindDriver:
			d, err := DecodeDriver(acct.Data)
			if err != nil {
				h.t.Fatalf("decode driver: %v", err)
			}
			held += d.Balance
		case KindPurchased:
			p, err := DecodePurchased(acct.Data)
			if err != nil {
				h.t.Fatalf("decode purchased: %v", err)
			}
			held += p.Balance
		case KindListing:
			l, err := DecodeListing(acct.Data)
			if err != nil {
				h.t.Fatalf("decode listing: %v", err)
			}
			held += l.Total
		case KindSession:
			s, err := DecodeSession(acct.Data)
			if err != nil {
				h.t.Fatalf("decode session: %v", err)
			}
			if s.Settled {
				awarded += s.PointsAwarded
			}
		}
	}
	return held, awarded
}
