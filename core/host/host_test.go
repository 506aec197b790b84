package host

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/types"
)

var testProgram = common.HexToAddress("0xc2e0000000000000000000000000000000000001")

func TestFindProgramAddressIsDeterministic(t *testing.T) {
	seeds := [][]byte{[]byte("driver"), common.HexToAddress("0x01").Bytes()}
	first, bump, err := FindProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	second, bump2, err := FindProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first != second || bump != bump2 {
		t.Fatalf("derivation not deterministic")
	}
	recreated, err := CreateProgramAddress(append(seeds, []byte{bump}), testProgram)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if recreated != first {
		t.Fatalf("create/find mismatch: %s vs %s", recreated.Hex(), first.Hex())
	}
	other, _, err := FindProgramAddress([][]byte{[]byte("user"), common.HexToAddress("0x01").Bytes()}, testProgram)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if other == first {
		t.Fatalf("distinct domains must derive distinct addresses")
	}
}

func TestDerivationSeedLimits(t *testing.T) {
	long := make([]byte, MaxSeedLen+1)
	if _, _, err := FindProgramAddress([][]byte{long}, testProgram); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for long seed, got %v", err)
	}
	many := make([][]byte, MaxSeeds)
	if _, _, err := FindProgramAddress(many, testProgram); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for seed count, got %v", err)
	}
}

func TestRentMinimumBalance(t *testing.T) {
	got, err := DefaultRent().MinimumBalance(30)
	if err != nil {
		t.Fatalf("minimum balance: %v", err)
	}
	if want := uint64((128 + 30) * 3480 * 2); got != want {
		t.Fatalf("unexpected minimum: got %d want %d", got, want)
	}
	if _, err := (Rent{UnitsPerByteYear: ^uint64(0), ExemptionYears: 2}).MinimumBalance(1); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func derivedTarget(t *testing.T, seeds [][]byte) (*AccountInfo, byte) {
	t.Helper()
	addr, bump, err := FindProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return &AccountInfo{Address: addr, IsWritable: true}, bump
}

func TestCreateAccount(t *testing.T) {
	ctx := NewContext(testProgram, DefaultRent())
	funder := &AccountInfo{Address: common.HexToAddress("0xf1"), IsSigner: true, IsWritable: true, Balance: 10_000_000}
	seeds := [][]byte{[]byte("driver"), funder.Address.Bytes()}
	target, bump := derivedTarget(t, seeds)

	if err := ctx.CreateAccount(funder, target, 30, seeds, bump); err != nil {
		t.Fatalf("create: %v", err)
	}
	minimum, _ := DefaultRent().MinimumBalance(30)
	if target.Balance != minimum || funder.Balance != 10_000_000-minimum {
		t.Fatalf("unexpected balances funder=%d target=%d", funder.Balance, target.Balance)
	}
	if target.Owner != testProgram || len(target.Data) != 30 {
		t.Fatalf("target not allocated: owner=%s size=%d", target.Owner.Hex(), len(target.Data))
	}
	if err := ctx.CreateAccount(funder, target, 30, seeds, bump); !errors.Is(err, cerrors.ErrAccountInUse) {
		t.Fatalf("expected account in use, got %v", err)
	}
}

func TestCreateAccountRejections(t *testing.T) {
	ctx := NewContext(testProgram, DefaultRent())
	seeds := [][]byte{[]byte("listing"), common.HexToAddress("0xf2").Bytes()}

	poor := &AccountInfo{Address: common.HexToAddress("0xf2"), IsSigner: true, IsWritable: true, Balance: 1}
	target, bump := derivedTarget(t, seeds)
	if err := ctx.CreateAccount(poor, target, 10, seeds, bump); !errors.Is(err, cerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if target.IsAllocated() || poor.Balance != 1 {
		t.Fatalf("failed creation mutated accounts")
	}

	unsigned := &AccountInfo{Address: common.HexToAddress("0xf2"), IsWritable: true, Balance: 1 << 40}
	if err := ctx.CreateAccount(unsigned, target, 10, seeds, bump); !errors.Is(err, cerrors.ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}

	rich := &AccountInfo{Address: common.HexToAddress("0xf2"), IsSigner: true, IsWritable: true, Balance: 1 << 40}
	wrong := &AccountInfo{Address: common.HexToAddress("0x1234"), IsWritable: true}
	if err := ctx.CreateAccount(rich, wrong, 10, seeds, bump); !errors.Is(err, cerrors.ErrAddressMismatch) {
		t.Fatalf("expected address mismatch, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	ctx := NewContext(testProgram, DefaultRent())
	from := &AccountInfo{Address: common.HexToAddress("0x01"), IsSigner: true, IsWritable: true, Balance: 100}
	to := &AccountInfo{Address: common.HexToAddress("0x02"), IsWritable: true, Balance: 5}

	if err := ctx.Transfer(from, to, 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if from.Balance != 40 || to.Balance != 65 {
		t.Fatalf("unexpected balances %d/%d", from.Balance, to.Balance)
	}
	if err := ctx.Transfer(from, to, 41); !errors.Is(err, cerrors.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	from.IsSigner = false
	if err := ctx.Transfer(from, to, 1); !errors.Is(err, cerrors.ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
	owned := &AccountInfo{Address: common.HexToAddress("0x03"), IsSigner: true, IsWritable: true, Balance: 10, Owner: testProgram}
	if err := ctx.Transfer(owned, to, 1); !errors.Is(err, cerrors.ErrIllegalOwner) {
		t.Fatalf("expected illegal owner, got %v", err)
	}
	full := &AccountInfo{Address: common.HexToAddress("0x04"), IsWritable: true, Balance: ^uint64(0)}
	from.IsSigner = true
	if err := ctx.Transfer(from, full, 1); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestAccountInfoRoundTrip(t *testing.T) {
	stored := &types.Account{Balance: 9, Owner: testProgram, Data: []byte{4, 5}}
	info := NewAccountInfo(types.AccountMeta{Address: common.HexToAddress("0x09"), IsWritable: true}, stored)
	info.Data[0] = 7
	if stored.Data[0] != 4 {
		t.Fatalf("account info aliases stored data")
	}
	if got := info.Account(); got.Balance != 9 || got.Data[0] != 7 {
		t.Fatalf("unexpected account %+v", got)
	}
}
