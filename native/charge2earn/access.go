package charge2earn

import (
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/host"
)

func requireAccounts(accounts []*host.AccountInfo, n int) error {
	if len(accounts) != n {
		return fmt.Errorf("%w: expected %d accounts, got %d", cerrors.ErrInvalidArgument, n, len(accounts))
	}
	return nil
}

func requireSigner(info *host.AccountInfo) error {
	if !info.IsSigner {
		return fmt.Errorf("%w: %s", cerrors.ErrMissingSignature, info.Address.Hex())
	}
	return nil
}

func requireWritable(infos ...*host.AccountInfo) error {
	for _, info := range infos {
		if !info.IsWritable {
			return fmt.Errorf("%w: %s must be writable", cerrors.ErrInvalidArgument, info.Address.Hex())
		}
	}
	return nil
}

// requireProgramOwned fails with UninitializedAccount for unallocated
// accounts and IllegalOwner for accounts of another owner.
func requireProgramOwned(info *host.AccountInfo) error {
	if !info.IsAllocated() {
		return fmt.Errorf("%w: %s", cerrors.ErrUninitializedAccount, info.Address.Hex())
	}
	if info.Owner != ProgramID {
		return fmt.Errorf("%w: %s owned by %s", cerrors.ErrIllegalOwner, info.Address.Hex(), info.Owner.Hex())
	}
	return nil
}

// requireDerived checks that info sits at the derivation of seeds and returns
// the bump that produced it.
func requireDerived(info *host.AccountInfo, seeds [][]byte) (byte, error) {
	expected, bump, err := host.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return 0, err
	}
	if expected != info.Address {
		return 0, fmt.Errorf("%w: expected %s, got %s", cerrors.ErrAddressMismatch, expected.Hex(), info.Address.Hex())
	}
	return bump, nil
}

func requireSameAddress(got, want common.Address, what string) error {
	if got != want {
		return fmt.Errorf("%w: %s is %s, expected %s", cerrors.ErrAddressMismatch, what, got.Hex(), want.Hex())
	}
	return nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d overflows", cerrors.ErrInvalidArgument, a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows", cerrors.ErrInvalidArgument, a, b)
	}
	return diff, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d overflows", cerrors.ErrInvalidArgument, a, b)
	}
	return lo, nil
}
