package host

import (
	"fmt"
	"math/bits"

	cerrors "charge2earn/core/errors"
)

// AccountOverhead is the per-account storage charged on top of the data size.
const AccountOverhead = 128

// Rent prices account storage. An account funded with MinimumBalance for its
// size is exempt from rent collection for its lifetime.
type Rent struct {
	UnitsPerByteYear uint64
	ExemptionYears   uint64
}

// DefaultRent matches the host's default schedule.
func DefaultRent() Rent {
	return Rent{UnitsPerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns (AccountOverhead + size) * UnitsPerByteYear *
// ExemptionYears.
func (r Rent) MinimumBalance(size int) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("%w: negative account size %d", cerrors.ErrInvalidArgument, size)
	}
	hi, perYear := bits.Mul64(uint64(AccountOverhead+size), r.UnitsPerByteYear)
	if hi != 0 {
		return 0, fmt.Errorf("%w: rent overflow", cerrors.ErrInvalidArgument)
	}
	hi, total := bits.Mul64(perYear, r.ExemptionYears)
	if hi != 0 {
		return 0, fmt.Errorf("%w: rent overflow", cerrors.ErrInvalidArgument)
	}
	return total, nil
}
