package host

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/types"
)

const (
	// MaxSeeds bounds the number of seeds of one derivation, bump included.
	MaxSeeds = 16
	// MaxSeedLen bounds the length of each seed.
	MaxSeedLen = 32
)

var (
	derivationMarker = []byte("ProgramDerivedAddress")

	errReservedAddress = errors.New("host: derivation collides with a reserved address")
)

// CreateProgramAddress computes the address owned by programID for the given
// seeds. When a bump is used it must already be the last seed.
func CreateProgramAddress(seeds [][]byte, programID common.Address) (common.Address, error) {
	if len(seeds) > MaxSeeds {
		return common.Address{}, fmt.Errorf("%w: %d seeds exceeds limit of %d", cerrors.ErrInvalidArgument, len(seeds), MaxSeeds)
	}
	hasher := crypto.NewKeccakState()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return common.Address{}, fmt.Errorf("%w: seed %d is %d bytes, limit %d", cerrors.ErrInvalidArgument, i, len(seed), MaxSeedLen)
		}
		hasher.Write(seed)
	}
	hasher.Write(programID.Bytes())
	hasher.Write(derivationMarker)
	var digest common.Hash
	hasher.Read(digest[:])
	addr := common.BytesToAddress(digest[common.HashLength-common.AddressLength:])
	if reserved(addr, programID) {
		return common.Address{}, errReservedAddress
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 downward and returns the first
// derivation that is not reserved, together with its bump.
func FindProgramAddress(seeds [][]byte, programID common.Address) (common.Address, byte, error) {
	if len(seeds) >= MaxSeeds {
		return common.Address{}, 0, fmt.Errorf("%w: %d seeds leaves no room for a bump", cerrors.ErrInvalidArgument, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, byte(bump), nil
		}
		if !errors.Is(err, errReservedAddress) {
			return common.Address{}, 0, err
		}
	}
	return common.Address{}, 0, fmt.Errorf("%w: no viable bump", cerrors.ErrInvalidArgument)
}

// reserved rejects derivations that alias the system program, the program
// itself or a low address whose leading 19 bytes are zero.
func reserved(addr, programID common.Address) bool {
	if addr == types.SystemProgram || addr == programID {
		return true
	}
	for _, b := range addr[:common.AddressLength-1] {
		if b != 0 {
			return false
		}
	}
	return true
}
