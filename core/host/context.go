package host

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/events"
	"charge2earn/core/types"
)

// AccountInfo is the view of one declared account handed to a program. The
// runtime loads a private copy per instruction and writes it back only when
// the instruction succeeds.
type AccountInfo struct {
	Address    common.Address
	IsSigner   bool
	IsWritable bool
	Balance    uint64
	Owner      common.Address
	Data       []byte
}

// NewAccountInfo wraps a stored account with its declared access flags.
func NewAccountInfo(meta types.AccountMeta, account *types.Account) *AccountInfo {
	cp := account.Copy()
	return &AccountInfo{
		Address:    meta.Address,
		IsSigner:   meta.IsSigner,
		IsWritable: meta.IsWritable,
		Balance:    cp.Balance,
		Owner:      cp.Owner,
		Data:       cp.Data,
	}
}

// Account returns the stored form of the view.
func (a *AccountInfo) Account() *types.Account {
	return &types.Account{
		Balance: a.Balance,
		Owner:   a.Owner,
		Data:    append([]byte(nil), a.Data...),
	}
}

// IsAllocated reports whether storage has been assigned to the account.
func (a *AccountInfo) IsAllocated() bool {
	return len(a.Data) > 0 || a.Owner != types.SystemProgram
}

// Context carries the host services available to one program invocation.
type Context struct {
	ProgramID common.Address
	Rent      Rent

	events []events.Event
}

// NewContext returns a context for programID.
func NewContext(programID common.Address, rent Rent) *Context {
	return &Context{ProgramID: programID, Rent: rent}
}

// Emit buffers an event. Buffered events are published only when the
// instruction commits.
func (c *Context) Emit(e events.Event) {
	if e == nil {
		return
	}
	c.events = append(c.events, e)
}

// Events returns the buffered events in emission order.
func (c *Context) Events() []events.Event {
	return append([]events.Event(nil), c.events...)
}

// CreateAccount allocates size bytes of program-owned storage at target,
// funding rent exemption from funder. seeds and bump must reproduce target
// under the context's program.
func (c *Context) CreateAccount(funder, target *AccountInfo, size int, seeds [][]byte, bump byte) error {
	if !funder.IsSigner {
		return fmt.Errorf("%w: funder %s", cerrors.ErrMissingSignature, funder.Address.Hex())
	}
	if !funder.IsWritable || !target.IsWritable {
		return fmt.Errorf("%w: account creation requires writable funder and target", cerrors.ErrReadonlyModified)
	}
	if funder.Owner != types.SystemProgram {
		return fmt.Errorf("%w: funder %s is program-owned", cerrors.ErrIllegalOwner, funder.Address.Hex())
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	withBump[len(seeds)] = []byte{bump}
	expected, err := CreateProgramAddress(withBump, c.ProgramID)
	if err != nil {
		return fmt.Errorf("%w: %v", cerrors.ErrAddressMismatch, err)
	}
	if expected != target.Address {
		return fmt.Errorf("%w: expected %s, got %s", cerrors.ErrAddressMismatch, expected.Hex(), target.Address.Hex())
	}
	if target.IsAllocated() {
		return fmt.Errorf("%w: %s", cerrors.ErrAccountInUse, target.Address.Hex())
	}
	minimum, err := c.Rent.MinimumBalance(size)
	if err != nil {
		return err
	}
	var required uint64
	if target.Balance < minimum {
		required = minimum - target.Balance
	}
	if funder.Balance < required {
		return fmt.Errorf("%w: rent exemption needs %d, funder holds %d", cerrors.ErrInsufficientFunds, required, funder.Balance)
	}
	funder.Balance -= required
	target.Balance += required
	target.Owner = c.ProgramID
	target.Data = make([]byte, size)
	return nil
}

// Transfer moves native units between two accounts. The source must be a
// signing, system-owned account.
func (c *Context) Transfer(from, to *AccountInfo, amount uint64) error {
	if !from.IsSigner {
		return fmt.Errorf("%w: transfer source %s", cerrors.ErrMissingSignature, from.Address.Hex())
	}
	if !from.IsWritable || !to.IsWritable {
		return fmt.Errorf("%w: transfer requires writable accounts", cerrors.ErrReadonlyModified)
	}
	if from.Owner != types.SystemProgram {
		return fmt.Errorf("%w: transfer source %s is program-owned", cerrors.ErrIllegalOwner, from.Address.Hex())
	}
	if from.Balance < amount {
		return fmt.Errorf("%w: need %d, have %d", cerrors.ErrInsufficientFunds, amount, from.Balance)
	}
	if from.Address == to.Address {
		return nil
	}
	if to.Balance > ^uint64(0)-amount {
		return fmt.Errorf("%w: recipient balance overflow", cerrors.ErrInvalidArgument)
	}
	from.Balance -= amount
	to.Balance += amount
	return nil
}
