package types

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// SystemProgram owns every account that no program has claimed. Only
// system-owned accounts may be debited by a native transfer.
var SystemProgram = common.Address{}

// Account is the unit of ledger storage: a native balance, the program that
// owns the account and an opaque data region only the owner may modify.
type Account struct {
	Balance uint64         `json:"balance"`
	Owner   common.Address `json:"owner"`
	Data    []byte         `json:"data"`
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	if a == nil {
		return &Account{}
	}
	return &Account{
		Balance: a.Balance,
		Owner:   a.Owner,
		Data:    append([]byte(nil), a.Data...),
	}
}

// IsEmpty reports whether the account holds nothing and has never been
// allocated. Empty accounts are not persisted.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Balance == 0 && a.Owner == SystemProgram && len(a.Data) == 0)
}

// IsAllocated reports whether storage was assigned to the account.
func (a *Account) IsAllocated() bool {
	return a != nil && (len(a.Data) > 0 || a.Owner != SystemProgram)
}

func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a.IsEmpty() && other.IsEmpty()
	}
	return a.Balance == other.Balance && a.Owner == other.Owner && bytes.Equal(a.Data, other.Data)
}
