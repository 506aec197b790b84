package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"charge2earn/core/types"
)

var (
	accountPrefix        = []byte("account:")
	programAccountPrefix = []byte("program-accounts:")
	seenTxPrefix         = []byte("tx-seen:")
)

func accountKey(addr common.Address) []byte {
	return prefixed(accountPrefix, addr.Bytes())
}

func programAccountsKey(program common.Address) []byte {
	return prefixed(programAccountPrefix, program.Bytes())
}

func seenTxKey(hash common.Hash) []byte {
	return prefixed(seenTxPrefix, hash.Bytes())
}

func prefixed(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// Account returns the account stored at addr. Unknown addresses yield an
// empty system-owned account.
func (m *Manager) Account(addr common.Address) (*types.Account, error) {
	data, err := m.trie.Get(kvKey(accountKey(addr)))
	if err != nil {
		return nil, err
	}
	account := new(types.Account)
	if len(data) == 0 {
		return account, nil
	}
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr.Hex(), err)
	}
	return account, nil
}

// PutAccount writes account at addr. Empty accounts are removed so the trie
// only holds live state.
func (m *Manager) PutAccount(addr common.Address, account *types.Account) error {
	key := kvKey(accountKey(addr))
	if account.IsEmpty() {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// IndexProgramAccount records addr in the owner program's account list so the
// program's records can be enumerated without scanning the trie.
func (m *Manager) IndexProgramAccount(program, addr common.Address) error {
	return m.KVAppend(programAccountsKey(program), addr.Bytes())
}

// ProgramAccounts lists the addresses ever allocated to program, in
// allocation order.
func (m *Manager) ProgramAccounts(program common.Address) ([]common.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(programAccountsKey(program), &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, entry := range raw {
		out = append(out, common.BytesToAddress(entry))
	}
	return out, nil
}

// MarkTransactionSeen records hash so replays are rejected.
func (m *Manager) MarkTransactionSeen(hash common.Hash) error {
	return m.KVPut(seenTxKey(hash), true)
}

// TransactionSeen reports whether hash was already applied.
func (m *Manager) TransactionSeen(hash common.Hash) (bool, error) {
	return m.KVGet(seenTxKey(hash), nil)
}
