package runtime

import (
	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/types"
)

// Schedule packs transactions into waves. Two transactions conflict when they
// share an account that at least one of them writes; conflicting transactions
// land in different waves, in submission order. Each wave lists indexes into
// txs in ascending order.
func Schedule(txs []*types.Transaction) [][]int {
	type access struct {
		lastWriteWave int
		lastReadWave  int
	}
	seen := make(map[common.Address]*access)
	var waves [][]int
	for i, tx := range txs {
		wave := 0
		for _, meta := range tx.Instruction.Accounts {
			acc, ok := seen[meta.Address]
			if !ok {
				continue
			}
			if acc.lastWriteWave >= 0 && acc.lastWriteWave+1 > wave {
				wave = acc.lastWriteWave + 1
			}
			if meta.IsWritable && acc.lastReadWave >= 0 && acc.lastReadWave+1 > wave {
				wave = acc.lastReadWave + 1
			}
		}
		for _, meta := range tx.Instruction.Accounts {
			acc, ok := seen[meta.Address]
			if !ok {
				acc = &access{lastWriteWave: -1, lastReadWave: -1}
				seen[meta.Address] = acc
			}
			if meta.IsWritable {
				if wave > acc.lastWriteWave {
					acc.lastWriteWave = wave
				}
			} else if wave > acc.lastReadWave {
				acc.lastReadWave = wave
			}
		}
		for len(waves) <= wave {
			waves = append(waves, nil)
		}
		waves[wave] = append(waves[wave], i)
	}
	return waves
}
