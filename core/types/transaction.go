package types

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"
)

// AccountMeta declares one account an instruction touches and how.
type AccountMeta struct {
	Address    common.Address `json:"address"`
	IsSigner   bool           `json:"isSigner"`
	IsWritable bool           `json:"isWritable"`
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID common.Address `json:"programId"`
	Accounts  []AccountMeta  `json:"accounts"`
	Data      hexutil.Bytes  `json:"data"`
}

// Transaction carries one instruction plus the signatures of every account
// the instruction flags as signer.
type Transaction struct {
	Instruction Instruction     `json:"instruction"`
	Nonce       uint64          `json:"nonce"`
	Signatures  []hexutil.Bytes `json:"signatures"`
}

type signingMessage struct {
	ProgramID common.Address
	Accounts  []AccountMeta
	Data      []byte
	Nonce     uint64
}

// Digest is the 32-byte value every signer signs: blake3 over the RLP
// encoding of the instruction and nonce.
func (tx *Transaction) Digest() (common.Hash, error) {
	encoded, err := rlp.EncodeToBytes(signingMessage{
		ProgramID: tx.Instruction.ProgramID,
		Accounts:  tx.Instruction.Accounts,
		Data:      tx.Instruction.Data,
		Nonce:     tx.Nonce,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(blake3.Sum256(encoded)), nil
}

// Hash identifies the transaction. Signatures are excluded so a re-signed
// copy of the same message is still recognised as a duplicate.
func (tx *Transaction) Hash() (common.Hash, error) {
	return tx.Digest()
}

// Sign appends a signature produced by key.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	digest, err := tx.Digest()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// Signers recovers the identity behind every signature.
func (tx *Transaction) Signers() ([]common.Address, error) {
	digest, err := tx.Digest()
	if err != nil {
		return nil, err
	}
	signers := make([]common.Address, 0, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		if len(sig) != crypto.SignatureLength {
			return nil, fmt.Errorf("signature %d: expected %d bytes, got %d", i, crypto.SignatureLength, len(sig))
		}
		pub, err := crypto.SigToPub(digest.Bytes(), sig)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		signers = append(signers, crypto.PubkeyToAddress(*pub))
	}
	return signers, nil
}
