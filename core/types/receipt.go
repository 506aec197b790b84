package types

import "github.com/ethereum/go-ethereum/common"

// Receipt records the outcome of one transaction. A failed transaction leaves
// no state behind; its receipt carries the error kind instead of events.
type Receipt struct {
	TxHash    common.Hash `json:"txHash"`
	Height    uint64      `json:"height"`
	Success   bool        `json:"success"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Events    []Event     `json:"events,omitempty"`
}
