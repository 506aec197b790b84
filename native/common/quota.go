package common

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota: request limit exceeded")
	ErrQuotaAmountExceeded   = errors.New("quota: amount cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota: counter overflow")
)

// QuotaNow is the usage of one address within the current epoch.
type QuotaNow struct {
	Requests uint32
	Amount   uint64
	EpochID  uint64
}

// Quota bounds what one address may draw per epoch. Zero limits are
// unlimited.
type Quota struct {
	MaxRequests  uint32
	MaxAmount    uint64
	EpochSeconds uint32
}

// Epoch returns the epoch containing now.
func (q Quota) Epoch(now time.Time) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	return uint64(now.Unix()) / uint64(q.EpochSeconds)
}

// CheckQuota returns the counters after adding one request of amount, or
// prev unchanged with an error when a limit would be crossed.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, amount uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.Requests > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.Requests += addReq
	}
	if q.MaxRequests > 0 && next.Requests > q.MaxRequests {
		return prev, ErrQuotaRequestsExceeded
	}

	if amount > 0 {
		if next.Amount > math.MaxUint64-amount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Amount += amount
	}
	if q.MaxAmount > 0 && next.Amount > q.MaxAmount {
		return prev, ErrQuotaAmountExceeded
	}

	return next, nil
}

// QuotaTracker applies one Quota to many addresses.
type QuotaTracker struct {
	quota Quota
	now   func() time.Time

	mu    sync.Mutex
	usage map[common.Address]QuotaNow
}

func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, now: time.Now, usage: make(map[common.Address]QuotaNow)}
}

// Charge records one request of amount for addr when it fits the quota.
func (t *QuotaTracker) Charge(addr common.Address, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := CheckQuota(t.quota, t.quota.Epoch(t.now()), t.usage[addr], 1, amount)
	if err != nil {
		return err
	}
	t.usage[addr] = next
	return nil
}

// Usage reports the counters of addr.
func (t *QuotaTracker) Usage(addr common.Address) QuotaNow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage[addr]
}
