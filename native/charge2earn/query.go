package charge2earn

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/types"
)

// StateReader is the read access queries need from committed state.
type StateReader interface {
	Account(addr common.Address) (*types.Account, error)
	ProgramAccounts(program common.Address) ([]common.Address, error)
}

// ChargerView pairs a charger record with the account holding it.
type ChargerView struct {
	Account common.Address `json:"account"`
	ChargerRecord
}

type DriverView struct {
	Account common.Address `json:"account"`
	DriverAccount
}

type ListingView struct {
	Account common.Address `json:"account"`
	ListingRecord
}

// Query serves read-only views of program records.
type Query struct {
	state StateReader
}

func NewQuery(state StateReader) *Query {
	return &Query{state: state}
}

// record loads the program-owned data at addr. ok is false when nothing was
// ever allocated there.
func (q *Query) record(addr common.Address) ([]byte, bool, error) {
	acct, err := q.state.Account(addr)
	if err != nil {
		return nil, false, err
	}
	if acct.Owner != ProgramID || len(acct.Data) == 0 {
		return nil, false, nil
	}
	return acct.Data, true, nil
}

func (q *Query) Charger(addr common.Address) (*ChargerRecord, bool, error) {
	data, ok, err := q.record(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := DecodeCharger(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Driver returns the earned-points record of owner.
func (q *Query) Driver(owner common.Address) (*DriverAccount, bool, error) {
	addr, err := DriverAddress(owner)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := q.record(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := DecodeDriver(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (q *Query) Session(addr common.Address) (*SessionRecord, bool, error) {
	data, ok, err := q.record(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := DecodeSession(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Listing returns the listing of seller, including a cancelled one.
func (q *Query) Listing(seller common.Address) (*ListingRecord, bool, error) {
	addr, err := ListingAddress(seller)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := q.record(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := DecodeListing(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Purchased returns the bought-points record of owner.
func (q *Query) Purchased(owner common.Address) (*PurchasedPoints, bool, error) {
	addr, err := PurchasedAddress(owner)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := q.record(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := DecodePurchased(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// scan visits every program record of kind in allocation order.
func (q *Query) scan(kind RecordKind, visit func(addr common.Address, data []byte) error) error {
	addrs, err := q.state.ProgramAccounts(ProgramID)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		data, ok, err := q.record(addr)
		if err != nil {
			return err
		}
		if !ok || RecordKind(data[0]) != kind {
			continue
		}
		if err := visit(addr, data); err != nil {
			return err
		}
	}
	return nil
}

// Chargers lists every registered charger.
func (q *Query) Chargers() ([]ChargerView, error) {
	out := []ChargerView{}
	err := q.scan(KindCharger, func(addr common.Address, data []byte) error {
		record, err := DecodeCharger(data)
		if err != nil {
			return err
		}
		out = append(out, ChargerView{Account: addr, ChargerRecord: *record})
		return nil
	})
	return out, err
}

// Listings lists open listings with points left, cheapest first.
func (q *Query) Listings() ([]ListingView, error) {
	out := []ListingView{}
	err := q.scan(KindListing, func(addr common.Address, data []byte) error {
		record, err := DecodeListing(data)
		if err != nil {
			return err
		}
		if record.Initialized && record.Total > 0 {
			out = append(out, ListingView{Account: addr, ListingRecord: *record})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PricePerPoint != out[j].PricePerPoint {
			return out[i].PricePerPoint < out[j].PricePerPoint
		}
		return bytes.Compare(out[i].Account.Bytes(), out[j].Account.Bytes()) < 0
	})
	return out, nil
}

// Leaderboard ranks drivers by earned balance, highest first, ties broken by
// owner address. A non-positive limit returns every driver.
func (q *Query) Leaderboard(limit int) ([]DriverView, error) {
	out := []DriverView{}
	err := q.scan(KindDriver, func(addr common.Address, data []byte) error {
		record, err := DecodeDriver(data)
		if err != nil {
			return err
		}
		out = append(out, DriverView{Account: addr, DriverAccount: *record})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return bytes.Compare(out[i].Owner.Bytes(), out[j].Owner.Bytes()) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
