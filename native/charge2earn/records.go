package charge2earn

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/codec"
	cerrors "charge2earn/core/errors"
)

// RecordKind is the leading byte of every stored record.
type RecordKind uint8

const (
	KindCharger   RecordKind = 1
	KindDriver    RecordKind = 2
	KindSession   RecordKind = 3
	KindListing   RecordKind = 4
	KindPurchased RecordKind = 5
)

const (
	recordHeaderSize = 1 + 1
	DriverSize       = recordHeaderSize + common.AddressLength + 8
	SessionSize      = recordHeaderSize + 2*common.AddressLength + 8 + 8 + 8 + 1
	ListingSize      = recordHeaderSize + common.AddressLength + 8 + 8
	PurchasedSize    = recordHeaderSize + common.AddressLength + 8
)

// ChargerRecord describes a registered charging station. It never changes
// after registration.
type ChargerRecord struct {
	Initialized bool           `json:"initialized"`
	Operator    common.Address `json:"operator"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	City        string         `json:"city"`
	Address     string         `json:"address"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	PowerKW     float32        `json:"powerKw"`
	RewardRate  uint64         `json:"rewardRate"`
	PriceRate   uint64         `json:"priceRate"`
}

func (c *ChargerRecord) Size() int {
	return recordHeaderSize + common.AddressLength +
		codec.StringSize(c.Code) + codec.StringSize(c.Name) +
		codec.StringSize(c.City) + codec.StringSize(c.Address) +
		8 + 8 + 4 + 8 + 8
}

func (c *ChargerRecord) Encode() []byte {
	w := codec.NewWriter(c.Size())
	w.U8(uint8(KindCharger))
	w.Bool(c.Initialized)
	w.Address(c.Operator)
	w.String(c.Code)
	w.String(c.Name)
	w.String(c.City)
	w.String(c.Address)
	w.F64(c.Latitude)
	w.F64(c.Longitude)
	w.F32(c.PowerKW)
	w.U64(c.RewardRate)
	w.U64(c.PriceRate)
	return w.Bytes()
}

// DriverAccount holds the points a driver earned by charging.
type DriverAccount struct {
	Initialized bool           `json:"initialized"`
	Owner       common.Address `json:"owner"`
	Balance     uint64         `json:"balance"`
}

func (d *DriverAccount) Encode() []byte {
	w := codec.NewWriter(DriverSize)
	w.U8(uint8(KindDriver))
	w.Bool(d.Initialized)
	w.Address(d.Owner)
	w.U64(d.Balance)
	return w.Bytes()
}

// SessionRecord is one charging session. Driver and Charger are the record
// addresses, not identities.
type SessionRecord struct {
	Initialized   bool           `json:"initialized"`
	Driver        common.Address `json:"driver"`
	Charger       common.Address `json:"charger"`
	StartTs       int64          `json:"startTs"`
	EndTs         int64          `json:"endTs"`
	PointsAwarded uint64         `json:"pointsAwarded"`
	Settled       bool           `json:"settled"`
}

func (s *SessionRecord) Encode() []byte {
	w := codec.NewWriter(SessionSize)
	w.U8(uint8(KindSession))
	w.Bool(s.Initialized)
	w.Address(s.Driver)
	w.Address(s.Charger)
	w.I64(s.StartTs)
	w.I64(s.EndTs)
	w.U64(s.PointsAwarded)
	w.Bool(s.Settled)
	return w.Bytes()
}

// ListingRecord is a seller's pooled offer. Total is what remains for sale.
type ListingRecord struct {
	Initialized   bool           `json:"initialized"`
	Seller        common.Address `json:"seller"`
	Total         uint64         `json:"total"`
	PricePerPoint uint64         `json:"pricePerPoint"`
}

func (l *ListingRecord) Encode() []byte {
	w := codec.NewWriter(ListingSize)
	w.U8(uint8(KindListing))
	w.Bool(l.Initialized)
	w.Address(l.Seller)
	w.U64(l.Total)
	w.U64(l.PricePerPoint)
	return w.Bytes()
}

// PurchasedPoints holds points bought on the marketplace. They are tracked
// apart from DriverAccount and cannot be listed again.
type PurchasedPoints struct {
	Initialized bool           `json:"initialized"`
	Owner       common.Address `json:"owner"`
	Balance     uint64         `json:"balance"`
}

func (p *PurchasedPoints) Encode() []byte {
	w := codec.NewWriter(PurchasedSize)
	w.U8(uint8(KindPurchased))
	w.Bool(p.Initialized)
	w.Address(p.Owner)
	w.U64(p.Balance)
	return w.Bytes()
}

// openRecord checks the kind byte and returns a reader positioned after it.
// Empty data means the record was never written.
func openRecord(data []byte, kind RecordKind) (*codec.Reader, error) {
	if len(data) == 0 {
		return nil, cerrors.ErrUninitializedAccount
	}
	r := codec.NewReader(data)
	if got := RecordKind(r.U8()); got != kind {
		return nil, fmt.Errorf("%w: record kind %d, expected %d", cerrors.ErrInvalidArgument, got, kind)
	}
	return r, nil
}

func finishRecord(r *codec.Reader) error {
	if err := r.Finish(); err != nil {
		return fmt.Errorf("%w: %v", cerrors.ErrInvalidArgument, err)
	}
	return nil
}

func DecodeCharger(data []byte) (*ChargerRecord, error) {
	r, err := openRecord(data, KindCharger)
	if err != nil {
		return nil, err
	}
	c := &ChargerRecord{
		Initialized: r.Bool(),
		Operator:    r.Address(),
		Code:        r.String(),
		Name:        r.String(),
		City:        r.String(),
		Address:     r.String(),
		Latitude:    r.F64(),
		Longitude:   r.F64(),
		PowerKW:     r.F32(),
		RewardRate:  r.U64(),
		PriceRate:   r.U64(),
	}
	return c, finishRecord(r)
}

func DecodeDriver(data []byte) (*DriverAccount, error) {
	r, err := openRecord(data, KindDriver)
	if err != nil {
		return nil, err
	}
	d := &DriverAccount{Initialized: r.Bool(), Owner: r.Address(), Balance: r.U64()}
	return d, finishRecord(r)
}

func DecodeSession(data []byte) (*SessionRecord, error) {
	r, err := openRecord(data, KindSession)
	if err != nil {
		return nil, err
	}
	s := &SessionRecord{
		Initialized:   r.Bool(),
		Driver:        r.Address(),
		Charger:       r.Address(),
		StartTs:       r.I64(),
		EndTs:         r.I64(),
		PointsAwarded: r.U64(),
		Settled:       r.Bool(),
	}
	return s, finishRecord(r)
}

func DecodeListing(data []byte) (*ListingRecord, error) {
	r, err := openRecord(data, KindListing)
	if err != nil {
		return nil, err
	}
	l := &ListingRecord{Initialized: r.Bool(), Seller: r.Address(), Total: r.U64(), PricePerPoint: r.U64()}
	return l, finishRecord(r)
}

func DecodePurchased(data []byte) (*PurchasedPoints, error) {
	r, err := openRecord(data, KindPurchased)
	if err != nil {
		return nil, err
	}
	p := &PurchasedPoints{Initialized: r.Bool(), Owner: r.Address(), Balance: r.U64()}
	return p, finishRecord(r)
}
