package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/types"
	"charge2earn/crypto"
)

const (
	// TypeChargerRegistered is emitted when an operator registers a charger
	// and pays the registration fee.
	TypeChargerRegistered = "charge2earn.charger.registered"
	// TypeDriverCreated is emitted the first time a driver record is
	// allocated.
	TypeDriverCreated = "charge2earn.driver.created"
	// TypeSessionStarted is emitted when a session opens.
	TypeSessionStarted = "charge2earn.session.started"
	// TypeSessionSettled is emitted when a session is paid and points are
	// credited.
	TypeSessionSettled = "charge2earn.session.settled"
	// TypeListingCreated is emitted when points are listed, including merges
	// into an existing listing.
	TypeListingCreated = "charge2earn.listing.created"
	// TypePointsPurchased is emitted when a buyer takes points from a listing.
	TypePointsPurchased = "charge2earn.listing.purchased"
	// TypeListingCancelled is emitted when a seller withdraws a listing.
	TypeListingCancelled = "charge2earn.listing.cancelled"
)

func addr(a common.Address) string { return crypto.EncodeAddress(a) }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

type ChargerRegistered struct {
	Charger      common.Address
	Operator     common.Address
	Code         string
	FeeRecipient common.Address
	Fee          uint64
}

func (ChargerRegistered) EventType() string { return TypeChargerRegistered }

func (e ChargerRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeChargerRegistered,
		Attributes: map[string]string{
			"charger":      addr(e.Charger),
			"operator":     addr(e.Operator),
			"code":         e.Code,
			"feeRecipient": addr(e.FeeRecipient),
			"fee":          u64(e.Fee),
		},
	}
}

type DriverCreated struct {
	Driver common.Address
	Owner  common.Address
}

func (DriverCreated) EventType() string { return TypeDriverCreated }

func (e DriverCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeDriverCreated,
		Attributes: map[string]string{
			"driver": addr(e.Driver),
			"owner":  addr(e.Owner),
		},
	}
}

type SessionStarted struct {
	Session common.Address
	Driver  common.Address
	Charger common.Address
	StartTs int64
}

func (SessionStarted) EventType() string { return TypeSessionStarted }

func (e SessionStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeSessionStarted,
		Attributes: map[string]string{
			"session": addr(e.Session),
			"driver":  addr(e.Driver),
			"charger": addr(e.Charger),
			"startTs": strconv.FormatInt(e.StartTs, 10),
		},
	}
}

// SessionSettled reports the payment to the operator and the points credited
// to the driver record.
type SessionSettled struct {
	Session  common.Address
	Driver   common.Address
	Charger  common.Address
	Operator common.Address
	StartTs  int64
	EndTs    int64
	Duration uint64
	Paid     uint64
	Points   uint64
}

func (SessionSettled) EventType() string { return TypeSessionSettled }

func (e SessionSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeSessionSettled,
		Attributes: map[string]string{
			"session":  addr(e.Session),
			"driver":   addr(e.Driver),
			"charger":  addr(e.Charger),
			"operator": addr(e.Operator),
			"startTs":  strconv.FormatInt(e.StartTs, 10),
			"endTs":    strconv.FormatInt(e.EndTs, 10),
			"duration": u64(e.Duration),
			"paid":     u64(e.Paid),
			"points":   u64(e.Points),
		},
	}
}

// ListingCreated carries the listing state after the new points were merged.
type ListingCreated struct {
	Listing       common.Address
	Seller        common.Address
	Amount        uint64
	Price         uint64
	Total         uint64
	PricePerPoint uint64
	Merged        bool
}

func (ListingCreated) EventType() string { return TypeListingCreated }

func (e ListingCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeListingCreated,
		Attributes: map[string]string{
			"listing":       addr(e.Listing),
			"seller":        addr(e.Seller),
			"amount":        u64(e.Amount),
			"price":         u64(e.Price),
			"total":         u64(e.Total),
			"pricePerPoint": u64(e.PricePerPoint),
			"merged":        strconv.FormatBool(e.Merged),
		},
	}
}

type PointsPurchased struct {
	Listing   common.Address
	Seller    common.Address
	Buyer     common.Address
	Amount    uint64
	Paid      uint64
	Remaining uint64
}

func (PointsPurchased) EventType() string { return TypePointsPurchased }

func (e PointsPurchased) Event() *types.Event {
	return &types.Event{
		Type: TypePointsPurchased,
		Attributes: map[string]string{
			"listing":   addr(e.Listing),
			"seller":    addr(e.Seller),
			"buyer":     addr(e.Buyer),
			"amount":    u64(e.Amount),
			"paid":      u64(e.Paid),
			"remaining": u64(e.Remaining),
		},
	}
}

type ListingCancelled struct {
	Listing  common.Address
	Seller   common.Address
	Returned uint64
}

func (ListingCancelled) EventType() string { return TypeListingCancelled }

func (e ListingCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeListingCancelled,
		Attributes: map[string]string{
			"listing":  addr(e.Listing),
			"seller":   addr(e.Seller),
			"returned": u64(e.Returned),
		},
	}
}
