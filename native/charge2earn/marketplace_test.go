package charge2earn

import (
	"errors"
	"math"
	"testing"

	cerrors "charge2earn/core/errors"
)

// earner registers a free charger paying 5 points per second and lets
// driver earn points over seconds.
func earner(t *testing.T, h *harness, operator, driver wallet, code string, seconds int64) {
	t.Helper()
	charger := h.registerCharger(operator, h.treasury, code, 5, 0)
	h.charge(driver, charger, operator, 0, seconds)
}

func TestCreateListingMergesWeightedPrice(t *testing.T) {
	operator, seller := newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller)
	earner(t, h, operator, seller, "M1", 30)

	ix, err := NewCreateListingInstruction(seller.addr, 100, 10)
	receipt := h.exec(ix, err, seller)
	h.mustSucceed(receipt)
	if receipt.Events[0].Attributes["merged"] != "false" {
		t.Fatalf("first listing must not merge: %v", receipt.Events[0].Attributes)
	}
	ix, err = NewCreateListingInstruction(seller.addr, 50, 40)
	receipt = h.exec(ix, err, seller)
	h.mustSucceed(receipt)
	if receipt.Events[0].Attributes["merged"] != "true" {
		t.Fatalf("second listing must merge: %v", receipt.Events[0].Attributes)
	}

	listing := h.listing(seller.addr)
	if listing.Total != 150 || listing.PricePerPoint != 20 {
		t.Fatalf("expected 150@20, got %d@%d", listing.Total, listing.PricePerPoint)
	}
	if got := h.driverBalance(seller.addr); got != 0 {
		t.Fatalf("listed points must be debited, balance %d", got)
	}
}

func TestCreateListingRejections(t *testing.T) {
	operator, seller, stranger := newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller, stranger)
	earner(t, h, operator, seller, "R1", 10)

	ix, err := NewCreateListingInstruction(seller.addr, 0, 10)
	h.mustFail(h.exec(ix, err, seller), cerrors.KindInvalidArgument)

	ix, err = NewCreateListingInstruction(seller.addr, 51, 10)
	h.mustFail(h.exec(ix, err, seller), cerrors.KindInsufficientFunds)

	ix, err = NewCreateListingInstruction(stranger.addr, 1, 10)
	h.mustFail(h.exec(ix, err, stranger), cerrors.KindUninitializedAccount)

	// The stranger cannot list from the seller's record.
	ix, err = NewCreateListingInstruction(stranger.addr, 1, 10)
	sellerRec, _ := DriverAddress(seller.addr)
	ix.Accounts[1].Address = sellerRec
	h.mustFail(h.exec(ix, err, stranger), cerrors.KindAddressMismatch)

	if got := h.driverBalance(seller.addr); got != 50 {
		t.Fatalf("rejections changed the balance to %d", got)
	}
	if _, ok, err := h.query().Listing(seller.addr); err != nil || ok {
		t.Fatalf("rejected listings must not allocate a record")
	}
}

func TestBuyFromListing(t *testing.T) {
	operator, seller, buyer, other := newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller, buyer, other)
	earner(t, h, operator, seller, "B1", 20)

	ix, err := NewCreateListingInstruction(seller.addr, 100, 7)
	h.mustSucceed(h.exec(ix, err, seller))

	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 0)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindInvalidArgument)
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 101)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindInvalidArgument)
	if got := h.listing(seller.addr); got.Total != 100 || got.PricePerPoint != 7 {
		t.Fatalf("over-purchase changed the listing: %+v", got)
	}

	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 10)
	ix.Accounts[3].Address = other.addr
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindAddressMismatch)

	sellerBefore, otherBefore := h.native(seller.addr), h.native(other.addr)
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 40)
	h.mustSucceed(h.exec(ix, err, buyer))
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 60)
	h.mustSucceed(h.exec(ix, err, buyer))

	if got := h.listing(seller.addr); got.Total != 0 || !got.Initialized {
		t.Fatalf("exact purchase must leave an initialized empty listing, got %+v", got)
	}
	if got := h.native(seller.addr); got != sellerBefore+700 {
		t.Fatalf("seller should receive 700, got %d", got-sellerBefore)
	}
	if h.native(other.addr) != otherBefore {
		t.Fatalf("bystander balance changed")
	}
	purchased, ok, err := h.query().Purchased(buyer.addr)
	if err != nil || !ok || purchased.Balance != 100 || purchased.Owner != buyer.addr {
		t.Fatalf("unexpected purchased ledger %+v ok=%v err=%v", purchased, ok, err)
	}

	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 1)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindInvalidArgument)
	if listings, err := h.query().Listings(); err != nil || len(listings) != 0 {
		t.Fatalf("empty listings must not be offered: %v err=%v", listings, err)
	}
}

func TestSellerBuysOwnListing(t *testing.T) {
	operator, seller := newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller)
	earner(t, h, operator, seller, "B9", 20)

	ix, err := NewCreateListingInstruction(seller.addr, 50, 9)
	h.mustSucceed(h.exec(ix, err, seller))

	before := h.native(seller.addr)
	ix, err = NewBuyFromListingInstruction(seller.addr, seller.addr, 10)
	receipt := h.exec(ix, err, seller)
	h.mustSucceed(receipt)
	if got := h.listing(seller.addr).Total; got != 40 {
		t.Fatalf("expected listing total 40, got %d", got)
	}
	purchased, ok, err := h.query().Purchased(seller.addr)
	if err != nil || !ok || purchased.Balance != 10 {
		t.Fatalf("unexpected purchased ledger %+v ok=%v err=%v", purchased, ok, err)
	}
	rent, _ := h.rt.Snapshot().Account(mustPurchased(t, seller.addr))
	if got := before - h.native(seller.addr); got != rent.Balance {
		t.Fatalf("self purchase must only cost rent %d, paid %d", rent.Balance, got)
	}
	if receipt.Events[0].Attributes["paid"] != "90" {
		t.Fatalf("unexpected purchase event %v", receipt.Events[0].Attributes)
	}
	held, awarded := h.pointsInCirculation()
	if held != awarded {
		t.Fatalf("conservation broken: held %d awarded %d", held, awarded)
	}
}

func TestBuyRequiresPayment(t *testing.T) {
	operator, seller, buyer := newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller, buyer)
	earner(t, h, operator, seller, "B2", 10)

	ix, err := NewCreateListingInstruction(seller.addr, 10, startingBalance)
	h.mustSucceed(h.exec(ix, err, seller))
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 2)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindInsufficientFunds)
	if _, ok, _ := h.query().Purchased(buyer.addr); ok {
		t.Fatalf("unpaid purchase must not credit points")
	}

	ix, err = NewCreateListingInstruction(seller.addr, 10, math.MaxUint64)
	h.mustSucceed(h.exec(ix, err, seller))
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 20)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindInvalidArgument)
}

func TestPurchasedPointsCannotBeListed(t *testing.T) {
	operator, seller, buyer := newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller, buyer)
	earner(t, h, operator, seller, "P2", 10)

	ix, err := NewCreateListingInstruction(seller.addr, 50, 1)
	h.mustSucceed(h.exec(ix, err, seller))
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 50)
	h.mustSucceed(h.exec(ix, err, buyer))

	ix, err = NewCreateListingInstruction(buyer.addr, 10, 1)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindUninitializedAccount)
}

func TestCancelListing(t *testing.T) {
	operator, seller, buyer, intruder := newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, seller, buyer, intruder)
	earner(t, h, operator, seller, "C1", 40)

	ix, err := NewCreateListingInstruction(seller.addr, 100, 10)
	h.mustSucceed(h.exec(ix, err, seller))
	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 30)
	h.mustSucceed(h.exec(ix, err, buyer))

	ix, err = NewCancelListingInstruction(intruder.addr)
	listingAddr, _ := ListingAddress(seller.addr)
	ix.Accounts[2].Address = listingAddr
	h.mustFail(h.exec(ix, err, intruder), cerrors.KindIllegalOwner)

	ix, err = NewCancelListingInstruction(seller.addr)
	receipt := h.exec(ix, err, seller)
	h.mustSucceed(receipt)
	if receipt.Events[0].Attributes["returned"] != "70" {
		t.Fatalf("expected 70 returned, got %v", receipt.Events[0].Attributes)
	}
	if got := h.driverBalance(seller.addr); got != 170 {
		t.Fatalf("expected 170 points after cancel, got %d", got)
	}
	if got := h.listing(seller.addr); got.Initialized || got.Total != 0 || got.PricePerPoint != 0 || got.Seller != seller.addr {
		t.Fatalf("cancelled listing should be cleared but keep its seller, got %+v", got)
	}

	ix, err = NewCancelListingInstruction(seller.addr)
	receipt = h.exec(ix, err, seller)
	h.mustSucceed(receipt)
	if receipt.Events[0].Attributes["returned"] != "0" {
		t.Fatalf("second cancel must return nothing, got %v", receipt.Events[0].Attributes)
	}
	if got := h.driverBalance(seller.addr); got != 170 {
		t.Fatalf("second cancel changed the balance to %d", got)
	}

	ix, err = NewBuyFromListingInstruction(buyer.addr, seller.addr, 1)
	h.mustFail(h.exec(ix, err, buyer), cerrors.KindUninitializedAccount)

	// A listing created after a cancel starts from scratch.
	ix, err = NewCreateListingInstruction(seller.addr, 20, 50)
	h.mustSucceed(h.exec(ix, err, seller))
	if got := h.listing(seller.addr); got.Total != 20 || got.PricePerPoint != 50 {
		t.Fatalf("expected fresh 20@50, got %d@%d", got.Total, got.PricePerPoint)
	}
}

func TestCancelWithoutListing(t *testing.T) {
	seller := newWallet(t)
	h := newHarness(t, DefaultParams(), seller)
	ix, err := NewCancelListingInstruction(seller.addr)
	h.mustFail(h.exec(ix, err, seller), cerrors.KindUninitializedAccount)
}

func TestPointsAreConserved(t *testing.T) {
	operator, a, b, c := newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, a, b, c)
	charger := h.registerCharger(operator, h.treasury, "CONS", 3, 1)

	check := func(step string) {
		t.Helper()
		held, awarded := h.pointsInCirculation()
		if held != awarded {
			t.Fatalf("%s: %d points held, %d awarded", step, held, awarded)
		}
	}

	h.charge(a, charger, operator, 0, 100)
	h.charge(b, charger, operator, 0, 40)
	check("after charging")

	ix, err := NewCreateListingInstruction(a.addr, 120, 4)
	h.mustSucceed(h.exec(ix, err, a))
	ix, err = NewCreateListingInstruction(b.addr, 60, 2)
	h.mustSucceed(h.exec(ix, err, b))
	check("after listing")

	ix, err = NewBuyFromListingInstruction(c.addr, a.addr, 70)
	h.mustSucceed(h.exec(ix, err, c))
	ix, err = NewBuyFromListingInstruction(c.addr, b.addr, 500)
	h.mustFail(h.exec(ix, err, c), cerrors.KindInvalidArgument)
	ix, err = NewBuyFromListingInstruction(a.addr, b.addr, 60)
	h.mustSucceed(h.exec(ix, err, a))
	check("after buying")

	ix, err = NewCancelListingInstruction(a.addr)
	h.mustSucceed(h.exec(ix, err, a))
	h.charge(a, charger, operator, 200, 210)
	ix, err = NewCreateListingInstruction(a.addr, 30, 9)
	h.mustSucceed(h.exec(ix, err, a))
	check("after cancel and relist")
}

func TestMergePrice(t *testing.T) {
	cases := []struct {
		total, price, amount, newPrice uint64
		want                           uint64
	}{
		{100, 10, 50, 40, 20},
		{0, 0, 25, 9, 9},
		{1, 1, 2, 2, 1},
		{1 << 62, math.MaxUint64, 1 << 62, math.MaxUint64, math.MaxUint64},
		{math.MaxUint64 - 1, math.MaxUint64, 1, 0, math.MaxUint64 - 1},
	}
	for _, tc := range cases {
		got, err := mergePrice(tc.total, tc.price, tc.amount, tc.newPrice)
		if err != nil {
			t.Fatalf("mergePrice(%d,%d,%d,%d): %v", tc.total, tc.price, tc.amount, tc.newPrice, err)
		}
		if got != tc.want {
			t.Fatalf("mergePrice(%d,%d,%d,%d) = %d, want %d", tc.total, tc.price, tc.amount, tc.newPrice, got, tc.want)
		}
	}
	if _, err := mergePrice(math.MaxUint64, 1, 1, 1); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected overflow on total, got %v", err)
	}
	if _, err := mergePrice(0, 5, 0, 5); !errors.Is(err, cerrors.ErrInvalidArgument) {
		t.Fatalf("expected empty merge rejection, got %v", err)
	}
}
