package charge2earn

import (
	"fmt"

	"github.com/holiman/uint256"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/events"
	"charge2earn/core/host"
)

// mergePrice is the amount-weighted average (t*p + a*q) / (t + a), rounded
// down. Products are taken in 256 bits; the result never exceeds max(p, q).
func mergePrice(total, price, amount, newPrice uint64) (uint64, error) {
	denom, err := checkedAdd(total, amount)
	if err != nil {
		return 0, err
	}
	if denom == 0 {
		return 0, fmt.Errorf("%w: empty merge", cerrors.ErrInvalidArgument)
	}
	existing := new(uint256.Int).Mul(uint256.NewInt(total), uint256.NewInt(price))
	added := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(newPrice))
	sum := new(uint256.Int).Add(existing, added)
	avg := sum.Div(sum, uint256.NewInt(denom))
	if !avg.IsUint64() {
		return 0, fmt.Errorf("%w: merged price overflows", cerrors.ErrInvalidArgument)
	}
	return avg.Uint64(), nil
}

// loadDriver returns the driver record at info, which must be derived from
// and owned by owner.
func loadDriver(info *host.AccountInfo, owner *host.AccountInfo) (*DriverAccount, error) {
	if _, err := requireDerived(info, driverSeeds(owner.Address)); err != nil {
		return nil, err
	}
	if err := requireProgramOwned(info); err != nil {
		return nil, err
	}
	record, err := DecodeDriver(info.Data)
	if err != nil {
		return nil, err
	}
	if !record.Initialized {
		return nil, fmt.Errorf("%w: driver %s", cerrors.ErrUninitializedAccount, info.Address.Hex())
	}
	if record.Owner != owner.Address {
		return nil, fmt.Errorf("%w: driver record belongs to %s", cerrors.ErrIllegalOwner, record.Owner.Hex())
	}
	return record, nil
}

// createListing accounts: [0] seller (signer, writable), [1] seller driver
// record (writable), [2] listing record (writable).
func (p *Program) createListing(ctx *host.Context, accounts []*host.AccountInfo, ix CreateListing) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	seller, driverRec, listing := accounts[0], accounts[1], accounts[2]
	if err := requireSigner(seller); err != nil {
		return err
	}
	if err := requireWritable(seller, driverRec, listing); err != nil {
		return err
	}
	if ix.Amount == 0 {
		return fmt.Errorf("%w: listing amount must be positive", cerrors.ErrInvalidArgument)
	}
	driverRecord, err := loadDriver(driverRec, seller)
	if err != nil {
		return err
	}
	if ix.Amount > driverRecord.Balance {
		return fmt.Errorf("%w: listing %d points, balance %d", cerrors.ErrInsufficientFunds, ix.Amount, driverRecord.Balance)
	}
	remaining, err := checkedSub(driverRecord.Balance, ix.Amount)
	if err != nil {
		return err
	}

	seeds := listingSeeds(seller.Address)
	bump, err := requireDerived(listing, seeds)
	if err != nil {
		return err
	}
	var record *ListingRecord
	merged := false
	if !listing.IsAllocated() {
		if err := ctx.CreateAccount(seller, listing, ListingSize, seeds, bump); err != nil {
			return err
		}
	} else {
		if err := requireProgramOwned(listing); err != nil {
			return err
		}
		existing, err := DecodeListing(listing.Data)
		if err != nil {
			return err
		}
		if existing.Initialized {
			record = existing
		}
	}
	if record == nil {
		record = &ListingRecord{
			Initialized:   true,
			Seller:        seller.Address,
			Total:         ix.Amount,
			PricePerPoint: ix.PricePerPoint,
		}
	} else {
		price, err := mergePrice(record.Total, record.PricePerPoint, ix.Amount, ix.PricePerPoint)
		if err != nil {
			return err
		}
		total, err := checkedAdd(record.Total, ix.Amount)
		if err != nil {
			return err
		}
		record.Total = total
		record.PricePerPoint = price
		merged = true
	}

	driverRecord.Balance = remaining
	driverRec.Data = driverRecord.Encode()
	listing.Data = record.Encode()

	ctx.Emit(events.ListingCreated{
		Listing:       listing.Address,
		Seller:        seller.Address,
		Amount:        ix.Amount,
		Price:         ix.PricePerPoint,
		Total:         record.Total,
		PricePerPoint: record.PricePerPoint,
		Merged:        merged,
	})
	return nil
}

// buyFromListing accounts: [0] buyer (signer, writable), [1] buyer purchased
// points record (writable), [2] listing record (writable), [3] seller
// identity (writable).
func (p *Program) buyFromListing(ctx *host.Context, accounts []*host.AccountInfo, ix BuyFromListing) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	buyer, purchased, listing, seller := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := requireSigner(buyer); err != nil {
		return err
	}
	if err := requireWritable(buyer, purchased, listing, seller); err != nil {
		return err
	}
	if err := requireProgramOwned(listing); err != nil {
		return err
	}
	record, err := DecodeListing(listing.Data)
	if err != nil {
		return err
	}
	if !record.Initialized {
		return fmt.Errorf("%w: listing %s", cerrors.ErrUninitializedAccount, listing.Address.Hex())
	}
	if ix.Amount == 0 || ix.Amount > record.Total {
		return fmt.Errorf("%w: buy %d of %d listed points", cerrors.ErrInvalidArgument, ix.Amount, record.Total)
	}
	if _, err := requireDerived(listing, listingSeeds(record.Seller)); err != nil {
		return err
	}
	if err := requireSameAddress(seller.Address, record.Seller, "seller"); err != nil {
		return err
	}
	payment, err := checkedMul(record.PricePerPoint, ix.Amount)
	if err != nil {
		return err
	}
	remaining, err := checkedSub(record.Total, ix.Amount)
	if err != nil {
		return err
	}

	seeds := purchasedSeeds(buyer.Address)
	bump, err := requireDerived(purchased, seeds)
	if err != nil {
		return err
	}
	var ledger *PurchasedPoints
	if purchased.IsAllocated() {
		if err := requireProgramOwned(purchased); err != nil {
			return err
		}
		if ledger, err = DecodePurchased(purchased.Data); err != nil {
			return err
		}
		if ledger.Owner != buyer.Address {
			return fmt.Errorf("%w: purchased points belong to %s", cerrors.ErrIllegalOwner, ledger.Owner.Hex())
		}
	}
	balance := ix.Amount
	if ledger != nil {
		if balance, err = checkedAdd(ledger.Balance, ix.Amount); err != nil {
			return err
		}
	}

	if err := ctx.Transfer(buyer, seller, payment); err != nil {
		return err
	}
	if ledger == nil {
		if err := ctx.CreateAccount(buyer, purchased, PurchasedSize, seeds, bump); err != nil {
			return err
		}
		ledger = &PurchasedPoints{Initialized: true, Owner: buyer.Address}
	}
	ledger.Balance = balance
	purchased.Data = ledger.Encode()
	record.Total = remaining
	listing.Data = record.Encode()

	ctx.Emit(events.PointsPurchased{
		Listing:   listing.Address,
		Seller:    seller.Address,
		Buyer:     buyer.Address,
		Amount:    ix.Amount,
		Paid:      payment,
		Remaining: remaining,
	})
	return nil
}

// cancelListing accounts: [0] seller (signer), [1] seller driver record
// (writable), [2] listing record (writable).
func (p *Program) cancelListing(ctx *host.Context, accounts []*host.AccountInfo) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	seller, driverRec, listing := accounts[0], accounts[1], accounts[2]
	if err := requireSigner(seller); err != nil {
		return err
	}
	if err := requireWritable(driverRec, listing); err != nil {
		return err
	}
	if err := requireProgramOwned(listing); err != nil {
		return err
	}
	record, err := DecodeListing(listing.Data)
	if err != nil {
		return err
	}
	if record.Seller != seller.Address {
		return fmt.Errorf("%w: listing belongs to %s", cerrors.ErrIllegalOwner, record.Seller.Hex())
	}
	if _, err := requireDerived(listing, listingSeeds(seller.Address)); err != nil {
		return err
	}

	returned := record.Total
	if returned > 0 {
		driverRecord, err := loadDriver(driverRec, seller)
		if err != nil {
			return err
		}
		balance, err := checkedAdd(driverRecord.Balance, returned)
		if err != nil {
			return err
		}
		driverRecord.Balance = balance
		driverRec.Data = driverRecord.Encode()
	}
	record.Total = 0
	record.PricePerPoint = 0
	record.Initialized = false
	listing.Data = record.Encode()

	ctx.Emit(events.ListingCancelled{
		Listing:  listing.Address,
		Seller:   seller.Address,
		Returned: returned,
	})
	return nil
}
