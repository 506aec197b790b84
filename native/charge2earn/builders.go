package charge2earn

import (
	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/types"
)

func instruction(ix Instruction, accounts ...types.AccountMeta) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  accounts,
		Data:      EncodeInstruction(ix),
	}
}

func signer(addr common.Address) types.AccountMeta {
	return types.AccountMeta{Address: addr, IsSigner: true, IsWritable: true}
}

func writable(addr common.Address) types.AccountMeta {
	return types.AccountMeta{Address: addr, IsWritable: true}
}

func readonly(addr common.Address) types.AccountMeta {
	return types.AccountMeta{Address: addr}
}

// NewAddChargerInstruction registers a charger for operator, paying the fee
// to feeRecipient.
func NewAddChargerInstruction(operator, feeRecipient common.Address, args AddCharger) (types.Instruction, error) {
	charger, err := ChargerAddress(args.Code, operator)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(args, signer(operator), writable(charger), writable(feeRecipient)), nil
}

// NewStartSessionInstruction opens a session on charger at startTs.
func NewStartSessionInstruction(driver, charger common.Address, startTs int64) (types.Instruction, error) {
	driverRec, err := DriverAddress(driver)
	if err != nil {
		return types.Instruction{}, err
	}
	session, err := SessionAddress(charger, driverRec, startTs)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(StartSession{StartTs: startTs},
		signer(driver), writable(driverRec), writable(session), readonly(charger)), nil
}

// NewStopSessionInstruction settles the session driver opened on charger at
// startTs, paying operator.
func NewStopSessionInstruction(driver, charger, operator common.Address, startTs, endTs int64) (types.Instruction, error) {
	driverRec, err := DriverAddress(driver)
	if err != nil {
		return types.Instruction{}, err
	}
	session, err := SessionAddress(charger, driverRec, startTs)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(StopSession{EndTs: endTs},
		signer(driver), writable(session), writable(driverRec), readonly(charger), writable(operator)), nil
}

func NewCreateListingInstruction(seller common.Address, amount, pricePerPoint uint64) (types.Instruction, error) {
	driverRec, err := DriverAddress(seller)
	if err != nil {
		return types.Instruction{}, err
	}
	listing, err := ListingAddress(seller)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(CreateListing{Amount: amount, PricePerPoint: pricePerPoint},
		signer(seller), writable(driverRec), writable(listing)), nil
}

func NewBuyFromListingInstruction(buyer, seller common.Address, amount uint64) (types.Instruction, error) {
	purchased, err := PurchasedAddress(buyer)
	if err != nil {
		return types.Instruction{}, err
	}
	listing, err := ListingAddress(seller)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(BuyFromListing{Amount: amount},
		signer(buyer), writable(purchased), writable(listing), writable(seller)), nil
}

func NewCancelListingInstruction(seller common.Address) (types.Instruction, error) {
	driverRec, err := DriverAddress(seller)
	if err != nil {
		return types.Instruction{}, err
	}
	listing, err := ListingAddress(seller)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(CancelListing{},
		types.AccountMeta{Address: seller, IsSigner: true}, writable(driverRec), writable(listing)), nil
}
