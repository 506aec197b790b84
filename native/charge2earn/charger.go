package charge2earn

import (
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/events"
	"charge2earn/core/host"
)

// addCharger accounts: [0] operator (signer, writable), [1] charger record
// (writable), [2] fee recipient (writable).
func (p *Program) addCharger(ctx *host.Context, accounts []*host.AccountInfo, ix AddCharger) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	operator, charger, recipient := accounts[0], accounts[1], accounts[2]
	if err := requireSigner(operator); err != nil {
		return err
	}
	if err := requireWritable(operator, charger, recipient); err != nil {
		return err
	}
	if err := validateCharger(ix); err != nil {
		return err
	}
	if p.params.FeeRecipient != (common.Address{}) {
		if err := requireSameAddress(recipient.Address, p.params.FeeRecipient, "fee recipient"); err != nil {
			return err
		}
	}

	seeds := chargerSeeds(ix.Code, operator.Address)
	bump, err := requireDerived(charger, seeds)
	if err != nil {
		return err
	}
	record := &ChargerRecord{
		Initialized: true,
		Operator:    operator.Address,
		Code:        ix.Code,
		Name:        ix.Name,
		City:        ix.City,
		Address:     ix.Address,
		Latitude:    ix.Latitude,
		Longitude:   ix.Longitude,
		PowerKW:     ix.PowerKW,
		RewardRate:  ix.RewardRate,
		PriceRate:   ix.PriceRate,
	}
	if err := ctx.CreateAccount(operator, charger, record.Size(), seeds, bump); err != nil {
		return err
	}
	if err := ctx.Transfer(operator, recipient, p.params.RegistrationFee); err != nil {
		return err
	}
	charger.Data = record.Encode()

	ctx.Emit(events.ChargerRegistered{
		Charger:      charger.Address,
		Operator:     operator.Address,
		Code:         ix.Code,
		FeeRecipient: recipient.Address,
		Fee:          p.params.RegistrationFee,
	})
	return nil
}

func validateCharger(ix AddCharger) error {
	if ix.Code == "" || len(ix.Code) > MaxCodeLen {
		return fmt.Errorf("%w: charger code must be 1..%d bytes", cerrors.ErrInvalidArgument, MaxCodeLen)
	}
	fields := []struct {
		name  string
		value string
	}{
		{"code", ix.Code},
		{"name", ix.Name},
		{"city", ix.City},
		{"address", ix.Address},
	}
	for _, f := range fields {
		if len(f.value) > MaxTextLen {
			return fmt.Errorf("%w: %s exceeds %d bytes", cerrors.ErrInvalidArgument, f.name, MaxTextLen)
		}
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s is not valid utf-8", cerrors.ErrInvalidArgument, f.name)
		}
	}
	return nil
}
