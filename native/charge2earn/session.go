package charge2earn

import (
	"fmt"

	cerrors "charge2earn/core/errors"
	"charge2earn/core/events"
	"charge2earn/core/host"
)

// startSession accounts: [0] driver identity (signer, writable), [1] driver
// record (writable), [2] session record (writable), [3] charger record.
func (p *Program) startSession(ctx *host.Context, accounts []*host.AccountInfo, ix StartSession) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	driver, driverRec, session, charger := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := requireSigner(driver); err != nil {
		return err
	}
	if err := requireWritable(driver, driverRec, session); err != nil {
		return err
	}

	driverSeed := driverSeeds(driver.Address)
	driverBump, err := requireDerived(driverRec, driverSeed)
	if err != nil {
		return err
	}
	if err := requireProgramOwned(charger); err != nil {
		return err
	}
	chargerRecord, err := DecodeCharger(charger.Data)
	if err != nil {
		return err
	}
	if !chargerRecord.Initialized {
		return fmt.Errorf("%w: charger %s", cerrors.ErrUninitializedAccount, charger.Address.Hex())
	}

	if driverRec.IsAllocated() {
		if err := requireProgramOwned(driverRec); err != nil {
			return err
		}
		existing, err := DecodeDriver(driverRec.Data)
		if err != nil {
			return err
		}
		if existing.Owner != driver.Address {
			return fmt.Errorf("%w: driver record belongs to %s", cerrors.ErrIllegalOwner, existing.Owner.Hex())
		}
	} else {
		if err := ctx.CreateAccount(driver, driverRec, DriverSize, driverSeed, driverBump); err != nil {
			return err
		}
		record := &DriverAccount{Initialized: true, Owner: driver.Address}
		driverRec.Data = record.Encode()
		ctx.Emit(events.DriverCreated{Driver: driverRec.Address, Owner: driver.Address})
	}

	seeds := sessionSeeds(charger.Address, driverRec.Address, ix.StartTs)
	bump, err := requireDerived(session, seeds)
	if err != nil {
		return err
	}
	if err := ctx.CreateAccount(driver, session, SessionSize, seeds, bump); err != nil {
		return err
	}
	record := &SessionRecord{
		Initialized: true,
		Driver:      driverRec.Address,
		Charger:     charger.Address,
		StartTs:     ix.StartTs,
	}
	session.Data = record.Encode()

	ctx.Emit(events.SessionStarted{
		Session: session.Address,
		Driver:  driverRec.Address,
		Charger: charger.Address,
		StartTs: ix.StartTs,
	})
	return nil
}

// stopSession accounts: [0] driver identity (signer, writable), [1] session
// record (writable), [2] driver record (writable), [3] charger record,
// [4] charger operator (writable).
func (p *Program) stopSession(ctx *host.Context, accounts []*host.AccountInfo, ix StopSession) error {
	if err := requireAccounts(accounts, 5); err != nil {
		return err
	}
	driver, session, driverRec, charger, operator := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]
	if err := requireSigner(driver); err != nil {
		return err
	}
	if err := requireWritable(driver, session, driverRec, operator); err != nil {
		return err
	}

	if err := requireProgramOwned(session); err != nil {
		return err
	}
	sessionRecord, err := DecodeSession(session.Data)
	if err != nil {
		return err
	}
	if !sessionRecord.Initialized {
		return fmt.Errorf("%w: session %s", cerrors.ErrUninitializedAccount, session.Address.Hex())
	}
	if sessionRecord.Settled {
		return fmt.Errorf("%w: session %s", cerrors.ErrAlreadySettled, session.Address.Hex())
	}
	if ix.EndTs <= sessionRecord.StartTs {
		return fmt.Errorf("%w: end %d not after start %d", cerrors.ErrInvalidArgument, ix.EndTs, sessionRecord.StartTs)
	}

	if err := requireSameAddress(driverRec.Address, sessionRecord.Driver, "driver record"); err != nil {
		return err
	}
	if err := requireSameAddress(charger.Address, sessionRecord.Charger, "charger record"); err != nil {
		return err
	}
	if _, err := requireDerived(driverRec, driverSeeds(driver.Address)); err != nil {
		return err
	}
	if err := requireProgramOwned(driverRec); err != nil {
		return err
	}
	driverRecord, err := DecodeDriver(driverRec.Data)
	if err != nil {
		return err
	}
	if driverRecord.Owner != driver.Address {
		return fmt.Errorf("%w: driver record belongs to %s", cerrors.ErrIllegalOwner, driverRecord.Owner.Hex())
	}
	if err := requireProgramOwned(charger); err != nil {
		return err
	}
	chargerRecord, err := DecodeCharger(charger.Data)
	if err != nil {
		return err
	}
	if err := requireSameAddress(operator.Address, chargerRecord.Operator, "payment recipient"); err != nil {
		return err
	}

	// end > start, so the unsigned difference is exact even across zero.
	duration := uint64(ix.EndTs) - uint64(sessionRecord.StartTs)
	payment, err := checkedMul(chargerRecord.PriceRate, duration)
	if err != nil {
		return err
	}
	points, err := checkedMul(chargerRecord.RewardRate, duration)
	if err != nil {
		return err
	}
	balance, err := checkedAdd(driverRecord.Balance, points)
	if err != nil {
		return err
	}
	if err := ctx.Transfer(driver, operator, payment); err != nil {
		return err
	}

	driverRecord.Balance = balance
	driverRec.Data = driverRecord.Encode()
	sessionRecord.EndTs = ix.EndTs
	sessionRecord.PointsAwarded = points
	sessionRecord.Settled = true
	session.Data = sessionRecord.Encode()

	ctx.Emit(events.SessionSettled{
		Session:  session.Address,
		Driver:   driverRec.Address,
		Charger:  charger.Address,
		Operator: operator.Address,
		StartTs:  sessionRecord.StartTs,
		EndTs:    ix.EndTs,
		Duration: duration,
		Paid:     payment,
		Points:   points,
	})
	return nil
}
