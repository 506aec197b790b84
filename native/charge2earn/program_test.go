package charge2earn

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	cerrors "charge2earn/core/errors"
	nativecommon "charge2earn/native/common"
)

func TestEndToEndScenario(t *testing.T) {
	operator, treasury, driver, buyer := newWallet(t), newWallet(t), newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, treasury, driver, buyer)

	charger := h.registerCharger(operator, treasury, "LX-01", 2, 1000)
	if got := h.native(treasury.addr); got != startingBalance+RegistrationFee {
		t.Fatalf("treasury should receive the registration fee, balance %d", got)
	}
	record, ok, err := h.query().Charger(charger)
	if err != nil || !ok {
		t.Fatalf("charger lookup: ok=%v err=%v", ok, err)
	}
	if record.Operator != operator.addr || record.RewardRate != 2 || record.PriceRate != 1000 || !record.Initialized {
		t.Fatalf("unexpected charger record %+v", record)
	}

	operatorBefore := h.native(operator.addr)
	h.charge(driver, charger, operator, 100, 160)
	if got := h.driverBalance(driver.addr); got != 120 {
		t.Fatalf("expected 120 points, got %d", got)
	}
	if got := h.native(operator.addr) - operatorBefore; got != 60000 {
		t.Fatalf("expected operator to receive 60000, got %d", got)
	}
	driverRec, _ := DriverAddress(driver.addr)
	session, _ := SessionAddress(charger, driverRec, 100)
	settled, ok, err := h.query().Session(session)
	if err != nil || !ok {
		t.Fatalf("session lookup: ok=%v err=%v", ok, err)
	}
	if !settled.Settled || settled.EndTs != 160 || settled.PointsAwarded != 120 {
		t.Fatalf("unexpected session %+v", settled)
	}

	ix, err := NewCreateListingInstruction(driver.addr, 100, 5)
	h.mustSucceed(h.exec(ix, err, driver))
	if got := h.driverBalance(driver.addr); got != 20 {
		t.Fatalf("expected 20 points left after listing, got %d", got)
	}

	sellerBefore := h.native(driver.addr)
	buyerBefore := h.native(buyer.addr)
	ix, err = NewBuyFromListingInstruction(buyer.addr, driver.addr, 40)
	receipt := h.exec(ix, err, buyer)
	h.mustSucceed(receipt)
	if got := h.listing(driver.addr).Total; got != 60 {
		t.Fatalf("expected listing total 60, got %d", got)
	}
	purchased, ok, err := h.query().Purchased(buyer.addr)
	if err != nil || !ok || purchased.Balance != 40 {
		t.Fatalf("unexpected purchased ledger %+v ok=%v err=%v", purchased, ok, err)
	}
	if got := h.native(driver.addr) - sellerBefore; got != 200 {
		t.Fatalf("expected seller to receive 200, got %d", got)
	}
	rent, _ := h.rt.Snapshot().Account(mustPurchased(t, buyer.addr))
	if got := buyerBefore - h.native(buyer.addr); got != 200+rent.Balance {
		t.Fatalf("buyer paid %d, expected 200 plus rent %d", got, rent.Balance)
	}
	if len(receipt.Events) != 1 || receipt.Events[0].Attributes["paid"] != "200" {
		t.Fatalf("unexpected purchase events %+v", receipt.Events)
	}

	held, awarded := h.pointsInCirculation()
	if held != awarded || awarded != 120 {
		t.Fatalf("conservation broken: held %d awarded %d", held, awarded)
	}
}

func mustPurchased(t *testing.T, owner common.Address) common.Address {
	t.Helper()
	addr, err := PurchasedAddress(owner)
	if err != nil {
		t.Fatalf("purchased address: %v", err)
	}
	return addr
}

func TestAddChargerRejections(t *testing.T) {
	operator, treasury, other := newWallet(t), newWallet(t), newWallet(t)
	pinned := Params{RegistrationFee: RegistrationFee, FeeRecipient: treasury.addr}
	h := newHarness(t, pinned, operator, treasury, other)

	valid := AddCharger{Code: "PT-9", Name: "Hub", City: "Porto", Address: "Av. 1", RewardRate: 1, PriceRate: 1}

	ix, err := NewAddChargerInstruction(operator.addr, other.addr, valid)
	h.mustFail(h.exec(ix, err, operator), cerrors.KindAddressMismatch)

	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, valid)
	wrongTarget, _ := ChargerAddress("OTHER", operator.addr)
	ix.Accounts[1].Address = wrongTarget
	h.mustFail(h.exec(ix, err, operator), cerrors.KindAddressMismatch)

	long := valid
	long.Code = "this-code-is-definitely-longer-than-32-bytes"
	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, AddCharger{Code: "ok", Name: string(make([]byte, MaxTextLen+1))})
	h.mustFail(h.exec(ix, err, operator), cerrors.KindInvalidArgument)
	if _, err := NewAddChargerInstruction(operator.addr, treasury.addr, long); err == nil {
		t.Fatalf("expected derivation error for oversized code")
	}

	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, valid)
	h.mustFail(h.exec(ix, err), cerrors.KindMissingSignature)

	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, valid)
	h.mustSucceed(h.exec(ix, err, operator))
	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, valid)
	h.mustFail(h.exec(ix, err, operator), cerrors.KindAccountInUse)
}

func TestAddChargerInsufficientFunds(t *testing.T) {
	treasury, poor := newWallet(t), newWallet(t)
	h := newHarness(t, Params{RegistrationFee: 100 * UnitsPerCoin}, treasury, poor)

	ix, err := NewAddChargerInstruction(poor.addr, treasury.addr, AddCharger{Code: "X1"})
	h.mustFail(h.exec(ix, err, poor), cerrors.KindInsufficientFunds)
	addr, _ := ChargerAddress("X1", poor.addr)
	if _, ok, err := h.query().Charger(addr); err != nil || ok {
		t.Fatalf("failed registration must not leave a charger: ok=%v err=%v", ok, err)
	}
	if got := h.native(poor.addr); got != startingBalance {
		t.Fatalf("failed registration moved funds: %d", got)
	}
}

func TestPausedModuleRejectsInstructions(t *testing.T) {
	operator, treasury := newWallet(t), newWallet(t)
	h := newHarness(t, DefaultParams(), operator, treasury)
	h.program.SetPauses(nativecommon.StaticPauses{ModuleName: true})

	ix, err := NewAddChargerInstruction(operator.addr, treasury.addr, AddCharger{Code: "P1"})
	h.mustFail(h.exec(ix, err, operator), cerrors.KindModulePaused)

	h.program.SetPauses(nil)
	ix, err = NewAddChargerInstruction(operator.addr, treasury.addr, AddCharger{Code: "P1"})
	h.mustSucceed(h.exec(ix, err, operator))
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := checkedMul(math.MaxUint64, 2); cerrors.KindOf(err) != cerrors.KindInvalidArgument {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := checkedAdd(math.MaxUint64, 1); cerrors.KindOf(err) != cerrors.KindInvalidArgument {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := checkedSub(1, 2); cerrors.KindOf(err) != cerrors.KindInvalidArgument {
		t.Fatalf("expected underflow, got %v", err)
	}
	if v, err := checkedMul(1000, 60); err != nil || v != 60000 {
		t.Fatalf("unexpected product %d err=%v", v, err)
	}
}
