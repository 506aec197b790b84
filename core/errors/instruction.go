package errors

import stderrors "errors"

// Kind classifies why an instruction was rejected. Every rejection aborts the
// whole instruction; the kind is what callers observe in receipts.
type Kind uint8

const (
	KindNone Kind = iota
	KindMissingSignature
	KindAddressMismatch
	KindUninitializedAccount
	KindAlreadySettled
	KindInvalidArgument
	KindInsufficientFunds
	KindIllegalOwner
	KindAccountInUse
	KindReadonlyModified
	KindBalanceMismatch
	KindModulePaused
	KindInternal
)

var (
	ErrMissingSignature     = stderrors.New("instruction: missing required signature")
	ErrAddressMismatch      = stderrors.New("instruction: address does not match derivation")
	ErrUninitializedAccount = stderrors.New("instruction: account not initialized")
	ErrAlreadySettled       = stderrors.New("instruction: session already settled")
	ErrInvalidArgument      = stderrors.New("instruction: invalid argument")
	ErrInsufficientFunds    = stderrors.New("instruction: insufficient funds")
	ErrIllegalOwner         = stderrors.New("instruction: illegal owner")

	ErrAccountInUse     = stderrors.New("host: account already in use")
	ErrReadonlyModified = stderrors.New("host: read-only account modified")
	ErrBalanceMismatch  = stderrors.New("host: native balance not conserved")
	ErrModulePaused     = stderrors.New("host: module paused")
)

var kindNames = map[Kind]string{
	KindNone:                 "",
	KindMissingSignature:     "MissingSignature",
	KindAddressMismatch:      "AddressMismatch",
	KindUninitializedAccount: "UninitializedAccount",
	KindAlreadySettled:       "AlreadySettled",
	KindInvalidArgument:      "InvalidArgument",
	KindInsufficientFunds:    "InsufficientFunds",
	KindIllegalOwner:         "IllegalOwner",
	KindAccountInUse:         "AccountInUse",
	KindReadonlyModified:     "ReadonlyModified",
	KindBalanceMismatch:      "BalanceMismatch",
	KindModulePaused:         "ModulePaused",
	KindInternal:             "Internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrMissingSignature, KindMissingSignature},
	{ErrAddressMismatch, KindAddressMismatch},
	{ErrUninitializedAccount, KindUninitializedAccount},
	{ErrAlreadySettled, KindAlreadySettled},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrIllegalOwner, KindIllegalOwner},
	{ErrAccountInUse, KindAccountInUse},
	{ErrReadonlyModified, KindReadonlyModified},
	{ErrBalanceMismatch, KindBalanceMismatch},
	{ErrModulePaused, KindModulePaused},
}

// KindOf maps an error onto the taxonomy. Errors outside the taxonomy report
// KindInternal; nil reports KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range sentinelKinds {
		if stderrors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
