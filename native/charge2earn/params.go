package charge2earn

import "github.com/ethereum/go-ethereum/common"

const (
	// ModuleName is the pause key of the program.
	ModuleName = "charge2earn"

	// UnitsPerCoin is the number of native units in one coin.
	UnitsPerCoin uint64 = 1_000_000_000
	// RegistrationFee is charged once per registered charger.
	RegistrationFee = UnitsPerCoin / 2

	// MaxCodeLen bounds a charger code; the code is a derivation seed.
	MaxCodeLen = 32
	// MaxTextLen bounds the descriptive charger fields.
	MaxTextLen = 64
)

// ProgramID is the address the program is registered under.
var ProgramID = common.HexToAddress("0xc2e0c2e0c2e0c2e0c2e0c2e0c2e0c2e0c2e0c2e0")

var (
	seedCharger   = []byte("charger")
	seedDriver    = []byte("driver")
	seedSession   = []byte("session")
	seedListing   = []byte("listing")
	seedPurchased = []byte("user")
)

// Params are the process-wide constants of the program.
type Params struct {
	RegistrationFee uint64
	// FeeRecipient, when set, is the only account AddCharger may pay the
	// registration fee to.
	FeeRecipient common.Address
}

// DefaultParams returns the production fee schedule with no pinned recipient.
func DefaultParams() Params {
	return Params{RegistrationFee: RegistrationFee}
}
