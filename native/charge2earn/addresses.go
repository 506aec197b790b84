package charge2earn

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"charge2earn/core/host"
)

func chargerSeeds(code string, operator common.Address) [][]byte {
	return [][]byte{seedCharger, []byte(code), operator.Bytes()}
}

func driverSeeds(owner common.Address) [][]byte {
	return [][]byte{seedDriver, owner.Bytes()}
}

func sessionSeeds(charger, driver common.Address, startTs int64) [][]byte {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(startTs))
	return [][]byte{seedSession, charger.Bytes(), driver.Bytes(), ts[:]}
}

func listingSeeds(seller common.Address) [][]byte {
	return [][]byte{seedListing, seller.Bytes()}
}

func purchasedSeeds(owner common.Address) [][]byte {
	return [][]byte{seedPurchased, owner.Bytes()}
}

func derive(seeds [][]byte) (common.Address, error) {
	addr, _, err := host.FindProgramAddress(seeds, ProgramID)
	return addr, err
}

// ChargerAddress is where the charger registered by operator under code lives.
func ChargerAddress(code string, operator common.Address) (common.Address, error) {
	return derive(chargerSeeds(code, operator))
}

// DriverAddress is the earned-points record of owner.
func DriverAddress(owner common.Address) (common.Address, error) {
	return derive(driverSeeds(owner))
}

// SessionAddress takes the charger and driver record addresses.
func SessionAddress(charger, driver common.Address, startTs int64) (common.Address, error) {
	return derive(sessionSeeds(charger, driver, startTs))
}

func ListingAddress(seller common.Address) (common.Address, error) {
	return derive(listingSeeds(seller))
}

// PurchasedAddress is the bought-points record of owner.
func PurchasedAddress(owner common.Address) (common.Address, error) {
	return derive(purchasedSeeds(owner))
}
