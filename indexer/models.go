package indexer

import (
	"time"

	"gorm.io/gorm"
)

// TxRecord is one committed transaction outcome.
type TxRecord struct {
	Hash      string `gorm:"size:66;primaryKey"`
	Height    uint64 `gorm:"index"`
	Success   bool
	ErrorKind string `gorm:"size:32"`
	Error     string
	CreatedAt time.Time
}

// EventRecord is one event of a successful transaction. Attributes holds the
// JSON encoded attribute map.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Height     uint64 `gorm:"index"`
	TxHash     string `gorm:"size:66;index"`
	Position   int
	Type       string `gorm:"size:64;index"`
	Attributes string
	CreatedAt  time.Time
}

// SessionRecord is the indexed history of one charging session. Addresses are
// bech32 encoded; Driver is the driver record, not the wallet.
type SessionRecord struct {
	Session       string `gorm:"size:96;primaryKey"`
	Driver        string `gorm:"size:96;index"`
	Charger       string `gorm:"size:96;index"`
	Operator      string `gorm:"size:96"`
	StartTs       int64
	EndTs         int64
	Duration      uint64
	Paid          uint64
	Points        uint64
	Settled       bool `gorm:"index"`
	StartedHeight uint64
	SettledHeight uint64
	UpdatedAt     time.Time
}

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TxRecord{}, &EventRecord{}, &SessionRecord{})
}
