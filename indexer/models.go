package indexer

import (
	"time"

	"gorm.io/gorm"
)

// ReceiptRecord is one committed protocol call.
type ReceiptRecord struct {
	Sequence   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Operation  string `gorm:"index;not null"`
	Caller     string `gorm:"index;not null"`
	Timestamp  uint64 `gorm:"not null"`
	Hash       string `gorm:"uniqueIndex;size:64;not null"`
	EventCount int    `gorm:"not null"`
	IndexedAt  time.Time
}

// EventRecord is one event of a committed call. LoanID and TokenID are lifted
// out of the attributes so they can be queried.
type EventRecord struct {
	ID         uint64            `gorm:"primaryKey"`
	Sequence   uint64            `gorm:"index:idx_event_position,unique;not null"`
	Position   int               `gorm:"index:idx_event_position,unique;not null"`
	Type       string            `gorm:"index;not null"`
	LoanID     *uint64           `gorm:"index"`
	TokenID    *uint64           `gorm:"index"`
	Attributes map[string]string `gorm:"serializer:json"`
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ReceiptRecord{}, &EventRecord{})
}
