package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerCategory enum constants
const (
	CategoryProductionWage = "production_wage"
	CategoryDeliveryWage   = "delivery_wage"
	CategoryWageReversal   = "wage_reversal"
	CategoryAdjustment     = "adjustment"
)

// ValidCategory reports whether c is a known ledger category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryProductionWage, CategoryDeliveryWage, CategoryWageReversal, CategoryAdjustment:
		return true
	}
	return false
}

// LedgerEntry is an immutable signed amount against one account. A reversal is a
// new entry of opposite sign pointing at the original through ReversesEntryID.
type LedgerEntry struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"account_id"`
	MemberID        *uuid.UUID `gorm:"type:uuid;index" json:"member_id"`
	BatchID         *uuid.UUID `gorm:"type:uuid;index" json:"batch_id"`
	Category        string     `gorm:"type:varchar(30);not null;index" json:"category"`
	Amount          int64      `gorm:"not null" json:"amount"`
	BalanceAfter    int64      `gorm:"not null" json:"balance_after"`
	ReversesEntryID *uuid.UUID `gorm:"type:uuid;index" json:"reverses_entry_id"`
	CreatedBy       string     `gorm:"type:varchar(64)" json:"created_by"`
	Note            string     `gorm:"type:text" json:"note"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// IsCredit reports whether the entry counts toward lifetime credited.
func (e *LedgerEntry) IsCredit() bool {
	return e.Amount > 0 && e.Category != CategoryWageReversal && e.ReversesEntryID == nil
}
