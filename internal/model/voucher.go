package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Voucher is a vehicle expense claim tracked on two independent axes:
// verified (quality gate) and paid (settlement).
type Voucher struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	VehicleRef       string         `gorm:"type:varchar(50);not null;index" json:"vehicle_ref"`
	Description      string         `gorm:"type:text" json:"description"`
	Amount           int64          `gorm:"not null" json:"amount"`
	Verified         bool           `gorm:"not null;default:false;index" json:"verified"`
	VerifiedAt       *time.Time     `json:"verified_at"`
	VerifiedBy       string         `gorm:"type:varchar(64)" json:"verified_by"`
	Paid             bool           `gorm:"not null;default:false;index" json:"paid"`
	PaidAt           *time.Time     `json:"paid_at"`
	PaidBy           string         `gorm:"type:varchar(64)" json:"paid_by"`
	PaymentReference string         `gorm:"type:varchar(100)" json:"payment_reference"`
	Version          int64          `gorm:"not null;default:1" json:"version"`
	CreatedBy        string         `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (v *Voucher) BeforeCreate(tx *gorm.DB) error {
	assignID(&v.ID)
	return nil
}
