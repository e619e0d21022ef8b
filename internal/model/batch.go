package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchKind enum constants
const (
	BatchKindProduction = "production"
	BatchKindDelivery   = "delivery"
)

// BatchStatus enum constants
const (
	BatchStatusUnpaid = "unpaid"
	BatchStatusPaid   = "paid"
)

// Batch is one unit of payable work: a production run or a delivery trip.
// It moves unpaid -> paid once; discard moves it back and reverses the ledger.
type Batch struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Kind         string             `gorm:"type:varchar(20);not null;index" json:"kind"`             // production, delivery
	Reference    string             `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference"` // run / trip code
	WorkDate     time.Time          `gorm:"type:date;not null;index" json:"work_date"`
	TotalAmount  int64              `gorm:"not null" json:"total_amount"`
	Status       string             `gorm:"type:varchar(10);not null;default:'unpaid';index" json:"status"`
	Version      int64              `gorm:"not null;default:1" json:"version"`
	PaidAt       *time.Time         `json:"paid_at"`
	PaidBy       string             `gorm:"type:varchar(64)" json:"paid_by"`
	Participants []BatchParticipant `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"participants"`
	Lines        []BatchLine        `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedBy    string             `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// Category returns the ledger category credited when the batch is settled.
func (b *Batch) Category() string {
	if b.Kind == BatchKindDelivery {
		return CategoryDeliveryWage
	}
	return CategoryProductionWage
}

// BatchParticipant is one member taking part in a batch, kept in split order.
type BatchParticipant struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID  uuid.UUID `gorm:"type:uuid;not null;index" json:"batch_id"`
	MemberID uuid.UUID `gorm:"type:uuid;not null;index" json:"member_id"`
	Position int       `gorm:"not null" json:"position"`
}

func (p *BatchParticipant) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// BatchLine is a priced unit count that makes up the batch total.
type BatchLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	Units       int64           `gorm:"not null" json:"units"`
	Rate        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate"`
}

func (l *BatchLine) BeforeCreate(tx *gorm.DB) error {
	assignID(&l.ID)
	return nil
}
