package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountKind enum constants
const (
	AccountKindIndividual = "individual"
	AccountKindLinkedPair = "linked_pair"
)

// Account holds one running balance. A linked pair (e.g. driver + helper) has two
// members that share this balance.
type Account struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Kind             string          `gorm:"type:varchar(20);not null;index" json:"kind"` // individual, linked_pair
	Balance          int64           `gorm:"not null;default:0" json:"balance"`           // smallest currency unit
	LifetimeCredited int64           `gorm:"not null;default:0" json:"lifetime_credited"`
	Version          int64           `gorm:"not null;default:1" json:"version"`
	Members          []AccountMember `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"members"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// AccountMember is a selectable participant. Balance operations always address the
// owning account, never the member.
type AccountMember struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	DisplayName string    `gorm:"type:varchar(255);not null" json:"display_name"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *AccountMember) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}
