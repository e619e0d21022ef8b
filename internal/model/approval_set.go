package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalSet is the per-period review state over an ordered list of ledger rows.
// It is written as a whole; Version increases on every write.
type ApprovalSet struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_approval_sets_org_period" json:"organization_id"`
	Period         string    `gorm:"type:varchar(10);not null;uniqueIndex:ux_approval_sets_org_period" json:"period"` // YYYY-MM-DD
	RowKeys        []string  `gorm:"type:text;serializer:json;not null" json:"row_keys"`
	Flags          []bool    `gorm:"type:text;serializer:json;not null" json:"flags"`
	Version        int64     `gorm:"not null;default:0" json:"version"`
	UpdatedBy      string    `gorm:"type:varchar(64)" json:"updated_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *ApprovalSet) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
