package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateAccount = "CREATE_ACCOUNT"
	ActionLedgerApply   = "LEDGER_APPLY"
	ActionLedgerReverse = "LEDGER_REVERSE"

	// Batch settlement actions
	ActionCreateBatch  = "CREATE_BATCH"
	ActionSettleBatch  = "SETTLE_BATCH"
	ActionDiscardBatch = "DISCARD_BATCH"

	// Voucher workflow actions
	ActionCreateVoucher   = "CREATE_VOUCHER"
	ActionEditVoucher     = "EDIT_VOUCHER"
	ActionDeleteVoucher   = "DELETE_VOUCHER"
	ActionVerifyVoucher   = "VERIFY_VOUCHER"
	ActionUnverifyVoucher = "UNVERIFY_VOUCHER"
	ActionSettleVoucher   = "SETTLE_VOUCHER"
	ActionUnsettleVoucher = "UNSETTLE_VOUCHER"

	ActionSaveApprovalSet  = "SAVE_APPROVAL_SET"
	ActionResetApprovalSet = "RESET_APPROVAL_SET"
)

// AuditLog tracks Who, What, and When for critical system changes.
// Rows are written inside the transaction of the change they describe.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"type:varchar(64);index" json:"actor_id"` // empty for system jobs
	ActorRole  string    `gorm:"type:varchar(20)" json:"actor_role"`
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string    `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
