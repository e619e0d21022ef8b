package repository

import (
	"context"

	"opsboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LedgerRepository interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.LedgerEntry, error)
	// ListOpenByBatch returns the batch's original entries that no reversal points at yet.
	ListOpenByBatch(ctx context.Context, batchID uuid.UUID) ([]model.LedgerEntry, error)
	SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *ledgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, page, limit int) ([]model.LedgerEntry, int64, error) {
	var entries []model.LedgerEntry
	var total int64

	db := GetDB(ctx, r.db).Model(&model.LedgerEntry{}).Where("account_id = ?", accountID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *ledgerRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if err := GetDB(ctx, r.db).Where("batch_id = ?", batchID).
		Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) ListOpenByBatch(ctx context.Context, batchID uuid.UUID) ([]model.LedgerEntry, error) {
	db := GetDB(ctx, r.db)
	reversed := db.Model(&model.LedgerEntry{}).
		Select("reverses_entry_id").
		Where("batch_id = ? AND reverses_entry_id IS NOT NULL", batchID)

	var entries []model.LedgerEntry
	if err := db.Where("batch_id = ? AND reverses_entry_id IS NULL", batchID).
		Where("id NOT IN (?)", reversed).
		Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	err := GetDB(ctx, r.db).Model(&model.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("CAST(COALESCE(SUM(amount), 0) AS BIGINT)").
		Scan(&sum).Error
	return sum, err
}
