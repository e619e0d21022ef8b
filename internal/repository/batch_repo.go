package repository

import (
	"context"
	"time"

	"opsboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, batch *model.Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	List(ctx context.Context, status string, page, limit int) ([]model.Batch, int64, error)
	// TransitionStatus flips the status only if the row is still in `from` at the
	// expected version. It returns the number of rows changed (0 or 1).
	TransitionStatus(ctx context.Context, id uuid.UUID, version int64, from, to string, paidAt *time.Time, paidBy string) (int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *model.Batch) error {
	return GetDB(ctx, r.db).Create(batch).Error
}

func (r *batchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var batch model.Batch
	if err := GetDB(ctx, r.db).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Lines").
		First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepository) List(ctx context.Context, status string, page, limit int) ([]model.Batch, int64, error) {
	var batches []model.Batch
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Batch{})
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("work_date desc, created_at desc").Offset(offset).Limit(limit).Find(&batches).Error; err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

func (r *batchRepository) TransitionStatus(ctx context.Context, id uuid.UUID, version int64, from, to string, paidAt *time.Time, paidBy string) (int64, error) {
	result := GetDB(ctx, r.db).Model(&model.Batch{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		Updates(map[string]interface{}{
			"status":  to,
			"paid_at": paidAt,
			"paid_by": paidBy,
			"version": gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}
