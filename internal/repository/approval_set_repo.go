package repository

import (
	"context"

	"opsboard/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalSetRepository interface {
	FindByKey(ctx context.Context, orgID, period string) (*model.ApprovalSet, error)
	FindByKeyForUpdate(ctx context.Context, orgID, period string) (*model.ApprovalSet, error)
	Create(ctx context.Context, set *model.ApprovalSet) error
	Save(ctx context.Context, set *model.ApprovalSet) error
}

type approvalSetRepository struct {
	db *gorm.DB
}

func NewApprovalSetRepository(db *gorm.DB) ApprovalSetRepository {
	return &approvalSetRepository{db: db}
}

func (r *approvalSetRepository) FindByKey(ctx context.Context, orgID, period string) (*model.ApprovalSet, error) {
	var set model.ApprovalSet
	if err := GetDB(ctx, r.db).
		Where("organization_id = ? AND period = ?", orgID, period).
		First(&set).Error; err != nil {
		return nil, err
	}
	return &set, nil
}

func (r *approvalSetRepository) FindByKeyForUpdate(ctx context.Context, orgID, period string) (*model.ApprovalSet, error) {
	var set model.ApprovalSet
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND period = ?", orgID, period).
		First(&set).Error; err != nil {
		return nil, err
	}
	return &set, nil
}

func (r *approvalSetRepository) Create(ctx context.Context, set *model.ApprovalSet) error {
	return GetDB(ctx, r.db).Create(set).Error
}

func (r *approvalSetRepository) Save(ctx context.Context, set *model.ApprovalSet) error {
	return GetDB(ctx, r.db).Save(set).Error
}
