package repository

import (
	"context"

	"opsboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoucherFilter narrows a voucher listing; nil fields are ignored.
type VoucherFilter struct {
	Verified   *bool
	Paid       *bool
	VehicleRef string
}

type VoucherRepository interface {
	Create(ctx context.Context, voucher *model.Voucher) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Voucher, error)
	List(ctx context.Context, filter VoucherFilter, page, limit int) ([]model.Voucher, int64, error)
	// UpdateGuarded applies fields only if the row still has the expected version.
	// It returns the number of rows changed (0 or 1).
	UpdateGuarded(ctx context.Context, id uuid.UUID, version int64, fields map[string]interface{}) (int64, error)
	DeleteGuarded(ctx context.Context, id uuid.UUID, version int64) (int64, error)
}

type voucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

func (r *voucherRepository) Create(ctx context.Context, voucher *model.Voucher) error {
	return GetDB(ctx, r.db).Create(voucher).Error
}

func (r *voucherRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Voucher, error) {
	var voucher model.Voucher
	if err := GetDB(ctx, r.db).First(&voucher, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *voucherRepository) List(ctx context.Context, filter VoucherFilter, page, limit int) ([]model.Voucher, int64, error) {
	var vouchers []model.Voucher
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Voucher{})
	if filter.Verified != nil {
		db = db.Where("verified = ?", *filter.Verified)
	}
	if filter.Paid != nil {
		db = db.Where("paid = ?", *filter.Paid)
	}
	if filter.VehicleRef != "" {
		db = db.Where("vehicle_ref = ?", filter.VehicleRef)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}

	return vouchers, total, nil
}

func (r *voucherRepository) UpdateGuarded(ctx context.Context, id uuid.UUID, version int64, fields map[string]interface{}) (int64, error) {
	fields["version"] = gorm.Expr("version + 1")
	result := GetDB(ctx, r.db).Model(&model.Voucher{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *voucherRepository) DeleteGuarded(ctx context.Context, id uuid.UUID, version int64) (int64, error) {
	result := GetDB(ctx, r.db).
		Where("id = ? AND version = ?", id, version).
		Delete(&model.Voucher{})
	return result.RowsAffected, result.Error
}
