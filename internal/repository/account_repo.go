package repository

import (
	"context"

	"opsboard/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error)
	List(ctx context.Context, kind string, page, limit int) ([]model.Account, int64, error)
	FindMembers(ctx context.Context, ids []uuid.UUID) ([]model.AccountMember, error)
	// UpdateBalance writes the new balance only if the row still has the expected
	// version. It returns the number of rows changed (0 or 1).
	UpdateBalance(ctx context.Context, id uuid.UUID, version, balance, lifetimeCredited int64) (int64, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return GetDB(ctx, r.db).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, kind string, page, limit int) ([]model.Account, int64, error) {
	var accounts []model.Account
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Account{})
	if kind != "" {
		db = db.Where("kind = ?", kind)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("name asc").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *accountRepository) FindMembers(ctx context.Context, ids []uuid.UUID) ([]model.AccountMember, error) {
	var members []model.AccountMember
	if len(ids) == 0 {
		return members, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id uuid.UUID, version, balance, lifetimeCredited int64) (int64, error) {
	result := GetDB(ctx, r.db).Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance":           balance,
			"lifetime_credited": lifetimeCredited,
			"version":           gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}
