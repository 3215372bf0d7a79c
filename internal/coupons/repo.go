package coupons

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Repository persists coupons and derives their usage counts from orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockByCode(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, coupon *models.Coupon) error
	SetRevoked(ctx context.Context, code string) (int64, error)
	CountCompletedOrders(ctx context.Context, code string) (int64, error)
	CountUserOrders(ctx context.Context, code string, userID uuid.UUID) (int64, error)
	CountUserCompletedOrders(ctx context.Context, code string, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByCode loads a coupon with all of its restriction sets.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Preload("Products").
		Preload("Stores").
		Preload("Users").
		Preload("Categories").
		Where("code = ?", code).
		First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// LockByCode takes a row lock on the coupon so usage counts read after it
// stay stable until the transaction ends.
func (r *repository) LockByCode(ctx context.Context, code string) error {
	var coupon models.Coupon
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("code").
		Where("code = ?", code).
		First(&coupon).Error
}

func (r *repository) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts the coupon together with its restriction rows.
func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) SetRevoked(ctx context.Context, code string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ?", code).
		Update("revoked", true)
	return res.RowsAffected, res.Error
}

// CountCompletedOrders counts paid orders that used the code.
func (r *repository) CountCompletedOrders(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("coupon_code = ? AND payment_completed = ?", code, true).
		Count(&count).Error
	return count, err
}

// CountUserOrders counts every order of the user that used the code, paid or not.
func (r *repository) CountUserOrders(ctx context.Context, code string, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("coupon_code = ? AND purchased_by = ?", code, userID).
		Count(&count).Error
	return count, err
}

func (r *repository) CountUserCompletedOrders(ctx context.Context, code string, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("coupon_code = ? AND purchased_by = ? AND payment_completed = ?", code, userID, true).
		Count(&count).Error
	return count, err
}
