package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Coupon is immutable after creation except for Revoke.
type Coupon struct {
	Code                string           `gorm:"column:code;type:text;primaryKey" json:"code"`
	Type                enums.CouponType `gorm:"column:type;type:coupon_type;not null" json:"type"`
	Amount              decimal.Decimal  `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	StartDate           time.Time        `gorm:"column:start_date;not null" json:"start_date"`
	EndDate             *time.Time       `gorm:"column:end_date" json:"end_date,omitempty"`
	UsageLimit          *int             `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	UsageLimitPerUser   *int             `gorm:"column:usage_limit_per_user" json:"usage_limit_per_user,omitempty"`
	ProductQtyLimit     *int             `gorm:"column:product_qty_limit" json:"product_qty_limit,omitempty"`
	MinSpend            *decimal.Decimal `gorm:"column:min_spend;type:numeric(20,2)" json:"min_spend,omitempty"`
	MaxSpend            *decimal.Decimal `gorm:"column:max_spend;type:numeric(20,2)" json:"max_spend,omitempty"`
	MaxCouponAmount     *decimal.Decimal `gorm:"column:max_coupon_amount;type:numeric(20,2)" json:"max_coupon_amount,omitempty"`
	EnableFreeShipping  bool             `gorm:"column:enable_free_shipping;not null;default:false" json:"enable_free_shipping"`
	VendorBearsDiscount bool             `gorm:"column:vendor_bears_discount;not null;default:false" json:"vendor_bears_discount"`
	Revoke              bool             `gorm:"column:revoked;not null;default:false" json:"revoke"`
	CreatedBy           uuid.UUID        `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	Products            []CouponProduct  `gorm:"foreignKey:CouponCode;references:Code" json:"products,omitempty"`
	Stores              []CouponStore    `gorm:"foreignKey:CouponCode;references:Code" json:"stores,omitempty"`
	Users               []CouponUser     `gorm:"foreignKey:CouponCode;references:Code" json:"users,omitempty"`
	Categories          []CouponCategory `gorm:"foreignKey:CouponCode;references:Code" json:"categories,omitempty"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

type CouponProduct struct {
	CouponCode string    `gorm:"column:coupon_code;type:text;primaryKey" json:"-"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey" json:"product_id"`
}

type CouponStore struct {
	CouponCode string    `gorm:"column:coupon_code;type:text;primaryKey" json:"-"`
	StoreID    uuid.UUID `gorm:"column:store_id;type:uuid;primaryKey" json:"store_id"`
}

type CouponUser struct {
	CouponCode string    `gorm:"column:coupon_code;type:text;primaryKey" json:"-"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
}

type CouponCategory struct {
	CouponCode string    `gorm:"column:coupon_code;type:text;primaryKey" json:"-"`
	CategoryID uuid.UUID `gorm:"column:category_id;type:uuid;primaryKey" json:"category_id"`
}
