package coupons

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Actor identifies who manages a coupon.
type Actor struct {
	UserID  uuid.UUID
	Role    enums.UserRole
	StoreID *uuid.UUID
}

// CreateInput describes a new coupon. An empty Code asks for a generated one.
type CreateInput struct {
	Code                string           `json:"code" validate:"omitempty,min=3,max=40,alphanumunicode"`
	Type                enums.CouponType `json:"type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Amount              decimal.Decimal  `json:"amount" validate:"money"`
	StartDate           time.Time        `json:"start_date"`
	EndDate             *time.Time       `json:"end_date"`
	UsageLimit          *int             `json:"usage_limit" validate:"omitempty,min=1"`
	UsageLimitPerUser   *int             `json:"usage_limit_per_user" validate:"omitempty,min=1"`
	ProductQtyLimit     *int             `json:"product_qty_limit" validate:"omitempty,min=1"`
	MinSpend            *decimal.Decimal `json:"min_spend"`
	MaxSpend            *decimal.Decimal `json:"max_spend"`
	MaxCouponAmount     *decimal.Decimal `json:"max_coupon_amount"`
	EnableFreeShipping  bool             `json:"enable_free_shipping"`
	VendorBearsDiscount bool             `json:"vendor_bears_discount"`
	ProductIDs          []uuid.UUID      `json:"product_ids"`
	StoreIDs            []uuid.UUID      `json:"store_ids"`
	UserIDs             []uuid.UUID      `json:"user_ids"`
	CategoryIDs         []uuid.UUID      `json:"category_ids"`
}

// ApplyResponse is the public shape of an applied coupon.
type ApplyResponse struct {
	Code                   string          `json:"coupon_code"`
	SubTotal               decimal.Decimal `json:"sub_total"`
	CouponAmount           decimal.Decimal `json:"coupon_amount"`
	CouponAmountWithoutCap decimal.Decimal `json:"coupon_amount_without_cap"`
	FreeShipping           bool            `json:"free_shipping"`
}

func (r *Result) Response() ApplyResponse {
	return ApplyResponse{
		Code:                   r.Coupon.Code,
		SubTotal:               r.SubTotal,
		CouponAmount:           r.CouponAmount,
		CouponAmountWithoutCap: r.CouponAmountWithoutCap,
		FreeShipping:           r.FreeShipping,
	}
}

// ApplyRequest is the body of POST /coupons/apply.
type ApplyRequest struct {
	Code string `json:"coupon_code" validate:"required,min=1,max=40"`
}
