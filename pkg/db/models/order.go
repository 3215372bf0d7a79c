package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the aggregate root of one checkout. Its amount always equals
// SubTotal - CouponAmount + ShippingAmount + TaxAmount.
type Order struct {
	ID                 string          `gorm:"column:id;type:text;primaryKey" json:"order_id"`
	SubTotal           decimal.Decimal `gorm:"column:sub_total;type:numeric(20,2);not null" json:"sub_total"`
	CouponCode         *string         `gorm:"column:coupon_code" json:"coupon_code,omitempty"`
	CouponAmount       decimal.Decimal `gorm:"column:coupon_amount;type:numeric(20,2);not null;default:0" json:"coupon_amount"`
	ShippingAmount     decimal.Decimal `gorm:"column:shipping_amount;type:numeric(20,2);not null;default:0" json:"shipping_amount"`
	TaxAmount          decimal.Decimal `gorm:"column:tax_amount;type:numeric(20,2);not null;default:0" json:"tax_amount"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	FreeShipping       bool            `gorm:"column:free_shipping;not null;default:false" json:"free_shipping"`
	PurchasedBy        uuid.UUID       `gorm:"column:purchased_by;type:uuid;not null;index" json:"purchased_by"`
	PaymentCompleted   bool            `gorm:"column:payment_completed;not null;default:false" json:"payment_completed"`
	PaymentCompletedAt *time.Time      `gorm:"column:payment_completed_at" json:"payment_completed_at,omitempty"`
	PayedFromWallet    bool            `gorm:"column:payed_from_wallet;not null;default:false" json:"payed_from_wallet"`
	BuyNowPayLater     bool            `gorm:"column:buy_now_pay_later;not null;default:false" json:"buy_now_pay_later"`
	StoreOrders        []StoreOrder    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"store_orders,omitempty"`
	Address            *OrderAddress   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"address,omitempty"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// OrderAddress snapshots the delivery address at order time.
type OrderAddress struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    string    `gorm:"column:order_id;type:text;not null;uniqueIndex" json:"order_id"`
	FullName   string    `gorm:"column:full_name;not null" json:"full_name"`
	Phone      string    `gorm:"column:phone;not null" json:"phone"`
	Line1      string    `gorm:"column:line1;not null" json:"line1"`
	Line2      *string   `gorm:"column:line2" json:"line2,omitempty"`
	City       string    `gorm:"column:city;not null" json:"city"`
	State      string    `gorm:"column:state;not null" json:"state"`
	Country    string    `gorm:"column:country;not null" json:"country"`
	PostalCode *string   `gorm:"column:postal_code" json:"postal_code,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
