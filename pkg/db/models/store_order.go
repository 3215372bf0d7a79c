package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// StoreOrder is the share of an Order owned by one vendor. It is the unit of
// fulfillment, cancellation, refund and settlement.
type StoreOrder struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"store_order_id"`
	OrderID             string               `gorm:"column:order_id;type:text;not null;index" json:"order_id"`
	StoreID             uuid.UUID            `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	SubTotal            decimal.Decimal      `gorm:"column:sub_total;type:numeric(20,2);not null" json:"sub_total"`
	CouponAmount        decimal.Decimal      `gorm:"column:coupon_amount;type:numeric(20,2);not null;default:0" json:"coupon_amount"`
	ShippingAmount      decimal.Decimal      `gorm:"column:shipping_amount;type:numeric(20,2);not null;default:0" json:"shipping_amount"`
	TaxAmount           decimal.Decimal      `gorm:"column:tax_amount;type:numeric(20,2);not null;default:0" json:"tax_amount"`
	Amount              decimal.Decimal      `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	StorePrice          decimal.Decimal      `gorm:"column:store_price;type:numeric(20,2);not null" json:"store_price"`
	VendorBearsDiscount bool                 `gorm:"column:vendor_bears_discount;not null;default:false" json:"vendor_bears_discount"`
	OrderStatus         enums.OrderStatus    `gorm:"column:order_status;type:order_status;not null;default:'PENDING'" json:"order_status"`
	DeliveryStatus      enums.DeliveryStatus `gorm:"column:delivery_status;type:delivery_status;not null;default:'NOT_PICKED'" json:"delivery_status"`
	Refunded            bool                 `gorm:"column:refunded;not null;default:false" json:"refunded"`
	RefundedAt          *time.Time           `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	RefundAmount        *decimal.Decimal     `gorm:"column:refund_amount;type:numeric(20,2)" json:"refund_amount,omitempty"`
	Delivered           bool                 `gorm:"column:delivered;not null;default:false" json:"delivered"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	Settled             bool                 `gorm:"column:settled;not null;default:false" json:"settled"`
	SettledAt           *time.Time           `gorm:"column:settled_at" json:"settled_at,omitempty"`
	SettlementID        *string              `gorm:"column:settlement_id;type:text" json:"settlement_id,omitempty"`
	CancelledBy         *uuid.UUID           `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`
	PurchasedBy         uuid.UUID            `gorm:"column:purchased_by;type:uuid;not null" json:"purchased_by"`
	Products            []StoreOrderProduct  `gorm:"foreignKey:StoreOrderID;constraint:OnDelete:CASCADE" json:"products,omitempty"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// StoreOrderProduct snapshots a purchased variation so later catalog edits do
// not change a placed order.
type StoreOrderProduct struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StoreOrderID   uuid.UUID        `gorm:"column:store_order_id;type:uuid;not null;index" json:"store_order_id"`
	VariationID    uuid.UUID        `gorm:"column:variation_id;type:uuid;not null" json:"variation_id"`
	ProductID      uuid.UUID        `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	FlashSaleID    *uuid.UUID       `gorm:"column:flash_sale_id;type:uuid" json:"flash_sale_id,omitempty"`
	Name           string           `gorm:"column:name;not null" json:"name"`
	Description    *string          `gorm:"column:description" json:"description,omitempty"`
	SKU            *string          `gorm:"column:sku" json:"sku,omitempty"`
	ListPrice      decimal.Decimal  `gorm:"column:list_price;type:numeric(20,2);not null" json:"list_price"`
	DiscountPrice  *decimal.Decimal `gorm:"column:discount_price;type:numeric(20,2)" json:"discount_price,omitempty"`
	FlashSalePrice *decimal.Decimal `gorm:"column:flash_sale_price;type:numeric(20,2)" json:"flash_sale_price,omitempty"`
	Price          decimal.Decimal  `gorm:"column:price;type:numeric(20,2);not null" json:"price"`
	Qty            int              `gorm:"column:qty;not null" json:"qty"`
	CouponAmount   decimal.Decimal  `gorm:"column:coupon_amount;type:numeric(20,2);not null;default:0" json:"coupon_amount"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// LineTotal is the undiscounted value of the line.
func (p StoreOrderProduct) LineTotal() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Qty)))
}
