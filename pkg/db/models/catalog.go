package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Category forms a tree through ParentID.
type Category struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

type Product struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	StoreID     uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`
	CategoryID  *uuid.UUID `gorm:"column:category_id;type:uuid"`
	Name        string     `gorm:"column:name;not null"`
	Description *string    `gorm:"column:description"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Variation is the purchasable unit. StockQty is authoritative only when
// ManageStock is set; otherwise StockStatus is.
type Variation struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index"`
	StoreID        uuid.UUID         `gorm:"column:store_id;type:uuid;not null"`
	SKU            *string           `gorm:"column:sku"`
	Name           string            `gorm:"column:name;not null"`
	Price          decimal.Decimal   `gorm:"column:price;type:numeric(20,2);not null"`
	DiscountPrice  *decimal.Decimal  `gorm:"column:discount_price;type:numeric(20,2)"`
	ManageStock    bool              `gorm:"column:manage_stock;not null;default:false"`
	StockQty       int               `gorm:"column:stock_qty;not null;default:0"`
	StockStatus    enums.StockStatus `gorm:"column:stock_status;type:text;not null;default:'IN_STOCK'"`
	MaxPurchaseQty *int              `gorm:"column:max_purchase_qty"`
	Product        *Product          `gorm:"foreignKey:ProductID"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// FlashSale allocates Qty units of a variation at Price; Sold never exceeds Qty.
type FlashSale struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VariationID uuid.UUID       `gorm:"column:variation_id;type:uuid;not null;index"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(20,2);not null"`
	Qty         int             `gorm:"column:qty;not null"`
	Sold        int             `gorm:"column:sold;not null;default:0"`
	StartsAt    time.Time       `gorm:"column:starts_at;not null"`
	EndsAt      time.Time       `gorm:"column:ends_at;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// CartItem is one line of a user's cart.
type CartItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_cart_items_user_variation"`
	VariationID uuid.UUID `gorm:"column:variation_id;type:uuid;not null;uniqueIndex:idx_cart_items_user_variation"`
	StoreID     uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	Qty         int       `gorm:"column:qty;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
