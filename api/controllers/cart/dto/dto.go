package cartdto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// AddItemRequest sets the cart quantity of a variation.
type AddItemRequest struct {
	VariationID uuid.UUID `json:"variation_id" validate:"required"`
	Qty         int       `json:"qty" validate:"required,min=1,max=1000"`
}

type CartLine struct {
	VariationID    uuid.UUID         `json:"variation_id"`
	ProductID      uuid.UUID         `json:"product_id"`
	StoreID        uuid.UUID         `json:"store_id"`
	Name           string            `json:"name"`
	SKU            *string           `json:"sku,omitempty"`
	Qty            int               `json:"qty"`
	ListPrice      decimal.Decimal   `json:"list_price"`
	DiscountPrice  *decimal.Decimal  `json:"discount_price,omitempty"`
	FlashSalePrice *decimal.Decimal  `json:"flash_sale_price,omitempty"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	LineTotal      decimal.Decimal   `json:"line_total"`
	StockStatus    enums.StockStatus `json:"stock_status"`
}

// Cart is the priced view of a user's cart.
type Cart struct {
	UserID   uuid.UUID       `json:"user_id"`
	Lines    []CartLine      `json:"lines"`
	SubTotal decimal.Decimal `json:"sub_total"`
}
