package cart

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Item is a bare (variation, qty) pair to be priced against the catalog.
type Item struct {
	VariationID uuid.UUID
	Qty         int
}

// Line is a priced cart line. Prices reflect the catalog at the time the
// snapshot was taken.
type Line struct {
	VariationID    uuid.UUID
	ProductID      uuid.UUID
	StoreID        uuid.UUID
	Categories     []uuid.UUID
	Name           string
	Description    *string
	SKU            *string
	Qty            int
	ListPrice      decimal.Decimal
	DiscountPrice  *decimal.Decimal
	FlashSalePrice *decimal.Decimal
	FlashSaleID    *uuid.UUID
	ManageStock    bool
	StockQty       int
	StockStatus    enums.StockStatus
	MaxPurchaseQty *int
}

// Snapshot is the priced content of a cart.
type Snapshot struct {
	UserID   uuid.UUID
	Lines    []Line
	SubTotal decimal.Decimal
}

// NewLine prices qty units of v. sale is the active flash sale, if any, and
// categories is the product's category lineage.
func NewLine(v models.Variation, sale *models.FlashSale, categories []uuid.UUID, qty int) Line {
	line := Line{
		VariationID:    v.ID,
		ProductID:      v.ProductID,
		StoreID:        v.StoreID,
		Categories:     categories,
		Name:           v.Name,
		SKU:            v.SKU,
		Qty:            qty,
		ListPrice:      v.Price,
		DiscountPrice:  v.DiscountPrice,
		ManageStock:    v.ManageStock,
		StockQty:       v.StockQty,
		StockStatus:    v.StockStatus,
		MaxPurchaseQty: v.MaxPurchaseQty,
	}
	if v.Product != nil {
		line.Description = v.Product.Description
	}
	if sale != nil {
		price := sale.Price
		id := sale.ID
		line.FlashSalePrice = &price
		line.FlashSaleID = &id
	}
	return line
}

// Price is the unit price charged: flash sale, then discount, then list.
func (l Line) Price() decimal.Decimal {
	if l.FlashSalePrice != nil {
		return *l.FlashSalePrice
	}
	if l.DiscountPrice != nil {
		return *l.DiscountPrice
	}
	return l.ListPrice
}

func (l Line) Total() decimal.Decimal {
	return l.Price().Mul(decimal.NewFromInt(int64(l.Qty)))
}

// ValidateStock checks the line against stock and purchase limits.
func (l Line) ValidateStock() error {
	details := map[string]any{"variation_id": l.VariationID, "qty": l.Qty}
	if l.Qty < 1 {
		return pkgerrors.New(pkgerrors.CodeBadRequest, "quantity must be at least 1").WithDetails(details)
	}
	if l.ManageStock {
		if l.StockQty < 1 {
			return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("%s is out of stock", l.Name)).WithDetails(details)
		}
		if l.Qty > l.StockQty {
			return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("only %d of %s left in stock", l.StockQty, l.Name)).WithDetails(details)
		}
	} else if l.StockStatus != enums.StockStatusInStock {
		return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("%s is out of stock", l.Name)).WithDetails(details)
	}
	if l.MaxPurchaseQty != nil && l.Qty > *l.MaxPurchaseQty {
		return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("at most %d of %s can be purchased", *l.MaxPurchaseQty, l.Name)).WithDetails(details)
	}
	return nil
}

func newSnapshot(userID uuid.UUID, lines []Line) *Snapshot {
	sub := decimal.Zero
	for _, line := range lines {
		sub = sub.Add(line.Total())
	}
	return &Snapshot{UserID: userID, Lines: lines, SubTotal: sub}
}

// ValidateStock checks every line; the first failure is returned.
func (s *Snapshot) ValidateStock() error {
	for _, line := range s.Lines {
		if err := line.ValidateStock(); err != nil {
			return err
		}
	}
	return nil
}
