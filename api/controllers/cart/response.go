package cart

import (
	cartdto "github.com/angelmondragon/marketplace-backend/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/marketplace-backend/internal/cart"
)

func newCart(snap *cartsvc.Snapshot) cartdto.Cart {
	lines := make([]cartdto.CartLine, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, cartdto.CartLine{
			VariationID:    line.VariationID,
			ProductID:      line.ProductID,
			StoreID:        line.StoreID,
			Name:           line.Name,
			SKU:            line.SKU,
			Qty:            line.Qty,
			ListPrice:      line.ListPrice,
			DiscountPrice:  line.DiscountPrice,
			FlashSalePrice: line.FlashSalePrice,
			UnitPrice:      line.Price(),
			LineTotal:      line.Total(),
			StockStatus:    line.StockStatus,
		})
	}
	return cartdto.Cart{
		UserID:   snap.UserID,
		Lines:    lines,
		SubTotal: snap.SubTotal,
	}
}
