package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// ShippingCalculator quotes delivery for one vendor's share of an order.
type ShippingCalculator interface {
	Shipping(ctx context.Context, storeID uuid.UUID, lines []cart.Line, addr *models.Address) (decimal.Decimal, error)
}

// TaxCalculator computes the tax owed on a vendor's discounted sub-total.
type TaxCalculator interface {
	Tax(ctx context.Context, storeID uuid.UUID, taxable decimal.Decimal, addr *models.Address) (decimal.Decimal, error)
}

// FlatShipping charges the same amount to every vendor share. The zero value
// ships for free.
type FlatShipping struct {
	PerStore decimal.Decimal
}

func (f FlatShipping) Shipping(context.Context, uuid.UUID, []cart.Line, *models.Address) (decimal.Decimal, error) {
	return f.PerStore, nil
}

// NoTax never charges tax.
type NoTax struct{}

func (NoTax) Tax(context.Context, uuid.UUID, decimal.Decimal, *models.Address) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
