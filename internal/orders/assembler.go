package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// Create turns the caller's cart into an order with one store order per
// vendor. Everything is written in a single transaction.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	start := time.Now()
	order, err := s.create(ctx, input)
	s.observe(metrics.OpOrderCreate, start, err)
	if err == nil {
		s.metrics.AddAmount(metrics.OpOrderCreate, order.Amount)
	}
	return order, err
}

func (s *service) create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}

	snap, err := s.carts.Snapshot(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(snap.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "cart is empty")
	}
	if err := snap.ValidateStock(); err != nil {
		return nil, err
	}

	addr, err := s.addresses.FindForUser(ctx, input.UserID, input.AddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}

	var applied *coupons.Result
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		applied, err = s.coupons.Evaluate(ctx, input.UserID, *input.CouponCode, snap)
		if err != nil {
			return nil, err
		}
	}

	shares := splitByStore(snap, applied)
	storeIDs := make([]uuid.UUID, len(shares))
	for i, share := range shares {
		storeIDs[i] = share.StoreID
	}
	storesByID, err := s.stores.FindByIDs(ctx, storeIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stores")
	}

	order := &models.Order{
		SubTotal:       snap.SubTotal,
		CouponAmount:   decimal.Zero,
		ShippingAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		PurchasedBy:    input.UserID,
	}
	if applied != nil {
		code := applied.Coupon.Code
		order.CouponCode = &code
		order.CouponAmount = applied.CouponAmount
		order.FreeShipping = applied.FreeShipping
	}

	storeOrders := make([]models.StoreOrder, len(shares))
	for i, share := range shares {
		store, ok := storesByID[share.StoreID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found").
				WithDetails(map[string]any{"store_id": share.StoreID})
		}
		so, err := s.priceShare(ctx, share, store, applied, addr)
		if err != nil {
			return nil, err
		}
		so.PurchasedBy = input.UserID
		storeOrders[i] = so
		order.ShippingAmount = order.ShippingAmount.Add(so.ShippingAmount)
		order.TaxAmount = order.TaxAmount.Add(so.TaxAmount)
	}
	order.Amount = order.SubTotal.Sub(order.CouponAmount).Add(order.ShippingAmount).Add(order.TaxAmount)

	orderID, err := s.ids.Generate(ctx, idgen.PrefixOrder, func(ctx context.Context, candidate string) (bool, error) {
		return s.repo.OrderIDExists(ctx, candidate)
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "user_id", input.UserID.String()), "order id allocation failed", err)
		}
		return nil, err
	}
	order.ID = orderID

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		storeOrderIDs := make([]uuid.UUID, 0, len(storeOrders))
		for i := range storeOrders {
			so := &storeOrders[i]
			so.OrderID = order.ID
			products := so.Products
			so.Products = nil
			if err := repo.CreateStoreOrder(ctx, so); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create store order")
			}
			for j := range products {
				products[j].StoreOrderID = so.ID
			}
			if err := repo.CreateStoreOrderProducts(ctx, products); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create store order products")
			}
			storeOrderIDs = append(storeOrderIDs, so.ID)
		}

		if err := repo.CreateOrderAddress(ctx, address.Snapshot(addr, order.ID)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order address")
		}
		if err := s.carts.Clear(ctx, tx, input.UserID); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				PurchasedBy:   input.UserID,
				Amount:        order.Amount,
				CouponCode:    order.CouponCode,
				StoreOrderIDs: storeOrderIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID)
		logCtx = s.logg.WithUserID(logCtx, input.UserID.String())
		s.logg.Info(logCtx, "order created")
	}
	return s.loadOrder(ctx, s.repo, order.ID)
}

// priceShare builds the store order for one vendor share, including the line
// snapshots. IDs are assigned later.
func (s *service) priceShare(ctx context.Context, share vendorShare, store models.Store, applied *coupons.Result, addr *models.Address) (models.StoreOrder, error) {
	shipping := decimal.Zero
	if applied == nil || !applied.FreeShipping {
		quoted, err := s.shipping.Shipping(ctx, share.StoreID, share.Lines, addr)
		if err != nil {
			return models.StoreOrder{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "quote shipping")
		}
		shipping = quoted.Round(2)
	}
	taxable := share.SubTotal.Sub(share.CouponAmount)
	tax, err := s.tax.Tax(ctx, share.StoreID, taxable, addr)
	if err != nil {
		return models.StoreOrder{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "compute tax")
	}
	tax = tax.Round(2)

	vendorBears := applied != nil && applied.Coupon.VendorBearsDiscount
	so := models.StoreOrder{
		StoreID:             share.StoreID,
		SubTotal:            share.SubTotal,
		CouponAmount:        share.CouponAmount,
		ShippingAmount:      shipping,
		TaxAmount:           tax,
		Amount:              taxable.Add(shipping).Add(tax),
		StorePrice:          storePrice(share.SubTotal, share.CouponAmount, store.CommissionPct, vendorBears),
		VendorBearsDiscount: vendorBears,
		OrderStatus:         enums.OrderStatusPending,
		DeliveryStatus:      enums.DeliveryStatusNotPicked,
		Products:            make([]models.StoreOrderProduct, len(share.Lines)),
	}
	for i, line := range share.Lines {
		so.Products[i] = models.StoreOrderProduct{
			VariationID:    line.VariationID,
			ProductID:      line.ProductID,
			FlashSaleID:    line.FlashSaleID,
			Name:           line.Name,
			Description:    line.Description,
			SKU:            line.SKU,
			ListPrice:      line.ListPrice,
			DiscountPrice:  line.DiscountPrice,
			FlashSalePrice: line.FlashSalePrice,
			Price:          line.Price(),
			Qty:            line.Qty,
			CouponAmount:   share.LineCoupons[i],
		}
	}
	return so, nil
}
