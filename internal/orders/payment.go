package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// CompletePayment settles the payment of an order. Totals are re-derived from
// the live catalog and must match what was charged; stock and flash sale
// counters are consumed in the same transaction.
func (s *service) CompletePayment(ctx context.Context, input PaymentInput) (*models.Order, error) {
	start := time.Now()
	order, err := s.completePayment(ctx, input)
	s.observe(metrics.OpPaymentComplete, start, err)
	if err == nil {
		s.metrics.AddAmount(metrics.OpPaymentComplete, order.Amount)
	}
	return order, err
}

func (s *service) completePayment(ctx context.Context, input PaymentInput) (*models.Order, error) {
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Admin && !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !input.Admin && order.PurchasedBy != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		for _, so := range order.StoreOrders {
			if so.OrderStatus == enums.OrderStatusCancelled {
				return pkgerrors.New(pkgerrors.CodeBadRequest, "order contains a cancelled store order").
					WithDetails(map[string]any{"store_order_id": so.ID})
			}
		}
		if order.PaymentCompleted {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "order payment already completed")
		}

		coupon, err := s.claimCoupon(ctx, tx, order)
		if err != nil {
			return err
		}

		paid, err := repo.MarkPaid(ctx, order.ID, s.now(), input.PayedFromWallet, input.BuyNowPayLater)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !paid {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "order payment already completed")
		}

		if err := s.autoComplete(ctx, tx, input.Actor, order); err != nil {
			return err
		}
		snap, err := s.reprice(ctx, tx, order, coupon)
		if err != nil {
			return err
		}
		if err := s.consumeStock(ctx, tx, order, snap); err != nil {
			return err
		}
		if input.PayedFromWallet && order.Amount.IsPositive() {
			if _, err := s.wallet.Debit(ctx, tx, order.PurchasedBy, order.Amount, order.ID); err != nil {
				return err
			}
		}

		storeIDs := make([]uuid.UUID, len(order.StoreOrders))
		for i, so := range order.StoreOrders {
			storeIDs[i] = so.StoreID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.OrderPaidEvent{
				OrderID:         order.ID,
				PurchasedBy:     order.PurchasedBy,
				Amount:          order.Amount,
				PayedFromWallet: input.PayedFromWallet,
				StoreIDs:        storeIDs,
			},
		})
	})
	if err != nil {
		if s.logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeBadRequest) {
			s.logg.Warn(s.logg.WithOrderID(ctx, input.OrderID), "payment rejected: "+err.Error())
		}
		return nil, err
	}
	return s.loadOrder(ctx, s.repo, input.OrderID)
}

// autoComplete moves pending store orders of auto-completing stores to
// COMPLETED.
func (s *service) autoComplete(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order) error {
	ids := make([]uuid.UUID, 0, len(order.StoreOrders))
	for _, so := range order.StoreOrders {
		ids = append(ids, so.StoreID)
	}
	storesByID, err := s.stores.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stores")
	}

	repo := s.repo.WithTx(tx)
	for i := range order.StoreOrders {
		so := &order.StoreOrders[i]
		store, ok := storesByID[so.StoreID]
		if !ok || !store.AutoCompleteOrder || so.OrderStatus != enums.OrderStatusPending {
			continue
		}
		guard := StoreOrderGuard{OrderStatus: so.OrderStatus, DeliveryStatus: so.DeliveryStatus}
		updated, err := repo.UpdateStoreOrder(ctx, so.ID, guard, map[string]any{"order_status": enums.OrderStatusCompleted})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "auto complete store order")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "store order was modified concurrently")
		}
		so.OrderStatus = enums.OrderStatusCompleted
		if err := s.emitStatusChanged(ctx, tx, actor, so); err != nil {
			return err
		}
	}
	return nil
}

// claimCoupon locks the order's coupon and re-checks its usage limits
// against paid orders. Several unpaid orders can pass the creation check,
// so the limit is enforced here under the lock.
func (s *service) claimCoupon(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Coupon, error) {
	if order.CouponCode == nil {
		return nil, nil
	}
	code := *order.CouponCode
	repo := s.couponRepo.WithTx(tx)
	if err := repo.LockByCode(ctx, code); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "order coupon no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order coupon")
	}
	coupon, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order coupon")
	}

	if coupon.UsageLimit != nil {
		used, err := repo.CountCompletedOrders(ctx, code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage")
		}
		if used >= int64(*coupon.UsageLimit) {
			return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "coupon usage limit reached").
				WithDetails(map[string]any{"coupon_code": code})
		}
	}
	if coupon.UsageLimitPerUser != nil {
		used, err := repo.CountUserCompletedOrders(ctx, code, order.PurchasedBy)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage for user")
		}
		if used >= int64(*coupon.UsageLimitPerUser) {
			return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "coupon already used the maximum number of times by this buyer").
				WithDetails(map[string]any{"coupon_code": code})
		}
	}
	return coupon, nil
}

// reprice recomputes sub-total and coupon from current catalog data and
// rejects the payment when the result differs from the stored amount.
func (s *service) reprice(ctx context.Context, tx *gorm.DB, order *models.Order, coupon *models.Coupon) (*cart.Snapshot, error) {
	var items []cart.Item
	for _, so := range order.StoreOrders {
		for _, p := range so.Products {
			items = append(items, cart.Item{VariationID: p.VariationID, Qty: p.Qty})
		}
	}
	snap, err := s.carts.Price(ctx, tx, order.PurchasedBy, items)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if coupon != nil {
		discount = coupons.Compute(coupon, snap).CouponAmount
	}

	recomputed := snap.SubTotal.Sub(discount).Add(order.ShippingAmount).Add(order.TaxAmount)
	if !recomputed.Equal(order.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "order total no longer matches current prices").
			WithDetails(map[string]any{
				"order_amount":      order.Amount.StringFixed(2),
				"recomputed_amount": recomputed.StringFixed(2),
			})
	}
	return snap, nil
}

// consumeStock decrements managed stock and flash sale allocations with
// guarded writes so concurrent payments cannot oversell.
func (s *service) consumeStock(ctx context.Context, tx *gorm.DB, order *models.Order, snap *cart.Snapshot) error {
	lines := make(map[uuid.UUID]cart.Line, len(snap.Lines))
	for _, line := range snap.Lines {
		lines[line.VariationID] = line
	}
	catalog := s.catalog.WithTx(tx)

	for _, so := range order.StoreOrders {
		for _, p := range so.Products {
			line, ok := lines[p.VariationID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("%s is no longer available", p.Name))
			}
			if line.ManageStock {
				ok, err := catalog.DecrementStock(ctx, p.VariationID, p.Qty)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("insufficient stock for %s", p.Name)).
						WithDetails(map[string]any{"variation_id": p.VariationID, "requested": p.Qty})
				}
			} else if line.StockStatus != enums.StockStatusInStock {
				return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("%s is out of stock", p.Name))
			}

			if p.FlashSaleID != nil {
				ok, err := catalog.IncrementFlashSaleSold(ctx, *p.FlashSaleID, p.Qty)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update flash sale")
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeBadRequest, fmt.Sprintf("flash sale for %s is sold out", p.Name))
				}
			}
		}
	}
	return nil
}
