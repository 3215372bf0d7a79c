package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

func rejectState(msg string) error {
	return pkgerrors.New(pkgerrors.CodeBadRequest, msg)
}

func checkMutable(so *models.StoreOrder) error {
	if so.Settled {
		return rejectState("store order is already settled")
	}
	if so.Refunded {
		return rejectState("store order is already refunded")
	}
	return nil
}

// CanTransitionOrderStatus reports whether so may move to next. PENDING is
// the only non-terminal order status.
func CanTransitionOrderStatus(so *models.StoreOrder, next enums.OrderStatus) error {
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", next))
	}
	if err := checkMutable(so); err != nil {
		return err
	}
	switch so.OrderStatus {
	case enums.OrderStatusCancelled:
		return rejectState("store order is cancelled")
	case enums.OrderStatusCompleted:
		return rejectState("store order is already completed")
	}
	if next == so.OrderStatus {
		return rejectState(fmt.Sprintf("order status is already %s", next))
	}
	return nil
}

// CanTransitionDeliveryStatus reports whether so may move to next. order is
// the parent, needed for the payment check on DELIVERED.
func CanTransitionDeliveryStatus(so *models.StoreOrder, order *models.Order, next enums.DeliveryStatus) error {
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid delivery status %q", next))
	}
	if err := checkMutable(so); err != nil {
		return err
	}
	current := so.DeliveryStatus
	if current.IsTerminal() {
		return rejectState(fmt.Sprintf("delivery status %s is final", current))
	}
	if next == current {
		return rejectState(fmt.Sprintf("delivery status is already %s", next))
	}
	if so.OrderStatus == enums.OrderStatusCancelled {
		return rejectState("store order is cancelled")
	}
	if current == enums.DeliveryStatusDelivered {
		if next != enums.DeliveryStatusAudited {
			return rejectState("a delivered store order can only be audited")
		}
		return nil
	}

	switch next {
	case enums.DeliveryStatusCancelled:
		return nil
	case enums.DeliveryStatusAudited:
		return rejectState("store order must be delivered before it is audited")
	case enums.DeliveryStatusDelivered:
		if so.OrderStatus != enums.OrderStatusCompleted {
			return rejectState("store order must be completed before delivery")
		}
		if order == nil || !order.PaymentCompleted {
			return rejectState("order payment is not completed")
		}
	}
	if next.Rank() < current.Rank() {
		return rejectState("delivery status cannot move backwards")
	}
	return nil
}

// CanCancelByUser reports whether the purchaser may still cancel so.
func CanCancelByUser(so *models.StoreOrder) error {
	if err := checkMutable(so); err != nil {
		return err
	}
	if so.OrderStatus == enums.OrderStatusCancelled {
		return rejectState("store order is already cancelled")
	}
	if so.Delivered || so.DeliveryStatus.Rank() >= enums.DeliveryStatusDelivered.Rank() {
		return rejectState("store order is already delivered")
	}
	if so.DeliveryStatus == enums.DeliveryStatusCancelled {
		return rejectState("store order delivery is cancelled")
	}
	return nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, actor Actor, storeOrderID uuid.UUID, next enums.OrderStatus) (*models.StoreOrder, error) {
	return s.transition(ctx, actor, storeOrderID, func(tx *gorm.DB, so *models.StoreOrder) (map[string]any, error) {
		if err := s.authorizeStore(ctx, tx, actor, so); err != nil {
			return nil, err
		}
		if err := CanTransitionOrderStatus(so, next); err != nil {
			return nil, err
		}
		changes := map[string]any{"order_status": next}
		if next == enums.OrderStatusCancelled {
			changes["delivery_status"] = enums.DeliveryStatusCancelled
			changes["cancelled_by"] = actor.UserID
		}
		return changes, nil
	})
}

func (s *service) UpdateDeliveryStatus(ctx context.Context, actor Actor, storeOrderID uuid.UUID, next enums.DeliveryStatus) (*models.StoreOrder, error) {
	return s.transition(ctx, actor, storeOrderID, func(tx *gorm.DB, so *models.StoreOrder) (map[string]any, error) {
		if err := s.authorizeStore(ctx, tx, actor, so); err != nil {
			return nil, err
		}
		order, err := s.loadOrder(ctx, s.repo.WithTx(tx), so.OrderID)
		if err != nil {
			return nil, err
		}
		if err := CanTransitionDeliveryStatus(so, order, next); err != nil {
			return nil, err
		}
		changes := map[string]any{"delivery_status": next}
		if next == enums.DeliveryStatusDelivered {
			changes["delivered"] = true
			changes["delivered_at"] = s.now()
		}
		return changes, nil
	})
}

func (s *service) CancelByUser(ctx context.Context, actor Actor, storeOrderID uuid.UUID) (*models.StoreOrder, error) {
	return s.transition(ctx, actor, storeOrderID, func(_ *gorm.DB, so *models.StoreOrder) (map[string]any, error) {
		if so.PurchasedBy != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the purchaser can cancel this order")
		}
		if err := CanCancelByUser(so); err != nil {
			return nil, err
		}
		return map[string]any{
			"order_status":    enums.OrderStatusCancelled,
			"delivery_status": enums.DeliveryStatusCancelled,
			"cancelled_by":    actor.UserID,
		}, nil
	})
}

// transition loads the store order, asks decide for the column changes and
// applies them with a guarded update.
func (s *service) transition(
	ctx context.Context,
	actor Actor,
	storeOrderID uuid.UUID,
	decide func(tx *gorm.DB, so *models.StoreOrder) (map[string]any, error),
) (*models.StoreOrder, error) {
	start := time.Now()
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.StoreOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		so, err := s.loadStoreOrder(ctx, repo, storeOrderID)
		if err != nil {
			return err
		}
		changes, err := decide(tx, so)
		if err != nil {
			return err
		}
		guard := StoreOrderGuard{OrderStatus: so.OrderStatus, DeliveryStatus: so.DeliveryStatus}
		ok, err := repo.UpdateStoreOrder(ctx, so.ID, guard, changes)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update store order")
		}
		if !ok {
			return rejectState("store order was modified concurrently")
		}
		updated, err = s.loadStoreOrder(ctx, repo, so.ID)
		if err != nil {
			return err
		}
		return s.emitStatusChanged(ctx, tx, actor, updated)
	})
	s.observe(metrics.OpStoreOrderUpdate, start, err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// authorizeStore allows admins and members of the owning store.
func (s *service) authorizeStore(ctx context.Context, tx *gorm.DB, actor Actor, so *models.StoreOrder) error {
	if actor.IsAdmin() {
		return nil
	}
	member, err := s.stores.WithTx(tx).IsMember(ctx, so.StoreID, actor.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check store membership")
	}
	if !member {
		return pkgerrors.New(pkgerrors.CodeForbidden, "store order does not belong to your store")
	}
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, actor Actor, so *models.StoreOrder) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStoreOrderStatusChanged,
		AggregateType: enums.AggregateStoreOrder,
		AggregateID:   so.ID.String(),
		Actor:         actor.ref(),
		Data: payloads.StoreOrderStatusChangedEvent{
			StoreOrderID:   so.ID,
			OrderID:        so.OrderID,
			StoreID:        so.StoreID,
			OrderStatus:    so.OrderStatus,
			DeliveryStatus: so.DeliveryStatus,
			ChangedBy:      actor.UserID,
		},
	})
}
