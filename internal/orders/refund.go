package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/payloads"
)

// Refund credits the purchaser's wallet for a cancelled, paid store order.
// A store order is refunded at most once.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.StoreOrder, error) {
	start := time.Now()
	so, err := s.refund(ctx, input)
	s.observe(metrics.OpRefund, start, err)
	if err == nil {
		s.metrics.AddAmount(metrics.OpRefund, input.Amount)
	}
	return so, err
}

func (s *service) refund(ctx context.Context, input RefundInput) (*models.StoreOrder, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.StoreOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store order id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	amount := input.Amount.Round(2)

	var refunded *models.StoreOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		so, err := s.loadStoreOrder(ctx, repo, input.StoreOrderID)
		if err != nil {
			return err
		}
		order, err := s.loadOrder(ctx, repo, so.OrderID)
		if err != nil {
			return err
		}

		now := s.now()
		switch {
		case amount.GreaterThan(so.Amount):
			return pkgerrors.New(pkgerrors.CodeBadRequest, "refund amount exceeds store order amount").
				WithDetails(map[string]any{"store_order_amount": so.Amount.StringFixed(2)})
		case !order.PaymentCompleted:
			return pkgerrors.New(pkgerrors.CodeBadRequest, "order payment is not completed")
		case so.Refunded:
			return pkgerrors.New(pkgerrors.CodeBadRequest, "store order already refunded")
		case so.OrderStatus != enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeBadRequest, "only cancelled store orders can be refunded")
		case so.Settled:
			return pkgerrors.New(pkgerrors.CodeBadRequest, "store order is already settled")
		case so.DeliveredAt != nil && now.After(so.DeliveredAt.Add(s.guarantee)):
			return pkgerrors.New(pkgerrors.CodeBadRequest, "guarantee period has elapsed")
		}

		ok, err := repo.MarkRefunded(ctx, so.ID, amount, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark store order refunded")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeBadRequest, "store order already refunded")
		}
		if _, err := s.wallet.Credit(ctx, tx, wallet.CreditInput{
			UserID:    so.PurchasedBy,
			Amount:    amount,
			FundType:  enums.FundTypeRefund,
			Reference: so.ID.String(),
		}); err != nil {
			return err
		}

		refunded, err = s.loadStoreOrder(ctx, repo, so.ID)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStoreOrderRefunded,
			AggregateType: enums.AggregateStoreOrder,
			AggregateID:   so.ID.String(),
			Actor:         input.Actor.ref(),
			Data: payloads.StoreOrderRefundedEvent{
				StoreOrderID: so.ID,
				OrderID:      so.OrderID,
				PurchasedBy:  so.PurchasedBy,
				Amount:       amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithStoreOrderID(ctx, refunded.ID.String())
		s.logg.Info(logCtx, "store order refunded to wallet")
	}
	return refunded, nil
}
