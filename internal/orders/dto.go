package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

// Actor identifies the caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// CreateInput carries the checkout request.
type CreateInput struct {
	UserID     uuid.UUID
	AddressID  uuid.UUID
	CouponCode *string
}

// PaymentInput marks an order paid. Admin selects the admin path, which
// skips the purchaser check.
type PaymentInput struct {
	OrderID         string
	Actor           Actor
	Admin           bool
	PayedFromWallet bool
	BuyNowPayLater  bool
}

// RefundInput asks for a cancelled store order to be refunded to the wallet.
type RefundInput struct {
	StoreOrderID uuid.UUID
	Actor        Actor
	Amount       decimal.Decimal
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	AddressID  uuid.UUID `json:"address_id" validate:"required"`
	CouponCode *string   `json:"coupon_code" validate:"omitempty,min=1,max=40"`
}

// PaymentRequest is the body of the payment completion routes.
type PaymentRequest struct {
	OrderID         string `json:"order_id" validate:"required"`
	PayedFromWallet bool   `json:"payed_from_wallet"`
	BuyNowPayLater  bool   `json:"buy_now_pay_later"`
}

type OrderStatusRequest struct {
	OrderStatus enums.OrderStatus `json:"order_status" validate:"required,oneof=PENDING COMPLETED CANCELLED"`
}

type DeliveryStatusRequest struct {
	DeliveryStatus enums.DeliveryStatus `json:"delivery_status" validate:"required"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}
