package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// OrderCreatedEvent signals a new checkout split across vendors.
type OrderCreatedEvent struct {
	OrderID       string          `json:"order_id"`
	PurchasedBy   uuid.UUID       `json:"purchased_by"`
	Amount        decimal.Decimal `json:"amount"`
	CouponCode    *string         `json:"coupon_code,omitempty"`
	StoreOrderIDs []uuid.UUID     `json:"store_order_ids"`
}

// OrderPaidEvent is emitted once payment completion is validated.
type OrderPaidEvent struct {
	OrderID         string          `json:"order_id"`
	PurchasedBy     uuid.UUID       `json:"purchased_by"`
	Amount          decimal.Decimal `json:"amount"`
	PayedFromWallet bool            `json:"payed_from_wallet"`
	StoreIDs        []uuid.UUID     `json:"store_ids"`
}

// StoreOrderStatusChangedEvent covers order and delivery status transitions.
type StoreOrderStatusChangedEvent struct {
	StoreOrderID   uuid.UUID            `json:"store_order_id"`
	OrderID        string               `json:"order_id"`
	StoreID        uuid.UUID            `json:"store_id"`
	OrderStatus    enums.OrderStatus    `json:"order_status"`
	DeliveryStatus enums.DeliveryStatus `json:"delivery_status"`
	ChangedBy      uuid.UUID            `json:"changed_by"`
}

// StoreOrderRefundedEvent is emitted when a cancelled store order is refunded to the wallet.
type StoreOrderRefundedEvent struct {
	StoreOrderID uuid.UUID       `json:"store_order_id"`
	OrderID      string          `json:"order_id"`
	PurchasedBy  uuid.UUID       `json:"purchased_by"`
	Amount       decimal.Decimal `json:"amount"`
}

// VendorSettledEvent is emitted when store orders are batched into a settlement.
type VendorSettledEvent struct {
	SettlementID  string          `json:"settlement_id"`
	StoreID       uuid.UUID       `json:"store_id"`
	Amount        decimal.Decimal `json:"amount"`
	StoreOrderIDs []uuid.UUID     `json:"store_order_ids"`
}

// SettlementProcessedEvent is emitted when the payout of a settlement is confirmed.
type SettlementProcessedEvent struct {
	SettlementID string          `json:"settlement_id"`
	StoreID      uuid.UUID       `json:"store_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// WithdrawalRequestedEvent is emitted when a user asks to cash out wallet funds.
type WithdrawalRequestedEvent struct {
	WithdrawalID uuid.UUID       `json:"withdrawal_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Amount       decimal.Decimal `json:"amount"`
}
