package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the entity an outbox event describes. The relay
// routes on it: order aggregates go to the orders topic, settlements and
// withdrawals to the payouts topic.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateStoreOrder OutboxAggregateType = "store_order"
	AggregateSettlement OutboxAggregateType = "vendor_settlement"
	AggregateWithdrawal OutboxAggregateType = "withdrawal"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateStoreOrder,
	AggregateSettlement,
	AggregateWithdrawal,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType is stored in outbox_events.event_type and copied into the
// published envelope.
type OutboxEventType string

const (
	EventOrderCreated            OutboxEventType = "order_created"
	EventOrderPaid               OutboxEventType = "order_paid"
	EventStoreOrderStatusChanged OutboxEventType = "store_order_status_changed"
	EventStoreOrderRefunded      OutboxEventType = "store_order_refunded"
	EventVendorSettled           OutboxEventType = "vendor_settled"
	EventSettlementProcessed     OutboxEventType = "settlement_processed"
	EventWithdrawalRequested     OutboxEventType = "withdrawal_requested"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventStoreOrderStatusChanged,
	EventStoreOrderRefunded,
	EventVendorSettled,
	EventSettlementProcessed,
	EventWithdrawalRequested,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(eventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
