package enums

import "fmt"

// DeliveryStatus tracks the physical fulfillment of a store order.
type DeliveryStatus string

const (
	DeliveryStatusNotPicked      DeliveryStatus = "NOT_PICKED"
	DeliveryStatusPicked         DeliveryStatus = "PICKED"
	DeliveryStatusInTransit      DeliveryStatus = "IN_TRANSIT"
	DeliveryStatusOutForDelivery DeliveryStatus = "OUT_FOR_DELIVERY"
	DeliveryStatusDelivered      DeliveryStatus = "DELIVERED"
	DeliveryStatusAudited        DeliveryStatus = "AUDITED"
	DeliveryStatusCancelled      DeliveryStatus = "CANCELLED"
)

// deliveryProgression lists the forward path in order; CANCELLED sits outside it.
var deliveryProgression = []DeliveryStatus{
	DeliveryStatusNotPicked,
	DeliveryStatusPicked,
	DeliveryStatusInTransit,
	DeliveryStatusOutForDelivery,
	DeliveryStatusDelivered,
	DeliveryStatusAudited,
}

// String implements fmt.Stringer.
func (d DeliveryStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	return d == DeliveryStatusCancelled || d.Rank() >= 0
}

// Rank returns the position on the forward delivery path, or -1 when the
// status is not part of it.
func (d DeliveryStatus) Rank() int {
	for i, candidate := range deliveryProgression {
		if candidate == d {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether the status accepts no further transitions.
func (d DeliveryStatus) IsTerminal() bool {
	return d == DeliveryStatusAudited || d == DeliveryStatusCancelled
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid delivery status %q", value)
	}
	return status, nil
}
