package domain

import "github.com/google/uuid"

type EventType string

const (
	EventApprovalSucceeded EventType = "approval_succeeded"
	EventPaymentSucceeded  EventType = "payment_succeeded"
)

// PaymentEvent is pushed to subscribers when an order changes state. Keys
// are opaque: the order id for dashboard viewers, or a caller-supplied
// client id for the terminal that initiated the request.
type PaymentEvent struct {
	Type         EventType   `json:"type"`
	OrderID      uuid.UUID   `json:"orderId"`
	Status       OrderStatus `json:"status"`
	Message      string      `json:"message"`
	Amount       string      `json:"amount,omitempty"`
	SettlementTx string      `json:"settlementTx,omitempty"`
}
