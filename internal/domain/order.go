package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderApproved  OrderStatus = "approved"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// transitions is the closed set of legal status moves. Paid and cancelled
// are terminal; nothing ever returns to pending.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:  {OrderApproved, OrderCancelled},
	OrderApproved: {OrderPaid, OrderCancelled},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

type Order struct {
	ID             uuid.UUID
	Status         OrderStatus
	TotalAmount    decimal.Decimal
	CustomerWallet string // empty until approval verified
	ApprovalTx     string // ledger tx that granted the allowance
	SettlementTx   string // ledger tx that moved the funds
	Lines          []OrderLine
	CreatedAt      time.Time
	ApprovedAt     *time.Time
	PaidAt         *time.Time
}

// OrderLine carries the price snapshot taken at order creation. Catalog
// changes after that point never touch it.
type OrderLine struct {
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the line subtotals. The stored TotalAmount must equal this at
// creation time and is never recomputed afterwards.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
