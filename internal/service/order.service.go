package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"stablepay/internal/domain"
	"stablepay/internal/ledger"
	"stablepay/internal/repo"
)

// Notifier pushes a payment event to whoever holds the key. Satisfied by
// notify.Hub.
type Notifier interface {
	Publish(key string, event domain.PaymentEvent)
}

type OrderItemInput struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type VerifyResult struct {
	ApprovedAmount decimal.Decimal
	OrderAmount    decimal.Decimal
	CustomerWallet string
	AlreadyPaid    bool
}

type CollectResult struct {
	SettlementTx string
	Amount       decimal.Decimal
	AlreadyPaid  bool
}

type OrderService interface {
	CreateOrder(ctx context.Context, items []OrderItemInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	VerifyApproval(ctx context.Context, id uuid.UUID, txHash string) (*VerifyResult, error)
	CollectPayment(ctx context.Context, id uuid.UUID, notifyKey string) (*CollectResult, error)
	CancelOrder(ctx context.Context, id uuid.UUID) error
	// CollectRequests exposes the fast-path queue the reconciliation
	// worker drains: order ids whose approval just verified.
	CollectRequests() <-chan uuid.UUID
}

type orderService struct {
	orders   repo.OrderRepo
	products repo.ProductRepo
	gateway  ledger.Gateway
	notifier Notifier
	log      *zap.Logger

	autoCollect bool
	requests    chan uuid.UUID

	// collecting collapses concurrent collection attempts for one order
	// into a single gateway call.
	collecting singleflight.Group
}

func NewOrderService(
	orders repo.OrderRepo,
	products repo.ProductRepo,
	gateway ledger.Gateway,
	notifier Notifier,
	log *zap.Logger,
	autoCollect bool,
) OrderService {
	return &orderService{
		orders:      orders,
		products:    products,
		gateway:     gateway,
		notifier:    notifier,
		log:         log,
		autoCollect: autoCollect,
		requests:    make(chan uuid.UUID, 64),
	}
}

func (s *orderService) CollectRequests() <-chan uuid.UUID {
	return s.requests
}

func (s *orderService) CreateOrder(ctx context.Context, items []OrderItemInput) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", domain.ErrInvalidOrder)
	}

	order := &domain.Order{
		ID:        uuid.New(),
		Status:    domain.OrderPending,
		CreatedAt: time.Now().UTC(),
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d",
				domain.ErrInvalidOrder, item.ProductID)
		}
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, fmt.Errorf("%w: product %d", domain.ErrProductNotFound, item.ProductID)
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			OrderID:   order.ID,
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price, // snapshot; later catalog edits do not touch it
		})
	}

	order.TotalAmount = order.Total()

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("lines", len(order.Lines)))
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) VerifyApproval(ctx context.Context, id uuid.UUID, txHash string) (*VerifyResult, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	// Duplicate client retries after settlement get a success, and the
	// success notification is replayed for viewers that missed it.
	if order.Status == domain.OrderPaid {
		s.publishPaid(order, "")
		return &VerifyResult{
			OrderAmount:    order.TotalAmount,
			CustomerWallet: order.CustomerWallet,
			AlreadyPaid:    true,
		}, nil
	}
	if order.Status == domain.OrderCancelled {
		return nil, fmt.Errorf("%w: order is cancelled", domain.ErrInvalidState)
	}

	approval, err := s.gateway.VerifyApproval(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if !domain.WithinTolerance(approval.Amount, order.TotalAmount) {
		return nil, fmt.Errorf("%w: approved %s, order total %s",
			domain.ErrAmountMismatch, approval.Amount, order.TotalAmount)
	}

	now := time.Now().UTC()
	applied, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderApproved, repo.StatusFields{
		CustomerWallet: approval.Owner,
		ApprovalTx:     txHash,
		ApprovedAt:     &now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Someone else moved the order first. Re-read and report their
		// outcome; the transition itself is never retried backwards.
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case current == nil:
			return nil, domain.ErrOrderNotFound
		case current.Status == domain.OrderPaid:
			s.publishPaid(current, "")
			return &VerifyResult{
				OrderAmount:    current.TotalAmount,
				CustomerWallet: current.CustomerWallet,
				AlreadyPaid:    true,
			}, nil
		case current.Status == domain.OrderApproved:
			return &VerifyResult{
				ApprovedAmount: approval.Amount,
				OrderAmount:    current.TotalAmount,
				CustomerWallet: current.CustomerWallet,
			}, nil
		default:
			return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidState, current.Status)
		}
	}

	s.log.Info("approval verified",
		zap.String("order_id", order.ID.String()),
		zap.String("customer", approval.Owner),
		zap.String("approved", approval.Amount.String()))

	s.notifier.Publish(order.ID.String(), domain.PaymentEvent{
		Type:    domain.EventApprovalSucceeded,
		OrderID: order.ID,
		Status:  domain.OrderApproved,
		Message: "Approval confirmed, processing payment...",
	})

	if s.autoCollect {
		// Best-effort fast path; the reconciliation sweep guarantees
		// collection either way.
		select {
		case s.requests <- order.ID:
		default:
			s.log.Warn("fast-path queue full, leaving order to the sweep",
				zap.String("order_id", order.ID.String()))
		}
	}

	return &VerifyResult{
		ApprovedAmount: approval.Amount,
		OrderAmount:    order.TotalAmount,
		CustomerWallet: approval.Owner,
	}, nil
}

func (s *orderService) CollectPayment(ctx context.Context, id uuid.UUID, notifyKey string) (*CollectResult, error) {
	v, err, _ := s.collecting.Do(id.String(), func() (interface{}, error) {
		return s.collectOnce(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*CollectResult)

	if notifyKey != "" {
		s.notifier.Publish(notifyKey, domain.PaymentEvent{
			Type:         domain.EventPaymentSucceeded,
			OrderID:      id,
			Status:       domain.OrderPaid,
			Message:      "Payment received!",
			Amount:       result.Amount.String(),
			SettlementTx: result.SettlementTx,
		})
	}
	return result, nil
}

func (s *orderService) collectOnce(ctx context.Context, id uuid.UUID) (*CollectResult, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if order.Status == domain.OrderPaid {
		return &CollectResult{
			SettlementTx: order.SettlementTx,
			Amount:       order.TotalAmount,
			AlreadyPaid:  true,
		}, nil
	}
	if order.Status != domain.OrderApproved {
		return nil, fmt.Errorf("%w: order is %s, must be approved", domain.ErrInvalidState, order.Status)
	}
	if order.CustomerWallet == "" {
		return nil, fmt.Errorf("%w: order %s", domain.ErrMissingApproval, order.ID)
	}

	amount := domain.NormalizeAmount(order.TotalAmount)

	allowance, err := s.gateway.Allowance(ctx, order.CustomerWallet)
	if err != nil {
		return nil, err
	}
	if allowance.LessThan(amount) {
		return nil, fmt.Errorf("%w: allowance %s, need %s",
			domain.ErrInsufficientAllowance, allowance, amount)
	}

	settlement, err := s.gateway.TransferFrom(ctx, order.CustomerWallet, amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	applied, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderApproved, domain.OrderPaid, repo.StatusFields{
		SettlementTx: settlement.TxHash,
		PaidAt:       &now,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another process settled the order between our read and write.
		// Surface its settlement reference as the result.
		current, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == domain.OrderPaid {
			s.log.Warn("concurrent settlement detected, returning existing reference",
				zap.String("order_id", order.ID.String()),
				zap.String("our_tx", settlement.TxHash),
				zap.String("recorded_tx", current.SettlementTx))
			return &CollectResult{
				SettlementTx: current.SettlementTx,
				Amount:       current.TotalAmount,
				AlreadyPaid:  true,
			}, nil
		}
		return nil, fmt.Errorf("%w: order left approved state during settlement", domain.ErrInvalidState)
	}

	order.SettlementTx = settlement.TxHash
	order.PaidAt = &now

	s.log.Info("payment collected",
		zap.String("order_id", order.ID.String()),
		zap.String("settlement_tx", settlement.TxHash),
		zap.String("amount", settlement.Amount.String()))

	s.publishPaid(order, settlement.TxHash)

	return &CollectResult{
		SettlementTx: settlement.TxHash,
		Amount:       settlement.Amount,
	}, nil
}

// CancelOrder is the administrative escape hatch; the engine itself never
// cancels.
func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID) error {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(domain.OrderCancelled) {
		return fmt.Errorf("%w: cannot cancel a %s order", domain.ErrInvalidState, order.Status)
	}

	applied, err := s.orders.UpdateStatus(ctx, id, order.Status, domain.OrderCancelled, repo.StatusFields{})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: order changed state during cancellation", domain.ErrInvalidState)
	}

	s.log.Info("order cancelled", zap.String("order_id", id.String()))
	return nil
}

func (s *orderService) publishPaid(order *domain.Order, settlementTx string) {
	if settlementTx == "" {
		settlementTx = order.SettlementTx
	}
	s.notifier.Publish(order.ID.String(), domain.PaymentEvent{
		Type:         domain.EventPaymentSucceeded,
		OrderID:      order.ID,
		Status:       domain.OrderPaid,
		Message:      "Payment received!",
		Amount:       order.TotalAmount.String(),
		SettlementTx: settlementTx,
	})
}
