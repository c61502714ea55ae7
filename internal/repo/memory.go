package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"stablepay/internal/domain"
)

// MemoryOrderRepo is an in-process OrderRepo with the same conditional
// update semantics as the Postgres implementation. Used by tests and
// simulations.
type MemoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *MemoryOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *order
	clone.Lines = append([]domain.OrderLine(nil), order.Lines...)
	r.orders[order.ID] = &clone
	return nil
}

func (r *MemoryOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	clone := *order
	clone.Lines = append([]domain.OrderLine(nil), order.Lines...)
	return &clone, nil
}

func (r *MemoryOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, next domain.OrderStatus, fields StatusFields) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok || order.Status != expected {
		return false, nil
	}
	order.Status = next
	if fields.CustomerWallet != "" {
		order.CustomerWallet = fields.CustomerWallet
	}
	if fields.ApprovalTx != "" {
		order.ApprovalTx = fields.ApprovalTx
	}
	if fields.SettlementTx != "" {
		order.SettlementTx = fields.SettlementTx
	}
	if fields.ApprovedAt != nil {
		order.ApprovedAt = fields.ApprovedAt
	}
	if fields.PaidAt != nil {
		order.PaidAt = fields.PaidAt
	}
	return true, nil
}

func (r *MemoryOrderRepo) ListByStatus(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []domain.Order
	for _, order := range r.orders {
		if order.Status == status {
			clone := *order
			clone.Lines = append([]domain.OrderLine(nil), order.Lines...)
			orders = append(orders, clone)
		}
	}
	return orders, nil
}

// MemoryProductRepo is the catalog counterpart of MemoryOrderRepo.
type MemoryProductRepo struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]domain.Product
}

func NewMemoryProductRepo() *MemoryProductRepo {
	return &MemoryProductRepo{nextID: 1, products: make(map[int64]domain.Product)}
}

func (r *MemoryProductRepo) List(_ context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var products []domain.Product
	for _, p := range r.products {
		products = append(products, p)
	}
	return products, nil
}

func (r *MemoryProductRepo) FindByID(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryProductRepo) Create(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID
	r.nextID++
	r.products[p.ID] = *p
	return nil
}

func (r *MemoryProductRepo) Update(_ context.Context, p *domain.Product) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return false, nil
	}
	r.products[p.ID] = *p
	return true, nil
}

func (r *MemoryProductRepo) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return false, nil
	}
	delete(r.products, id)
	return true, nil
}
