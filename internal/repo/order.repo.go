package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stablepay/internal/domain"
)

// StatusFields carries the columns stamped alongside a status transition.
// Zero values leave the stored column untouched.
type StatusFields struct {
	CustomerWallet string
	ApprovalTx     string
	SettlementTx   string
	ApprovedAt     *time.Time
	PaidAt         *time.Time
}

type OrderRepo interface {
	// Create writes the order and all its lines in one transaction.
	Create(ctx context.Context, order *domain.Order) error
	// FindByID returns the order with its lines, or (nil, nil) when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// UpdateStatus applies the transition only if the stored status still
	// equals expected. Returns false when another writer got there first.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.OrderStatus, fields StatusFields) (bool, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO orders (id, status, total_amount, created_at) VALUES ($1, $2, $3, $4)",
		order.ID, order.Status, order.TotalAmount, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, quantity, price_at_time) VALUES ($1, $2, $3, $4)",
			order.ID, line.ProductID, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", line.ProductID, err)
		}
	}

	return tx.Commit()
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, total_amount, customer_wallet, approval_tx, settlement_tx, created_at, approved_at, paid_at
		 FROM orders WHERE id = $1`, id,
	).Scan(
		&order.ID,
		&order.Status,
		&order.TotalAmount,
		&order.CustomerWallet,
		&order.ApprovalTx,
		&order.SettlementTx,
		&order.CreatedAt,
		&order.ApprovedAt,
		&order.PaidAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT order_id, product_id, quantity, price_at_time FROM order_items WHERE order_id = $1 ORDER BY product_id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.OrderStatus, fields StatusFields) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $3,
		     customer_wallet = COALESCE(NULLIF($4, ''), customer_wallet),
		     approval_tx = COALESCE(NULLIF($5, ''), approval_tx),
		     settlement_tx = COALESCE(NULLIF($6, ''), settlement_tx),
		     approved_at = COALESCE($7, approved_at),
		     paid_at = COALESCE($8, paid_at)
		 WHERE id = $1 AND status = $2`,
		id, expected, next,
		fields.CustomerWallet, fields.ApprovalTx, fields.SettlementTx,
		fields.ApprovedAt, fields.PaidAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *orderRepo) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, status, total_amount, customer_wallet, approval_tx, settlement_tx, created_at, approved_at, paid_at
		 FROM orders WHERE status = $1 ORDER BY created_at`,
		status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.Status,
			&order.TotalAmount,
			&order.CustomerWallet,
			&order.ApprovalTx,
			&order.SettlementTx,
			&order.CreatedAt,
			&order.ApprovedAt,
			&order.PaidAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
