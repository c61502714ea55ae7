package repo

import (
	"context"
	"database/sql"

	"stablepay/internal/domain"
)

type ProductRepo interface {
	List(ctx context.Context) ([]domain.Product, error)
	// FindByID returns (nil, nil) when the product does not exist.
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, p *domain.Product) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type productRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) ProductRepo {
	return &productRepo{db: db}
}

func (r *productRepo) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, price, description FROM products ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Description); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *productRepo) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, price, description FROM products WHERE id = $1", id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) Create(ctx context.Context, p *domain.Product) error {
	return r.db.QueryRowContext(ctx,
		"INSERT INTO products (name, price, description) VALUES ($1, $2, $3) RETURNING id",
		p.Name, p.Price, p.Description,
	).Scan(&p.ID)
}

func (r *productRepo) Update(ctx context.Context, p *domain.Product) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET name = $2, price = $3, description = $4 WHERE id = $1",
		p.ID, p.Name, p.Price, p.Description,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *productRepo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
