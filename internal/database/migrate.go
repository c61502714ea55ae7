package database

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	price       NUMERIC(12, 2) NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	id              UUID PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'pending',
	total_amount    NUMERIC(12, 2) NOT NULL,
	customer_wallet TEXT NOT NULL DEFAULT '',
	approval_tx     TEXT NOT NULL DEFAULT '',
	settlement_tx   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	approved_at     TIMESTAMPTZ,
	paid_at         TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id      UUID NOT NULL REFERENCES orders(id),
	product_id    BIGINT NOT NULL REFERENCES products(id),
	quantity      INT NOT NULL CHECK (quantity > 0),
	price_at_time NUMERIC(12, 2) NOT NULL,
	PRIMARY KEY (order_id, product_id)
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`

// sampleProducts seed the catalog on first boot so the demo storefront has
// something to sell.
var sampleProducts = []struct {
	name        string
	price       string
	description string
}{
	{"Coffee", "4.50", "Fresh brewed coffee"},
	{"Tea", "3.50", "Organic green tea"},
	{"Sandwich", "8.99", "Classic club sandwich"},
	{"Salad", "7.99", "Fresh garden salad"},
	{"Cookie", "2.50", "Chocolate chip cookie"},
}

// Migrate creates the schema and seeds the sample catalog if it is empty.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range sampleProducts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO products (name, price, description) VALUES ($1, $2, $3)",
			p.name, p.price, p.description,
		); err != nil {
			return fmt.Errorf("seed product %s: %w", p.name, err)
		}
	}

	return tx.Commit()
}
