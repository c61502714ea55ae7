package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"stablepay/internal/database"
	"stablepay/internal/domain"
)

// setupTestDB spins up a throwaway Postgres and applies the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("stablepay_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func seedProduct(t *testing.T, products ProductRepo, name, price string) int64 {
	t.Helper()
	p := &domain.Product{Name: name, Price: decimal.RequireFromString(price)}
	require.NoError(t, products.Create(context.Background(), p))
	return p.ID
}

func TestOrderRepoCreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	orders := NewOrderRepo(db)
	products := NewProductRepo(db)
	ctx := context.Background()

	coffeeID := seedProduct(t, products, "Flat White", "4.50")
	sandwichID := seedProduct(t, products, "BLT", "8.99")

	order := &domain.Order{
		ID:          uuid.New(),
		Status:      domain.OrderPending,
		TotalAmount: decimal.RequireFromString("17.99"),
		CreatedAt:   time.Now().UTC(),
		Lines: []domain.OrderLine{
			{ProductID: coffeeID, Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")},
			{ProductID: sandwichID, Quantity: 1, UnitPrice: decimal.RequireFromString("8.99")},
		},
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}

	require.NoError(t, orders.Create(ctx, order))

	stored, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.OrderPending, stored.Status)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("17.99")))
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, 2, stored.Lines[0].Quantity)
	assert.True(t, stored.Lines[0].UnitPrice.Equal(decimal.RequireFromString("4.50")))
	assert.Equal(t, 1, stored.Lines[1].Quantity)
	assert.True(t, stored.Lines[1].UnitPrice.Equal(decimal.RequireFromString("8.99")))

	missing, err := orders.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderRepoCreateRollsBackOnBadLine(t *testing.T) {
	db := setupTestDB(t)
	orders := NewOrderRepo(db)
	ctx := context.Background()

	// A line referencing a nonexistent product violates the FK; the whole
	// creation must vanish, order row included.
	order := &domain.Order{
		ID:          uuid.New(),
		Status:      domain.OrderPending,
		TotalAmount: decimal.RequireFromString("4.50"),
		CreatedAt:   time.Now().UTC(),
		Lines: []domain.OrderLine{
			{ProductID: 424242, Quantity: 1, UnitPrice: decimal.RequireFromString("4.50")},
		},
	}
	order.Lines[0].OrderID = order.ID

	require.Error(t, orders.Create(ctx, order))

	stored, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "partial order must not be observable")
}

func TestOrderRepoConditionalUpdate(t *testing.T) {
	db := setupTestDB(t)
	orders := NewOrderRepo(db)
	products := NewProductRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, products, "Tea", "3.50")
	order := &domain.Order{
		ID:          uuid.New(),
		Status:      domain.OrderPending,
		TotalAmount: decimal.RequireFromString("3.50"),
		CreatedAt:   time.Now().UTC(),
		Lines: []domain.OrderLine{
			{OrderID: uuid.Nil, ProductID: productID, Quantity: 1, UnitPrice: decimal.RequireFromString("3.50")},
		},
	}
	order.Lines[0].OrderID = order.ID
	require.NoError(t, orders.Create(ctx, order))

	now := time.Now().UTC()
	applied, err := orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderApproved, StatusFields{
		CustomerWallet: "0xcustomer",
		ApprovalTx:     "0xapproval",
		ApprovedAt:     &now,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	// Same guard again: stored status is no longer pending, so the write
	// must not apply.
	applied, err = orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderApproved, StatusFields{})
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderApproved, stored.Status)
	assert.Equal(t, "0xcustomer", stored.CustomerWallet)
	assert.Equal(t, "0xapproval", stored.ApprovalTx)
	assert.NotNil(t, stored.ApprovedAt)

	// Advance to paid; earlier stamped fields survive the empty-field
	// COALESCE treatment.
	paidAt := time.Now().UTC()
	applied, err = orders.UpdateStatus(ctx, order.ID, domain.OrderApproved, domain.OrderPaid, StatusFields{
		SettlementTx: "0xsettlement",
		PaidAt:       &paidAt,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err = orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, stored.Status)
	assert.Equal(t, "0xcustomer", stored.CustomerWallet)
	assert.Equal(t, "0xsettlement", stored.SettlementTx)
}

func TestOrderRepoListByStatus(t *testing.T) {
	db := setupTestDB(t)
	orders := NewOrderRepo(db)
	products := NewProductRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, products, "Cookie", "2.50")

	var approvedIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		order := &domain.Order{
			ID:          uuid.New(),
			Status:      domain.OrderPending,
			TotalAmount: decimal.RequireFromString("2.50"),
			CreatedAt:   time.Now().UTC(),
			Lines: []domain.OrderLine{
				{ProductID: productID, Quantity: 1, UnitPrice: decimal.RequireFromString("2.50")},
			},
		}
		order.Lines[0].OrderID = order.ID
		require.NoError(t, orders.Create(ctx, order))

		if i < 2 {
			applied, err := orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderApproved, StatusFields{
				CustomerWallet: "0xcustomer",
			})
			require.NoError(t, err)
			require.True(t, applied)
			approvedIDs = append(approvedIDs, order.ID)
		}
	}

	approved, err := orders.ListByStatus(ctx, domain.OrderApproved)
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.ElementsMatch(t, approvedIDs, []uuid.UUID{approved[0].ID, approved[1].ID})
}

func TestProductRepoCRUD(t *testing.T) {
	db := setupTestDB(t)
	products := NewProductRepo(db)
	ctx := context.Background()

	p := &domain.Product{Name: "Muffin", Price: decimal.RequireFromString("3.25"), Description: "Blueberry"}
	require.NoError(t, products.Create(ctx, p))
	require.NotZero(t, p.ID)

	found, err := products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Muffin", found.Name)
	assert.True(t, found.Price.Equal(decimal.RequireFromString("3.25")))

	p.Price = decimal.RequireFromString("3.75")
	updated, err := products.Update(ctx, p)
	require.NoError(t, err)
	assert.True(t, updated)

	listed, err := products.List(ctx)
	require.NoError(t, err)
	// Migration seeds the sample catalog too.
	assert.GreaterOrEqual(t, len(listed), 1)

	deleted, err := products.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
