package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stablepay/internal/domain"
	"stablepay/internal/ledger"
	"stablepay/internal/repo"
	"stablepay/internal/service"
)

type dropNotifier struct{}

func (dropNotifier) Publish(string, domain.PaymentEvent) {}

func setup(t *testing.T, autoCollect bool) (*ReconciliationWorker, service.OrderService, *repo.MemoryOrderRepo, *ledger.MemoryGateway) {
	t.Helper()
	orders := repo.NewMemoryOrderRepo()
	products := repo.NewMemoryProductRepo()
	gateway := ledger.NewMemoryGateway()
	require.NoError(t, products.Create(context.Background(),
		&domain.Product{Name: "Coffee", Price: decimal.RequireFromString("4.50")}))

	svc := service.NewOrderService(orders, products, gateway, dropNotifier{}, zap.NewNop(), autoCollect)
	w := NewReconciliationWorker(orders, svc, time.Hour, time.Millisecond, zap.NewNop())
	return w, svc, orders, gateway
}

func approveOrder(t *testing.T, svc service.OrderService, gateway *ledger.MemoryGateway, wallet string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	order, err := svc.CreateOrder(ctx, []service.OrderItemInput{{ProductID: 1, Quantity: 1}})
	require.NoError(t, err)
	txHash := gateway.Approve(wallet, order.TotalAmount)
	_, err = svc.VerifyApproval(ctx, order.ID, txHash)
	require.NoError(t, err)
	return order.ID
}

func TestSweepSettlesApprovedOrders(t *testing.T) {
	w, svc, orders, gateway := setup(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		approveOrder(t, svc, gateway, fmt.Sprintf("0xwallet%d", i))
	}

	w.Sweep(ctx)

	paid, err := orders.ListByStatus(ctx, domain.OrderPaid)
	require.NoError(t, err)
	assert.Len(t, paid, 3)
	for _, order := range paid {
		assert.NotEmpty(t, order.SettlementTx)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	w, svc, orders, gateway := setup(t, false)
	ctx := context.Background()

	const total = 5
	const failing = 2
	for i := 0; i < total; i++ {
		wallet := fmt.Sprintf("0xwallet%d", i)
		approveOrder(t, svc, gateway, wallet)
		if i < failing {
			gateway.FailTransfersFor(wallet, 1)
		}
	}

	// First sweep: the transient failures stay approved, the rest settle.
	w.Sweep(ctx)

	paid, err := orders.ListByStatus(ctx, domain.OrderPaid)
	require.NoError(t, err)
	approved, err := orders.ListByStatus(ctx, domain.OrderApproved)
	require.NoError(t, err)
	assert.Len(t, paid, total-failing)
	assert.Len(t, approved, failing)

	// Second sweep retries only the leftovers.
	calls := gateway.TransferCalls()
	w.Sweep(ctx)

	paid, err = orders.ListByStatus(ctx, domain.OrderPaid)
	require.NoError(t, err)
	assert.Len(t, paid, total)
	assert.Equal(t, calls+failing, gateway.TransferCalls())
}

func TestSweepSkipsMissingApproval(t *testing.T) {
	w, svc, orders, _ := setup(t, false)
	ctx := context.Background()

	// An approved order with no wallet must be left alone, not retried
	// into the ledger.
	order, err := svc.CreateOrder(ctx, []service.OrderItemInput{{ProductID: 1, Quantity: 1}})
	require.NoError(t, err)
	applied, err := orders.UpdateStatus(ctx, order.ID, domain.OrderPending, domain.OrderApproved, repo.StatusFields{})
	require.NoError(t, err)
	require.True(t, applied)

	w.Sweep(ctx)

	stored, err := orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderApproved, stored.Status)
}

func TestRunDrainsFastPathQueue(t *testing.T) {
	w, svc, orders, gateway := setup(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	id := approveOrder(t, svc, gateway, "0xfastpath")

	assert.Eventually(t, func() bool {
		stored, err := orders.FindByID(context.Background(), id)
		return err == nil && stored != nil && stored.Status == domain.OrderPaid
	}, 2*time.Second, 10*time.Millisecond, "fast-path collection should settle the order")
}
