// Command simulate runs the full order lifecycle against a real database
// and an in-memory ledger: create orders, verify approvals, fail a few
// settlements on purpose and watch the reconciliation worker pick them up.
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stablepay/internal/config"
	"stablepay/internal/database"
	"stablepay/internal/domain"
	"stablepay/internal/ledger"
	"stablepay/internal/logger"
	"stablepay/internal/notify"
	"stablepay/internal/repo"
	"stablepay/internal/service"
	"stablepay/internal/worker"
)

const simulatedOrders = 10

func main() {
	cfg := config.Load()
	cfg.AutoCollect = false // let the sweep do all the work

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(cfg)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	orderRepo := repo.NewOrderRepo(db)
	productRepo := repo.NewProductRepo(db)
	gateway := ledger.NewMemoryGateway()
	hub := notify.NewHub(log)
	svc := service.NewOrderService(orderRepo, productRepo, gateway, hub, log, cfg.AutoCollect)

	products, err := productRepo.List(ctx)
	if err != nil || len(products) == 0 {
		log.Fatal("load catalog", zap.Error(err))
	}

	// Every third order gets one transient settlement failure so the
	// second sweep has something to retry.
	fmt.Printf("--- creating %d orders ---\n", simulatedOrders)
	for i := 0; i < simulatedOrders; i++ {
		order, err := svc.CreateOrder(ctx, []service.OrderItemInput{
			{ProductID: products[i%len(products)].ID, Quantity: 1 + i%3},
		})
		if err != nil {
			log.Error("create order", zap.Error(err))
			continue
		}

		wallet := fmt.Sprintf("0x%040d", i)
		txHash := gateway.Approve(wallet, order.TotalAmount)
		if i%3 == 0 {
			gateway.FailTransfersFor(wallet, 1)
		}

		if _, err := svc.VerifyApproval(ctx, order.ID, txHash); err != nil {
			log.Error("verify approval", zap.Error(err))
			continue
		}
		fmt.Printf("[%d] order %s approved for %s\n", i+1, order.ID, order.TotalAmount)
	}

	sweeper := worker.NewReconciliationWorker(orderRepo, svc, time.Hour, 50*time.Millisecond, log)

	for pass := 1; pass <= 2; pass++ {
		fmt.Printf("--- sweep %d ---\n", pass)
		sweeper.Sweep(ctx)
		paid, _ := orderRepo.ListByStatus(ctx, domain.OrderPaid)
		approved, _ := orderRepo.ListByStatus(ctx, domain.OrderApproved)
		fmt.Printf("paid=%d approved=%d\n", len(paid), len(approved))
	}

	balances, _ := gateway.MerchantBalances(ctx)
	fmt.Printf("--- merchant collected %s ---\n", balances.Token.StringFixed(2))
}
