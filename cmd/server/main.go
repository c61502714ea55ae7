package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stablepay/internal/api"
	"stablepay/internal/config"
	"stablepay/internal/database"
	"stablepay/internal/ledger"
	"stablepay/internal/logger"
	"stablepay/internal/notify"
	"stablepay/internal/repo"
	"stablepay/internal/service"
	"stablepay/internal/worker"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	gateway, err := ledger.NewEVMGateway(ctx, cfg, log)
	if err != nil {
		log.Fatal("initialize ledger gateway", zap.Error(err))
	}

	orderRepo := repo.NewOrderRepo(db)
	productRepo := repo.NewProductRepo(db)
	hub := notify.NewHub(log)
	svc := service.NewOrderService(orderRepo, productRepo, gateway, hub, log, cfg.AutoCollect)

	reconciler := worker.NewReconciliationWorker(orderRepo, svc, cfg.ReconcileInterval, cfg.CollectPause, log)
	go reconciler.Run(ctx)

	server := api.NewServer(svc, productRepo, gateway, hub, db, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve http", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown http server", zap.Error(err))
		os.Exit(1)
	}
}
