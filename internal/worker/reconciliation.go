package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stablepay/internal/domain"
	"stablepay/internal/repo"
	"stablepay/internal/service"
)

// ReconciliationWorker sweeps approved orders and drives them through
// collection. It is the retry mechanism for transient settlement failures:
// an order that fails stays approved and is picked up again next cycle.
// It also drains the engine's fast-path queue so a freshly verified
// approval does not have to wait a full interval.
type ReconciliationWorker struct {
	orders   repo.OrderRepo
	svc      service.OrderService
	interval time.Duration
	pause    time.Duration
	log      *zap.Logger
}

func NewReconciliationWorker(
	orders repo.OrderRepo,
	svc service.OrderService,
	interval time.Duration,
	pause time.Duration,
	log *zap.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		orders:   orders,
		svc:      svc,
		interval: interval,
		pause:    pause,
		log:      log,
	}
}

func (w *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("reconciliation worker started", zap.Duration("interval", w.interval))

	// Eager pass on startup catches orders left approved by a previous
	// process.
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		case id := <-w.svc.CollectRequests():
			w.collect(ctx, id)
		}
	}
}

// Sweep collects every approved order sequentially. Individual failures are
// logged and skipped; the order stays approved for the next cycle.
func (w *ReconciliationWorker) Sweep(ctx context.Context) {
	approved, err := w.orders.ListByStatus(ctx, domain.OrderApproved)
	if err != nil {
		w.log.Error("list approved orders", zap.Error(err))
		return
	}
	if len(approved) == 0 {
		return
	}

	w.log.Info("processing approved orders", zap.Int("count", len(approved)))

	for i, order := range approved {
		if ctx.Err() != nil {
			return
		}
		w.collect(ctx, order.ID)

		// Pace the sweep so a backlog does not hammer the ledger.
		if i < len(approved)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pause):
			}
		}
	}
}

func (w *ReconciliationWorker) collect(ctx context.Context, id uuid.UUID) {
	result, err := w.svc.CollectPayment(ctx, id, "")
	if err != nil {
		if domain.Retryable(err) {
			w.log.Warn("collection failed, will retry next sweep",
				zap.String("order_id", id.String()), zap.Error(err))
		} else {
			w.log.Error("collection failed with non-retryable error, operator attention needed",
				zap.String("order_id", id.String()), zap.Error(err))
		}
		return
	}
	if !result.AlreadyPaid {
		w.log.Info("settled order",
			zap.String("order_id", id.String()),
			zap.String("settlement_tx", result.SettlementTx))
	}
}
