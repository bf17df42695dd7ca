package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/port"
)

type SweeperConfig struct {
	Workers  int
	Interval time.Duration
	// Grace is how long an order must sit untouched before it is resumed.
	Grace       time.Duration
	Batch       int
	ItemTimeout time.Duration
}

// Sweeper resumes paid orders whose reconciliation stalled or is waiting on
// a credential restock.
type Sweeper struct {
	orders     port.OrderRepository
	reconciler *Reconciler
	logger     *slog.Logger
	cfg        SweeperConfig
	now        func() time.Time
}

func NewSweeper(orders port.OrderRepository, reconciler *Reconciler, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 30 * time.Second
	}
	return &Sweeper{orders: orders, reconciler: reconciler, logger: logger, cfg: cfg, now: time.Now}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", logging.Err(err))
			}
		}
	}
}

// SweepOnce resumes one batch of stalled orders and reports how many of them
// reached FULFILLED.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	before := s.now().UTC().Add(-s.cfg.Grace)
	orders, err := s.orders.ListStalled(ctx, domain.ResumablePhases, before, s.cfg.Batch)
	if err != nil {
		return 0, fmt.Errorf("list stalled orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	queue := make(chan domain.Order)
	var (
		wg        sync.WaitGroup
		fulfilled atomic.Int64
	)
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.workerLoop(ctx, id, queue, &fulfilled)
		}(i)
	}

feed:
	for _, order := range orders {
		select {
		case <-ctx.Done():
			break feed
		case queue <- order:
		}
	}
	close(queue)
	wg.Wait()

	n := int(fulfilled.Load())
	s.logger.Info("sweep finished", slog.Int("stalled", len(orders)), slog.Int("fulfilled", n))
	return n, nil
}

func (s *Sweeper) workerLoop(ctx context.Context, id int, queue <-chan domain.Order, fulfilled *atomic.Int64) {
	for order := range queue {
		itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)

		out, err := s.reconciler.Resume(itemCtx, order.ID)
		if err != nil {
			s.logger.Error("resume order failed",
				slog.Int(logging.KeyWorker, id),
				slog.String(logging.KeyOrderID, order.ID),
				logging.Err(err))
		} else if out.Phase == domain.PhaseFulfilled {
			fulfilled.Add(1)
		}

		cancel()
	}
}
