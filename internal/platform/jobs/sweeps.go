package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

const sweepBatchSize = 50

// Sweep is one periodic maintenance task.
type Sweep struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Sweeper drives sweeps on fixed tickers until Stop is called. Each run gets
// a bounded context so a stuck sweep cannot block shutdown.
type Sweeper struct {
	logger services.Logger
	sweeps []Sweep

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewSweeper(logger services.Logger, sweeps ...Sweep) *Sweeper {
	return &Sweeper{logger: logger, sweeps: sweeps}
}

func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, sweep := range s.sweeps {
		if sweep.Run == nil || sweep.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, sweep)
	}
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, sweep Sweep) {
	defer s.wg.Done()

	ticker := time.NewTicker(sweep.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			err := sweep.Run(runCtx)
			cancel()
			if err != nil {
				s.log(ctx, "jobs.sweep_failed", map[string]any{
					"sweep": sweep.Name,
					"error": err.Error(),
				})
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) log(ctx context.Context, event string, fields map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger(ctx, event, fields)
}

// AbandonedCartSweep marks active carts idle past window as abandoned. One
// batch per run; the next tick picks up the remainder.
func AbandonedCartSweep(carts repositories.CartRepository, window time.Duration, clock func() time.Time, logger services.Logger) Sweep {
	if clock == nil {
		clock = time.Now
	}
	return Sweep{
		Name: "abandoned_carts",
		Run: func(ctx context.Context) error {
			now := clock().UTC()
			stale, err := carts.ListStale(ctx, now.Add(-window), sweepBatchSize)
			if err != nil {
				return fmt.Errorf("list stale carts: %w", err)
			}
			var marked int
			for _, cart := range stale {
				cart.Status = domain.CartStatusAbandoned
				cart.UpdatedAt = now
				if _, err := carts.Upsert(ctx, cart); err != nil {
					if logger != nil {
						logger(ctx, "jobs.cart_abandon_failed", map[string]any{
							"userId": cart.UserID,
							"error":  err.Error(),
						})
					}
					continue
				}
				marked++
			}
			if marked > 0 && logger != nil {
				logger(ctx, "jobs.carts_abandoned", map[string]any{"count": marked})
			}
			return nil
		},
	}
}

// StalePendingOrderSweep alerts admins about orders stuck in pending past
// window. Each order is flagged after the first alert so it is reported once.
func StalePendingOrderSweep(orders repositories.OrderRepository, notifier services.NotificationDispatcher, window time.Duration, clock func() time.Time, logger services.Logger) Sweep {
	if clock == nil {
		clock = time.Now
	}
	return Sweep{
		Name: "stale_pending_orders",
		Run: func(ctx context.Context) error {
			now := clock().UTC()
			stale, err := orders.ListStalePending(ctx, now.Add(-window), sweepBatchSize)
			if err != nil {
				return fmt.Errorf("list stale pending orders: %w", err)
			}
			for _, order := range stale {
				if alerted, _ := order.Metadata["staleAlerted"].(bool); alerted {
					continue
				}
				if notifier != nil {
					notifier.AdminAlert(ctx, fmt.Sprintf("Order %s has been pending since %s.",
						order.OrderNumber, order.CreatedAt.UTC().Format(time.RFC3339)))
				}
				if order.Metadata == nil {
					order.Metadata = make(map[string]any)
				}
				order.Metadata["staleAlerted"] = true
				order.UpdatedAt = now
				if err := orders.Update(ctx, order); err != nil && logger != nil {
					logger(ctx, "jobs.stale_flag_failed", map[string]any{
						"orderId": order.ID,
						"error":   err.Error(),
					})
				}
			}
			return nil
		},
	}
}
