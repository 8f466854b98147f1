// Package scheduler
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
)

// sweepBatchSize caps rows handled per tick
const sweepBatchSize = 200

// StalePaymentSweeper periodically fails transactions whose redirect expired
// without a gateway callback. Off the correctness path: an expired row that a
// late callback reaches first simply advances and falls out of the sweep.
type StalePaymentSweeper struct {
	transactionRepo repository.PaymentTransactionRepository
	interval        time.Duration
	logger          *log.Logger
}

// NewStalePaymentSweeper creates a new sweeper
func NewStalePaymentSweeper(
	transactionRepo repository.PaymentTransactionRepository,
	interval time.Duration,
	logger *log.Logger,
) *StalePaymentSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StalePaymentSweeper{
		transactionRepo: transactionRepo,
		interval:        interval,
		logger:          logger,
	}
}

// Start launches the sweep loop and returns a cancel function
func (s *StalePaymentSweeper) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *StalePaymentSweeper) runOnce(ctx context.Context) {
	expired, err := s.transactionRepo.ListExpired(ctx, sweepBatchSize)
	if err != nil {
		s.logger.Printf("sweeper: listing expired transactions failed: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	swept := 0
	for _, transaction := range expired {
		// Conditional on the observed status so a concurrent callback wins.
		won, err := s.transactionRepo.UpdateStatusIfCurrent(ctx, transaction.ID,
			transaction.Status, models.PaymentStatusFailed, map[string]any{
				"status_reason": "payment window expired",
			})
		if err != nil {
			s.logger.Printf("sweeper: failing %s: %v", transaction.DeptRefNo, err)
			continue
		}
		if won {
			swept++
		}
	}

	s.logger.Printf("sweeper: failed %d of %d expired transactions", swept, len(expired))
}
