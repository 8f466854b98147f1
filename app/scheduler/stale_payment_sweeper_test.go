package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/models"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sweeperRepo stubs the two repository methods the sweeper touches
type sweeperRepo struct {
	repository.PaymentTransactionRepository

	mu       sync.Mutex
	expired  []*models.PaymentTransaction
	statuses map[uint]models.PaymentTransactionStatus
}

func (r *sweeperRepo) ListExpired(ctx context.Context, limit int) ([]*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired, nil
}

func (r *sweeperRepo) UpdateStatusIfCurrent(ctx context.Context, id uint, from, to models.PaymentTransactionStatus, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[id] != from {
		return false, nil
	}
	r.statuses[id] = to
	return true, nil
}

func TestSweeperFailsExpiredTransactions(t *testing.T) {
	past := utils.UTCNowAdd(-time.Hour)
	repo := &sweeperRepo{
		expired: []*models.PaymentTransaction{
			{ID: 1, DeptRefNo: "TL00000000101", Status: models.PaymentStatusInitiated, ExpiresAt: &past},
			{ID: 2, DeptRefNo: "TL00000000201", Status: models.PaymentStatusRedirected, ExpiresAt: &past},
		},
		statuses: map[uint]models.PaymentTransactionStatus{
			1: models.PaymentStatusInitiated,
			2: models.PaymentStatusRedirected,
		},
	}

	sweeper := NewStalePaymentSweeper(repo, time.Minute, nil)
	sweeper.runOnce(context.Background())

	assert.Equal(t, models.PaymentStatusFailed, repo.statuses[1])
	assert.Equal(t, models.PaymentStatusFailed, repo.statuses[2])
}

func TestSweeperLosesToConcurrentCallback(t *testing.T) {
	past := utils.UTCNowAdd(-time.Hour)
	repo := &sweeperRepo{
		expired: []*models.PaymentTransaction{
			{ID: 1, DeptRefNo: "TL00000000101", Status: models.PaymentStatusRedirected, ExpiresAt: &past},
		},
		// A callback advanced the row between the list and the update.
		statuses: map[uint]models.PaymentTransactionStatus{
			1: models.PaymentStatusPendingVerification,
		},
	}

	sweeper := NewStalePaymentSweeper(repo, time.Minute, nil)
	sweeper.runOnce(context.Background())

	assert.Equal(t, models.PaymentStatusPendingVerification, repo.statuses[1])
}

func TestSweeperStartStops(t *testing.T) {
	repo := &sweeperRepo{statuses: map[uint]models.PaymentTransactionStatus{}}

	sweeper := NewStalePaymentSweeper(repo, 10*time.Millisecond, nil)
	stop := sweeper.Start(context.Background())
	require.NotNil(t, stop)
	time.Sleep(30 * time.Millisecond)
	stop()
}
