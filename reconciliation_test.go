package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chronosfinance/ledger/database"
	redlock "github.com/chronosfinance/ledger/internal/lock"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileBalanced(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "a", 1000)
	createAccount(t, l, "b", 0)
	_, err := l.Transfer(ctx, TransferRequest{OriginID: "a", DestinationID: "b", Amount: 300})
	require.NoError(t, err)
	_, err = l.Withdraw(ctx, MovementRequest{AccountID: "b", Amount: 100})
	require.NoError(t, err)

	report, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced())
	assert.Equal(t, 2, report.AccountsChecked)
	assert.Equal(t, int64(4), report.MovementsChecked)
}

func TestReconcileFindsDrift(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "a", 1000)

	acc, err := store.GetAccount(ctx, "a")
	require.NoError(t, err)
	acc.Balance = 1200
	require.NoError(t, store.Commit(ctx, database.WriteSet{UpdatedAccounts: []model.Account{*acc}}))

	report, err := l.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, Discrepancy{AccountID: "a", Field: FieldBalance, Stored: 1200, Computed: 1000}, report.Discrepancies[0])
}

type fakeLocker struct {
	held     bool
	fail     error
	locked   int
	unlocked int
}

func (f *fakeLocker) Lock(_ context.Context, _ time.Duration) error {
	if f.fail != nil {
		return f.fail
	}
	if f.held {
		return fmt.Errorf("%w: recon", redlock.ErrLockHeld)
	}
	f.locked++
	return nil
}

func (f *fakeLocker) Unlock(_ context.Context) error {
	f.unlocked++
	return nil
}

func TestReconciliationWorkerRunOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "a", 10)

	t.Run("runs under the lock", func(t *testing.T) {
		locker := &fakeLocker{}
		var reports int
		w := NewReconciliationWorker(l, locker, time.Hour, time.Minute).OnReport(func(*ReconciliationReport) { reports++ })

		report, err := w.RunOnce(ctx)
		require.NoError(t, err)
		require.NotNil(t, report)
		assert.True(t, report.Balanced())
		assert.Equal(t, 1, locker.locked)
		assert.Equal(t, 1, locker.unlocked)
		assert.Equal(t, 1, reports)
	})

	t.Run("skips when another instance holds the lock", func(t *testing.T) {
		locker := &fakeLocker{held: true}
		report, err := NewReconciliationWorker(l, locker, time.Hour, time.Minute).RunOnce(ctx)
		require.NoError(t, err)
		assert.Nil(t, report)
		assert.Zero(t, locker.unlocked)
	})

	t.Run("lock errors surface", func(t *testing.T) {
		locker := &fakeLocker{fail: errors.New("redis down")}
		_, err := NewReconciliationWorker(l, locker, time.Hour, time.Minute).RunOnce(ctx)
		assert.Error(t, err)
	})
}

func TestReconciliationWorkerStartStop(t *testing.T) {
	l, _ := newTestLedger(t)
	locker := &fakeLocker{}
	done := make(chan struct{}, 1)
	w := NewReconciliationWorker(l, locker, 10*time.Millisecond, time.Minute).OnReport(func(*ReconciliationReport) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	w.Start(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reconciled")
	}
	w.Stop()
	w.Stop()
}
