package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/database/memory"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	l, err := NewLedger(store)
	require.NoError(t, err)
	return l, store
}

func createAccount(t *testing.T, l *Ledger, id string, opening int64) *model.Account {
	t.Helper()
	acc, err := l.CreateAccount(context.Background(), CreateAccountRequest{
		AccountID:      id,
		Name:           "Banco " + id,
		OpeningBalance: opening,
	})
	require.NoError(t, err)
	return acc
}

func balanceOf(t *testing.T, l *Ledger, id string) int64 {
	t.Helper()
	acc, err := l.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func movementCount(t *testing.T, l *Ledger, id string, kinds ...model.MovementKind) int {
	t.Helper()
	n := 0
	for _, err := range l.Movements(context.Background(), id, model.MovementFilter{Kinds: kinds}) {
		require.NoError(t, err)
		n++
	}
	return n
}

// barrierDatasource holds every ReadForUpdate until `parties` readers have their snapshot,
// forcing them to race on commit.
type barrierDatasource struct {
	database.IDataSource
	parties int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrierDatasource(inner database.IDataSource, parties int) *barrierDatasource {
	return &barrierDatasource{IDataSource: inner, parties: parties, release: make(chan struct{})}
}

func (b *barrierDatasource) ReadForUpdate(ctx context.Context, ids ...string) (*database.Snapshot, error) {
	snapshot, err := b.IDataSource.ReadForUpdate(ctx, ids...)
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.parties {
		close(b.release)
	}
	waiting := b.arrived <= b.parties
	b.mu.Unlock()

	if waiting {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, err
}

// lostAckDatasource commits normally but, once armed, reports the next commit as a timeout.
type lostAckDatasource struct {
	database.IDataSource
	mu   sync.Mutex
	lose bool
}

func (d *lostAckDatasource) loseNextAck() {
	d.mu.Lock()
	d.lose = true
	d.mu.Unlock()
}

func (d *lostAckDatasource) Commit(ctx context.Context, writes database.WriteSet) error {
	if err := d.IDataSource.Commit(ctx, writes); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lose {
		d.lose = false
		return context.DeadlineExceeded
	}
	return nil
}

func TestNewLedger(t *testing.T) {
	t.Run("requires a datasource", func(t *testing.T) {
		_, err := NewLedger(nil)
		assert.Error(t, err)
	})

	t.Run("applies config", func(t *testing.T) {
		cfg := &config.Configuration{}
		cfg.Ledger.OperationTimeoutSec = 3
		l, err := NewLedgerFromConfig(memory.NewStore(), cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, cfg.Ledger.OperationTimeout(), l.timeout)
		assert.Nil(t, l.cache)
	})
}
