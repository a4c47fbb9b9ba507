package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/database/mocks"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "boveda_monte", 150000)
	createAccount(t, l, "azteca", 0)

	result, err := l.Transfer(ctx, TransferRequest{OriginID: "boveda_monte", DestinationID: "azteca", Amount: 10000})
	require.NoError(t, err)
	assert.NotEmpty(t, result.CorrelationKey)
	assert.False(t, result.Replayed)

	origin, err := l.GetAccount(ctx, "boveda_monte")
	require.NoError(t, err)
	destination, err := l.GetAccount(ctx, "azteca")
	require.NoError(t, err)

	assert.Equal(t, int64(140000), origin.Balance)
	assert.Equal(t, int64(10000), origin.OutboundTotal)
	assert.Equal(t, int64(10000), destination.Balance)
	assert.Equal(t, int64(10000), destination.InboundTotal)

	pair, err := l.FindByCorrelation(ctx, result.CorrelationKey)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	out, in, ok := transferPair(pair)
	require.True(t, ok)
	assert.Equal(t, result.OutMovementID, out.MovementID)
	assert.Equal(t, result.InMovementID, in.MovementID)
	assert.Equal(t, int64(-10000), out.Amount)
	assert.Equal(t, "azteca", out.CounterpartyID)
	assert.Equal(t, "Transferencia a Banco azteca", out.Memo)
	assert.Equal(t, "Transferencia desde Banco boveda_monte", in.Memo)
	assert.Equal(t, out.CreatedAt, in.CreatedAt)
}

func TestTransferRejections(t *testing.T) {
	tests := []struct {
		name      string
		req       TransferRequest
		disable   string
		code      ErrorCode
		accountID string
	}{
		{
			name:      "insufficient funds",
			req:       TransferRequest{OriginID: "poor", DestinationID: "rich", Amount: 5000},
			code:      ErrInsufficientFunds,
			accountID: "poor",
		},
		{
			name:      "unknown destination",
			req:       TransferRequest{OriginID: "poor", DestinationID: "ghost", Amount: 100},
			code:      ErrAccountNotFound,
			accountID: "ghost",
		},
		{
			name:      "unknown origin is reported first",
			req:       TransferRequest{OriginID: "ghost", DestinationID: "nowhere", Amount: 100},
			code:      ErrAccountNotFound,
			accountID: "ghost",
		},
		{
			name:      "zero amount",
			req:       TransferRequest{OriginID: "poor", DestinationID: "rich", Amount: 0},
			code:      ErrInvalidAmount,
			accountID: "poor",
		},
		{
			name:      "negative amount",
			req:       TransferRequest{OriginID: "poor", DestinationID: "rich", Amount: -5},
			code:      ErrInvalidAmount,
			accountID: "poor",
		},
		{
			name:      "same account",
			req:       TransferRequest{OriginID: "poor", DestinationID: "poor", Amount: 100},
			code:      ErrSameAccount,
			accountID: "poor",
		},
		{
			name: "missing ids",
			req:  TransferRequest{Amount: 100},
			code: ErrInvalidInput,
		},
		{
			name:      "disabled destination",
			req:       TransferRequest{OriginID: "poor", DestinationID: "rich", Amount: 100},
			disable:   "rich",
			code:      ErrAccountDisabled,
			accountID: "rich",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			ctx := context.Background()
			createAccount(t, l, "poor", 1000)
			createAccount(t, l, "rich", 0)
			if tt.disable != "" {
				_, err := l.DisableAccount(ctx, tt.disable)
				require.NoError(t, err)
			}

			req := tt.req
			req.CorrelationKey = "intento-1"
			_, err := l.Transfer(ctx, req)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			var ledgerErr Error
			require.True(t, errors.As(err, &ledgerErr))
			assert.Equal(t, tt.accountID, ledgerErr.AccountID)

			assert.Equal(t, int64(1000), balanceOf(t, l, "poor"))
			assert.Equal(t, int64(0), balanceOf(t, l, "rich"))
			assert.Equal(t, 0, movementCount(t, l, "poor", model.KindTransferOut))
			assert.Equal(t, 0, movementCount(t, l, "rich", model.KindTransferIn))

			movements, err := l.FindByCorrelation(ctx, req.CorrelationKey)
			require.NoError(t, err)
			assert.Empty(t, movements)
		})
	}
}

func TestTransferReplay(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "utilidades", 50000)
	createAccount(t, l, "fletes", 0)

	req := TransferRequest{OriginID: "utilidades", DestinationID: "fletes", Amount: 2500, CorrelationKey: "pago-42"}
	first, err := l.Transfer(ctx, req)
	require.NoError(t, err)

	second, err := l.Transfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OutMovementID, second.OutMovementID)
	assert.Equal(t, first.InMovementID, second.InMovementID)
	assert.Equal(t, int64(47500), balanceOf(t, l, "utilidades"))

	t.Run("different parameters under the same key", func(t *testing.T) {
		other := req
		other.Amount = 1
		_, err := l.Transfer(ctx, other)
		assert.Equal(t, ErrDuplicateCorrelation, CodeOf(err))
		assert.Equal(t, int64(47500), balanceOf(t, l, "utilidades"))
	})
}

func TestReverseTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "leftie", 9000)
	createAccount(t, l, "profit", 0)

	original, err := l.Transfer(ctx, TransferRequest{OriginID: "leftie", DestinationID: "profit", Amount: 4000, CorrelationKey: "k1"})
	require.NoError(t, err)

	reversal, err := l.ReverseTransfer(ctx, original.CorrelationKey, "")
	require.NoError(t, err)
	assert.Equal(t, ReversalKey("k1"), reversal.CorrelationKey)
	assert.False(t, reversal.Replayed)
	assert.Equal(t, int64(9000), balanceOf(t, l, "leftie"))
	assert.Equal(t, int64(0), balanceOf(t, l, "profit"))

	again, err := l.ReverseTransfer(ctx, original.CorrelationKey, "")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, reversal.OutMovementID, again.OutMovementID)
	assert.Equal(t, int64(9000), balanceOf(t, l, "leftie"))

	_, err = l.ReverseTransfer(ctx, "missing", "")
	assert.Equal(t, ErrNotFound, CodeOf(err))
}

func TestConcurrentTransfersFromOneOrigin(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "origin", 100000)
	createAccount(t, l, "dest_a", 0)
	createAccount(t, l, "dest_b", 0)

	retrier := NewRetrier(l, 20).WithBackOff(zeroBackOff)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, req := range []TransferRequest{
		{OriginID: "origin", DestinationID: "dest_a", Amount: 10000},
		{OriginID: "origin", DestinationID: "dest_b", Amount: 15000},
	} {
		wg.Add(1)
		go func(i int, req TransferRequest) {
			defer wg.Done()
			_, errs[i] = retrier.Transfer(ctx, req)
		}(i, req)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(75000), balanceOf(t, l, "origin"))
	assert.Equal(t, int64(10000), balanceOf(t, l, "dest_a"))
	assert.Equal(t, int64(15000), balanceOf(t, l, "dest_b"))

	transfers := movementCount(t, l, "origin", model.KindTransferOut) +
		movementCount(t, l, "dest_a", model.KindTransferIn) +
		movementCount(t, l, "dest_b", model.KindTransferIn)
	assert.Equal(t, 4, transfers)
}

func TestOverlappingTransfersOnlyOneWins(t *testing.T) {
	store := newBarrierDatasource(nil, 2)
	l, inner := newTestLedger(t)
	store.IDataSource = inner
	l.datasource = store
	ctx := context.Background()
	createAccount(t, l, "origin", 100)
	createAccount(t, l, "a", 0)
	createAccount(t, l, "b", 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, dest := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			_, errs[i] = l.Transfer(ctx, TransferRequest{OriginID: "origin", DestinationID: dest, Amount: 60})
		}(i, dest)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case CodeOf(err) == ErrConflict:
			conflicts++
			assert.True(t, IsRetryable(err))
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(40), balanceOf(t, l, "origin"))
	assert.Equal(t, int64(60), balanceOf(t, l, "a")+balanceOf(t, l, "b"))
}

func TestTransferStoreUnavailable(t *testing.T) {
	ds := new(mocks.MockDataSource)
	l, err := NewLedger(ds)
	require.NoError(t, err)

	snapshot := &database.Snapshot{Accounts: map[string]model.Account{
		"azteca": {AccountID: "azteca", Name: "Azteca", Balance: 500, Version: 3},
		"profit": {AccountID: "profit", Name: "Profit", Version: 7},
	}}
	ds.On("ReadForUpdate", mock.Anything, []string{"azteca", "profit"}).Return(snapshot, nil)
	ds.On("Commit", mock.Anything, mock.MatchedBy(func(w database.WriteSet) bool {
		return len(w.UpdatedAccounts) == 2 &&
			w.UpdatedAccounts[0].Version == 3 && w.UpdatedAccounts[0].Balance == 400 &&
			w.UpdatedAccounts[1].Version == 7 && w.UpdatedAccounts[1].Balance == 100 &&
			len(w.Movements) == 2
	})).Return(errors.New("driver: bad connection"))

	_, err = l.Transfer(context.Background(), TransferRequest{OriginID: "azteca", DestinationID: "profit", Amount: 100})
	require.Error(t, err)
	assert.Equal(t, ErrUnavailable, CodeOf(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsUnknownOutcome(err))
	ds.AssertExpectations(t)
}

func TestTransferResolvesConcurrentDuplicateKey(t *testing.T) {
	ds := new(mocks.MockDataSource)
	l, err := NewLedger(ds)
	require.NoError(t, err)

	committed := []model.Movement{
		{MovementID: "mov_out", AccountID: "azteca", Kind: model.KindTransferOut, Amount: -100, CorrelationKey: "k"},
		{MovementID: "mov_in", AccountID: "profit", Kind: model.KindTransferIn, Amount: 100, CorrelationKey: "k"},
	}
	ds.On("GetMovementsByCorrelation", mock.Anything, "k").Return([]model.Movement{}, nil).Once()
	ds.On("ReadForUpdate", mock.Anything, []string{"azteca", "profit"}).Return(&database.Snapshot{Accounts: map[string]model.Account{
		"azteca": {AccountID: "azteca", Balance: 500, Version: 1},
		"profit": {AccountID: "profit", Version: 1},
	}}, nil)
	ds.On("Commit", mock.Anything, mock.Anything).Return(Error{Code: ErrDuplicateCorrelation, AccountID: "azteca"})
	ds.On("GetMovementsByCorrelation", mock.Anything, "k").Return(committed, nil).Once()

	result, err := l.Transfer(context.Background(), TransferRequest{OriginID: "azteca", DestinationID: "profit", Amount: 100, CorrelationKey: "k"})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, "mov_out", result.OutMovementID)
	assert.Equal(t, "mov_in", result.InMovementID)
	ds.AssertExpectations(t)
}
