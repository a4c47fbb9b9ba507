package ledger

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	t.Run("opening balance writes an opening movement", func(t *testing.T) {
		acc, err := l.CreateAccount(ctx, CreateAccountRequest{Name: gofakeit.Company(), OpeningBalance: 150000, MetaData: map[string]interface{}{"sucursal": "centro"}})
		require.NoError(t, err)
		assert.Contains(t, acc.AccountID, "bnk_")
		assert.Equal(t, "MXN", acc.Currency)
		assert.Equal(t, int64(1), acc.Version)
		assert.Zero(t, acc.InboundTotal)

		movements, err := l.FindByCorrelation(ctx, OpeningKey(acc.AccountID))
		require.NoError(t, err)
		require.Len(t, movements, 1)
		assert.Equal(t, model.KindOpening, movements[0].Kind)
		assert.Equal(t, int64(150000), movements[0].Amount)
		assert.Equal(t, "Saldo inicial", movements[0].Memo)
	})

	t.Run("zero opening balance writes no movement", func(t *testing.T) {
		acc, err := l.CreateAccount(ctx, CreateAccountRequest{AccountID: "vacia", Name: "Vacía", Currency: "usd"})
		require.NoError(t, err)
		assert.Equal(t, "USD", acc.Currency)
		assert.Equal(t, 0, movementCount(t, l, "vacia"))
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := l.CreateAccount(ctx, CreateAccountRequest{AccountID: "vacia", Name: "Otra"})
		assert.Equal(t, ErrConflict, CodeOf(err))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := l.CreateAccount(ctx, CreateAccountRequest{Name: "  "})
		assert.Equal(t, ErrInvalidInput, CodeOf(err))

		_, err = l.CreateAccount(ctx, CreateAccountRequest{Name: "Neg", OpeningBalance: -1})
		assert.Equal(t, ErrInvalidAmount, CodeOf(err))
	})
}

func TestDisableAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "leftie", 100)

	acc, err := l.DisableAccount(ctx, "leftie")
	require.NoError(t, err)
	assert.True(t, acc.Disabled)
	assert.Equal(t, int64(2), acc.Version)

	stored, err := l.GetAccount(ctx, "leftie")
	require.NoError(t, err)
	assert.True(t, stored.Disabled)
	assert.Equal(t, int64(2), stored.Version)

	again, err := l.DisableAccount(ctx, "leftie")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)

	_, err = l.Deposit(ctx, MovementRequest{AccountID: "leftie", Amount: 1})
	assert.Equal(t, ErrAccountDisabled, CodeOf(err))

	_, err = l.DisableAccount(ctx, "missing")
	assert.Equal(t, ErrAccountNotFound, CodeOf(err))
}

func TestSeedAccounts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	createAccount(t, l, "azteca", 500)

	created, err := l.SeedAccounts(ctx, DefaultAccounts())
	require.NoError(t, err)
	assert.Len(t, created, 6)

	accounts, err := l.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 7)
	assert.Equal(t, int64(500), balanceOf(t, l, "azteca"))

	usa, err := l.GetAccount(ctx, "boveda_usa")
	require.NoError(t, err)
	assert.Equal(t, "USD", usa.Currency)

	again, err := l.SeedAccounts(ctx, DefaultAccounts())
	require.NoError(t, err)
	assert.Empty(t, again)
}
