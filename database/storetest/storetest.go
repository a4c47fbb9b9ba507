/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package storetest is a conformance suite every IDataSource backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) database.IDataSource

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, ds database.IDataSource)
	}{
		{"CreateAndRead", testCreateAndRead},
		{"ReadForUpdateSkipsMissing", testReadForUpdateSkipsMissing},
		{"DuplicateAccount", testDuplicateAccount},
		{"VersionConflict", testVersionConflict},
		{"DuplicateCorrelation", testDuplicateCorrelation},
		{"NegativeBalanceRejected", testNegativeBalanceRejected},
		{"UnknownAccountMovement", testUnknownAccountMovement},
		{"ListAccountsSorted", testListAccountsSorted},
		{"MovementPagination", testMovementPagination},
		{"MovementKindFilter", testMovementKindFilter},
		{"CorrelationLookup", testCorrelationLookup},
		{"SumMovements", testSumMovements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := newStore(t)
			t.Cleanup(func() {
				_ = ds.Close()
			})
			tt.fn(t, ds)
		})
	}
}

var base = model.Timestamp(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

func newAccount(id, name string, balance int64) model.Account {
	return model.Account{
		AccountID: id,
		Name:      name,
		Currency:  "MXN",
		Balance:   balance,
		Version:   1,
		CreatedAt: base,
		UpdatedAt: base,
		MetaData:  map[string]interface{}{"owner": gofakeit.FirstName()},
	}
}

func movement(accountID string, kind model.MovementKind, amount int64, key string, at time.Time) model.Movement {
	return model.Movement{
		MovementID:     model.GenerateMovementID(),
		AccountID:      accountID,
		Kind:           kind,
		Amount:         amount,
		Memo:           gofakeit.Sentence(4),
		CorrelationKey: key,
		CreatedAt:      model.Timestamp(at),
	}
}

func seed(t *testing.T, ds database.IDataSource, accounts ...model.Account) {
	t.Helper()
	require.NoError(t, ds.Commit(context.Background(), database.WriteSet{NewAccounts: accounts}))
}

func testCreateAndRead(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	acc := newAccount("boveda-monte", "Bóveda Monte", 150000)
	open := movement(acc.AccountID, model.KindOpening, 150000, "open_boveda-monte", base)
	require.NoError(t, ds.Commit(ctx, database.WriteSet{NewAccounts: []model.Account{acc}, Movements: []model.Movement{open}}))

	got, err := ds.GetAccount(ctx, acc.AccountID)
	require.NoError(t, err)
	assert.Equal(t, acc, *got)

	_, err = ds.GetAccount(ctx, "missing")
	assert.True(t, apierror.Is(err, apierror.ErrAccountNotFound))
}

func testReadForUpdateSkipsMissing(t *testing.T, ds database.IDataSource) {
	seed(t, ds, newAccount("azteca", "Azteca", 10))

	snapshot, err := ds.ReadForUpdate(context.Background(), "azteca", "ghost")
	require.NoError(t, err)
	_, ok := snapshot.Account("ghost")
	assert.False(t, ok)
	acc, ok := snapshot.Account("azteca")
	require.True(t, ok)
	assert.Equal(t, int64(10), acc.Balance)
	assert.Equal(t, int64(1), acc.Version)
}

func testDuplicateAccount(t *testing.T, ds database.IDataSource) {
	seed(t, ds, newAccount("fletes", "Flete Sur", 0))
	err := ds.Commit(context.Background(), database.WriteSet{NewAccounts: []model.Account{newAccount("fletes", "Flete Sur", 0)}})
	assert.True(t, apierror.Is(err, apierror.ErrConflict), "got %v", err)
}

func testVersionConflict(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	seed(t, ds, newAccount("leftie", "Leftie", 1000))

	snapshot, err := ds.ReadForUpdate(ctx, "leftie")
	require.NoError(t, err)
	first, _ := snapshot.Account("leftie")
	second, _ := snapshot.Account("leftie")

	first.Balance += 100
	require.NoError(t, ds.Commit(ctx, database.WriteSet{
		UpdatedAccounts: []model.Account{first},
		Movements:       []model.Movement{movement("leftie", model.KindDeposit, 100, "cor_1", base)},
	}))

	second.Balance += 200
	err = ds.Commit(ctx, database.WriteSet{
		UpdatedAccounts: []model.Account{second},
		Movements:       []model.Movement{movement("leftie", model.KindDeposit, 200, "cor_2", base)},
	})
	assert.True(t, apierror.Is(err, apierror.ErrConflict), "got %v", err)

	got, err := ds.GetAccount(ctx, "leftie")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), got.Balance)
	assert.Equal(t, int64(2), got.Version)

	lost, err := ds.GetMovementsByCorrelation(ctx, "cor_2")
	require.NoError(t, err)
	assert.Empty(t, lost)
}

func testDuplicateCorrelation(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	seed(t, ds, newAccount("profit", "Profit", 0), newAccount("utilidades", "Utilidades", 0))

	require.NoError(t, ds.Commit(ctx, database.WriteSet{
		Movements: []model.Movement{movement("profit", model.KindDeposit, 5, "cor_dup", base)},
	}))

	err := ds.Commit(ctx, database.WriteSet{
		Movements: []model.Movement{
			movement("utilidades", model.KindDeposit, 5, "cor_dup", base),
			movement("profit", model.KindDeposit, 5, "cor_dup", base),
		},
	})
	assert.True(t, apierror.Is(err, apierror.ErrDuplicateCorrelation), "got %v", err)

	got, err := ds.GetMovementsByCorrelation(ctx, "cor_dup")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testNegativeBalanceRejected(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	seed(t, ds, newAccount("boveda-usa", "Bóveda USA", 10))

	snapshot, err := ds.ReadForUpdate(ctx, "boveda-usa")
	require.NoError(t, err)
	acc, _ := snapshot.Account("boveda-usa")
	acc.Balance = -1

	err = ds.Commit(ctx, database.WriteSet{UpdatedAccounts: []model.Account{acc}})
	assert.True(t, apierror.Is(err, apierror.ErrInsufficientFunds), "got %v", err)
}

func testUnknownAccountMovement(t *testing.T, ds database.IDataSource) {
	err := ds.Commit(context.Background(), database.WriteSet{
		Movements: []model.Movement{movement("ghost", model.KindDeposit, 1, "cor_ghost", base)},
	})
	assert.True(t, apierror.Is(err, apierror.ErrAccountNotFound), "got %v", err)
}

func testListAccountsSorted(t *testing.T, ds database.IDataSource) {
	seed(t, ds,
		newAccount("utilidades", "Utilidades", 0),
		newAccount("azteca", "Azteca", 0),
		newAccount("leftie", "Leftie", 0),
	)

	accounts, err := ds.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "Azteca", accounts[0].Name)
	assert.Equal(t, "Leftie", accounts[1].Name)
	assert.Equal(t, "Utilidades", accounts[2].Name)
}

func seedHistory(t *testing.T, ds database.IDataSource, accountID string, n int) []model.Movement {
	t.Helper()
	seed(t, ds, newAccount(accountID, "History", 0))

	var all []model.Movement
	for i := 0; i < n; i++ {
		kind := model.KindDeposit
		amount := int64(100)
		if i%3 == 2 {
			kind, amount = model.KindWithdrawal, -50
		}
		// pairs of movements share a timestamp so ties are exercised
		m := movement(accountID, kind, amount, model.GenerateUUIDWithSuffix("cor"), base.Add(time.Duration(i/2)*time.Second))
		all = append(all, m)
	}
	require.NoError(t, ds.Commit(context.Background(), database.WriteSet{Movements: all}))
	model.SortMovements(all)
	return all
}

func ids(movements []model.Movement) []string {
	out := make([]string, len(movements))
	for i, m := range movements {
		out[i] = m.MovementID
	}
	return out
}

func testMovementPagination(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	all := seedHistory(t, ds, "history", 9)

	var (
		collected []model.Movement
		before    *model.Cursor
	)
	for {
		page, err := ds.GetMovements(ctx, "history", database.MovementQuery{Before: before, Limit: 4})
		require.NoError(t, err)
		collected = append(collected, page...)
		if len(page) < 4 {
			break
		}
		c := page[len(page)-1].Cursor()
		before = &c
	}
	assert.Equal(t, ids(all), ids(collected))
}

func testMovementKindFilter(t *testing.T, ds database.IDataSource) {
	all := seedHistory(t, ds, "history", 9)

	var want []model.Movement
	for _, m := range all {
		if m.Kind == model.KindWithdrawal {
			want = append(want, m)
		}
	}

	got, err := ds.GetMovements(context.Background(), "history", database.MovementQuery{Kinds: []model.MovementKind{model.KindWithdrawal}, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, ids(want), ids(got))
	for _, m := range got {
		assert.Equal(t, model.KindWithdrawal, m.Kind)
	}
}

func testCorrelationLookup(t *testing.T, ds database.IDataSource) {
	ctx := context.Background()
	seed(t, ds, newAccount("a", "A", 100), newAccount("b", "B", 0))

	out := movement("a", model.KindTransferOut, -40, "cor_pair", base)
	out.CounterpartyID = "b"
	in := movement("b", model.KindTransferIn, 40, "cor_pair", base)
	in.CounterpartyID = "a"
	require.NoError(t, ds.Commit(ctx, database.WriteSet{Movements: []model.Movement{out, in}}))

	got, err := ds.GetMovementsByCorrelation(ctx, "cor_pair")
	require.NoError(t, err)
	require.Len(t, got, 2)
	byAccount := map[string]model.Movement{got[0].AccountID: got[0], got[1].AccountID: got[1]}
	assert.Equal(t, out, byAccount["a"])
	assert.Equal(t, in, byAccount["b"])

	none, err := ds.GetMovementsByCorrelation(ctx, "cor_none")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSumMovements(t *testing.T, ds database.IDataSource) {
	seedHistory(t, ds, "history", 9)

	totals, err := ds.SumMovements(context.Background(), "history")
	require.NoError(t, err)
	assert.Equal(t, int64(9), totals.Count)
	assert.Equal(t, int64(600), totals.Inbound)
	assert.Equal(t, int64(150), totals.Outbound)
	assert.Equal(t, int64(450), totals.Net)

	empty, err := ds.SumMovements(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
}
