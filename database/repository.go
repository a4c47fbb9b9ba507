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

package database

import (
	"context"
	"time"

	"github.com/chronosfinance/ledger/model"
)

// IDataSource is the transactional client the ledger is built on, grouped by concern.
type IDataSource interface {
	transactional  // Snapshot reads and all-or-nothing commits
	accountReader  // Read-only account projections
	movementReader // Read-only movement log queries
	Close() error
}

// transactional exposes the only primitives the ledger needs to mutate state.
type transactional interface {
	ReadForUpdate(ctx context.Context, ids ...string) (*Snapshot, error) // Reads accounts with their versions; missing ids are absent
	Commit(ctx context.Context, writes WriteSet) error                  // Applies the write set atomically or not at all
}

type accountReader interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error) // Retrieves an account by ID
	ListAccounts(ctx context.Context) ([]model.Account, error)         // Retrieves all accounts sorted by name
}

type movementReader interface {
	GetMovements(ctx context.Context, accountID string, query MovementQuery) ([]model.Movement, error) // Retrieves one page of an account's movements, newest first
	GetMovementsByCorrelation(ctx context.Context, key string) ([]model.Movement, error)              // Retrieves every movement sharing a correlation key
	SumMovements(ctx context.Context, accountID string) (MovementTotals, error)                        // Sums the movement log of one account
}

// Snapshot holds the accounts read at the start of a ledger operation.
type Snapshot struct {
	ReadAt   time.Time
	Accounts map[string]model.Account
}

// Account returns a copy of the account with the given id.
func (s *Snapshot) Account(id string) (model.Account, bool) {
	if s == nil {
		return model.Account{}, false
	}
	acc, ok := s.Accounts[id]
	if !ok {
		return model.Account{}, false
	}
	return acc.Clone(), true
}

// WriteSet is everything one ledger operation writes.
// UpdatedAccounts carry the Version they were read at; the store bumps it on commit.
type WriteSet struct {
	NewAccounts     []model.Account
	UpdatedAccounts []model.Account
	Movements       []model.Movement
}

// Empty reports whether the write set has nothing to apply.
func (w WriteSet) Empty() bool {
	return len(w.NewAccounts) == 0 && len(w.UpdatedAccounts) == 0 && len(w.Movements) == 0
}

// MovementQuery is the store-level form of model.MovementFilter with the cursor already decoded.
type MovementQuery struct {
	Kinds  []model.MovementKind
	Before *model.Cursor
	Limit  int
}

// Matches reports whether m belongs in the query result.
func (q MovementQuery) Matches(m model.Movement) bool {
	if q.Before != nil && !q.Before.After(m) {
		return false
	}
	return model.MovementFilter{Kinds: q.Kinds}.Matches(m)
}

// MovementTotals is the reconstruction of an account from its movement log.
type MovementTotals struct {
	Net      int64 `json:"net"`
	Inbound  int64 `json:"inbound"`
	Outbound int64 `json:"outbound"`
	Count    int64 `json:"count"`
}

// Add folds one movement into the totals.
func (t *MovementTotals) Add(m model.Movement) {
	t.Net += m.Amount
	t.Count++
	switch m.Kind {
	case model.KindTransferIn, model.KindDeposit:
		t.Inbound += m.Amount
	case model.KindTransferOut, model.KindWithdrawal:
		t.Outbound -= m.Amount
	}
}
