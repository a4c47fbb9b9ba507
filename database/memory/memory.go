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

// Package memory provides an in-process IDataSource for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
)

type pairKey struct {
	CorrelationKey string
	AccountID      string
}

// Store keeps accounts and movements in maps guarded by one mutex.
// Commit validates the whole write set before applying any of it.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]model.Account
	movements   map[string][]model.Movement // by account, newest first
	correlation map[string][]model.Movement
	pairs       map[pairKey]struct{}
}

var _ database.IDataSource = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]model.Account),
		movements:   make(map[string][]model.Movement),
		correlation: make(map[string][]model.Movement),
		pairs:       make(map[pairKey]struct{}),
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apierror.Wrap(apierror.ErrUnavailable, "operation deadline exceeded", err)
	}
	return nil
}

func (s *Store) ReadForUpdate(ctx context.Context, ids ...string) (*database.Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &database.Snapshot{ReadAt: time.Now().UTC(), Accounts: make(map[string]model.Account, len(ids))}
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			snapshot.Accounts[id] = acc.Clone()
		}
	}
	return snapshot, nil
}

func (s *Store) Commit(ctx context.Context, writes database.WriteSet) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate everything first so a rejected write set leaves no trace
	seenAccounts := make(map[string]struct{}, len(writes.NewAccounts))
	for _, acc := range writes.NewAccounts {
		if _, exists := s.accounts[acc.AccountID]; exists {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Account with ID '%s' already exists", acc.AccountID))
		}
		if _, dup := seenAccounts[acc.AccountID]; dup {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Account with ID '%s' already exists", acc.AccountID))
		}
		seenAccounts[acc.AccountID] = struct{}{}
	}
	for _, acc := range writes.UpdatedAccounts {
		current, ok := s.accounts[acc.AccountID]
		if !ok || current.Version != acc.Version {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Optimistic locking failure: account with ID '%s' may have been updated by another transaction", acc.AccountID))
		}
		if acc.Balance < 0 {
			return apierror.NewAccountError(apierror.ErrInsufficientFunds, acc.AccountID, "balance check failed")
		}
	}
	seenPairs := make(map[pairKey]struct{}, len(writes.Movements))
	for _, m := range writes.Movements {
		k := pairKey{CorrelationKey: m.CorrelationKey, AccountID: m.AccountID}
		if _, taken := s.pairs[k]; taken {
			return apierror.NewAccountError(apierror.ErrDuplicateCorrelation, m.AccountID, fmt.Sprintf("correlation key '%s' already used for this account", m.CorrelationKey))
		}
		if _, dup := seenPairs[k]; dup {
			return apierror.NewAccountError(apierror.ErrDuplicateCorrelation, m.AccountID, fmt.Sprintf("correlation key '%s' already used for this account", m.CorrelationKey))
		}
		seenPairs[k] = struct{}{}
		_, existing := s.accounts[m.AccountID]
		_, created := seenAccounts[m.AccountID]
		if !existing && !created {
			return apierror.NewAccountError(apierror.ErrAccountNotFound, m.AccountID, "movement references an unknown account")
		}
	}

	for _, acc := range writes.NewAccounts {
		s.accounts[acc.AccountID] = acc.Clone()
	}
	for _, acc := range writes.UpdatedAccounts {
		next := acc.Clone()
		next.Version++
		s.accounts[acc.AccountID] = next
	}
	for _, m := range writes.Movements {
		s.movements[m.AccountID] = insertSorted(s.movements[m.AccountID], m)
		s.correlation[m.CorrelationKey] = append(s.correlation[m.CorrelationKey], m)
		s.pairs[pairKey{CorrelationKey: m.CorrelationKey, AccountID: m.AccountID}] = struct{}{}
	}
	return nil
}

func insertSorted(movements []model.Movement, m model.Movement) []model.Movement {
	i := sort.Search(len(movements), func(i int) bool {
		return model.MovementLess(m, movements[i])
	})
	movements = append(movements, model.Movement{})
	copy(movements[i+1:], movements[i:])
	movements[i] = m
	return movements
}

func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, apierror.NewAccountError(apierror.ErrAccountNotFound, id, fmt.Sprintf("Account with ID '%s' not found", id))
	}
	c := acc.Clone()
	return &c, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, acc.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name != accounts[j].Name {
			return accounts[i].Name < accounts[j].Name
		}
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

func (s *Store) GetMovements(ctx context.Context, accountID string, query database.MovementQuery) ([]model.Movement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = model.DefaultMovementLimit
	}
	result := []model.Movement{}
	for _, m := range s.movements[accountID] {
		if !query.Matches(m) {
			continue
		}
		result = append(result, m)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetMovementsByCorrelation(ctx context.Context, key string) ([]model.Movement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := append([]model.Movement{}, s.correlation[key]...)
	model.SortMovements(result)
	return result, nil
}

func (s *Store) SumMovements(ctx context.Context, accountID string) (database.MovementTotals, error) {
	if err := ctxErr(ctx); err != nil {
		return database.MovementTotals{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals database.MovementTotals
	for _, m := range s.movements[accountID] {
		totals.Add(m)
	}
	return totals, nil
}

func (s *Store) Close() error {
	return nil
}
