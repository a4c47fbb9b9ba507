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

// Package redisstore implements the transactional client on Redis using WATCH/MULTI.
// Every key shares the {ledger} hash tag so a write set stays in one cluster slot.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/redis/go-redis/v9"
)

const (
	prefix    = "{ledger}:"
	scanBatch = 100
)

func accountKey(id string) string          { return prefix + "account:" + id }
func accountsIndexKey() string             { return prefix + "accounts" }
func movementKey(id string) string         { return prefix + "movement:" + id }
func accountMovementsKey(id string) string { return prefix + "account:" + id + ":movements" }
func correlationKey(key string) string     { return prefix + "correlation:" + key }
func pairKey(key, accountID string) string { return prefix + "pair:" + key + ":" + accountID }

// Store is a database.IDataSource backed by Redis.
type Store struct {
	client redis.UniversalClient
}

var _ database.IDataSource = (*Store)(nil)

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

func mapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, redis.TxFailedErr) {
		return apierror.Wrap(apierror.ErrConflict, "concurrent update detected", err)
	}
	return apierror.Wrap(apierror.ErrUnavailable, message, err)
}

func decodeAccount(raw string) (model.Account, error) {
	var acc model.Account
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode account", err)
	}
	return acc, nil
}

func (s *Store) ReadForUpdate(ctx context.Context, ids ...string) (*database.Snapshot, error) {
	snapshot := &database.Snapshot{ReadAt: time.Now().UTC(), Accounts: make(map[string]model.Account, len(ids))}
	if len(ids) == 0 {
		return snapshot, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accountKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapError(err, "Failed to read accounts")
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		acc, err := decodeAccount(raw)
		if err != nil {
			return nil, err
		}
		snapshot.Accounts[ids[i]] = acc
	}
	return snapshot, nil
}

// Commit watches every account and correlation pair the write set touches, verifies
// versions and uniqueness, and applies all writes in one MULTI/EXEC.
// A watched key changing underneath yields redis.TxFailedErr, reported as CONFLICT.
func (s *Store) Commit(ctx context.Context, writes database.WriteSet) error {
	if writes.Empty() {
		return nil
	}

	var watched []string
	for _, acc := range writes.NewAccounts {
		watched = append(watched, accountKey(acc.AccountID))
	}
	for _, acc := range writes.UpdatedAccounts {
		watched = append(watched, accountKey(acc.AccountID))
	}
	for _, m := range writes.Movements {
		watched = append(watched, pairKey(m.CorrelationKey, m.AccountID))
	}

	txf := func(tx *redis.Tx) error {
		if err := s.verify(ctx, tx, writes); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.apply(ctx, pipe, writes)
		})
		return err
	}

	return mapError(s.client.Watch(ctx, txf, watched...), "Failed to commit write set")
}

func (s *Store) verify(ctx context.Context, tx *redis.Tx, writes database.WriteSet) error {
	for _, acc := range writes.NewAccounts {
		n, err := tx.Exists(ctx, accountKey(acc.AccountID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Account with ID '%s' already exists", acc.AccountID))
		}
	}

	for _, acc := range writes.UpdatedAccounts {
		raw, err := tx.Get(ctx, accountKey(acc.AccountID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if errors.Is(err, redis.Nil) {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Optimistic locking failure: account with ID '%s' no longer exists", acc.AccountID))
		}
		current, err := decodeAccount(raw)
		if err != nil {
			return err
		}
		if current.Version != acc.Version {
			return apierror.NewAccountError(apierror.ErrConflict, acc.AccountID, fmt.Sprintf("Optimistic locking failure: account with ID '%s' may have been updated by another transaction", acc.AccountID))
		}
		if acc.Balance < 0 {
			return apierror.NewAccountError(apierror.ErrInsufficientFunds, acc.AccountID, "balance check failed")
		}
	}

	newIDs := make(map[string]struct{}, len(writes.NewAccounts))
	for _, acc := range writes.NewAccounts {
		newIDs[acc.AccountID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(writes.Movements))
	for _, m := range writes.Movements {
		k := pairKey(m.CorrelationKey, m.AccountID)
		if _, dup := seen[k]; dup {
			return apierror.NewAccountError(apierror.ErrDuplicateCorrelation, m.AccountID, fmt.Sprintf("correlation key '%s' already used for this account", m.CorrelationKey))
		}
		seen[k] = struct{}{}
		n, err := tx.Exists(ctx, k).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apierror.NewAccountError(apierror.ErrDuplicateCorrelation, m.AccountID, fmt.Sprintf("correlation key '%s' already used for this account", m.CorrelationKey))
		}
		if _, created := newIDs[m.AccountID]; created {
			continue
		}
		exists, err := tx.SIsMember(ctx, accountsIndexKey(), m.AccountID).Result()
		if err != nil {
			return err
		}
		if !exists {
			return apierror.NewAccountError(apierror.ErrAccountNotFound, m.AccountID, "movement references an unknown account")
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, pipe redis.Pipeliner, writes database.WriteSet) error {
	for _, acc := range writes.NewAccounts {
		b, err := json.Marshal(acc)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to encode account", err)
		}
		pipe.Set(ctx, accountKey(acc.AccountID), b, 0)
		pipe.SAdd(ctx, accountsIndexKey(), acc.AccountID)
	}

	for _, acc := range writes.UpdatedAccounts {
		next := acc.Clone()
		next.Version++
		b, err := json.Marshal(next)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to encode account", err)
		}
		pipe.Set(ctx, accountKey(acc.AccountID), b, 0)
	}

	for _, m := range writes.Movements {
		b, err := json.Marshal(m)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to encode movement", err)
		}
		pipe.Set(ctx, movementKey(m.MovementID), b, 0)
		pipe.ZAdd(ctx, accountMovementsKey(m.AccountID), redis.Z{Score: float64(m.CreatedAt.UnixMicro()), Member: m.MovementID})
		pipe.SAdd(ctx, correlationKey(m.CorrelationKey), m.MovementID)
		pipe.Set(ctx, pairKey(m.CorrelationKey, m.AccountID), m.MovementID, 0)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	raw, err := s.client.Get(ctx, accountKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apierror.NewAccountError(apierror.ErrAccountNotFound, id, fmt.Sprintf("Account with ID '%s' not found", id))
	}
	if err != nil {
		return nil, mapError(err, "Failed to retrieve account")
	}
	acc, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	ids, err := s.client.SMembers(ctx, accountsIndexKey()).Result()
	if err != nil {
		return nil, mapError(err, "Failed to retrieve accounts")
	}
	snapshot, err := s.ReadForUpdate(ctx, ids...)
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(snapshot.Accounts))
	for _, acc := range snapshot.Accounts {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name != accounts[j].Name {
			return accounts[i].Name < accounts[j].Name
		}
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

func (s *Store) loadMovements(ctx context.Context, ids []string) ([]model.Movement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = movementKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapError(err, "Failed to retrieve movements")
	}

	movements := make([]model.Movement, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m model.Movement
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to decode movement", err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// GetMovements walks the account's sorted set from the cursor downwards, filtering
// by kind until the page is full or the set is exhausted.
func (s *Store) GetMovements(ctx context.Context, accountID string, query database.MovementQuery) ([]model.Movement, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = model.DefaultMovementLimit
	}
	upper := "+inf"
	if query.Before != nil {
		upper = strconv.FormatInt(query.Before.CreatedAt.UnixMicro(), 10)
	}

	result := []model.Movement{}
	for offset := int64(0); len(result) < limit; offset += scanBatch {
		ids, err := s.client.ZRevRangeByScore(ctx, accountMovementsKey(accountID), &redis.ZRangeBy{
			Min:    "-inf",
			Max:    upper,
			Offset: offset,
			Count:  scanBatch,
		}).Result()
		if err != nil {
			return nil, mapError(err, "Failed to retrieve movements")
		}

		batch, err := s.loadMovements(ctx, ids)
		if err != nil {
			return nil, err
		}
		model.SortMovements(batch)
		for _, m := range batch {
			if !query.Matches(m) {
				continue
			}
			result = append(result, m)
			if len(result) == limit {
				break
			}
		}
		if len(ids) < scanBatch {
			break
		}
	}
	return result, nil
}

func (s *Store) GetMovementsByCorrelation(ctx context.Context, key string) ([]model.Movement, error) {
	ids, err := s.client.SMembers(ctx, correlationKey(key)).Result()
	if err != nil {
		return nil, mapError(err, "Failed to retrieve movements by correlation key")
	}
	movements, err := s.loadMovements(ctx, ids)
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []model.Movement{}
	}
	model.SortMovements(movements)
	return movements, nil
}

func (s *Store) SumMovements(ctx context.Context, accountID string) (database.MovementTotals, error) {
	var totals database.MovementTotals
	for start := int64(0); ; start += scanBatch {
		ids, err := s.client.ZRange(ctx, accountMovementsKey(accountID), start, start+scanBatch-1).Result()
		if err != nil {
			return database.MovementTotals{}, mapError(err, "Failed to sum movements")
		}
		movements, err := s.loadMovements(ctx, ids)
		if err != nil {
			return database.MovementTotals{}, err
		}
		for _, m := range movements {
			totals.Add(m)
		}
		if len(ids) < scanBatch {
			return totals, nil
		}
	}
}

// Close is a no-op; the client belongs to whoever built the store.
func (s *Store) Close() error {
	return nil
}
