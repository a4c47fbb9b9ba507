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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/chronosfinance/ledger/cache"
	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
)

const totalBalanceCacheKey = "ledger:total_balance"

// MovementPage is one page of an account's history, newest first.
// NextCursor is empty on the last page.
type MovementPage struct {
	Movements  []model.Movement `json:"movements"`
	NextCursor string           `json:"next_cursor"`
}

// TotalBalance is the sum of all account balances at ComputedAt.
// Total adds every currency together the way the dashboard shows it; ByCurrency splits it.
type TotalBalance struct {
	Total        int64            `json:"total"`
	ByCurrency   map[string]int64 `json:"by_currency"`
	AccountCount int              `json:"account_count"`
	ComputedAt   time.Time        `json:"computed_at"`
}

// GetAccount returns the current projection of one account.
func (l *Ledger) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "GetAccount")
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "account id is required", nil)
	}
	account, err := l.datasource.GetAccount(ctx, id)
	if err != nil {
		err = storeError(err)
		span.RecordError(err)
		return nil, err
	}
	return account, nil
}

// ListAccounts returns every account sorted by name.
func (l *Ledger) ListAccounts(ctx context.Context) ([]model.Account, error) {
	ctx, span := tracer.Start(ctx, "ListAccounts")
	defer span.End()

	accounts, err := l.datasource.ListAccounts(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to list accounts", storeError(err))
	}
	return accounts, nil
}

func toQuery(filter model.MovementFilter) (database.MovementQuery, error) {
	for _, k := range filter.Kinds {
		if !k.Valid() {
			return database.MovementQuery{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown movement kind '%s'", k), nil)
		}
	}
	cursor, err := model.DecodeCursor(filter.Cursor)
	if err != nil {
		return database.MovementQuery{}, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid cursor", err)
	}
	return database.MovementQuery{
		Kinds:  filter.Kinds,
		Before: cursor,
		Limit:  filter.EffectiveLimit(),
	}, nil
}

// GetMovements returns one page of an account's movements. An unknown account
// yields ACCOUNT_NOT_FOUND rather than an empty page.
func (l *Ledger) GetMovements(ctx context.Context, accountID string, filter model.MovementFilter) (*MovementPage, error) {
	ctx, span := tracer.Start(ctx, "GetMovements")
	defer span.End()

	query, err := toQuery(filter)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := l.datasource.GetAccount(ctx, accountID); err != nil {
		err = storeError(err)
		span.RecordError(err)
		return nil, err
	}

	limit := query.Limit
	query.Limit = limit + 1
	movements, err := l.datasource.GetMovements(ctx, accountID, query)
	if err != nil {
		return nil, logAndRecordError(span, "failed to get movements", storeError(err))
	}

	page := &MovementPage{Movements: movements}
	if len(movements) > limit {
		page.Movements = movements[:limit]
		page.NextCursor = page.Movements[limit-1].Cursor().Encode()
	}
	if page.Movements == nil {
		page.Movements = []model.Movement{}
	}
	return page, nil
}

// Movements walks an account's whole history page by page, newest first.
// The sequence stops at the first error, which is yielded with a zero movement.
func (l *Ledger) Movements(ctx context.Context, accountID string, filter model.MovementFilter) iter.Seq2[model.Movement, error] {
	return func(yield func(model.Movement, error) bool) {
		f := filter
		for {
			page, err := l.GetMovements(ctx, accountID, f)
			if err != nil {
				yield(model.Movement{}, err)
				return
			}
			for _, m := range page.Movements {
				if !yield(m, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			f.Cursor = page.NextCursor
		}
	}
}

// FindByCorrelation returns the movements committed under key: none, one, or a transfer pair.
func (l *Ledger) FindByCorrelation(ctx context.Context, key string) ([]model.Movement, error) {
	ctx, span := tracer.Start(ctx, "FindByCorrelation")
	defer span.End()

	if key == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "correlation key is required", nil)
	}
	movements, err := l.datasource.GetMovementsByCorrelation(ctx, key)
	if err != nil {
		return nil, logAndRecordError(span, "failed to find movements by correlation", storeError(err))
	}
	return movements, nil
}

// GetTotalBalance sums every balance. With a cache configured the figure may be
// up to the cache TTL old.
func (l *Ledger) GetTotalBalance(ctx context.Context) (*TotalBalance, error) {
	ctx, span := tracer.Start(ctx, "GetTotalBalance")
	defer span.End()

	if l.cache != nil {
		var cached TotalBalance
		err := l.cache.Get(ctx, totalBalanceCacheKey, &cached)
		if err == nil {
			span.AddEvent("cache hit")
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logrus.Warnf("total balance cache read failed: %v", err)
		}
	}

	accounts, err := l.datasource.ListAccounts(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to sum balances", storeError(err))
	}
	total := &TotalBalance{
		ByCurrency:   make(map[string]int64),
		AccountCount: len(accounts),
		ComputedAt:   l.timestamp(),
	}
	for _, acc := range accounts {
		total.Total += acc.Balance
		total.ByCurrency[acc.Currency] += acc.Balance
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, totalBalanceCacheKey, total, l.totalTTL); err != nil {
			logrus.Warnf("total balance cache write failed: %v", err)
		}
	}
	return total, nil
}
