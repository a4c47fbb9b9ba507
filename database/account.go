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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
)

const accountColumns = `account_id, name, currency, balance, inbound_total, outbound_total, disabled, version, created_at, updated_at, meta_data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		account  model.Account
		metaData sql.NullString
	)
	err := row.Scan(
		&account.AccountID, &account.Name, &account.Currency, &account.Balance,
		&account.InboundTotal, &account.OutboundTotal, &account.Disabled, &account.Version,
		&account.CreatedAt, &account.UpdatedAt, &metaData,
	)
	if err != nil {
		return model.Account{}, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	if metaData.Valid && metaData.String != "" && metaData.String != "null" {
		if err := json.Unmarshal([]byte(metaData.String), &account.MetaData); err != nil {
			return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return account, nil
}

func marshalMetaData(metaData map[string]interface{}) (sql.NullString, error) {
	if len(metaData) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(metaData)
	if err != nil {
		return sql.NullString{}, apierror.NewAPIError(apierror.ErrInvalidInput, "Failed to marshal metadata", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (d *Datasource) getAccount(ctx context.Context, q queryer, id string) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAccountError(apierror.ErrAccountNotFound, id, fmt.Sprintf("Account with ID '%s' not found", id))
		}
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, mapReadError(err, "Failed to retrieve account")
	}
	return &account, nil
}

// GetAccount retrieves an account by its ID.
func (d *Datasource) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return d.getAccount(ctx, d.Conn, id)
}

// ListAccounts retrieves every account ordered by name, then id.
func (d *Datasource) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := d.Conn.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY name, account_id`)
	if err != nil {
		return nil, mapReadError(err, "Failed to retrieve accounts")
	}
	defer func() {
		_ = rows.Close()
	}()

	accounts := []model.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account data", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, mapReadError(err, "Error occurred while iterating over accounts")
	}
	return accounts, nil
}

// ReadForUpdate reads the given accounts with their current versions.
// Isolation is enforced at Commit by the version predicate, so the read takes no row locks.
func (d *Datasource) ReadForUpdate(ctx context.Context, ids ...string) (*Snapshot, error) {
	snapshot := &Snapshot{ReadAt: time.Now().UTC(), Accounts: make(map[string]model.Account, len(ids))}
	seen := make(map[string]struct{}, len(ids))
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	for _, id := range sorted {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		account, err := d.getAccount(ctx, d.Conn, id)
		if err != nil {
			if apierror.Is(err, apierror.ErrAccountNotFound) {
				continue
			}
			return nil, err
		}
		snapshot.Accounts[id] = *account
	}
	return snapshot, nil
}
