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
	"fmt"

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
)

// Commit applies the write set in one SQL transaction.
// Account updates use an optimistic version predicate; a row that moved on since the
// snapshot matches nothing and the whole transaction is rolled back with CONFLICT.
func (d *Datasource) Commit(ctx context.Context, writes WriteSet) error {
	if writes.Empty() {
		return nil
	}

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return mapWriteError(err, "Failed to begin transaction")
	}

	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, account := range writes.NewAccounts {
		if err := insertAccount(ctx, tx, account); err != nil {
			return mapWriteError(err, "Failed to create account")
		}
	}

	for _, account := range writes.UpdatedAccounts {
		if err := updateAccount(ctx, tx, account); err != nil {
			return mapWriteError(err, "Failed to update account")
		}
	}

	for _, movement := range writes.Movements {
		if err := insertMovement(ctx, tx, movement); err != nil {
			return mapWriteError(err, "Failed to record movement")
		}
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err, "Failed to commit transaction")
	}
	return nil
}

func insertAccount(ctx context.Context, q queryer, account model.Account) error {
	metaData, err := marshalMetaData(account.MetaData)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, account.AccountID, account.Name, account.Currency, account.Balance, account.InboundTotal, account.OutboundTotal,
		account.Disabled, account.Version, account.CreatedAt, account.UpdatedAt, metaData)
	return err
}

// updateAccount writes the projection fields of account if its version is still the one it was read at.
func updateAccount(ctx context.Context, q queryer, account model.Account) error {
	metaData, err := marshalMetaData(account.MetaData)
	if err != nil {
		return err
	}

	// sqlite binds $N in order of first appearance, so placeholders are numbered that way
	result, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET name = $1, currency = $2, balance = $3, inbound_total = $4, outbound_total = $5, disabled = $6, updated_at = $7, meta_data = $8, version = version + 1
		WHERE account_id = $9 AND version = $10
	`, account.Name, account.Currency, account.Balance, account.InboundTotal, account.OutboundTotal,
		account.Disabled, account.UpdatedAt, metaData, account.AccountID, account.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apierror.NewAccountError(apierror.ErrConflict, account.AccountID, fmt.Sprintf("Optimistic locking failure: account with ID '%s' may have been updated by another transaction", account.AccountID))
	}
	return nil
}
