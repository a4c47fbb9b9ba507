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
	"strings"

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
)

const movementColumns = `movement_id, account_id, kind, amount, counterparty_id, memo, correlation_key, created_at`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanMovements(rows *sql.Rows) ([]model.Movement, error) {
	defer func() {
		_ = rows.Close()
	}()

	movements := []model.Movement{}
	for rows.Next() {
		var m model.Movement
		var kind string
		if err := rows.Scan(&m.MovementID, &m.AccountID, &kind, &m.Amount, &m.CounterpartyID, &m.Memo, &m.CorrelationKey, &m.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan movement data", err)
		}
		m.Kind = model.MovementKind(kind)
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapReadError(err, "Error occurred while iterating over movements")
	}
	return movements, nil
}

// GetMovements retrieves one page of an account's movements, newest first.
// Placeholders are numbered in order of first use so the same query runs on sqlite.
func (d *Datasource) GetMovements(ctx context.Context, accountID string, query MovementQuery) ([]model.Movement, error) {
	var (
		sb   strings.Builder
		args = []any{accountID}
	)
	sb.WriteString(`SELECT ` + movementColumns + ` FROM movements WHERE account_id = $1`)

	if query.Before != nil {
		args = append(args, query.Before.CreatedAt, query.Before.MovementID)
		fmt.Fprintf(&sb, ` AND (created_at < $%d OR (created_at = $%d AND movement_id < $%d))`, len(args)-1, len(args)-1, len(args))
	}

	if len(query.Kinds) > 0 {
		placeholders := make([]string, 0, len(query.Kinds))
		for _, kind := range query.Kinds {
			args = append(args, string(kind))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		fmt.Fprintf(&sb, ` AND kind IN (%s)`, strings.Join(placeholders, ", "))
	}

	limit := query.Limit
	if limit <= 0 {
		limit = model.DefaultMovementLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, ` ORDER BY created_at DESC, movement_id DESC LIMIT $%d`, len(args))

	rows, err := d.Conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapReadError(err, "Failed to retrieve movements")
	}
	return scanMovements(rows)
}

// GetMovementsByCorrelation retrieves every movement recorded under key.
func (d *Datasource) GetMovementsByCorrelation(ctx context.Context, key string) ([]model.Movement, error) {
	rows, err := d.Conn.QueryContext(ctx, `SELECT `+movementColumns+` FROM movements WHERE correlation_key = $1 ORDER BY created_at DESC, movement_id DESC`, key)
	if err != nil {
		return nil, mapReadError(err, "Failed to retrieve movements by correlation key")
	}
	return scanMovements(rows)
}

// SumMovements reconstructs an account's balance and totals from its movement log.
func (d *Datasource) SumMovements(ctx context.Context, accountID string) (MovementTotals, error) {
	var totals MovementTotals
	err := d.Conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(CASE WHEN kind IN ('transfer_in', 'deposit') THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind IN ('transfer_out', 'withdrawal') THEN -amount ELSE 0 END), 0),
			COUNT(*)
		FROM movements
		WHERE account_id = $1
	`, accountID).Scan(&totals.Net, &totals.Inbound, &totals.Outbound, &totals.Count)
	if err != nil {
		return MovementTotals{}, mapReadError(err, "Failed to sum movements")
	}
	return totals, nil
}

func insertMovement(ctx context.Context, q queryer, m model.Movement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.MovementID, m.AccountID, string(m.Kind), m.Amount, m.CounterpartyID, m.Memo, m.CorrelationKey, m.CreatedAt)
	return err
}
