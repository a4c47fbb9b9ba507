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
	"fmt"
	"strings"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultCurrency = "MXN"
	openingMemo     = "Saldo inicial"
)

// CreateAccountRequest describes a new banco. AccountID is generated when empty.
type CreateAccountRequest struct {
	AccountID      string                 `json:"account_id"`
	Name           string                 `json:"name"`
	Currency       string                 `json:"currency"`
	OpeningBalance int64                  `json:"opening_balance"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

// OpeningKey is the correlation key of the opening movement of accountID.
func OpeningKey(accountID string) string {
	return "open_" + accountID
}

// CreateAccount writes a new account. A non-zero opening balance is recorded as an
// opening movement so the balance can always be rebuilt from the log.
func (l *Ledger) CreateAccount(ctx context.Context, req CreateAccountRequest) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "CreateAccount")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		err := apierror.NewAccountError(apierror.ErrInvalidInput, req.AccountID, "name is required")
		span.RecordError(err)
		return nil, err
	}
	if req.OpeningBalance < 0 {
		err := apierror.NewAccountError(apierror.ErrInvalidAmount, req.AccountID, "opening balance cannot be negative")
		span.RecordError(err)
		return nil, err
	}
	if req.AccountID == "" {
		req.AccountID = model.GenerateUUIDWithSuffix("bnk")
	}
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	span.SetAttributes(attribute.String("ledger.account_id", req.AccountID))

	now := l.timestamp()
	account := model.Account{
		AccountID: req.AccountID,
		Name:      req.Name,
		Currency:  strings.ToUpper(req.Currency),
		Balance:   req.OpeningBalance,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		MetaData:  req.MetaData,
	}
	writes := database.WriteSet{NewAccounts: []model.Account{account}}
	if req.OpeningBalance > 0 {
		writes.Movements = append(writes.Movements, model.Movement{
			MovementID:     model.GenerateMovementID(),
			AccountID:      account.AccountID,
			Kind:           model.KindOpening,
			Amount:         req.OpeningBalance,
			Memo:           openingMemo,
			CorrelationKey: OpeningKey(account.AccountID),
			CreatedAt:      now,
		})
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.datasource.Commit(ctx, writes); err != nil {
		return nil, logAndRecordError(span, "failed to create account", storeError(err))
	}

	logrus.Infof("account %s (%s) created", account.AccountID, account.Name)
	return &account, nil
}

// DisableAccount soft-disables an account. It stays readable but rejects new movements.
// Disabling an already disabled account is a no-op.
func (l *Ledger) DisableAccount(ctx context.Context, accountID string) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "DisableAccount")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.account_id", accountID))

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	snapshot, err := l.datasource.ReadForUpdate(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read account", storeError(err))
	}
	account, ok := snapshot.Account(accountID)
	if !ok {
		err := apierror.NewAccountError(apierror.ErrAccountNotFound, accountID, fmt.Sprintf("Account with ID '%s' not found", accountID))
		span.RecordError(err)
		return nil, err
	}
	if account.Disabled {
		return &account, nil
	}

	account.Disabled = true
	account.UpdatedAt = l.timestamp()
	if err := l.datasource.Commit(ctx, database.WriteSet{UpdatedAccounts: []model.Account{account}}); err != nil {
		return nil, logAndRecordError(span, "failed to disable account", storeError(err))
	}

	account.Version++
	logrus.Infof("account %s disabled", accountID)
	return &account, nil
}
