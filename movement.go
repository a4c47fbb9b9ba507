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

// MovementRequest adds (Deposit) or removes (Withdraw) Amount minor units on one account.
type MovementRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	Memo           string `json:"memo"`
	CorrelationKey string `json:"correlation_key"`
}

// MovementResult describes a committed single-account movement.
// Balance is the account balance right after the movement, or the current one on replay.
type MovementResult struct {
	MovementID     string `json:"movement_id"`
	CorrelationKey string `json:"correlation_key"`
	Balance        int64  `json:"balance"`
	Replayed       bool   `json:"replayed"`
}

// Deposit credits an account from outside the ledger.
func (l *Ledger) Deposit(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return l.singleMovement(ctx, "Deposit", model.KindDeposit, req)
}

// Withdraw debits an account to outside the ledger. The balance must cover the amount.
func (l *Ledger) Withdraw(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return l.singleMovement(ctx, "Withdraw", model.KindWithdrawal, req)
}

func (l *Ledger) singleMovement(ctx context.Context, name string, kind model.MovementKind, req MovementRequest) (*MovementResult, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if req.Amount <= 0 {
		err := apierror.NewAccountError(apierror.ErrInvalidAmount, req.AccountID, "amount must be greater than zero")
		span.RecordError(err)
		return nil, err
	}
	if strings.TrimSpace(req.AccountID) == "" {
		err := apierror.NewAPIError(apierror.ErrInvalidInput, "account id is required", nil)
		span.RecordError(err)
		return nil, err
	}

	supplied := req.CorrelationKey != ""
	if !supplied {
		req.CorrelationKey = model.GenerateUUIDWithSuffix("cor")
	}
	span.SetAttributes(
		attribute.String("ledger.account_id", req.AccountID),
		attribute.String("ledger.kind", string(kind)),
		attribute.Int64("ledger.amount", req.Amount),
		attribute.String("ledger.correlation_key", req.CorrelationKey),
	)

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if supplied {
		result, err := l.existingMovement(ctx, kind, req)
		if err != nil {
			return nil, logAndRecordError(span, "movement replay lookup failed", err)
		}
		if result != nil {
			span.AddEvent("replayed")
			return result, nil
		}
	}

	snapshot, err := l.datasource.ReadForUpdate(ctx, req.AccountID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read account", storeError(err))
	}
	account, ok := snapshot.Account(req.AccountID)
	if !ok {
		err := apierror.NewAccountError(apierror.ErrAccountNotFound, req.AccountID, fmt.Sprintf("Account with ID '%s' not found", req.AccountID))
		span.RecordError(err)
		return nil, err
	}

	now := l.timestamp()
	movement := model.Movement{
		MovementID:     model.GenerateMovementID(),
		AccountID:      account.AccountID,
		Kind:           kind,
		Amount:         req.Amount,
		Memo:           req.Memo,
		CorrelationKey: req.CorrelationKey,
		CreatedAt:      now,
	}
	if kind == model.KindWithdrawal {
		movement.Amount = -req.Amount
	}
	if movement.Memo == "" {
		movement.Memo = defaultMemo(kind)
	}

	if err := applyMovement(&account, movement, now); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.AddEvent("committing")
	err = l.datasource.Commit(ctx, database.WriteSet{
		UpdatedAccounts: []model.Account{account},
		Movements:       []model.Movement{movement},
	})
	if err != nil {
		err = storeError(err)
		if apierror.Is(err, apierror.ErrDuplicateCorrelation) {
			if existing, lookupErr := l.existingMovement(ctx, kind, req); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, logAndRecordError(span, fmt.Sprintf("%s commit failed", kind), err)
	}

	logrus.WithFields(logrus.Fields{
		"account_id":      account.AccountID,
		"kind":            kind,
		"amount":          req.Amount,
		"correlation_key": req.CorrelationKey,
	}).Info("movement committed")
	return &MovementResult{
		MovementID:     movement.MovementID,
		CorrelationKey: req.CorrelationKey,
		Balance:        account.Balance,
	}, nil
}

// ReverseMovement undoes a deposit with a withdrawal of the same amount, or a
// withdrawal with a deposit, under ReversalKey(correlationKey). Undoing a deposit
// still requires the balance to cover it. Repeating the call replays the first reversal.
func (l *Ledger) ReverseMovement(ctx context.Context, correlationKey, memo string) (*MovementResult, error) {
	ctx, span := tracer.Start(ctx, "ReverseMovement")
	defer span.End()

	lookupCtx, cancel := l.withTimeout(ctx)
	movements, err := l.datasource.GetMovementsByCorrelation(lookupCtx, correlationKey)
	cancel()
	if err != nil {
		return nil, logAndRecordError(span, "reverse lookup failed", storeError(err))
	}

	if len(movements) != 1 || (movements[0].Kind != model.KindDeposit && movements[0].Kind != model.KindWithdrawal) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Deposit or withdrawal with correlation key '%s' not found", correlationKey), nil)
	}
	original := movements[0]
	if memo == "" {
		memo = fmt.Sprintf("Reverso de %s", correlationKey)
	}

	req := MovementRequest{
		AccountID:      original.AccountID,
		Amount:         original.Amount,
		Memo:           memo,
		CorrelationKey: ReversalKey(correlationKey),
	}
	if original.Kind == model.KindDeposit {
		return l.singleMovement(ctx, "Withdraw", model.KindWithdrawal, req)
	}
	req.Amount = -original.Amount
	return l.singleMovement(ctx, "Deposit", model.KindDeposit, req)
}

func defaultMemo(kind model.MovementKind) string {
	switch kind {
	case model.KindDeposit:
		return "Depósito"
	case model.KindWithdrawal:
		return "Retiro"
	}
	return ""
}

// existingMovement mirrors existingTransfer for single-account movements.
func (l *Ledger) existingMovement(ctx context.Context, kind model.MovementKind, req MovementRequest) (*MovementResult, error) {
	movements, err := l.datasource.GetMovementsByCorrelation(ctx, req.CorrelationKey)
	if err != nil {
		return nil, storeError(err)
	}
	if len(movements) == 0 {
		return nil, nil
	}

	m := movements[0]
	want := req.Amount
	if kind == model.KindWithdrawal {
		want = -want
	}
	if len(movements) != 1 || m.Kind != kind || m.AccountID != req.AccountID || m.Amount != want {
		return nil, apierror.NewAccountError(apierror.ErrDuplicateCorrelation, req.AccountID,
			fmt.Sprintf("correlation key '%s' already belongs to a different operation", req.CorrelationKey))
	}

	account, err := l.datasource.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, storeError(err)
	}
	return &MovementResult{
		MovementID:     m.MovementID,
		CorrelationKey: req.CorrelationKey,
		Balance:        account.Balance,
		Replayed:       true,
	}, nil
}
