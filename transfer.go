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
	"strings"
	"time"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// TransferRequest moves Amount minor units from OriginID to DestinationID.
// CorrelationKey makes the request idempotent; one is generated when empty.
type TransferRequest struct {
	OriginID       string `json:"origin_id"`
	DestinationID  string `json:"destination_id"`
	Amount         int64  `json:"amount"`
	Memo           string `json:"memo"`
	CorrelationKey string `json:"correlation_key"`
}

// TransferResult identifies the committed pair of movements.
// Replayed is true when the pair already existed under the correlation key.
type TransferResult struct {
	OutMovementID  string `json:"out_movement_id"`
	InMovementID   string `json:"in_movement_id"`
	CorrelationKey string `json:"correlation_key"`
	Replayed       bool   `json:"replayed"`
}

func validateTransfer(req TransferRequest) error {
	if req.Amount <= 0 {
		return apierror.NewAccountError(apierror.ErrInvalidAmount, req.OriginID, "amount must be greater than zero")
	}
	if strings.TrimSpace(req.OriginID) == "" || strings.TrimSpace(req.DestinationID) == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "origin and destination are required", nil)
	}
	if req.OriginID == req.DestinationID {
		return apierror.NewAccountError(apierror.ErrSameAccount, req.OriginID, "origin and destination must be different accounts")
	}
	return nil
}

// Transfer debits origin and credits destination in one commit.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "Transfer")
	defer span.End()

	if err := validateTransfer(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	supplied := req.CorrelationKey != ""
	if !supplied {
		req.CorrelationKey = model.GenerateUUIDWithSuffix("cor")
	}
	span.SetAttributes(
		attribute.String("ledger.origin_id", req.OriginID),
		attribute.String("ledger.destination_id", req.DestinationID),
		attribute.Int64("ledger.amount", req.Amount),
		attribute.String("ledger.correlation_key", req.CorrelationKey),
	)

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if supplied {
		result, err := l.existingTransfer(ctx, req)
		if err != nil {
			return nil, logAndRecordError(span, "transfer replay lookup failed", err)
		}
		if result != nil {
			span.AddEvent("replayed")
			return result, nil
		}
	}

	snapshot, err := l.datasource.ReadForUpdate(ctx, req.OriginID, req.DestinationID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to read transfer accounts", storeError(err))
	}

	writes, result, err := l.buildTransfer(snapshot, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.AddEvent("committing")
	if err := l.datasource.Commit(ctx, *writes); err != nil {
		err = storeError(err)
		if apierror.Is(err, apierror.ErrDuplicateCorrelation) {
			// the key was committed concurrently; hand back that pair when it is the same transfer
			if existing, lookupErr := l.existingTransfer(ctx, req); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, logAndRecordError(span, "transfer commit failed", err)
	}

	logrus.WithFields(logrus.Fields{
		"origin_id":       req.OriginID,
		"destination_id":  req.DestinationID,
		"amount":          req.Amount,
		"correlation_key": req.CorrelationKey,
	}).Info("transfer committed")
	return result, nil
}

func (l *Ledger) buildTransfer(snapshot *database.Snapshot, req TransferRequest) (*database.WriteSet, *TransferResult, error) {
	origin, ok := snapshot.Account(req.OriginID)
	if !ok {
		return nil, nil, apierror.NewAccountError(apierror.ErrAccountNotFound, req.OriginID, fmt.Sprintf("Account with ID '%s' not found", req.OriginID))
	}
	destination, ok := snapshot.Account(req.DestinationID)
	if !ok {
		return nil, nil, apierror.NewAccountError(apierror.ErrAccountNotFound, req.DestinationID, fmt.Sprintf("Account with ID '%s' not found", req.DestinationID))
	}
	for _, acc := range []model.Account{origin, destination} {
		if acc.Disabled {
			return nil, nil, apierror.NewAccountError(apierror.ErrAccountDisabled, acc.AccountID, fmt.Sprintf("Account with ID '%s' is disabled", acc.AccountID))
		}
	}
	if origin.Balance < req.Amount {
		return nil, nil, apierror.NewAccountError(apierror.ErrInsufficientFunds, origin.AccountID, fmt.Sprintf("Account with ID '%s' has insufficient funds", origin.AccountID))
	}

	now := l.timestamp()
	outMemo, inMemo := req.Memo, req.Memo
	if strings.TrimSpace(req.Memo) == "" {
		outMemo = fmt.Sprintf("Transferencia a %s", destination.Name)
		inMemo = fmt.Sprintf("Transferencia desde %s", origin.Name)
	}

	out := model.Movement{
		MovementID:     model.GenerateMovementID(),
		AccountID:      origin.AccountID,
		Kind:           model.KindTransferOut,
		Amount:         -req.Amount,
		CounterpartyID: destination.AccountID,
		Memo:           outMemo,
		CorrelationKey: req.CorrelationKey,
		CreatedAt:      now,
	}
	in := model.Movement{
		MovementID:     model.GenerateMovementID(),
		AccountID:      destination.AccountID,
		Kind:           model.KindTransferIn,
		Amount:         req.Amount,
		CounterpartyID: origin.AccountID,
		Memo:           inMemo,
		CorrelationKey: req.CorrelationKey,
		CreatedAt:      now,
	}

	if err := applyMovement(&origin, out, now); err != nil {
		return nil, nil, err
	}
	if err := applyMovement(&destination, in, now); err != nil {
		return nil, nil, err
	}

	writes := &database.WriteSet{
		UpdatedAccounts: []model.Account{origin, destination},
		Movements:       []model.Movement{out, in},
	}
	return writes, &TransferResult{
		OutMovementID:  out.MovementID,
		InMovementID:   in.MovementID,
		CorrelationKey: req.CorrelationKey,
	}, nil
}

// applyMovement folds m into acc and translates projection failures into coded errors.
func applyMovement(acc *model.Account, m model.Movement, at time.Time) error {
	err := acc.Apply(m, at)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrInsufficientFunds):
		return apierror.NewAccountError(apierror.ErrInsufficientFunds, acc.AccountID, fmt.Sprintf("Account with ID '%s' has insufficient funds", acc.AccountID))
	case errors.Is(err, model.ErrAccountDisabled):
		return apierror.NewAccountError(apierror.ErrAccountDisabled, acc.AccountID, fmt.Sprintf("Account with ID '%s' is disabled", acc.AccountID))
	case errors.Is(err, model.ErrAmountOverflow):
		return apierror.NewAccountError(apierror.ErrInvalidAmount, acc.AccountID, "amount would overflow the account balance")
	default:
		return apierror.NewAccountError(apierror.ErrInternalServer, acc.AccountID, err.Error())
	}
}

// existingTransfer returns the committed pair for req.CorrelationKey, nil when the key is unused,
// or DUPLICATE_CORRELATION when the key belongs to a different operation.
func (l *Ledger) existingTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	movements, err := l.datasource.GetMovementsByCorrelation(ctx, req.CorrelationKey)
	if err != nil {
		return nil, storeError(err)
	}
	if len(movements) == 0 {
		return nil, nil
	}

	out, in, ok := transferPair(movements)
	if !ok || out.AccountID != req.OriginID || in.AccountID != req.DestinationID || in.Amount != req.Amount {
		return nil, apierror.NewAccountError(apierror.ErrDuplicateCorrelation, req.OriginID,
			fmt.Sprintf("correlation key '%s' already belongs to a different operation", req.CorrelationKey))
	}
	return &TransferResult{
		OutMovementID:  out.MovementID,
		InMovementID:   in.MovementID,
		CorrelationKey: req.CorrelationKey,
		Replayed:       true,
	}, nil
}

// transferPair picks the two sides of a transfer out of a correlation lookup.
func transferPair(movements []model.Movement) (out, in model.Movement, ok bool) {
	if len(movements) != 2 {
		return out, in, false
	}
	var haveOut, haveIn bool
	for _, m := range movements {
		switch m.Kind {
		case model.KindTransferOut:
			out, haveOut = m, true
		case model.KindTransferIn:
			in, haveIn = m, true
		}
	}
	return out, in, haveOut && haveIn && -out.Amount == in.Amount
}

// ReverseTransfer sends the amount of a committed transfer back to its origin.
// The reversal is keyed rev_<key>, so repeating it replays the first reversal.
func (l *Ledger) ReverseTransfer(ctx context.Context, correlationKey, memo string) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "ReverseTransfer")
	defer span.End()

	lookupCtx, cancel := l.withTimeout(ctx)
	movements, err := l.datasource.GetMovementsByCorrelation(lookupCtx, correlationKey)
	cancel()
	if err != nil {
		return nil, logAndRecordError(span, "reverse lookup failed", storeError(err))
	}

	out, in, ok := transferPair(movements)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer with correlation key '%s' not found", correlationKey), nil)
	}
	if memo == "" {
		memo = fmt.Sprintf("Reverso de %s", correlationKey)
	}

	return l.Transfer(ctx, TransferRequest{
		OriginID:       in.AccountID,
		DestinationID:  out.AccountID,
		Amount:         in.Amount,
		Memo:           memo,
		CorrelationKey: ReversalKey(correlationKey),
	})
}

// ReversalKey is the correlation key used for the reversal of key.
func ReversalKey(key string) string {
	return "rev_" + key
}
