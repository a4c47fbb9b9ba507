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

package model

import (
	"regexp"
	"strings"

	"github.com/chronosfinance/ledger"
	"github.com/chronosfinance/ledger/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

var currencyRule = validation.Match(currencyPattern).Error("currency must be a three letter code")

// amountRule only checks that the string is a number the configured precision can hold.
// Sign rules belong to the ledger so callers get INVALID_AMOUNT with the account id.
func amountRule(precision int32) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := model.ParseAmount(s, precision)
		return err
	}
}

func (a *CreateAccount) ValidateCreateAccount(precision int32) error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&a.AccountID, validation.Length(0, 64)),
		validation.Field(&a.Currency, currencyRule),
		validation.Field(&a.OpeningBalance, validation.By(amountRule(precision))),
	)
}

func (t *CreateTransfer) ValidateCreateTransfer(precision int32) error {
	return validation.ValidateStruct(t,
		validation.Field(&t.OriginID, validation.Required),
		validation.Field(&t.DestinationID, validation.Required),
		validation.Field(&t.Amount, validation.Required, validation.By(amountRule(precision))),
		validation.Field(&t.Memo, validation.Length(0, 255)),
	)
}

func (m *CreateMovement) ValidateCreateMovement(precision int32) error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Amount, validation.Required, validation.By(amountRule(precision))),
		validation.Field(&m.Memo, validation.Length(0, 255)),
	)
}

func (a *CreateAccount) ToCreateAccountRequest(precision int32) (ledger.CreateAccountRequest, error) {
	req := ledger.CreateAccountRequest{
		AccountID: a.AccountID,
		Name:      a.Name,
		Currency:  strings.ToUpper(a.Currency),
		MetaData:  a.MetaData,
	}
	if a.OpeningBalance != "" {
		opening, err := model.ParseAmount(a.OpeningBalance, precision)
		if err != nil {
			return req, err
		}
		req.OpeningBalance = opening
	}
	return req, nil
}

func (t *CreateTransfer) ToTransferRequest(precision int32) (ledger.TransferRequest, error) {
	amount, err := model.ParseAmount(t.Amount, precision)
	if err != nil {
		return ledger.TransferRequest{}, err
	}
	return ledger.TransferRequest{
		OriginID:       t.OriginID,
		DestinationID:  t.DestinationID,
		Amount:         amount,
		Memo:           t.Memo,
		CorrelationKey: t.CorrelationKey,
	}, nil
}

func (m *CreateMovement) ToMovementRequest(accountID string, precision int32) (ledger.MovementRequest, error) {
	amount, err := model.ParseAmount(m.Amount, precision)
	if err != nil {
		return ledger.MovementRequest{}, err
	}
	return ledger.MovementRequest{
		AccountID:      accountID,
		Amount:         amount,
		Memo:           m.Memo,
		CorrelationKey: m.CorrelationKey,
	}, nil
}

func ToAccountResponse(acc model.Account, precision int32) AccountResponse {
	return AccountResponse{
		Account:              acc,
		BalanceDecimal:       model.FormatAmount(acc.Balance, precision),
		InboundTotalDecimal:  model.FormatAmount(acc.InboundTotal, precision),
		OutboundTotalDecimal: model.FormatAmount(acc.OutboundTotal, precision),
	}
}
