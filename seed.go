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

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
)

// DefaultAccounts are the seven bancos every installation starts with.
func DefaultAccounts() []CreateAccountRequest {
	return []CreateAccountRequest{
		{AccountID: "boveda_monte", Name: "Bóveda Monte", Currency: "MXN"},
		{AccountID: "utilidades", Name: "Utilidades", Currency: "MXN"},
		{AccountID: "fletes", Name: "Fletes", Currency: "MXN"},
		{AccountID: "azteca", Name: "Azteca", Currency: "MXN"},
		{AccountID: "leftie", Name: "Leftie", Currency: "MXN"},
		{AccountID: "profit", Name: "Profit", Currency: "MXN"},
		{AccountID: "boveda_usa", Name: "Bóveda USA", Currency: "USD"},
	}
}

// SeedAccounts creates the given accounts, skipping the ones that already exist.
// It returns only the accounts it created.
func (l *Ledger) SeedAccounts(ctx context.Context, accounts []CreateAccountRequest) ([]model.Account, error) {
	created := make([]model.Account, 0, len(accounts))
	for _, req := range accounts {
		acc, err := l.CreateAccount(ctx, req)
		if apierror.Is(err, apierror.ErrConflict) {
			logrus.Infof("account %s already exists, skipping", req.AccountID)
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, *acc)
	}
	return created, nil
}
