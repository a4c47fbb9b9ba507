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
	"math"
	"time"
)

// Account is one named cash pool ("banco"). Balance and the cumulative totals are
// stored in minor units. The stored balance is a projection of the movement log.
type Account struct {
	AccountID     string                 `json:"account_id"`
	Name          string                 `json:"name"`
	Currency      string                 `json:"currency"`
	Balance       int64                  `json:"balance"`
	InboundTotal  int64                  `json:"inbound_total"`
	OutboundTotal int64                  `json:"outbound_total"`
	Disabled      bool                   `json:"disabled"`
	Version       int64                  `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// Clone returns a copy that shares nothing mutable with the receiver.
func (a Account) Clone() Account {
	c := a
	if a.MetaData != nil {
		c.MetaData = make(map[string]interface{}, len(a.MetaData))
		for k, v := range a.MetaData {
			c.MetaData[k] = v
		}
	}
	return c
}

// Apply folds a movement into the account projection.
// Outflows never take the balance below zero; the account is left untouched on error.
func (a *Account) Apply(m Movement, at time.Time) error {
	if a.Disabled {
		return ErrAccountDisabled
	}

	balance, err := addChecked(a.Balance, m.Amount)
	if err != nil {
		return err
	}
	if balance < 0 {
		return ErrInsufficientFunds
	}

	inbound, outbound := a.InboundTotal, a.OutboundTotal
	switch m.Kind {
	case KindTransferIn, KindDeposit:
		if inbound, err = addChecked(inbound, m.Amount); err != nil {
			return err
		}
	case KindTransferOut, KindWithdrawal:
		if outbound, err = addChecked(outbound, -m.Amount); err != nil {
			return err
		}
	}

	a.Balance = balance
	a.InboundTotal = inbound
	a.OutboundTotal = outbound
	a.UpdatedAt = at
	return nil
}

func addChecked(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}
