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

package api

import (
	"context"
	"net/http"

	"github.com/chronosfinance/ledger"
	model2 "github.com/chronosfinance/ledger/api/model"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
)

type movementFunc func(context.Context, ledger.MovementRequest) (*ledger.MovementResult, error)

func (a Api) Deposit(c *gin.Context) {
	a.recordMovement(c, a.ledger.Deposit, webhooks.EventDepositCommitted)
}

func (a Api) Withdraw(c *gin.Context) {
	a.recordMovement(c, a.ledger.Withdraw, webhooks.EventWithdrawalCommitted)
}

func (a Api) recordMovement(c *gin.Context, fn movementFunc, event string) {
	var newMovement model2.CreateMovement
	if err := c.ShouldBindJSON(&newMovement); err != nil {
		validationError(c, err)
		return
	}

	if err := newMovement.ValidateCreateMovement(a.precision); err != nil {
		validationError(c, err)
		return
	}

	req, err := newMovement.ToMovementRequest(c.Param("id"), a.precision)
	if err != nil {
		validationError(c, err)
		return
	}

	result, err := fn(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	} else {
		a.notify(c.Request.Context(), event, gin.H{
			"account_id":      req.AccountID,
			"movement_id":     result.MovementID,
			"correlation_key": result.CorrelationKey,
			"amount":          newMovement.Amount,
		})
	}
	c.JSON(status, result)
}

// ReverseMovement undoes the deposit or withdrawal committed under :key.
func (a Api) ReverseMovement(c *gin.Context) {
	var body model2.ReverseTransfer
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			validationError(c, err)
			return
		}
	}

	result, err := a.ledger.ReverseMovement(c.Request.Context(), c.Param("key"), body.Memo)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	} else {
		a.notify(c.Request.Context(), webhooks.EventMovementReversed, result)
	}
	c.JSON(status, result)
}
