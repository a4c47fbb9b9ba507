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
	"net/http"
	"strconv"
	"strings"

	model2 "github.com/chronosfinance/ledger/api/model"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
)

func (a Api) CreateAccount(c *gin.Context) {
	var newAccount model2.CreateAccount
	if err := c.ShouldBindJSON(&newAccount); err != nil {
		validationError(c, err)
		return
	}

	if err := newAccount.ValidateCreateAccount(a.precision); err != nil {
		validationError(c, err)
		return
	}

	req, err := newAccount.ToCreateAccountRequest(a.precision)
	if err != nil {
		validationError(c, err)
		return
	}

	account, err := a.ledger.CreateAccount(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := model2.ToAccountResponse(*account, a.precision)
	a.notify(c.Request.Context(), webhooks.EventAccountCreated, resp)
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetAccount(c *gin.Context) {
	account, err := a.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model2.ToAccountResponse(*account, a.precision))
}

func (a Api) GetAllAccounts(c *gin.Context) {
	accounts, err := a.ledger.ListAccounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]model2.AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		resp = append(resp, model2.ToAccountResponse(acc, a.precision))
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) DisableAccount(c *gin.Context) {
	account, err := a.ledger.DisableAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := model2.ToAccountResponse(*account, a.precision)
	a.notify(c.Request.Context(), webhooks.EventAccountDisabled, resp)
	c.JSON(http.StatusOK, resp)
}

// GetMovements pages through an account's history.
// Query: kind (repeatable or comma separated), cursor, limit.
func (a Api) GetMovements(c *gin.Context) {
	filter := model.MovementFilter{Cursor: c.Query("cursor")}
	for _, raw := range c.QueryArray("kind") {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				filter.Kinds = append(filter.Kinds, model.MovementKind(k))
			}
		}
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, "limit must be a positive integer", nil))
			return
		}
		filter.Limit = n
	}

	page, err := a.ledger.GetMovements(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
