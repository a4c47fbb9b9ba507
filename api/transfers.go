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

	"github.com/chronosfinance/ledger"
	model2 "github.com/chronosfinance/ledger/api/model"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/model"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
)

// transferEvent is the webhook and lookup payload for a committed transfer.
type transferEvent struct {
	*ledger.TransferResult
	OriginID      string `json:"origin_id"`
	DestinationID string `json:"destination_id"`
	Amount        string `json:"amount"`
}

func (a Api) CreateTransfer(c *gin.Context) {
	var newTransfer model2.CreateTransfer
	if err := c.ShouldBindJSON(&newTransfer); err != nil {
		validationError(c, err)
		return
	}

	if err := newTransfer.ValidateCreateTransfer(a.precision); err != nil {
		validationError(c, err)
		return
	}

	req, err := newTransfer.ToTransferRequest(a.precision)
	if err != nil {
		validationError(c, err)
		return
	}

	result, err := a.ledger.Transfer(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	} else {
		a.notify(c.Request.Context(), webhooks.EventTransferCommitted, transferEvent{
			TransferResult: result,
			OriginID:       req.OriginID,
			DestinationID:  req.DestinationID,
			Amount:         model.FormatAmount(req.Amount, a.precision),
		})
	}
	c.JSON(status, result)
}

func (a Api) ReverseTransfer(c *gin.Context) {
	var body model2.ReverseTransfer
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			validationError(c, err)
			return
		}
	}

	result, err := a.ledger.ReverseTransfer(c.Request.Context(), c.Param("key"), body.Memo)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	} else {
		a.notify(c.Request.Context(), webhooks.EventTransferReversed, result)
	}
	c.JSON(status, result)
}

// GetTransfer returns the movements committed under a correlation key.
func (a Api) GetTransfer(c *gin.Context) {
	key := c.Param("key")
	movements, err := a.ledger.FindByCorrelation(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(movements) == 0 {
		respondError(c, apierror.NewAPIError(apierror.ErrNotFound, "no movements found for correlation key '"+key+"'", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlation_key": key, "movements": movements})
}
