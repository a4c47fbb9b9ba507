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

	"github.com/chronosfinance/ledger/model"
	"github.com/gin-gonic/gin"
)

func (a Api) GetTotalBalance(c *gin.Context) {
	total, err := a.ledger.GetTotalBalance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	byCurrency := make(map[string]string, len(total.ByCurrency))
	for currency, amount := range total.ByCurrency {
		byCurrency[currency] = model.FormatAmount(amount, a.precision)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":               total.Total,
		"total_decimal":       model.FormatAmount(total.Total, a.precision),
		"by_currency":         total.ByCurrency,
		"by_currency_decimal": byCurrency,
		"account_count":       total.AccountCount,
		"computed_at":         total.ComputedAt,
	})
}

// Reconcile rebuilds every account from its movements and reports the differences.
func (a Api) Reconcile(c *gin.Context) {
	report, err := a.ledger.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":   report,
		"balanced": report.Balanced(),
	})
}
