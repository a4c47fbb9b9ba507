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
	"errors"
	"net/http"

	"github.com/chronosfinance/ledger"
	"github.com/chronosfinance/ledger/api/middleware"
	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	ledger    *ledger.Ledger
	notifier  webhooks.Notifier
	precision int32
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/accounts", a.CreateAccount)
	router.GET("/accounts", a.GetAllAccounts)
	router.GET("/accounts/:id", a.GetAccount)
	router.POST("/accounts/:id/disable", a.DisableAccount)
	router.GET("/accounts/:id/movements", a.GetMovements)
	router.POST("/accounts/:id/deposits", a.Deposit)
	router.POST("/accounts/:id/withdrawals", a.Withdraw)
	router.POST("/movements/:key/reverse", a.ReverseMovement)

	router.POST("/transfers", a.CreateTransfer)
	router.GET("/transfers/:key", a.GetTransfer)
	router.POST("/transfers/:key/reverse", a.ReverseTransfer)

	router.GET("/balances/total", a.GetTotalBalance)
	router.GET("/reconciliation", a.Reconcile)
	return a.router
}

// NewAPI builds the HTTP adapter. notifier may be nil, in which case no webhooks are sent.
func NewAPI(l *ledger.Ledger, notifier webhooks.Notifier, conf *config.Configuration) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(conf.Tracing.ServiceName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	precision := conf.Ledger.Precision
	if precision <= 0 {
		precision = config.DEFAULT_PRECISION
	}
	return &Api{ledger: l, notifier: notifier, precision: precision, router: r}
}

// respondError writes err with the status its code maps to.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	body := gin.H{"code": ledger.CodeOf(err), "error": err.Error()}
	var apiErr ledger.Error
	if errors.As(err, &apiErr) {
		body["error"] = apiErr.Message
		if apiErr.AccountID != "" {
			body["account_id"] = apiErr.AccountID
		}
		if apiErr.Details != nil {
			body["details"] = apiErr.Details
		}
	}
	if ledger.IsRetryable(err) {
		body["retryable"] = true
	}
	if status >= http.StatusInternalServerError {
		logrus.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}

func validationError(c *gin.Context, err error) {
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, "validation failed", err.Error()))
}

// notify hands an event to the webhook queue after a commit. Delivery problems never fail the request.
func (a Api) notify(ctx context.Context, event string, payload interface{}) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Send(ctx, webhooks.Webhook{Event: event, Payload: payload}); err != nil {
		logrus.Errorf("failed to queue %s webhook: %v", event, err)
	}
}
