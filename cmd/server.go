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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/caddyserver/certmagic"
	"github.com/chronosfinance/ledger"
	"github.com/chronosfinance/ledger/api"
	"github.com/chronosfinance/ledger/config"
	redlock "github.com/chronosfinance/ledger/internal/lock"
	"github.com/chronosfinance/ledger/internal/traces"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

/*
serveTLS starts an HTTPS server with TLS enabled using CertMagic for automatic certificate management.
If no domain is specified, the server will default to running on localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTPS server: %v", err)
	}
	return nil
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// initializeNotifier returns a webhook queue when both redis and a webhook url
// are configured. Without them the API runs with no notifier.
func initializeNotifier(cfg *config.Configuration) (*webhooks.Queue, error) {
	if cfg.Redis.Dns == "" || cfg.Notification.Webhook.Url == "" {
		return nil, nil
	}
	opt, err := webhooks.RedisOpt(cfg)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	return webhooks.NewQueue(opt, cfg.Notification.Webhook), nil
}

// initializeReconciliation starts the periodic reconciliation worker. Several
// server instances share one redis lock so only one of them runs each round.
func initializeReconciliation(ctx context.Context, app *ledgerInstance, l *ledger.Ledger) (*ledger.ReconciliationWorker, error) {
	cfg := app.cnf
	if !cfg.Reconciliation.Enabled {
		return nil, nil
	}
	if cfg.Redis.Dns == "" {
		return nil, fmt.Errorf("reconciliation worker requires redis for its lock")
	}
	client, err := app.redisClient()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(client.Client(), reconciliationLockKey, uuid.NewString())
	worker := ledger.NewReconciliationWorker(l, locker, cfg.Reconciliation.Interval(), cfg.Reconciliation.LockTTL()).
		OnReport(func(report *ledger.ReconciliationReport) {
			if !report.Balanced() {
				logrus.Warnf("reconciliation %s found %d discrepancies", report.ReconciliationID, len(report.Discrepancies))
			}
		})
	worker.Start(ctx)
	return worker, nil
}

// serverCommands returns the command that starts the HTTP API.
func serverCommands(app *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"start"},
		Short:   "start the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg := app.cnf

			shutdown, err := traces.SetupOTelSDK(ctx, cfg.Tracing)
			if err != nil {
				return fmt.Errorf("error setting up OTel SDK: %v", err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			l, err := app.setupLedger(ctx)
			if err != nil {
				return err
			}

			queue, err := initializeNotifier(cfg)
			if err != nil {
				return err
			}
			var notifier webhooks.Notifier
			if queue != nil {
				defer queue.Close()
				notifier = queue
			}

			worker, err := initializeReconciliation(ctx, app, l)
			if err != nil {
				return err
			}
			if worker != nil {
				defer worker.Stop()
			}

			router := api.NewAPI(l, notifier, cfg).Router()
			return startServer(router, cfg.Server)
		},
	}

	return cmd
}
