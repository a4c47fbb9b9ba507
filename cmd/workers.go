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
	"time"

	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/internal/traces"
	"github.com/chronosfinance/ledger/webhooks"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

const webhookTimeout = 10 * time.Second

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	opt, err := webhooks.RedisOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{conf.Notification.Webhook.Queue: 1},
	}), nil
}

func initializeTaskHandlers(conf *config.Configuration, mux *asynq.ServeMux) {
	deliverer := webhooks.NewDeliverer(conf.Notification.Webhook, &http.Client{Timeout: webhookTimeout})
	mux.HandleFunc(conf.Notification.Webhook.Queue, deliverer.ProcessTask)
}

// workerCommands defines the "workers" command that delivers queued webhooks.
func workerCommands(app *ledgerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start webhook delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conf := app.cnf
			if conf.Redis.Dns == "" {
				return fmt.Errorf("workers require a redis dns")
			}

			shutdown, err := traces.SetupOTelSDK(ctx, conf.Tracing)
			if err != nil {
				return fmt.Errorf("error setting up OTel SDK: %v", err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				return err
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(conf, mux)

			if err := srv.Run(mux); err != nil {
				return fmt.Errorf("could not run server: %v", err)
			}
			return nil
		},
	}

	return cmd
}
