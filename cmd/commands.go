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
	"encoding/json"
	"fmt"
	"os"

	"github.com/chronosfinance/ledger"
	redlock "github.com/chronosfinance/ledger/internal/lock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const reconciliationLockKey = "{ledger}:lock:reconciliation"

func seedCommands(app *ledgerInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "create the default bancos that do not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := app.setupLedger(cmd.Context())
			if err != nil {
				return err
			}
			created, err := l.SeedAccounts(cmd.Context(), ledger.DefaultAccounts())
			if err != nil {
				return err
			}
			for _, acc := range created {
				fmt.Printf("created %s (%s, %s)\n", acc.AccountID, acc.Name, acc.Currency)
			}
			fmt.Printf("%d accounts created\n", len(created))
			return nil
		},
	}
}

// reconcileCommands runs one reconciliation and prints the report. With redis
// configured it takes the same lock as the periodic worker.
func reconcileCommands(app *ledgerInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "rebuild every account from its movements and report differences",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := app.setupLedger(cmd.Context())
			if err != nil {
				return err
			}

			var report *ledger.ReconciliationReport
			if app.cnf.Redis.Dns != "" {
				client, err := app.redisClient()
				if err != nil {
					return err
				}
				locker := redlock.NewLocker(client.Client(), reconciliationLockKey, uuid.NewString())
				report, err = ledger.NewReconciliationWorker(l, locker, app.cnf.Reconciliation.Interval(), app.cnf.Reconciliation.LockTTL()).RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if report == nil {
					logrus.Info("another instance is reconciling, nothing to do")
					return nil
				}
			} else {
				report, err = l.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Balanced() {
				return fmt.Errorf("%d discrepancies found", len(report.Discrepancies))
			}
			return nil
		},
	}
}

func configCommands(app *ledgerInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(app.cnf, "", "    ")
			if err != nil {
				return fmt.Errorf("error printing config: %v", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
