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
	"os"

	"github.com/chronosfinance/ledger"
	"github.com/chronosfinance/ledger/cache"
	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/database"
	redis_db "github.com/chronosfinance/ledger/internal/redis-db"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Ledger represents the CLI application, encapsulating the root Cobra command.
type Ledger struct {
	cmd *cobra.Command
}

// ledgerInstance holds what the commands share once configuration is loaded.
// The ledger itself is built lazily so that commands such as migrate do not open it.
type ledgerInstance struct {
	configFile string
	cnf        *config.Configuration
	ledger     *ledger.Ledger
	datasource database.IDataSource
	redis      *redis_db.Redis
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration before any command runs.
func preRun(app *ledgerInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(app.configFile); err != nil {
			log.Fatal("error loading config ", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// redisClient connects to redis once and reuses the client.
func (app *ledgerInstance) redisClient() (*redis_db.Redis, error) {
	if app.redis != nil {
		return app.redis, nil
	}
	if app.cnf.Redis.Dns == "" {
		return nil, fmt.Errorf("redis is not configured")
	}
	client, err := redis_db.NewRedisClient([]string{app.cnf.Redis.Dns}, app.cnf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	app.redis = client
	return client, nil
}

// setupLedger opens the configured datasource and builds the ledger on top of it.
func (app *ledgerInstance) setupLedger(ctx context.Context) (*ledger.Ledger, error) {
	if app.ledger != nil {
		return app.ledger, nil
	}

	db, err := app.newDataSource()
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	var c cache.Cache
	if app.cnf.Redis.Dns != "" {
		client, err := app.redisClient()
		if err != nil {
			return nil, err
		}
		c = cache.NewCache(client.Client(), app.cnf.Ledger.TotalBalanceCacheTTL())
	} else {
		c = cache.NewLocalCache(app.cnf.Ledger.TotalBalanceCacheTTL())
	}

	l, err := ledger.NewLedgerFromConfig(db, app.cnf, c)
	if err != nil {
		return nil, fmt.Errorf("error creating ledger: %v", err)
	}

	if app.cnf.Ledger.SeedOnStart {
		if _, err := l.SeedAccounts(ctx, ledger.DefaultAccounts()); err != nil {
			return nil, fmt.Errorf("error seeding accounts: %v", err)
		}
	}

	app.datasource = db
	app.ledger = l
	return l, nil
}

func (app *ledgerInstance) close() {
	if app.datasource != nil {
		if err := app.datasource.Close(); err != nil {
			logrus.Errorf("error closing datasource: %v", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logrus.Errorf("error closing redis: %v", err)
		}
	}
}

// NewCLI creates the command-line interface and registers every subcommand.
func NewCLI() *Ledger {
	app := &ledgerInstance{}

	var rootCmd = &cobra.Command{
		Use:   "ledger",
		Short: "Cash ledger for the bancos",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&app.configFile, "config", "./ledger.json", "Configuration file for the ledger")
	rootCmd.PersistentPreRunE = preRun(app)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) { app.close() }

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(seedCommands(app))
	rootCmd.AddCommand(reconcileCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &Ledger{cmd: rootCmd}
}

func (w Ledger) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
