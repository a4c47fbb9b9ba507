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
	"fmt"

	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/database/memory"
	redisstore "github.com/chronosfinance/ledger/database/redis"
)

// newDataSource picks the store backend named by data_source.driver.
func (app *ledgerInstance) newDataSource() (database.IDataSource, error) {
	switch app.cnf.DataSource.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		client, err := app.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client.Client()), nil
	case database.DriverPostgres, database.DriverSQLite:
		return database.NewDataSource(app.cnf)
	default:
		return nil, fmt.Errorf("unsupported data source driver %q", app.cnf.DataSource.Driver)
	}
}
