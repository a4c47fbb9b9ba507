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

package database

import (
	"database/sql"
	"fmt"

	"github.com/chronosfinance/ledger/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Datasource is the SQL implementation of IDataSource for PostgreSQL and SQLite.
type Datasource struct {
	Conn   *sql.DB
	Driver string
}

// NewDataSource connects to the configured SQL database and applies pending migrations.
func NewDataSource(configuration *config.Configuration) (*Datasource, error) {
	con, err := ConnectDB(configuration.DataSource.Driver, configuration.DataSource.Dns)
	if err != nil {
		return nil, err
	}
	ds := &Datasource{Conn: con, Driver: configuration.DataSource.Driver}
	if _, err := ds.Migrate(MigrateUp); err != nil {
		_ = con.Close()
		return nil, err
	}
	return ds, nil
}

// ConnectDB opens and pings a SQL connection for driver.
func ConnectDB(driver, dns string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dns)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; one connection keeps them from failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	err = db.Ping()
	if err != nil {
		logrus.Errorf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}
