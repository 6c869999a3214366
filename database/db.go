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
	"strings"
	"sync"
	"time"

	"github.com/blnkfinance/custody/config"
	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"
)

const memoryScheme = "memory://"

var (
	instance *Datasource
	once     sync.Once
)

// Datasource is the Postgres implementation of IDataSource.
type Datasource struct {
	Conn *sql.DB
}

// NewDataSource returns the store named by the configured DNS: an in-process store for
// memory:// and Postgres otherwise.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	if strings.HasPrefix(configuration.DataSource.Dns, memoryScheme) {
		return NewMemoryStore(), nil
	}
	return GetDBConnection(configuration)
}

// GetDBConnection returns the process-wide Postgres datasource.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens a pooled connection and verifies it. Schema changes are applied by the
// migrate command, never here.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		logrus.Errorf("database connection error: %v", err)
		return nil, err
	}
	return db, nil
}
