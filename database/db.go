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
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/tokenization"
)

var (
	instance *Datasource
	once     sync.Once
)

// Datasource is the postgres backed order store. Keys are sealed by the
// tokenizer before they are written and opened after they are read.
type Datasource struct {
	Conn      *sql.DB
	tokenizer *tokenization.TokenizationService
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// NewDatasourceWithConn wires an existing connection, mainly for tests and tooling.
func NewDatasourceWithConn(conn *sql.DB, encryptionKey string) (*Datasource, error) {
	ds := &Datasource{Conn: conn}
	if encryptionKey == "" {
		return ds, nil
	}
	tokenizer, err := tokenization.NewTokenizationService([]byte(encryptionKey))
	if err != nil {
		return nil, err
	}
	ds.tokenizer = tokenizer
	return ds, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance, err = NewDatasourceWithConn(con, configuration.Security.EncryptionKey)
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}
