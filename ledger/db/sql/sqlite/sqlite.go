/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package sqlite

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/common"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	_ "modernc.org/sqlite"
)

var logger = logging.MustGetLogger("rrledger.sql.sqlite")

// Opts configures a sqlite-backed store bundle.
type Opts struct {
	DataSource   string
	TablePrefix  string
	CreateSchema bool
	MaxOpenConns int
}

// Open opens a sqlite database and builds every store over it. Writes go
// through a single-connection pool; sqlite serializes writers anyway and a
// second writer would only hit SQLITE_BUSY.
func Open(opts Opts) (*driver.Stores, error) {
	dsn := opts.DataSource
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(20000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open sqlite database")
	}
	if opts.MaxOpenConns > 0 {
		readDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = readDB.Close()
		return nil, errors.Wrapf(err, "can't open sqlite database")
	}
	writeDB.SetMaxOpenConns(1)

	if err := writeDB.Ping(); err != nil {
		_ = common.CloseDBs(readDB, writeDB)
		return nil, errors.Wrap(err, "failed to ping sqlite")
	}
	logger.Infof("connected to sqlite [%s]", dsn)
	return common.NewStores(readDB, writeDB, common.NewDBOpts{
		DataSource:   opts.DataSource,
		TablePrefix:  opts.TablePrefix,
		CreateSchema: opts.CreateSchema,
	})
}

// OpenMemory opens an in-memory database with a shared cache, useful in
// tests.
func OpenMemory(prefix string) (*driver.Stores, error) {
	return Open(Opts{
		DataSource:   "file:" + prefix + "?mode=memory&cache=shared",
		TablePrefix:  prefix,
		CreateSchema: true,
	})
}
