/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package postgres

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/common"
	"github.com/reciprocalreviews/ledger/ledger/logging"
)

var logger = logging.MustGetLogger("rrledger.sql.postgres")

// Opts configures a postgres-backed store bundle.
type Opts struct {
	DataSource   string
	TablePrefix  string
	CreateSchema bool
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

// Open connects to postgres via the pgx stdlib driver and builds every store
// over a shared read/write connection pair.
func Open(opts Opts) (*driver.Stores, error) {
	readDB, err := open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening read connection")
	}
	writeDB, err := open(opts)
	if err != nil {
		_ = readDB.Close()
		return nil, errors.Wrap(err, "failed opening write connection")
	}
	logger.Infof("connected to postgres, prefix [%s]", opts.TablePrefix)
	return common.NewStores(readDB, writeDB, common.NewDBOpts{
		DataSource:   opts.DataSource,
		TablePrefix:  opts.TablePrefix,
		CreateSchema: opts.CreateSchema,
	})
}

func open(opts Opts) (*sql.DB, error) {
	db, err := sql.Open("pgx", opts.DataSource)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open postgres database")
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.MaxIdleTime)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return db, nil
}
