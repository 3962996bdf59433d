/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"database/sql"
	errors2 "errors"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
)

// NewStores builds every store over a shared pair of connections. The
// schema, when requested, is created once up front.
func NewStores(readDB, writeDB *sql.DB, opts NewDBOpts) (*driver.Stores, error) {
	tokens, err := NewTokenStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating token store")
	}
	transactions, err := NewTransactionStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating transaction store")
	}
	scholars, err := NewScholarStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating scholar store")
	}
	venues, err := NewVenueStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating venue store")
	}
	roles, err := NewRoleStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating role store")
	}
	submissions, err := NewSubmissionStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating submission store")
	}
	emails, err := NewEmailStore(readDB, writeDB, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating email store")
	}
	return &driver.Stores{
		Tokens:       tokens,
		Transactions: transactions,
		Scholars:     scholars,
		Venues:       venues,
		Roles:        roles,
		Submissions:  submissions,
		Emails:       emails,
	}, nil
}

// CloseDBs closes both connections, tolerating a shared pair.
func CloseDBs(readDB, writeDB *sql.DB) error {
	if readDB != writeDB {
		return errors2.Join(readDB.Close(), writeDB.Close())
	}
	return errors.Wrap(readDB.Close(), "could not close DB")
}
