/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"database/sql"
	"regexp"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger/logging"
)

var logger = logging.MustGetLogger("rrledger.sql")

var validName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type tableNames struct {
	Tokens       string
	Transactions string
	Scholars     string
	Currencies   string
	Venues       string
	Proposals    string
	Roles        string
	Volunteers   string
	Assignments  string
	Submissions  string
	Emails       string
}

func GetTableNames(prefix string) (tableNames, error) {
	if prefix != "" && !validName.MatchString(prefix) {
		return tableNames{}, errors.Errorf("invalid table prefix [%s]", prefix)
	}
	name := func(base string) string {
		if prefix == "" {
			return base
		}
		return prefix + "_" + base
	}
	return tableNames{
		Tokens:       name("tokens"),
		Transactions: name("transactions"),
		Scholars:     name("scholars"),
		Currencies:   name("currencies"),
		Venues:       name("venues"),
		Proposals:    name("proposals"),
		Roles:        name("roles"),
		Volunteers:   name("volunteers"),
		Assignments:  name("assignments"),
		Submissions:  name("submissions"),
		Emails:       name("emails"),
	}, nil
}

// NewDBOpts configures store construction.
type NewDBOpts struct {
	DataSource   string
	TablePrefix  string
	CreateSchema bool
}

// InitSchema executes each schema statement against the write connection.
func InitSchema(db *sql.DB, schemas ...string) error {
	logger.Info("creating tables")
	for _, schema := range schemas {
		logger.Debug(schema)
		if _, err := db.Exec(schema); err != nil {
			return errors.Wrap(err, "error creating schema")
		}
	}
	return nil
}
