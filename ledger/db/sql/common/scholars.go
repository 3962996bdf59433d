/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	errors2 "errors"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger"
)

const scholarColumns = "id, name, email, orcid, available, status, steward, created_at"

type ScholarStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

func NewScholarStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*ScholarStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &ScholarStore{
		readDB:  readDB,
		writeDB: writeDB,
		table:   tables.Scholars,
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *ScholarStore) Get(ctx context.Context, id ledger.ScholarID) (*ledger.Scholar, error) {
	query, err := NewSelect(scholarColumns).From(db.table).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	scholar, err := scanScholar(db.readDB.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying scholar [%s]", id)
	}
	return scholar, nil
}

// FindByEmailOrORCID matches a free-form identifier against email and ORCID.
// Returns nil when the identifier matches no scholar or is ambiguous.
func (db *ScholarStore) FindByEmailOrORCID(ctx context.Context, identifier string) (*ledger.Scholar, error) {
	query, err := NewSelect(scholarColumns).
		From(db.table).
		Where("email = $1 OR orcid = $2").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, identifier)
	rows, err := db.readDB.QueryContext(ctx, query, identifier, identifier)
	if err != nil {
		return nil, errors.Wrap(err, "error querying scholars")
	}
	defer Close(rows)

	var found *ledger.Scholar
	for rows.Next() {
		scholar, err := scanScholar(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning scholar")
		}
		if found != nil {
			logger.Warnf("identifier [%s] matches more than one scholar", identifier)
			return nil, nil
		}
		found = scholar
	}
	return found, rows.Err()
}

func (db *ScholarStore) Insert(ctx context.Context, scholar *ledger.Scholar) error {
	query, err := NewInsertInto(db.table).Rows(scholarColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	created := scholar.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	logger.Debug(query, scholar.ID, scholar.Email)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(scholar.ID), scholar.Name, scholar.Email, scholar.ORCID,
		scholar.Available, scholar.Status, scholar.Steward, created,
	)
	return errors.Wrapf(err, "error inserting scholar [%s]", scholar.ID)
}

func (db *ScholarStore) SetAvailability(ctx context.Context, id ledger.ScholarID, available bool) error {
	query, err := NewUpdate(db.table).Set("available").Where("id = $2").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, available)
	_, err = db.writeDB.ExecContext(ctx, query, available, string(id))
	return errors.Wrapf(err, "error updating scholar [%s]", id)
}

func scanScholar(row scannable) (*ledger.Scholar, error) {
	var (
		s  ledger.Scholar
		id string
	)
	err := row.Scan(&id, &s.Name, &s.Email, &s.ORCID, &s.Available, &s.Status, &s.Steward, &s.Created)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.ID = ledger.ScholarID(id)
	return &s, nil
}

func (db *ScholarStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Scholars
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			orcid TEXT NOT NULL,
			available BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			steward BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_orcid ON %s ( orcid );`,
		db.table, db.table, db.table,
	)
}
