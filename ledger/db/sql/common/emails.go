/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger"
)

const emailColumns = "id, scholar, venue, address, event, subject, message, time_sent"

type EmailStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

func NewEmailStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*EmailStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &EmailStore{
		readDB:  readDB,
		writeDB: writeDB,
		table:   tables.Emails,
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *EmailStore) Insert(ctx context.Context, email *ledger.Email) error {
	query, err := NewInsertInto(db.table).Rows(emailColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	var sent sql.NullTime
	if !email.TimeSent.IsZero() {
		sent = sql.NullTime{Time: email.TimeSent, Valid: true}
	}
	var venue sql.NullString
	if email.Venue != "" {
		venue = sql.NullString{String: string(email.Venue), Valid: true}
	}
	logger.Debug(query, email.ID, email.Event)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(email.ID), string(email.Scholar), venue, email.Address,
		email.Event, email.Subject, email.Message, sent,
	)
	return errors.Wrapf(err, "error inserting email [%s]", email.ID)
}

func (db *EmailStore) ListUnsent(ctx context.Context, limit int) ([]*ledger.Email, error) {
	query, err := NewSelect(emailColumns).
		From(db.table).
		Where("time_sent IS NULL").
		OrderBy("id").
		Limit("$1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, limit)
	rows, err := db.readDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "error querying emails")
	}
	defer Close(rows)

	var emails []*ledger.Email
	for rows.Next() {
		var (
			e           ledger.Email
			id, scholar string
			venue       sql.NullString
			sent        sql.NullTime
		)
		if err := rows.Scan(&id, &scholar, &venue, &e.Address, &e.Event, &e.Subject, &e.Message, &sent); err != nil {
			return nil, errors.Wrap(err, "error scanning email")
		}
		e.ID = ledger.EmailID(id)
		e.Scholar = ledger.ScholarID(scholar)
		if venue.Valid {
			e.Venue = ledger.VenueID(venue.String)
		}
		if sent.Valid {
			e.TimeSent = sent.Time
		}
		emails = append(emails, &e)
	}
	return emails, rows.Err()
}

func (db *EmailStore) MarkSent(ctx context.Context, id ledger.EmailID, at time.Time) error {
	query, err := NewUpdate(db.table).Set("time_sent").Where("id = $2").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, at)
	_, err = db.writeDB.ExecContext(ctx, query, at.UTC(), string(id))
	return errors.Wrapf(err, "error updating email [%s]", id)
}

func (db *EmailStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Emails
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			scholar TEXT NOT NULL,
			venue TEXT,
			address TEXT NOT NULL,
			event TEXT NOT NULL,
			subject TEXT NOT NULL,
			message TEXT NOT NULL,
			time_sent TIMESTAMP
		);`,
		db.table,
	)
}
