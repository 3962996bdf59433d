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

	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger"
)

const submissionColumns = "id, venue, title, expertise, external_id, previous_id, authors, payments, transactions, status"

type SubmissionStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

func NewSubmissionStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*SubmissionStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &SubmissionStore{
		readDB:  readDB,
		writeDB: writeDB,
		table:   tables.Submissions,
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *SubmissionStore) Get(ctx context.Context, id ledger.SubmissionID) (*ledger.Submission, error) {
	query, err := NewSelect(submissionColumns).From(db.table).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	sub, err := scanSubmission(db.readDB.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying submission [%s]", id)
	}
	return sub, nil
}

func (db *SubmissionStore) FindByExternalID(ctx context.Context, venue ledger.VenueID, externalID string) (*ledger.Submission, error) {
	query, err := NewSelect(submissionColumns).
		From(db.table).
		Where("venue = $1 AND external_id = $2").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, venue, externalID)
	sub, err := scanSubmission(db.readDB.QueryRowContext(ctx, query, string(venue), externalID))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying submission [%s, %s]", venue, externalID)
	}
	return sub, nil
}

func (db *SubmissionStore) Insert(ctx context.Context, submission *ledger.Submission) error {
	query, err := NewInsertInto(db.table).Rows(submissionColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	authors, err := marshalJSON(scholarIDStrings(submission.Authors))
	if err != nil {
		return err
	}
	payments, err := marshalJSON(submission.Payments)
	if err != nil {
		return err
	}
	txIDs := make([]string, len(submission.Transactions))
	for i, id := range submission.Transactions {
		txIDs[i] = string(id)
	}
	transactions, err := marshalJSON(txIDs)
	if err != nil {
		return err
	}
	var previous sql.NullString
	if submission.PreviousID != "" {
		previous = sql.NullString{String: string(submission.PreviousID), Valid: true}
	}
	logger.Debug(query, submission.ID, submission.Venue)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(submission.ID), string(submission.Venue), submission.Title, submission.Expertise,
		submission.ExternalID, previous, authors, payments, transactions, submission.Status,
	)
	return errors.Wrapf(err, "error inserting submission [%s]", submission.ID)
}

func scanSubmission(row scannable) (*ledger.Submission, error) {
	var (
		s                                 ledger.Submission
		id, venue                         string
		previous                          sql.NullString
		rawAuthors, rawPayments, rawTxIDs string
	)
	err := row.Scan(&id, &venue, &s.Title, &s.Expertise, &s.ExternalID, &previous,
		&rawAuthors, &rawPayments, &rawTxIDs, &s.Status)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var authors []string
	if err := unmarshalJSON(rawAuthors, &authors); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(rawPayments, &s.Payments); err != nil {
		return nil, err
	}
	var txIDs []string
	if err := unmarshalJSON(rawTxIDs, &txIDs); err != nil {
		return nil, err
	}
	s.ID = ledger.SubmissionID(id)
	s.Venue = ledger.VenueID(venue)
	if previous.Valid {
		s.PreviousID = ledger.SubmissionID(previous.String)
	}
	s.Authors = scholarIDs(authors)
	s.Transactions = make([]ledger.TransactionID, len(txIDs))
	for i, t := range txIDs {
		s.Transactions[i] = ledger.TransactionID(t)
	}
	return &s, nil
}

func (db *SubmissionStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Submissions
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			venue TEXT NOT NULL,
			title TEXT NOT NULL,
			expertise TEXT NOT NULL,
			external_id TEXT NOT NULL,
			previous_id TEXT,
			authors TEXT NOT NULL,
			payments TEXT NOT NULL,
			transactions TEXT NOT NULL,
			status TEXT NOT NULL,
			UNIQUE (venue, external_id)
		);`,
		db.table,
	)
}
