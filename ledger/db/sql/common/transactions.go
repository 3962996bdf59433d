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

const txColumns = "id, creator, from_scholar, from_venue, to_scholar, to_venue, tokens, currency, purpose, status, created_at"

type TransactionStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

func NewTransactionStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*TransactionStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &TransactionStore{
		readDB:  readDB,
		writeDB: writeDB,
		table:   tables.Transactions,
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *TransactionStore) Insert(ctx context.Context, tx *ledger.Transaction) error {
	query, err := NewInsertInto(db.table).Rows(txColumns).Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	tokens, err := marshalJSON(tokenRefsToStorage(tx.Tokens))
	if err != nil {
		return err
	}
	fromScholar, fromVenue := holderColumns(tx.From)
	toScholar, toVenue := holderColumns(tx.To)
	created := tx.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	logger.Debug(query, tx.ID, tx.Status)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(tx.ID), string(tx.Creator),
		fromScholar, fromVenue, toScholar, toVenue,
		tokens, string(tx.Currency), tx.Purpose, string(tx.Status), created,
	)
	return errors.Wrapf(err, "error inserting transaction [%s]", tx.ID)
}

func (db *TransactionStore) Get(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	query, err := NewSelect(txColumns).From(db.table).Where("id = $1").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	tx, err := scanTransaction(db.readDB.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "error querying transaction [%s]", id)
	}
	return tx, nil
}

// UpdateStatusIf is a conditional status transition. A false return means the
// row was not in the expected status, typically because a concurrent writer
// moved it first.
func (db *TransactionStore) UpdateStatusIf(ctx context.Context, id ledger.TransactionID, expected, next ledger.TransactionStatus) (bool, error) {
	query, err := NewUpdate(db.table).Set("status").Where("id = $2 AND status = $3").Compile()
	if err != nil {
		return false, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, expected, next)
	res, err := db.writeDB.ExecContext(ctx, query, string(next), string(id), string(expected))
	if err != nil {
		return false, errors.Wrapf(err, "error updating transaction [%s]", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "error updating transaction [%s]", id)
	}
	return n > 0, nil
}

// Cancel marks the transaction canceled, recording the reason as its purpose.
func (db *TransactionStore) Cancel(ctx context.Context, id ledger.TransactionID, reason string, onlyProposed bool) (bool, error) {
	where := "id = $3"
	if onlyProposed {
		where = fmt.Sprintf("id = $3 AND status = '%s'", ledger.Proposed)
	}
	query, err := NewUpdate(db.table).Set("status, purpose").Where(where).Compile()
	if err != nil {
		return false, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, reason)
	res, err := db.writeDB.ExecContext(ctx, query, string(ledger.Canceled), reason, string(id))
	if err != nil {
		return false, errors.Wrapf(err, "error canceling transaction [%s]", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "error canceling transaction [%s]", id)
	}
	return n > 0, nil
}

func (db *TransactionStore) SetTokens(ctx context.Context, id ledger.TransactionID, refs []ledger.TokenRef) error {
	query, err := NewUpdate(db.table).Set("tokens").Where("id = $2").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	tokens, err := marshalJSON(tokenRefsToStorage(refs))
	if err != nil {
		return err
	}
	logger.Debug(query, id)
	_, err = db.writeDB.ExecContext(ctx, query, tokens, string(id))
	return errors.Wrapf(err, "error updating transaction tokens [%s]", id)
}

func (db *TransactionStore) ListByScholar(ctx context.Context, scholar ledger.ScholarID) ([]*ledger.Transaction, error) {
	query, err := NewSelect(txColumns).
		From(db.table).
		Where("creator = $1 OR from_scholar = $2 OR to_scholar = $3").
		OrderBy("created_at DESC, id").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, scholar)
	s := string(scholar)
	return db.list(ctx, query, s, s, s)
}

func (db *TransactionStore) ListByVenue(ctx context.Context, venue ledger.VenueID) ([]*ledger.Transaction, error) {
	query, err := NewSelect(txColumns).
		From(db.table).
		Where("from_venue = $1 OR to_venue = $2").
		OrderBy("created_at DESC, id").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, venue)
	v := string(venue)
	return db.list(ctx, query, v, v)
}

func (db *TransactionStore) list(ctx context.Context, query string, args ...any) ([]*ledger.Transaction, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying transactions")
	}
	defer Close(rows)

	var txs []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning transaction")
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (*ledger.Transaction, error) {
	var (
		tx                     ledger.Transaction
		id, creator            string
		fromScholar, fromVenue sql.NullString
		toScholar, toVenue     sql.NullString
		tokens                 string
		currency, status       string
	)
	err := row.Scan(&id, &creator, &fromScholar, &fromVenue, &toScholar, &toVenue, &tokens, &currency, &tx.Purpose, &status, &tx.Created)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := unmarshalJSON(tokens, &raw); err != nil {
		return nil, err
	}
	tx.ID = ledger.TransactionID(id)
	tx.Creator = ledger.ScholarID(creator)
	tx.From = holderFromColumns(fromScholar, fromVenue)
	tx.To = holderFromColumns(toScholar, toVenue)
	tx.Tokens = tokenRefsFromStorage(raw)
	tx.Currency = ledger.CurrencyID(currency)
	tx.Status = ledger.TransactionStatus(status)
	return &tx, nil
}

func (db *TransactionStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Transactions
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			creator TEXT NOT NULL,
			from_scholar TEXT,
			from_venue TEXT,
			to_scholar TEXT,
			to_venue TEXT,
			tokens TEXT NOT NULL,
			currency TEXT NOT NULL,
			purpose TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_status ON %s ( status );`,
		db.table, db.table, db.table,
	)
}
