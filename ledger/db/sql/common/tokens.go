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

type TokenStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

func NewTokenStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*TokenStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &TokenStore{
		readDB:  readDB,
		writeDB: writeDB,
		table:   tables.Tokens,
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// holderCondition renders the ownership condition for the holder's kind,
// binding the id as parameter n.
func holderCondition(h ledger.Holder, n int) (string, any, error) {
	if id, ok := h.Scholar(); ok {
		return fmt.Sprintf("holder_scholar = $%d", n), string(id), nil
	}
	if id, ok := h.Venue(); ok {
		return fmt.Sprintf("holder_venue = $%d", n), string(id), nil
	}
	return "", nil, errors.New("token holder is required")
}

func (db *TokenStore) Mint(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder, count int) ([]ledger.TokenID, error) {
	if holder.IsZero() {
		return nil, errors.New("token holder is required")
	}
	if count <= 0 {
		return nil, errors.Errorf("invalid mint count [%d]", count)
	}
	query, err := NewInsertInto(db.table).Rows("id, currency, holder_scholar, holder_venue, created_at").Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	scholar, venue := holderColumns(holder)
	now := time.Now().UTC()

	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed starting transaction")
	}
	ids := make([]ledger.TokenID, 0, count)
	for range count {
		id, err := newID()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		logger.Debug(query, id, currency, holder)
		if _, err := tx.ExecContext(ctx, query, id, currency, scholar, venue, now); err != nil {
			_ = tx.Rollback()
			return nil, errors.Wrapf(err, "error minting token in [%s]", currency)
		}
		ids = append(ids, ledger.TokenID(id))
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed committing mint")
	}
	return ids, nil
}

// Transfer moves each token only if expectedFrom still holds it. Tokens that
// lost the race are left untouched and omitted from the result.
func (db *TokenStore) Transfer(ctx context.Context, ids []ledger.TokenID, expectedFrom, to ledger.Holder) ([]ledger.TokenID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cond, fromArg, err := holderCondition(expectedFrom, 4)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		return nil, errors.New("transfer destination is required")
	}
	query, err := NewUpdate(db.table).
		Set("holder_scholar, holder_venue").
		Where("id = $3 AND " + cond).
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	toScholar, toVenue := holderColumns(to)

	moved := make([]ledger.TokenID, 0, len(ids))
	for _, id := range ids {
		logger.Debug(query, id, expectedFrom, to)
		res, err := db.writeDB.ExecContext(ctx, query, toScholar, toVenue, string(id), fromArg)
		if err != nil {
			return moved, errors.Wrapf(err, "error transferring token [%s]", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return moved, errors.Wrapf(err, "error transferring token [%s]", id)
		}
		if n > 0 {
			moved = append(moved, id)
		}
	}
	return moved, nil
}

func (db *TokenStore) Select(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder, count int) ([]ledger.TokenID, error) {
	cond, arg, err := holderCondition(holder, 2)
	if err != nil {
		return nil, err
	}
	query, err := NewSelect("id").
		From(db.table).
		Where("currency = $1 AND " + cond).
		OrderBy("created_at, id").
		Limit("$3").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, currency, holder, count)
	rows, err := db.readDB.QueryContext(ctx, query, string(currency), arg, count)
	if err != nil {
		return nil, errors.Wrap(err, "error querying tokens")
	}
	defer Close(rows)

	var ids []ledger.TokenID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "error scanning token")
		}
		ids = append(ids, ledger.TokenID(id))
	}
	return ids, rows.Err()
}

func (db *TokenStore) CountHeld(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder) (int, error) {
	cond, arg, err := holderCondition(holder, 2)
	if err != nil {
		return 0, err
	}
	query, err := NewSelect("COUNT(*)").
		From(db.table).
		Where("currency = $1 AND " + cond).
		Compile()
	if err != nil {
		return 0, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, currency, holder)
	var count int
	if err := db.readDB.QueryRowContext(ctx, query, string(currency), arg).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "error counting tokens")
	}
	return count, nil
}

func (db *TokenStore) ScholarBalance(ctx context.Context, scholar ledger.ScholarID) (int, error) {
	query, err := NewSelect("COUNT(*)").
		From(db.table).
		Where("holder_scholar = $1").
		Compile()
	if err != nil {
		return 0, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, scholar)
	var count int
	if err := db.readDB.QueryRowContext(ctx, query, string(scholar)).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "error counting tokens")
	}
	return count, nil
}

func (db *TokenStore) Get(ctx context.Context, id ledger.TokenID) (*ledger.Token, error) {
	query, err := NewSelect("id, currency, holder_scholar, holder_venue, created_at").
		From(db.table).
		Where("id = $1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		tok            ledger.Token
		rawID          string
		scholar, venue sql.NullString
	)
	if err := row.Scan(&rawID, &tok.Currency, &scholar, &venue, &tok.Created); err != nil {
		if errors2.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "error querying token [%s]", id)
	}
	tok.ID = ledger.TokenID(rawID)
	tok.Owner = holderFromColumns(scholar, venue)
	return &tok, nil
}

func (db *TokenStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Tokens
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			currency TEXT NOT NULL,
			holder_scholar TEXT,
			holder_venue TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_holder_scholar ON %s ( holder_scholar );
		CREATE INDEX IF NOT EXISTS idx_%s_holder_venue ON %s ( holder_venue );`,
		db.table, db.table, db.table, db.table, db.table,
	)
}
