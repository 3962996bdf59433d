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

type venueTables struct {
	Venues     string
	Currencies string
	Proposals  string
}

// VenueStore persists venues together with their currencies and the
// proposals they originate from.
type VenueStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   venueTables
}

func NewVenueStore(readDB, writeDB *sql.DB, opts NewDBOpts) (*VenueStore, error) {
	tables, err := GetTableNames(opts.TablePrefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get table names")
	}
	store := &VenueStore{
		readDB:  readDB,
		writeDB: writeDB,
		table: venueTables{
			Venues:     tables.Venues,
			Currencies: tables.Currencies,
			Proposals:  tables.Proposals,
		},
	}
	if opts.CreateSchema {
		if err = InitSchema(writeDB, store.GetSchema()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (db *VenueStore) GetVenue(ctx context.Context, id ledger.VenueID) (*ledger.Venue, error) {
	query, err := NewSelect("id, title, description, url, editors, currency, welcome_amount, submission_cost, edit_amount, bidding").
		From(db.table.Venues).
		Where("id = $1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		v          ledger.Venue
		vid        string
		rawEditors string
	)
	err = row.Scan(&vid, &v.Title, &v.Description, &v.URL, &rawEditors, &v.Currency,
		&v.WelcomeAmount, &v.SubmissionCost, &v.EditAmount, &v.Bidding)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error querying venue [%s]", id)
	}
	var editors []string
	if err := unmarshalJSON(rawEditors, &editors); err != nil {
		return nil, err
	}
	v.ID = ledger.VenueID(vid)
	v.Editors = scholarIDs(editors)
	return &v, nil
}

func (db *VenueStore) InsertVenue(ctx context.Context, venue *ledger.Venue) error {
	query, err := NewInsertInto(db.table.Venues).
		Rows("id, title, description, url, editors, currency, welcome_amount, submission_cost, edit_amount, bidding").
		Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	editors, err := marshalJSON(scholarIDStrings(venue.Editors))
	if err != nil {
		return err
	}
	logger.Debug(query, venue.ID, venue.Title)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(venue.ID), venue.Title, venue.Description, venue.URL, editors,
		string(venue.Currency), venue.WelcomeAmount, venue.SubmissionCost, venue.EditAmount, venue.Bidding,
	)
	return errors.Wrapf(err, "error inserting venue [%s]", venue.ID)
}

func (db *VenueStore) UpdateVenueCosts(ctx context.Context, id ledger.VenueID, welcomeAmount, submissionCost int) error {
	query, err := NewUpdate(db.table.Venues).Set("welcome_amount, submission_cost").Where("id = $3").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, welcomeAmount, submissionCost)
	_, err = db.writeDB.ExecContext(ctx, query, welcomeAmount, submissionCost, string(id))
	return errors.Wrapf(err, "error updating venue [%s]", id)
}

func (db *VenueStore) GetCurrency(ctx context.Context, id ledger.CurrencyID) (*ledger.Currency, error) {
	query, err := NewSelect("id, name, description, minters").
		From(db.table.Currencies).
		Where("id = $1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		c          ledger.Currency
		cid        string
		rawMinters string
	)
	err = row.Scan(&cid, &c.Name, &c.Description, &rawMinters)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error querying currency [%s]", id)
	}
	var minters []string
	if err := unmarshalJSON(rawMinters, &minters); err != nil {
		return nil, err
	}
	c.ID = ledger.CurrencyID(cid)
	c.Minters = scholarIDs(minters)
	return &c, nil
}

func (db *VenueStore) InsertCurrency(ctx context.Context, currency *ledger.Currency) error {
	query, err := NewInsertInto(db.table.Currencies).Rows("id, name, description, minters").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	minters, err := marshalJSON(scholarIDStrings(currency.Minters))
	if err != nil {
		return err
	}
	logger.Debug(query, currency.ID, currency.Name)
	_, err = db.writeDB.ExecContext(ctx, query, string(currency.ID), currency.Name, currency.Description, minters)
	return errors.Wrapf(err, "error inserting currency [%s]", currency.ID)
}

func (db *VenueStore) SetCurrencyMinters(ctx context.Context, id ledger.CurrencyID, minters []ledger.ScholarID) error {
	query, err := NewUpdate(db.table.Currencies).Set("minters").Where("id = $2").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	raw, err := marshalJSON(scholarIDStrings(minters))
	if err != nil {
		return err
	}
	logger.Debug(query, id)
	_, err = db.writeDB.ExecContext(ctx, query, raw, string(id))
	return errors.Wrapf(err, "error updating currency [%s]", id)
}

func (db *VenueStore) GetProposal(ctx context.Context, id ledger.ProposalID) (*ledger.Proposal, error) {
	query, err := NewSelect("id, title, url, editors, census, venue").
		From(db.table.Proposals).
		Where("id = $1").
		Compile()
	if err != nil {
		return nil, errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id)
	row := db.readDB.QueryRowContext(ctx, query, string(id))

	var (
		p          ledger.Proposal
		pid        string
		rawEditors string
		venue      sql.NullString
	)
	err = row.Scan(&pid, &p.Title, &p.URL, &rawEditors, &p.Census, &venue)
	if errors2.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error querying proposal [%s]", id)
	}
	if err := unmarshalJSON(rawEditors, &p.Editors); err != nil {
		return nil, err
	}
	p.ID = ledger.ProposalID(pid)
	if venue.Valid {
		p.Venue = ledger.VenueID(venue.String)
	}
	return &p, nil
}

func (db *VenueStore) InsertProposal(ctx context.Context, proposal *ledger.Proposal) error {
	query, err := NewInsertInto(db.table.Proposals).Rows("id, title, url, editors, census, venue").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	editors, err := marshalJSON(proposal.Editors)
	if err != nil {
		return err
	}
	var venue sql.NullString
	if proposal.Venue != "" {
		venue = sql.NullString{String: string(proposal.Venue), Valid: true}
	}
	logger.Debug(query, proposal.ID, proposal.Title)
	_, err = db.writeDB.ExecContext(ctx, query,
		string(proposal.ID), proposal.Title, proposal.URL, editors, proposal.Census, venue,
	)
	return errors.Wrapf(err, "error inserting proposal [%s]", proposal.ID)
}

func (db *VenueStore) LinkProposalVenue(ctx context.Context, id ledger.ProposalID, venue ledger.VenueID) error {
	query, err := NewUpdate(db.table.Proposals).Set("venue").Where("id = $2").Compile()
	if err != nil {
		return errors.Wrap(err, "failed compiling query")
	}
	logger.Debug(query, id, venue)
	_, err = db.writeDB.ExecContext(ctx, query, string(venue), string(id))
	return errors.Wrapf(err, "error updating proposal [%s]", id)
}

func (db *VenueStore) GetSchema() string {
	return fmt.Sprintf(`
		-- Venues
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			url TEXT NOT NULL,
			editors TEXT NOT NULL,
			currency TEXT NOT NULL,
			welcome_amount INT NOT NULL,
			submission_cost INT NOT NULL,
			edit_amount INT NOT NULL,
			bidding BOOLEAN NOT NULL
		);
		-- Currencies
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			minters TEXT NOT NULL
		);
		-- Proposals
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			editors TEXT NOT NULL,
			census INT NOT NULL,
			venue TEXT
		);`,
		db.table.Venues, db.table.Currencies, db.table.Proposals,
	)
}
