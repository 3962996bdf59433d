/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"database/sql"
	"encoding/json"

	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"github.com/reciprocalreviews/ledger/ledger"
)

// Close closes a row set and logs the error, for use in defers.
func Close(rows *sql.Rows) {
	if rows == nil {
		return
	}
	if err := rows.Close(); err != nil {
		logger.Errorf("error closing rows: %s", err)
	}
}

// newID returns a fresh UUID string for a primary key.
func newID() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate id")
	}
	return id, nil
}

// holderColumns splits a holder into the scholar and venue columns. Exactly
// one of the two is non-NULL for a valid holder.
func holderColumns(h ledger.Holder) (scholar, venue sql.NullString) {
	if id, ok := h.Scholar(); ok {
		scholar = sql.NullString{String: string(id), Valid: true}
	}
	if id, ok := h.Venue(); ok {
		venue = sql.NullString{String: string(id), Valid: true}
	}
	return
}

// holderFromColumns rebuilds a holder from the two nullable columns.
func holderFromColumns(scholar, venue sql.NullString) ledger.Holder {
	if scholar.Valid {
		return ledger.ScholarHolder(ledger.ScholarID(scholar.String))
	}
	if venue.Valid {
		return ledger.VenueHolder(ledger.VenueID(venue.String))
	}
	return ledger.Holder{}
}

// marshalJSON encodes a list column. Empty lists serialize as [] rather than
// NULL so scans never see invalid JSON.
func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal column")
	}
	return string(raw), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(raw), v), "failed to unmarshal column")
}

// tokenRefsToStorage encodes token references for the transactions table,
// substituting the null UUID for placeholders.
func tokenRefsToStorage(refs []ledger.TokenRef) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.StorageID()
	}
	return out
}

func tokenRefsFromStorage(raw []string) []ledger.TokenRef {
	out := make([]ledger.TokenRef, len(raw))
	for i, s := range raw {
		out[i] = ledger.TokenRefFromStorage(s)
	}
	return out
}

func scholarIDs(raw []string) []ledger.ScholarID {
	out := make([]ledger.ScholarID, len(raw))
	for i, s := range raw {
		out[i] = ledger.ScholarID(s)
	}
	return out
}

func scholarIDStrings(ids []ledger.ScholarID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
