/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import "fmt"

// HolderKind discriminates the two kinds of token holders.
type HolderKind uint8

const (
	HolderNone HolderKind = iota
	HolderScholar
	HolderVenue
)

// Holder identifies the owner of tokens: a scholar or a venue, never both.
// The zero value holds nothing and is invalid as a transaction party.
type Holder struct {
	kind HolderKind
	id   string
}

func ScholarHolder(id ScholarID) Holder {
	return Holder{kind: HolderScholar, id: string(id)}
}

func VenueHolder(id VenueID) Holder {
	return Holder{kind: HolderVenue, id: string(id)}
}

func (h Holder) Kind() HolderKind { return h.kind }

func (h Holder) IsZero() bool { return h.kind == HolderNone }

// Scholar returns the scholar ID and true if the holder is a scholar.
func (h Holder) Scholar() (ScholarID, bool) {
	if h.kind != HolderScholar {
		return "", false
	}
	return ScholarID(h.id), true
}

// Venue returns the venue ID and true if the holder is a venue.
func (h Holder) Venue() (VenueID, bool) {
	if h.kind != HolderVenue {
		return "", false
	}
	return VenueID(h.id), true
}

// ID returns the raw identifier regardless of kind.
func (h Holder) ID() string { return h.id }

func (h Holder) String() string {
	switch h.kind {
	case HolderScholar:
		return fmt.Sprintf("scholar[%s]", h.id)
	case HolderVenue:
		return fmt.Sprintf("venue[%s]", h.id)
	default:
		return "none"
	}
}

// Equal reports whether two holders name the same party.
func (h Holder) Equal(other Holder) bool {
	return h.kind == other.kind && h.id == other.id
}
