/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package driver

import (
	"context"
	"time"

	"github.com/reciprocalreviews/ledger/ledger"
)

// TokenStore persists tokens and enforces exclusive ownership on transfer.
type TokenStore interface {
	// Mint creates count new tokens in the given currency owned by holder and
	// returns their identifiers.
	Mint(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder, count int) ([]ledger.TokenID, error)
	// Transfer reassigns the given tokens from expectedFrom to to. Each token
	// moves only if it is still held by expectedFrom. It returns the tokens
	// that actually moved; callers detect contention by comparing lengths.
	Transfer(ctx context.Context, ids []ledger.TokenID, expectedFrom, to ledger.Holder) ([]ledger.TokenID, error)
	// Select returns up to count token ids held by holder in the currency, in
	// a deterministic order.
	Select(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder, count int) ([]ledger.TokenID, error)
	// CountHeld counts the tokens held by holder in the currency.
	CountHeld(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder) (int, error)
	// ScholarBalance counts all tokens held by the scholar across every
	// currency.
	ScholarBalance(ctx context.Context, scholar ledger.ScholarID) (int, error)
	// Get returns a token by id.
	Get(ctx context.Context, id ledger.TokenID) (*ledger.Token, error)
}

// TransactionStore persists transaction records.
type TransactionStore interface {
	Insert(ctx context.Context, tx *ledger.Transaction) error
	Get(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error)
	// UpdateStatusIf moves the transaction from expected to next and reports
	// whether the update won. A false return with a nil error means another
	// writer changed the status first.
	UpdateStatusIf(ctx context.Context, id ledger.TransactionID, expected, next ledger.TransactionStatus) (bool, error)
	// Cancel marks the transaction canceled and overwrites its purpose with
	// reason. When onlyProposed is set the update applies only to proposed
	// transactions; the return reports whether a row changed.
	Cancel(ctx context.Context, id ledger.TransactionID, reason string, onlyProposed bool) (bool, error)
	// SetTokens replaces the transaction's token list.
	SetTokens(ctx context.Context, id ledger.TransactionID, tokens []ledger.TokenRef) error
	// ListByScholar returns transactions where the scholar is creator, source
	// or destination, newest first.
	ListByScholar(ctx context.Context, scholar ledger.ScholarID) ([]*ledger.Transaction, error)
	// ListByVenue returns transactions whose source or destination is the
	// venue, newest first.
	ListByVenue(ctx context.Context, venue ledger.VenueID) ([]*ledger.Transaction, error)
}

// ScholarStore persists scholars.
type ScholarStore interface {
	Get(ctx context.Context, id ledger.ScholarID) (*ledger.Scholar, error)
	// FindByEmailOrORCID resolves a free-form identifier to a scholar. It
	// returns nil when no scholar, or more than one scholar, matches.
	FindByEmailOrORCID(ctx context.Context, identifier string) (*ledger.Scholar, error)
	Insert(ctx context.Context, scholar *ledger.Scholar) error
	SetAvailability(ctx context.Context, id ledger.ScholarID, available bool) error
}

// VenueStore persists venues, currencies and proposals.
type VenueStore interface {
	GetVenue(ctx context.Context, id ledger.VenueID) (*ledger.Venue, error)
	InsertVenue(ctx context.Context, venue *ledger.Venue) error
	UpdateVenueCosts(ctx context.Context, id ledger.VenueID, welcomeAmount, submissionCost int) error

	GetCurrency(ctx context.Context, id ledger.CurrencyID) (*ledger.Currency, error)
	InsertCurrency(ctx context.Context, currency *ledger.Currency) error
	// SetCurrencyMinters replaces the currency's minter list.
	SetCurrencyMinters(ctx context.Context, id ledger.CurrencyID, minters []ledger.ScholarID) error

	GetProposal(ctx context.Context, id ledger.ProposalID) (*ledger.Proposal, error)
	InsertProposal(ctx context.Context, proposal *ledger.Proposal) error
	// LinkProposalVenue records the venue created from the proposal.
	LinkProposalVenue(ctx context.Context, id ledger.ProposalID, venue ledger.VenueID) error
}

// RoleStore persists roles, volunteer commitments and reviewing assignments.
type RoleStore interface {
	GetRole(ctx context.Context, id ledger.RoleID) (*ledger.Role, error)
	InsertRole(ctx context.Context, role *ledger.Role) error

	GetVolunteer(ctx context.Context, id ledger.VolunteerID) (*ledger.Volunteer, error)
	// FindVolunteer returns the scholar's commitment to the role, if any.
	FindVolunteer(ctx context.Context, scholar ledger.ScholarID, role ledger.RoleID) (*ledger.Volunteer, error)
	InsertVolunteer(ctx context.Context, volunteer *ledger.Volunteer) error
	// AcceptVolunteer moves an invited commitment to accepted and reports
	// whether a row changed.
	AcceptVolunteer(ctx context.Context, id ledger.VolunteerID) (bool, error)
	// CountScholarVolunteeringInVenue counts the scholar's commitments to
	// roles of the venue, regardless of invite state.
	CountScholarVolunteeringInVenue(ctx context.Context, scholar ledger.ScholarID, venue ledger.VenueID) (int, error)

	GetAssignment(ctx context.Context, id ledger.AssignmentID) (*ledger.Assignment, error)
	InsertAssignment(ctx context.Context, assignment *ledger.Assignment) error
	// MarkCompleted flips the assignment from incomplete to complete and
	// reports whether the update won.
	MarkCompleted(ctx context.Context, id ledger.AssignmentID) (bool, error)
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	Get(ctx context.Context, id ledger.SubmissionID) (*ledger.Submission, error)
	// FindByExternalID returns the venue's submission with the given external
	// identifier, or nil when none exists.
	FindByExternalID(ctx context.Context, venue ledger.VenueID, externalID string) (*ledger.Submission, error)
	Insert(ctx context.Context, submission *ledger.Submission) error
}

// EmailStore persists queued notifications.
type EmailStore interface {
	Insert(ctx context.Context, email *ledger.Email) error
	// ListUnsent returns queued emails that have not been sent, oldest first.
	ListUnsent(ctx context.Context, limit int) ([]*ledger.Email, error)
	// MarkSent stamps the email with the send time.
	MarkSent(ctx context.Context, id ledger.EmailID, at time.Time) error
}

// Stores bundles every store backed by one database.
type Stores struct {
	Tokens       TokenStore
	Transactions TransactionStore
	Scholars     ScholarStore
	Venues       VenueStore
	Roles        RoleStore
	Submissions  SubmissionStore
	Emails       EmailStore
}

// Driver opens the full store bundle for a data source.
type Driver interface {
	Open(dataSource string) (*Stores, error)
}
