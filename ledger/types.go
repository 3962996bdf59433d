/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import "time"

// Identifiers for the entities of the platform. All of them are UUID strings
// generated by the store layer.
type (
	ScholarID     string
	VenueID       string
	CurrencyID    string
	TokenID       string
	TransactionID string
	ProposalID    string
	RoleID        string
	VolunteerID   string
	AssignmentID  string
	SubmissionID  string
	EmailID       string
)

// TransactionStatus is the lifecycle state of a transaction.
// Proposed transitions to Approved or Canceled; both are terminal.
type TransactionStatus string

const (
	Proposed TransactionStatus = "proposed"
	Approved TransactionStatus = "approved"
	Canceled TransactionStatus = "canceled"
)

// Scholar is a platform account, found by ID, email, or ORCID.
type Scholar struct {
	ID        ScholarID
	Name      string
	Email     string
	ORCID     string
	Available bool
	Status    string
	Steward   bool
	Created   time.Time
}

// Currency is a venue-scoped token denomination. Minters are the scholars
// authorized to create supply and approve pending transactions.
type Currency struct {
	ID          CurrencyID
	Name        string
	Description string
	Minters     []ScholarID
}

// Venue is a publication venue with its own currency and token economics.
type Venue struct {
	ID             VenueID
	Title          string
	Description    string
	URL            string
	Editors        []ScholarID
	Currency       CurrencyID
	WelcomeAmount  int
	SubmissionCost int
	EditAmount     int
	Bidding        bool
}

// Token is a single indivisible unit of a currency. Exactly one holder owns
// it at any time.
type Token struct {
	ID       TokenID
	Currency CurrencyID
	Owner    Holder
	Created  time.Time
}

// Transaction records the intent to move tokens from one holder to another.
// Tokens may contain placeholder references while the transaction is Proposed.
type Transaction struct {
	ID       TransactionID
	Creator  ScholarID
	From     Holder
	To       Holder
	Tokens   []TokenRef
	Currency CurrencyID
	Purpose  string
	Status   TransactionStatus
	Created  time.Time
}

// Charge is a prospective payment by a scholar, used during verification and
// submission creation. Scholar is an email, ORCID, or scholar ID. A nil
// Payment means the amount could not be determined (e.g. the scholar did not
// resolve); a negative payment in a verification result is a deficit.
type Charge struct {
	Scholar string
	Payment *int
}

// Proposal is a venue proposal awaiting steward approval. Editors are email
// addresses until approval resolves them to scholar accounts.
type Proposal struct {
	ID      ProposalID
	Title   string
	URL     string
	Editors []string
	Census  int
	Venue   VenueID
}

// Role is a unit of venue labor (reviewing, editing) with a token
// compensation amount.
type Role struct {
	ID          RoleID
	Venue       VenueID
	Name        string
	Description string
	Amount      int
	Invited     bool
	Approver    RoleID
}

// Volunteer is a scholar's commitment to a role. Accepted tracks the invite
// response; Active indicates the commitment is in force.
type Volunteer struct {
	ID        VolunteerID
	Scholar   ScholarID
	Role      RoleID
	Active    bool
	Accepted  string
	Expertise string
	Created   time.Time
}

// Invite responses stored in Volunteer.Accepted.
const (
	InviteInvited  = "invited"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
)

// Assignment is a scholar's reviewing or editing duty on a submission.
type Assignment struct {
	ID         AssignmentID
	Role       RoleID
	Scholar    ScholarID
	Submission SubmissionID
	Venue      VenueID
	Bid        bool
	Approved   bool
	Completed  bool
}

// Submission is a manuscript under review at a venue, along with the author
// charges that paid for it.
type Submission struct {
	ID           SubmissionID
	Venue        VenueID
	Title        string
	Expertise    string
	ExternalID   string
	PreviousID   SubmissionID
	Authors      []ScholarID
	Payments     []int
	Transactions []TransactionID
	Status       string
}

// Email is a queued notification record. Delivery is handled elsewhere; the
// ledger only enqueues.
type Email struct {
	ID       EmailID
	Scholar  ScholarID
	Venue    VenueID
	Address  string
	Event    string
	Subject  string
	Message  string
	TimeSent time.Time
}
