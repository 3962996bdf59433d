/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package settlement_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/sqlite"
	"github.com/reciprocalreviews/ledger/ledger/engine"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
	"github.com/reciprocalreviews/ledger/ledger/notify"
	"github.com/reciprocalreviews/ledger/ledger/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbCounter atomic.Int64

type harness struct {
	service  *settlement.Service
	engine   *engine.Engine
	stores   *driver.Stores
	currency ledger.CurrencyID
	venue    ledger.VenueID
	role     ledger.RoleID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stores, err := sqlite.OpenMemory(fmt.Sprintf("stl%d", dbCounter.Add(1)))
	require.NoError(t, err)

	resolver, err := identity.NewResolver(stores.Scholars)
	require.NoError(t, err)
	m := metrics.NewUnregistered()
	dispatcher := notify.NewStoreDispatcher(stores.Emails, m)
	eng := engine.New(stores, resolver, dispatcher, m, engine.Config{})
	svc := settlement.New(stores, eng, resolver, dispatcher)

	h := &harness{
		service:  svc,
		engine:   eng,
		stores:   stores,
		currency: "cur1",
		venue:    "venue1",
		role:     "reviewer",
	}
	ctx := context.Background()
	require.NoError(t, stores.Venues.InsertCurrency(ctx, &ledger.Currency{
		ID:      h.currency,
		Name:    "Test tokens",
		Minters: []ledger.ScholarID{"minter"},
	}))
	require.NoError(t, stores.Venues.InsertVenue(ctx, &ledger.Venue{
		ID:             h.venue,
		Title:          "Journal of Tests",
		Currency:       h.currency,
		WelcomeAmount:  10,
		SubmissionCost: 40,
		EditAmount:     10,
	}))
	require.NoError(t, stores.Roles.InsertRole(ctx, &ledger.Role{
		ID:     h.role,
		Venue:  h.venue,
		Name:   "Reviewer",
		Amount: 10,
	}))
	return h
}

func (h *harness) addScholar(t *testing.T, id ledger.ScholarID, email string) {
	t.Helper()
	require.NoError(t, h.stores.Scholars.Insert(context.Background(), &ledger.Scholar{
		ID:        id,
		Name:      string(id),
		Email:     email,
		Available: true,
	}))
}

func (h *harness) proposedGrants(t *testing.T, scholar ledger.ScholarID) []*ledger.Transaction {
	t.Helper()
	txs, err := h.stores.Transactions.ListByScholar(context.Background(), scholar)
	require.NoError(t, err)
	var proposed []*ledger.Transaction
	for _, tx := range txs {
		if tx.Status == ledger.Proposed {
			proposed = append(proposed, tx)
		}
	}
	return proposed
}

func TestFirstCommitmentTriggersWelcomeGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	volunteer, err := h.service.CreateVolunteer(ctx, "sam", h.role, "distributed systems")
	require.NoError(t, err)
	assert.True(t, volunteer.Active)
	assert.Equal(t, ledger.InviteAccepted, volunteer.Accepted)

	grants := h.proposedGrants(t, "sam")
	require.Len(t, grants, 1)
	assert.Len(t, grants[0].Tokens, 10)
	for _, ref := range grants[0].Tokens {
		assert.True(t, ref.Placeholder())
	}
	assert.Equal(t, ledger.VenueHolder(h.venue), grants[0].From)
	assert.Equal(t, ledger.ScholarHolder("sam"), grants[0].To)

	// balance unchanged until a minter approves
	count, err := h.stores.Tokens.CountHeld(ctx, h.currency, ledger.ScholarHolder("sam"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSecondCommitmentGrantsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	require.NoError(t, h.stores.Roles.InsertRole(ctx, &ledger.Role{
		ID:     "editor",
		Venue:  h.venue,
		Name:   "Editor",
		Amount: 10,
	}))

	_, err := h.service.CreateVolunteer(ctx, "sam", h.role, "")
	require.NoError(t, err)
	_, err = h.service.CreateVolunteer(ctx, "sam", "editor", "")
	require.NoError(t, err)

	assert.Len(t, h.proposedGrants(t, "sam"), 1)

	_, err = h.service.CreateVolunteer(ctx, "sam", h.role, "")
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyVolunteered))
}

func TestInviteAndAccept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	invited, unresolved, err := h.service.InviteToRole(ctx, h.role,
		[]string{"sam@example.org", "ghost@example.org"})
	require.NoError(t, err)
	require.Len(t, invited, 1)
	assert.Equal(t, []string{"ghost@example.org"}, unresolved)
	assert.False(t, invited[0].Active)
	assert.Equal(t, ledger.InviteInvited, invited[0].Accepted)

	// the invite itself grants nothing
	assert.Empty(t, h.proposedGrants(t, "sam"))

	require.NoError(t, h.service.AcceptRoleInvite(ctx, invited[0].ID))
	assert.Len(t, h.proposedGrants(t, "sam"), 1)

	err = h.service.AcceptRoleInvite(ctx, invited[0].ID)
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyVolunteered))
}

func TestCompleteAssignmentProposesCompensation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	require.NoError(t, h.stores.Roles.InsertAssignment(ctx, &ledger.Assignment{
		ID:         "asg1",
		Role:       h.role,
		Scholar:    "sam",
		Submission: "sub1",
		Venue:      h.venue,
		Approved:   true,
	}))

	require.NoError(t, h.service.CompleteAssignment(ctx, "asg1"))

	grants := h.proposedGrants(t, "sam")
	require.Len(t, grants, 1)
	assert.Len(t, grants[0].Tokens, 10)
	assert.Contains(t, grants[0].Purpose, "sub1")

	// completion is idempotent-guarded; no second grant
	err := h.service.CompleteAssignment(ctx, "asg1")
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyCompleted))
	assert.Len(t, h.proposedGrants(t, "sam"), 1)
}

func TestCreateSubmissionChargesAuthors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")
	h.addScholar(t, "bob", "bob@example.org")

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 40)
	require.NoError(t, err)
	_, err = h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("bob"), 20)
	require.NoError(t, err)

	payment := func(n int) *int { return &n }
	submission, deficits, err := h.service.CreateSubmission(ctx, "alice", h.venue,
		"A Study of Tokens", "testing", "ext-1", []ledger.Charge{
			{Scholar: "alice@example.org", Payment: payment(25)},
			{Scholar: "bob@example.org", Payment: payment(15)},
		})
	require.NoError(t, err)
	require.Nil(t, deficits)
	require.Len(t, submission.Transactions, 2)
	assert.Equal(t, []int{25, 15}, submission.Payments)

	// charges are proposed with earmarked real tokens; nothing moved yet
	for _, txID := range submission.Transactions {
		tx, err := h.stores.Transactions.Get(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Proposed, tx.Status)
		for _, ref := range tx.Tokens {
			assert.False(t, ref.Placeholder())
		}
	}
	count, err := h.stores.Tokens.CountHeld(ctx, h.currency, ledger.VenueHolder(h.venue))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// settling the first charge moves alice's tokens to the venue
	require.NoError(t, h.service.SettleSubmissionCharge(ctx, "minter", submission.ID, submission.Transactions[0]))
	count, err = h.stores.Tokens.CountHeld(ctx, h.currency, ledger.VenueHolder(h.venue))
	require.NoError(t, err)
	assert.Equal(t, 25, count)

	err = h.service.SettleSubmissionCharge(ctx, "minter", submission.ID, submission.Transactions[0])
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
}

func TestCreateSubmissionBlockedByDeficit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 3)
	require.NoError(t, err)

	payment := func(n int) *int { return &n }
	submission, deficits, err := h.service.CreateSubmission(ctx, "alice", h.venue,
		"Underfunded", "testing", "ext-2", []ledger.Charge{
			{Scholar: "alice@example.org", Payment: payment(5)},
		})
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeInsufficientTokens))
	assert.Nil(t, submission)
	require.Len(t, deficits, 1)
	assert.Equal(t, -2, *deficits[0].Payment)

	// no mutation happened
	count, err := h.stores.Tokens.CountHeld(ctx, h.currency, ledger.ScholarHolder("alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	found, err := h.stores.Submissions.FindByExternalID(ctx, h.venue, "ext-2")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCreateSubmissionRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 80)
	require.NoError(t, err)

	payment := func(n int) *int { return &n }
	charges := []ledger.Charge{{Scholar: "alice@example.org", Payment: payment(40)}}

	_, _, err = h.service.CreateSubmission(ctx, "alice", h.venue, "First", "", "ext-3", charges)
	require.NoError(t, err)
	_, _, err = h.service.CreateSubmission(ctx, "alice", h.venue, "Again", "", "ext-3", charges)
	assert.True(t, ledger.HasCode(err, ledger.CodeDuplicateSubmission))
}

func TestApproveProposal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "ed", "ed@example.org")
	h.addScholar(t, "steward", "steward@example.org")

	require.NoError(t, h.stores.Venues.InsertProposal(ctx, &ledger.Proposal{
		ID:      "prop1",
		Title:   "Journal of Proposals",
		URL:     "https://example.org",
		Editors: []string{"ed@example.org", "ghost@example.org"},
		Census:  120,
	}))

	venue, err := h.service.ApproveProposal(ctx, "steward", "prop1")
	require.NoError(t, err)
	assert.Equal(t, "Journal of Proposals", venue.Title)
	assert.Equal(t, []ledger.ScholarID{"ed"}, venue.Editors)
	assert.Equal(t, settlement.DefaultWelcomeAmount, venue.WelcomeAmount)
	assert.Equal(t, settlement.DefaultSubmissionCost, venue.SubmissionCost)

	currency, err := h.stores.Venues.GetCurrency(ctx, venue.Currency)
	require.NoError(t, err)
	require.NotNil(t, currency)
	assert.Equal(t, []ledger.ScholarID{"ed"}, currency.Minters)

	proposal, err := h.stores.Venues.GetProposal(ctx, "prop1")
	require.NoError(t, err)
	assert.Equal(t, venue.ID, proposal.Venue)

	_, err = h.service.ApproveProposal(ctx, "steward", "prop1")
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
}

func TestApproveProposalRequiresKnownEditors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.stores.Venues.InsertProposal(ctx, &ledger.Proposal{
		ID:      "prop2",
		Title:   "Ghost Journal",
		Editors: []string{"ghost@example.org"},
	}))

	_, err := h.service.ApproveProposal(ctx, "steward", "prop2")
	assert.True(t, ledger.HasCode(err, ledger.CodeProposalNoScholars))
}

func TestMinterManagement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addScholar(t, "newminter", "newminter@example.org")

	ok, err := h.service.IsMinter(ctx, h.currency, "newminter")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.service.AddCurrencyMinter(ctx, h.currency, "newminter"))

	ok, err = h.service.IsMinter(ctx, h.currency, "newminter")
	require.NoError(t, err)
	assert.True(t, ok)

	err = h.service.AddCurrencyMinter(ctx, h.currency, "newminter")
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyMinter))

	err = h.service.AddCurrencyMinter(ctx, h.currency, "ghost")
	assert.True(t, ledger.HasCode(err, ledger.CodeScholarNotFound))
}
