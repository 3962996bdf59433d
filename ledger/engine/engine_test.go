/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/sqlite"
	"github.com/reciprocalreviews/ledger/ledger/engine"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
	"github.com/reciprocalreviews/ledger/ledger/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbCounter atomic.Int64

type harness struct {
	engine   *engine.Engine
	stores   *driver.Stores
	resolver *identity.Resolver
	currency ledger.CurrencyID
	venue    ledger.VenueID
}

func newHarness(t *testing.T, cfg engine.Config) *harness {
	t.Helper()
	stores, err := sqlite.OpenMemory(fmt.Sprintf("eng%d", dbCounter.Add(1)))
	require.NoError(t, err)

	resolver, err := identity.NewResolver(stores.Scholars)
	require.NoError(t, err)
	m := metrics.NewUnregistered()
	dispatcher := notify.NewStoreDispatcher(stores.Emails, m)
	eng := engine.New(stores, resolver, dispatcher, m, cfg)

	h := &harness{
		engine:   eng,
		stores:   stores,
		resolver: resolver,
		currency: "cur1",
		venue:    "venue1",
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

func (h *harness) countHeld(t *testing.T, holder ledger.Holder) int {
	t.Helper()
	count, err := h.stores.Tokens.CountHeld(context.Background(), h.currency, holder)
	require.NoError(t, err)
	return count
}

func TestSimpleGift(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")
	h.addScholar(t, "bob", "bob@example.org")

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 5)
	require.NoError(t, err)

	result, err := h.engine.TransferTokens(ctx, "alice", h.currency,
		identity.ScholarRef("alice"), identity.ScholarRef("bob"), 3, "gift", "")
	require.NoError(t, err)
	require.Len(t, result.Tokens, 3)

	assert.Equal(t, 2, h.countHeld(t, ledger.ScholarHolder("alice")))
	assert.Equal(t, 3, h.countHeld(t, ledger.ScholarHolder("bob")))

	tx, err := h.stores.Transactions.Get(ctx, result.Transaction)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, ledger.Approved, tx.Status)
	require.Len(t, tx.Tokens, 3)
	for i, ref := range tx.Tokens {
		id, ok := ref.ID()
		require.True(t, ok)
		assert.Equal(t, result.Tokens[i], id)
	}
}

func TestWelcomeGrantThenApproval(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")
	h.addScholar(t, "minter", "minter@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(10), h.currency, "welcome grant", ledger.Proposed)
	require.NoError(t, err)

	// nothing moves before approval
	assert.Equal(t, 0, h.countHeld(t, ledger.ScholarHolder("sam")))
	assert.Equal(t, 0, h.countHeld(t, ledger.VenueHolder(h.venue)))

	result, err := h.engine.ApproveTransaction(ctx, "minter", txID)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 10)

	// minted at the venue, then transferred: the venue nets to zero
	assert.Equal(t, 10, h.countHeld(t, ledger.ScholarHolder("sam")))
	assert.Equal(t, 0, h.countHeld(t, ledger.VenueHolder(h.venue)))

	tx, err := h.stores.Transactions.Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Approved, tx.Status)
	for _, ref := range tx.Tokens {
		assert.False(t, ref.Placeholder())
	}
}

func TestApprovalIsTerminal(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(4), h.currency, "grant", ledger.Proposed)
	require.NoError(t, err)

	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.NoError(t, err)

	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
	assert.Equal(t, 4, h.countHeld(t, ledger.ScholarHolder("sam")))
}

func TestApproveRejectsEarmarkedTokens(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	ids, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 2)
	require.NoError(t, err)

	txID, err := h.engine.CreateTransaction(ctx, "alice",
		ledger.ScholarHolder("alice"), ledger.VenueHolder(h.venue),
		ledger.RealTokens(ids), h.currency, "fee", ledger.Proposed)
	require.NoError(t, err)

	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodePendingTransactionHasTokens))
	assert.Equal(t, 2, h.countHeld(t, ledger.ScholarHolder("alice")))
}

func TestInsufficientTokens(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 2)
	require.NoError(t, err)

	_, err = h.engine.TransferTokens(ctx, "alice", h.currency,
		identity.ScholarRef("alice"), identity.ScholarRef("bob"), 5, "too much", "")
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeInsufficientTokens))
	assert.Equal(t, 2, h.countHeld(t, ledger.ScholarHolder("alice")))
	assert.Equal(t, 0, h.countHeld(t, ledger.ScholarHolder("bob")))
}

func TestCancellationIsTerminal(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(10), h.currency, "welcome grant", ledger.Proposed)
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelTransaction(ctx, txID, "duplicate request"))

	tx, err := h.stores.Transactions.Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Canceled, tx.Status)
	assert.Equal(t, "duplicate request", tx.Purpose)

	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
	assert.Equal(t, 0, h.countHeld(t, ledger.ScholarHolder("sam")))
}

func TestCancelPolicyRejectsSettled(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(2), h.currency, "grant", ledger.Proposed)
	require.NoError(t, err)
	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.NoError(t, err)

	err = h.engine.CancelTransaction(ctx, txID, "take it back")
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
}

func TestCancelPolicyAnyPermitsSettled(t *testing.T) {
	h := newHarness(t, engine.Config{CancelPolicy: engine.CancelAny})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(2), h.currency, "grant", ledger.Proposed)
	require.NoError(t, err)
	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelTransaction(ctx, txID, "audit correction"))
	// cancellation never claws tokens back
	assert.Equal(t, 2, h.countHeld(t, ledger.ScholarHolder("sam")))
}

func TestCreateTransactionValidation(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	_, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.Holder{}, ledger.ScholarHolder("sam"), nil, h.currency, "x", ledger.Proposed)
	assert.True(t, ledger.HasCode(err, ledger.CodeMissingSource))

	_, err = h.engine.CreateTransaction(ctx, "sam",
		ledger.ScholarHolder("sam"), ledger.Holder{}, nil, h.currency, "x", ledger.Proposed)
	assert.True(t, ledger.HasCode(err, ledger.CodeMissingDestination))
}

func TestUnknownPartyAndTransaction(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	_, err := h.engine.TransferTokens(ctx, "alice", h.currency,
		identity.EmailOrORCIDRef("nobody@example.org"), identity.ScholarRef("bob"), 1, "gift", "")
	assert.True(t, ledger.HasCode(err, ledger.CodeUnknownParty))

	_, err = h.engine.ApproveTransaction(ctx, "minter", "no-such-tx")
	assert.True(t, ledger.HasCode(err, ledger.CodeUnknownTransaction))
}

func TestConservationAndBalanceCorrectness(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	minted := 0
	for _, count := range []int{3, 4, 5} {
		_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), count)
		require.NoError(t, err)
		minted += count
	}
	_, err := h.engine.TransferTokens(ctx, "alice", h.currency,
		identity.ScholarRef("alice"), identity.ScholarRef("bob"), 7, "gift", "")
	require.NoError(t, err)
	_, err = h.engine.TransferTokens(ctx, "bob", h.currency,
		identity.ScholarRef("bob"), identity.VenueRef(h.venue), 2, "fee", "")
	require.NoError(t, err)

	alice := h.countHeld(t, ledger.ScholarHolder("alice"))
	bob := h.countHeld(t, ledger.ScholarHolder("bob"))
	venue := h.countHeld(t, ledger.VenueHolder(h.venue))
	assert.Equal(t, 5, alice)
	assert.Equal(t, 5, bob)
	assert.Equal(t, 2, venue)
	assert.Equal(t, minted, alice+bob+venue)
}

func TestConcurrentTransfersNeverDoubleSpend(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 5)
	require.NoError(t, err)

	recipients := []ledger.ScholarID{"bob", "carol"}
	errs := make([]error, len(recipients))
	var wg sync.WaitGroup
	for i, to := range recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.TransferTokens(ctx, "alice", h.currency,
				identity.ScholarRef("alice"), identity.ScholarRef(to), 5, "race", "")
		}()
	}
	wg.Wait()

	// every token moved exactly once
	bob := h.countHeld(t, ledger.ScholarHolder("bob"))
	carol := h.countHeld(t, ledger.ScholarHolder("carol"))
	alice := h.countHeld(t, ledger.ScholarHolder("alice"))
	assert.Equal(t, 5, alice+bob+carol)

	// the losing racer sees a typed failure, never a silent no-op
	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		code := ledger.CodeOf(err)
		assert.Contains(t, []ledger.Code{
			ledger.CodeInsufficientTokens, ledger.CodePartialTransfer,
		}, code)
	}
	assert.LessOrEqual(t, winners, 1)
}

func TestConcurrentApprovalsMintOnce(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(10), h.currency, "grant", ledger.Proposed)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.ApproveTransaction(ctx, "minter", txID)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, ledger.HasCode(err, ledger.CodeAlreadyApproved))
		}
	}
	require.Equal(t, 1, failures)
	// only one approver minted
	assert.Equal(t, 10, h.countHeld(t, ledger.ScholarHolder("sam")))
	assert.Equal(t, 0, h.countHeld(t, ledger.VenueHolder(h.venue)))
}

func TestVerifyCharges(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")

	_, err := h.engine.MintTokens(ctx, h.currency, ledger.ScholarHolder("alice"), 3)
	require.NoError(t, err)

	payment := func(n int) *int { return &n }

	ok, deficits, err := h.engine.VerifyCharges(ctx, []ledger.Charge{
		{Scholar: "alice@example.org", Payment: payment(3)},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, deficits)

	ok, deficits, err = h.engine.VerifyCharges(ctx, []ledger.Charge{
		{Scholar: "alice@example.org", Payment: payment(5)},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, deficits, 1)
	require.NotNil(t, deficits[0].Payment)
	assert.Equal(t, -2, *deficits[0].Payment)

	// unresolved identifiers yield nil payments, signaling "cannot verify"
	ok, deficits, err = h.engine.VerifyCharges(ctx, []ledger.Charge{
		{Scholar: "alice@example.org", Payment: payment(1)},
		{Scholar: "ghost@example.org", Payment: payment(1)},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, deficits, 2)
	assert.Nil(t, deficits[1].Payment)

	_, _, err = h.engine.VerifyCharges(ctx, []ledger.Charge{{Scholar: "alice@example.org"}})
	assert.True(t, ledger.HasCode(err, ledger.CodeInvalidCharges))
}

func TestVerifyChargesInCurrencyIsScoped(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "alice", "alice@example.org")

	require.NoError(t, h.stores.Venues.InsertCurrency(ctx, &ledger.Currency{ID: "cur2", Name: "Other tokens"}))
	_, err := h.engine.MintTokens(ctx, "cur2", ledger.ScholarHolder("alice"), 5)
	require.NoError(t, err)

	payment := func(n int) *int { return &n }
	charges := []ledger.Charge{{Scholar: "alice@example.org", Payment: payment(5)}}

	// the cross-currency sum passes
	ok, _, err := h.engine.VerifyCharges(ctx, charges)
	require.NoError(t, err)
	assert.True(t, ok)

	// the scoped variant sees an empty balance in cur1
	ok, deficits, err := h.engine.VerifyChargesInCurrency(ctx, h.currency, charges)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, deficits, 1)
	assert.Equal(t, -5, *deficits[0].Payment)
}

func TestApprovalNotifiesCreator(t *testing.T) {
	h := newHarness(t, engine.Config{})
	ctx := context.Background()
	h.addScholar(t, "sam", "sam@example.org")

	txID, err := h.engine.CreateTransaction(ctx, "sam",
		ledger.VenueHolder(h.venue), ledger.ScholarHolder("sam"),
		ledger.Placeholders(2), h.currency, "grant", ledger.Proposed)
	require.NoError(t, err)
	_, err = h.engine.ApproveTransaction(ctx, "minter", txID)
	require.NoError(t, err)

	emails, err := h.stores.Emails.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, ledger.ScholarID("sam"), emails[0].Scholar)
	assert.Equal(t, "sam@example.org", emails[0].Address)
	assert.Contains(t, emails[0].Message, "2 token(s)")
}
