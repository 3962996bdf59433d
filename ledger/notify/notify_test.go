/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notify_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/sqlite"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
	"github.com/reciprocalreviews/ledger/ledger/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbCounter atomic.Int64

func newDispatcher(t *testing.T) (*notify.StoreDispatcher, *driver.Stores) {
	t.Helper()
	stores, err := sqlite.OpenMemory(fmt.Sprintf("ntf%d", dbCounter.Add(1)))
	require.NoError(t, err)
	return notify.NewStoreDispatcher(stores.Emails, metrics.NewUnregistered()), stores
}

func TestEnqueueRendersTemplates(t *testing.T) {
	dispatcher, stores := newDispatcher(t)
	ctx := context.Background()

	err := dispatcher.Enqueue(ctx, []notify.Recipient{
		{Scholar: "alice", Address: "alice@example.org", Venue: "venue1"},
	}, notify.EventWelcomeGrant, map[string]string{
		"amount": "40",
		"venue":  "Journal of Tests",
	})
	require.NoError(t, err)

	pending, err := stores.Emails.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ledger.ScholarID("alice"), pending[0].Scholar)
	assert.Equal(t, notify.EventWelcomeGrant, pending[0].Event)
	assert.Contains(t, pending[0].Message, "40 token(s)")
	assert.Contains(t, pending[0].Message, "Journal of Tests")
}

func TestEnqueueSkipsInvalidAddresses(t *testing.T) {
	dispatcher, stores := newDispatcher(t)
	ctx := context.Background()

	err := dispatcher.Enqueue(ctx, []notify.Recipient{
		{Scholar: "ghost", Address: "not-an-address"},
		{Scholar: "bob", Address: "bob@example.org"},
	}, notify.EventTransactionCanceled, map[string]string{"reason": "duplicate"})
	require.NoError(t, err)

	pending, err := stores.Emails.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ledger.ScholarID("bob"), pending[0].Scholar)
}

func TestEnqueueFansOutToEveryRecipient(t *testing.T) {
	dispatcher, stores := newDispatcher(t)
	ctx := context.Background()

	recipients := make([]notify.Recipient, 20)
	for i := range recipients {
		recipients[i] = notify.Recipient{
			Scholar: ledger.ScholarID(fmt.Sprintf("scholar%d", i)),
			Address: fmt.Sprintf("scholar%d@example.org", i),
		}
	}
	err := dispatcher.Enqueue(ctx, recipients, notify.EventRoleInvite, map[string]string{
		"role":  "reviewer",
		"venue": "Journal of Tests",
	})
	require.NoError(t, err)

	pending, err := stores.Emails.ListUnsent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, pending, len(recipients))
}

func TestEnqueueRejectsUnknownEvent(t *testing.T) {
	dispatcher, _ := newDispatcher(t)

	err := dispatcher.Enqueue(context.Background(), []notify.Recipient{
		{Scholar: "alice", Address: "alice@example.org"},
	}, "no_such_event", nil)
	require.Error(t, err)
	assert.True(t, ledger.HasCode(err, ledger.CodeUnknownTemplate))
}

func TestMarkSentDrainsQueue(t *testing.T) {
	dispatcher, stores := newDispatcher(t)
	ctx := context.Background()

	require.NoError(t, dispatcher.Enqueue(ctx, []notify.Recipient{
		{Scholar: "alice", Address: "alice@example.org"},
	}, notify.EventTransactionApproved, map[string]string{"amount": "3", "purpose": "gift"}))

	pending, err := stores.Emails.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, stores.Emails.MarkSent(ctx, pending[0].ID, time.Now()))
	pending, err = stores.Emails.ListUnsent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
