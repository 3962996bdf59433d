/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package notify enqueues email notifications for ledger events. Delivery is
// out of scope; a separate process drains the queue.
package notify

import (
	"bytes"
	"context"
	"net/mail"
	"text/template"

	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"

	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
)

var logger = logging.MustGetLogger("rrledger.notify")

// enqueuePoolSize bounds concurrent email inserts for one event.
const enqueuePoolSize = 8

// Events with a notification template.
const (
	EventTransactionProposed = "transaction_proposed"
	EventTransactionApproved = "transaction_approved"
	EventTransactionCanceled = "transaction_canceled"
	EventRoleInvite          = "role_invite"
	EventVenueApproved       = "venue_approved"
	EventWelcomeGrant        = "welcome_grant"
	EventAssignmentCompleted = "assignment_completed"
)

// Recipient is the target of a notification.
type Recipient struct {
	Scholar ledger.ScholarID
	Address string
	Venue   ledger.VenueID
}

// Dispatcher enqueues notifications.
type Dispatcher interface {
	Enqueue(ctx context.Context, recipients []Recipient, event string, args map[string]string) error
}

type catalogEntry struct {
	subject *template.Template
	body    *template.Template
}

func entry(name, subject, body string) catalogEntry {
	return catalogEntry{
		subject: template.Must(template.New(name + "_subject").Parse(subject)),
		body:    template.Must(template.New(name + "_body").Parse(body)),
	}
}

var catalog = map[string]catalogEntry{
	EventTransactionProposed: entry(EventTransactionProposed,
		"A transaction awaits approval",
		"A transaction of {{.amount}} token(s) was proposed: {{.purpose}}. A minter must approve it before tokens move."),
	EventTransactionApproved: entry(EventTransactionApproved,
		"Your transaction was approved",
		"Your transaction of {{.amount}} token(s) was approved: {{.purpose}}."),
	EventTransactionCanceled: entry(EventTransactionCanceled,
		"Your transaction was canceled",
		"Your proposed transaction was canceled: {{.reason}}."),
	EventRoleInvite: entry(EventRoleInvite,
		"You have been invited to volunteer",
		"You have been invited to serve as {{.role}} at {{.venue}}. Accept the invitation to activate your commitment."),
	EventVenueApproved: entry(EventVenueApproved,
		"Your venue proposal was approved",
		"The proposal for {{.venue}} was approved and the venue now has its own currency. You are listed as an editor."),
	EventWelcomeGrant: entry(EventWelcomeGrant,
		"Welcome tokens granted",
		"You were granted {{.amount}} token(s) by {{.venue}} for your first commitment to the venue. A minter must approve the grant before the tokens arrive."),
	EventAssignmentCompleted: entry(EventAssignmentCompleted,
		"Review compensation granted",
		"Your assignment at {{.venue}} is complete. A grant of {{.amount}} token(s) awaits approval."),
}

// StoreDispatcher renders templates and enqueues them in the email store.
type StoreDispatcher struct {
	emails  driver.EmailStore
	metrics *metrics.Metrics
}

func NewStoreDispatcher(emails driver.EmailStore, m *metrics.Metrics) *StoreDispatcher {
	return &StoreDispatcher{emails: emails, metrics: m}
}

// Enqueue renders the event template once per recipient and inserts the
// resulting emails. Recipients with an invalid address are skipped with a
// warning rather than failing the batch.
func (d *StoreDispatcher) Enqueue(ctx context.Context, recipients []Recipient, event string, args map[string]string) error {
	tmpl, ok := catalog[event]
	if !ok {
		return ledger.E(ledger.KindValidation, ledger.CodeUnknownTemplate, "no template for event [%s]", event)
	}
	subject, err := render(tmpl.subject, args)
	if err != nil {
		return err
	}
	body, err := render(tmpl.body, args)
	if err != nil {
		return err
	}

	inserters := pool.New().WithErrors().WithMaxGoroutines(enqueuePoolSize)
	for _, recipient := range recipients {
		if _, err := mail.ParseAddress(recipient.Address); err != nil {
			logger.Warnf("skipping invalid address for scholar [%s]: %s", recipient.Scholar, err)
			continue
		}
		inserters.Go(func() error {
			id, err := uuid.GenerateUUID()
			if err != nil {
				return errors.Wrap(err, "failed to generate email id")
			}
			email := &ledger.Email{
				ID:      ledger.EmailID(id),
				Scholar: recipient.Scholar,
				Venue:   recipient.Venue,
				Address: recipient.Address,
				Event:   event,
				Subject: subject,
				Message: body,
			}
			if err := d.emails.Insert(ctx, email); err != nil {
				return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to enqueue [%s] notification", event)
			}
			d.metrics.Notifications.WithLabelValues(event).Inc()
			return nil
		})
	}
	return inserters.Wait()
}

func render(tmpl *template.Template, args map[string]string) (string, error) {
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, args); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return buf.String(), nil
}
