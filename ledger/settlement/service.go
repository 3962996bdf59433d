/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package settlement implements the domain operations that synthesize ledger
// transactions as side effects: volunteering, assignment completion, venue
// proposal approval, and submission charges.
package settlement

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-uuid"
	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/engine"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	"github.com/reciprocalreviews/ledger/ledger/notify"
)

var logger = logging.MustGetLogger("rrledger.settlement")

// Service wires the domain stores to the ledger engine.
type Service struct {
	stores     *driver.Stores
	engine     *engine.Engine
	resolver   *identity.Resolver
	dispatcher notify.Dispatcher
}

func New(stores *driver.Stores, eng *engine.Engine, resolver *identity.Resolver, dispatcher notify.Dispatcher) *Service {
	return &Service{
		stores:     stores,
		engine:     eng,
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

// CreateVolunteer records a scholar's commitment to a role. The scholar's
// first commitment to the venue triggers a welcome grant.
func (s *Service) CreateVolunteer(ctx context.Context, scholar ledger.ScholarID, role ledger.RoleID, expertise string) (*ledger.Volunteer, error) {
	r, venue, err := s.roleAndVenue(ctx, role)
	if err != nil {
		return nil, err
	}
	existing, err := s.stores.Roles.FindVolunteer(ctx, scholar, role)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed checking commitments")
	}
	if existing != nil {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeAlreadyVolunteered, "scholar [%s] already volunteers for [%s]", scholar, role)
	}
	prior, err := s.stores.Roles.CountScholarVolunteeringInVenue(ctx, scholar, r.Venue)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed counting commitments")
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate volunteer id")
	}
	volunteer := &ledger.Volunteer{
		ID:        ledger.VolunteerID(id),
		Scholar:   scholar,
		Role:      role,
		Active:    true,
		Accepted:  ledger.InviteAccepted,
		Expertise: expertise,
	}
	if err := s.stores.Roles.InsertVolunteer(ctx, volunteer); err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed recording commitment")
	}

	if prior == 0 {
		s.welcomeGrant(ctx, scholar, venue)
	}
	return volunteer, nil
}

// InviteToRole creates invited, inactive commitments for scholars matched by
// the given email addresses, and enqueues an invitation for each. Addresses
// that match no scholar are returned for the caller to follow up on.
func (s *Service) InviteToRole(ctx context.Context, role ledger.RoleID, emails []string) ([]*ledger.Volunteer, []string, error) {
	r, venue, err := s.roleAndVenue(ctx, role)
	if err != nil {
		return nil, nil, err
	}

	var (
		invited    []*ledger.Volunteer
		unresolved []string
	)
	for _, email := range emails {
		scholar, err := s.resolver.ResolveScholarIdentifier(ctx, email)
		if err != nil {
			return invited, unresolved, err
		}
		if scholar == nil {
			unresolved = append(unresolved, email)
			continue
		}
		existing, err := s.stores.Roles.FindVolunteer(ctx, scholar.ID, role)
		if err != nil {
			return invited, unresolved, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed checking commitments")
		}
		if existing != nil {
			logger.Debugf("scholar [%s] already has a commitment to [%s], skipping invite", scholar.ID, role)
			continue
		}
		id, err := uuid.GenerateUUID()
		if err != nil {
			return invited, unresolved, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate volunteer id")
		}
		volunteer := &ledger.Volunteer{
			ID:       ledger.VolunteerID(id),
			Scholar:  scholar.ID,
			Role:     role,
			Active:   false,
			Accepted: ledger.InviteInvited,
		}
		if err := s.stores.Roles.InsertVolunteer(ctx, volunteer); err != nil {
			return invited, unresolved, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed recording invite")
		}
		invited = append(invited, volunteer)

		recipient := notify.Recipient{Scholar: scholar.ID, Address: scholar.Email, Venue: venue.ID}
		if err := s.dispatcher.Enqueue(ctx, []notify.Recipient{recipient}, notify.EventRoleInvite, map[string]string{
			"role":  r.Name,
			"venue": venue.Title,
		}); err != nil {
			logger.Warnf("failed enqueueing invite for [%s]: %s", scholar.ID, err)
		}
	}
	return invited, unresolved, nil
}

// AcceptRoleInvite activates an invited commitment. A scholar's first
// accepted commitment to the venue triggers the welcome grant.
func (s *Service) AcceptRoleInvite(ctx context.Context, id ledger.VolunteerID) error {
	volunteer, err := s.stores.Roles.GetVolunteer(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading commitment [%s]", id)
	}
	if volunteer == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownRole, "volunteer commitment [%s] does not exist", id)
	}
	_, venue, err := s.roleAndVenue(ctx, volunteer.Role)
	if err != nil {
		return err
	}

	accepted, err := s.stores.Roles.AcceptVolunteer(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed accepting [%s]", id)
	}
	if !accepted {
		return ledger.E(ledger.KindConflict, ledger.CodeAlreadyVolunteered, "invite [%s] was already answered", id)
	}

	count, err := s.stores.Roles.CountScholarVolunteeringInVenue(ctx, volunteer.Scholar, venue.ID)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed counting commitments")
	}
	if count == 1 {
		s.welcomeGrant(ctx, volunteer.Scholar, venue)
	}
	return nil
}

// CompleteAssignment marks a reviewing or editing assignment done and
// proposes the role's compensation grant. The grant is fire-and-forget: a
// failure to record it is logged but does not undo the completion.
func (s *Service) CompleteAssignment(ctx context.Context, id ledger.AssignmentID) error {
	assignment, err := s.stores.Roles.GetAssignment(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading assignment [%s]", id)
	}
	if assignment == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownAssignment, "assignment [%s] does not exist", id)
	}
	role, venue, err := s.roleAndVenue(ctx, assignment.Role)
	if err != nil {
		return err
	}

	done, err := s.stores.Roles.MarkCompleted(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed completing [%s]", id)
	}
	if !done {
		return ledger.E(ledger.KindConflict, ledger.CodeAlreadyCompleted, "assignment [%s] is already completed", id)
	}

	purpose := fmt.Sprintf("Compensation for %s duties on submission %s", role.Name, assignment.Submission)
	_, err = s.engine.CreateTransaction(ctx, assignment.Scholar,
		ledger.VenueHolder(venue.ID), ledger.ScholarHolder(assignment.Scholar),
		ledger.Placeholders(role.Amount), venue.Currency, purpose, ledger.Proposed)
	if err != nil {
		logger.Errorf("assignment [%s] completed but compensation grant failed: %s", id, err)
		return nil
	}
	s.notifyScholar(ctx, assignment.Scholar, venue, notify.EventAssignmentCompleted, map[string]string{
		"venue":  venue.Title,
		"amount": strconv.Itoa(role.Amount),
	})
	return nil
}

// welcomeGrant proposes a venue's welcome amount for a scholar's first
// commitment. Fire-and-forget relative to the triggering operation.
func (s *Service) welcomeGrant(ctx context.Context, scholar ledger.ScholarID, venue *ledger.Venue) {
	if venue.WelcomeAmount <= 0 {
		return
	}
	_, err := s.engine.CreateTransaction(ctx, scholar,
		ledger.VenueHolder(venue.ID), ledger.ScholarHolder(scholar),
		ledger.Placeholders(venue.WelcomeAmount), venue.Currency,
		fmt.Sprintf("Welcome grant for joining %s", venue.Title), ledger.Proposed)
	if err != nil {
		logger.Errorf("welcome grant for [%s] at [%s] failed: %s", scholar, venue.ID, err)
		return
	}
	s.notifyScholar(ctx, scholar, venue, notify.EventWelcomeGrant, map[string]string{
		"venue":  venue.Title,
		"amount": strconv.Itoa(venue.WelcomeAmount),
	})
}

func (s *Service) notifyScholar(ctx context.Context, id ledger.ScholarID, venue *ledger.Venue, event string, args map[string]string) {
	scholar, err := s.resolver.Scholar(ctx, id)
	if err != nil || scholar == nil {
		logger.Warnf("cannot notify scholar [%s]: %v", id, err)
		return
	}
	recipient := notify.Recipient{Scholar: scholar.ID, Address: scholar.Email, Venue: venue.ID}
	if err := s.dispatcher.Enqueue(ctx, []notify.Recipient{recipient}, event, args); err != nil {
		logger.Warnf("failed enqueueing [%s] notification for [%s]: %s", event, id, err)
	}
}

func (s *Service) roleAndVenue(ctx context.Context, id ledger.RoleID) (*ledger.Role, *ledger.Venue, error) {
	role, err := s.stores.Roles.GetRole(ctx, id)
	if err != nil {
		return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading role [%s]", id)
	}
	if role == nil {
		return nil, nil, ledger.E(ledger.KindNotFound, ledger.CodeUnknownRole, "role [%s] does not exist", id)
	}
	venue, err := s.stores.Venues.GetVenue(ctx, role.Venue)
	if err != nil {
		return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading venue [%s]", role.Venue)
	}
	if venue == nil {
		return nil, nil, ledger.E(ledger.KindNotFound, ledger.CodeUnknownVenue, "venue [%s] does not exist", role.Venue)
	}
	return role, venue, nil
}
