/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package settlement

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-uuid"
	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/notify"
)

// Token economics applied to a venue created from an approved proposal.
const (
	DefaultWelcomeAmount  = 40
	DefaultSubmissionCost = 40
	DefaultEditAmount     = 10
)

// ApproveProposal turns a venue proposal into a venue with its own currency.
// The proposed editors with existing accounts become the venue's editors and
// the currency's minters; approval fails when none of them have accounts.
func (s *Service) ApproveProposal(ctx context.Context, steward ledger.ScholarID, id ledger.ProposalID) (*ledger.Venue, error) {
	proposal, err := s.stores.Venues.GetProposal(ctx, id)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading proposal [%s]", id)
	}
	if proposal == nil {
		return nil, ledger.E(ledger.KindNotFound, ledger.CodeProposalNotFound, "proposal [%s] does not exist", id)
	}
	if proposal.Venue != "" {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeAlreadyApproved, "proposal [%s] already has venue [%s]", id, proposal.Venue)
	}

	var editors []*ledger.Scholar
	for _, email := range proposal.Editors {
		scholar, err := s.resolver.ResolveScholarIdentifier(ctx, email)
		if err != nil {
			return nil, err
		}
		if scholar == nil {
			logger.Warnf("proposed editor [%s] has no account yet", email)
			continue
		}
		editors = append(editors, scholar)
	}
	if len(editors) == 0 {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeProposalNoScholars, "proposal [%s] has no editors with accounts", id)
	}

	editorIDs := make([]ledger.ScholarID, len(editors))
	for i, e := range editors {
		editorIDs[i] = e.ID
	}

	currencyID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate currency id")
	}
	currency := &ledger.Currency{
		ID:          ledger.CurrencyID(currencyID),
		Name:        proposal.Title + " tokens",
		Description: fmt.Sprintf("Review currency of %s", proposal.Title),
		Minters:     editorIDs,
	}
	if err := s.stores.Venues.InsertCurrency(ctx, currency); err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed creating currency for [%s]", id)
	}

	venueID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate venue id")
	}
	venue := &ledger.Venue{
		ID:             ledger.VenueID(venueID),
		Title:          proposal.Title,
		URL:            proposal.URL,
		Editors:        editorIDs,
		Currency:       currency.ID,
		WelcomeAmount:  DefaultWelcomeAmount,
		SubmissionCost: DefaultSubmissionCost,
		EditAmount:     DefaultEditAmount,
	}
	if err := s.stores.Venues.InsertVenue(ctx, venue); err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed creating venue for [%s]", id)
	}
	if err := s.stores.Venues.LinkProposalVenue(ctx, id, venue.ID); err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed linking proposal [%s]", id)
	}
	logger.Infof("proposal [%s] approved by [%s]: venue [%s], currency [%s]", id, steward, venue.ID, currency.ID)

	recipients := make([]notify.Recipient, len(editors))
	for i, e := range editors {
		recipients[i] = notify.Recipient{Scholar: e.ID, Address: e.Email, Venue: venue.ID}
	}
	if err := s.dispatcher.Enqueue(ctx, recipients, notify.EventVenueApproved, map[string]string{"venue": venue.Title}); err != nil {
		logger.Warnf("failed enqueueing approval notifications for [%s]: %s", venue.ID, err)
	}
	return venue, nil
}

// AddCurrencyMinter authorizes a scholar to mint the currency and approve
// its pending transactions.
func (s *Service) AddCurrencyMinter(ctx context.Context, id ledger.CurrencyID, minter ledger.ScholarID) error {
	currency, err := s.stores.Venues.GetCurrency(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading currency [%s]", id)
	}
	if currency == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownCurrency, "currency [%s] does not exist", id)
	}
	scholar, err := s.resolver.Scholar(ctx, minter)
	if err != nil {
		return err
	}
	if scholar == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeScholarNotFound, "scholar [%s] does not exist", minter)
	}
	for _, m := range currency.Minters {
		if m == minter {
			return ledger.E(ledger.KindConflict, ledger.CodeAlreadyMinter, "scholar [%s] already mints [%s]", minter, id)
		}
	}
	minters := append(currency.Minters, minter)
	if err := s.stores.Venues.SetCurrencyMinters(ctx, id, minters); err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed updating minters of [%s]", id)
	}
	logger.Infof("scholar [%s] added as minter of [%s]", minter, id)
	return nil
}

// AddCurrencyMinterByIdentifier resolves an email or ORCID to a scholar and
// authorizes them to mint the currency.
func (s *Service) AddCurrencyMinterByIdentifier(ctx context.Context, id ledger.CurrencyID, identifier string) error {
	scholar, err := s.resolver.ResolveScholarIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if scholar == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeScholarNotFound, "no scholar matches [%s]", identifier)
	}
	return s.AddCurrencyMinter(ctx, id, scholar.ID)
}

// IsMinter reports whether the scholar may mint the currency and approve its
// pending transactions.
func (s *Service) IsMinter(ctx context.Context, id ledger.CurrencyID, scholar ledger.ScholarID) (bool, error) {
	currency, err := s.stores.Venues.GetCurrency(ctx, id)
	if err != nil {
		return false, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading currency [%s]", id)
	}
	if currency == nil {
		return false, ledger.E(ledger.KindNotFound, ledger.CodeUnknownCurrency, "currency [%s] does not exist", id)
	}
	for _, m := range currency.Minters {
		if m == scholar {
			return true, nil
		}
	}
	return false, nil
}
