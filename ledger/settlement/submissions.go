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
)

// SubmissionStatusReviewing is the initial state of a created submission.
const SubmissionStatusReviewing = "reviewing"

// CreateSubmission records a manuscript and proposes one payment transaction
// per author charge, from the author to the venue. Charges are verified
// against the venue's currency first; when any author cannot pay, no
// submission is created and the deficits are returned alongside the error.
//
// The proposed payments reference real tokens the author already holds, so
// they settle through TransferTokens rather than minting.
func (s *Service) CreateSubmission(ctx context.Context, creator ledger.ScholarID, venueID ledger.VenueID, title, expertise, externalID string, charges []ledger.Charge) (*ledger.Submission, []ledger.Charge, error) {
	venue, err := s.stores.Venues.GetVenue(ctx, venueID)
	if err != nil {
		return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading venue [%s]", venueID)
	}
	if venue == nil {
		return nil, nil, ledger.E(ledger.KindNotFound, ledger.CodeUnknownVenue, "venue [%s] does not exist", venueID)
	}
	if len(charges) == 0 {
		return nil, nil, ledger.E(ledger.KindValidation, ledger.CodeInvalidCharges, "a submission needs at least one author charge")
	}
	if externalID != "" {
		existing, err := s.stores.Submissions.FindByExternalID(ctx, venueID, externalID)
		if err != nil {
			return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed checking for duplicates")
		}
		if existing != nil {
			return nil, nil, ledger.E(ledger.KindConflict, ledger.CodeDuplicateSubmission, "submission [%s] already exists at [%s]", externalID, venueID)
		}
	}

	ok, deficits, err := s.engine.VerifyChargesInCurrency(ctx, venue.Currency, charges)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, deficits, ledger.E(ledger.KindConflict, ledger.CodeInsufficientTokens, "one or more authors cannot cover their charge")
	}

	var (
		authors      []ledger.ScholarID
		payments     []int
		transactions []ledger.TransactionID
	)
	for _, charge := range charges {
		scholar, err := s.resolver.ResolveScholarIdentifier(ctx, charge.Scholar)
		if err != nil {
			return nil, nil, err
		}
		if scholar == nil {
			// Verification resolved this identifier moments ago.
			return nil, nil, ledger.E(ledger.KindNotFound, ledger.CodeScholarNotFound, "no scholar matches [%s]", charge.Scholar)
		}
		amount := *charge.Payment
		earmarked, err := s.stores.Tokens.Select(ctx, venue.Currency, ledger.ScholarHolder(scholar.ID), amount)
		if err != nil {
			return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed selecting tokens for [%s]", scholar.ID)
		}
		if len(earmarked) < amount {
			return nil, nil, ledger.E(ledger.KindConflict, ledger.CodeInsufficientTokens,
				"scholar [%s] holds [%d] of the [%d] tokens charged", scholar.ID, len(earmarked), amount)
		}
		txID, err := s.engine.CreateTransaction(ctx, creator,
			ledger.ScholarHolder(scholar.ID), ledger.VenueHolder(venueID),
			ledger.RealTokens(earmarked), venue.Currency,
			fmt.Sprintf("Submission fee for %q", title), ledger.Proposed)
		if err != nil {
			return nil, nil, err
		}
		authors = append(authors, scholar.ID)
		payments = append(payments, amount)
		transactions = append(transactions, txID)
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate submission id")
	}
	submission := &ledger.Submission{
		ID:           ledger.SubmissionID(id),
		Venue:        venueID,
		Title:        title,
		Expertise:    expertise,
		ExternalID:   externalID,
		Authors:      authors,
		Payments:     payments,
		Transactions: transactions,
		Status:       SubmissionStatusReviewing,
	}
	if err := s.stores.Submissions.Insert(ctx, submission); err != nil {
		return nil, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed recording submission")
	}
	logger.Infof("submission [%s] at [%s] created with [%d] author charges", id, venueID, len(charges))
	return submission, nil, nil
}

// SettleSubmissionCharge approves one of a submission's proposed payment
// transactions, moving the earmarked tokens from the author to the venue.
func (s *Service) SettleSubmissionCharge(ctx context.Context, approver ledger.ScholarID, submissionID ledger.SubmissionID, txID ledger.TransactionID) error {
	submission, err := s.stores.Submissions.Get(ctx, submissionID)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading submission [%s]", submissionID)
	}
	if submission == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownTransaction, "submission [%s] does not exist", submissionID)
	}
	idx := -1
	for i, id := range submission.Transactions {
		if id == txID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownTransaction, "transaction [%s] does not belong to submission [%s]", txID, submissionID)
	}
	venue, err := s.stores.Venues.GetVenue(ctx, submission.Venue)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading venue [%s]", submission.Venue)
	}
	if venue == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownVenue, "venue [%s] does not exist", submission.Venue)
	}
	_, err = s.engine.TransferTokensBetweenHolders(ctx, approver, venue.Currency,
		ledger.ScholarHolder(submission.Authors[idx]), ledger.VenueHolder(venue.ID),
		submission.Payments[idx], "", txID)
	return err
}
