/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

// messages maps error codes to user-facing text. Presentation is kept apart
// from the taxonomy so a different catalog can be swapped in without touching
// error handling.
var messages = map[Code]string{
	CodeMissingSource:               "the transaction has no source to transfer from",
	CodeMissingDestination:          "the transaction has no destination to transfer to",
	CodeUnknownParty:                "unable to find a party of the transfer",
	CodeScholarNotFound:             "unable to find a scholar with this email or ORCID",
	CodeUnknownTransaction:          "unable to find this transaction",
	CodeUnknownCurrency:             "unable to find this currency",
	CodeUnknownVenue:                "unable to find this venue",
	CodeUnknownRole:                 "unable to find this role",
	CodeUnknownAssignment:           "unable to find this assignment",
	CodeProposalNotFound:            "unable to find this venue proposal",
	CodeAlreadyApproved:             "this transaction is already approved or canceled",
	CodeAlreadyCompleted:            "this assignment is already completed",
	CodeInsufficientTokens:          "insufficient number of tokens to transfer",
	CodePendingTransactionHasTokens: "the pending transaction already references minted tokens",
	CodeAlreadyVolunteered:          "already created a volunteer commitment for this role",
	CodeAlreadyMinter:               "this scholar is already a minter",
	CodeProposalNoScholars:          "none of the proposed editors have accounts yet",
	CodeDuplicateSubmission:         "a submission with this identifier already exists at the venue",
	CodeInvalidCharges:              "the submission's charges are invalid",
	CodeInvalidRecipient:            "one or more recipient addresses are malformed",
	CodeUnknownTemplate:             "unknown notification template",
	CodePartialTransfer:             "the transfer stopped partway; some tokens moved",
	CodeStoreFailure:                "the data store failed; try again later",
}

// Message returns the user-facing text for a code.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return string(code)
}
