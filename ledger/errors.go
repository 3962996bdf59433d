/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind uint8

const (
	// KindValidation marks malformed input, rejected before any mutation.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing referenced entity.
	KindNotFound
	// KindConflict marks a violated precondition the caller should have
	// checked (insufficient funds, terminal status, duplicates).
	KindConflict
	// KindPartialFailure marks a multi-step mutation that stopped partway.
	// Already-applied steps are not rolled back.
	KindPartialFailure
	// KindInfra marks store or environment failures, opaque to the caller.
	KindInfra
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindPartialFailure:
		return "partial-failure"
	case KindInfra:
		return "infra"
	default:
		return "unknown"
	}
}

// Code names a specific failure. Codes are stable identifiers; the
// user-facing text lives in the message catalog.
type Code string

const (
	CodeMissingSource               Code = "MissingSource"
	CodeMissingDestination          Code = "MissingDestination"
	CodeUnknownParty                Code = "UnknownParty"
	CodeScholarNotFound             Code = "ScholarNotFound"
	CodeUnknownTransaction          Code = "UnknownTransaction"
	CodeUnknownCurrency             Code = "UnknownCurrency"
	CodeUnknownVenue                Code = "UnknownVenue"
	CodeUnknownRole                 Code = "UnknownRole"
	CodeUnknownAssignment           Code = "UnknownAssignment"
	CodeProposalNotFound            Code = "ProposalNotFound"
	CodeAlreadyApproved             Code = "AlreadyApproved"
	CodeAlreadyCompleted            Code = "AlreadyCompleted"
	CodeInsufficientTokens          Code = "InsufficientTokens"
	CodePendingTransactionHasTokens Code = "PendingTransactionHasTokens"
	CodeAlreadyVolunteered          Code = "AlreadyVolunteered"
	CodeAlreadyMinter               Code = "AlreadyMinter"
	CodeProposalNoScholars          Code = "ProposalNoScholars"
	CodeDuplicateSubmission         Code = "DuplicateSubmission"
	CodeInvalidCharges              Code = "InvalidCharges"
	CodeInvalidRecipient            Code = "InvalidRecipient"
	CodeUnknownTemplate             Code = "UnknownTemplate"
	CodePartialTransfer             Code = "PartialTransfer"
	CodeStoreFailure                Code = "StoreFailure"
)

// Error is a typed ledger failure: a kind for control flow, a code for
// identification, and optional detail and cause.
type Error struct {
	Kind   Kind
	Code   Code
	Detail string
	cause  error
}

func (e *Error) Error() string {
	msg := Message(e.Code)
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a ledger error with an optional formatted detail.
func E(kind Kind, code Code, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Kind: kind, Code: code, Detail: detail}
}

// WrapE builds a ledger error around a cause.
func WrapE(kind Kind, code Code, cause error, detail string, args ...any) *Error {
	e := E(kind, code, detail, args...)
	e.cause = cause
	return e
}

// KindOf returns the kind of err, or KindInfra if err is not a ledger error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}

// CodeOf returns the code of err, or CodeStoreFailure for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStoreFailure
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
