/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package engine implements the token ledger state machine: minting,
// transfers, and the proposal/approval/cancellation lifecycle of
// transactions.
package engine

import (
	"context"
	"strconv"

	"github.com/hashicorp/go-uuid"
	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
	"github.com/reciprocalreviews/ledger/ledger/notify"
)

var logger = logging.MustGetLogger("rrledger.engine")

// CancelPolicy decides which transactions may be canceled.
type CancelPolicy string

const (
	// CancelProposedOnly rejects cancellation of approved or already
	// canceled transactions. This is the default.
	CancelProposedOnly CancelPolicy = "proposed-only"
	// CancelAny permits canceling any transaction, e.g. for audit
	// corrections. Tokens moved by an approved transaction stay moved.
	CancelAny CancelPolicy = "any"
)

// Config tunes engine policy.
type Config struct {
	CancelPolicy CancelPolicy
}

// TransferResult reports a settled transfer.
type TransferResult struct {
	Transaction ledger.TransactionID
	Tokens      []ledger.TokenID
}

// Engine coordinates the token store, transaction store, identity resolution
// and notifications. It holds no durable state of its own.
type Engine struct {
	tokens       driver.TokenStore
	transactions driver.TransactionStore
	venues       driver.VenueStore
	resolver     *identity.Resolver
	dispatcher   notify.Dispatcher
	metrics      *metrics.Metrics
	cancelPolicy CancelPolicy
}

func New(stores *driver.Stores, resolver *identity.Resolver, dispatcher notify.Dispatcher, m *metrics.Metrics, cfg Config) *Engine {
	policy := cfg.CancelPolicy
	if policy == "" {
		policy = CancelProposedOnly
	}
	return &Engine{
		tokens:       stores.Tokens,
		transactions: stores.Transactions,
		venues:       stores.Venues,
		resolver:     resolver,
		dispatcher:   dispatcher,
		metrics:      m,
		cancelPolicy: policy,
	}
}

// MintTokens creates count new tokens in the currency, held by holder.
// Authorization (the caller being a minter of the currency) is enforced by
// the surface layer before this call.
func (e *Engine) MintTokens(ctx context.Context, currency ledger.CurrencyID, holder ledger.Holder, count int) ([]ledger.TokenID, error) {
	cur, err := e.venues.GetCurrency(ctx, currency)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading currency [%s]", currency)
	}
	if cur == nil {
		return nil, ledger.E(ledger.KindNotFound, ledger.CodeUnknownCurrency, "currency [%s] does not exist", currency)
	}
	ids, err := e.tokens.Mint(ctx, currency, holder, count)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed minting [%d] tokens in [%s]", count, currency)
	}
	e.metrics.TokensMinted.WithLabelValues(string(currency)).Add(float64(count))
	logger.Infof("minted [%d] tokens in [%s] for %s", count, currency, holder)
	return ids, nil
}

// CreateTransaction records the intent to move tokens. No token moves here;
// a Proposed transaction may carry placeholder references to tokens that
// will be minted at approval time.
func (e *Engine) CreateTransaction(ctx context.Context, creator ledger.ScholarID, from, to ledger.Holder, tokens []ledger.TokenRef, currency ledger.CurrencyID, purpose string, status ledger.TransactionStatus) (ledger.TransactionID, error) {
	if from.IsZero() {
		return "", ledger.E(ledger.KindValidation, ledger.CodeMissingSource, "transaction requires a source")
	}
	if to.IsZero() {
		return "", ledger.E(ledger.KindValidation, ledger.CodeMissingDestination, "transaction requires a destination")
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed to generate transaction id")
	}
	tx := &ledger.Transaction{
		ID:       ledger.TransactionID(id),
		Creator:  creator,
		From:     from,
		To:       to,
		Tokens:   tokens,
		Currency: currency,
		Purpose:  purpose,
		Status:   status,
	}
	if err := e.transactions.Insert(ctx, tx); err != nil {
		return "", ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed recording transaction")
	}
	e.metrics.TransactionsCreated.WithLabelValues(string(currency)).Inc()
	logger.Debugf("created [%s] transaction [%s]: %s -> %s", status, id, from, to)
	return tx.ID, nil
}

// TransferTokens moves amount tokens from one holder to another, settling an
// existing proposed transaction when existing is set, or recording a fresh
// approved transaction otherwise.
func (e *Engine) TransferTokens(ctx context.Context, creator ledger.ScholarID, currency ledger.CurrencyID, from, to identity.Ref, amount int, purpose string, existing ledger.TransactionID) (*TransferResult, error) {
	if amount < 0 {
		return nil, ledger.E(ledger.KindValidation, ledger.CodeInvalidCharges, "amount must be non-negative, got [%d]", amount)
	}
	fromHolder, err := e.resolver.Resolve(ctx, from)
	if err != nil {
		return nil, err
	}
	toHolder, err := e.resolver.Resolve(ctx, to)
	if err != nil {
		return nil, err
	}
	return e.transfer(ctx, creator, currency, fromHolder, toHolder, amount, purpose, existing, false)
}

// TransferTokensBetweenHolders is TransferTokens for already-resolved
// parties.
func (e *Engine) TransferTokensBetweenHolders(ctx context.Context, creator ledger.ScholarID, currency ledger.CurrencyID, from, to ledger.Holder, amount int, purpose string, existing ledger.TransactionID) (*TransferResult, error) {
	if amount < 0 {
		return nil, ledger.E(ledger.KindValidation, ledger.CodeInvalidCharges, "amount must be non-negative, got [%d]", amount)
	}
	return e.transfer(ctx, creator, currency, from, to, amount, purpose, existing, false)
}

// transfer is the settlement workhorse. When existing names a proposed
// transaction and the caller has not already claimed it, the status is
// claimed with a conditional update before any token moves, so two racing
// settlements of the same transaction cannot both move tokens.
func (e *Engine) transfer(ctx context.Context, creator ledger.ScholarID, currency ledger.CurrencyID, from, to ledger.Holder, amount int, purpose string, existing ledger.TransactionID, claimed bool) (*TransferResult, error) {
	if existing != "" && !claimed {
		won, err := e.transactions.UpdateStatusIf(ctx, existing, ledger.Proposed, ledger.Approved)
		if err != nil {
			return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed approving [%s]", existing)
		}
		if !won {
			return nil, ledger.E(ledger.KindConflict, ledger.CodeAlreadyApproved, "transaction [%s] is no longer pending", existing)
		}
	}

	selected, err := e.tokens.Select(ctx, currency, from, amount)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed selecting tokens")
	}
	if len(selected) < amount {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeInsufficientTokens,
			"%s holds [%d] of the [%d] tokens required in [%s]", from, len(selected), amount, currency)
	}

	moved, err := e.tokens.Transfer(ctx, selected, from, to)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err,
			"transfer failed after moving [%d] of [%d] tokens", len(moved), len(selected))
	}
	if len(moved) < len(selected) {
		// A concurrent transfer won some of the selected tokens. The moved
		// ones stay moved; the caller decides whether to retry.
		e.metrics.TransferConflicts.WithLabelValues(string(currency)).Inc()
		return nil, ledger.E(ledger.KindPartialFailure, ledger.CodePartialTransfer,
			"only [%d] of [%d] tokens could be moved from %s", len(moved), len(selected), from)
	}

	txID := existing
	if existing != "" {
		if err := e.transactions.SetTokens(ctx, existing, ledger.RealTokens(moved)); err != nil {
			return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed recording moved tokens on [%s]", existing)
		}
	} else {
		txID, err = e.CreateTransaction(ctx, creator, from, to, ledger.RealTokens(moved), currency, purpose, ledger.Approved)
		if err != nil {
			return nil, err
		}
	}
	e.metrics.TokensTransferred.WithLabelValues(string(currency)).Add(float64(len(moved)))
	logger.Infof("transferred [%d] tokens in [%s]: %s -> %s", len(moved), currency, from, to)
	return &TransferResult{Transaction: txID, Tokens: moved}, nil
}

// ApproveTransaction settles a proposed transaction whose token list is all
// placeholders: the source is topped up with freshly minted supply, then the
// tokens move to the destination. A conditional status update guarantees
// only one of two racing approvers mints.
func (e *Engine) ApproveTransaction(ctx context.Context, approver ledger.ScholarID, id ledger.TransactionID) (*TransferResult, error) {
	tx, err := e.transactions.Get(ctx, id)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading transaction [%s]", id)
	}
	if tx == nil {
		return nil, ledger.E(ledger.KindNotFound, ledger.CodeUnknownTransaction, "transaction [%s] does not exist", id)
	}
	if tx.Status != ledger.Proposed {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeAlreadyApproved, "transaction [%s] is [%s], not pending", id, tx.Status)
	}
	for _, ref := range tx.Tokens {
		if !ref.Placeholder() {
			return nil, ledger.E(ledger.KindConflict, ledger.CodePendingTransactionHasTokens,
				"transaction [%s] already references minted tokens", id)
		}
	}

	won, err := e.transactions.UpdateStatusIf(ctx, id, ledger.Proposed, ledger.Approved)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed approving [%s]", id)
	}
	if !won {
		return nil, ledger.E(ledger.KindConflict, ledger.CodeAlreadyApproved, "transaction [%s] was settled concurrently", id)
	}

	count := len(tx.Tokens)
	if _, err := e.MintTokens(ctx, tx.Currency, tx.From, count); err != nil {
		return nil, err
	}
	result, err := e.transfer(ctx, approver, tx.Currency, tx.From, tx.To, count, tx.Purpose, id, true)
	if err != nil {
		return nil, err
	}
	e.metrics.TransactionsApproved.WithLabelValues(string(tx.Currency)).Inc()
	e.notifyCreator(ctx, tx, notify.EventTransactionApproved, map[string]string{
		"amount":  strconv.Itoa(count),
		"purpose": tx.Purpose,
	})
	return result, nil
}

// CancelTransaction marks a transaction canceled, overwriting its purpose
// with the reason. No tokens move. Which transactions may be canceled is a
// policy decision; the default rejects anything no longer pending.
func (e *Engine) CancelTransaction(ctx context.Context, id ledger.TransactionID, reason string) error {
	tx, err := e.transactions.Get(ctx, id)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading transaction [%s]", id)
	}
	if tx == nil {
		return ledger.E(ledger.KindNotFound, ledger.CodeUnknownTransaction, "transaction [%s] does not exist", id)
	}
	done, err := e.transactions.Cancel(ctx, id, reason, e.cancelPolicy == CancelProposedOnly)
	if err != nil {
		return ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed canceling [%s]", id)
	}
	if !done {
		return ledger.E(ledger.KindConflict, ledger.CodeAlreadyApproved, "transaction [%s] is no longer pending", id)
	}
	e.metrics.TransactionsCanceled.WithLabelValues(string(tx.Currency)).Inc()
	e.notifyCreator(ctx, tx, notify.EventTransactionCanceled, map[string]string{"reason": reason})
	return nil
}

// notifyCreator enqueues a notification for the transaction's creator.
// Failures are logged; notifications never fail the ledger operation.
func (e *Engine) notifyCreator(ctx context.Context, tx *ledger.Transaction, event string, args map[string]string) {
	scholar, err := e.resolver.Scholar(ctx, tx.Creator)
	if err != nil || scholar == nil {
		logger.Warnf("cannot notify creator of [%s]: %v", tx.ID, err)
		return
	}
	recipients := []notify.Recipient{{Scholar: scholar.ID, Address: scholar.Email}}
	if venue, ok := tx.From.Venue(); ok {
		recipients[0].Venue = venue
	}
	if err := e.dispatcher.Enqueue(ctx, recipients, event, args); err != nil {
		logger.Warnf("failed enqueueing [%s] notification for [%s]: %s", event, tx.ID, err)
	}
}
