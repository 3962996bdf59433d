/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ledger activity. All counters are labeled by currency
// except notifications, which are labeled by event.
type Metrics struct {
	TokensMinted         *prometheus.CounterVec
	TokensTransferred    *prometheus.CounterVec
	TransactionsCreated  *prometheus.CounterVec
	TransactionsApproved *prometheus.CounterVec
	TransactionsCanceled *prometheus.CounterVec
	TransferConflicts    *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "tokens_minted_total",
			Help:      "Number of tokens minted.",
		}, []string{"currency"}),
		TokensTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "tokens_transferred_total",
			Help:      "Number of tokens transferred between holders.",
		}, []string{"currency"}),
		TransactionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "transactions_created_total",
			Help:      "Number of transactions recorded.",
		}, []string{"currency"}),
		TransactionsApproved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "transactions_approved_total",
			Help:      "Number of proposed transactions approved.",
		}, []string{"currency"}),
		TransactionsCanceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "transactions_canceled_total",
			Help:      "Number of proposed transactions canceled.",
		}, []string{"currency"}),
		TransferConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "transfer_conflicts_total",
			Help:      "Number of transfers that lost a token to a concurrent transfer.",
		}, []string{"currency"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rrledger",
			Name:      "notifications_enqueued_total",
			Help:      "Number of notification emails enqueued.",
		}, []string{"event"}),
	}
	registerer.MustRegister(
		m.TokensMinted,
		m.TokensTransferred,
		m.TransactionsCreated,
		m.TransactionsApproved,
		m.TransactionsCanceled,
		m.TransferConflicts,
		m.Notifications,
	)
	return m
}

// NewUnregistered returns metrics bound to a private registry, for tests and
// embedded use.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
