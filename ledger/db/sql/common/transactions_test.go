/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/gomega"
	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/common"
)

const txColumnsPattern = "id, creator, from_scholar, from_venue, to_scholar, to_venue, tokens, currency, purpose, status, created_at"

func mockTransactionStore(db *sql.DB) *common.TransactionStore {
	store, err := common.NewTransactionStore(db, db, common.NewDBOpts{})
	Expect(err).ToNot(HaveOccurred())
	return store
}

func txColumnNames() []string {
	return []string{"id", "creator", "from_scholar", "from_venue", "to_scholar", "to_venue", "tokens", "currency", "purpose", "status", "created_at"}
}

func TestInsertTransaction(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.
		ExpectExec("INSERT INTO transactions \\("+txColumnsPattern+"\\) VALUES \\(\\$1, \\$2, \\$3, \\$4, \\$5, \\$6, \\$7, \\$8, \\$9, \\$10, \\$11\\)").
		WithArgs("tx1", "alice", nil, "venue1", "bob", nil,
			`["`+ledger.NullUUID+`","tok2"]`, "cur1", "a gift", "proposed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = mockTransactionStore(db).Insert(context.Background(), &ledger.Transaction{
		ID:       "tx1",
		Creator:  "alice",
		From:     ledger.VenueHolder("venue1"),
		To:       ledger.ScholarHolder("bob"),
		Tokens:   []ledger.TokenRef{ledger.PlaceholderToken(), ledger.RealToken("tok2")},
		Currency: "cur1",
		Purpose:  "a gift",
		Status:   ledger.Proposed,
	})

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
}

func TestGetTransactionDecodesPlaceholders(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	created := time.Now().UTC()
	mockDB.
		ExpectQuery("SELECT "+txColumnsPattern+" FROM transactions WHERE id = \\$1").
		WithArgs("tx1").
		WillReturnRows(mockDB.NewRows(txColumnNames()).
			AddRow("tx1", "alice", "alice", nil, nil, "venue1",
				`["`+ledger.NullUUID+`","tok2"]`, "cur1", "submission fee", "proposed", created))

	tx, err := mockTransactionStore(db).Get(context.Background(), "tx1")

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
	Expect(tx).ToNot(BeNil())
	Expect(tx.From).To(Equal(ledger.ScholarHolder("alice")))
	Expect(tx.To).To(Equal(ledger.VenueHolder("venue1")))
	Expect(tx.Tokens).To(HaveLen(2))
	Expect(tx.Tokens[0].Placeholder()).To(BeTrue())
	id, ok := tx.Tokens[1].ID()
	Expect(ok).To(BeTrue())
	Expect(id).To(Equal(ledger.TokenID("tok2")))
}

func TestGetTransactionNotFound(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.
		ExpectQuery("SELECT " + txColumnsPattern + " FROM transactions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(mockDB.NewRows(txColumnNames()))

	tx, err := mockTransactionStore(db).Get(context.Background(), "missing")

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
	Expect(tx).To(BeNil())
}

func TestUpdateStatusIfLosesRace(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.
		ExpectExec("UPDATE transactions SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
		WithArgs("approved", "tx1", "proposed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := mockTransactionStore(db).UpdateStatusIf(context.Background(), "tx1", ledger.Proposed, ledger.Approved)

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
	Expect(won).To(BeFalse())
}

func TestCancelOnlyProposed(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.
		ExpectExec("UPDATE transactions SET status = \\$1, purpose = \\$2 WHERE id = \\$3 AND status = 'proposed'").
		WithArgs("canceled", "no longer needed", "tx1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := mockTransactionStore(db).Cancel(context.Background(), "tx1", "no longer needed", true)

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
	Expect(done).To(BeTrue())
}

func TestSetTokens(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	mockDB.
		ExpectExec("UPDATE transactions SET tokens = \\$1 WHERE id = \\$2").
		WithArgs(`["tok1","tok2"]`, "tx1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = mockTransactionStore(db).SetTokens(context.Background(), "tx1",
		ledger.RealTokens([]ledger.TokenID{"tok1", "tok2"}))

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
}

func TestListByScholar(t *testing.T) {
	RegisterTestingT(t)
	db, mockDB, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())

	created := time.Now().UTC()
	mockDB.
		ExpectQuery("SELECT "+txColumnsPattern+" FROM transactions "+
			"WHERE creator = \\$1 OR from_scholar = \\$2 OR to_scholar = \\$3 "+
			"ORDER BY created_at DESC, id").
		WithArgs("alice", "alice", "alice").
		WillReturnRows(mockDB.NewRows(txColumnNames()).
			AddRow("tx2", "alice", "alice", nil, "bob", nil, `["tok1"]`, "cur1", "a gift", "approved", created).
			AddRow("tx1", "bob", "bob", nil, "alice", nil, `["tok2"]`, "cur1", "repayment", "approved", created.Add(-time.Hour)))

	txs, err := mockTransactionStore(db).ListByScholar(context.Background(), "alice")

	Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	Expect(err).ToNot(HaveOccurred())
	Expect(txs).To(HaveLen(2))
	Expect(txs[0].ID).To(Equal(ledger.TransactionID("tx2")))
	Expect(txs[1].ID).To(Equal(ledger.TransactionID("tx1")))
}
