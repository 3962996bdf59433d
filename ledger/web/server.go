/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package web exposes the ledger over HTTP. Every response carries either a
// result payload or a typed error; callers never need to parse free text.
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/engine"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	"github.com/reciprocalreviews/ledger/ledger/settlement"
)

var logger = logging.MustGetLogger("rrledger.web")

// Server routes ledger operations.
type Server struct {
	engine     *engine.Engine
	settlement *settlement.Service
	stores     *driver.Stores
	router     *gin.Engine
}

func NewServer(eng *engine.Engine, svc *settlement.Service, stores *driver.Stores, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:     eng,
		settlement: svc,
		stores:     stores,
		router:     gin.New(),
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	api.POST("/tokens/mint", s.mintTokens)
	api.POST("/transfers", s.transferTokens)
	api.POST("/transactions", s.createTransaction)
	api.POST("/transactions/:id/approve", s.approveTransaction)
	api.POST("/transactions/:id/cancel", s.cancelTransaction)
	api.POST("/charges/verify", s.verifyCharges)
	api.GET("/scholars/:id/transactions", s.scholarTransactions)
	api.GET("/scholars/:id/balance", s.scholarBalance)
	api.GET("/venues/:id/transactions", s.venueTransactions)
	api.GET("/venues/:id/balance", s.venueBalance)
	api.POST("/volunteers", s.createVolunteer)
	api.POST("/volunteers/:id/accept", s.acceptInvite)
	api.POST("/roles/:id/invites", s.inviteToRole)
	api.POST("/assignments/:id/complete", s.completeAssignment)
	api.POST("/submissions", s.createSubmission)
	api.POST("/proposals/:id/approve", s.approveProposal)
	api.POST("/currencies/:id/minters", s.addMinter)
	return s
}

// Run blocks serving HTTP on the address.
func (s *Server) Run(address string) error {
	logger.Infof("listening on %s", address)
	return s.router.Run(address)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// partyRef is the wire form of a transaction party: exactly one field set.
type partyRef struct {
	Scholar    string `json:"scholar"`
	Venue      string `json:"venue"`
	Identifier string `json:"identifier"`
}

func (p partyRef) ref() identity.Ref {
	switch {
	case p.Scholar != "":
		return identity.ScholarRef(ledger.ScholarID(p.Scholar))
	case p.Venue != "":
		return identity.VenueRef(ledger.VenueID(p.Venue))
	case p.Identifier != "":
		return identity.EmailOrORCIDRef(p.Identifier)
	default:
		return identity.Ref{}
	}
}

func (p partyRef) holder() ledger.Holder {
	switch {
	case p.Scholar != "":
		return ledger.ScholarHolder(ledger.ScholarID(p.Scholar))
	case p.Venue != "":
		return ledger.VenueHolder(ledger.VenueID(p.Venue))
	default:
		return ledger.Holder{}
	}
}

type chargeBody struct {
	Scholar string `json:"scholar"`
	Payment *int   `json:"payment"`
}

func charges(in []chargeBody) []ledger.Charge {
	out := make([]ledger.Charge, len(in))
	for i, c := range in {
		out[i] = ledger.Charge{Scholar: c.Scholar, Payment: c.Payment}
	}
	return out
}

func (s *Server) mintTokens(c *gin.Context) {
	var body struct {
		Minter   string   `json:"minter"`
		Currency string   `json:"currency"`
		Holder   partyRef `json:"holder"`
		Count    int      `json:"count"`
	}
	if !bind(c, &body) {
		return
	}
	if !s.requireMinter(c, ledger.CurrencyID(body.Currency), ledger.ScholarID(body.Minter)) {
		return
	}
	ids, err := s.engine.MintTokens(c.Request.Context(), ledger.CurrencyID(body.Currency), body.Holder.holder(), body.Count)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"tokens": ids})
}

func (s *Server) transferTokens(c *gin.Context) {
	var body struct {
		Creator  string   `json:"creator"`
		Currency string   `json:"currency"`
		From     partyRef `json:"from"`
		To       partyRef `json:"to"`
		Amount   int      `json:"amount"`
		Purpose  string   `json:"purpose"`
	}
	if !bind(c, &body) {
		return
	}
	result, err := s.engine.TransferTokens(c.Request.Context(), ledger.ScholarID(body.Creator),
		ledger.CurrencyID(body.Currency), body.From.ref(), body.To.ref(), body.Amount, body.Purpose, "")
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transaction": result.Transaction, "tokens": result.Tokens})
}

func (s *Server) createTransaction(c *gin.Context) {
	var body struct {
		Creator  string   `json:"creator"`
		From     partyRef `json:"from"`
		To       partyRef `json:"to"`
		Amount   int      `json:"amount"`
		Currency string   `json:"currency"`
		Purpose  string   `json:"purpose"`
	}
	if !bind(c, &body) {
		return
	}
	if body.Amount < 0 {
		fail(c, ledger.E(ledger.KindValidation, ledger.CodeInvalidCharges, "amount must be non-negative, got [%d]", body.Amount))
		return
	}
	id, err := s.engine.CreateTransaction(c.Request.Context(), ledger.ScholarID(body.Creator),
		body.From.holder(), body.To.holder(), ledger.Placeholders(body.Amount),
		ledger.CurrencyID(body.Currency), body.Purpose, ledger.Proposed)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transaction": id})
}

func (s *Server) approveTransaction(c *gin.Context) {
	var body struct {
		Approver string `json:"approver"`
	}
	if !bind(c, &body) {
		return
	}
	id := ledger.TransactionID(c.Param("id"))
	tx, err := s.stores.Transactions.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if tx == nil {
		fail(c, ledger.E(ledger.KindNotFound, ledger.CodeUnknownTransaction, "transaction [%s] does not exist", id))
		return
	}
	// only out-of-venue transfers need minter approval
	if _, fromVenue := tx.From.Venue(); fromVenue {
		if !s.requireMinter(c, tx.Currency, ledger.ScholarID(body.Approver)) {
			return
		}
	}
	result, err := s.engine.ApproveTransaction(c.Request.Context(), ledger.ScholarID(body.Approver), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transaction": result.Transaction, "tokens": result.Tokens})
}

func (s *Server) cancelTransaction(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !bind(c, &body) {
		return
	}
	if err := s.engine.CancelTransaction(c.Request.Context(), ledger.TransactionID(c.Param("id")), body.Reason); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"canceled": true})
}

func (s *Server) verifyCharges(c *gin.Context) {
	var body struct {
		Currency string       `json:"currency"`
		Charges  []chargeBody `json:"charges"`
	}
	if !bind(c, &body) {
		return
	}
	var (
		verified bool
		deficits []ledger.Charge
		err      error
	)
	if body.Currency != "" {
		verified, deficits, err = s.engine.VerifyChargesInCurrency(c.Request.Context(), ledger.CurrencyID(body.Currency), charges(body.Charges))
	} else {
		verified, deficits, err = s.engine.VerifyCharges(c.Request.Context(), charges(body.Charges))
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"verified": verified, "deficits": deficits})
}

func (s *Server) scholarTransactions(c *gin.Context) {
	txs, err := s.stores.Transactions.ListByScholar(c.Request.Context(), ledger.ScholarID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transactions": transactionViews(txs)})
}

func (s *Server) venueTransactions(c *gin.Context) {
	txs, err := s.stores.Transactions.ListByVenue(c.Request.Context(), ledger.VenueID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transactions": transactionViews(txs)})
}

func transactionViews(txs []*ledger.Transaction) []gin.H {
	out := make([]gin.H, len(txs))
	for i, tx := range txs {
		out[i] = gin.H{
			"id":       tx.ID,
			"creator":  tx.Creator,
			"from":     tx.From.String(),
			"to":       tx.To.String(),
			"amount":   len(tx.Tokens),
			"currency": tx.Currency,
			"purpose":  tx.Purpose,
			"status":   tx.Status,
			"created":  tx.Created,
		}
	}
	return out
}

func (s *Server) venueBalance(c *gin.Context) {
	id := ledger.VenueID(c.Param("id"))
	venue, err := s.stores.Venues.GetVenue(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if venue == nil {
		fail(c, ledger.E(ledger.KindNotFound, ledger.CodeUnknownVenue, "venue [%s] does not exist", id))
		return
	}
	currency := ledger.CurrencyID(c.Query("currency"))
	if currency == "" {
		currency = venue.Currency
	}
	count, err := s.stores.Tokens.CountHeld(c.Request.Context(), currency, ledger.VenueHolder(id))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"balance": count, "currency": currency})
}

func (s *Server) scholarBalance(c *gin.Context) {
	id := ledger.ScholarID(c.Param("id"))
	if currency := c.Query("currency"); currency != "" {
		count, err := s.stores.Tokens.CountHeld(c.Request.Context(), ledger.CurrencyID(currency), ledger.ScholarHolder(id))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"balance": count, "currency": currency})
		return
	}
	count, err := s.stores.Tokens.ScholarBalance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"balance": count})
}

func (s *Server) createVolunteer(c *gin.Context) {
	var body struct {
		Scholar   string `json:"scholar"`
		Role      string `json:"role"`
		Expertise string `json:"expertise"`
	}
	if !bind(c, &body) {
		return
	}
	volunteer, err := s.settlement.CreateVolunteer(c.Request.Context(),
		ledger.ScholarID(body.Scholar), ledger.RoleID(body.Role), body.Expertise)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"volunteer": volunteer.ID})
}

func (s *Server) acceptInvite(c *gin.Context) {
	if err := s.settlement.AcceptRoleInvite(c.Request.Context(), ledger.VolunteerID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"accepted": true})
}

func (s *Server) inviteToRole(c *gin.Context) {
	var body struct {
		Emails []string `json:"emails"`
	}
	if !bind(c, &body) {
		return
	}
	invited, unresolved, err := s.settlement.InviteToRole(c.Request.Context(), ledger.RoleID(c.Param("id")), body.Emails)
	if err != nil {
		fail(c, err)
		return
	}
	ids := make([]ledger.VolunteerID, len(invited))
	for i, v := range invited {
		ids[i] = v.ID
	}
	ok(c, gin.H{"invited": ids, "unresolved": unresolved})
}

func (s *Server) completeAssignment(c *gin.Context) {
	if err := s.settlement.CompleteAssignment(c.Request.Context(), ledger.AssignmentID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"completed": true})
}

func (s *Server) createSubmission(c *gin.Context) {
	var body struct {
		Creator    string       `json:"creator"`
		Venue      string       `json:"venue"`
		Title      string       `json:"title"`
		Expertise  string       `json:"expertise"`
		ExternalID string       `json:"externalId"`
		Charges    []chargeBody `json:"charges"`
	}
	if !bind(c, &body) {
		return
	}
	submission, deficits, err := s.settlement.CreateSubmission(c.Request.Context(),
		ledger.ScholarID(body.Creator), ledger.VenueID(body.Venue),
		body.Title, body.Expertise, body.ExternalID, charges(body.Charges))
	if err != nil {
		failWith(c, err, gin.H{"deficits": deficits})
		return
	}
	ok(c, gin.H{"submission": submission.ID, "transactions": submission.Transactions})
}

func (s *Server) approveProposal(c *gin.Context) {
	var body struct {
		Steward string `json:"steward"`
	}
	if !bind(c, &body) {
		return
	}
	venue, err := s.settlement.ApproveProposal(c.Request.Context(),
		ledger.ScholarID(body.Steward), ledger.ProposalID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"venue": venue.ID, "currency": venue.Currency})
}

func (s *Server) addMinter(c *gin.Context) {
	var body struct {
		Minter     string `json:"minter"`
		Identifier string `json:"identifier"`
	}
	if !bind(c, &body) {
		return
	}
	currency := ledger.CurrencyID(c.Param("id"))
	var err error
	if body.Identifier != "" {
		err = s.settlement.AddCurrencyMinterByIdentifier(c.Request.Context(), currency, body.Identifier)
	} else {
		err = s.settlement.AddCurrencyMinter(c.Request.Context(), currency, ledger.ScholarID(body.Minter))
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": true})
}

// requireMinter rejects the request unless the scholar mints the currency.
func (s *Server) requireMinter(c *gin.Context, currency ledger.CurrencyID, scholar ledger.ScholarID) bool {
	isMinter, err := s.settlement.IsMinter(c.Request.Context(), currency, scholar)
	if err != nil {
		fail(c, err)
		return false
	}
	if !isMinter {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":    "NotAMinter",
			"message": "only a minter of the currency may do this",
		}})
		return false
	}
	return true
}

func bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "MalformedRequest",
			"message": "the request body could not be parsed",
			"details": err.Error(),
		}})
		return false
	}
	return true
}

func ok(c *gin.Context, result gin.H) {
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func fail(c *gin.Context, err error) {
	failWith(c, err, nil)
}

func failWith(c *gin.Context, err error, extra gin.H) {
	kind := ledger.KindOf(err)
	code := ledger.CodeOf(err)
	payload := gin.H{
		"code":    code,
		"message": ledger.Message(code),
		"details": err.Error(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if kind == ledger.KindInfra {
		logger.Errorf("request failed: %s", err)
	}
	c.JSON(status(kind), gin.H{"error": payload})
}

func status(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindPartialFailure, ledger.KindInfra:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
