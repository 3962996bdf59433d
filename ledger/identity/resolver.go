/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"context"

	"github.com/reciprocalreviews/ledger/ledger"
	"github.com/reciprocalreviews/ledger/ledger/cache"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/logging"
)

var logger = logging.MustGetLogger("rrledger.identity")

// RefKind discriminates the ways a transaction party can be referenced.
type RefKind uint8

const (
	RefScholar RefKind = iota + 1
	RefVenue
	// RefEmailOrORCID is a free-form identifier that must be resolved to a
	// scholar account.
	RefEmailOrORCID
)

// Ref is an unresolved reference to a transaction party.
type Ref struct {
	kind  RefKind
	value string
}

func ScholarRef(id ledger.ScholarID) Ref {
	return Ref{kind: RefScholar, value: string(id)}
}

func VenueRef(id ledger.VenueID) Ref {
	return Ref{kind: RefVenue, value: string(id)}
}

func EmailOrORCIDRef(identifier string) Ref {
	return Ref{kind: RefEmailOrORCID, value: identifier}
}

func (r Ref) Kind() RefKind { return r.kind }

func (r Ref) Value() string { return r.value }

func (r Ref) IsZero() bool { return r.kind == 0 }

// Resolver turns party references into holders, caching scholar lookups.
type Resolver struct {
	scholars driver.ScholarStore
	cache    *cache.Cache[*ledger.Scholar]
}

func NewResolver(scholars driver.ScholarStore) (*Resolver, error) {
	c, err := cache.New[*ledger.Scholar]()
	if err != nil {
		return nil, err
	}
	return &Resolver{scholars: scholars, cache: c}, nil
}

// Resolve maps a reference to a holder. Scholar and venue references pass
// through untouched; free-form identifiers are matched against scholar
// emails and ORCIDs. An unresolved identifier yields an unknown-party error.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (ledger.Holder, error) {
	switch ref.kind {
	case RefScholar:
		return ledger.ScholarHolder(ledger.ScholarID(ref.value)), nil
	case RefVenue:
		return ledger.VenueHolder(ledger.VenueID(ref.value)), nil
	case RefEmailOrORCID:
		scholar, err := r.ResolveScholarIdentifier(ctx, ref.value)
		if err != nil {
			return ledger.Holder{}, err
		}
		if scholar == nil {
			return ledger.Holder{}, ledger.E(ledger.KindNotFound, ledger.CodeUnknownParty, "no scholar matches [%s]", ref.value)
		}
		return ledger.ScholarHolder(scholar.ID), nil
	default:
		return ledger.Holder{}, ledger.E(ledger.KindValidation, ledger.CodeUnknownParty, "empty party reference")
	}
}

// ResolveScholarIdentifier matches an email or ORCID against scholar
// accounts. It returns nil when the identifier matches no scholar or is
// ambiguous. Only positive matches are cached, so a scholar registered after
// a failed lookup resolves immediately.
func (r *Resolver) ResolveScholarIdentifier(ctx context.Context, identifier string) (*ledger.Scholar, error) {
	if scholar, ok := r.cache.Get("id:" + identifier); ok {
		return scholar, nil
	}
	scholar, err := r.scholars.FindByEmailOrORCID(ctx, identifier)
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed resolving [%s]", identifier)
	}
	logger.Debugf("resolved identifier [%s], match [%v]", identifier, scholar != nil)
	if scholar != nil {
		r.cache.Add("id:"+identifier, scholar)
	}
	return scholar, nil
}

// Scholar returns the scholar by ID, from cache when possible. Returns nil
// when the scholar does not exist.
func (r *Resolver) Scholar(ctx context.Context, id ledger.ScholarID) (*ledger.Scholar, error) {
	scholar, _, err := r.cache.GetOrLoad("sid:"+string(id), func() (*ledger.Scholar, error) {
		return r.scholars.Get(ctx, id)
	})
	if err != nil {
		return nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed loading scholar [%s]", id)
	}
	return scholar, nil
}

// Invalidate drops a scholar's cache entries after a mutation.
func (r *Resolver) Invalidate(scholar *ledger.Scholar) {
	if scholar == nil {
		return
	}
	r.cache.Delete("sid:" + string(scholar.ID))
	if scholar.Email != "" {
		r.cache.Delete("id:" + scholar.Email)
	}
	if scholar.ORCID != "" {
		r.cache.Delete("id:" + scholar.ORCID)
	}
}
