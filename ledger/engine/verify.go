/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"context"

	"github.com/reciprocalreviews/ledger/ledger"
)

// VerifyCharges checks whether each charged scholar can afford the payment.
// Balances are summed across every currency the scholar holds, which
// reproduces the historical behavior; VerifyChargesInCurrency is the
// currency-scoped variant.
//
// The first return is true when every charge is covered. Otherwise the
// second return pairs each charge with its deficit: a negative payment is
// the shortfall, a nil payment means the scholar identifier could not be
// resolved so the charge cannot be verified at all.
func (e *Engine) VerifyCharges(ctx context.Context, charges []ledger.Charge) (bool, []ledger.Charge, error) {
	return e.verifyCharges(ctx, charges, func(ctx context.Context, scholar ledger.ScholarID) (int, error) {
		return e.tokens.ScholarBalance(ctx, scholar)
	})
}

// VerifyChargesInCurrency is VerifyCharges restricted to one currency, so a
// scholar cannot cover a charge with tokens the venue will not accept.
func (e *Engine) VerifyChargesInCurrency(ctx context.Context, currency ledger.CurrencyID, charges []ledger.Charge) (bool, []ledger.Charge, error) {
	return e.verifyCharges(ctx, charges, func(ctx context.Context, scholar ledger.ScholarID) (int, error) {
		return e.tokens.CountHeld(ctx, currency, ledger.ScholarHolder(scholar))
	})
}

func (e *Engine) verifyCharges(ctx context.Context, charges []ledger.Charge, balance func(context.Context, ledger.ScholarID) (int, error)) (bool, []ledger.Charge, error) {
	for _, charge := range charges {
		if charge.Scholar == "" || charge.Payment == nil || *charge.Payment < 0 {
			return false, nil, ledger.E(ledger.KindValidation, ledger.CodeInvalidCharges, "charge for [%s] is malformed", charge.Scholar)
		}
	}

	ok := true
	results := make([]ledger.Charge, len(charges))
	for i, charge := range charges {
		results[i] = ledger.Charge{Scholar: charge.Scholar}

		scholar, err := e.resolver.ResolveScholarIdentifier(ctx, charge.Scholar)
		if err != nil {
			return false, nil, err
		}
		if scholar == nil {
			// Unresolved: nil payment signals "cannot verify", not
			// "insufficient".
			ok = false
			continue
		}
		held, err := balance(ctx, scholar.ID)
		if err != nil {
			return false, nil, ledger.WrapE(ledger.KindInfra, ledger.CodeStoreFailure, err, "failed counting tokens for [%s]", scholar.ID)
		}
		deficit := held - *charge.Payment
		results[i].Payment = &deficit
		if deficit < 0 {
			ok = false
		}
	}
	if ok {
		return true, nil, nil
	}
	return false, results, nil
}
