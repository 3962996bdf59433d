/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

// NullUUID is the storage encoding of a placeholder token reference,
// kept for compatibility with the original relational schema.
const NullUUID = "00000000-0000-0000-0000-000000000000"

// TokenRef is an entry in a transaction's token list: either a reference to
// an existing token, or a placeholder for a token to be minted at approval
// time. The zero value is a placeholder.
type TokenRef struct {
	id TokenID
}

func RealToken(id TokenID) TokenRef {
	return TokenRef{id: id}
}

func PlaceholderToken() TokenRef {
	return TokenRef{}
}

// Placeholders returns n placeholder references.
func Placeholders(n int) []TokenRef {
	return make([]TokenRef, n)
}

// RealTokens wraps concrete token IDs as references.
func RealTokens(ids []TokenID) []TokenRef {
	refs := make([]TokenRef, len(ids))
	for i, id := range ids {
		refs[i] = RealToken(id)
	}
	return refs
}

func (r TokenRef) Placeholder() bool {
	return r.id == "" || r.id == NullUUID
}

// ID returns the referenced token ID and true, or false for a placeholder.
func (r TokenRef) ID() (TokenID, bool) {
	if r.Placeholder() {
		return "", false
	}
	return r.id, true
}

// StorageID returns the value stored in the transaction's token list.
func (r TokenRef) StorageID() string {
	if r.Placeholder() {
		return NullUUID
	}
	return string(r.id)
}

// TokenRefFromStorage decodes a stored token list entry.
func TokenRefFromStorage(s string) TokenRef {
	if s == "" || s == NullUUID {
		return PlaceholderToken()
	}
	return RealToken(TokenID(s))
}
