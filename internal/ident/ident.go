// Package ident implements the branded identifier types used throughout the
// graph engine: entity ids, predicates, namespaces, and transaction ids.
// Each type is an opaque defined string; the only way to obtain a valid
// instance is through this package's constructors, which enforce the rules
// in spec §3/§4.2. Direct conversion from an arbitrary string
// (EntityID("x")) compiles but is never validated — callers that need
// runtime checking must go through New* or the Validate* helpers.
package ident

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/dreamware/tripledb/internal/errs"
)

// EntityID is an absolute http(s) URL identifying an entity.
type EntityID string

// Predicate is a property name: non-empty, no colon, no whitespace, and
// drawn from letters, digits, '_', '$'.
type Predicate string

// Namespace is an absolute http(s) URL used as a routing key.
type Namespace string

// TxID is a 26-character Crockford base32 (ULID-alphabet) transaction
// identifier, time-ordered by construction.
type TxID string

const maxEntityIDLen = 2048

// crockford is the ULID alphabet: Crockford base32 excluding I, L, O, U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewEntityID validates raw and returns a branded EntityID, or an
// InvalidIdentifier error.
func NewEntityID(raw string) (EntityID, error) {
	if len(raw) == 0 || len(raw) > maxEntityIDLen {
		return "", invalidID("entity id length must be in (0, %d], got %d", maxEntityIDLen, len(raw))
	}
	if containsControlOrZeroWidth(raw) {
		return "", invalidID("entity id contains control or zero-width characters")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", invalidID("entity id must be an absolute http(s) URL")
	}
	return EntityID(raw), nil
}

// ValidateEntityID reports whether raw would be accepted by NewEntityID,
// without allocating a branded value.
func ValidateEntityID(raw string) bool {
	_, err := NewEntityID(raw)
	return err == nil
}

// NewPredicate validates raw and returns a branded Predicate.
func NewPredicate(raw string) (Predicate, error) {
	if raw == "" {
		return "", invalidPredicate("predicate must not be empty")
	}
	for _, r := range raw {
		if r == ':' || unicode.IsSpace(r) {
			return "", invalidPredicate("predicate must not contain ':' or whitespace")
		}
		if !isPredicateRune(r) {
			return "", invalidPredicate("predicate may only contain letters, digits, '_', '$'")
		}
	}
	return Predicate(raw), nil
}

// ValidatePredicate reports whether raw would be accepted by NewPredicate.
func ValidatePredicate(raw string) bool {
	_, err := NewPredicate(raw)
	return err == nil
}

func isPredicateRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// NewNamespace validates raw and returns a branded Namespace.
func NewNamespace(raw string) (Namespace, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", invalidNamespace("namespace must be an absolute http(s) URL")
	}
	return Namespace(raw), nil
}

// ValidateNamespace reports whether raw would be accepted by NewNamespace.
func ValidateNamespace(raw string) bool {
	_, err := NewNamespace(raw)
	return err == nil
}

// NewTxID validates raw as a 26-char Crockford base32 string and returns a
// branded TxID.
func NewTxID(raw string) (TxID, error) {
	if len(raw) != 26 {
		return "", invalidTx("transaction id must be exactly 26 characters, got %d", len(raw))
	}
	upper := strings.ToUpper(raw)
	for _, r := range upper {
		if !strings.ContainsRune(crockford, r) {
			return "", invalidTx("transaction id contains non-Crockford-base32 character %q", r)
		}
	}
	return TxID(upper), nil
}

// ValidateTxID reports whether raw would be accepted by NewTxID.
func ValidateTxID(raw string) bool {
	_, err := NewTxID(raw)
	return err == nil
}

// ResolvedID is the (namespace, localId) pair an entity id resolves to.
type ResolvedID struct {
	Namespace Namespace
	LocalID   string
}

// ResolveNamespace splits id into its namespace and local id: the namespace
// is scheme://host[:port] and the local id is the remainder of the path
// (plus query/fragment, verbatim). FormEntityID(ResolveNamespace(id)) == id
// for ids of the form scheme://host[:port]/path; userinfo is dropped, and
// an id with an empty path comes back with a trailing '/'.
func ResolveNamespace(id EntityID) (ResolvedID, error) {
	u, err := url.Parse(string(id))
	if err != nil || !u.IsAbs() {
		return ResolvedID{}, invalidID("entity id %q cannot be resolved to a namespace", string(id))
	}
	ns := Namespace(u.Scheme + "://" + u.Host)
	local := u.Path
	if u.RawQuery != "" {
		local += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		local += "#" + u.Fragment
	}
	local = strings.TrimPrefix(local, "/")
	return ResolvedID{Namespace: ns, LocalID: local}, nil
}

// FormEntityID is the inverse of ResolveNamespace: it joins a namespace and
// local id back into an entity id URL.
func FormEntityID(ns Namespace, localID string) (EntityID, error) {
	base := strings.TrimSuffix(string(ns), "/")
	raw := base + "/" + strings.TrimPrefix(localID, "/")
	return NewEntityID(raw)
}

func containsControlOrZeroWidth(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
		switch r {
		case '​', '‌', '‍', '﻿':
			return true
		}
	}
	return false
}

// Truncate shortens an offending value for inclusion in an error message,
// per spec §4.2's requirement that assertion helpers truncate long values.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func invalidID(format string, args ...any) *errs.Error {
	return errs.New(errs.InvalidIdentifier, format, args...).WithDetail("subtype", "InvalidEntityId")
}

func invalidPredicate(format string, args ...any) *errs.Error {
	return errs.New(errs.InvalidIdentifier, format, args...).WithDetail("subtype", "InvalidPredicate")
}

func invalidNamespace(format string, args ...any) *errs.Error {
	return errs.New(errs.InvalidIdentifier, format, args...).WithDetail("subtype", "InvalidNamespace")
}

func invalidTx(format string, args ...any) *errs.Error {
	return errs.New(errs.InvalidIdentifier, format, args...).WithDetail("subtype", "InvalidTransactionId")
}

// AssertString coerces an arbitrary "Unknown" input (typically decoded from
// JSON as any) to string, rejecting non-string types and truncating long
// offending values in the returned error, per spec §4.2.
func AssertString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.InvalidIdentifier, "expected string, got %T", v).WithDetail("subtype", "InvalidIdentifier")
	}
	return s, nil
}
