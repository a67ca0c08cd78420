// Package triple implements the MVCC record at the center of the engine:
// an immutable (subject, predicate, typed-object, timestamp, txId) tuple,
// plus the latest-version and liveness rules spec §4.3 defines over a
// sequence of such records. Inserts, updates, and deletes are all the same
// append: a delete is an insert whose object is the NULL variant (a
// tombstone).
package triple

import (
	"sort"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/value"
)

// Triple is one MVCC record. Records are immutable once created; the only
// way to "change" a (subject, predicate) pair is to append a new Triple
// with a later Timestamp and a fresh TxID.
type Triple struct {
	Subject   ident.EntityID
	Predicate ident.Predicate
	Object    value.Value
	Timestamp int64
	TxID      ident.TxID
}

// IsTombstone reports whether t marks a deletion: its object is the NULL
// variant.
func (t Triple) IsTombstone() bool { return t.Object.IsNull() }

// New constructs a Triple. It does not validate subject/predicate/object —
// callers are expected to have gone through ident/value constructors
// already; New exists to keep call sites at insert/delete points
// uniform.
func New(subject ident.EntityID, predicate ident.Predicate, object value.Value, timestamp int64, txID ident.TxID) Triple {
	return Triple{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Timestamp: timestamp,
		TxID:      txID,
	}
}

// Tombstone constructs a deletion record for (subject, predicate).
func Tombstone(subject ident.EntityID, predicate ident.Predicate, timestamp int64, txID ident.TxID) Triple {
	return New(subject, predicate, value.Null(), timestamp, txID)
}

// Latest returns the record in triples matching (subject, predicate) with
// the greatest Timestamp not exceeding snapshot, tie-breaking by the
// lexicographically greatest TxID (spec §4.3). It returns (Triple{}, false)
// if no matching record exists at or before snapshot.
func Latest(triples []Triple, subject ident.EntityID, predicate ident.Predicate, snapshot int64) (Triple, bool) {
	var best Triple
	found := false
	for _, t := range triples {
		if t.Subject != subject || t.Predicate != predicate || t.Timestamp > snapshot {
			continue
		}
		if !found || isNewer(t, best) {
			best = t
			found = true
		}
	}
	return best, found
}

func isNewer(a, b Triple) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.TxID > b.TxID
}

// LatestPerPredicate collapses triples (all belonging to one subject) down
// to the latest record per predicate, at or before snapshot. The result
// includes tombstones; callers that want only live predicates should
// filter with IsTombstone.
func LatestPerPredicate(triples []Triple, subject ident.EntityID, snapshot int64) map[ident.Predicate]Triple {
	out := make(map[ident.Predicate]Triple)
	for _, t := range triples {
		if t.Subject != subject || t.Timestamp > snapshot {
			continue
		}
		if cur, ok := out[t.Predicate]; !ok || isNewer(t, cur) {
			out[t.Predicate] = t
		}
	}
	return out
}

// IsLive reports whether subject has at least one live (non-tombstone)
// predicate at or before snapshot — the entity existence rule of spec §3.
func IsLive(triples []Triple, subject ident.EntityID, snapshot int64) bool {
	for _, t := range LatestPerPredicate(triples, subject, snapshot) {
		if !t.IsTombstone() {
			return true
		}
	}
	return false
}

// SortByTimestamp returns triples sorted ascending by (Timestamp, TxID),
// the canonical order chunks and buffers are expected to preserve for
// replay (spec §4.4's "decode produces triples in insertion order" assumes
// triples were buffered/encoded in this order in the first place).
func SortByTimestamp(triples []Triple) []Triple {
	out := append([]Triple(nil), triples...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}
