// Package position implements the position index family named in spec
// §4.6: SPO is already served directly by the chunk store's
// subject-keyed query path, so this package provides the complementary
// POS and OSP orderings — "which subjects have predicate=X with this
// object" and "which (subject, predicate) pairs point at this object" —
// backed by a per-shard sqlite table, the same storage technology
// internal/chunkstore uses for chunk metadata.
package position

import (
	"context"
	"database/sql"
	"encoding/hex"

	_ "modernc.org/sqlite"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/value"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS pos_index (
	predicate  TEXT NOT NULL,
	object_key TEXT NOT NULL,
	subject    TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	PRIMARY KEY (predicate, object_key, subject, timestamp)
);
CREATE TABLE IF NOT EXISTS osp_index (
	object_key TEXT NOT NULL,
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	PRIMARY KEY (object_key, subject, predicate, timestamp)
);
`

// Entry is one position-index hit.
type Entry struct {
	Subject   ident.EntityID
	Predicate ident.Predicate
	Timestamp int64
}

// Index is the POS/OSP position index for one shard.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures the pos_index/osp_index schema.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "position: open %s", path)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Internal, err, "position: ensure schema")
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

// objectKey canonicalizes a Value to a comparable index key: the hex of
// its tagged binary encoding, so every variant (including refs, geo
// points, vectors) gets an exact-match key without needing a
// variant-specific comparison.
func objectKey(v value.Value) string {
	return hex.EncodeToString(value.Encode(v))
}

// Index records one (subject, predicate, object, timestamp) observation
// in both orderings. Call on every live triple written to a chunk or
// buffer; tombstones should not be indexed by callers (a deleted
// predicate has no object to position-index).
func (i *Index) Index(ctx context.Context, subject ident.EntityID, predicate ident.Predicate, object value.Value, timestamp int64) error {
	key := objectKey(object)
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "position: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO pos_index (predicate, object_key, subject, timestamp) VALUES (?, ?, ?, ?)`,
		string(predicate), key, string(subject), timestamp,
	); err != nil {
		return errs.Wrap(errs.Internal, err, "position: insert pos_index")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO osp_index (object_key, subject, predicate, timestamp) VALUES (?, ?, ?, ?)`,
		key, string(subject), string(predicate), timestamp,
	); err != nil {
		return errs.Wrap(errs.Internal, err, "position: insert osp_index")
	}
	return tx.Commit()
}

// ByPredicateObject answers a POS lookup: every subject that has been
// indexed with the (predicate, object) pair, most recent first. Entries
// are never removed, so a subject whose value has since changed is still
// listed.
func (i *Index) ByPredicateObject(ctx context.Context, predicate ident.Predicate, object value.Value) ([]Entry, error) {
	key := objectKey(object)
	rows, err := i.db.QueryContext(ctx,
		`SELECT subject, timestamp FROM pos_index WHERE predicate = ? AND object_key = ? ORDER BY timestamp DESC`,
		string(predicate), key,
	)
	if err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "position: query pos_index")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var subj string
		var ts int64
		if err := rows.Scan(&subj, &ts); err != nil {
			return nil, errs.Wrap(errs.QueryFailed, err, "position: scan pos_index row")
		}
		out = append(out, Entry{Subject: ident.EntityID(subj), Predicate: predicate, Timestamp: ts})
	}
	return out, rows.Err()
}

// ByObject answers an OSP lookup: every (subject, predicate) pair
// pointing at object, most recent first.
func (i *Index) ByObject(ctx context.Context, object value.Value) ([]Entry, error) {
	key := objectKey(object)
	rows, err := i.db.QueryContext(ctx,
		`SELECT subject, predicate, timestamp FROM osp_index WHERE object_key = ? ORDER BY timestamp DESC`,
		key,
	)
	if err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "position: query osp_index")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var subj, pred string
		var ts int64
		if err := rows.Scan(&subj, &pred, &ts); err != nil {
			return nil, errs.Wrap(errs.QueryFailed, err, "position: scan osp_index row")
		}
		out = append(out, Entry{Subject: ident.EntityID(subj), Predicate: ident.Predicate(pred), Timestamp: ts})
	}
	return out, rows.Err()
}
