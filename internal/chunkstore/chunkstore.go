// Package chunkstore implements spec §4.5: the write buffer, flush
// policy, chunk index, and merged buffer+chunk query path at the core of
// each shard. Chunk blobs and their metadata live in the `chunks` table
// of a per-shard sqlite database (spec §6's persistent layout), accessed
// through modernc.org/sqlite's pure-Go driver so the shard process never
// needs cgo.
package chunkstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dreamware/tripledb/internal/bloom"
	"github.com/dreamware/tripledb/internal/chunkcodec"
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/triple"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	namespace     TEXT NOT NULL,
	triple_count  INTEGER NOT NULL,
	min_timestamp INTEGER NOT NULL,
	max_timestamp INTEGER NOT NULL,
	data          BLOB NOT NULL,
	size_bytes    INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	quarantined   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_namespace_maxts ON chunks(namespace, max_timestamp);
`

// FlushPolicy bundles the configurable thresholds spec §4.5 names. A zero
// value for any field disables that trigger; Force always flushes.
type FlushPolicy struct {
	MaxTriples int
	MaxBytes   int64
	MaxAge     time.Duration
}

// ChunkIDFunc mints a fresh chunk identifier. Injected so tests can supply
// deterministic ids; production callers pass a closure over
// ident.GenerateTxID (the chunk id space reuses the same ULID shape as
// transaction ids).
type ChunkIDFunc func() (string, error)

// Stats summarizes a store's buffer and flush history (spec §4.5
// "stats() reports counts and flush history").
type Stats struct {
	BufferedTriples int
	BufferedBytes   int64
	ChunkCount      int
	LastFlushAt     time.Time
	LastFlushError  error
	QuarantinedIDs  []string
}

// Store is one shard's chunk store: an in-memory write buffer plus a
// sqlite-backed table of immutable chunk blobs.
type Store struct {
	mu sync.Mutex

	db        *sql.DB
	namespace string
	policy    FlushPolicy
	newID     ChunkIDFunc
	filter    *bloom.Filter

	buffer      []triple.Triple
	bufferBytes int64
	bufferSince time.Time

	lastFlushAt    time.Time
	lastFlushError error
	quarantined    map[string]bool
}

// Open opens (creating if absent) the sqlite database at path, ensures
// the chunks schema, and returns a Store scoped to namespace. filter is
// the shard's bloom filter; Open does not own its persistence — callers
// load/save it separately (spec §4.7's filter is a sibling of the chunk
// store, rebuilt incrementally as chunks flush).
func Open(path string, namespace ident.Namespace, policy FlushPolicy, filter *bloom.Filter, newID ChunkIDFunc) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "chunkstore: open %s", path)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Internal, err, "chunkstore: ensure schema")
	}
	return &Store{
		db:          db,
		namespace:   string(namespace),
		policy:      policy,
		newID:       newID,
		filter:      filter,
		quarantined: make(map[string]bool),
	}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write appends triples to the in-memory buffer in O(n) amortized time
// with no persistent I/O (spec §4.5 write contract). It does not itself
// decide to flush; callers drive flushing via ShouldFlush/Flush, typically
// from the same single-threaded request loop that called Write.
func (s *Store) Write(triples []triple.Triple) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) == 0 {
		s.bufferSince = time.Now()
	}
	s.buffer = append(s.buffer, triples...)
	for _, t := range triples {
		s.bufferBytes += estimateSize(t)
	}
}

func estimateSize(t triple.Triple) int64 {
	return int64(len(t.Subject)) + int64(len(t.Predicate)) + int64(len(t.TxID)) + 32
}

// ShouldFlush reports whether the flush policy's thresholds are currently
// met: triple count, byte size, or elapsed wall time since the first
// buffered triple.
func (s *Store) ShouldFlush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldFlushLocked()
}

func (s *Store) shouldFlushLocked() bool {
	if len(s.buffer) == 0 {
		return false
	}
	if s.policy.MaxTriples > 0 && len(s.buffer) >= s.policy.MaxTriples {
		return true
	}
	if s.policy.MaxBytes > 0 && s.bufferBytes >= s.policy.MaxBytes {
		return true
	}
	if s.policy.MaxAge > 0 && time.Since(s.bufferSince) >= s.policy.MaxAge {
		return true
	}
	return false
}

// Flush encodes the current buffer into one chunk and persists it in a
// single sqlite insert (spec §4.5 invariant: at most one chunk insert per
// flush). force bypasses the policy check. An empty buffer is a no-op
// that returns ("", nil). On persistence failure the buffer is left
// intact — no partial writes, no data loss (spec §4.5 failure mode).
func (s *Store) Flush(ctx context.Context, force bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.shouldFlushLocked() {
		return "", nil
	}
	if len(s.buffer) == 0 {
		return "", nil
	}

	ordered := triple.SortByTimestamp(s.buffer)
	blob, hdr, err := chunkcodec.Encode(ordered)
	if err != nil {
		s.lastFlushError = err
		return "", err
	}

	id, err := s.newID()
	if err != nil {
		s.lastFlushError = err
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, namespace, triple_count, min_timestamp, max_timestamp, data, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.namespace, hdr.TripleCount, hdr.MinTS, hdr.MaxTS, blob, len(blob), time.Now().UnixMilli(),
	)
	if err != nil {
		// Persistence failed: retain the buffer untouched so the next
		// flush attempt (or shutdown) can retry against the same data.
		s.lastFlushError = errs.Wrap(errs.Internal, err, "chunkstore: persist chunk")
		return "", s.lastFlushError
	}

	if s.filter != nil {
		for _, t := range ordered {
			s.filter.Add(string(t.Subject))
		}
	}

	s.buffer = nil
	s.bufferBytes = 0
	s.lastFlushAt = time.Now()
	s.lastFlushError = nil
	return id, nil
}

// Query returns every record (live and tombstoned) matching subject
// across the buffer and persisted chunks, in timestamp-ascending order
// (spec §4.5 read contract). since prunes chunks whose [min_ts, max_ts]
// lies strictly below it; a since of 0 scans every chunk.
func (s *Store) Query(ctx context.Context, subject ident.EntityID, since int64) ([]triple.Triple, error) {
	s.mu.Lock()
	bufferedCopy := append([]triple.Triple(nil), s.buffer...)
	quarantinedSnapshot := make(map[string]bool, len(s.quarantined))
	for k, v := range s.quarantined {
		quarantinedSnapshot[k] = v
	}
	s.mu.Unlock()

	out := make([]triple.Triple, 0, len(bufferedCopy))
	for _, t := range bufferedCopy {
		if t.Subject == subject {
			out = append(out, t)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM chunks WHERE namespace = ? AND max_timestamp >= ? AND quarantined = 0 ORDER BY min_timestamp ASC`,
		s.namespace, since,
	)
	if err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "chunkstore: query chunks")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, errs.Wrap(errs.QueryFailed, err, "chunkstore: scan chunk row")
		}
		if quarantinedSnapshot[id] {
			continue
		}
		_, triples, err := chunkcodec.Decode(data)
		if err != nil {
			s.quarantine(id)
			continue
		}
		for _, t := range triples {
			if t.Subject == subject {
				out = append(out, t)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.QueryFailed, err, "chunkstore: iterate chunk rows")
	}

	return triple.SortByTimestamp(out), nil
}

// quarantine marks chunk id as unreadable so future queries skip it
// instead of failing outright — other chunks remain usable (spec §4.5
// corrupted-chunk failure mode).
func (s *Store) quarantine(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantined[id] = true
	_, _ = s.db.Exec(`UPDATE chunks SET quarantined = 1 WHERE id = ?`, id)
}

// Stats reports buffer occupancy, chunk count, and flush history.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	st := Stats{
		BufferedTriples: len(s.buffer),
		BufferedBytes:   s.bufferBytes,
		LastFlushAt:     s.lastFlushAt,
		LastFlushError:  s.lastFlushError,
	}
	for id := range s.quarantined {
		st.QuarantinedIDs = append(st.QuarantinedIDs, id)
	}
	s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE namespace = ?`, s.namespace)
	if err := row.Scan(&st.ChunkCount); err != nil {
		return Stats{}, errs.Wrap(errs.QueryFailed, err, "chunkstore: count chunks")
	}
	return st, nil
}
