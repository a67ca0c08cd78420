// Package shardengine wires together one shard's persistent state — the
// chunk store, bloom filter, and all four secondary indexes — behind a
// single-writer request queue, and implements the schema-migration and
// lifecycle rules of spec §4.9.
package shardengine

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/dreamware/tripledb/internal/bloom"
	"github.com/dreamware/tripledb/internal/chunkstore"
	"github.com/dreamware/tripledb/internal/config"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/index/geo"
	"github.com/dreamware/tripledb/internal/index/position"
	"github.com/dreamware/tripledb/internal/index/vector"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// metaMigrations is the engine's own schema, kept separate from the
// chunk/position/geo stores' internal DDL (each of those owns its table
// layout already); this is where engine-level bookkeeping like persisted
// metrics and the bloom snapshot live.
var metaMigrations = []Migration{
	{
		Version: 1,
		Up: `CREATE TABLE IF NOT EXISTS engine_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		Down: `DROP TABLE IF EXISTS engine_state;`,
	},
}

// Engine owns one shard's entire persistent state and serializes every
// operation against it through a single cooperative worker, per spec §5's
// "single-threaded cooperative" scheduling model.
type Engine struct {
	log *zap.SugaredLogger

	dataDir   string
	namespace ident.Namespace
	cfg       config.ShardConfig

	meta    *sql.DB
	chunks  *chunkstore.Store
	filter  *bloom.Filter
	pos     *position.Index
	geoIdx  *geo.Index
	text    *fts.Index
	vectors *vector.Store

	jobs chan job

	metricsStop chan struct{}
	metricsDone chan struct{}

	closeOnce sync.Once
}

type job struct {
	fn   func(ctx context.Context) (any, error)
	resp chan jobResult
}

type jobResult struct {
	val any
	err error
}

const metaStateKeyBloom = "bloom_snapshot"

// Open brings up a shard engine rooted at cfg.DataDir: it ensures the
// on-disk schema, restores the bloom filter and index handles, and starts
// the single-writer job loop plus the periodic metrics-flush alarm. This
// implements both the "on startup" and general lifecycle rules of §4.9.
func Open(cfg config.ShardConfig, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	namespace, err := ident.NewNamespace(cfg.Namespace)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	meta, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "meta.db"))
	if err != nil {
		return nil, fmt.Errorf("open meta db: %w", err)
	}
	closers = append(closers, meta.Close)
	if err := initializeSchema(context.Background(), meta, metaMigrations); err != nil {
		cleanup()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	filter, err := loadOrCreateBloom(context.Background(), meta, cfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("restore bloom filter: %w", err)
	}

	chunkIDFunc := func() (string, error) {
		id, err := ident.GenerateTxID(time.Now().UnixMilli(), nil)
		return string(id), err
	}
	chunks, err := chunkstore.Open(filepath.Join(cfg.DataDir, "chunks.db"), namespace, chunkstore.FlushPolicy{
		MaxTriples: cfg.FlushMaxTriples,
		MaxBytes:   cfg.FlushMaxBytes,
		MaxAge:     cfg.FlushInterval,
	}, filter, chunkIDFunc)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	closers = append(closers, chunks.Close)

	pos, err := position.Open(filepath.Join(cfg.DataDir, "position.db"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open position index: %w", err)
	}
	closers = append(closers, pos.Close)

	geoIdx, err := geo.Open(filepath.Join(cfg.DataDir, "geo.db"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open geo index: %w", err)
	}
	closers = append(closers, geoIdx.Close)

	text, err := fts.Open(filepath.Join(cfg.DataDir, "fts.bleve"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open full-text index: %w", err)
	}
	closers = append(closers, text.Close)

	vectors, err := vector.Open(filepath.Join(cfg.DataDir, "vectors.db"), vector.Config{
		M:              cfg.VectorM,
		EfConstruction: cfg.VectorEfConstruction,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	closers = append(closers, vectors.Close)

	e := &Engine{
		log:         log,
		dataDir:     cfg.DataDir,
		namespace:   namespace,
		cfg:         cfg,
		meta:        meta,
		chunks:      chunks,
		filter:      filter,
		pos:         pos,
		geoIdx:      geoIdx,
		text:        text,
		vectors:     vectors,
		jobs:        make(chan job, 256),
		metricsStop: make(chan struct{}),
		metricsDone: make(chan struct{}),
	}

	go e.runJobs()
	go e.runMetricsAlarm(metricsInterval(cfg))

	return e, nil
}

func metricsInterval(cfg config.ShardConfig) time.Duration {
	if cfg.MetricsFlushInterval <= 0 {
		return 30 * time.Second
	}
	return cfg.MetricsFlushInterval
}

func loadOrCreateBloom(ctx context.Context, meta *sql.DB, cfg config.ShardConfig) (*bloom.Filter, error) {
	var encoded string
	err := meta.QueryRowContext(ctx, `SELECT value FROM engine_state WHERE key = ?`, metaStateKeyBloom).Scan(&encoded)
	if err == sql.ErrNoRows {
		return bloom.New(cfg.BloomCapacity, cfg.BloomFalsePositiveRate), nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return bloom.New(cfg.BloomCapacity, cfg.BloomFalsePositiveRate), nil
	}
	filter, err := bloom.Load(raw)
	if err != nil {
		return bloom.New(cfg.BloomCapacity, cfg.BloomFalsePositiveRate), nil
	}
	return filter, nil
}

// runJobs is the single cooperative worker: it drains e.jobs one at a time,
// so no two operations against this shard's state ever run concurrently.
func (e *Engine) runJobs() {
	for j := range e.jobs {
		val, err := j.fn(context.Background())
		j.resp <- jobResult{val: val, err: err}
	}
}

// submit enqueues fn on the single-writer queue and blocks until it runs
// (or ctx is cancelled first, in which case fn may still run later but its
// result is discarded by the caller).
func (e *Engine) submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	j := job{fn: fn, resp: make(chan jobResult, 1)}
	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Namespace returns the namespace this engine's chunk store is scoped to.
func (e *Engine) Namespace() ident.Namespace { return e.namespace }

// MightContain reports whether subject could possibly have ever been
// written to this shard, via the bloom filter — a fast negative check
// before paying for a chunk-store query.
func (e *Engine) MightContain(subject ident.EntityID) bool {
	return e.filter.MightExist(string(subject))
}

// Append writes one triple through the single-writer queue: it buffers the
// record in the chunk store, updates every secondary index the object's
// Kind is relevant to, and flushes the chunk store if the flush policy now
// calls for it.
func (e *Engine) Append(ctx context.Context, t triple.Triple) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.chunks.Write([]triple.Triple{t})
		if err := e.indexTriple(ctx, t); err != nil {
			return nil, err
		}
		if e.chunks.ShouldFlush() {
			if _, err := e.chunks.Flush(ctx, false); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// AppendBatch writes triples as one logical operation: all are buffered and
// indexed before a single flush check runs, so a batch insert issues at
// most one persistent write, per spec §5's batching rule.
func (e *Engine) AppendBatch(ctx context.Context, triples []triple.Triple) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.chunks.Write(triples)
		for _, t := range triples {
			if err := e.indexTriple(ctx, t); err != nil {
				return nil, err
			}
		}
		if e.chunks.ShouldFlush() {
			if _, err := e.chunks.Flush(ctx, false); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Flush forces a chunk-store flush regardless of the flush policy.
func (e *Engine) Flush(ctx context.Context) (string, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.chunks.Flush(ctx, true)
	})
	if err != nil {
		return "", err
	}
	id, _ := val.(string)
	return id, nil
}

// Records returns every triple recorded for subject at or after since,
// merging the in-memory write buffer with persisted chunks.
func (e *Engine) Records(ctx context.Context, subject ident.EntityID, since int64) ([]triple.Triple, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.chunks.Query(ctx, subject, since)
	})
	if err != nil {
		return nil, err
	}
	records, _ := val.([]triple.Triple)
	return records, nil
}

// ByPredicateObject delegates to the POS index.
func (e *Engine) ByPredicateObject(ctx context.Context, predicate ident.Predicate, object value.Value) ([]position.Entry, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.pos.ByPredicateObject(ctx, predicate, object)
	})
	if err != nil {
		return nil, err
	}
	entries, _ := val.([]position.Entry)
	return entries, nil
}

// Near delegates to the geo index.
func (e *Engine) Near(ctx context.Context, predicate ident.Predicate, lat, lng, radiusKm float64) ([]geo.Hit, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.geoIdx.Near(ctx, predicate, lat, lng, radiusKm)
	})
	if err != nil {
		return nil, err
	}
	hits, _ := val.([]geo.Hit)
	return hits, nil
}

// Match delegates to the full-text index.
func (e *Engine) Match(ctx context.Context, text string, opts fts.Options) ([]fts.Hit, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.text.Match(ctx, text, opts)
	})
	if err != nil {
		return nil, err
	}
	hits, _ := val.([]fts.Hit)
	return hits, nil
}

// VectorSearch delegates to the vector index.
func (e *Engine) VectorSearch(ctx context.Context, predicate ident.Predicate, vec []float32, k, ef int) ([]vector.Result, error) {
	val, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return e.vectors.Search(predicate, vec, k, ef)
	})
	if err != nil {
		return nil, err
	}
	results, _ := val.([]vector.Result)
	return results, nil
}

// indexTriple updates the secondary indexes relevant to t.Object's Kind. A
// tombstone (NULL object) removes prior entries from the indexes that
// support point deletion rather than inserting anything.
func (e *Engine) indexTriple(ctx context.Context, t triple.Triple) error {
	if !t.IsTombstone() {
		if err := e.pos.Index(ctx, t.Subject, t.Predicate, t.Object, t.Timestamp); err != nil {
			return err
		}
	}

	switch t.Object.Kind {
	case value.KindNull:
		_ = e.geoIdx.Delete(ctx, t.Subject, t.Predicate)
		_ = e.text.Delete(t.Subject, t.Predicate)
		_ = e.vectors.Delete(t.Predicate, t.Subject)
	case value.KindGeoPoint:
		pt, _ := t.Object.AsGeoPoint()
		if err := e.geoIdx.Upsert(ctx, t.Subject, t.Predicate, pt.Lat, pt.Lng, t.Timestamp); err != nil {
			return err
		}
	case value.KindString:
		s, _ := t.Object.AsString()
		if err := e.text.Index(t.Subject, t.Predicate, s); err != nil {
			return err
		}
	case value.KindVector:
		vec, _ := t.Object.AsVector()
		if err := e.vectors.Insert(t.Predicate, t.Subject, vec); err != nil {
			return err
		}
	}
	return nil
}

// runMetricsAlarm persists chunk-store stats and the bloom filter snapshot
// every interval, implementing §4.9's "schedule a periodic metrics-flush
// alarm".
func (e *Engine) runMetricsAlarm(interval time.Duration) {
	defer close(e.metricsDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.persistMetrics(context.Background()); err != nil {
				e.log.Warnw("metrics flush failed", "error", err)
			}
		case <-e.metricsStop:
			return
		}
	}
}

type metricsSnapshot struct {
	LastFlushError string   `json:"last_flush_error,omitempty"`
	QuarantinedIDs []string `json:"quarantined_ids,omitempty"`
	BufferedBytes  int64    `json:"buffered_bytes"`
	LastFlushAtMs  int64    `json:"last_flush_at_ms"`
	BufferedTriples int     `json:"buffered_triples"`
	ChunkCount      int     `json:"chunk_count"`
}

// Metrics is the live engine-health snapshot exposed by GET /metrics and
// GET /state (spec §6). It mirrors metricsSnapshot but is computed directly
// from the chunk store rather than read back from the persisted
// engine_state row, so a caller always sees the current value rather than
// whatever the last metrics-flush alarm tick wrote.
type Metrics struct {
	LastFlushError  string   `json:"lastFlushError,omitempty"`
	QuarantinedIDs  []string `json:"quarantinedIds,omitempty"`
	BufferedBytes   int64    `json:"bufferedBytes"`
	LastFlushAtMs   int64    `json:"lastFlushAtMs"`
	BufferedTriples int      `json:"bufferedTriples"`
	ChunkCount      int      `json:"chunkCount"`
	BloomCapacity   uint64   `json:"bloomCapacity"`
}

// Metrics reports a live snapshot of the engine's buffering and flush
// state, without going through the persisted engine_state table.
func (e *Engine) Metrics(ctx context.Context) (Metrics, error) {
	stats, err := e.chunks.Stats(ctx)
	if err != nil {
		return Metrics{}, err
	}
	m := Metrics{
		BufferedTriples: stats.BufferedTriples,
		BufferedBytes:   stats.BufferedBytes,
		ChunkCount:      stats.ChunkCount,
		LastFlushAtMs:   stats.LastFlushAt.UnixMilli(),
		QuarantinedIDs:  stats.QuarantinedIDs,
		BloomCapacity:   e.filter.Capacity(),
	}
	if stats.LastFlushError != nil {
		m.LastFlushError = stats.LastFlushError.Error()
	}
	return m, nil
}

func (e *Engine) persistMetrics(ctx context.Context) error {
	stats, err := e.chunks.Stats(ctx)
	if err != nil {
		return err
	}
	snap := metricsSnapshot{
		BufferedTriples: stats.BufferedTriples,
		BufferedBytes:   stats.BufferedBytes,
		ChunkCount:      stats.ChunkCount,
		LastFlushAtMs:   stats.LastFlushAt.UnixMilli(),
		QuarantinedIDs:  stats.QuarantinedIDs,
	}
	if stats.LastFlushError != nil {
		snap.LastFlushError = stats.LastFlushError.Error()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := e.putState(ctx, "metrics", string(payload)); err != nil {
		return err
	}
	return e.persistBloom(ctx)
}

func (e *Engine) persistBloom(ctx context.Context) error {
	encoded := base64.StdEncoding.EncodeToString(e.filter.Snapshot())
	return e.putState(ctx, metaStateKeyBloom, encoded)
}

func (e *Engine) putState(ctx context.Context, key, value string) error {
	_, err := e.meta.ExecContext(ctx,
		`INSERT INTO engine_state(key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// Close stops the metrics alarm, flushes the chunk store, persists final
// metrics and the bloom snapshot, and closes every underlying store —
// spec §4.9's shutdown sequence.
func (e *Engine) Close() error {
	var closeErr error
	e.closeOnce.Do(func() {
		close(e.metricsStop)
		<-e.metricsDone
		close(e.jobs)

		ctx := context.Background()
		if _, err := e.chunks.Flush(ctx, true); err != nil {
			closeErr = fmt.Errorf("final flush: %w", err)
		}
		if err := e.persistMetrics(ctx); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("persist final metrics: %w", err)
		}

		for _, c := range []func() error{e.vectors.Close, e.text.Close, e.geoIdx.Close, e.pos.Close, e.chunks.Close, e.meta.Close} {
			if err := c(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	})
	return closeErr
}
