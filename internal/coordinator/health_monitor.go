// Package coordinator provides the orchestration layer described in doc.go.
// This file implements fan-out dispatch and result aggregation across
// registered shards, per §4.11's dispatch/aggregation rules.
package coordinator

import (
	"context"
	"sort"
	"time"
)

// defaultCallTimeout is the per-shard call budget used when the caller does
// not override it.
const defaultCallTimeout = 5 * time.Second

// defaultResultLimit and maxResultLimit bound how many deduplicated results
// Dispatch returns.
const (
	defaultResultLimit = 100
	maxResultLimit     = 1000
)

// ShardCall invokes one shard and returns its raw entity results as
// `$id`-keyed maps, matching the orchestrator's entity record shape. The
// dispatcher is deliberately ignorant of what the call actually does
// (lookup, traverse, filter) — that's the orchestrator's concern.
type ShardCall func(ctx context.Context, shardID string) ([]map[string]any, error)

// DispatchMeta reports what happened during one Dispatch call, matching the
// metadata shape §4.11 requires in every aggregated response.
type DispatchMeta struct {
	ShardsQueried   int
	ShardsResponded int
	ShardsFailed    int
	TotalResults    int
	DedupedResults  int
	DurationMs      int64
}

// DispatchResult is the aggregated outcome of a fan-out: a deduplicated
// union of every responding shard's results plus metadata about the fan-out
// itself.
type DispatchResult struct {
	Results []map[string]any
	Meta    DispatchMeta
}

// Dispatcher fans a query out to a set of shards in parallel, under a
// shared per-call timeout, and aggregates the results. It never retries a
// failed shard; a failure only increments that shard's error count in the
// registry and is reflected in ShardsFailed.
type Dispatcher struct {
	registry    *ShardRegistry
	callTimeout time.Duration
}

// NewDispatcher builds a Dispatcher bound to a registry. A zero callTimeout
// defaults to 5 seconds.
func NewDispatcher(registry *ShardRegistry, callTimeout time.Duration) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Dispatcher{registry: registry, callTimeout: callTimeout}
}

type shardOutcome struct {
	shardID string
	results []map[string]any
	err     error
}

// Dispatch resolves shardIDs (nil/empty means every active shard), calls
// call on each concurrently under the dispatcher's per-call timeout, then
// unions and deduplicates the results by their "$id" field, applying limit
// (clamped to [1, maxResultLimit], defaulting to defaultResultLimit when
// <= 0).
func (d *Dispatcher) Dispatch(ctx context.Context, shardIDs []string, limit int, call ShardCall) (DispatchResult, error) {
	start := time.Now()

	targets, err := d.registry.Resolve(shardIDs)
	if err != nil {
		return DispatchResult{}, err
	}

	limit = clampLimit(limit)

	outcomes := make(chan shardOutcome, len(targets))
	for _, shardID := range targets {
		go func(shardID string) {
			callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
			defer cancel()
			results, err := call(callCtx, shardID)
			outcomes <- shardOutcome{shardID: shardID, results: results, err: err}
		}(shardID)
	}

	var (
		responded int
		failed    int
		total     int
		merged    []map[string]any
	)
	for i := 0; i < len(targets); i++ {
		o := <-outcomes
		d.registry.RecordQuery(o.shardID)
		if o.err != nil {
			failed++
			d.registry.RecordError(o.shardID)
			continue
		}
		responded++
		total += len(o.results)
		merged = append(merged, o.results...)
	}

	deduped := dedupeByID(merged)
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}

	return DispatchResult{
		Results: deduped,
		Meta: DispatchMeta{
			ShardsQueried:   len(targets),
			ShardsResponded: responded,
			ShardsFailed:    failed,
			TotalResults:    total,
			DedupedResults:  len(deduped),
			DurationMs:      time.Since(start).Milliseconds(),
		},
	}, nil
}

// clampLimit applies §4.11's "limit <= 1000, default 100" rule.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultResultLimit
	}
	if limit > maxResultLimit {
		return maxResultLimit
	}
	return limit
}

// dedupeByID unions entity records, keeping the first occurrence of each
// "$id" value, then sorts the survivors lexicographically by "$id" so
// fan-out order across shards never affects result order.
func dedupeByID(records []map[string]any) []map[string]any {
	seen := make(map[string]bool, len(records))
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		id, _ := rec["$id"].(string)
		if id != "" && seen[id] {
			continue
		}
		if id != "" {
			seen[id] = true
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return idOf(out[i]) < idOf(out[j])
	})
	return out
}

func idOf(rec map[string]any) string {
	id, _ := rec["$id"].(string)
	return id
}
