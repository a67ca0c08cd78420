// Package coordinator implements the orchestration layer for the sharded
// triple store. See doc.go for complete package documentation.
package coordinator

import (
	"sync"
	"time"

	"github.com/dreamware/tripledb/internal/errs"
)

// Status classifies a registered shard's reachability.
type Status string

const (
	// StatusActive means the shard has heartbeated recently and its error
	// ratio is within bounds.
	StatusActive Status = "active"
	// StatusInactive means the shard has not heartbeated within the
	// registry's inactivity window.
	StatusInactive Status = "inactive"
	// StatusUnhealthy means the shard is heartbeating but failing calls at
	// a high rate.
	StatusUnhealthy Status = "unhealthy"
)

// ShardHealth is a point-in-time snapshot of one shard's registration state.
// Status is derived, not stored: callers always get it freshly computed
// against the current time so an unhealthy or inactive shard is recognized
// immediately rather than waiting for the next registry write.
type ShardHealth struct {
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	ShardID       string
	Status        Status
	QueryCount    uint64
	ErrorCount    uint64
}

// shardRecord is the registry's mutable internal bookkeeping for one shard.
type shardRecord struct {
	registeredAt  time.Time
	lastHeartbeat time.Time
	queryCount    uint64
	errorCount    uint64
}

// ShardRegistry tracks every shard the coordinator knows about: when it
// registered, when it last heartbeated, and how many queries it has served
// versus failed. Status is derived on read from two rules:
//
//   - inactive when now - lastHeartbeat exceeds InactiveAfter
//   - unhealthy when errorCount >= 3 and errorCount/queryCount > 0.5
//
// A shard can be both past its heartbeat window and error-prone;
// inactivity takes precedence since an unreachable shard can't usefully be
// called regardless of its historical error rate.
type ShardRegistry struct {
	shards        map[string]*shardRecord
	mu            sync.RWMutex
	inactiveAfter time.Duration
}

// NewShardRegistry creates a registry with the given inactivity window. A
// zero window defaults to the spec's 10-minute rule.
func NewShardRegistry(inactiveAfter time.Duration) *ShardRegistry {
	if inactiveAfter <= 0 {
		inactiveAfter = 10 * time.Minute
	}
	return &ShardRegistry{
		shards:        make(map[string]*shardRecord),
		inactiveAfter: inactiveAfter,
	}
}

// Register adds a new shard or resets an existing one's counters, marking
// it as having just heartbeated. Re-registering an already-known shard is
// how a restarted shard process clears its prior error history.
func (r *ShardRegistry) Register(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.shards[shardID] = &shardRecord{
		registeredAt:  now,
		lastHeartbeat: now,
	}
}

// Deregister removes a shard from the registry. Subsequent dispatch fan-outs
// no longer consider it.
func (r *ShardRegistry) Deregister(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shards, shardID)
}

// Heartbeat records a liveness ping for a shard, refreshing its lastHeartbeat
// timestamp. Heartbeating an unknown shard registers it, since a shard that
// crashed and restarted before the coordinator noticed should not need an
// explicit re-register call to recover.
func (r *ShardRegistry) Heartbeat(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.shards[shardID]
	if !ok {
		now := time.Now()
		r.shards[shardID] = &shardRecord{registeredAt: now, lastHeartbeat: now}
		return
	}
	rec.lastHeartbeat = time.Now()
}

// RecordQuery increments a shard's served-query counter. It is a no-op for
// an unknown shard: query accounting only applies to registered shards.
func (r *ShardRegistry) RecordQuery(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.shards[shardID]; ok {
		rec.queryCount++
	}
}

// RecordError increments a shard's failed-query counter. Per spec §4.11 the
// coordinator never retries on a shard's behalf; this counter is the only
// effect a failed dispatch has on registry state.
func (r *ShardRegistry) RecordError(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.shards[shardID]; ok {
		rec.errorCount++
	}
}

// Get returns the current health snapshot for one shard, or false if it is
// not registered.
func (r *ShardRegistry) Get(shardID string) (ShardHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.shards[shardID]
	if !ok {
		return ShardHealth{}, false
	}
	return r.snapshot(shardID, rec), true
}

// List returns a snapshot of every registered shard's health, in no
// particular order.
func (r *ShardRegistry) List() []ShardHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ShardHealth, 0, len(r.shards))
	for id, rec := range r.shards {
		out = append(out, r.snapshot(id, rec))
	}
	return out
}

// Active returns the shard IDs currently in StatusActive, the set a
// fan-out dispatch targets when the caller does not specify a shard set.
func (r *ShardRegistry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, rec := range r.shards {
		if r.statusOf(rec) == StatusActive {
			out = append(out, id)
		}
	}
	return out
}

// Resolve validates a caller-supplied shard set against the registry,
// returning an error if any named shard is unknown. An empty set means
// "all active shards" and resolves to Active().
func (r *ShardRegistry) Resolve(shardIDs []string) ([]string, error) {
	if len(shardIDs) == 0 {
		return r.Active(), nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range shardIDs {
		if _, ok := r.shards[id]; !ok {
			return nil, errs.New(errs.ValidationError, "unknown shard %q", id)
		}
	}
	return shardIDs, nil
}

func (r *ShardRegistry) snapshot(shardID string, rec *shardRecord) ShardHealth {
	return ShardHealth{
		ShardID:       shardID,
		RegisteredAt:  rec.registeredAt,
		LastHeartbeat: rec.lastHeartbeat,
		Status:        r.statusOf(rec),
		QueryCount:    rec.queryCount,
		ErrorCount:    rec.errorCount,
	}
}

func (r *ShardRegistry) statusOf(rec *shardRecord) Status {
	if time.Since(rec.lastHeartbeat) > r.inactiveAfter {
		return StatusInactive
	}
	if rec.errorCount >= 3 && rec.queryCount > 0 &&
		float64(rec.errorCount)/float64(rec.queryCount) > 0.5 {
		return StatusUnhealthy
	}
	return StatusActive
}
