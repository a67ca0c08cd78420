// Package coordinator implements the control-plane that sits above a set of
// per-shard engines, tracking which shards are alive, fanning queries out to
// them in parallel, and aggregating the results into one response.
//
// # Overview
//
// The coordinator does not own any triples itself. It maintains a registry of
// shard health (registration time, last heartbeat, accumulated query/error
// counts, and a derived status of active/inactive/unhealthy) and a dispatcher
// that calls out to shards concurrently, honoring a per-call timeout and
// never retrying a failed shard on its own.
//
// # Core components
//
//   - Registry: tracks per-shard {registeredAt, lastHeartbeat, status,
//     queryCount, errorCount} and derives status from elapsed time and error
//     ratio.
//   - Dispatcher: fans a query out to a shard set (or every active shard),
//     awaits all calls in parallel under a shared timeout, and aggregates
//     the union of results deduplicated by entity id.
//
// # Concurrency
//
// The registry is protected by a single RWMutex; all returned snapshots are
// copies so callers never observe a torn read. The dispatcher issues one
// goroutine per shard and collects results over a channel; it never blocks
// past the configured per-call timeout regardless of how many shards are
// unresponsive.
package coordinator
