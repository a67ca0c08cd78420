// Package cluster implements the wire transport between the coordinator and
// shard processes: JSON-over-HTTP helpers, the registration/heartbeat
// envelopes a shard sends the coordinator, and the triple/value framing the
// coordinator's RPC-backed ShardClient uses to call a remote shard's HTTP
// surface.
//
// # Overview
//
// tripledb runs as two binaries (spec §2): cmd/shard (one per-shard engine
// process) and cmd/coordinator (registry + fan-out). Because shards and the
// coordinator are separate processes, the orchestrator in internal/graphapi
// needs a ShardClient implementation that reaches a shard over the network
// rather than an in-process method call — this package is the transport
// underneath that implementation.
//
// # Communication protocol
//
// Shard registration (POST /shards/register on the coordinator):
//   - A shard announces its id and address when it starts up.
//   - The coordinator's shard registry (internal/coordinator) begins
//     tracking its health from that point.
//
// Heartbeats (POST /shards/heartbeat):
//   - Sent periodically so the coordinator does not mark the shard inactive.
//
// Triple/value framing:
//   - Triples cross the wire using the same columnar chunk encoding
//     (internal/chunkcodec) the engine already uses for persistence — one
//     []byte blob, base64-encoded automatically by encoding/json. A remote
//     ShardClient call never needs its own ad-hoc triple serialization.
//   - A single typed object (the query value passed to ByPredicateObject)
//     is framed the same way: as a one-triple chunk blob whose object is
//     the value being transmitted, reusing chunkcodec's variant handling
//     instead of a parallel JSON encoding for value.Value.
//
// # Concurrency
//
// PostJSON/GetJSON are safe for concurrent use; the shared httpClient pools
// connections across calls. Callers control cancellation and per-call
// timeouts via the context passed in, matching spec §5's "outgoing shard
// requests carry a per-call timeout."
package cluster
