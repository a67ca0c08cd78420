// Package graphapi implements spec §4.10, the Graph API / Orchestrator: the
// public entity, traversal, and query surface sitting above the per-shard
// engines. It consults a router to pick the one shard that owns an entity
// id for single-shard operations (getEntity, createEntity, updateEntity,
// deleteEntity, traverse, and each hop of pathTraverse and the
// path-expression query dialect), and fans a call out across every shard a
// ShardClient knows about for reverseTraverse, whose answer cannot come
// from one shard alone.
//
// The orchestrator never touches persistent storage directly; it only ever
// calls through the ShardClient interface, so the same entity/traversal
// logic runs unchanged whether shards are collocated in one process (the
// LocalShardClient used by tests and single-process deployments) or spread
// across a cluster reached over RPC.
package graphapi
