// Package router implements spec §4.8: resolving an entity identifier to
// the (namespace, shard) pair that owns it. Routing depends only on the
// identifier's namespace, never on the entity's local id, so the same
// namespace always lands on the same shard across process restarts and
// across every node in the cluster — no coordination is needed to agree
// on where a namespace lives.
package router

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// DefaultNamespace is used when a caller supplies no entity context (e.g.
// creating a brand-new entity with no referring id to infer a namespace
// from). It must be a valid absolute http(s) URL: ident.FormEntityID
// requires its namespace argument to already satisfy NewEntityID's
// validation once joined with a local id.
const DefaultNamespace = ident.Namespace("https://tripledb.local/default")

// Route is the result of resolving an identifier: the namespace it
// belongs to and the shard that owns that namespace.
type Route struct {
	Namespace ident.Namespace
	ShardID   string
}

// Router maps namespaces to shard ids via a stable hash over a fixed-size
// shard space. shardCount is the number of shards in the cluster; it must
// agree across every process that routes, or the same namespace will
// disagree about its owning shard.
type Router struct {
	shardCount uint32
}

// New constructs a Router over shardCount shards. shardCount must be at
// least 1.
func New(shardCount uint32) (*Router, error) {
	if shardCount == 0 {
		return nil, errs.New(errs.InvalidValue, "router: shardCount must be >= 1")
	}
	return &Router{shardCount: shardCount}, nil
}

// Route resolves id to its owning namespace and shard by delegating to
// ident.ResolveNamespace, then hashing the recovered namespace.
func (r *Router) Route(id ident.EntityID) (Route, error) {
	resolved, err := ident.ResolveNamespace(id)
	if err != nil {
		return Route{}, err
	}
	return Route{
		Namespace: resolved.Namespace,
		ShardID:   r.ShardIDFor(resolved.Namespace),
	}, nil
}

// ShardIDFor computes the shard id owning namespace: a stable hash of the
// namespace string reduced into [0, shardCount), formatted as
// "shard-<hex>". Equal namespaces always produce equal shard ids (spec
// §4.8 invariant 6).
func (r *Router) ShardIDFor(namespace ident.Namespace) string {
	h := xxhash.Sum64String(string(namespace))
	slot := h % uint64(r.shardCount)
	return fmt.Sprintf("shard-%04x", slot)
}

// RouteForNamespace resolves directly from a namespace, skipping entity-id
// parsing — used when the caller already knows the namespace (e.g.
// createEntity with an explicit namespace and no prior id to derive it
// from).
func (r *Router) RouteForNamespace(namespace ident.Namespace) Route {
	return Route{Namespace: namespace, ShardID: r.ShardIDFor(namespace)}
}

// ShardCount returns the number of shards this router was constructed
// with.
func (r *Router) ShardCount() uint32 { return r.shardCount }
