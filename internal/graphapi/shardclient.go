package graphapi

import (
	"context"
	"sort"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/index/geo"
	"github.com/dreamware/tripledb/internal/index/position"
	"github.com/dreamware/tripledb/internal/index/vector"
	"github.com/dreamware/tripledb/internal/shardengine"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// ShardClient is everything the orchestrator needs from a shard, kept
// behind an interface so single-shard operations can be satisfied either by
// an in-process Engine (LocalShardClient) or by a call over the cluster RPC
// transport in a distributed deployment.
type ShardClient interface {
	Append(ctx context.Context, shardID string, t triple.Triple) error
	AppendBatch(ctx context.Context, shardID string, triples []triple.Triple) error
	Records(ctx context.Context, shardID string, subject ident.EntityID, since int64) ([]triple.Triple, error)
	ByPredicateObject(ctx context.Context, shardID string, predicate ident.Predicate, object value.Value) ([]position.Entry, error)
	// Near resolves a geo radius query (spec §4.6) against one shard.
	Near(ctx context.Context, shardID string, predicate ident.Predicate, lat, lng, radiusKm float64) ([]geo.Hit, error)
	// Search resolves a full-text MATCH query (spec §4.6) against one
	// shard. text is assumed already sanitized by the transport's
	// sanitizer collaborator (spec §1/§6).
	Search(ctx context.Context, shardID string, text string, opts fts.Options) ([]fts.Hit, error)
	// VectorSearch resolves an HNSW nearest-neighbor query (spec §4.6)
	// against one shard.
	VectorSearch(ctx context.Context, shardID string, predicate ident.Predicate, vec []float32, k, ef int) ([]vector.Result, error)

	// ShardIDs lists every shard this client can reach, used by the fan-out
	// operation (reverseTraverse) that cannot know in advance which shard
	// holds the answer.
	ShardIDs() []string
}

// LocalShardClient satisfies ShardClient by calling directly into engines
// hosted in this same process — the collocated shape used by tests and by
// a single-process deployment that runs every shard's engine in-memory
// alongside the orchestrator.
type LocalShardClient struct {
	engines map[string]*shardengine.Engine
}

// NewLocalShardClient wraps a fixed set of already-open engines, keyed by
// shard id.
func NewLocalShardClient(engines map[string]*shardengine.Engine) *LocalShardClient {
	return &LocalShardClient{engines: engines}
}

func (c *LocalShardClient) engine(shardID string) (*shardengine.Engine, error) {
	e, ok := c.engines[shardID]
	if !ok {
		return nil, errs.New(errs.Internal, "no engine hosted locally for shard %q", shardID)
	}
	return e, nil
}

// Append implements ShardClient.
func (c *LocalShardClient) Append(ctx context.Context, shardID string, t triple.Triple) error {
	e, err := c.engine(shardID)
	if err != nil {
		return err
	}
	return e.Append(ctx, t)
}

// AppendBatch implements ShardClient.
func (c *LocalShardClient) AppendBatch(ctx context.Context, shardID string, triples []triple.Triple) error {
	e, err := c.engine(shardID)
	if err != nil {
		return err
	}
	return e.AppendBatch(ctx, triples)
}

// Records implements ShardClient.
func (c *LocalShardClient) Records(ctx context.Context, shardID string, subject ident.EntityID, since int64) ([]triple.Triple, error) {
	e, err := c.engine(shardID)
	if err != nil {
		return nil, err
	}
	return e.Records(ctx, subject, since)
}

// ByPredicateObject implements ShardClient.
func (c *LocalShardClient) ByPredicateObject(ctx context.Context, shardID string, predicate ident.Predicate, object value.Value) ([]position.Entry, error) {
	e, err := c.engine(shardID)
	if err != nil {
		return nil, err
	}
	return e.ByPredicateObject(ctx, predicate, object)
}

// Near implements ShardClient.
func (c *LocalShardClient) Near(ctx context.Context, shardID string, predicate ident.Predicate, lat, lng, radiusKm float64) ([]geo.Hit, error) {
	e, err := c.engine(shardID)
	if err != nil {
		return nil, err
	}
	return e.Near(ctx, predicate, lat, lng, radiusKm)
}

// Search implements ShardClient.
func (c *LocalShardClient) Search(ctx context.Context, shardID string, text string, opts fts.Options) ([]fts.Hit, error) {
	e, err := c.engine(shardID)
	if err != nil {
		return nil, err
	}
	return e.Match(ctx, text, opts)
}

// VectorSearch implements ShardClient.
func (c *LocalShardClient) VectorSearch(ctx context.Context, shardID string, predicate ident.Predicate, vec []float32, k, ef int) ([]vector.Result, error) {
	e, err := c.engine(shardID)
	if err != nil {
		return nil, err
	}
	return e.VectorSearch(ctx, predicate, vec, k, ef)
}

// ShardIDs implements ShardClient. The result is sorted so fan-out order
// (and thus dedup tie-breaking) is deterministic across calls.
func (c *LocalShardClient) ShardIDs() []string {
	ids := make([]string, 0, len(c.engines))
	for id := range c.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
