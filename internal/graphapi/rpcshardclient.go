package graphapi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/dreamware/tripledb/internal/cluster"
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/index/geo"
	"github.com/dreamware/tripledb/internal/index/position"
	"github.com/dreamware/tripledb/internal/index/vector"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// RPCShardClient satisfies ShardClient by calling each shard's HTTP surface
// over the network, via internal/cluster's JSON/chunkcodec framing. This is
// the implementation cmd/coordinator wires up, since shards run as
// independent processes (spec §2's two-binary topology) rather than
// collocated in the coordinator's address space the way LocalShardClient
// assumes.
//
// The address map is mutable: cmd/coordinator calls SetAddr/RemoveAddr as
// shards register/deregister over its lifetime, rather than rebuilding the
// client on every change to the shard registry.
type RPCShardClient struct {
	mu    sync.RWMutex
	addrs map[string]string
}

// NewRPCShardClient builds a client from a shard id → base HTTP address map
// (e.g. "shard-0001" → "http://localhost:9001"). A nil or empty map is
// fine; addresses can be added later via SetAddr.
func NewRPCShardClient(addrs map[string]string) *RPCShardClient {
	if addrs == nil {
		addrs = make(map[string]string)
	}
	return &RPCShardClient{addrs: addrs}
}

// SetAddr records or updates shardID's base address.
func (c *RPCShardClient) SetAddr(shardID, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addrs[shardID] = addr
}

// RemoveAddr forgets shardID, e.g. on deregistration.
func (c *RPCShardClient) RemoveAddr(shardID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.addrs, shardID)
}

func (c *RPCShardClient) addr(shardID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.addrs[shardID]
	if !ok {
		return "", errs.New(errs.Internal, "no known address for shard %q", shardID)
	}
	return a, nil
}

// Append implements ShardClient.
func (c *RPCShardClient) Append(ctx context.Context, shardID string, t triple.Triple) error {
	base, err := c.addr(shardID)
	if err != nil {
		return err
	}
	blob, err := cluster.EncodeTriples([]triple.Triple{t})
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encode triple")
	}
	return rpcError(cluster.PostJSON(ctx, base+"/rpc/append", cluster.AppendRequest{Triple: blob}, nil))
}

// AppendBatch implements ShardClient.
func (c *RPCShardClient) AppendBatch(ctx context.Context, shardID string, triples []triple.Triple) error {
	base, err := c.addr(shardID)
	if err != nil {
		return err
	}
	blob, err := cluster.EncodeTriples(triples)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "encode triples")
	}
	return rpcError(cluster.PostJSON(ctx, base+"/rpc/append-batch", cluster.AppendBatchRequest{Triples: blob}, nil))
}

// Records implements ShardClient.
func (c *RPCShardClient) Records(ctx context.Context, shardID string, subject ident.EntityID, since int64) ([]triple.Triple, error) {
	base, err := c.addr(shardID)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/rpc/records?subject=%s&since=%d", base, url.QueryEscape(string(subject)), since)
	var resp cluster.RecordsResponse
	if err := rpcError(cluster.GetJSON(ctx, u, &resp)); err != nil {
		return nil, err
	}
	triples, err := cluster.DecodeTriples(resp.Triples)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "decode triples")
	}
	return triples, nil
}

// ByPredicateObject implements ShardClient.
func (c *RPCShardClient) ByPredicateObject(ctx context.Context, shardID string, predicate ident.Predicate, object value.Value) ([]position.Entry, error) {
	base, err := c.addr(shardID)
	if err != nil {
		return nil, err
	}
	blob, err := cluster.EncodeValue("", predicate, object)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "encode object")
	}
	u := fmt.Sprintf("%s/rpc/position?predicate=%s&object=%s",
		base, url.QueryEscape(string(predicate)), url.QueryEscape(string(blob)))
	var resp cluster.PositionResponse
	if err := rpcError(cluster.GetJSON(ctx, u, &resp)); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Near implements ShardClient.
func (c *RPCShardClient) Near(ctx context.Context, shardID string, predicate ident.Predicate, lat, lng, radiusKm float64) ([]geo.Hit, error) {
	base, err := c.addr(shardID)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/rpc/near?predicate=%s&lat=%s&lng=%s&radiusKm=%s",
		base, url.QueryEscape(string(predicate)),
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(radiusKm, 'f', -1, 64))
	var resp cluster.NearResponse
	if err := rpcError(cluster.GetJSON(ctx, u, &resp)); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Search implements ShardClient.
func (c *RPCShardClient) Search(ctx context.Context, shardID string, text string, opts fts.Options) ([]fts.Hit, error) {
	base, err := c.addr(shardID)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/rpc/search?text=%s&predicate=%s&limit=%d",
		base, url.QueryEscape(text), url.QueryEscape(string(opts.Predicate)), opts.Limit)
	var resp cluster.SearchResponse
	if err := rpcError(cluster.GetJSON(ctx, u, &resp)); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// VectorSearch implements ShardClient.
func (c *RPCShardClient) VectorSearch(ctx context.Context, shardID string, predicate ident.Predicate, vec []float32, k, ef int) ([]vector.Result, error) {
	base, err := c.addr(shardID)
	if err != nil {
		return nil, err
	}
	req := cluster.VectorSearchRequest{Predicate: string(predicate), Vector: vec, K: k, Ef: ef}
	var resp cluster.VectorSearchResponse
	if err := rpcError(cluster.PostJSON(ctx, base+"/rpc/vector-search", req, &resp)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ShardIDs implements ShardClient. The result is sorted for deterministic
// fan-out order.
func (c *RPCShardClient) ShardIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.addrs))
	for id := range c.addrs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rpcError classifies a transport-level failure as the spec's RpcError kind
// rather than letting an unadorned net/http error escape the orchestrator.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.RpcError, err, "shard rpc failed")
}
