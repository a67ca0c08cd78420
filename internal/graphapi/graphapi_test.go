package graphapi

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/config"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/router"
	"github.com/dreamware/tripledb/internal/shardengine"
)

const testNamespace = "https://e2e.example"

// testOrchestrator brings up one router over shardCount shards, opens a
// real shardengine.Engine per shard rooted under t.TempDir(), and wires
// them into an Orchestrator through a LocalShardClient. Most tests pass a
// single shard; the reverseTraverse test passes more so its fan-out
// crosses several engines.
func testOrchestrator(t *testing.T, shardCount uint32) *Orchestrator {
	t.Helper()

	rt, err := router.New(shardCount)
	require.NoError(t, err)

	engines := make(map[string]*shardengine.Engine)

	// This corpus shards by namespace, not by an externally assigned
	// shard id, so a single fixed test namespace always routes to exactly
	// one shard no matter how many shards the router is configured with.
	// Open one engine per shard id that the namespaces tenant-a, tenant-b,
	// ... route to (ids that collide are opened once), so ShardIDs()
	// fan-out tests see several mostly empty engines.
	for i := uint32(0); i < shardCount; i++ {
		ns := ident.Namespace("https://tenant-" + string(rune('a'+i)) + ".example")
		id := rt.ShardIDFor(ns)
		if _, exists := engines[id]; exists {
			continue
		}
		cfg := config.ShardConfig{
			DataDir:                filepath.Join(t.TempDir(), id),
			Namespace:              string(ns),
			FlushMaxTriples:        1000,
			FlushMaxBytes:          1 << 20,
			FlushInterval:          time.Hour,
			MetricsFlushInterval:   time.Hour,
			BloomCapacity:          1000,
			BloomFalsePositiveRate: 0.01,
			VectorM:                8,
			VectorEfConstruction:   64,
		}
		e, err := shardengine.Open(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = e.Close() })
		engines[id] = e
	}

	// Ensure the fixed test namespace's own shard is present too.
	fixedID := rt.ShardIDFor(ident.Namespace(testNamespace))
	if _, ok := engines[fixedID]; !ok {
		cfg := config.ShardConfig{
			DataDir:                filepath.Join(t.TempDir(), fixedID),
			Namespace:              testNamespace,
			FlushMaxTriples:        1000,
			FlushMaxBytes:          1 << 20,
			FlushInterval:          time.Hour,
			MetricsFlushInterval:   time.Hour,
			BloomCapacity:          1000,
			BloomFalsePositiveRate: 0.01,
			VectorM:                8,
			VectorEfConstruction:   64,
		}
		e, err := shardengine.Open(cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = e.Close() })
		engines[fixedID] = e
	}

	client := NewLocalShardClient(engines)
	return New(rt, client, ident.Namespace(testNamespace), nil)
}

func mustID(t *testing.T, raw string) ident.EntityID {
	t.Helper()
	id, err := ident.NewEntityID(raw)
	require.NoError(t, err)
	return id
}

func mustPred(t *testing.T, raw string) ident.Predicate {
	t.Helper()
	p, err := ident.NewPredicate(raw)
	require.NoError(t, err)
	return p
}
