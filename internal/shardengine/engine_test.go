package shardengine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/config"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

func testConfig(t *testing.T) config.ShardConfig {
	t.Helper()
	return config.ShardConfig{
		DataDir:                filepath.Join(t.TempDir(), "shard"),
		Namespace:              "https://e2e.example/",
		FlushMaxTriples:        1000,
		FlushMaxBytes:          1 << 20,
		FlushInterval:          time.Hour,
		MetricsFlushInterval:   time.Hour,
		BloomCapacity:          1000,
		BloomFalsePositiveRate: 0.01,
		VectorM:                8,
		VectorEfConstruction:   64,
	}
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustEntity(t *testing.T, raw string) ident.EntityID {
	t.Helper()
	id, err := ident.NewEntityID(raw)
	require.NoError(t, err)
	return id
}

func mustPredicate(t *testing.T, raw string) ident.Predicate {
	t.Helper()
	p, err := ident.NewPredicate(raw)
	require.NoError(t, err)
	return p
}

func mustTxID(t *testing.T) ident.TxID {
	t.Helper()
	id, err := ident.GenerateTxID(time.Now().UnixMilli(), nil)
	require.NoError(t, err)
	return id
}

func TestAppendThenRecordsRoundTrips(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/1")
	name := mustPredicate(t, "name")

	tr := triple.New(subject, name, value.String("widget"), 1, mustTxID(t))
	require.NoError(t, e.Append(ctx, tr))

	records, err := e.Records(ctx, subject, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	s, ok := records[0].Object.AsString()
	require.True(t, ok)
	assert.Equal(t, "widget", s)
}

func TestAppendIndexesStringIntoFullText(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/2")
	bio := mustPredicate(t, "bio")

	require.NoError(t, e.Append(ctx, triple.New(subject, bio, value.String("a traveling salesman"), 1, mustTxID(t))))

	hits, err := e.Match(ctx, "traveling", fts.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, subject, hits[0].Subject)
}

func TestAppendIndexesGeoPoint(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/3")
	loc := mustPredicate(t, "location")

	geoVal, err := value.GeoPointValue(value.GeoPoint{Lat: 37.7749, Lng: -122.4194})
	require.NoError(t, err)
	require.NoError(t, e.Append(ctx, triple.New(subject, loc, geoVal, 1, mustTxID(t))))

	hits, err := e.Near(ctx, loc, 37.7, -122.4, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, subject, hits[0].Subject)
}

func TestAppendIndexesVector(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/4")
	embedding := mustPredicate(t, "embedding")

	vec, err := value.Vector([]float32{1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, e.Append(ctx, triple.New(subject, embedding, vec, 1, mustTxID(t))))

	results, err := e.VectorSearch(ctx, embedding, []float32{1, 0, 0}, 1, 16)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, subject, results[0].Subject)
}

func TestTombstoneRemovesFromSecondaryIndexes(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/5")
	bio := mustPredicate(t, "bio")

	require.NoError(t, e.Append(ctx, triple.New(subject, bio, value.String("searchable text"), 1, mustTxID(t))))
	require.NoError(t, e.Append(ctx, triple.Tombstone(subject, bio, 2, mustTxID(t))))

	hits, err := e.Match(ctx, "searchable", fts.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMightContainReflectsFlushedSubjects(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/6")
	name := mustPredicate(t, "name")

	assert.False(t, e.MightContain(subject))
	require.NoError(t, e.Append(ctx, triple.New(subject, name, value.String("x"), 1, mustTxID(t))))
	_, err := e.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, e.MightContain(subject))
}

func TestAppendBatchWritesAllTriplesTogether(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/7")
	a := mustPredicate(t, "a")
	b := mustPredicate(t, "b")

	batch := []triple.Triple{
		triple.New(subject, a, value.String("1"), 1, mustTxID(t)),
		triple.New(subject, b, value.String("2"), 1, mustTxID(t)),
	}
	require.NoError(t, e.AppendBatch(ctx, batch))

	records, err := e.Records(ctx, subject, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCloseThenReopenPersistsBloomAndData(t *testing.T) {
	cfg := testConfig(t)
	e, err := Open(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()
	subject := mustEntity(t, "https://e2e.example/item/8")
	name := mustPredicate(t, "name")
	require.NoError(t, e.Append(ctx, triple.New(subject, name, value.String("x"), 1, mustTxID(t))))
	_, err = e.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e2, err := Open(cfg, nil)
	require.NoError(t, err)
	defer e2.Close()

	assert.True(t, e2.MightContain(subject))
	records, err := e2.Records(ctx, subject, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
