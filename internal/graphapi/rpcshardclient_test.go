package graphapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/cluster"
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/position"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

func testTriple(t *testing.T) triple.Triple {
	t.Helper()
	subj, err := ident.NewEntityID("https://ex.test/widgets/1")
	require.NoError(t, err)
	pred, err := ident.NewPredicate("name")
	require.NoError(t, err)
	tx, err := ident.NewTxID("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.NoError(t, err)
	return triple.New(subj, pred, value.String("widget-1"), 100, tx)
}

func TestRPCShardClientAppend(t *testing.T) {
	tr := testTriple(t)
	var gotBody cluster.AppendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/append", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewRPCShardClient(map[string]string{"shard-0001": server.URL})
	require.NoError(t, c.Append(context.Background(), "shard-0001", tr))

	decoded, err := cluster.DecodeTriples(gotBody.Triple)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, tr.Subject, decoded[0].Subject)
}

func TestRPCShardClientAppendBatch(t *testing.T) {
	triples := []triple.Triple{testTriple(t)}
	var gotBody cluster.AppendBatchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/append-batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewRPCShardClient(map[string]string{"shard-0001": server.URL})
	require.NoError(t, c.AppendBatch(context.Background(), "shard-0001", triples))

	decoded, err := cluster.DecodeTriples(gotBody.Triples)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
}

func TestRPCShardClientRecords(t *testing.T) {
	tr := testTriple(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/records", r.URL.Path)
		assert.Equal(t, "https://ex.test/widgets/1", r.URL.Query().Get("subject"))
		assert.Equal(t, "100", r.URL.Query().Get("since"))

		blob, err := cluster.EncodeTriples([]triple.Triple{tr})
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(cluster.RecordsResponse{Triples: blob})
	}))
	defer server.Close()

	c := NewRPCShardClient(map[string]string{"shard-0001": server.URL})
	got, err := c.Records(context.Background(), "shard-0001", tr.Subject, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tr.Subject, got[0].Subject)
}

func TestRPCShardClientByPredicateObject(t *testing.T) {
	pred, err := ident.NewPredicate("name")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/position", r.URL.Path)
		assert.Equal(t, "name", r.URL.Query().Get("predicate"))

		entries := []position.Entry{{Subject: "https://ex.test/widgets/1", Predicate: pred, Timestamp: 100}}
		_ = json.NewEncoder(w).Encode(cluster.PositionResponse{Entries: entries})
	}))
	defer server.Close()

	c := NewRPCShardClient(map[string]string{"shard-0001": server.URL})
	got, err := c.ByPredicateObject(context.Background(), "shard-0001", pred, value.String("widget-1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ident.EntityID("https://ex.test/widgets/1"), got[0].Subject)
}

func TestRPCShardClientUnknownShardIsInternalError(t *testing.T) {
	c := NewRPCShardClient(map[string]string{})
	err := c.Append(context.Background(), "shard-missing", testTriple(t))
	require.Error(t, err)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
}

func TestRPCShardClientTransportFailureIsRpcError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewRPCShardClient(map[string]string{"shard-0001": server.URL})
	err := c.Append(context.Background(), "shard-0001", testTriple(t))
	require.Error(t, err)
	assert.Equal(t, errs.RpcError, errs.KindOf(err))
}

func TestRPCShardClientShardIDsSorted(t *testing.T) {
	c := NewRPCShardClient(map[string]string{"shard-0002": "x", "shard-0001": "y"})
	assert.Equal(t, []string{"shard-0001", "shard-0002"}, c.ShardIDs())
}
