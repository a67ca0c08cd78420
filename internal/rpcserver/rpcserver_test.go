package rpcserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/config"
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/graphapi"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/router"
	"github.com/dreamware/tripledb/internal/shardengine"
)

const testNamespace = "https://e2e.example"

func testHandler(t *testing.T) *Handler {
	t.Helper()

	rt, err := router.New(1)
	require.NoError(t, err)

	id := rt.ShardIDFor(ident.Namespace(testNamespace))
	cfg := config.ShardConfig{
		DataDir:                filepath.Join(t.TempDir(), id),
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

	client := graphapi.NewLocalShardClient(map[string]*shardengine.Engine{id: e})
	orch := graphapi.New(rt, client, ident.Namespace(testNamespace), nil)
	return New(orch, NewSession(), nil)
}

func TestDispatchPing(t *testing.T) {
	h := testHandler(t)
	resp := h.Dispatch(context.Background(), Request{Method: "ping", RequestID: "r1"})
	require.Nil(t, resp.Error)
	assert.Equal(t, "r1", resp.RequestID)
}

func TestDispatchSetGetState(t *testing.T) {
	h := testHandler(t)
	ctx := context.Background()

	setResp := h.Dispatch(ctx, Request{Method: "setState", Args: map[string]any{"value": float64(42)}})
	require.Nil(t, setResp.Error)

	getResp := h.Dispatch(ctx, Request{Method: "getState"})
	require.Nil(t, getResp.Error)
	m, ok := getResp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), m["value"])
}

func TestDispatchCursorRoundtrip(t *testing.T) {
	h := testHandler(t)
	ctx := context.Background()

	store := h.Dispatch(ctx, Request{Method: "storeCursor", Args: map[string]any{"id": "c1", "cursor": "abc"}})
	require.Nil(t, store.Error)

	get := h.Dispatch(ctx, Request{Method: "getCursor", Args: map[string]any{"id": "c1"}})
	require.Nil(t, get.Error)
	m := get.Result.(map[string]any)
	assert.Equal(t, "abc", m["cursor"])
	assert.Equal(t, true, m["found"])

	clear := h.Dispatch(ctx, Request{Method: "clearCursor", Args: map[string]any{"id": "c1"}})
	require.Nil(t, clear.Error)

	get2 := h.Dispatch(ctx, Request{Method: "getCursor", Args: map[string]any{"id": "c1"}})
	m2 := get2.Result.(map[string]any)
	assert.Equal(t, false, m2["found"])
}

func TestDispatchCreateAndGetEntity(t *testing.T) {
	h := testHandler(t)
	ctx := context.Background()
	id := testNamespace + "/widgets/1"

	create := h.Dispatch(ctx, Request{Method: "createEntity", Args: map[string]any{
		"id":    id,
		"type":  "Widget",
		"props": map[string]any{"name": "thing"},
	}})
	require.Nil(t, create.Error)

	get := h.Dispatch(ctx, Request{Method: "getEntity", Args: map[string]any{"id": id}})
	require.Nil(t, get.Error)
	m := get.Result.(map[string]any)
	assert.Equal(t, true, m["found"])
}

func TestDispatchUnknownMethod(t *testing.T) {
	h := testHandler(t)
	resp := h.Dispatch(context.Background(), Request{Method: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(errs.ValidationError), resp.Error.Code)
}

func TestDispatchMissingIDIsValidationError(t *testing.T) {
	h := testHandler(t)
	resp := h.Dispatch(context.Background(), Request{Method: "getEntity"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(errs.ValidationError), resp.Error.Code)
}

func TestExecuteSubrequestsRunsNestedCalls(t *testing.T) {
	h := testHandler(t)
	ctx := context.Background()

	resp := h.Dispatch(ctx, Request{
		Method: "executeSubrequests",
		Args: map[string]any{
			"requests": []any{
				map[string]any{"method": "ping"},
				map[string]any{"method": "ping"},
			},
		},
	})
	require.Nil(t, resp.Error)
	m := resp.Result.(map[string]any)
	responses := m["responses"].([]Response)
	require.Len(t, responses, 2)
	for _, r := range responses {
		assert.Nil(t, r.Error)
	}
}

func TestExecuteSubrequestsOverCapIsBatchSizeExceeded(t *testing.T) {
	h := testHandler(t)
	reqs := make([]any, 1001)
	for i := range reqs {
		reqs[i] = map[string]any{"method": "ping"}
	}

	resp := h.Dispatch(context.Background(), Request{
		Method: "executeSubrequests",
		Args:   map[string]any{"requests": reqs},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(errs.BatchSizeExceeded), resp.Error.Code)
}

func TestDispatchNoOrchestratorConfigured(t *testing.T) {
	h := New(nil, NewSession(), nil)
	resp := h.Dispatch(context.Background(), Request{Method: "getEntity", Args: map[string]any{"id": "x"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(errs.Internal), resp.Error.Code)
}
