package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardNodeRoundTrips(t *testing.T) {
	node := ShardNode{ID: "shard-0001", Addr: "http://localhost:9001"}

	data, err := json.Marshal(node)
	require.NoError(t, err)

	var jsonMap map[string]any
	require.NoError(t, json.Unmarshal(data, &jsonMap))
	assert.Equal(t, "shard-0001", jsonMap["id"])
	assert.Equal(t, "http://localhost:9001", jsonMap["addr"])
	_, hasStatus := jsonMap["status"]
	assert.False(t, hasStatus, "omitempty status should be absent when unset")

	var decoded ShardNode
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, node.ID, decoded.ID)
	assert.Equal(t, node.Addr, decoded.Addr)
}

func TestShardRegisterRequestRoundTrips(t *testing.T) {
	req := ShardRegisterRequest{Shard: ShardNode{ID: "shard-0002", Addr: "http://localhost:9002"}}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded ShardRegisterRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req.Shard.ID, decoded.Shard.ID)
	assert.Equal(t, req.Shard.Addr, decoded.Shard.Addr)
}

func TestHeartbeatRequestRoundTrips(t *testing.T) {
	req := HeartbeatRequest{ShardID: "shard-0001"}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded HeartbeatRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req.ShardID, decoded.ShardID)
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var resp map[string]string
	err := PostJSON(context.Background(), server.URL, map[string]string{"k": "v"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

func TestPostJSONNoContentSkipsDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.URL, map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
}

func TestPostJSONServerErrorIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.URL, map[string]string{"k": "v"}, nil)
	assert.Error(t, err)
}

func TestPostJSONContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := PostJSON(ctx, server.URL, map[string]string{"k": "v"}, nil)
	assert.Error(t, err)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"data":"test"}`))
	}))
	defer server.Close()

	var resp map[string]string
	err := GetJSON(context.Background(), server.URL, &resp)
	require.NoError(t, err)
	assert.Equal(t, "test", resp["data"])
}

func TestGetJSONRedirectIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer server.Close()

	var resp map[string]string
	err := GetJSON(context.Background(), server.URL, &resp)
	assert.Error(t, err)
}

func TestGetJSONInvalidURL(t *testing.T) {
	var resp map[string]string
	err := GetJSON(context.Background(), "://invalid-url", &resp)
	assert.Error(t, err)
}

func TestHTTPClientTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, httpClient.Timeout)
}
