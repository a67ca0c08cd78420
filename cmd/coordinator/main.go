// Package main implements the coordinator service: the control-plane
// process that tracks which shards are alive, proxies the caller-contract
// RPC surface (spec §6) to the right shard, and serves the cluster-wide
// query/shard-registry HTTP surface. Generalized from torua's coordinator,
// which did the equivalent job (registration, health, fan-out) for a flat
// key-value cluster instead of a sharded triple store.
//
// # Overview
//
//	┌──────────────────────────────────────────────┐
//	│                 coordinator                    │
//	├──────────────────────────────────────────────┤
//	│  GET  /health  /metrics  /state                │
//	│  POST /reset                                   │
//	│  POST /rpc                                     │
//	│  POST /query                                   │
//	│  POST /shards/register /deregister /heartbeat  │
//	│  GET  /shards                                  │
//	└──────────────────────────────────────────────┘
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/tripledb/internal/cluster"
	"github.com/dreamware/tripledb/internal/config"
	"github.com/dreamware/tripledb/internal/coordinator"
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/graphapi"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/logging"
	"github.com/dreamware/tripledb/internal/router"
	"github.com/dreamware/tripledb/internal/rpcserver"
	"github.com/dreamware/tripledb/internal/value"
)

var configPath string

func main() {
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the shard registry and query fan-out service",
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a coordinator config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadCoordinatorConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	registry := coordinator.NewShardRegistry(cfg.InactiveAfter)
	dispatcher := coordinator.NewDispatcher(registry, cfg.ShardCallTimeout)
	client := graphapi.NewRPCShardClient(nil)

	// A single router shard: the coordinator never hosts an engine locally.
	// With one router shard every entity id maps to the same shard id,
	// which the orchestrator's entity-addressed operations (get, create,
	// update, delete, traverse) then call; fan-out queries are driven by
	// the shard registry and the client's known addresses instead.
	rt, err := router.New(1)
	if err != nil {
		return err
	}
	defaultNamespace, err := ident.NewNamespace(cfg.DefaultNamespace)
	if err != nil {
		return errs.Wrap(errs.ValidationError, err, "coordinator default_namespace")
	}
	orch := graphapi.New(rt, client, defaultNamespace, log)
	rpc := rpcserver.New(orch, rpcserver.NewSession(), log)

	srv := newServer(registry, dispatcher, client, rpc, cfg, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("coordinator listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("listen", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("server shutdown", "error", err)
	}
	log.Info("coordinator stopped")
	return nil
}

// server bundles the registry, dispatcher, RPC client/handler, and the
// Prometheus counters this process exposes on GET /prometheus.
type server struct {
	registry   *coordinator.ShardRegistry
	dispatcher *coordinator.Dispatcher
	client     *graphapi.RPCShardClient
	rpc        *rpcserver.Handler
	cfg        config.CoordinatorConfig
	log        *zap.SugaredLogger

	queriesTotal *prometheus.CounterVec
}

func newServer(registry *coordinator.ShardRegistry, dispatcher *coordinator.Dispatcher, client *graphapi.RPCShardClient, rpc *rpcserver.Handler, cfg config.CoordinatorConfig, log *zap.SugaredLogger) *server {
	return &server{
		registry:   registry,
		dispatcher: dispatcher,
		client:     client,
		rpc:        rpc,
		cfg:        cfg,
		log:        log,
		queriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tripledb_coordinator_queries_total",
			Help: "Total POST /query calls handled, by type.",
		}, []string{"type"}),
	}
}

func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/rpc", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)

	r.HandleFunc("/shards/register", s.handleShardRegister).Methods(http.MethodPost)
	r.HandleFunc("/shards/deregister", s.handleShardDeregister).Methods(http.MethodPost)
	r.HandleFunc("/shards/heartbeat", s.handleShardHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/shards", s.handleShardList).Methods(http.MethodGet)
	return r
}

// handleHealth implements GET /health → {status, connections, timestamp}.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.rpc.Session().Connections(),
		"timestamp":   time.Now().UnixMilli(),
	})
}

// handleMetrics implements GET /metrics → {metrics, activeConnections,
// stateValue}. "metrics" here is the shard registry's own view, since the
// coordinator has no chunk store of its own to report on.
func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":           map[string]any{"shards": s.registry.List()},
		"activeConnections": s.rpc.Session().Connections(),
		"stateValue":        s.rpc.Session().StateValue(),
	})
}

// handleState implements GET /state: the registry's current view plus
// caller state, for operators and the hibernation-resume test scenario.
func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"shards":     s.registry.List(),
		"stateValue": s.rpc.Session().StateValue(),
	})
}

// handleReset implements POST /reset: clears the coordinator's own session
// state. It does not touch the shard registry or any shard's data.
func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.rpc.Session().Reset(); err != nil {
		writeError(w, errs.Wrap(errs.Internal, err, "reset"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRPC implements the caller contract of spec §6 on a single mount
// path: one request object dispatches to exactly one §4.10 operation or
// utility method. A JSON array dispatches each element in order and
// returns an array of responses, per spec §6's "batched calls" clause.
func (s *server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode request: %v", err))
		return
	}

	if len(raw) > 0 && raw[0] == '[' {
		var reqs []rpcserver.Request
		if err := json.Unmarshal(raw, &reqs); err != nil {
			writeError(w, errs.New(errs.ValidationError, "decode batched request: %v", err))
			return
		}
		resps := make([]rpcserver.Response, len(reqs))
		for i, req := range reqs {
			resps[i] = s.rpc.Dispatch(r.Context(), req)
		}
		writeJSON(w, http.StatusOK, resps)
		return
	}

	var req rpcserver.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode request: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, s.rpc.Dispatch(r.Context(), req))
}

// queryRequest is the POST /query body of spec §4.11/§6.
type queryRequest struct {
	Type      string    `json:"type"`
	IDs       []string  `json:"ids,omitempty"`
	StartID   string    `json:"startId,omitempty"`
	Predicate string    `json:"predicate,omitempty"`
	Object    any       `json:"object,omitempty"`
	ShardIDs  []string  `json:"shardIds,omitempty"`
	MaxDepth  int       `json:"maxDepth,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lng       float64   `json:"lng,omitempty"`
	RadiusKm  float64   `json:"radiusKm,omitempty"`
	Text      string    `json:"text,omitempty"`
	Vector    []float32 `json:"vector,omitempty"`
	K         int       `json:"k,omitempty"`
	Ef        int       `json:"ef,omitempty"`
}

// handleQuery implements POST /query: {type ∈ {lookup, traverse, filter,
// near, search, vectorSearch}} per spec §4.11/§4.6. "lookup" and "traverse"
// route directly to the owning shard through the orchestrator (the caller
// already knows the id/namespace); the remaining types have no a-priori
// shard and fan out across the shard set via the Dispatcher, since a match
// could live on any shard.
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode query request: %v", err))
		return
	}
	s.queriesTotal.WithLabelValues(req.Type).Inc()

	switch req.Type {
	case "lookup":
		s.handleLookupQuery(w, r, req)
	case "traverse":
		s.handleTraverseQuery(w, r, req)
	case "filter":
		s.handleFilterQuery(w, r, req)
	case "near":
		s.handleNearQuery(w, r, req)
	case "search":
		s.handleSearchQuery(w, r, req)
	case "vectorSearch":
		s.handleVectorSearchQuery(w, r, req)
	default:
		writeError(w, errs.New(errs.ValidationError, "unknown query type %q", req.Type))
	}
}

func (s *server) handleLookupQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	ids := make([]ident.EntityID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := ident.NewEntityID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		ids = append(ids, id)
	}
	resp := s.rpc.Dispatch(r.Context(), rpcserver.Request{Method: "batchGet", Args: map[string]any{"ids": anySlice(ids)}})
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTraverseQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	resp := s.rpc.Dispatch(r.Context(), rpcserver.Request{Method: "traverse", Args: map[string]any{
		"startId":   req.StartID,
		"predicate": req.Predicate,
		"maxDepth":  float64(req.MaxDepth),
		"limit":     float64(req.Limit),
	}})
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleFilterQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	pred, err := ident.NewPredicate(req.Predicate)
	if err != nil {
		writeError(w, err)
		return
	}
	object := coerceQueryValue(req.Object)

	shardIDs := req.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = s.registry.Active()
	}

	call := func(ctx context.Context, shardID string) ([]map[string]any, error) {
		entries, err := s.client.ByPredicateObject(ctx, shardID, pred, object)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(entries))
		for i, e := range entries {
			out[i] = map[string]any{"$id": string(e.Subject), "predicate": string(e.Predicate), "timestamp": e.Timestamp}
		}
		return out, nil
	}

	result, err := s.dispatcher.Dispatch(r.Context(), shardIDs, req.Limit, call)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleNearQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	pred, err := ident.NewPredicate(req.Predicate)
	if err != nil {
		writeError(w, err)
		return
	}

	shardIDs := req.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = s.registry.Active()
	}

	call := func(ctx context.Context, shardID string) ([]map[string]any, error) {
		hits, err := s.client.Near(ctx, shardID, pred, req.Lat, req.Lng, req.RadiusKm)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(hits))
		for i, h := range hits {
			out[i] = map[string]any{
				"$id":        string(h.Subject),
				"predicate":  string(h.Predicate),
				"lat":        h.Lat,
				"lng":        h.Lng,
				"distanceKm": h.DistanceKm,
				"timestamp":  h.Timestamp,
			}
		}
		return out, nil
	}

	result, err := s.dispatcher.Dispatch(r.Context(), shardIDs, req.Limit, call)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleSearchQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	opts := fts.Options{Limit: req.Limit}
	if req.Predicate != "" {
		pred, err := ident.NewPredicate(req.Predicate)
		if err != nil {
			writeError(w, err)
			return
		}
		opts.Predicate = pred
	}

	shardIDs := req.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = s.registry.Active()
	}

	call := func(ctx context.Context, shardID string) ([]map[string]any, error) {
		hits, err := s.client.Search(ctx, shardID, req.Text, opts)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(hits))
		for i, h := range hits {
			out[i] = map[string]any{"$id": string(h.Subject), "predicate": string(h.Predicate), "score": h.Score}
		}
		return out, nil
	}

	result, err := s.dispatcher.Dispatch(r.Context(), shardIDs, req.Limit, call)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleVectorSearchQuery(w http.ResponseWriter, r *http.Request, req queryRequest) {
	pred, err := ident.NewPredicate(req.Predicate)
	if err != nil {
		writeError(w, err)
		return
	}

	shardIDs := req.ShardIDs
	if len(shardIDs) == 0 {
		shardIDs = s.registry.Active()
	}

	call := func(ctx context.Context, shardID string) ([]map[string]any, error) {
		results, err := s.client.VectorSearch(ctx, shardID, pred, req.Vector, req.K, req.Ef)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(results))
		for i, res := range results {
			out[i] = map[string]any{"$id": string(res.Subject), "distance": res.Distance}
		}
		return out, nil
	}

	result, err := s.dispatcher.Dispatch(r.Context(), shardIDs, req.Limit, call)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func coerceQueryValue(raw any) value.Value {
	switch v := raw.(type) {
	case string:
		return value.String(v)
	case float64:
		f, err := value.Float64(v)
		if err == nil {
			return f
		}
	case bool:
		return value.Bool(v)
	}
	return value.Null()
}

func anySlice(ids []ident.EntityID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func (s *server) handleShardRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.ShardRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode register request: %v", err))
		return
	}
	if req.Shard.ID == "" || req.Shard.Addr == "" {
		writeError(w, errs.New(errs.ValidationError, "shard register requires id and addr"))
		return
	}
	s.registry.Register(req.Shard.ID)
	s.client.SetAddr(req.Shard.ID, req.Shard.Addr)
	s.log.Infow("shard registered", "shardId", req.Shard.ID, "addr", req.Shard.Addr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleShardDeregister(w http.ResponseWriter, r *http.Request) {
	var req cluster.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode deregister request: %v", err))
		return
	}
	s.registry.Deregister(req.ShardID)
	s.client.RemoveAddr(req.ShardID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleShardHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req cluster.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode heartbeat request: %v", err))
		return
	}
	s.registry.Heartbeat(req.ShardID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleShardList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"shards": s.registry.List()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.ValidationError, errs.InvalidValue, errs.InvalidIdentifier, errs.BatchSizeExceeded:
		status = http.StatusBadRequest
	case errs.EntityNotFound:
		status = http.StatusNotFound
	case errs.DuplicateEntity:
		status = http.StatusConflict
	case errs.Timeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]any{
		"type":    "error",
		"code":    string(errs.KindOf(err)),
		"message": err.Error(),
	})
}
