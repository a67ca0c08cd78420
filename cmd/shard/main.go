// Package main implements the shard process: one per-shard engine
// (formerly torua's cmd/node, generalized from a key-value worker to a
// triple-store engine) that registers with the coordinator, serves the
// internal shard RPC surface, and exposes the health/metrics/state
// auxiliary endpoints of spec §6.
//
// # Overview
//
//	┌──────────────────────────────────────┐
//	│               shard                   │
//	├──────────────────────────────────────┤
//	│  GET  /health   /metrics  /state      │
//	│  POST /reset                          │
//	│  POST /rpc/append  /rpc/append-batch  │
//	│  GET  /rpc/records  /rpc/position     │
//	└──────────────────────────────────────┘
//
// A shard owns exactly one shardengine.Engine and one rpcserver.Session.
// It registers itself with the coordinator on startup and sends periodic
// heartbeats (spec §6's shard registry endpoints), the same
// register-with-retries shape torua's node used for its own coordinator
// link, generalized to heartbeat on a ticker rather than registering once.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
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
	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/index/fts"
	"github.com/dreamware/tripledb/internal/logging"
	"github.com/dreamware/tripledb/internal/rpcserver"
	"github.com/dreamware/tripledb/internal/shardengine"
)

var (
	configPath      string
	coordinatorAddr string
	publicAddr      string
)

func main() {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Run one shard engine process",
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a shard config file")
	cmd.Flags().StringVar(&coordinatorAddr, "coordinator-addr", "", "coordinator base URL, for registration/heartbeats")
	cmd.Flags().StringVar(&publicAddr, "public-addr", "", "this shard's own address, as the coordinator should reach it")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadShardConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	engine, err := shardengine.Open(cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	shardID := cfg.ShardID
	session := rpcserver.NewSession()
	handler := rpcserver.New(nil, session, log)

	srv := newServer(engine, handler, shardID, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("shard listening", "addr", cfg.ListenAddr, "namespace", cfg.Namespace)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("listen", "error", err)
		}
	}()

	ctx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	if coordinatorAddr != "" && publicAddr != "" {
		if err := registerWithCoordinator(ctx, coordinatorAddr, shardID, publicAddr); err != nil {
			log.Warnw("initial registration failed, will keep retrying via heartbeat", "error", err)
		}
		go heartbeatLoop(ctx, coordinatorAddr, shardID, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("server shutdown", "error", err)
	}
	log.Info("shard stopped")
	return nil
}

// server bundles the engine, the rpcserver.Handler, and the Prometheus
// metrics this process exposes on GET /prometheus.
type server struct {
	engine  *shardengine.Engine
	handler *rpcserver.Handler
	shardID string
	log     *zap.SugaredLogger

	requestsTotal *prometheus.CounterVec
	bufferedGauge prometheus.Gauge
}

func newServer(engine *shardengine.Engine, handler *rpcserver.Handler, shardID string, log *zap.SugaredLogger) *server {
	return &server{
		engine:  engine,
		handler: handler,
		shardID: shardID,
		log:     log,
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tripledb_shard_requests_total",
			Help: "Total RPC requests handled by this shard, by method.",
		}, []string{"method"}),
		bufferedGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tripledb_shard_buffered_triples",
			Help: "Triples buffered in this shard's chunk store awaiting flush.",
		}),
	}
}

func (s *server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/rpc/append", s.handleAppend).Methods(http.MethodPost)
	r.HandleFunc("/rpc/append-batch", s.handleAppendBatch).Methods(http.MethodPost)
	r.HandleFunc("/rpc/records", s.handleRecords).Methods(http.MethodGet)
	r.HandleFunc("/rpc/position", s.handlePosition).Methods(http.MethodGet)
	r.HandleFunc("/rpc/near", s.handleNear).Methods(http.MethodGet)
	r.HandleFunc("/rpc/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/rpc/vector-search", s.handleVectorSearch).Methods(http.MethodPost)
	return r
}

// handleHealth implements GET /health → {status, connections, timestamp}.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.handler.Session().Connections(),
		"timestamp":   time.Now().UnixMilli(),
	})
}

// handleMetrics implements GET /metrics → {metrics, activeConnections,
// stateValue}, per spec §6. Prometheus's own exposition format is served
// separately on GET /prometheus since the two shapes can't share one path.
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.bufferedGauge.Set(float64(m.BufferedTriples))
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":           m,
		"activeConnections": s.handler.Session().Connections(),
		"stateValue":        s.handler.Session().StateValue(),
	})
}

// handleState implements GET /state, a superset view used by operators and
// the hibernation-resume test scenario of spec §8 to confirm a shard's
// live engine metrics and caller state without mutating anything.
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shardId":    s.shardID,
		"metrics":    m,
		"stateValue": s.handler.Session().StateValue(),
	})
}

// handleReset implements POST /reset: clears the session's caller-settable
// state and stashed cursors without touching any persisted triple data.
// Engine data is deliberately untouched — spec's reset is a session-level
// operation, not a data-plane wipe.
func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.handler.Session().Reset(); err != nil {
		writeError(w, errs.Wrap(errs.Internal, err, "reset"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req cluster.AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode append request: %v", err))
		return
	}
	triples, err := cluster.DecodeTriples(req.Triple)
	if err != nil {
		writeError(w, errs.Wrap(errs.ValidationError, err, "decode triple"))
		return
	}
	for _, t := range triples {
		if err := s.engine.Append(r.Context(), t); err != nil {
			writeError(w, err)
			return
		}
	}
	s.requestsTotal.WithLabelValues("append").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAppendBatch(w http.ResponseWriter, r *http.Request) {
	var req cluster.AppendBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode append-batch request: %v", err))
		return
	}
	triples, err := cluster.DecodeTriples(req.Triples)
	if err != nil {
		writeError(w, errs.Wrap(errs.ValidationError, err, "decode triples"))
		return
	}
	if err := s.engine.AppendBatch(r.Context(), triples); err != nil {
		writeError(w, err)
		return
	}
	s.requestsTotal.WithLabelValues("append_batch").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	subjectRaw := r.URL.Query().Get("subject")
	subject, err := ident.NewEntityID(subjectRaw)
	if err != nil {
		writeError(w, err)
		return
	}
	since := parseInt64(r.URL.Query().Get("since"))

	triples, err := s.engine.Records(r.Context(), subject, since)
	if err != nil {
		writeError(w, err)
		return
	}
	blob, err := cluster.EncodeTriples(triples)
	if err != nil {
		writeError(w, errs.Wrap(errs.Internal, err, "encode triples"))
		return
	}
	s.requestsTotal.WithLabelValues("records").Inc()
	writeJSON(w, http.StatusOK, cluster.RecordsResponse{Triples: blob})
}

func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	pred, err := ident.NewPredicate(r.URL.Query().Get("predicate"))
	if err != nil {
		writeError(w, err)
		return
	}
	object, err := cluster.DecodeValue([]byte(r.URL.Query().Get("object")))
	if err != nil {
		writeError(w, errs.Wrap(errs.ValidationError, err, "decode object"))
		return
	}
	entries, err := s.engine.ByPredicateObject(r.Context(), pred, object)
	if err != nil {
		writeError(w, err)
		return
	}
	s.requestsTotal.WithLabelValues("position").Inc()
	writeJSON(w, http.StatusOK, cluster.PositionResponse{Entries: entries})
}

func (s *server) handleNear(w http.ResponseWriter, r *http.Request) {
	pred, err := ident.NewPredicate(r.URL.Query().Get("predicate"))
	if err != nil {
		writeError(w, err)
		return
	}
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	radiusKm, radiusErr := strconv.ParseFloat(r.URL.Query().Get("radiusKm"), 64)
	if latErr != nil || lngErr != nil || radiusErr != nil {
		writeError(w, errs.New(errs.ValidationError, "lat, lng, and radiusKm must be numeric"))
		return
	}
	hits, err := s.engine.Near(r.Context(), pred, lat, lng, radiusKm)
	if err != nil {
		writeError(w, err)
		return
	}
	s.requestsTotal.WithLabelValues("near").Inc()
	writeJSON(w, http.StatusOK, cluster.NearResponse{Hits: hits})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	opts := fts.Options{Limit: int(parseInt64(r.URL.Query().Get("limit")))}
	if raw := r.URL.Query().Get("predicate"); raw != "" {
		pred, err := ident.NewPredicate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		opts.Predicate = pred
	}
	hits, err := s.engine.Match(r.Context(), text, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	s.requestsTotal.WithLabelValues("search").Inc()
	writeJSON(w, http.StatusOK, cluster.SearchResponse{Hits: hits})
}

func (s *server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req cluster.VectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.New(errs.ValidationError, "decode vector-search request: %v", err))
		return
	}
	pred, err := ident.NewPredicate(req.Predicate)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := s.engine.VectorSearch(r.Context(), pred, req.Vector, req.K, req.Ef)
	if err != nil {
		writeError(w, err)
		return
	}
	s.requestsTotal.WithLabelValues("vector_search").Inc()
	writeJSON(w, http.StatusOK, cluster.VectorSearchResponse{Results: results})
}

func parseInt64(s string) int64 {
	var v int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	return v
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

func registerWithCoordinator(ctx context.Context, coord, shardID, addr string) error {
	body := cluster.ShardRegisterRequest{Shard: cluster.ShardNode{ID: shardID, Addr: addr}}
	return cluster.PostJSON(ctx, coord+"/shards/register", body, nil)
}

func heartbeatLoop(ctx context.Context, coord, shardID string, log *zap.SugaredLogger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			body := cluster.HeartbeatRequest{ShardID: shardID}
			if err := cluster.PostJSON(ctx, coord+"/shards/heartbeat", body, nil); err != nil {
				log.Warnw("heartbeat failed", "error", err)
			}
		}
	}
}
