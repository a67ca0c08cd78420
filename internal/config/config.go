// Package config centralizes process configuration for the shard-engine and
// coordinator binaries using github.com/spf13/viper, following Synnergy's
// pattern of a single typed Config struct populated from file + env + flag
// defaults. The process-wide (router, configuration) pair named in spec §5
// is assembled once at startup from this package and is immutable after.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ShardConfig holds everything a per-shard engine process needs.
type ShardConfig struct {
	// DataDir is the root directory for this shard's bbolt/sqlite files
	// and bleve full-text index directory.
	DataDir string `mapstructure:"data_dir"`
	// Namespace is the namespace this shard's chunk store is scoped to.
	Namespace string `mapstructure:"namespace"`
	// ShardID is this process's shard identifier as the coordinator's
	// router would compute it (router.ShardIDFor), e.g. "shard-0001".
	// Assigned by deployment tooling rather than recomputed at startup,
	// so a shard process never needs to know the cluster's total shard
	// count just to announce itself.
	ShardID string `mapstructure:"shard_id"`
	// ListenAddr is the HTTP listen address for the auxiliary surface.
	ListenAddr string `mapstructure:"listen_addr"`

	// FlushMaxTriples triggers a flush once the buffer holds this many
	// triples. Default favors batching per spec §4.5.
	FlushMaxTriples int `mapstructure:"flush_max_triples"`
	// FlushMaxBytes triggers a flush once the buffer holds this many bytes.
	FlushMaxBytes int64 `mapstructure:"flush_max_bytes"`
	// FlushInterval triggers a flush this long after the first buffered
	// triple, regardless of size.
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// MetricsFlushInterval is the period of the per-shard metrics-flush
	// alarm scheduled at startup (spec §4.9 lifecycle).
	MetricsFlushInterval time.Duration `mapstructure:"metrics_flush_interval"`

	// BloomCapacity and BloomFalsePositiveRate parameterize the per-shard
	// bloom filter (spec §4.7).
	BloomCapacity          uint64  `mapstructure:"bloom_capacity"`
	BloomFalsePositiveRate float64 `mapstructure:"bloom_false_positive_rate"`

	// HNSW parameters for the vector index (spec §4.6).
	VectorM              int `mapstructure:"vector_m"`
	VectorEfConstruction int `mapstructure:"vector_ef_construction"`
}

// CoordinatorConfig holds everything the coordinator process needs.
type CoordinatorConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// ShardCallTimeout is the default per-shard call timeout for fan-out
	// dispatch (spec §4.11, default 5s).
	ShardCallTimeout time.Duration `mapstructure:"shard_call_timeout"`
	// InactiveAfter marks a shard inactive once its heartbeat is this old
	// (spec §4.11, default 10m).
	InactiveAfter time.Duration `mapstructure:"inactive_after"`
	// DefaultQueryLimit and MaxQueryLimit bound aggregated result counts.
	DefaultQueryLimit int `mapstructure:"default_query_limit"`
	MaxQueryLimit     int `mapstructure:"max_query_limit"`
	// DefaultNamespace is the namespace Orchestrator.Query assigns an
	// identifier segment that arrives with no namespace of its own. It
	// must be a valid absolute http(s) URL, the same requirement
	// ident.FormEntityID imposes on every namespace it qualifies an id
	// under.
	DefaultNamespace string `mapstructure:"default_namespace"`
}

func newViper(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadShardConfig reads a ShardConfig from an optional config file (if
// configPath is non-empty) layered under env vars prefixed TRIPLEDB_SHARD_
// and flag defaults, in viper's usual precedence order (flag > env > file >
// default).
func LoadShardConfig(configPath string) (ShardConfig, error) {
	v := newViper("tripledb_shard")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("namespace", "https://tripledb.local/default")
	v.SetDefault("shard_id", "shard-0000")
	v.SetDefault("listen_addr", ":8081")
	v.SetDefault("flush_max_triples", 1000)
	v.SetDefault("flush_max_bytes", int64(1<<20))
	v.SetDefault("flush_interval", 5*time.Second)
	v.SetDefault("metrics_flush_interval", 30*time.Second)
	v.SetDefault("bloom_capacity", uint64(1_000_000))
	v.SetDefault("bloom_false_positive_rate", 0.01)
	v.SetDefault("vector_m", 16)
	v.SetDefault("vector_ef_construction", 200)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return ShardConfig{}, err
		}
	}

	var cfg ShardConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ShardConfig{}, err
	}
	return cfg, nil
}

// LoadCoordinatorConfig is the coordinator-process analogue of
// LoadShardConfig.
func LoadCoordinatorConfig(configPath string) (CoordinatorConfig, error) {
	v := newViper("tripledb_coordinator")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("shard_call_timeout", 5*time.Second)
	v.SetDefault("inactive_after", 10*time.Minute)
	v.SetDefault("default_query_limit", 100)
	v.SetDefault("max_query_limit", 1000)
	v.SetDefault("default_namespace", "https://tripledb.local/default")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return CoordinatorConfig{}, err
		}
	}

	var cfg CoordinatorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return CoordinatorConfig{}, err
	}
	return cfg, nil
}
