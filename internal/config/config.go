// Package config loads the service's structured configuration file
// (spec.md §6, "CLI / environment"). The teacher's own
// internal/platform/config.FromEnv reads a handful of flat environment
// variables into one Server struct; this service's configuration has
// enough independent sections (storage, shard retry, buffering, caching,
// routing, metrics) that it is loaded from a YAML file instead, with the
// file path itself taken from an environment variable and a sane default
// — the one piece of the teacher's env-var-with-fallback idiom that still
// applies.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"accessfabric/internal/apperrors"
)

// EnvVar is the environment variable naming the config file path.
const EnvVar = "ACCESSFABRIC_CONFIG"

// DefaultPath is used when EnvVar is unset.
const DefaultPath = "./config.yaml"

// Config is the full structured configuration for one service instance.
type Config struct {
	Storage  StorageConfig `yaml:"storage"`
	Buffer   BufferConfig  `yaml:"buffer"`
	Cache    CacheConfig   `yaml:"cache"`
	Routing  RoutingConfig `yaml:"routing"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Shards   ShardsConfig  `yaml:"shards"`
	Admin    AdminConfig   `yaml:"admin"`
	HTTPAddr string        `yaml:"http_addr"`

	// Mode selects which HTTP surface cmd/server/main.go mounts for user,
	// group, and group-to-group-mapping operations (spec.md §4.6's three
	// sharded data_element_kinds): "local" (default) serves them directly
	// against this instance's own event store; "router" serves them by
	// dispatching through internal/router to whichever shard in Shards
	// owns the hash. Both modes always expose /shard/dispatch so a peer
	// instance in "router" mode can reach this one as a shard, and both
	// always expose the bulk/cache surface against this instance's own
	// local store, plus the control-plane surface.
	Mode string `yaml:"mode"`
}

// ShardsConfig is the initial shard configuration set this instance loads
// at startup and hands to the Shard Client Manager, per spec.md §4.5.
// Operators replace it afterward via the control-plane reconfiguration
// endpoint rather than a restart.
type ShardsConfig struct {
	Records []ShardRecordConfig `yaml:"records"`
}

// ShardRecordConfig is one row of the initial shard configuration set.
type ShardRecordConfig struct {
	ID                string `yaml:"id"`
	Kind              string `yaml:"kind"`
	Op                string `yaml:"op"`
	HashRangeStart    int32  `yaml:"hash_range_start"`
	Address           string `yaml:"address"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// AdminConfig configures the control-plane bearer token gate
// (internal/transport/http.RequireAdmin).
type AdminConfig struct {
	SigningKey string `yaml:"signing_key"`
}

// StorageConfig configures the persistent event store and its retry
// behavior, per spec.md §5's "Retry" resource-model note.
type StorageConfig struct {
	DSN                 string        `yaml:"dsn"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	MaxDeadlockRetries  int           `yaml:"max_deadlock_retries"`
	TransactionTimeout  time.Duration `yaml:"transaction_timeout"`
}

// BufferConfig configures the Event Buffer & Flush Strategy (spec.md
// §4.2): buffer_size_limit and flush_loop_interval are named directly in
// spec.md §6.
type BufferConfig struct {
	SizeLimit    int           `yaml:"buffer_size_limit"`
	FlushLoopInterval time.Duration `yaml:"flush_loop_interval"`
}

// CacheConfig configures the Event Cache (spec.md §4.4):
// cached_event_count is named directly in spec.md §6.
type CacheConfig struct {
	CachedEventCount int `yaml:"cached_event_count"`
}

// RoutingConfig configures one element kind's initial dual-routing
// window, per spec.md §6's source_range_start/end, target_range_start/end,
// data_element_kind, routing_initially_on.
type RoutingConfig struct {
	Windows []RoutingWindowConfig `yaml:"windows"`
}

// RoutingWindowConfig is one element kind's initial routing window. Source
// and Target each name the shard record (by id, looked up in
// Shards.Records) that owns the source and target range respectively
// during an online re-shard — required whenever RoutingInitiallyOn is true,
// since a window with routing on but no target shard would fan out to an
// empty client config.
type RoutingWindowConfig struct {
	ElementKind        string `yaml:"data_element_kind"`
	SourceRangeStart   uint32 `yaml:"source_range_start"`
	SourceRangeEnd     uint32 `yaml:"source_range_end"`
	TargetRangeStart   uint32 `yaml:"target_range_start"`
	TargetRangeEnd     uint32 `yaml:"target_range_end"`
	RoutingInitiallyOn bool   `yaml:"routing_initially_on"`
	SourceShardID      string `yaml:"source_shard_id"`
	TargetShardID      string `yaml:"target_shard_id"`
}

// MetricsConfig configures metric/log emission.
type MetricsConfig struct {
	LogLevel string `yaml:"log_level"`
}

// Load reads and parses the config file named by EnvVar, falling back to
// DefaultPath, then validates it.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads, parses, and validates the config file at path.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation, "config", fmt.Sprintf("read %s", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation, "config", fmt.Sprintf("parse %s", path))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.MaxDeadlockRetries == 0 {
		c.Storage.MaxDeadlockRetries = 3
	}
	if c.Storage.ConnectTimeout == 0 {
		c.Storage.ConnectTimeout = 5 * time.Second
	}
	if c.Storage.TransactionTimeout == 0 {
		c.Storage.TransactionTimeout = 5 * time.Second
	}
	if c.Buffer.SizeLimit == 0 {
		c.Buffer.SizeLimit = 100
	}
	if c.Cache.CachedEventCount == 0 {
		c.Cache.CachedEventCount = 1000
	}
	if c.Metrics.LogLevel == "" {
		c.Metrics.LogLevel = "info"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = "local"
	}
	for i := range c.Shards.Records {
		rec := &c.Shards.Records[i]
		if rec.DialTimeout == 0 {
			rec.DialTimeout = 5 * time.Second
		}
		if rec.RequestTimeout == 0 {
			rec.RequestTimeout = 10 * time.Second
		}
	}
}

// Validate reports the first configuration error found. Implements the
// same fail-fast validation shape as the corpus's request Validate()
// methods (e.g. internal/decision/handler/requests.go), applied here to
// startup configuration instead of an inbound request body.
func (c *Config) Validate() error {
	if c.Storage.DSN == "" {
		return apperrors.New(apperrors.CodeValidation, "config", "storage.dsn is required")
	}
	if c.Storage.MaxDeadlockRetries < 0 {
		return apperrors.New(apperrors.CodeValidation, "config", "storage.max_deadlock_retries must be non-negative")
	}
	if c.Buffer.SizeLimit <= 0 {
		return apperrors.New(apperrors.CodeValidation, "config", "buffer.buffer_size_limit must be positive")
	}
	if c.Cache.CachedEventCount <= 0 {
		return apperrors.New(apperrors.CodeValidation, "config", "cache.cached_event_count must be positive")
	}
	knownShardIDs := make(map[string]bool, len(c.Shards.Records))
	for _, rec := range c.Shards.Records {
		if rec.ID == "" || rec.Address == "" {
			return apperrors.New(apperrors.CodeValidation, "config", "every shard record needs an id and an address")
		}
		knownShardIDs[rec.ID] = true
	}
	for _, w := range c.Routing.Windows {
		if strings.TrimSpace(w.ElementKind) == "" {
			return apperrors.New(apperrors.CodeValidation, "config", "routing window missing data_element_kind")
		}
		if w.RoutingInitiallyOn && (w.SourceShardID == "" || w.TargetShardID == "") {
			return apperrors.New(apperrors.CodeValidation, "config",
				"routing window for "+w.ElementKind+" has routing_initially_on but no source/target shard id")
		}
		if w.RoutingInitiallyOn && (!knownShardIDs[w.SourceShardID] || !knownShardIDs[w.TargetShardID]) {
			return apperrors.New(apperrors.CodeValidation, "config",
				"routing window for "+w.ElementKind+" names a source/target shard id not present in shards.records")
		}
	}
	if c.Mode != "local" && c.Mode != "router" {
		return apperrors.New(apperrors.CodeValidation, "config", `mode must be "local" or "router"`)
	}
	if c.Admin.SigningKey == "" {
		return apperrors.New(apperrors.CodeValidation, "config", "admin.signing_key is required")
	}
	return nil
}
