// Package config loads ingestord's single YAML configuration document,
// covering the memory_cache, disk_cache, limit, and common knobs the
// core reads plus backend selection for components A, B, and G. The
// common.bulk_api_response_errors_only and common.print_key_event flags
// are not part of it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryCache configures component C, the byte cache.
type MemoryCache struct {
	Enabled bool  `yaml:"enabled"`
	MaxSize int64 `yaml:"max_size"`
}

// DiskCache carries the disk_cache knobs. ReleaseSize is component C's
// minimum per-eviction release target; MaxSize is not read by component
// C, which clamps that target to memory_cache.max_size instead.
type DiskCache struct {
	MaxSize     int64 `yaml:"max_size"`
	ReleaseSize int64 `yaml:"release_size"`
}

// Limit holds the ingestion and schema-evolution thresholds of spec.md
// §6.7's `limit.*` namespace.
type Limit struct {
	MaxFileSizeOnDisk          int64         `yaml:"max_file_size_on_disk"`
	MaxFileRetentionTime       time.Duration `yaml:"max_file_retention_time"`
	IngestAllowedUpto          time.Duration `yaml:"ingest_allowed_upto"`
	IngestAllowedInFuture      time.Duration `yaml:"ingest_allowed_in_future"`
	IngestFlattenLevel         int           `yaml:"ingest_flatten_level"`
	ReqColsPerRecordLimit      int           `yaml:"req_cols_per_record_limit"`
	SchemaMaxFieldsToEnableUDS int           `yaml:"schema_max_fields_to_enable_uds"`
	CPUNum                     int           `yaml:"cpu_num"`
	MetaTransactionRetries     int           `yaml:"meta_transaction_retries"`
	NodeHeartbeatTTL           time.Duration `yaml:"node_heartbeat_ttl"`
	IndexAllMaxValueLength     int           `yaml:"index_all_max_value_length"`
}

// Common holds process-wide behavior flags from spec.md §6.7's
// `common.*` namespace.
type Common struct {
	SkipFormattingStreamName  bool `yaml:"skip_formatting_stream_name"`
	AllowUserDefinedSchemas   bool `yaml:"allow_user_defined_schemas"`
}

// MetaStore selects and configures component A's backend.
type MetaStore struct {
	Backend  string `yaml:"backend"` // embedded | sqlite | mysql | postgres | dynamo
	DataDir  string `yaml:"data_dir"`
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
}

// ObjectStore selects and configures component B's backend.
type ObjectStore struct {
	Backend   string `yaml:"backend"` // local | s3
	LocalDir  string `yaml:"local_dir"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Lock selects and configures component G's backend.
type Lock struct {
	Backend    string `yaml:"backend"` // local | etcd | nats
	Endpoints  []string `yaml:"endpoints"`
	LeaseTTL   int    `yaml:"lease_ttl_seconds"`
}

// Coordinator configures the multi-node pub/sub relay (DS.3).
type Coordinator struct {
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// WALConfig configures component E's writer manager.
type WALConfig struct {
	DataDir         string `yaml:"data_dir"`
	NodeID          int64  `yaml:"node_id"`
	RotationSeconds int    `yaml:"rotation_seconds"`
}

// Config is the root document.
type Config struct {
	MemoryCache MemoryCache `yaml:"memory_cache"`
	DiskCache   DiskCache   `yaml:"disk_cache"`
	Limit       Limit       `yaml:"limit"`
	Common      Common      `yaml:"common"`
	MetaStore   MetaStore   `yaml:"meta_store"`
	ObjectStore ObjectStore `yaml:"object_store"`
	Lock        Lock        `yaml:"lock"`
	Coordinator Coordinator `yaml:"coordinator"`
	WAL         WALConfig   `yaml:"wal"`
	Log         LogConfig   `yaml:"log"`
}

// LogConfig mirrors pkg/log.Config's shape for YAML round-tripping.
type LogConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"` // json | console
	File   *LogFileConfig `yaml:"file,omitempty"`
}

// LogFileConfig mirrors pkg/log.FileConfig for YAML round-tripping.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the baseline configuration; Load unmarshals onto a
// copy of it so a partial YAML file is valid, matching the teacher's
// DefaultConfig()-then-override pattern.
func Default() *Config {
	return &Config{
		MemoryCache: MemoryCache{Enabled: true, MaxSize: 512 << 20},
		DiskCache:   DiskCache{MaxSize: 10 << 30, ReleaseSize: 64 << 20},
		Limit: Limit{
			MaxFileSizeOnDisk:          128 << 20,
			MaxFileRetentionTime:       10 * time.Minute,
			IngestAllowedUpto:          5 * 24 * time.Hour,
			IngestAllowedInFuture:      time.Hour,
			IngestFlattenLevel:         3,
			ReqColsPerRecordLimit:      2000,
			SchemaMaxFieldsToEnableUDS: 200,
			CPUNum:                     4,
			MetaTransactionRetries:     5,
			NodeHeartbeatTTL:           30 * time.Second,
			IndexAllMaxValueLength:     0,
		},
		Common: Common{
			SkipFormattingStreamName: false,
			AllowUserDefinedSchemas:  true,
		},
		MetaStore:   MetaStore{Backend: "embedded", DataDir: "./data/meta"},
		ObjectStore: ObjectStore{Backend: "local", LocalDir: "./data/objects"},
		Lock:        Lock{Backend: "local"},
		WAL:         WALConfig{DataDir: "./data/wal", NodeID: 1, RotationSeconds: 30},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path and unmarshals it onto a copy of Default(), so any
// field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
