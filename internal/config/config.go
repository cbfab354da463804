// Package config loads calendarcore settings from an optional TOML file and
// CALENDARCORE_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageObject   = "object"
)

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `toml:"storage"`
	Blob    Blob    `toml:"blob"`
	Entity  Entity  `toml:"entity"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`
}

// Storage selects the record store backend.
type Storage struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	// SnapshotKey is the blob key used by the object driver.
	SnapshotKey string `toml:"snapshot_key"`
}

// Blob selects the blob backend used by the object storage driver.
type Blob struct {
	Driver string `toml:"driver"`
	FSRoot string `toml:"fs_root"`
	S3     S3     `toml:"s3"`
}

// S3 holds bucket settings for the s3 blob driver.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Entity holds manager policies.
type Entity struct {
	IDAllocation string `toml:"id_allocation"` // auto|atomic|scan
	ScopePolicy  string `toml:"scope_policy"`  // project|owner
}

// Log configures the slog handler.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json|text
}

// Metrics configures the Prometheus recorder.
type Metrics struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: Storage{Driver: StorageMemory, SQLitePath: "./calendarcore.db", SnapshotKey: "calendarcore/state.json"},
		Blob:    Blob{Driver: "fs", FSRoot: "./blobdata", S3: S3{Region: "us-east-1"}},
		Entity:  Entity{IDAllocation: "auto", ScopePolicy: "project"},
		Log:     Log{Level: "info", Format: "json"},
		Metrics: Metrics{Namespace: "calendarcore"},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes TOML data into cfg, keeping values data does not set.
func Parse(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides cfg with CALENDARCORE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("CALENDARCORE_STORAGE_DRIVER", &c.Storage.Driver)
	str("CALENDARCORE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("CALENDARCORE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CALENDARCORE_SNAPSHOT_KEY", &c.Storage.SnapshotKey)
	str("CALENDARCORE_BLOB_DRIVER", &c.Blob.Driver)
	str("CALENDARCORE_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("CALENDARCORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("CALENDARCORE_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("CALENDARCORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	if v, ok := lookup("CALENDARCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		c.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	str("CALENDARCORE_ID_ALLOCATION", &c.Entity.IDAllocation)
	str("CALENDARCORE_SCOPE_POLICY", &c.Entity.ScopePolicy)
	str("CALENDARCORE_LOG_LEVEL", &c.Log.Level)
	str("CALENDARCORE_LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("CALENDARCORE_METRICS_ENABLED"); ok && v != "" {
		c.Metrics.Enabled = strings.EqualFold(v, "true")
	}
}

// Validate rejects unknown drivers and policies and missing driver settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case StorageObject:
		if c.Storage.SnapshotKey == "" {
			errs = append(errs, errors.New("storage.snapshot_key is required for the object driver"))
		}
		switch c.Blob.Driver {
		case "fs", "memory":
		case "s3":
			if c.Blob.S3.Bucket == "" {
				errs = append(errs, errors.New("blob.s3.bucket is required for the s3 blob driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch strings.ToLower(c.Entity.IDAllocation) {
	case "", "auto", "atomic", "scan":
	default:
		errs = append(errs, fmt.Errorf("unknown id allocation %q", c.Entity.IDAllocation))
	}
	switch strings.ToLower(c.Entity.ScopePolicy) {
	case "", "project", "owner":
	default:
		errs = append(errs, fmt.Errorf("unknown scope policy %q", c.Entity.ScopePolicy))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Encode writes cfg as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
