package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := values[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory storage by default, got %q", cfg.Storage.Driver)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
[storage]
driver = "sqlite"
sqlite_path = "/tmp/cal.db"

[entity]
scope_policy = "owner"
`), &cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath != "/tmp/cal.db" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Entity.ScopePolicy != "owner" {
		t.Fatalf("scope policy %q", cfg.Entity.ScopePolicy)
	}
	if cfg.Entity.IDAllocation != "auto" {
		t.Fatalf("unset keys keep defaults, got allocation %q", cfg.Entity.IDAllocation)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("[storage]\ndrvier = \"sqlite\"\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "storage.drvier") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	if err := Parse([]byte("not = [toml"), &cfg); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		"CALENDARCORE_STORAGE_DRIVER":     "object",
		"CALENDARCORE_BLOB_DRIVER":        "s3",
		"CALENDARCORE_BLOB_S3_BUCKET":     "calendars",
		"CALENDARCORE_BLOB_S3_PATH_STYLE": "TRUE",
		"CALENDARCORE_ID_ALLOCATION":      "scan",
		"CALENDARCORE_LOG_LEVEL":          "",
	}))
	if cfg.Storage.Driver != StorageObject {
		t.Fatalf("storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Blob.S3.Bucket != "calendars" || !cfg.Blob.S3.PathStyle {
		t.Fatalf("unexpected s3 config %+v", cfg.Blob.S3)
	}
	if cfg.Entity.IDAllocation != "scan" {
		t.Fatalf("allocation %q", cfg.Entity.IDAllocation)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("empty values are ignored, got level %q", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "postgres"
	cfg.Entity.IDAllocation = "random"
	cfg.Entity.ScopePolicy = "team"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"postgres_dsn", "random", "team"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}

	cfg = Default()
	cfg.Storage.Driver = "object"
	cfg.Blob.Driver = "s3"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "blob.s3.bucket") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
	cfg.Storage.Driver = "cassandra"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestLoadFromFileAndEncode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendarcore.toml")
	if err := os.WriteFile(path, []byte("[log]\nformat = \"text\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CALENDARCORE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Format != "text" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	roundTrip := Default()
	if err := Parse(buf.Bytes(), &roundTrip); err != nil {
		t.Fatalf("parse encoded config: %v", err)
	}
	if !reflect.DeepEqual(cfg, roundTrip) {
		t.Fatalf("encoded config differs:\n%+v\n%+v", cfg, roundTrip)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
