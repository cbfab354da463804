package core

import (
	"bytes"
	"calendarcore/internal/config"
	"calendarcore/internal/entity"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
	"calendarcore/internal/infra/persistence/postgres"
	pgstub "calendarcore/internal/infra/persistence/postgres/testutil"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var session = domain.Session{User: "alice", Project: "apollo"}

func newCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := NewCalendarService(memory.NewStore(), nil)
	if err != nil {
		t.Fatalf("NewCalendarService: %v", err)
	}
	return cal
}

func TestInvokeRoutesByKindAndVerb(t *testing.T) {
	ctx := context.Background()
	cal := newCalendar(t)
	if got := strings.Join(cal.Kinds(), ","); got != "commitment,event" {
		t.Fatalf("unexpected kinds %s", got)
	}
	out, err := cal.Invoke(ctx, session, domain.KindEvent, entity.VerbCreate, []byte(`{"name":"standup"}`))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	var ev domain.Event
	if err := json.Unmarshal(out, &ev); err != nil || ev.ID != 1 {
		t.Fatalf("unexpected event %s, %v", out, err)
	}
	out, err = cal.Invoke(ctx, session, domain.KindCommitment, entity.VerbCreate, []byte(`{"name":"ship","status":"new"}`))
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	var c domain.Commitment
	if err := json.Unmarshal(out, &c); err != nil || c.ID != 1 || c.Status != domain.CommitmentNew {
		t.Fatalf("unexpected commitment %s, %v", out, err)
	}
	out, err = cal.Invoke(ctx, session, domain.KindEvent, entity.VerbCount, nil)
	if err != nil || string(out) != `{"count":1}` {
		t.Fatalf("count = %s, %v", out, err)
	}
	n, err := cal.Commitments.Count(ctx, session)
	if err != nil || n != 1 {
		t.Fatalf("commitment count = %d, %v", n, err)
	}
}

func TestInvokeUnknownKindOrVerb(t *testing.T) {
	ctx := context.Background()
	cal := newCalendar(t)
	if _, err := cal.Invoke(ctx, session, "reminder", entity.VerbGetAll, nil); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("expected NotImplemented for kind, got %v", err)
	}
	if _, err := cal.Invoke(ctx, session, domain.KindEvent, "archive", nil); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("expected NotImplemented for verb, got %v", err)
	}
	if _, err := cal.Invoke(ctx, session, domain.KindEvent, entity.VerbGet, []byte(`{"id":9}`)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	cal := newCalendar(t)
	if err := cal.Register(cal.Events.Endpoint()); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := cal.Register(nil); err == nil {
		t.Fatal("expected nil endpoint error")
	}
}

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	store, err := OpenPersistentStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "cal.db")
	if store, err = OpenPersistentStore(ctx, cfg, nil); err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	rt := &Runtime{Store: store}
	if err := rt.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	cfg.Storage.Driver = config.StorageObject
	cfg.Blob.Driver = "memory"
	if _, err = OpenPersistentStore(ctx, cfg, nil); err != nil {
		t.Fatalf("object: %v", err)
	}

	cfg.Storage.Driver = "cassandra"
	if _, err = OpenPersistentStore(ctx, cfg, nil); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	ctx := context.Background()
	db, conn := pgstub.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()

	cfg := config.Default()
	cfg.Storage.Driver = config.StoragePostgres
	cfg.Storage.PostgresDSN = "postgres://calendar@localhost/calendar"
	store, err := OpenPersistentStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	cal, err := NewCalendarService(store, nil)
	if err != nil {
		t.Fatalf("NewCalendarService: %v", err)
	}
	if _, err := cal.Invoke(ctx, session, domain.KindCommitment, entity.VerbCreate, []byte(`{"name":"renew permit"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(conn.Rows("state")) == 0 {
		t.Fatal("expected snapshot rows in state table")
	}

	conn.FailPing = true
	if _, err := OpenPersistentStore(ctx, cfg, nil); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestOpenRuntimeFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.Driver = config.StorageObject
	cfg.Blob.Driver = "fs"
	cfg.Blob.FSRoot = t.TempDir()
	cfg.Entity.IDAllocation = "scan"
	cfg.Entity.ScopePolicy = "owner"
	cfg.Metrics.Enabled = true
	cfg.Log.Level = "debug"
	var logs bytes.Buffer

	rt, err := Open(ctx, cfg, &logs)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = rt.Close() }()
	if rt.Events.Allocation() != entity.AllocateScan {
		t.Fatalf("expected scan allocation, got %s", rt.Events.Allocation())
	}
	if _, err := rt.Invoke(ctx, session, domain.KindEvent, entity.VerbCreate, []byte(`{"name":"dentist","personal":true,"owner":"alice"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := domain.Session{User: "bob", Project: "apollo"}
	out, err := rt.Invoke(ctx, other, domain.KindEvent, entity.VerbGetAll, nil)
	if err != nil || string(out) != "[]" {
		t.Fatalf("expected personal event hidden from bob, got %s, %v", out, err)
	}
	if n := testutil.CollectAndCount(rt.Metrics, "calendarcore_operations_total"); n == 0 {
		t.Fatal("expected recorded operations")
	}
	if !strings.Contains(logs.String(), "calendar runtime ready") {
		t.Fatalf("expected startup log, got %s", logs.String())
	}

	cfg.Storage.Driver = "cassandra"
	if _, err := Open(ctx, cfg, nil); err == nil {
		t.Fatal("expected validation error")
	}
}
