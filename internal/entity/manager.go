// Package entity implements the generic create/read/update/delete/count
// manager shared by every calendar record kind.
package entity

import (
	"calendarcore/internal/logging"
	"calendarcore/internal/observability"
	"calendarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Manager performs CRUD for one record kind against a shared Store.
type Manager[T domain.Record] struct {
	store     domain.Store
	allocator domain.IDAllocator
	codec     domain.Codec[T]
	newSample func() T
	kind      string
	settings
}

// NewManager constructs a manager for records built by newSample.
// newSample is invoked on every operation that needs an instance of the
// kind; a constructor that fails or returns nil surfaces as ErrInternal from
// that operation.
func NewManager[T domain.Record](store domain.Store, codec domain.Codec[T], newSample func() T, opts ...Option) (*Manager[T], error) {
	if store == nil {
		return nil, errors.New("entity: store is required")
	}
	if codec == nil {
		return nil, errors.New("entity: codec is required")
	}
	m := &Manager[T]{
		store:     store,
		codec:     codec,
		newSample: newSample,
		settings: settings{
			logger:   logging.Noop(),
			recorder: observability.Noop(),
		},
	}
	for _, opt := range opts {
		opt(&m.settings)
	}
	allocator, supportsAtomic := store.(domain.IDAllocator)
	switch m.allocation {
	case AllocateAuto:
		if supportsAtomic {
			m.allocation = AllocateAtomic
			m.allocator = allocator
		} else {
			m.allocation = AllocateScan
		}
	case AllocateAtomic:
		if !supportsAtomic {
			return nil, fmt.Errorf("entity: store %T cannot allocate identifiers atomically", store)
		}
		m.allocator = allocator
	case AllocateScan:
	default:
		return nil, fmt.Errorf("entity: unknown allocation %d", m.allocation)
	}
	if sample, err := m.sample(); err == nil {
		m.kind = sample.Kind()
	}
	return m, nil
}

// Kind returns the record kind managed, or "" when the constructor failed
// during construction.
func (m *Manager[T]) Kind() string { return m.kind }

// Allocation reports the effective identifier allocation strategy.
func (m *Manager[T]) Allocation() Allocation { return m.allocation }

// Codec returns the codec used to parse and render records.
func (m *Manager[T]) Codec() domain.Codec[T] { return m.codec }

// Create parses content into a new record, assigns it the next identifier in
// the caller's project, and persists it. Client supplied identifiers are
// ignored.
func (m *Manager[T]) Create(ctx context.Context, s domain.Session, content []byte) (_ T, err error) {
	defer m.observe(ctx, "create", time.Now(), &err)
	var zero T
	rec, err := m.codec.Decode(content)
	if err != nil {
		return zero, m.fail("create", "", domain.ErrMalformedRequest, err)
	}
	if err := m.Save(ctx, s, rec); err != nil {
		return zero, err
	}
	return rec, nil
}

// Save assigns rec an identifier and scope and persists it.
func (m *Manager[T]) Save(ctx context.Context, s domain.Session, rec T) error {
	id, err := m.nextID(ctx, s)
	if err != nil {
		return err
	}
	rec.SetRecordID(id)
	rec.SetScope(s.Scope())
	ok, err := m.store.Save(ctx, rec, s.Scope())
	if err != nil {
		return m.storeError("save", strconv.Itoa(id), err)
	}
	if !ok {
		return m.fail("save", strconv.Itoa(id), domain.ErrInternal, errors.New("could not save to store"))
	}
	m.logger.Debug("saved record", "kind", rec.Kind(), "id", id, "scope", s.Scope())
	return nil
}

func (m *Manager[T]) nextID(ctx context.Context, s domain.Session) (int, error) {
	if m.allocation == AllocateAtomic {
		kind, err := m.kindName()
		if err != nil {
			return 0, err
		}
		id, err := m.allocator.AllocateID(ctx, kind, s.Scope())
		if err != nil {
			return 0, m.storeError("allocate id", "", err)
		}
		return id, nil
	}
	existing, err := m.scoped(ctx, s)
	if err != nil {
		return 0, err
	}
	biggest := 0
	for _, rec := range existing {
		if rec.RecordID() > biggest {
			biggest = rec.RecordID()
		}
	}
	return biggest + 1, nil
}

// Get returns the records of the caller's project whose identifier equals id.
func (m *Manager[T]) Get(ctx context.Context, s domain.Session, id string) (_ []T, err error) {
	defer m.observe(ctx, "get", time.Now(), &err)
	return m.get(ctx, s, id)
}

func (m *Manager[T]) get(ctx context.Context, s domain.Session, id string) ([]T, error) {
	n, err := ParseID(id)
	if err != nil {
		return nil, m.fail("get", id, domain.ErrMalformedRequest, err)
	}
	kind, err := m.kindName()
	if err != nil {
		return nil, err
	}
	found, err := m.store.Retrieve(ctx, kind, s.Scope(), domain.IDField, n)
	if err != nil {
		return nil, m.storeError("get", id, err)
	}
	recs, err := m.typed(found)
	if err != nil {
		return nil, err
	}
	recs = m.visible(s, recs)
	if len(recs) < 1 || isNil(recs[0]) {
		return nil, m.fail("get", id, domain.ErrNotFound, nil)
	}
	return recs, nil
}

// GetAll returns every record of the caller's project visible to the session.
func (m *Manager[T]) GetAll(ctx context.Context, s domain.Session) (_ []T, err error) {
	defer m.observe(ctx, "getAll", time.Now(), &err)
	recs, err := m.scoped(ctx, s)
	if err != nil {
		return nil, err
	}
	return m.visible(s, recs), nil
}

func (m *Manager[T]) scoped(ctx context.Context, s domain.Session) ([]T, error) {
	sample, err := m.sample()
	if err != nil {
		return nil, err
	}
	found, err := m.store.RetrieveAll(ctx, sample, s.Scope())
	if err != nil {
		return nil, m.storeError("get all", "", err)
	}
	return m.typed(found)
}

// Update replaces every declared field of the stored record with the values
// parsed from content. Fields omitted from content are reset to their zero
// value, so callers must submit complete records. Each field is a separate
// store write: when one fails, the fields written before it stay updated and
// the error is returned.
func (m *Manager[T]) Update(ctx context.Context, s domain.Session, content []byte) (_ T, err error) {
	defer m.observe(ctx, "update", time.Now(), &err)
	var zero T
	rec, err := m.codec.Decode(content)
	if err != nil {
		return zero, m.fail("update", "", domain.ErrMalformedRequest, err)
	}
	id := rec.RecordID()
	if id <= 0 {
		return zero, m.fail("update", strconv.Itoa(id), domain.ErrMalformedRequest, errors.New("record id is required"))
	}
	if _, err := m.get(ctx, s, strconv.Itoa(id)); err != nil {
		return zero, err
	}
	rec.SetScope(s.Scope())
	for _, f := range rec.Fields() {
		n, err := m.store.Update(ctx, rec.Kind(), s.Scope(), domain.IDField, id, f.Name, f.Value)
		if err != nil {
			return zero, m.storeError("update", strconv.Itoa(id), err)
		}
		if n == 0 {
			return zero, m.fail("update", strconv.Itoa(id), domain.ErrNotFound, nil)
		}
	}
	return rec, nil
}

// Delete removes the record identified by id from the caller's project.
func (m *Manager[T]) Delete(ctx context.Context, s domain.Session, id string) (_ bool, err error) {
	defer m.observe(ctx, "delete", time.Now(), &err)
	recs, err := m.get(ctx, s, id)
	if err != nil {
		return false, err
	}
	removed, err := m.store.Delete(ctx, recs[0])
	if err != nil {
		return false, m.storeError("delete", id, err)
	}
	return !isNil(removed), nil
}

// DeleteAll removes every record of the kind in every project.
func (m *Manager[T]) DeleteAll(ctx context.Context, _ domain.Session) (err error) {
	defer m.observe(ctx, "deleteAll", time.Now(), &err)
	sample, err := m.sample()
	if err != nil {
		return err
	}
	if err := m.store.DeleteAll(ctx, sample); err != nil {
		return m.storeError("delete all", "", err)
	}
	return nil
}

// Count returns the number of stored records of the kind across projects.
func (m *Manager[T]) Count(ctx context.Context, _ domain.Session) (_ int, err error) {
	defer m.observe(ctx, "count", time.Now(), &err)
	sample, err := m.sample()
	if err != nil {
		return 0, err
	}
	all, err := m.store.RetrieveEvery(ctx, sample)
	if err != nil {
		return 0, m.storeError("count", "", err)
	}
	return len(all), nil
}

// AdvancedGet is not supported.
func (m *Manager[T]) AdvancedGet(_ context.Context, _ domain.Session, _ []string) (string, error) {
	return "", m.fail("advanced get", "", domain.ErrNotImplemented, nil)
}

// AdvancedPut is not supported.
func (m *Manager[T]) AdvancedPut(_ context.Context, _ domain.Session, _ []string, _ []byte) (string, error) {
	return "", m.fail("advanced put", "", domain.ErrNotImplemented, nil)
}

// AdvancedPost is not supported.
func (m *Manager[T]) AdvancedPost(_ context.Context, _ domain.Session, _ string, _ []byte) (string, error) {
	return "", m.fail("advanced post", "", domain.ErrNotImplemented, nil)
}

// ParseID parses a textual record identifier. Any integer is accepted; zero
// and negative values are never assigned, so lookups on them find nothing.
func ParseID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q", id)
	}
	return n, nil
}

func (m *Manager[T]) sample() (rec T, err error) {
	var zero T
	if m.newSample == nil {
		return zero, m.fail("instantiate", "", domain.ErrInternal, errors.New("no record constructor"))
	}
	defer func() {
		if r := recover(); r != nil {
			rec = zero
			err = m.fail("instantiate", "", domain.ErrInternal, fmt.Errorf("record constructor panicked: %v", r))
		}
	}()
	rec = m.newSample()
	if isNil(rec) {
		return zero, m.fail("instantiate", "", domain.ErrInternal, errors.New("record constructor returned nil"))
	}
	return rec, nil
}

func (m *Manager[T]) kindName() (string, error) {
	if m.kind != "" {
		return m.kind, nil
	}
	sample, err := m.sample()
	if err != nil {
		return "", err
	}
	return sample.Kind(), nil
}

func (m *Manager[T]) typed(found []domain.Record) ([]T, error) {
	out := make([]T, 0, len(found))
	for _, rec := range found {
		t, ok := rec.(T)
		if !ok {
			return nil, m.fail("convert", strconv.Itoa(rec.RecordID()), domain.ErrInternal, fmt.Errorf("store returned %T", rec))
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Manager[T]) visible(s domain.Session, recs []T) []T {
	if m.filter == nil {
		return recs
	}
	out := recs[:0]
	for _, rec := range recs {
		if m.filter(s, rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Manager[T]) fail(op, id string, kind, cause error) error {
	return &domain.Error{Kind: kind, Op: op, Entity: m.entityName(), ID: id, Err: cause}
}

// storeError classifies a store failure. Conflicts pass through unchanged.
func (m *Manager[T]) storeError(op, id string, err error) error {
	kind := domain.KindOf(err)
	if kind == domain.ErrConflict {
		return err
	}
	if kind == domain.ErrInternal {
		m.logger.Error("store operation failed", "kind", m.entityName(), "op", op, "id", id, "error", err)
	}
	return m.fail(op, id, kind, err)
}

func (m *Manager[T]) entityName() string {
	if m.kind == "" {
		return "record"
	}
	return m.kind
}

func (m *Manager[T]) observe(ctx context.Context, op string, started time.Time, err *error) {
	m.recorder.Observe(ctx, m.entityName()+"."+op, *err == nil, time.Since(started))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
