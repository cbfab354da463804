// Package memory provides the in-memory implementation of domain.Store used
// for tests, ephemeral environments, and as the working set of the
// snapshotting backends.
package memory

import (
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Compile-time contract assertions.
var (
	_ domain.Store       = (*Store)(nil)
	_ domain.IDAllocator = (*Store)(nil)
)

// CommitHook receives the state a mutation is about to commit. Returning an
// error aborts the mutation and leaves the previous state in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

type bucket map[string]map[int]domain.Record // scope -> id -> record

type memoryState struct {
	kinds     map[string]bucket
	sequences map[string]map[string]int
}

func newMemoryState() memoryState {
	return memoryState{
		kinds:     make(map[string]bucket),
		sequences: make(map[string]map[string]int),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for kind, b := range s.kinds {
		cb := make(bucket, len(b))
		for scope, records := range b {
			cr := make(map[int]domain.Record, len(records))
			for id, rec := range records {
				cr[id] = rec.Clone()
			}
			cb[scope] = cr
		}
		cloned.kinds[kind] = cb
	}
	for kind, scopes := range s.sequences {
		cs := make(map[string]int, len(scopes))
		for scope, seq := range scopes {
			cs[scope] = seq
		}
		cloned.sequences[kind] = cs
	}
	return cloned
}

func (s *memoryState) scopeRecords(kind, scope string) map[int]domain.Record {
	b, ok := s.kinds[kind]
	if !ok {
		b = make(bucket)
		s.kinds[kind] = b
	}
	records, ok := b[scope]
	if !ok {
		records = make(map[int]domain.Record)
		b[scope] = records
	}
	return records
}

func (s *memoryState) bumpSequence(kind, scope string, id int) {
	scopes, ok := s.sequences[kind]
	if !ok {
		scopes = make(map[string]int)
		s.sequences[kind] = scopes
	}
	if id > scopes[scope] {
		scopes[scope] = id
	}
}

// each visits records of kind whose scope matches, ordered by scope then id.
func (s *memoryState) each(kind, scope string, fn func(rec domain.Record) bool) {
	b := s.kinds[kind]
	scopes := make([]string, 0, len(b))
	for sc := range b {
		if scope == domain.AnyScope || sc == scope {
			scopes = append(scopes, sc)
		}
	}
	sort.Strings(scopes)
	for _, sc := range scopes {
		records := b[sc]
		ids := make([]int, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			if !fn(records[id]) {
				return
			}
		}
	}
}

// Store provides an in-memory record store safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	registry domain.Registry
	hook     CommitHook
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the registry used to rebuild records from snapshots.
func WithRegistry(reg domain.Registry) Option {
	return func(s *Store) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithCommitHook installs a hook invoked before every mutation commits.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:    newMemoryState(),
		registry: domain.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitHook replaces the commit hook.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Registry returns the record registry used for snapshot import.
func (s *Store) Registry() domain.Registry { return s.registry }

// mutate applies fn to a copy of the state and commits it once fn and the
// commit hook succeed.
func (s *Store) mutate(ctx context.Context, fn func(state *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if s.hook != nil {
		snapshot, err := snapshotFromState(next)
		if err != nil {
			return err
		}
		if err := s.hook(ctx, snapshot); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.state = next
	return nil
}

func (s *Store) view(ctx context.Context, fn func(state *memoryState)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
	return nil
}

// Save stores a copy of rec under scope. A record with the same id already
// present in the kind and scope yields domain.ErrConflict.
func (s *Store) Save(ctx context.Context, rec domain.Record, scope string) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("save: nil record: %w", domain.ErrInternal)
	}
	id := rec.RecordID()
	if id <= 0 {
		return false, &domain.Error{Kind: domain.ErrInternal, Op: "save", Entity: rec.Kind(), Err: fmt.Errorf("record id %d is not positive", id)}
	}
	err := s.mutate(ctx, func(state *memoryState) error {
		records := state.scopeRecords(rec.Kind(), scope)
		if _, exists := records[id]; exists {
			return &domain.Error{Kind: domain.ErrConflict, Op: "save", Entity: rec.Kind(), ID: fmt.Sprint(id), Err: fmt.Errorf("already exists in scope %q", scope)}
		}
		stored := rec.Clone()
		stored.SetScope(scope)
		records[id] = stored
		state.bumpSequence(rec.Kind(), scope, id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Retrieve returns copies of the records of kind whose field equals value.
func (s *Store) Retrieve(ctx context.Context, kind, scope, field string, value any) ([]domain.Record, error) {
	var out []domain.Record
	err := s.view(ctx, func(state *memoryState) {
		state.each(kind, scope, func(rec domain.Record) bool {
			if v, ok := domain.FieldValue(rec, field); ok && reflect.DeepEqual(v, value) {
				out = append(out, rec.Clone())
			}
			return true
		})
	})
	return out, err
}

// RetrieveAll returns copies of every record of sample's kind in scope.
func (s *Store) RetrieveAll(ctx context.Context, sample domain.Record, scope string) ([]domain.Record, error) {
	if sample == nil {
		return nil, fmt.Errorf("retrieve all: nil sample: %w", domain.ErrInternal)
	}
	return s.list(ctx, sample.Kind(), scope)
}

// RetrieveEvery returns copies of every record of sample's kind in any scope.
func (s *Store) RetrieveEvery(ctx context.Context, sample domain.Record) ([]domain.Record, error) {
	if sample == nil {
		return nil, fmt.Errorf("retrieve every: nil sample: %w", domain.ErrInternal)
	}
	return s.list(ctx, sample.Kind(), domain.AnyScope)
}

func (s *Store) list(ctx context.Context, kind, scope string) ([]domain.Record, error) {
	out := []domain.Record{}
	err := s.view(ctx, func(state *memoryState) {
		state.each(kind, scope, func(rec domain.Record) bool {
			out = append(out, rec.Clone())
			return true
		})
	})
	return out, err
}

// Update assigns targetField on every matching record.
func (s *Store) Update(ctx context.Context, kind, scope, keyField string, keyValue any, targetField string, newValue any) (int, error) {
	changed := 0
	err := s.mutate(ctx, func(state *memoryState) error {
		var matches []domain.Record
		state.each(kind, scope, func(rec domain.Record) bool {
			if v, ok := domain.FieldValue(rec, keyField); ok && reflect.DeepEqual(v, keyValue) {
				matches = append(matches, rec)
			}
			return true
		})
		for _, rec := range matches {
			oldID := rec.RecordID()
			updated := rec.Clone()
			if err := updated.SetField(targetField, newValue); err != nil {
				return err
			}
			records := state.scopeRecords(kind, rec.Scope())
			if newID := updated.RecordID(); newID != oldID {
				if newID <= 0 {
					return &domain.Error{Kind: domain.ErrMalformedRequest, Op: "update", Entity: kind, ID: fmt.Sprint(oldID), Err: fmt.Errorf("record id %d is not positive", newID)}
				}
				if _, exists := records[newID]; exists {
					return &domain.Error{Kind: domain.ErrConflict, Op: "update", Entity: kind, ID: fmt.Sprint(newID)}
				}
				delete(records, oldID)
				state.bumpSequence(kind, rec.Scope(), newID)
			}
			records[updated.RecordID()] = updated
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Delete removes rec from its scope and returns the removed record, or nil
// when it was not present.
func (s *Store) Delete(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("delete: nil record: %w", domain.ErrInternal)
	}
	var removed domain.Record
	err := s.mutate(ctx, func(state *memoryState) error {
		records := state.kinds[rec.Kind()][rec.Scope()]
		current, ok := records[rec.RecordID()]
		if !ok {
			return nil
		}
		delete(records, rec.RecordID())
		removed = current.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteAll removes every record of sample's kind in every scope. Allocation
// sequences survive so identifiers are not reissued.
func (s *Store) DeleteAll(ctx context.Context, sample domain.Record) error {
	if sample == nil {
		return fmt.Errorf("delete all: nil sample: %w", domain.ErrInternal)
	}
	return s.mutate(ctx, func(state *memoryState) error {
		delete(state.kinds, sample.Kind())
		return nil
	})
}

// AllocateID reserves the next identifier for kind within scope.
func (s *Store) AllocateID(ctx context.Context, kind, scope string) (int, error) {
	var id int
	err := s.mutate(ctx, func(state *memoryState) error {
		next := state.sequences[kind][scope]
		for existing := range state.kinds[kind][scope] {
			if existing > next {
				next = existing
			}
		}
		id = next + 1
		state.bumpSequence(kind, scope, id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Snapshot captures the persisted form of the store state.
type Snapshot struct {
	Records   map[string][]StoredRecord `json:"records"`
	Sequences map[string]map[string]int `json:"sequences"`
}

// StoredRecord is a single serialized record with its scope.
type StoredRecord struct {
	Scope   string          `json:"scope"`
	Payload json.RawMessage `json:"payload"`
}

// Kinds returns the record kinds present in the snapshot, sorted.
func (s Snapshot) Kinds() []string {
	kinds := make([]string, 0, len(s.Records))
	for kind := range s.Records {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func snapshotFromState(state memoryState) (Snapshot, error) {
	snap := Snapshot{
		Records:   make(map[string][]StoredRecord, len(state.kinds)),
		Sequences: make(map[string]map[string]int, len(state.sequences)),
	}
	for kind := range state.kinds {
		stored := []StoredRecord{}
		var encodeErr error
		state.each(kind, domain.AnyScope, func(rec domain.Record) bool {
			payload, err := json.Marshal(rec)
			if err != nil {
				encodeErr = fmt.Errorf("encode %s %d: %w", kind, rec.RecordID(), err)
				return false
			}
			stored = append(stored, StoredRecord{Scope: rec.Scope(), Payload: payload})
			return true
		})
		if encodeErr != nil {
			return Snapshot{}, encodeErr
		}
		snap.Records[kind] = stored
	}
	for kind, scopes := range state.sequences {
		cs := make(map[string]int, len(scopes))
		for scope, seq := range scopes {
			cs[scope] = seq
		}
		snap.Sequences[kind] = cs
	}
	return snap, nil
}

func (s *Store) stateFromSnapshot(snap Snapshot) (memoryState, error) {
	state := newMemoryState()
	for kind, stored := range snap.Records {
		for _, sr := range stored {
			rec, err := s.registry.New(kind)
			if err != nil {
				return memoryState{}, err
			}
			if err := json.Unmarshal(sr.Payload, rec); err != nil {
				return memoryState{}, fmt.Errorf("decode %s: %w", kind, err)
			}
			rec.SetScope(sr.Scope)
			records := state.scopeRecords(kind, sr.Scope)
			if _, dup := records[rec.RecordID()]; dup {
				return memoryState{}, &domain.Error{Kind: domain.ErrConflict, Op: "import", Entity: kind, ID: fmt.Sprint(rec.RecordID())}
			}
			records[rec.RecordID()] = rec
			state.bumpSequence(kind, sr.Scope, rec.RecordID())
		}
	}
	for kind, scopes := range snap.Sequences {
		for scope, seq := range scopes {
			state.bumpSequence(kind, scope, seq)
		}
	}
	return state, nil
}

// ExportState serializes the current store state.
func (s *Store) ExportState() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the store state with the snapshot contents.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := s.stateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}
