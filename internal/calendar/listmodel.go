// Package calendar holds the client-side view of calendar records: list
// models kept in sync with the server and the controllers that drive them.
package calendar

import (
	"calendarcore/pkg/domain"
	"fmt"
	"sort"
	"sync"
)

// ChangeKind describes a list model mutation.
type ChangeKind string

// List model mutations.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeReplaced ChangeKind = "replaced"
)

// Change is passed to list model listeners. Record is nil for
// ChangeReplaced.
type Change[T domain.Record] struct {
	Kind   ChangeKind
	Record T
}

// Listener observes list model changes. Listeners run after the model lock
// is released.
type Listener[T domain.Record] func(Change[T])

// ListModel is a concurrency-safe collection of records ordered by id.
type ListModel[T domain.Record] struct {
	mu        sync.RWMutex
	records   map[int]T
	listeners []Listener[T]
}

// NewListModel returns an empty model.
func NewListModel[T domain.Record]() *ListModel[T] {
	return &ListModel[T]{records: make(map[int]T)}
}

// Subscribe registers l for future changes.
func (m *ListModel[T]) Subscribe(l Listener[T]) {
	if l == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Add inserts rec. A record whose id is already present is rejected with
// domain.ErrConflict.
func (m *ListModel[T]) Add(rec T) error {
	id := rec.RecordID()
	m.mu.Lock()
	if _, exists := m.records[id]; exists {
		m.mu.Unlock()
		return &domain.Error{Kind: domain.ErrConflict, Op: "add", Entity: rec.Kind(), ID: fmt.Sprint(id), Err: fmt.Errorf("already listed")}
	}
	m.records[id] = rec
	listeners := m.snapshotListeners()
	m.mu.Unlock()
	notify(listeners, Change[T]{Kind: ChangeAdded, Record: rec})
	return nil
}

// Replace swaps the model contents for recs. Later duplicates win.
func (m *ListModel[T]) Replace(recs []T) {
	next := make(map[int]T, len(recs))
	for _, rec := range recs {
		next[rec.RecordID()] = rec
	}
	m.mu.Lock()
	m.records = next
	listeners := m.snapshotListeners()
	m.mu.Unlock()
	notify(listeners, Change[T]{Kind: ChangeReplaced})
}

// Remove deletes the record with id and reports whether it was present.
func (m *ListModel[T]) Remove(id int) bool {
	m.mu.Lock()
	rec, ok := m.records[id]
	if ok {
		delete(m.records, id)
	}
	listeners := m.snapshotListeners()
	m.mu.Unlock()
	if ok {
		notify(listeners, Change[T]{Kind: ChangeRemoved, Record: rec})
	}
	return ok
}

// Get returns the record with id.
func (m *ListModel[T]) Get(id int) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

// All returns the records ordered by id.
func (m *ListModel[T]) All() []T {
	m.mu.RLock()
	out := make([]T, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

// Len reports the number of records.
func (m *ListModel[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *ListModel[T]) snapshotListeners() []Listener[T] {
	return append([]Listener[T](nil), m.listeners...)
}

func notify[T domain.Record](listeners []Listener[T], c Change[T]) {
	for _, l := range listeners {
		l(c)
	}
}
