// Package objectstore provides a record store that snapshots its state as a
// single JSON document in a blob store (filesystem, S3 or memory).
package objectstore

import (
	"bytes"
	"calendarcore/internal/blob"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	_ domain.Store       = (*Store)(nil)
	_ domain.IDAllocator = (*Store)(nil)
)

// DefaultKey is the blob key used when none is configured.
const DefaultKey = "calendarcore/state.json"

const contentType = "application/json"

// Store persists the in-memory state to one blob after every mutation.
type Store struct {
	*memory.Store
	blobs blob.Store
	key   string
}

// NewStore hydrates from the document at key (an absent document starts an
// empty store) and installs the snapshot hook.
func NewStore(ctx context.Context, blobs blob.Store, key string, registry domain.Registry) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("objectstore: blob store is required")
	}
	if key == "" {
		key = DefaultKey
	}
	mem := memory.NewStore(memory.WithRegistry(registry))
	s := &Store{Store: mem, blobs: blobs, key: key}
	snapshot, found, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		if err := mem.ImportState(snapshot); err != nil {
			return nil, fmt.Errorf("import %s: %w", key, err)
		}
	}
	mem.SetCommitHook(s.persist)
	return s, nil
}

// Key returns the blob key holding the snapshot.
func (s *Store) Key() string { return s.key }

func (s *Store) read(ctx context.Context) (memory.Snapshot, bool, error) {
	_, rc, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, blob.ErrNotFound) {
		return memory.Snapshot{}, false, nil
	}
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("read %s: %w", s.key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("read %s: %w", s.key, err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return snapshot, true, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	opts := blob.PutOptions{ContentType: contentType, Metadata: map[string]string{"kinds": fmt.Sprint(len(snapshot.Records))}}
	if _, err := s.blobs.Put(ctx, s.key, bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}
