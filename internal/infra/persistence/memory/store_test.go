package memory

import (
	"calendarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func saveEvent(t *testing.T, store *Store, id int, scope, name string) {
	t.Helper()
	ok, err := store.Save(context.Background(), &domain.Event{Base: domain.Base{ID: id}, Name: name}, scope)
	if err != nil || !ok {
		t.Fatalf("save %s: ok=%v err=%v", name, ok, err)
	}
}

func TestStoreSaveRetrieveAndScopes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 1, "alpha", "standup")
	saveEvent(t, store, 2, "alpha", "retro")
	saveEvent(t, store, 1, "beta", "planning")

	alpha, err := store.RetrieveAll(ctx, domain.NewEvent(), "alpha")
	if err != nil {
		t.Fatalf("RetrieveAll: %v", err)
	}
	if len(alpha) != 2 || alpha[0].RecordID() != 1 || alpha[1].RecordID() != 2 {
		t.Fatalf("unexpected alpha records: %+v", alpha)
	}
	every, err := store.RetrieveEvery(ctx, domain.NewEvent())
	if err != nil || len(every) != 3 {
		t.Fatalf("RetrieveEvery = %d, %v", len(every), err)
	}
	if every[0].Scope() != "alpha" || every[2].Scope() != "beta" {
		t.Fatalf("expected scope ordering, got %s..%s", every[0].Scope(), every[2].Scope())
	}

	byID, err := store.Retrieve(ctx, domain.KindEvent, domain.AnyScope, domain.IDField, 1)
	if err != nil || len(byID) != 2 {
		t.Fatalf("Retrieve any scope = %d, %v", len(byID), err)
	}
	scoped, err := store.Retrieve(ctx, domain.KindEvent, "beta", domain.IDField, 1)
	if err != nil || len(scoped) != 1 || scoped[0].(*domain.Event).Name != "planning" {
		t.Fatalf("Retrieve beta = %+v, %v", scoped, err)
	}
	none, err := store.Retrieve(ctx, domain.KindCommitment, domain.AnyScope, domain.IDField, 1)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no commitments, got %d, %v", len(none), err)
	}
}

func TestStoreSaveRejectsDuplicatesAndZeroIDs(t *testing.T) {
	store := NewStore()
	saveEvent(t, store, 1, "alpha", "standup")
	_, err := store.Save(context.Background(), &domain.Event{Base: domain.Base{ID: 1}}, "alpha")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := store.Save(context.Background(), domain.NewEvent(), "alpha"); !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected internal error for zero id, got %v", err)
	}
	if _, err := store.Save(context.Background(), nil, "alpha"); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore()
	ev := &domain.Event{Base: domain.Base{ID: 1}, Name: "standup", Participants: []string{"ana"}}
	if _, err := store.Save(context.Background(), ev, "alpha"); err != nil {
		t.Fatalf("save: %v", err)
	}
	ev.Name = "mutated"
	got, _ := store.RetrieveAll(context.Background(), domain.NewEvent(), "alpha")
	got[0].(*domain.Event).Participants[0] = "zed"
	again, _ := store.RetrieveAll(context.Background(), domain.NewEvent(), "alpha")
	stored := again[0].(*domain.Event)
	if stored.Name != "standup" || stored.Participants[0] != "ana" {
		t.Fatalf("store state leaked: %+v", stored)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 1, "alpha", "standup")
	saveEvent(t, store, 1, "beta", "planning")

	n, err := store.Update(ctx, domain.KindEvent, "alpha", domain.IDField, 1, "name", "daily standup")
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	beta, _ := store.Retrieve(ctx, domain.KindEvent, "beta", domain.IDField, 1)
	if beta[0].(*domain.Event).Name != "planning" {
		t.Fatalf("update crossed scopes")
	}
	n, err = store.Update(ctx, domain.KindEvent, "alpha", domain.IDField, 99, "name", "x")
	if err != nil || n != 0 {
		t.Fatalf("expected zero matches, got %d, %v", n, err)
	}
	if _, err := store.Update(ctx, domain.KindEvent, "alpha", domain.IDField, 1, "name", 7); !errors.Is(err, domain.ErrMalformedRequest) {
		t.Fatalf("expected malformed request for mistyped value, got %v", err)
	}
	alpha, _ := store.Retrieve(ctx, domain.KindEvent, "alpha", domain.IDField, 1)
	if alpha[0].(*domain.Event).Name != "daily standup" {
		t.Fatalf("failed update must not partially apply")
	}
}

func TestStoreUpdateIdentifierRekeys(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 1, "alpha", "standup")
	saveEvent(t, store, 2, "alpha", "retro")
	if _, err := store.Update(ctx, domain.KindEvent, "alpha", domain.IDField, 1, domain.IDField, 2); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict when rekeying onto existing id, got %v", err)
	}
	if n, err := store.Update(ctx, domain.KindEvent, "alpha", domain.IDField, 1, domain.IDField, 5); err != nil || n != 1 {
		t.Fatalf("rekey = %d, %v", n, err)
	}
	moved, _ := store.Retrieve(ctx, domain.KindEvent, "alpha", domain.IDField, 5)
	if len(moved) != 1 || moved[0].(*domain.Event).Name != "standup" {
		t.Fatalf("expected record under new id, got %+v", moved)
	}
}

func TestStoreDeleteAndDeleteAll(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 1, "alpha", "standup")
	saveEvent(t, store, 2, "beta", "retro")

	removed, err := store.Delete(ctx, &domain.Event{Base: domain.Base{ID: 1, Project: "alpha"}})
	if err != nil || removed == nil || removed.(*domain.Event).Name != "standup" {
		t.Fatalf("Delete = %+v, %v", removed, err)
	}
	again, err := store.Delete(ctx, &domain.Event{Base: domain.Base{ID: 1, Project: "alpha"}})
	if err != nil || again != nil {
		t.Fatalf("expected nil for absent record, got %+v, %v", again, err)
	}
	if err := store.DeleteAll(ctx, domain.NewEvent()); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	every, _ := store.RetrieveEvery(ctx, domain.NewEvent())
	if len(every) != 0 {
		t.Fatalf("expected empty store, got %d", len(every))
	}
}

func TestStoreAllocateIDIsMonotonic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 3, "alpha", "imported")
	id, err := store.AllocateID(ctx, domain.KindEvent, "alpha")
	if err != nil || id != 4 {
		t.Fatalf("AllocateID = %d, %v; want 4", id, err)
	}
	if _, err := store.Delete(ctx, &domain.Event{Base: domain.Base{ID: 3, Project: "alpha"}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteAll(ctx, domain.NewEvent()); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	id, _ = store.AllocateID(ctx, domain.KindEvent, "alpha")
	if id != 5 {
		t.Fatalf("expected ids not to be reissued, got %d", id)
	}
	other, _ := store.AllocateID(ctx, domain.KindEvent, "beta")
	if other != 1 {
		t.Fatalf("expected independent sequence per scope, got %d", other)
	}
}

func TestStoreAllocateIDConcurrent(t *testing.T) {
	store := NewStore()
	const n = 64
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.AllocateID(context.Background(), domain.KindCommitment, "alpha")
			if err != nil {
				t.Errorf("AllocateID: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	seen := make(map[int]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d ids, got %d", n, len(seen))
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saveEvent(t, store, 1, "alpha", "standup")
	if _, err := store.Save(ctx, &domain.Commitment{Base: domain.Base{ID: 4}, Name: "report", Status: domain.CommitmentNew}, "beta"); err != nil {
		t.Fatalf("save commitment: %v", err)
	}
	if _, err := store.AllocateID(ctx, domain.KindEvent, "alpha"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	snap, err := store.ExportState()
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	if kinds := snap.Kinds(); len(kinds) != 2 || kinds[0] != domain.KindCommitment {
		t.Fatalf("unexpected kinds %v", kinds)
	}

	restored := NewStore()
	if err := restored.ImportState(snap); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	commitments, _ := restored.RetrieveAll(ctx, domain.NewCommitment(), "beta")
	if len(commitments) != 1 || commitments[0].(*domain.Commitment).Name != "report" || commitments[0].Scope() != "beta" {
		t.Fatalf("unexpected restored commitments %+v", commitments)
	}
	id, _ := restored.AllocateID(ctx, domain.KindEvent, "alpha")
	if id != 3 {
		t.Fatalf("expected restored sequence to continue at 3, got %d", id)
	}
}

func TestStoreImportRejectsUnknownKind(t *testing.T) {
	store := NewStore(WithRegistry(domain.Registry{}))
	err := store.ImportState(Snapshot{Records: map[string][]StoredRecord{"event": {{Scope: "a", Payload: []byte(`{"id":1}`)}}}})
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestStoreCommitHookFailureAbortsMutation(t *testing.T) {
	var calls int
	store := NewStore(WithCommitHook(func(_ context.Context, snap Snapshot) error {
		calls++
		if len(snap.Records[domain.KindEvent]) > 1 {
			return fmt.Errorf("disk full")
		}
		return nil
	}))
	saveEvent(t, store, 1, "alpha", "standup")
	if _, err := store.Save(context.Background(), &domain.Event{Base: domain.Base{ID: 2}}, "alpha"); err == nil {
		t.Fatalf("expected hook failure to surface")
	}
	every, _ := store.RetrieveEvery(context.Background(), domain.NewEvent())
	if len(every) != 1 {
		t.Fatalf("expected aborted mutation to leave 1 record, got %d", len(every))
	}
	if calls != 2 {
		t.Fatalf("expected 2 hook calls, got %d", calls)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Save(ctx, &domain.Event{Base: domain.Base{ID: 1}}, "alpha"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if _, err := store.RetrieveEvery(ctx, domain.NewEvent()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation on read, got %v", err)
	}
}
