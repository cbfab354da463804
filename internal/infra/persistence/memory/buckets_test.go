package memory

import (
	"calendarcore/pkg/domain"
	"context"
	"testing"
)

func TestBucketsRoundTrip(t *testing.T) {
	store := NewStore()
	saveEvent(t, store, 1, "alpha", "standup")
	saveEvent(t, store, 4, "beta", "retro")
	if _, err := store.Save(context.Background(), &domain.Commitment{Base: domain.Base{ID: 2}, Name: "ship"}, "alpha"); err != nil {
		t.Fatalf("save commitment: %v", err)
	}
	snap, err := store.ExportState()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	buckets, err := snap.Buckets()
	if err != nil {
		t.Fatalf("buckets: %v", err)
	}
	for _, name := range []string{RecordBucket(domain.KindEvent), RecordBucket(domain.KindCommitment), SequenceBucket} {
		if len(buckets[name]) == 0 {
			t.Fatalf("missing bucket %s in %v", name, buckets)
		}
	}
	buckets["legacy"] = []byte("ignored")
	buckets[RecordBucket("removed")] = []byte("[]")

	back, err := SnapshotFromBuckets(buckets)
	if err != nil {
		t.Fatalf("from buckets: %v", err)
	}
	if got := back.Kinds(); len(got) != 2 || got[0] != domain.KindCommitment || got[1] != domain.KindEvent {
		t.Fatalf("unexpected kinds %v", got)
	}
	restored := NewStore()
	if err := restored.ImportState(back); err != nil {
		t.Fatalf("import: %v", err)
	}
	id, err := restored.AllocateID(context.Background(), domain.KindEvent, "beta")
	if err != nil || id != 5 {
		t.Fatalf("expected next beta id 5, got %d, %v", id, err)
	}
}

func TestSnapshotFromBucketsRejectsCorruptPayload(t *testing.T) {
	if _, err := SnapshotFromBuckets(map[string][]byte{RecordBucket("event"): []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := SnapshotFromBuckets(map[string][]byte{SequenceBucket: []byte("[1]")}); err == nil {
		t.Fatal("expected sequence decode error")
	}
}
