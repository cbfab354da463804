package memory

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	recordBucketPrefix = "records/"
	// SequenceBucket holds the allocation high-water marks.
	SequenceBucket = "sequences"
)

// RecordBucket names the bucket holding records of kind.
func RecordBucket(kind string) string { return recordBucketPrefix + kind }

// Buckets splits the snapshot into one JSON payload per record kind plus the
// sequence bucket. Row-oriented backends persist one row per bucket.
func (s Snapshot) Buckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(s.Records)+1)
	for kind, stored := range s.Records {
		data, err := json.Marshal(stored)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
		out[RecordBucket(kind)] = data
	}
	seq := s.Sequences
	if seq == nil {
		seq = map[string]map[string]int{}
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return nil, fmt.Errorf("encode sequences: %w", err)
	}
	out[SequenceBucket] = data
	return out, nil
}

// SnapshotFromBuckets reassembles a snapshot from persisted buckets. Unknown
// bucket names are ignored and empty payloads are skipped.
func SnapshotFromBuckets(buckets map[string][]byte) (Snapshot, error) {
	snap := Snapshot{
		Records:   make(map[string][]StoredRecord),
		Sequences: make(map[string]map[string]int),
	}
	for name, payload := range buckets {
		if len(payload) == 0 {
			continue
		}
		switch {
		case name == SequenceBucket:
			if err := json.Unmarshal(payload, &snap.Sequences); err != nil {
				return Snapshot{}, fmt.Errorf("decode sequences: %w", err)
			}
		case strings.HasPrefix(name, recordBucketPrefix):
			kind := strings.TrimPrefix(name, recordBucketPrefix)
			var stored []StoredRecord
			if err := json.Unmarshal(payload, &stored); err != nil {
				return Snapshot{}, fmt.Errorf("decode %s: %w", kind, err)
			}
			if len(stored) > 0 {
				snap.Records[kind] = stored
			}
		}
	}
	return snap, nil
}
