package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Codec converts records to and from their serialized wire form.
type Codec[T Record] interface {
	Decode(content []byte) (T, error)
	Encode(rec T) ([]byte, error)
}

// JSONCodec is the default Codec. New must return a fresh, non-nil record.
type JSONCodec[T Record] struct {
	New func() T
}

// NewJSONCodec constructs a JSON codec for records built by ctor.
func NewJSONCodec[T Record](ctor func() T) JSONCodec[T] {
	return JSONCodec[T]{New: ctor}
}

// Decode parses content into a fresh record. Unknown fields are rejected.
func (c JSONCodec[T]) Decode(content []byte) (T, error) {
	var zero T
	if c.New == nil {
		return zero, errors.New("json codec: missing constructor")
	}
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return zero, errors.New("json codec: empty content")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return zero, errors.New("json codec: null record")
	}
	rec := c.New()
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return zero, fmt.Errorf("json codec: decode %s: %w", rec.Kind(), err)
	}
	return rec, nil
}

// Encode serializes rec.
func (c JSONCodec[T]) Encode(rec T) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("json codec: encode: %w", err)
	}
	return data, nil
}
