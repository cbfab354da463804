package domain

import (
	"errors"
	"strings"
)

// Error taxonomy shared by managers and stores. Callers match with errors.Is.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
	ErrNotImplemented   = errors.New("not implemented")
)

// Error describes a failed operation on a record kind.
type Error struct {
	Kind   error
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Entity != "" {
		b.WriteString(e.Entity)
		b.WriteString(" ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.ID != "" {
		b.WriteString(" (id ")
		b.WriteString(e.ID)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the taxonomy sentinel err belongs to, or ErrInternal when
// it carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrMalformedRequest, ErrNotFound, ErrConflict, ErrNotImplemented, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}
