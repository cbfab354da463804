// Package domain defines the persisted calendar records, the store contract
// consumed by the entity managers, and the error taxonomy shared by the
// server and client halves of calendarcore.
package domain

import "fmt"

// IDField is the field name every record exposes for its identifier.
const IDField = "id"

// Field is a single named value of a record, in declaration order.
type Field struct {
	Name  string
	Value any
}

// Record is the capability set every persisted entity implements. The
// manager is generic over it and never inspects concrete types.
type Record interface {
	Kind() string
	RecordID() int
	SetRecordID(id int)
	Scope() string
	SetScope(scope string)
	// Fields returns every declared field, identifier first.
	Fields() []Field
	// SetField assigns a declared field. Unknown names or mistyped values
	// yield ErrMalformedRequest.
	SetField(name string, value any) error
	Clone() Record
}

// Owned is implemented by records that may be private to a single user.
type Owned interface {
	IsPersonal() bool
	OwnerName() string
}

// Base carries the identifier and owning project shared by all records.
type Base struct {
	ID      int    `json:"id"`
	Project string `json:"project,omitempty"`
}

// RecordID returns the record identifier.
func (b *Base) RecordID() int { return b.ID }

// SetRecordID assigns the record identifier.
func (b *Base) SetRecordID(id int) { b.ID = id }

// Scope returns the owning project.
func (b *Base) Scope() string { return b.Project }

// SetScope assigns the owning project.
func (b *Base) SetScope(scope string) { b.Project = scope }

// FieldValue looks up a named field of rec.
func FieldValue(rec Record, name string) (any, bool) {
	for _, f := range rec.Fields() {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Session is the opaque identity supplied by the transport with every call.
type Session struct {
	User    string
	Project string
}

// Scope returns the partition records created under this session belong to.
func (s Session) Scope() string { return s.Project }

// Registry maps record kinds to constructors so stores can rebuild records
// from persisted snapshots.
type Registry map[string]func() Record

// DefaultRegistry returns a registry containing the calendar record kinds.
func DefaultRegistry() Registry {
	return Registry{
		KindEvent:      func() Record { return NewEvent() },
		KindCommitment: func() Record { return NewCommitment() },
	}
}

// New constructs an empty record of the given kind.
func (r Registry) New(kind string) (Record, error) {
	ctor, ok := r[kind]
	if !ok || ctor == nil {
		return nil, fmt.Errorf("unknown record kind %q: %w", kind, ErrInternal)
	}
	return ctor(), nil
}

func setFieldError(kind, name string, value any) error {
	return &Error{Kind: ErrMalformedRequest, Op: "set field", Entity: kind, Err: fmt.Errorf("field %q cannot hold %T", name, value)}
}

func unknownFieldError(kind, name string) error {
	return &Error{Kind: ErrMalformedRequest, Op: "set field", Entity: kind, Err: fmt.Errorf("unknown field %q", name)}
}
