package domain

import "time"

// KindEvent identifies calendar event records.
const KindEvent = "event"

// Event is a scheduled calendar entry spanning Start to End.
type Event struct {
	Base
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Category     string    `json:"category,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Personal     bool      `json:"personal,omitempty"`
	Owner        string    `json:"owner,omitempty"`
}

// NewEvent returns an empty event.
func NewEvent() *Event { return &Event{} }

// Kind implements Record.
func (e *Event) Kind() string { return KindEvent }

// IsPersonal reports whether the event is private to its owner.
func (e *Event) IsPersonal() bool { return e.Personal }

// OwnerName returns the user that owns a personal event.
func (e *Event) OwnerName() string { return e.Owner }

// Fields implements Record.
func (e *Event) Fields() []Field {
	return []Field{
		{Name: IDField, Value: e.ID},
		{Name: "name", Value: e.Name},
		{Name: "description", Value: e.Description},
		{Name: "start", Value: e.Start},
		{Name: "end", Value: e.End},
		{Name: "category", Value: e.Category},
		{Name: "participants", Value: append([]string(nil), e.Participants...)},
		{Name: "personal", Value: e.Personal},
		{Name: "owner", Value: e.Owner},
	}
}

// SetField implements Record.
func (e *Event) SetField(name string, value any) error {
	var ok bool
	switch name {
	case IDField:
		e.ID, ok = value.(int)
	case "name":
		e.Name, ok = value.(string)
	case "description":
		e.Description, ok = value.(string)
	case "start":
		e.Start, ok = value.(time.Time)
	case "end":
		e.End, ok = value.(time.Time)
	case "category":
		e.Category, ok = value.(string)
	case "participants":
		var participants []string
		participants, ok = value.([]string)
		if ok {
			e.Participants = append([]string(nil), participants...)
		}
	case "personal":
		e.Personal, ok = value.(bool)
	case "owner":
		e.Owner, ok = value.(string)
	default:
		return unknownFieldError(KindEvent, name)
	}
	if !ok {
		return setFieldError(KindEvent, name, value)
	}
	return nil
}

// Clone implements Record.
func (e *Event) Clone() Record {
	cp := *e
	cp.Participants = append([]string(nil), e.Participants...)
	return &cp
}
