package domain

import "time"

// KindCommitment identifies commitment records.
const KindCommitment = "commitment"

// CommitmentStatus tracks progress on a commitment.
type CommitmentStatus string

// Commitment statuses.
const (
	CommitmentNew        CommitmentStatus = "new"
	CommitmentInProgress CommitmentStatus = "in_progress"
	CommitmentCompleted  CommitmentStatus = "completed"
)

// Commitment is a task due at a single point in time.
type Commitment struct {
	Base
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Due         time.Time        `json:"due"`
	Category    string           `json:"category,omitempty"`
	Status      CommitmentStatus `json:"status,omitempty"`
	Personal    bool             `json:"personal,omitempty"`
	Owner       string           `json:"owner,omitempty"`
}

// NewCommitment returns an empty commitment.
func NewCommitment() *Commitment { return &Commitment{} }

// Kind implements Record.
func (c *Commitment) Kind() string { return KindCommitment }

// IsPersonal reports whether the commitment is private to its owner.
func (c *Commitment) IsPersonal() bool { return c.Personal }

// OwnerName returns the user that owns a personal commitment.
func (c *Commitment) OwnerName() string { return c.Owner }

// Fields implements Record.
func (c *Commitment) Fields() []Field {
	return []Field{
		{Name: IDField, Value: c.ID},
		{Name: "name", Value: c.Name},
		{Name: "description", Value: c.Description},
		{Name: "due", Value: c.Due},
		{Name: "category", Value: c.Category},
		{Name: "status", Value: c.Status},
		{Name: "personal", Value: c.Personal},
		{Name: "owner", Value: c.Owner},
	}
}

// SetField implements Record.
func (c *Commitment) SetField(name string, value any) error {
	var ok bool
	switch name {
	case IDField:
		c.ID, ok = value.(int)
	case "name":
		c.Name, ok = value.(string)
	case "description":
		c.Description, ok = value.(string)
	case "due":
		c.Due, ok = value.(time.Time)
	case "category":
		c.Category, ok = value.(string)
	case "status":
		c.Status, ok = value.(CommitmentStatus)
	case "personal":
		c.Personal, ok = value.(bool)
	case "owner":
		c.Owner, ok = value.(string)
	default:
		return unknownFieldError(KindCommitment, name)
	}
	if !ok {
		return setFieldError(KindCommitment, name, value)
	}
	return nil
}

// Clone implements Record.
func (c *Commitment) Clone() Record {
	cp := *c
	return &cp
}
