package entity

import (
	"calendarcore/internal/logging"
	"calendarcore/internal/observability"
	"calendarcore/pkg/domain"
	"fmt"
	"strings"
)

// Allocation selects how Create assigns identifiers.
type Allocation int

const (
	// AllocateAuto uses AllocateAtomic when the store supports it and
	// AllocateScan otherwise.
	AllocateAuto Allocation = iota
	// AllocateAtomic reserves identifiers through domain.IDAllocator.
	AllocateAtomic
	// AllocateScan takes max(id)+1 over the caller's scope. The read and the
	// write are separate store calls, so concurrent creates may pick the same
	// identifier; the store then rejects the second save with ErrConflict.
	AllocateScan
)

func (a Allocation) String() string {
	switch a {
	case AllocateAtomic:
		return "atomic"
	case AllocateScan:
		return "scan"
	default:
		return "auto"
	}
}

// ParseAllocation maps a config value onto an Allocation.
func ParseAllocation(s string) (Allocation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AllocateAuto, nil
	case "atomic":
		return AllocateAtomic, nil
	case "scan":
		return AllocateScan, nil
	default:
		return AllocateAuto, fmt.Errorf("unknown id allocation %q", s)
	}
}

// ScopeFilter decides whether a record in the caller's project is visible to
// the session. A nil filter shows every record of the project.
type ScopeFilter func(s domain.Session, rec domain.Record) bool

// OwnerScope hides personal records that belong to other users. Records that
// do not implement domain.Owned are always visible.
func OwnerScope(s domain.Session, rec domain.Record) bool {
	owned, ok := rec.(domain.Owned)
	if !ok || !owned.IsPersonal() {
		return true
	}
	return owned.OwnerName() == s.User
}

// ParseScopeFilter maps a config value onto a ScopeFilter. "project" (the
// default) returns nil.
func ParseScopeFilter(s string) (ScopeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "project":
		return nil, nil
	case "owner":
		return OwnerScope, nil
	default:
		return nil, fmt.Errorf("unknown scope policy %q", s)
	}
}

type settings struct {
	logger     logging.Logger
	recorder   observability.Recorder
	allocation Allocation
	filter     ScopeFilter
}

// Option configures a Manager.
type Option func(*settings)

// WithLogger sets the manager logger.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) { s.logger = logging.OrNoop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(s *settings) { s.recorder = observability.OrNoop(r) }
}

// WithScopeFilter restricts which records of the caller's project GetAll
// and Get return.
func WithScopeFilter(f ScopeFilter) Option {
	return func(s *settings) { s.filter = f }
}

// WithAllocation selects the identifier allocation strategy.
func WithAllocation(a Allocation) Option {
	return func(s *settings) { s.allocation = a }
}
