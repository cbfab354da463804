// Package core wires the calendar record managers into a Service that routes
// kind.verb invocations, and selects the persistent store backend.
package core

import (
	"calendarcore/internal/entity"
	"calendarcore/internal/logging"
	"calendarcore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
)

// Service routes byte-level invocations to the endpoint registered for a
// record kind.
type Service struct {
	mu        sync.RWMutex
	endpoints map[string]entity.Endpoint
	logger    logging.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logging.OrNoop(l) }
}

// NewService constructs an empty Service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{endpoints: make(map[string]entity.Endpoint), logger: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds ep under its kind. Kinds are registered once.
func (s *Service) Register(ep entity.Endpoint) error {
	if ep == nil || ep.Kind() == "" {
		return fmt.Errorf("core: endpoint without kind")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[ep.Kind()]; exists {
		return fmt.Errorf("core: kind %s already registered", ep.Kind())
	}
	s.endpoints[ep.Kind()] = ep
	return nil
}

// Kinds lists registered record kinds, sorted.
func (s *Service) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]string, 0, len(s.endpoints))
	for k := range s.endpoints {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Invoke runs verb against the endpoint for kind on behalf of session.
// Unknown kinds and verbs yield domain.ErrNotImplemented.
func (s *Service) Invoke(ctx context.Context, session domain.Session, kind, verb string, body []byte) ([]byte, error) {
	s.mu.RLock()
	ep, ok := s.endpoints[kind]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrNotImplemented, Op: verb, Entity: kind, Err: fmt.Errorf("unknown kind %q", kind)}
	}
	out, err := ep.Invoke(ctx, session, verb, body)
	if err != nil {
		s.logger.Debug("invocation failed", "kind", kind, "verb", verb, "user", session.User, "project", session.Project, "error", err)
		return nil, err
	}
	return out, nil
}

// Calendar bundles the managers of the calendar record kinds.
type Calendar struct {
	*Service
	Events      *entity.Manager[*domain.Event]
	Commitments *entity.Manager[*domain.Commitment]
}

// NewCalendarService builds the event and commitment managers over store and
// registers them with a new Service.
func NewCalendarService(store domain.Store, logger logging.Logger, opts ...entity.Option) (*Calendar, error) {
	logger = logging.OrNoop(logger)
	events, err := entity.NewManager(store, domain.NewJSONCodec(domain.NewEvent), domain.NewEvent,
		append([]entity.Option{entity.WithLogger(logging.With(logger, "kind", domain.KindEvent))}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("event manager: %w", err)
	}
	commitments, err := entity.NewManager(store, domain.NewJSONCodec(domain.NewCommitment), domain.NewCommitment,
		append([]entity.Option{entity.WithLogger(logging.With(logger, "kind", domain.KindCommitment))}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("commitment manager: %w", err)
	}
	svc := NewService(WithServiceLogger(logger))
	for _, ep := range []entity.Endpoint{events.Endpoint(), commitments.Endpoint()} {
		if err := svc.Register(ep); err != nil {
			return nil, err
		}
	}
	return &Calendar{Service: svc, Events: events, Commitments: commitments}, nil
}
