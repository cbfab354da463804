package core

import (
	"calendarcore/internal/config"
	"calendarcore/internal/entity"
	"calendarcore/internal/logging"
	"calendarcore/internal/observability"
	"calendarcore/pkg/domain"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// Runtime is a fully wired calendar backend built from configuration.
type Runtime struct {
	*Calendar
	Store    PersistentStore
	Logger   logging.Logger
	Recorder observability.Recorder
	// Metrics is nil unless cfg.Metrics.Enabled.
	Metrics *prometheus.Registry
}

// Open builds the logger, recorder, store and managers described by cfg.
// Logs go to w (stderr when nil).
func Open(ctx context.Context, cfg config.Config, w io.Writer) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, w)
	rt := &Runtime{Logger: logger, Recorder: observability.Noop()}
	if cfg.Metrics.Enabled {
		rt.Metrics = prometheus.NewRegistry()
		rec, err := observability.NewPrometheusRecorder(rt.Metrics, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		rt.Recorder = rec
	}
	allocation, err := entity.ParseAllocation(cfg.Entity.IDAllocation)
	if err != nil {
		return nil, err
	}
	filter, err := entity.ParseScopeFilter(cfg.Entity.ScopePolicy)
	if err != nil {
		return nil, err
	}
	store, err := OpenPersistentStore(ctx, cfg, domain.DefaultRegistry())
	if err != nil {
		return nil, err
	}
	rt.Store = store
	cal, err := NewCalendarService(store, logger,
		entity.WithRecorder(rt.Recorder),
		entity.WithAllocation(allocation),
		entity.WithScopeFilter(filter),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Calendar = cal
	logger.Debug("calendar runtime ready", "storage", cfg.Storage.Driver, "allocation", cal.Events.Allocation().String(), "scope_policy", cfg.Entity.ScopePolicy)
	return rt, nil
}

// Close releases the store when it holds external resources.
func (r *Runtime) Close() error {
	if c, ok := r.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
