// Package dispatch routes the outcome of asynchronous requests to the handler
// registered for the request's operation key. Each registration receives at
// most one outcome.
package dispatch

import (
	"bytes"
	"calendarcore/internal/logging"
	"calendarcore/internal/observability"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Handler consumes the single outcome of one operation.
type Handler[T any] interface {
	Success(rec T)
	ServerError(err *ServerError)
	TransportFailure(err *TransportError)
}

// HandlerFuncs adapts plain functions to Handler. Nil functions are skipped.
type HandlerFuncs[T any] struct {
	OnSuccess          func(rec T)
	OnServerError      func(err *ServerError)
	OnTransportFailure func(err *TransportError)
}

func (h HandlerFuncs[T]) Success(rec T) {
	if h.OnSuccess != nil {
		h.OnSuccess(rec)
	}
}

func (h HandlerFuncs[T]) ServerError(err *ServerError) {
	if h.OnServerError != nil {
		h.OnServerError(err)
	}
}

func (h HandlerFuncs[T]) TransportFailure(err *TransportError) {
	if h.OnTransportFailure != nil {
		h.OnTransportFailure(err)
	}
}

// Decoder parses a raw response body into the operation's expected type.
type Decoder[T any] func(body []byte) (T, error)

// JSON returns a Decoder that unmarshals into T. A null body, or one that
// leaves a pointer T nil, is an error.
func JSON[T any]() Decoder[T] {
	return func(body []byte) (T, error) {
		var out T
		if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return out, errors.New("null response body")
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return out, err
		}
		if rv := reflect.ValueOf(&out).Elem(); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return out, errors.New("response decoded to a nil record")
		}
		return out, nil
	}
}

// Outcome names used for logging and metrics.
const (
	OutcomeSuccess          = "success"
	OutcomeServerError      = "server_error"
	OutcomeTransportFailure = "transport_failure"
)

type entry struct {
	expects    string
	registered time.Time
	// decode parses the body and returns the success delivery.
	decode           func(body []byte) (func(), error)
	serverError      func(*ServerError)
	transportFailure func(*TransportError)
}

// Dispatcher holds pending registrations keyed by operation key. Outcome
// methods are safe to call from any goroutine and never panic.
type Dispatcher struct {
	mu       sync.Mutex
	pending  map[string]*entry
	logger   logging.Logger
	recorder observability.Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = logging.OrNoop(l) }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(d *Dispatcher) { d.recorder = observability.OrNoop(r) }
}

// New constructs an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pending:  make(map[string]*entry),
		logger:   logging.Noop(),
		recorder: observability.Noop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register associates h with key. A later registration for the same key
// replaces the earlier one.
func Register[T any](d *Dispatcher, key string, decode Decoder[T], h Handler[T]) error {
	if key == "" {
		return errors.New("dispatch: operation key is required")
	}
	if decode == nil {
		return errors.New("dispatch: decoder is required")
	}
	if h == nil || isNilHandler(h) {
		return errors.New("dispatch: handler is required")
	}
	e := &entry{
		expects:    fmt.Sprintf("%T", *new(T)),
		registered: time.Now(),
		decode: func(body []byte) (func(), error) {
			rec, err := decode(body)
			if err != nil {
				return nil, err
			}
			return func() { h.Success(rec) }, nil
		},
		serverError:      h.ServerError,
		transportFailure: h.TransportFailure,
	}
	d.mu.Lock()
	_, replaced := d.pending[key]
	d.pending[key] = e
	d.mu.Unlock()
	if replaced {
		d.logger.Debug("replaced pending registration", "key", key)
	}
	return nil
}

// Pending reports the number of registrations awaiting an outcome.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// OnSuccess decodes body and delivers it to the handler registered for key.
// A body that cannot be decoded is delivered as a transport failure.
func (d *Dispatcher) OnSuccess(key string, body []byte) {
	e := d.take(key, OutcomeSuccess)
	if e == nil {
		return
	}
	deliver, err := safeDecode(e, body)
	if err != nil {
		d.logger.Warn("response decode failed", "key", key, "expects", e.expects, "error", err)
		terr := &TransportError{Key: key, Cause: fmt.Errorf("decode response: %w", err)}
		d.deliver(key, e, OutcomeTransportFailure, func() { e.transportFailure(terr) })
		return
	}
	d.deliver(key, e, OutcomeSuccess, deliver)
}

// OnServerError delivers a server-reported error to the handler registered
// for key. It does not retry.
func (d *Dispatcher) OnServerError(key string, serr ServerError) {
	e := d.take(key, OutcomeServerError)
	if e == nil {
		return
	}
	serr.Key = key
	d.deliver(key, e, OutcomeServerError, func() { e.serverError(&serr) })
}

// OnTransportFailure delivers cause to the handler registered for key.
func (d *Dispatcher) OnTransportFailure(key string, cause error) {
	e := d.take(key, OutcomeTransportFailure)
	if e == nil {
		return
	}
	terr := &TransportError{Key: key, Cause: cause}
	d.deliver(key, e, OutcomeTransportFailure, func() { e.transportFailure(terr) })
}

// take removes and returns the registration for key.
func (d *Dispatcher) take(key, outcome string) *entry {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if !ok {
		d.logger.Debug("ignored outcome without registration", "key", key, "outcome", outcome)
		return nil
	}
	return e
}

func (d *Dispatcher) deliver(key string, e *entry, outcome string, fn func()) {
	ok := outcome == OutcomeSuccess
	defer func() {
		if r := recover(); r != nil {
			ok = false
			d.logger.Error("handler panicked", "key", key, "outcome", outcome, "panic", r)
		}
		d.recorder.Observe(context.Background(), "dispatch."+outcome, ok, time.Since(e.registered))
	}()
	fn()
}

func safeDecode(e *entry, body []byte) (deliver func(), err error) {
	defer func() {
		if r := recover(); r != nil {
			deliver = nil
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()
	return e.decode(body)
}

func isNilHandler(h any) bool {
	rv := reflect.ValueOf(h)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
