package dispatch

import (
	"context"
	"sync"
)

// Future is resolved with the single outcome of one operation.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// Expect registers a handler for key that resolves the returned Future. The
// error of a failed operation is a *ServerError or *TransportError.
func Expect[T any](d *Dispatcher, key string, decode Decoder[T]) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	err := Register(d, key, decode, HandlerFuncs[T]{
		OnSuccess:          func(rec T) { f.resolve(rec, nil) },
		OnServerError:      func(err *ServerError) { f.resolve(*new(T), err) },
		OnTransportFailure: func(err *TransportError) { f.resolve(*new(T), err) },
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the outcome is known.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the outcome is known or ctx ends. Cancelling ctx does
// not withdraw the registration.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
