package rpc

import (
	"calendarcore/internal/dispatch"
	"calendarcore/internal/logging"
	"calendarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
)

// Sender delivers a request and returns the peer's response.
type Sender interface {
	Send(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return f(ctx, req)
}

// Loopback returns a Sender that serves requests in-process on behalf of
// session.
func Loopback(server *Server, session domain.Session) Sender {
	return SenderFunc(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
		return server.Serve(ctx, session, req), nil
	})
}

// Client issues requests asynchronously and routes each response through a
// dispatcher to the handler registered for the call.
type Client struct {
	sender     Sender
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger
	inflight   sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.logger = logging.OrNoop(l) }
}

// NewClient returns a Client sending through sender. A nil dispatcher gets a
// fresh one.
func NewClient(sender Sender, d *dispatch.Dispatcher, opts ...ClientOption) *Client {
	if d == nil {
		d = dispatch.New()
	}
	c := &Client{sender: sender, dispatcher: d, logger: logging.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatcher returns the dispatcher outcomes are routed through.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// Wait blocks until every request sent so far has been answered.
func (c *Client) Wait() { c.inflight.Wait() }

// Call registers handler under a fresh operation key and sends method with
// params in the background. The key is returned before the response arrives.
// A nil decode decodes the result as JSON.
func Call[T any](ctx context.Context, c *Client, method string, params any, decode dispatch.Decoder[T], handler dispatch.Handler[T]) (string, error) {
	if decode == nil {
		decode = dispatch.JSON[T]()
	}
	req, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return "", fmt.Errorf("rpc: build %s request: %w", method, err)
	}
	key := uuid.NewString()
	if err := dispatch.Register(c.dispatcher, key, decode, handler); err != nil {
		return "", err
	}
	c.send(ctx, key, req)
	return key, nil
}

// Go is Call returning a Future instead of taking a handler.
func Go[T any](ctx context.Context, c *Client, method string, params any, decode dispatch.Decoder[T]) (*dispatch.Future[T], error) {
	if decode == nil {
		decode = dispatch.JSON[T]()
	}
	req, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("rpc: build %s request: %w", method, err)
	}
	key := uuid.NewString()
	f, err := dispatch.Expect(c.dispatcher, key, decode)
	if err != nil {
		return nil, err
	}
	c.send(ctx, key, req)
	return f, nil
}

func (c *Client) send(ctx context.Context, key string, req *jsonrpc.Request) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		resp, err := c.sender.Send(ctx, req)
		switch {
		case err != nil:
			c.logger.Warn("rpc send failed", "key", key, "method", req.Method, "error", err)
			c.dispatcher.OnTransportFailure(key, err)
		case resp == nil:
			c.dispatcher.OnTransportFailure(key, errors.New("empty response"))
		case resp.Error != nil:
			c.dispatcher.OnServerError(key, dispatch.ServerError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
				Kind:    KindForCode(resp.Error.Code),
			})
		default:
			c.dispatcher.OnSuccess(key, resp.Result)
		}
	}()
}
