// Package rpc carries calendar operations over JSON-RPC 2.0 envelopes. Method
// names have the form "<kind>.<verb>", e.g. "event.create".
package rpc

import (
	"calendarcore/internal/logging"
	"calendarcore/pkg/domain"
	"context"
	"fmt"
	"strings"

	"github.com/viant/jsonrpc"
)

// Invoker runs a verb against a record kind. core.Service implements it.
type Invoker interface {
	Invoke(ctx context.Context, session domain.Session, kind, verb string, body []byte) ([]byte, error)
}

// Method joins kind and verb into a JSON-RPC method name.
func Method(kind, verb string) string { return kind + "." + verb }

// SplitMethod splits a method name at its last dot.
func SplitMethod(method string) (kind, verb string, ok bool) {
	i := strings.LastIndex(method, ".")
	if i <= 0 || i == len(method)-1 {
		return "", "", false
	}
	return method[:i], method[i+1:], true
}

// Server answers JSON-RPC requests by invoking a calendar service.
type Server struct {
	invoker Invoker
	logger  logging.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l logging.Logger) ServerOption {
	return func(s *Server) { s.logger = logging.OrNoop(l) }
}

// NewServer returns a Server over invoker.
func NewServer(invoker Invoker, opts ...ServerOption) *Server {
	s := &Server{invoker: invoker, logger: logging.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve handles req on behalf of session. It always returns a response;
// failures are reported in its Error field.
func (s *Server) Serve(ctx context.Context, session domain.Session, req *jsonrpc.Request) *jsonrpc.Response {
	resp := &jsonrpc.Response{Jsonrpc: jsonrpc.Version}
	if req == nil {
		resp.Error = &jsonrpc.Error{Code: CodeInvalidRequest, Message: "empty request"}
		return resp
	}
	resp.Id = req.Id
	kind, verb, ok := SplitMethod(req.Method)
	if !ok {
		resp.Error = &jsonrpc.Error{Code: CodeNotImplemented, Message: fmt.Sprintf("unknown method %q", req.Method)}
		return resp
	}
	out, err := s.invoker.Invoke(ctx, session, kind, verb, req.Params)
	if err != nil {
		resp.Error = toError(err)
		s.logger.Debug("rpc call failed", "method", req.Method, "code", resp.Error.Code, "error", err)
		return resp
	}
	resp.Result = out
	return resp
}
