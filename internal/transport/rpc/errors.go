package rpc

import (
	"calendarcore/pkg/domain"

	"github.com/viant/jsonrpc"
)

// Error codes carried in JSON-RPC error objects. NotFound and Conflict use
// the implementation-defined server error range.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeNotImplemented   = -32601
	CodeMalformedRequest = -32602
	CodeInternal         = -32603
	CodeNotFound         = -32004
	CodeConflict         = -32009
)

// Code maps a domain error onto its JSON-RPC error code.
func Code(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrMalformedRequest:
		return CodeMalformedRequest
	case domain.ErrNotFound:
		return CodeNotFound
	case domain.ErrConflict:
		return CodeConflict
	case domain.ErrNotImplemented:
		return CodeNotImplemented
	default:
		return CodeInternal
	}
}

// KindForCode is the inverse of Code. Unknown codes map to domain.ErrInternal.
func KindForCode(code int) error {
	switch code {
	case CodeMalformedRequest, CodeInvalidRequest, CodeParseError:
		return domain.ErrMalformedRequest
	case CodeNotFound:
		return domain.ErrNotFound
	case CodeConflict:
		return domain.ErrConflict
	case CodeNotImplemented:
		return domain.ErrNotImplemented
	default:
		return domain.ErrInternal
	}
}

func toError(err error) *jsonrpc.Error {
	return &jsonrpc.Error{Code: Code(err), Message: err.Error()}
}
