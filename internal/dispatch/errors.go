package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure marks outcomes where no usable response arrived.
	ErrTransportFailure = errors.New("transport failure")
	// ErrServer marks outcomes where the server reported an error.
	ErrServer = errors.New("server error")
)

// ServerError is delivered when the server answered with an error.
type ServerError struct {
	Key     string
	Code    int
	Message string
	Data    json.RawMessage
	// Kind optionally classifies the error with a domain sentinel.
	Kind error
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("operation %s: server error %d", e.Key, e.Code)
	}
	return fmt.Sprintf("operation %s: server error %d: %s", e.Key, e.Code, e.Message)
}

func (e *ServerError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrServer}
	}
	return []error{ErrServer, e.Kind}
}

// TransportError is delivered when the request could not complete or its
// response could not be decoded.
type TransportError struct {
	Key   string
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("operation %s: %v", e.Key, ErrTransportFailure)
	}
	return fmt.Sprintf("operation %s: %v: %v", e.Key, ErrTransportFailure, e.Cause)
}

func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransportFailure}
	}
	return []error{ErrTransportFailure, e.Cause}
}
