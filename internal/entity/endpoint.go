package entity

import (
	"bytes"
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Verbs accepted by Endpoint.Invoke.
const (
	VerbCreate    = "create"
	VerbGet       = "get"
	VerbGetAll    = "getAll"
	VerbUpdate    = "update"
	VerbDelete    = "delete"
	VerbDeleteAll = "deleteAll"
	VerbCount     = "count"
)

// Verbs lists every verb an Endpoint serves.
func Verbs() []string {
	return []string{VerbCreate, VerbGet, VerbGetAll, VerbUpdate, VerbDelete, VerbDeleteAll, VerbCount}
}

// Endpoint is the byte-level face of a Manager used by transports that do
// not know the concrete record type.
type Endpoint interface {
	Kind() string
	Invoke(ctx context.Context, s domain.Session, verb string, body []byte) ([]byte, error)
}

// IDRequest is the body of get and delete calls. The identifier may be sent
// as a JSON string or number.
type IDRequest struct {
	ID json.RawMessage `json:"id"`
}

// DeleteResult is the body returned by delete.
type DeleteResult struct {
	Deleted bool `json:"deleted"`
}

// CountResult is the body returned by count.
type CountResult struct {
	Count int `json:"count"`
}

type endpoint[T domain.Record] struct {
	m *Manager[T]
}

// Endpoint adapts the manager to the byte-level Endpoint interface.
func (m *Manager[T]) Endpoint() Endpoint { return endpoint[T]{m: m} }

func (e endpoint[T]) Kind() string { return e.m.Kind() }

func (e endpoint[T]) Invoke(ctx context.Context, s domain.Session, verb string, body []byte) ([]byte, error) {
	switch verb {
	case VerbCreate:
		rec, err := e.m.Create(ctx, s, body)
		if err != nil {
			return nil, err
		}
		return e.encode(verb, rec)
	case VerbUpdate:
		rec, err := e.m.Update(ctx, s, body)
		if err != nil {
			return nil, err
		}
		return e.encode(verb, rec)
	case VerbGet:
		id, err := e.id(verb, body)
		if err != nil {
			return nil, err
		}
		recs, err := e.m.Get(ctx, s, id)
		if err != nil {
			return nil, err
		}
		return e.encodeList(verb, recs)
	case VerbGetAll:
		recs, err := e.m.GetAll(ctx, s)
		if err != nil {
			return nil, err
		}
		return e.encodeList(verb, recs)
	case VerbDelete:
		id, err := e.id(verb, body)
		if err != nil {
			return nil, err
		}
		ok, err := e.m.Delete(ctx, s, id)
		if err != nil {
			return nil, err
		}
		return e.marshal(verb, DeleteResult{Deleted: ok})
	case VerbDeleteAll:
		if err := e.m.DeleteAll(ctx, s); err != nil {
			return nil, err
		}
		return e.marshal(verb, DeleteResult{Deleted: true})
	case VerbCount:
		n, err := e.m.Count(ctx, s)
		if err != nil {
			return nil, err
		}
		return e.marshal(verb, CountResult{Count: n})
	default:
		return nil, e.m.fail(verb, "", domain.ErrNotImplemented, fmt.Errorf("unknown verb %q", verb))
	}
}

func (e endpoint[T]) id(verb string, body []byte) (string, error) {
	var req IDRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", e.m.fail(verb, "", domain.ErrMalformedRequest, err)
	}
	raw := string(bytes.TrimSpace(req.ID))
	if raw == "" || raw == "null" {
		return "", e.m.fail(verb, "", domain.ErrMalformedRequest, fmt.Errorf("missing id"))
	}
	return strings.Trim(raw, `"`), nil
}

func (e endpoint[T]) encode(verb string, rec T) ([]byte, error) {
	data, err := e.m.codec.Encode(rec)
	if err != nil {
		return nil, e.m.fail(verb, "", domain.ErrInternal, err)
	}
	return data, nil
}

func (e endpoint[T]) encodeList(verb string, recs []T) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		data, err := e.encode(verb, rec)
		if err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return e.marshal(verb, items)
}

func (e endpoint[T]) marshal(verb string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, e.m.fail(verb, "", domain.ErrInternal, err)
	}
	return data, nil
}
