package calendar

import (
	"calendarcore/internal/dispatch"
	"calendarcore/internal/entity"
	"calendarcore/internal/logging"
	"calendarcore/internal/transport/rpc"
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
)

// Callbacks receive controller outcomes. Every field is optional.
type Callbacks[T domain.Record] struct {
	OnAdded     func(T)
	OnRemoved   func(id int)
	OnRefreshed func(n int)
	// OnFailed receives the verb and a *dispatch.ServerError,
	// *dispatch.TransportError or list model error.
	OnFailed func(verb string, err error)
}

// Controller keeps a ListModel in step with the server for one record kind.
// Each call returns once the request is sent; the model changes when the
// response is dispatched.
type Controller[T domain.Record] struct {
	client    *rpc.Client
	kind      string
	codec     domain.Codec[T]
	model     *ListModel[T]
	callbacks Callbacks[T]
	logger    logging.Logger
}

// NewController returns a controller for records of kind.
func NewController[T domain.Record](client *rpc.Client, kind string, codec domain.Codec[T], model *ListModel[T], cb Callbacks[T], logger logging.Logger) *Controller[T] {
	if model == nil {
		model = NewListModel[T]()
	}
	return &Controller[T]{
		client:    client,
		kind:      kind,
		codec:     codec,
		model:     model,
		callbacks: cb,
		logger:    logging.With(logging.OrNoop(logger), "kind", kind),
	}
}

// Model returns the controlled list model.
func (c *Controller[T]) Model() *ListModel[T] { return c.model }

// Add asks the server to create rec and lists the stored record on success.
func (c *Controller[T]) Add(ctx context.Context, rec T) (string, error) {
	body, err := c.codec.Encode(rec)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", c.kind, err)
	}
	return rpc.Call[T](ctx, c.client, rpc.Method(c.kind, entity.VerbCreate), json.RawMessage(body), c.codec.Decode,
		dispatch.HandlerFuncs[T]{
			OnSuccess: func(stored T) {
				if err := c.model.Add(stored); err != nil {
					c.failed(entity.VerbCreate, err)
					return
				}
				c.logger.Debug("record added", "id", stored.RecordID())
				if c.callbacks.OnAdded != nil {
					c.callbacks.OnAdded(stored)
				}
			},
			OnServerError:      func(err *dispatch.ServerError) { c.failed(entity.VerbCreate, err) },
			OnTransportFailure: func(err *dispatch.TransportError) { c.failed(entity.VerbCreate, err) },
		})
}

// Refresh replaces the model contents with every record the server returns.
func (c *Controller[T]) Refresh(ctx context.Context) (string, error) {
	return rpc.Call[[]T](ctx, c.client, rpc.Method(c.kind, entity.VerbGetAll), nil, c.decodeList,
		dispatch.HandlerFuncs[[]T]{
			OnSuccess: func(recs []T) {
				c.model.Replace(recs)
				if c.callbacks.OnRefreshed != nil {
					c.callbacks.OnRefreshed(len(recs))
				}
			},
			OnServerError:      func(err *dispatch.ServerError) { c.failed(entity.VerbGetAll, err) },
			OnTransportFailure: func(err *dispatch.TransportError) { c.failed(entity.VerbGetAll, err) },
		})
}

// Remove asks the server to delete id and drops it from the model on success.
func (c *Controller[T]) Remove(ctx context.Context, id int) (string, error) {
	return rpc.Call[entity.DeleteResult](ctx, c.client, rpc.Method(c.kind, entity.VerbDelete), map[string]int{"id": id}, dispatch.JSON[entity.DeleteResult](),
		dispatch.HandlerFuncs[entity.DeleteResult]{
			OnSuccess: func(res entity.DeleteResult) {
				if !res.Deleted {
					c.failed(entity.VerbDelete, &domain.Error{Kind: domain.ErrInternal, Op: entity.VerbDelete, Entity: c.kind, ID: fmt.Sprint(id), Err: fmt.Errorf("server did not delete")})
					return
				}
				c.model.Remove(id)
				if c.callbacks.OnRemoved != nil {
					c.callbacks.OnRemoved(id)
				}
			},
			OnServerError:      func(err *dispatch.ServerError) { c.failed(entity.VerbDelete, err) },
			OnTransportFailure: func(err *dispatch.TransportError) { c.failed(entity.VerbDelete, err) },
		})
}

func (c *Controller[T]) decodeList(body []byte) ([]T, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		rec, err := c.codec.Decode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Controller[T]) failed(verb string, err error) {
	c.logger.Warn("calendar request failed", "verb", verb, "error", err)
	if c.callbacks.OnFailed != nil {
		c.callbacks.OnFailed(verb, err)
	}
}
