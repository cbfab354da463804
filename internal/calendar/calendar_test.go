package calendar

import (
	"calendarcore/internal/core"
	"calendarcore/internal/dispatch"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/internal/transport/rpc"
	"calendarcore/pkg/domain"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/viant/jsonrpc"
)

var alice = domain.Session{User: "alice", Project: "apollo"}

func commitment(id int, name string) *domain.Commitment {
	return &domain.Commitment{Base: domain.Base{ID: id}, Name: name, Status: domain.CommitmentNew}
}

func TestListModelOrdersAndRejectsDuplicates(t *testing.T) {
	m := NewListModel[*domain.Commitment]()
	var changes []ChangeKind
	m.Subscribe(func(c Change[*domain.Commitment]) { changes = append(changes, c.Kind) })

	if err := m.Add(commitment(3, "review")); err != nil {
		t.Fatalf("add 3: %v", err)
	}
	if err := m.Add(commitment(1, "draft")); err != nil {
		t.Fatalf("add 1: %v", err)
	}
	if err := m.Add(commitment(3, "again")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate id, got %v", err)
	}

	all := m.All()
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 3 {
		t.Fatalf("expected ids [1 3], got %+v", all)
	}
	if got, ok := m.Get(3); !ok || got.Name != "review" {
		t.Fatalf("get 3: %+v %v", got, ok)
	}

	if !m.Remove(1) {
		t.Fatalf("expected remove of listed id")
	}
	if m.Remove(1) {
		t.Fatalf("second remove must report absence")
	}
	m.Replace([]*domain.Commitment{commitment(7, "ship"), commitment(8, "celebrate")})
	if m.Len() != 2 {
		t.Fatalf("len after replace %d", m.Len())
	}
	if _, ok := m.Get(3); ok {
		t.Fatalf("replace must drop previous records")
	}

	want := []ChangeKind{ChangeAdded, ChangeAdded, ChangeRemoved, ChangeReplaced}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes %v, want %v", changes, want)
	}
}

type harness struct {
	client *rpc.Client
	ctrl   *Controller[*domain.Commitment]
	mu     sync.Mutex
	added  []*domain.Commitment
	failed []error
}

func newHarness(t *testing.T, sender rpc.Sender) *harness {
	t.Helper()
	if sender == nil {
		cal, err := core.NewCalendarService(memory.NewStore(), nil)
		if err != nil {
			t.Fatalf("calendar service: %v", err)
		}
		sender = rpc.Loopback(rpc.NewServer(cal), alice)
	}
	h := &harness{client: rpc.NewClient(sender, dispatch.New())}
	h.ctrl = NewController(h.client, domain.KindCommitment, domain.NewJSONCodec(domain.NewCommitment), nil,
		Callbacks[*domain.Commitment]{
			OnAdded: func(c *domain.Commitment) {
				h.mu.Lock()
				h.added = append(h.added, c)
				h.mu.Unlock()
			},
			OnFailed: func(_ string, err error) {
				h.mu.Lock()
				h.failed = append(h.failed, err)
				h.mu.Unlock()
			},
		}, nil)
	return h
}

func sent(t *testing.T, key string, err error) {
	t.Helper()
	if err != nil || key == "" {
		t.Fatalf("send: key %q err %v", key, err)
	}
}

func TestControllerAddRefreshRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	key, err := h.ctrl.Add(ctx, commitment(0, "write report"))
	sent(t, key, err)
	h.client.Wait()
	key, err = h.ctrl.Add(ctx, commitment(0, "file taxes"))
	sent(t, key, err)
	h.client.Wait()

	if len(h.added) != 2 || h.added[0].ID != 1 || h.added[1].ID != 2 {
		t.Fatalf("unexpected added records %+v", h.added)
	}
	if h.ctrl.Model().Len() != 2 {
		t.Fatalf("model len %d", h.ctrl.Model().Len())
	}

	h.ctrl.Model().Replace(nil)
	key, err = h.ctrl.Refresh(ctx)
	sent(t, key, err)
	h.client.Wait()
	all := h.ctrl.Model().All()
	if len(all) != 2 || all[0].Name != "write report" {
		t.Fatalf("refresh: %+v", all)
	}

	key, err = h.ctrl.Remove(ctx, 1)
	sent(t, key, err)
	h.client.Wait()
	if h.ctrl.Model().Len() != 1 || len(h.failed) != 0 {
		t.Fatalf("remove: len %d failures %v", h.ctrl.Model().Len(), h.failed)
	}

	key, err = h.ctrl.Remove(ctx, 1)
	sent(t, key, err)
	h.client.Wait()
	if len(h.failed) != 1 || !errors.Is(h.failed[0], domain.ErrNotFound) {
		t.Fatalf("expected one not found failure, got %v", h.failed)
	}
	if h.client.Dispatcher().Pending() != 0 {
		t.Fatalf("expected no pending operations")
	}
}

func TestControllerReportsTransportFailure(t *testing.T) {
	ctx := context.Background()
	down := errors.New("network unreachable")
	h := newHarness(t, rpc.SenderFunc(func(context.Context, *jsonrpc.Request) (*jsonrpc.Response, error) {
		return nil, down
	}))

	key, err := h.ctrl.Add(ctx, commitment(0, "call plumber"))
	sent(t, key, err)
	h.client.Wait()

	if len(h.failed) != 1 {
		t.Fatalf("expected one failure, got %v", h.failed)
	}
	if !errors.Is(h.failed[0], dispatch.ErrTransportFailure) || !errors.Is(h.failed[0], down) {
		t.Fatalf("unexpected failure %v", h.failed[0])
	}
	if h.ctrl.Model().Len() != 0 || len(h.added) != 0 {
		t.Fatalf("failed add must not list anything")
	}
}

func TestControllerIgnoresNullResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, rpc.SenderFunc(func(context.Context, *jsonrpc.Request) (*jsonrpc.Response, error) {
		return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Result: []byte("null")}, nil
	}))

	key, err := h.ctrl.Add(ctx, commitment(0, "phantom"))
	sent(t, key, err)
	h.client.Wait()

	if len(h.added) != 0 || h.ctrl.Model().Len() != 0 {
		t.Fatalf("null result must not be listed, added %+v", h.added)
	}
	if len(h.failed) != 1 || !errors.Is(h.failed[0], dispatch.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", h.failed)
	}
}
