package domain

import "context"

// AnyScope matches records of every scope in Retrieve and Update.
const AnyScope = "*"

// Store is the persistence backend consumed by the entity managers. It is
// shared by managers of every record kind and must be safe for concurrent
// use. It offers no cross-call transaction isolation.
type Store interface {
	Save(ctx context.Context, rec Record, scope string) (bool, error)
	Retrieve(ctx context.Context, kind, scope, field string, value any) ([]Record, error)
	RetrieveAll(ctx context.Context, sample Record, scope string) ([]Record, error)
	RetrieveEvery(ctx context.Context, sample Record) ([]Record, error)
	// Update assigns targetField on every record matching keyField == keyValue
	// and reports how many records changed.
	Update(ctx context.Context, kind, scope, keyField string, keyValue any, targetField string, newValue any) (int, error)
	// Delete removes rec and returns the removed record, or nil when absent.
	Delete(ctx context.Context, rec Record) (Record, error)
	DeleteAll(ctx context.Context, sample Record) error
}

// IDAllocator is implemented by stores able to hand out identifiers
// atomically. Allocation is monotonic per kind and scope; identifiers of
// deleted records are never handed out again.
type IDAllocator interface {
	AllocateID(ctx context.Context, kind, scope string) (int, error)
}
