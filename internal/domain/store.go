package domain

import "context"

// OrderStore is the realtime document store collaborator. Write and Patch are
// atomic per document; Subscribe delivers snapshots in write order for a given
// code. A failed write leaves the caller's in-memory order untouched and is
// not retried here.
type OrderStore interface {
	Read(ctx context.Context, code string) (*Order, error)
	Write(ctx context.Context, o *Order) error
	Patch(ctx context.Context, code string, p Patch) error
	// Subscribe invokes fn with a fresh snapshot after each change to the
	// order. The returned func stops the subscription.
	Subscribe(ctx context.Context, code string, fn func(*Order)) (func(), error)
}

// OrderIndex lists order snapshots for the dashboard board. Kept separate from
// OrderStore: the engine itself never needs it.
type OrderIndex interface {
	List(ctx context.Context) ([]*Order, error)
}
