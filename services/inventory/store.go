package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Store is the relational store the engine runs against.
type Store interface {
	Reader
	// Tx runs fn in a single transaction. A non-nil return from fn rolls
	// everything back.
	Tx(ctx context.Context, fn func(Tx) error) error
}

// Reader is the read-only query side.
type Reader interface {
	GetAsset(ctx context.Context, id uuid.UUID) (Asset, error)
	AssetBySN(ctx context.Context, sn string) (Asset, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error)
	GetPending(ctx context.Context, sn string) (PendingAsset, error)
	ListPending(ctx context.Context, filter PendingFilter) ([]PendingAsset, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	Ping(ctx context.Context) error
}

// Tx is the write side, valid only inside Store.Tx.
type Tx interface {
	// LockIdentity takes a lock on sn held until the transaction ends.
	LockIdentity(ctx context.Context, sn string) error
	// AssetsBySN returns every canonical asset carrying sn, components
	// included, locked for update.
	AssetsBySN(ctx context.Context, sn string) ([]Asset, error)
	// PendingBySN returns nil when nothing is staged for sn.
	PendingBySN(ctx context.Context, sn string) (*PendingAsset, error)
	PutPending(ctx context.Context, p PendingAsset) error
	// DeletePending reports whether a row was removed.
	DeletePending(ctx context.Context, sn string) (bool, error)
	CreateAsset(ctx context.Context, a *Asset) error
	UpdateAsset(ctx context.Context, a *Asset) error
	ReplaceComponents(ctx context.Context, assetID uuid.UUID, c Components) error
	AppendEvent(ctx context.Context, e *Event) error
}
