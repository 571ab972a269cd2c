package inventory

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Read-only queries. None of them takes the identity lock.

func (e *Engine) GetAsset(ctx context.Context, id uuid.UUID) (Asset, error) {
	return e.store.GetAsset(ctx, id)
}

func (e *Engine) FindAssetBySN(ctx context.Context, sn string) (Asset, error) {
	return e.store.AssetBySN(ctx, strings.TrimSpace(sn))
}

func (e *Engine) ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error) {
	return e.store.ListAssets(ctx, filter)
}

// GetPending returns the full staged entry for sn, report included.
func (e *Engine) GetPending(ctx context.Context, sn string) (PendingAsset, error) {
	return e.store.GetPending(ctx, strings.TrimSpace(sn))
}

// ListPending returns the approval queue, oldest first.
func (e *Engine) ListPending(ctx context.Context, filter PendingFilter) ([]PendingSummary, error) {
	pending, err := e.store.ListPending(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]PendingSummary, 0, len(pending))
	for _, p := range pending {
		out = append(out, p.Summary())
	}
	return out, nil
}

func (e *Engine) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	return e.store.ListEvents(ctx, filter)
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
