package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Staging holds at most one pending report per sn. Writes go through the
// caller's transaction so they serialize with the identity lock.
type Staging struct {
	now func() time.Time
}

// Stage upserts the pending entry for the report's sn. existing is the entry
// already staged, if any; its creation time survives the overwrite.
func (s Staging) Stage(ctx context.Context, tx Tx, existing *PendingAsset, r Report, agent string, assetID *uuid.UUID) (PendingAsset, error) {
	now := s.now()
	p := PendingAsset{
		SN:           r.SN,
		AssetType:    r.AssetType,
		Name:         r.Name,
		Model:        r.Model,
		Manufacturer: r.Manufacturer,
		Report:       r,
		SubmittedBy:  agent,
		AssetID:      assetID,
		CTime:        now,
		MTime:        now,
	}
	if existing != nil {
		p.CTime = existing.CTime
	}
	if err := tx.PutPending(ctx, p); err != nil {
		return PendingAsset{}, fmt.Errorf("stage %s: %w", r.SN, err)
	}
	return p, nil
}

// Get returns the staged entry for sn or ErrNoPendingAsset.
func (s Staging) Get(ctx context.Context, tx Tx, sn string) (PendingAsset, error) {
	p, err := tx.PendingBySN(ctx, sn)
	if err != nil {
		return PendingAsset{}, err
	}
	if p == nil {
		return PendingAsset{}, fmt.Errorf("%w: %s", ErrNoPendingAsset, sn)
	}
	return *p, nil
}

// Remove consumes the staged entry for sn.
func (s Staging) Remove(ctx context.Context, tx Tx, sn string) error {
	removed, err := tx.DeletePending(ctx, sn)
	if err != nil {
		return fmt.Errorf("remove pending %s: %w", sn, err)
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNoPendingAsset, sn)
	}
	return nil
}
