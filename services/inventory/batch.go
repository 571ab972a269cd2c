package inventory

import (
	"context"

	"github.com/google/uuid"
)

// BatchItem is the outcome for one sn of a batch decision.
type BatchItem struct {
	SN      string
	AssetID *uuid.UUID
	Err     error
}

// BatchResult aggregates a batch decision. Each item succeeds or fails on its own.
type BatchResult struct {
	Succeeded int
	Failed    int
	Items     []BatchItem
}

func (r *BatchResult) add(item BatchItem) {
	if item.Err != nil {
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}

// ApproveMany approves every sn in its own transaction. A failure is
// recorded against its item and never stops the rest of the batch.
func (e *Engine) ApproveMany(ctx context.Context, sns []string, principal string) BatchResult {
	result := BatchResult{Items: make([]BatchItem, 0, len(sns))}
	for _, sn := range sns {
		id, err := e.Approve(ctx, sn, principal)
		item := BatchItem{SN: sn, Err: err}
		if err == nil {
			item.AssetID = &id
		}
		result.add(item)
	}
	e.log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Str("principal", principal).
		Msg("batch approve")
	return result
}

// RejectMany is the batch form of Reject.
func (e *Engine) RejectMany(ctx context.Context, sns []string, principal string) BatchResult {
	result := BatchResult{Items: make([]BatchItem, 0, len(sns))}
	for _, sn := range sns {
		result.add(BatchItem{SN: sn, Err: e.Reject(ctx, sn, principal)})
	}
	e.log.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Str("principal", principal).
		Msg("batch reject")
	return result
}
