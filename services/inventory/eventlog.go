package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKey identifies what an event is about. AssetID is nil for events that
// precede the first approval.
type EventKey struct {
	SN      string
	AssetID *uuid.UUID
}

// Recorder appends audit events. There is no way to change or remove one.
type Recorder struct {
	now func() time.Time
}

// Record appends an event inside tx. The error must abort the transaction.
func (r Recorder) Record(ctx context.Context, tx Tx, typ EventType, key EventKey, actor string, detail map[string]any) (Event, error) {
	evt := Event{
		AssetID: key.AssetID,
		SN:      key.SN,
		Type:    typ,
		Actor:   actor,
		Detail:  detail,
		At:      r.now(),
	}
	if err := tx.AppendEvent(ctx, &evt); err != nil {
		return Event{}, fmt.Errorf("record %s event for %s: %w", typ, key.SN, err)
	}
	return evt, nil
}
