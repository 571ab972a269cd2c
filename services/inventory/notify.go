package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects published after a transition commits.
const (
	SubjectReportStaged    = "cmdb.reports.staged"
	SubjectAssetMerged     = "cmdb.assets.merged"
	SubjectPendingRejected = "cmdb.pending.rejected"
)

// Publisher is satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// StagedNotice is published when a report lands in the staging store.
type StagedNotice struct {
	SN          string      `json:"sn"`
	AssetType   AssetType   `json:"asset_type"`
	Disposition Disposition `json:"disposition"`
	Refresh     bool        `json:"refresh"`
	Agent       string      `json:"agent"`
	AssetID     *uuid.UUID  `json:"asset_id,omitempty"`
	At          time.Time   `json:"at"`
}

// DecisionNotice is published when a staged report is approved or rejected.
type DecisionNotice struct {
	SN        string     `json:"sn"`
	AssetID   *uuid.UUID `json:"asset_id,omitempty"`
	Principal string     `json:"principal"`
	Created   bool       `json:"created,omitempty"`
	Changed   []string   `json:"changed,omitempty"`
	At        time.Time  `json:"at"`
}

// notify publishes best effort. The transition already committed, so a bus
// outage is logged rather than reported to the caller.
func (e *Engine) notify(ctx context.Context, subj string, v any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), subj, v); err != nil {
		e.log.Warn().Err(err).Str("subject", subj).Msg("publish notification")
	}
}
