package inventory

import (
	"fmt"

	"github.com/google/uuid"
)

// Decision is the classifier's output for one report.
type Decision struct {
	Disposition Disposition
	// Refresh is set when the report overwrites an entry already staged for the sn.
	Refresh bool
	// AssetID is the canonical asset an UPDATE targets.
	AssetID *uuid.UUID
	// Changes holds old/new pairs against the canonical asset for an UPDATE.
	Changes map[string]map[string]any
}

// Staged reports whether the decision puts the report in the staging store.
func (d Decision) Staged() bool {
	return d.Disposition == DispositionNew || d.Disposition == DispositionUpdate
}

// Classify decides what to do with a normalized report given what the
// resolver found for its sn.
//
//	no match                         NEW, stage
//	staged entry                     refresh the staged entry in place
//	asset, report differs            UPDATE, stage
//	asset, report identical          NOOP
//	several assets                   AMBIGUOUS, ErrIdentityConflict
func Classify(res Resolution, report Report) (Decision, error) {
	if len(res.Assets) > 1 {
		return Decision{Disposition: DispositionAmbiguous},
			fmt.Errorf("%w: %d assets carry sn %q", ErrIdentityConflict, len(res.Assets), res.SN)
	}

	var current *Asset
	if len(res.Assets) == 1 {
		current = &res.Assets[0]
	}

	if res.Pending != nil {
		d := Decision{Disposition: DispositionNew, Refresh: true}
		if current != nil {
			id := current.ID
			d.Disposition = DispositionUpdate
			d.AssetID = &id
			d.Changes = computeDiff(assetSnapshot(*current), assetSnapshot(applyReport(current, report)))
		}
		return d, nil
	}

	if current == nil {
		return Decision{Disposition: DispositionNew}, nil
	}

	changes := computeDiff(assetSnapshot(*current), assetSnapshot(applyReport(current, report)))
	if len(changes) == 0 {
		return Decision{Disposition: DispositionNoop}, nil
	}
	id := current.ID
	return Decision{Disposition: DispositionUpdate, AssetID: &id, Changes: changes}, nil
}
