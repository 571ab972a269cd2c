package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MatchKind is the identity resolver's verdict.
type MatchKind int

const (
	NoMatch MatchKind = iota
	ExistingAsset
	ExistingPending
)

func (k MatchKind) String() string {
	switch k {
	case ExistingAsset:
		return "existing_asset"
	case ExistingPending:
		return "existing_pending"
	default:
		return "no_match"
	}
}

// Resolution is what the store knows about one sn, read in one transaction.
type Resolution struct {
	SN      string
	Assets  []Asset
	Pending *PendingAsset
}

// Kind reports the match. A staged report takes precedence over the canonical
// asset it may target.
func (r Resolution) Kind() MatchKind {
	switch {
	case r.Pending != nil:
		return ExistingPending
	case len(r.Assets) > 0:
		return ExistingAsset
	default:
		return NoMatch
	}
}

// AssetID returns the id of the canonical asset, if exactly one exists.
func (r Resolution) AssetID() (uuid.UUID, bool) {
	if len(r.Assets) != 1 {
		return uuid.Nil, false
	}
	return r.Assets[0].ID, true
}

// Resolve looks sn up in the canonical and staging stores. The caller must
// hold the identity lock for sn.
func Resolve(ctx context.Context, tx Tx, sn string) (Resolution, error) {
	assets, err := tx.AssetsBySN(ctx, sn)
	if err != nil {
		return Resolution{}, err
	}
	pending, err := tx.PendingBySN(ctx, sn)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{SN: sn, Assets: assets, Pending: pending}
	if len(assets) > 1 {
		return res, fmt.Errorf("%w: %d assets carry sn %q", ErrIdentityConflict, len(assets), sn)
	}
	return res, nil
}
