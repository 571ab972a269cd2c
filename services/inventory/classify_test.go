package inventory

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canonicalFrom(t *testing.T, r Report) Asset {
	t.Helper()
	a := applyReport(nil, r)
	a.ID = uuid.New()
	a.ApprovedBy = "alice"
	a.CTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.MTime = a.CTime
	return a
}

func normalized(t *testing.T, raw map[string]any) Report {
	t.Helper()
	r, err := Normalize(raw)
	require.NoError(t, err)
	return r
}

func TestClassifyDecisionTable(t *testing.T) {
	base := normalized(t, serverReport("SN-1"))
	canonical := canonicalFrom(t, base)

	changedRAM := serverReport("SN-1")
	changedRAM["ram"] = []any{map[string]any{"slot": "DIMM_A1", "capacity": 64.0}}

	renamed := serverReport("SN-1")
	renamed["name"] = "db-01"

	reordered := serverReport("SN-1")
	nics := []any{
		map[string]any{"mac": "aa-bb-cc-dd-ee-02"},
		map[string]any{"mac": "AA:BB:CC:DD:EE:01", "name": "eno1", "ip_address": "10.0.0.5", "net_mask": "255.255.255.0"},
	}
	reordered["nics"] = nics
	withExtraNIC := canonicalFrom(t, normalized(t, reordered))
	slices.Reverse(withExtraNIC.NICs)

	tests := []struct {
		name        string
		res         Resolution
		report      Report
		want        Disposition
		wantRefresh bool
		wantAsset   bool
		wantChanges []string
	}{
		{
			name:   "unseen sn",
			res:    Resolution{SN: "SN-1"},
			report: base,
			want:   DispositionNew,
		},
		{
			name:        "staged sn",
			res:         Resolution{SN: "SN-1", Pending: &PendingAsset{SN: "SN-1"}},
			report:      base,
			want:        DispositionNew,
			wantRefresh: true,
		},
		{
			name:        "staged update for a known asset",
			res:         Resolution{SN: "SN-1", Assets: []Asset{canonical}, Pending: &PendingAsset{SN: "SN-1"}},
			report:      normalized(t, changedRAM),
			want:        DispositionUpdate,
			wantRefresh: true,
			wantAsset:   true,
			wantChanges: []string{"ram"},
		},
		{
			name:   "identical to canonical",
			res:    Resolution{SN: "SN-1", Assets: []Asset{canonical}},
			report: base,
			want:   DispositionNoop,
		},
		{
			name:        "ram slot list changed",
			res:         Resolution{SN: "SN-1", Assets: []Asset{canonical}},
			report:      normalized(t, changedRAM),
			want:        DispositionUpdate,
			wantAsset:   true,
			wantChanges: []string{"ram"},
		},
		{
			name:        "top-level field changed",
			res:         Resolution{SN: "SN-1", Assets: []Asset{canonical}},
			report:      normalized(t, renamed),
			want:        DispositionUpdate,
			wantAsset:   true,
			wantChanges: []string{"name"},
		},
		{
			name:   "component order is irrelevant",
			res:    Resolution{SN: "SN-1", Assets: []Asset{withExtraNIC}},
			report: normalized(t, reordered),
			want:   DispositionNoop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.res, tt.report)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Disposition)
			assert.Equal(t, tt.wantRefresh, got.Refresh)
			assert.Equal(t, tt.wantAsset, got.AssetID != nil)
			if tt.wantChanges != nil {
				assert.Equal(t, tt.wantChanges, changedFields(got.Changes))
			}
		})
	}
}

func TestClassifyAmbiguous(t *testing.T) {
	r := normalized(t, serverReport("SN-2"))
	res := Resolution{SN: "SN-2", Assets: []Asset{canonicalFrom(t, r), canonicalFrom(t, r)}}

	got, err := Classify(res, r)
	require.ErrorIs(t, err, ErrIdentityConflict)
	assert.Equal(t, DispositionAmbiguous, got.Disposition)
	assert.False(t, got.Staged())
}

func TestResolutionKind(t *testing.T) {
	asset := Asset{ID: uuid.New(), SN: "SN-3"}
	assert.Equal(t, NoMatch, Resolution{}.Kind())
	assert.Equal(t, ExistingAsset, Resolution{Assets: []Asset{asset}}.Kind())
	assert.Equal(t, ExistingPending, Resolution{Assets: []Asset{asset}, Pending: &PendingAsset{}}.Kind())

	id, ok := Resolution{Assets: []Asset{asset}}.AssetID()
	assert.True(t, ok)
	assert.Equal(t, asset.ID, id)
}

func TestExtensionMergeByVariant(t *testing.T) {
	current := map[string]string{"os_type": "Linux", "os_release": "8"}
	assert.Equal(t,
		map[string]string{"os_type": "Linux"},
		mergeExtension(AssetTypeServer, current, map[string]string{"os_type": "Linux"}),
	)

	device := map[string]string{"firmware": "1.0", "port_num": "24"}
	assert.Equal(t,
		map[string]string{"firmware": "2.0", "port_num": "24"},
		mergeExtension(AssetTypeNetworkDevice, device, map[string]string{"firmware": "2.0", "port_num": ""}),
	)
	assert.Equal(t, "1.0", device["firmware"])
}

func TestApplyReportKeepsIdentityFields(t *testing.T) {
	r := normalized(t, serverReport("SN-4"))
	current := canonicalFrom(t, r)
	current.Name = "web-01"
	current.Status = AssetStatusStandby

	next := r
	next.Model = "R750"
	got := applyReport(&current, next)

	assert.Equal(t, current.ID, got.ID)
	assert.Equal(t, current.CTime, got.CTime)
	assert.Equal(t, "web-01", got.Name)
	assert.Equal(t, AssetStatusStandby, got.Status)
	assert.Equal(t, "R750", got.Model)
	assert.Equal(t, "PowerEdge R740", current.Model)
}
