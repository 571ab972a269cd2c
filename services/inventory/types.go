package inventory

import (
	"time"

	"github.com/google/uuid"
)

// AssetType tags which variant of the asset shape a record carries.
type AssetType string

const (
	AssetTypeServer         AssetType = "server"
	AssetTypeNetworkDevice  AssetType = "network_device"
	AssetTypeStorageDevice  AssetType = "storage_device"
	AssetTypeSecurityDevice AssetType = "security_device"
)

// AssetStatus is the operational state of a canonical asset.
type AssetStatus string

const (
	AssetStatusOnline  AssetStatus = "online"
	AssetStatusOffline AssetStatus = "offline"
	AssetStatusUnknown AssetStatus = "unknown"
	AssetStatusFaulty  AssetStatus = "faulty"
	AssetStatusStandby AssetStatus = "standby"
)

// EventType names a transition recorded in the event log.
type EventType string

const (
	EventSubmitted    EventType = "submitted"
	EventApproved     EventType = "approved"
	EventRejected     EventType = "rejected"
	EventMerged       EventType = "merged"
	EventFieldChanged EventType = "field_changed"
)

// Disposition is the classifier's verdict for an incoming report.
type Disposition string

const (
	DispositionNew       Disposition = "NEW"
	DispositionUpdate    Disposition = "UPDATE"
	DispositionNoop      Disposition = "NOOP"
	DispositionAmbiguous Disposition = "AMBIGUOUS"
)

// CPU is a processor package reported by an agent.
type CPU struct {
	Model     string `json:"model"`
	CoreCount int    `json:"core_count"`
}

// RAM is a memory module, keyed by slot.
type RAM struct {
	Slot         string `json:"slot"`
	Capacity     int    `json:"capacity"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SN           string `json:"sn,omitempty"`
}

// Disk is a physical disk, keyed by slot. Capacity is in GB.
type Disk struct {
	Slot         string `json:"slot"`
	SN           string `json:"sn,omitempty"`
	Model        string `json:"model,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Capacity     int    `json:"capacity"`
	IfaceType    string `json:"iface_type,omitempty"`
}

// NIC is a network interface, keyed by MAC address.
type NIC struct {
	MAC       string `json:"mac"`
	Name      string `json:"name,omitempty"`
	Model     string `json:"model,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	NetMask   string `json:"net_mask,omitempty"`
}

// Components groups the sub-records owned by an asset.
type Components struct {
	CPUs  []CPU  `json:"cpus"`
	RAM   []RAM  `json:"ram"`
	Disks []Disk `json:"disks"`
	NICs  []NIC  `json:"nics"`
}

// Report is a normalized hardware report. It has no identity of its own beyond SN.
type Report struct {
	AssetType    AssetType         `json:"asset_type"`
	SN           string            `json:"sn"`
	Name         string            `json:"name,omitempty"`
	Model        string            `json:"model,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Extension    map[string]string `json:"extension,omitempty"`
	Components
}

// Asset is a canonical inventory record together with its components.
type Asset struct {
	ID           uuid.UUID         `json:"id"`
	AssetType    AssetType         `json:"asset_type"`
	SN           string            `json:"sn"`
	Name         string            `json:"name"`
	Status       AssetStatus       `json:"status"`
	Manufacturer string            `json:"manufacturer"`
	Model        string            `json:"model"`
	Extension    map[string]string `json:"extension,omitempty"`
	ApprovedBy   string            `json:"approved_by"`
	CTime        time.Time         `json:"c_time"`
	MTime        time.Time         `json:"m_time"`
	Components
}

// PendingAsset is a staged report waiting for an approval decision.
type PendingAsset struct {
	SN           string     `json:"sn"`
	AssetType    AssetType  `json:"asset_type"`
	Name         string     `json:"name,omitempty"`
	Model        string     `json:"model"`
	Manufacturer string     `json:"manufacturer"`
	Report       Report     `json:"report"`
	SubmittedBy  string     `json:"submitted_by"`
	AssetID      *uuid.UUID `json:"asset_id,omitempty"`
	CTime        time.Time  `json:"c_time"`
	MTime        time.Time  `json:"m_time"`
}

// PendingSummary is the listing view of a PendingAsset.
type PendingSummary struct {
	SN           string      `json:"sn"`
	AssetType    AssetType   `json:"asset_type"`
	Model        string      `json:"model"`
	Manufacturer string      `json:"manufacturer"`
	Disposition  Disposition `json:"disposition"`
	SubmittedBy  string      `json:"submitted_by"`
	CTime        time.Time   `json:"c_time"`
	MTime        time.Time   `json:"m_time"`
}

// Summary returns the listing view. A pending entry that targets an existing
// asset is a staged UPDATE, otherwise it is NEW.
func (p PendingAsset) Summary() PendingSummary {
	disposition := DispositionNew
	if p.AssetID != nil {
		disposition = DispositionUpdate
	}
	return PendingSummary{
		SN:           p.SN,
		AssetType:    p.AssetType,
		Model:        p.Model,
		Manufacturer: p.Manufacturer,
		Disposition:  disposition,
		SubmittedBy:  p.SubmittedBy,
		CTime:        p.CTime,
		MTime:        p.MTime,
	}
}

// Event is one immutable audit record.
type Event struct {
	ID      int64          `json:"id"`
	AssetID *uuid.UUID     `json:"asset_id,omitempty"`
	SN      string         `json:"sn"`
	Type    EventType      `json:"event_type"`
	Actor   string         `json:"actor"`
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}

// AssetFilter narrows ListAssets. Zero values match everything.
type AssetFilter struct {
	AssetType    AssetType
	Manufacturer string
	// TimeField selects the column Since/Until apply to: "c_time" or "m_time" (default).
	TimeField string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// PendingFilter narrows ListPending.
type PendingFilter struct {
	AssetType    AssetType
	Manufacturer string
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	SN      string
	AssetID *uuid.UUID
	Type    EventType
	Limit   int
}
