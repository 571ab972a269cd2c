package inventory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type assetModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	AssetType    string            `gorm:"type:text;not null;index"`
	SN           string            `gorm:"column:sn;type:text;not null;uniqueIndex"`
	Name         string            `gorm:"type:text;not null;default:''"`
	Status       string            `gorm:"type:text;not null;default:'online'"`
	Manufacturer string            `gorm:"type:text;not null;default:'';index"`
	Model        string            `gorm:"type:text;not null;default:''"`
	Extension    datatypes.JSONMap `gorm:"type:jsonb"`
	ApprovedBy   string            `gorm:"type:text;not null;default:''"`
	CTime        time.Time         `gorm:"column:c_time;type:timestamptz;not null;index"`
	MTime        time.Time         `gorm:"column:m_time;type:timestamptz;not null;index"`
}

func (assetModel) TableName() string { return "assets" }

func (m assetModel) toAsset() Asset {
	return Asset{
		ID:           m.ID,
		AssetType:    AssetType(m.AssetType),
		SN:           m.SN,
		Name:         m.Name,
		Status:       AssetStatus(m.Status),
		Manufacturer: m.Manufacturer,
		Model:        m.Model,
		Extension:    extensionFromJSONMap(m.Extension),
		ApprovedBy:   m.ApprovedBy,
		CTime:        m.CTime.UTC(),
		MTime:        m.MTime.UTC(),
	}
}

func newAssetModel(a Asset) assetModel {
	return assetModel{
		ID:           a.ID,
		AssetType:    string(a.AssetType),
		SN:           a.SN,
		Name:         a.Name,
		Status:       string(a.Status),
		Manufacturer: a.Manufacturer,
		Model:        a.Model,
		Extension:    extensionToJSONMap(a.Extension),
		ApprovedBy:   a.ApprovedBy,
		CTime:        a.CTime,
		MTime:        a.MTime,
	}
}

type cpuModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Model     string    `gorm:"type:text;not null;default:''"`
	CoreCount int       `gorm:"not null;default:0"`
}

func (cpuModel) TableName() string { return "asset_cpus" }

type ramModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_rams_slot"`
	Slot         string    `gorm:"type:text;not null;uniqueIndex:idx_asset_rams_slot"`
	Capacity     int       `gorm:"not null;default:0"`
	Model        string    `gorm:"type:text;not null;default:''"`
	Manufacturer string    `gorm:"type:text;not null;default:''"`
	SN           string    `gorm:"column:sn;type:text;not null;default:''"`
}

func (ramModel) TableName() string { return "asset_rams" }

type diskModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_disks_slot"`
	Slot         string    `gorm:"type:text;not null;uniqueIndex:idx_asset_disks_slot"`
	SN           string    `gorm:"column:sn;type:text;not null;default:''"`
	Model        string    `gorm:"type:text;not null;default:''"`
	Manufacturer string    `gorm:"type:text;not null;default:''"`
	Capacity     int       `gorm:"not null;default:0"`
	IfaceType    string    `gorm:"type:text;not null;default:'unknown'"`
}

func (diskModel) TableName() string { return "asset_disks" }

type nicModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_nics_mac"`
	MAC       string    `gorm:"column:mac;type:text;not null;uniqueIndex:idx_asset_nics_mac"`
	Name      string    `gorm:"type:text;not null;default:''"`
	Model     string    `gorm:"type:text;not null;default:''"`
	IPAddress string    `gorm:"column:ip_address;type:text;not null;default:''"`
	NetMask   string    `gorm:"type:text;not null;default:''"`
}

func (nicModel) TableName() string { return "asset_nics" }

type pendingModel struct {
	SN           string         `gorm:"column:sn;type:text;primaryKey"`
	AssetType    string         `gorm:"type:text;not null;index"`
	Name         string         `gorm:"type:text;not null;default:''"`
	Model        string         `gorm:"type:text;not null;default:''"`
	Manufacturer string         `gorm:"type:text;not null;default:'';index"`
	Payload      datatypes.JSON `gorm:"type:jsonb;not null"`
	SubmittedBy  string         `gorm:"type:text;not null;default:''"`
	AssetID      *uuid.UUID     `gorm:"type:uuid"`
	CTime        time.Time      `gorm:"column:c_time;type:timestamptz;not null"`
	MTime        time.Time      `gorm:"column:m_time;type:timestamptz;not null"`
}

func (pendingModel) TableName() string { return "pending_assets" }

type eventModel struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	AssetID   *uuid.UUID        `gorm:"type:uuid;index"`
	SN        string            `gorm:"column:sn;type:text;not null;index"`
	EventType string            `gorm:"type:text;not null"`
	Actor     string            `gorm:"type:text;not null"`
	Detail    datatypes.JSONMap `gorm:"type:jsonb"`
	At        time.Time         `gorm:"type:timestamptz;not null;index"`
}

func (eventModel) TableName() string { return "event_logs" }

func componentModels(assetID uuid.UUID, c Components) ([]cpuModel, []ramModel, []diskModel, []nicModel) {
	cpus := make([]cpuModel, 0, len(c.CPUs))
	for _, v := range c.CPUs {
		cpus = append(cpus, cpuModel{ID: uuid.New(), AssetID: assetID, Model: v.Model, CoreCount: v.CoreCount})
	}
	ram := make([]ramModel, 0, len(c.RAM))
	for _, v := range c.RAM {
		ram = append(ram, ramModel{
			ID:           uuid.New(),
			AssetID:      assetID,
			Slot:         v.Slot,
			Capacity:     v.Capacity,
			Model:        v.Model,
			Manufacturer: v.Manufacturer,
			SN:           v.SN,
		})
	}
	disks := make([]diskModel, 0, len(c.Disks))
	for _, v := range c.Disks {
		disks = append(disks, diskModel{
			ID:           uuid.New(),
			AssetID:      assetID,
			Slot:         v.Slot,
			SN:           v.SN,
			Model:        v.Model,
			Manufacturer: v.Manufacturer,
			Capacity:     v.Capacity,
			IfaceType:    v.IfaceType,
		})
	}
	nics := make([]nicModel, 0, len(c.NICs))
	for _, v := range c.NICs {
		nics = append(nics, nicModel{
			ID:        uuid.New(),
			AssetID:   assetID,
			MAC:       v.MAC,
			Name:      v.Name,
			Model:     v.Model,
			IPAddress: v.IPAddress,
			NetMask:   v.NetMask,
		})
	}
	return cpus, ram, disks, nics
}
