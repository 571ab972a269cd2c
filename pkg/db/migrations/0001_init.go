package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Asset struct {
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
	CPUs         []AssetCPU        `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	RAMs         []AssetRAM        `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Disks        []AssetDisk       `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	NICs         []AssetNIC        `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type AssetCPU struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Model     string    `gorm:"type:text;not null;default:''"`
	CoreCount int       `gorm:"not null;default:0"`
}

func (AssetCPU) TableName() string { return "asset_cpus" }

type AssetRAM struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_rams_slot"`
	Slot         string    `gorm:"type:text;not null;uniqueIndex:idx_asset_rams_slot"`
	Capacity     int       `gorm:"not null;default:0"`
	Model        string    `gorm:"type:text;not null;default:''"`
	Manufacturer string    `gorm:"type:text;not null;default:''"`
	SN           string    `gorm:"column:sn;type:text;not null;default:''"`
}

func (AssetRAM) TableName() string { return "asset_rams" }

type AssetDisk struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_disks_slot"`
	Slot         string    `gorm:"type:text;not null;uniqueIndex:idx_asset_disks_slot"`
	SN           string    `gorm:"column:sn;type:text;not null;default:''"`
	Model        string    `gorm:"type:text;not null;default:''"`
	Manufacturer string    `gorm:"type:text;not null;default:''"`
	Capacity     int       `gorm:"not null;default:0"`
	IfaceType    string    `gorm:"type:text;not null;default:'unknown'"`
}

func (AssetDisk) TableName() string { return "asset_disks" }

type AssetNIC struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_asset_nics_mac"`
	MAC       string    `gorm:"column:mac;type:text;not null;uniqueIndex:idx_asset_nics_mac"`
	Name      string    `gorm:"type:text;not null;default:''"`
	Model     string    `gorm:"type:text;not null;default:''"`
	IPAddress string    `gorm:"column:ip_address;type:text;not null;default:''"`
	NetMask   string    `gorm:"type:text;not null;default:''"`
}

func (AssetNIC) TableName() string { return "asset_nics" }

type PendingAsset struct {
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

type EventLog struct {
	ID        int64             `gorm:"type:bigserial;primaryKey"`
	AssetID   *uuid.UUID        `gorm:"type:uuid;index"`
	SN        string            `gorm:"column:sn;type:text;not null;index"`
	EventType string            `gorm:"type:text;not null"`
	Actor     string            `gorm:"type:text;not null"`
	Detail    datatypes.JSONMap `gorm:"type:jsonb"`
	At        time.Time         `gorm:"type:timestamptz;not null;index"`
}

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Asset{},
		&AssetCPU{},
		&AssetRAM{},
		&AssetDisk{},
		&AssetNIC{},
		&PendingAsset{},
		&EventLog{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	for _, rel := range []string{"CPUs", "RAMs", "Disks", "NICs"} {
		if m.HasConstraint(&Asset{}, rel) {
			continue
		}
		if err := m.CreateConstraint(&Asset{}, rel); err != nil {
			return err
		}
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&EventLog{},
		&PendingAsset{},
		&AssetNIC{},
		&AssetDisk{},
		&AssetRAM{},
		&AssetCPU{},
		&Asset{},
	)
}
