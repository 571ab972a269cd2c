package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cmdb/pkg/db"
)

// GormStore is the Postgres store. Writes go through gorm transactions;
// read-only queries go straight to the pgx pool.
type GormStore struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
}

// NewGormStore wires a store over an open gorm handle and pgx pool pointing
// at the same database.
func NewGormStore(orm *gorm.DB, pool *pgxpool.Pool) (*GormStore, error) {
	if orm == nil {
		return nil, errors.New("gorm handle is required")
	}
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &GormStore{orm: orm, pool: pool}, nil
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) Tx(ctx context.Context, fn func(Tx) error) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}

type gormTx struct {
	db *gorm.DB
}

// LockIdentity takes a transaction-scoped advisory lock keyed by the sn, so
// callers in other processes serialize too, even before any row exists.
func (t *gormTx) LockIdentity(_ context.Context, sn string) error {
	return t.db.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", sn).Error
}

func (t *gormTx) AssetsBySN(_ context.Context, sn string) ([]Asset, error) {
	var rows []assetModel
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sn = ?", sn).
		Order("c_time").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(rows))
	for _, row := range rows {
		a := row.toAsset()
		comps, err := t.components(row.ID)
		if err != nil {
			return nil, err
		}
		a.Components = comps
		out = append(out, a)
	}
	return out, nil
}

func (t *gormTx) components(assetID uuid.UUID) (Components, error) {
	var (
		cpus  []cpuModel
		ram   []ramModel
		disks []diskModel
		nics  []nicModel
	)
	if err := t.db.Where("asset_id = ?", assetID).Order("model, core_count").Find(&cpus).Error; err != nil {
		return Components{}, err
	}
	if err := t.db.Where("asset_id = ?", assetID).Order("slot").Find(&ram).Error; err != nil {
		return Components{}, err
	}
	if err := t.db.Where("asset_id = ?", assetID).Order("slot").Find(&disks).Error; err != nil {
		return Components{}, err
	}
	if err := t.db.Where("asset_id = ?", assetID).Order("mac").Find(&nics).Error; err != nil {
		return Components{}, err
	}

	c := Components{
		CPUs:  make([]CPU, 0, len(cpus)),
		RAM:   make([]RAM, 0, len(ram)),
		Disks: make([]Disk, 0, len(disks)),
		NICs:  make([]NIC, 0, len(nics)),
	}
	for _, m := range cpus {
		c.CPUs = append(c.CPUs, CPU{Model: m.Model, CoreCount: m.CoreCount})
	}
	for _, m := range ram {
		c.RAM = append(c.RAM, RAM{Slot: m.Slot, Capacity: m.Capacity, Model: m.Model, Manufacturer: m.Manufacturer, SN: m.SN})
	}
	for _, m := range disks {
		c.Disks = append(c.Disks, Disk{Slot: m.Slot, SN: m.SN, Model: m.Model, Manufacturer: m.Manufacturer, Capacity: m.Capacity, IfaceType: m.IfaceType})
	}
	for _, m := range nics {
		c.NICs = append(c.NICs, NIC{MAC: m.MAC, Name: m.Name, Model: m.Model, IPAddress: m.IPAddress, NetMask: m.NetMask})
	}
	return c, nil
}

func (t *gormTx) PendingBySN(_ context.Context, sn string) (*PendingAsset, error) {
	var rows []pendingModel
	if err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sn = ?", sn).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p, err := pendingFromModel(rows[0])
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormTx) PutPending(_ context.Context, p PendingAsset) error {
	payload, err := json.Marshal(p.Report)
	if err != nil {
		return err
	}
	model := pendingModel{
		SN:           p.SN,
		AssetType:    string(p.AssetType),
		Name:         p.Name,
		Model:        p.Model,
		Manufacturer: p.Manufacturer,
		Payload:      datatypes.JSON(payload),
		SubmittedBy:  p.SubmittedBy,
		AssetID:      p.AssetID,
		CTime:        p.CTime,
		MTime:        p.MTime,
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sn"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (t *gormTx) DeletePending(_ context.Context, sn string) (bool, error) {
	res := t.db.Where("sn = ?", sn).Delete(&pendingModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) CreateAsset(_ context.Context, a *Asset) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	model := newAssetModel(*a)
	return t.db.Create(&model).Error
}

func (t *gormTx) UpdateAsset(_ context.Context, a *Asset) error {
	res := t.db.Model(&assetModel{}).Where("id = ?", a.ID).Updates(map[string]any{
		"asset_type":   string(a.AssetType),
		"name":         a.Name,
		"status":       string(a.Status),
		"manufacturer": a.Manufacturer,
		"model":        a.Model,
		"extension":    extensionToJSONMap(a.Extension),
		"approved_by":  a.ApprovedBy,
		"m_time":       a.MTime,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (t *gormTx) ReplaceComponents(_ context.Context, assetID uuid.UUID, c Components) error {
	for _, model := range []any{&cpuModel{}, &ramModel{}, &diskModel{}, &nicModel{}} {
		if err := t.db.Where("asset_id = ?", assetID).Delete(model).Error; err != nil {
			return err
		}
	}

	cpus, ram, disks, nics := componentModels(assetID, c)
	if len(cpus) > 0 {
		if err := t.db.Create(&cpus).Error; err != nil {
			return err
		}
	}
	if len(ram) > 0 {
		if err := t.db.Create(&ram).Error; err != nil {
			return err
		}
	}
	if len(disks) > 0 {
		if err := t.db.Create(&disks).Error; err != nil {
			return err
		}
	}
	if len(nics) > 0 {
		if err := t.db.Create(&nics).Error; err != nil {
			return err
		}
	}
	return nil
}

func (t *gormTx) AppendEvent(_ context.Context, e *Event) error {
	model := eventModel{
		AssetID:   e.AssetID,
		SN:        e.SN,
		EventType: string(e.Type),
		Actor:     e.Actor,
		Detail:    toJSONMap(e.Detail),
		At:        e.At,
	}
	if err := t.db.Create(&model).Error; err != nil {
		return err
	}
	e.ID = model.ID
	return nil
}

func pendingFromModel(m pendingModel) (PendingAsset, error) {
	var report Report
	if err := json.Unmarshal(m.Payload, &report); err != nil {
		return PendingAsset{}, fmt.Errorf("decode pending payload for %s: %w", m.SN, err)
	}
	return PendingAsset{
		SN:           m.SN,
		AssetType:    AssetType(m.AssetType),
		Name:         m.Name,
		Model:        m.Model,
		Manufacturer: m.Manufacturer,
		Report:       report,
		SubmittedBy:  m.SubmittedBy,
		AssetID:      m.AssetID,
		CTime:        m.CTime.UTC(),
		MTime:        m.MTime.UTC(),
	}, nil
}

// Read side.

type assetRow struct {
	ID           uuid.UUID `db:"id"`
	AssetType    string    `db:"asset_type"`
	SN           string    `db:"sn"`
	Name         string    `db:"name"`
	Status       string    `db:"status"`
	Manufacturer string    `db:"manufacturer"`
	Model        string    `db:"model"`
	Extension    []byte    `db:"extension"`
	ApprovedBy   string    `db:"approved_by"`
	CTime        time.Time `db:"c_time"`
	MTime        time.Time `db:"m_time"`
}

func (r assetRow) toAsset() (Asset, error) {
	var ext map[string]string
	if len(r.Extension) > 0 {
		var raw datatypes.JSONMap
		if err := json.Unmarshal(r.Extension, &raw); err != nil {
			return Asset{}, err
		}
		ext = extensionFromJSONMap(raw)
	}
	return Asset{
		ID:           r.ID,
		AssetType:    AssetType(r.AssetType),
		SN:           r.SN,
		Name:         r.Name,
		Status:       AssetStatus(r.Status),
		Manufacturer: r.Manufacturer,
		Model:        r.Model,
		Extension:    ext,
		ApprovedBy:   r.ApprovedBy,
		CTime:        r.CTime.UTC(),
		MTime:        r.MTime.UTC(),
	}, nil
}

const assetColumns = `id, asset_type, sn, name, status, manufacturer, model, extension, approved_by, c_time, m_time`

func (s *GormStore) GetAsset(ctx context.Context, id uuid.UUID) (Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id.String())
}

func (s *GormStore) AssetBySN(ctx context.Context, sn string) (Asset, error) {
	return s.oneAsset(ctx, `SELECT `+assetColumns+` FROM assets WHERE sn = $1`, sn)
}

func (s *GormStore) oneAsset(ctx context.Context, query string, arg any) (Asset, error) {
	var row assetRow
	if err := db.Get(ctx, s.pool, &row, query, arg); err != nil {
		if pgxscan.NotFound(err) {
			return Asset{}, fmt.Errorf("asset %v: %w", arg, ErrNotFound)
		}
		return Asset{}, err
	}
	assets, err := s.withComponents(ctx, []assetRow{row})
	if err != nil {
		return Asset{}, err
	}
	return assets[0], nil
}

func (s *GormStore) ListAssets(ctx context.Context, f AssetFilter) ([]Asset, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.AssetType != "" {
		where = append(where, "asset_type = "+arg(string(f.AssetType)))
	}
	if f.Manufacturer != "" {
		where = append(where, "lower(manufacturer) = lower("+arg(f.Manufacturer)+")")
	}
	timeCol := "m_time"
	if f.TimeField == "c_time" {
		timeCol = "c_time"
	}
	if !f.Since.IsZero() {
		where = append(where, timeCol+" >= "+arg(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, timeCol+" < "+arg(f.Until))
	}

	query := `SELECT ` + assetColumns + ` FROM assets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c_time, sn"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	var rows []assetRow
	if err := db.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, err
	}
	return s.withComponents(ctx, rows)
}

type componentRow struct {
	AssetID      uuid.UUID `db:"asset_id"`
	Slot         string    `db:"slot"`
	SN           string    `db:"sn"`
	Model        string    `db:"model"`
	Manufacturer string    `db:"manufacturer"`
	Capacity     int       `db:"capacity"`
	IfaceType    string    `db:"iface_type"`
	CoreCount    int       `db:"core_count"`
	MAC          string    `db:"mac"`
	Name         string    `db:"name"`
	IPAddress    string    `db:"ip_address"`
	NetMask      string    `db:"net_mask"`
}

// withComponents loads the component collections of rows in four queries.
func (s *GormStore) withComponents(ctx context.Context, rows []assetRow) ([]Asset, error) {
	out := make([]Asset, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		a, err := row.toAsset()
		if err != nil {
			return nil, err
		}
		a.Components = cloneComponents(Components{})
		index[row.ID] = len(out)
		out = append(out, a)
		ids = append(ids, row.ID.String())
	}

	queries := []struct {
		sql  string
		fill func(*Asset, componentRow)
	}{
		{
			sql: `SELECT asset_id, model, core_count FROM asset_cpus WHERE asset_id = ANY($1::uuid[]) ORDER BY model, core_count`,
			fill: func(a *Asset, r componentRow) {
				a.CPUs = append(a.CPUs, CPU{Model: r.Model, CoreCount: r.CoreCount})
			},
		},
		{
			sql: `SELECT asset_id, slot, capacity, model, manufacturer, sn FROM asset_rams WHERE asset_id = ANY($1::uuid[]) ORDER BY slot`,
			fill: func(a *Asset, r componentRow) {
				a.RAM = append(a.RAM, RAM{Slot: r.Slot, Capacity: r.Capacity, Model: r.Model, Manufacturer: r.Manufacturer, SN: r.SN})
			},
		},
		{
			sql: `SELECT asset_id, slot, sn, model, manufacturer, capacity, iface_type FROM asset_disks WHERE asset_id = ANY($1::uuid[]) ORDER BY slot`,
			fill: func(a *Asset, r componentRow) {
				a.Disks = append(a.Disks, Disk{Slot: r.Slot, SN: r.SN, Model: r.Model, Manufacturer: r.Manufacturer, Capacity: r.Capacity, IfaceType: r.IfaceType})
			},
		},
		{
			sql: `SELECT asset_id, mac, name, model, ip_address, net_mask FROM asset_nics WHERE asset_id = ANY($1::uuid[]) ORDER BY mac`,
			fill: func(a *Asset, r componentRow) {
				a.NICs = append(a.NICs, NIC{MAC: r.MAC, Name: r.Name, Model: r.Model, IPAddress: r.IPAddress, NetMask: r.NetMask})
			},
		},
	}
	for _, q := range queries {
		var comps []componentRow
		if err := db.Select(ctx, s.pool, &comps, q.sql, ids); err != nil {
			return nil, err
		}
		for _, c := range comps {
			if i, ok := index[c.AssetID]; ok {
				q.fill(&out[i], c)
			}
		}
	}
	return out, nil
}

func (s *GormStore) GetPending(ctx context.Context, sn string) (PendingAsset, error) {
	var rows []pendingModel
	if err := s.orm.WithContext(ctx).Where("sn = ?", sn).Limit(1).Find(&rows).Error; err != nil {
		return PendingAsset{}, err
	}
	if len(rows) == 0 {
		return PendingAsset{}, fmt.Errorf("%w: %s", ErrNoPendingAsset, sn)
	}
	return pendingFromModel(rows[0])
}

func (s *GormStore) ListPending(ctx context.Context, f PendingFilter) ([]PendingAsset, error) {
	q := s.orm.WithContext(ctx).Order("c_time, sn")
	if f.AssetType != "" {
		q = q.Where("asset_type = ?", string(f.AssetType))
	}
	if f.Manufacturer != "" {
		q = q.Where("lower(manufacturer) = lower(?)", f.Manufacturer)
	}
	var rows []pendingModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]PendingAsset, 0, len(rows))
	for _, row := range rows {
		p, err := pendingFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type eventRow struct {
	ID        int64      `db:"id"`
	AssetID   *uuid.UUID `db:"asset_id"`
	SN        string     `db:"sn"`
	EventType string     `db:"event_type"`
	Actor     string     `db:"actor"`
	Detail    []byte     `db:"detail"`
	At        time.Time  `db:"at"`
}

func (s *GormStore) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.SN != "" {
		where = append(where, "sn = "+arg(f.SN))
	}
	if f.AssetID != nil {
		where = append(where, "asset_id = "+arg(f.AssetID.String())+"::uuid")
	}
	if f.Type != "" {
		where = append(where, "event_type = "+arg(string(f.Type)))
	}
	query := `SELECT id, asset_id, sn, event_type, actor, detail, at FROM event_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	var rows []eventRow
	if err := db.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		var detail datatypes.JSONMap
		if len(r.Detail) > 0 {
			if err := json.Unmarshal(r.Detail, &detail); err != nil {
				return nil, err
			}
		}
		out = append(out, Event{
			ID:      r.ID,
			AssetID: r.AssetID,
			SN:      r.SN,
			Type:    EventType(r.EventType),
			Actor:   r.Actor,
			Detail:  mapFromJSONMap(detail),
			At:      r.At.UTC(),
		})
	}
	return out, nil
}
