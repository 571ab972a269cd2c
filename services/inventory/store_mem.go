package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemStore keeps everything in process memory. Each transaction buffers its
// writes and applies them at commit under a short exclusive lock, so
// transactions on different serials never wait on each other.
type MemStore struct {
	mu      sync.RWMutex
	assets  map[uuid.UUID]Asset
	pending map[string]PendingAsset
	events  []Event

	eventSeq atomic.Int64
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		assets:  make(map[uuid.UUID]Asset),
		pending: make(map[string]PendingAsset),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Tx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:   s,
		assets:  make(map[uuid.UUID]Asset),
		pending: make(map[string]*PendingAsset),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range tx.assets {
		for otherID, other := range s.assets {
			if otherID != id && other.SN == a.SN {
				return fmt.Errorf("duplicate sn %q", a.SN)
			}
		}
	}
	for id, a := range tx.assets {
		s.assets[id] = a
	}
	for sn, p := range tx.pending {
		if p == nil {
			delete(s.pending, sn)
			continue
		}
		s.pending[sn] = *p
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) GetAsset(_ context.Context, id uuid.UUID) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return cloneAsset(a), nil
}

func (s *MemStore) AssetBySN(_ context.Context, sn string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assets {
		if a.SN == sn {
			return cloneAsset(a), nil
		}
	}
	return Asset{}, fmt.Errorf("asset with sn %q: %w", sn, ErrNotFound)
}

func (s *MemStore) ListAssets(_ context.Context, f AssetFilter) ([]Asset, error) {
	s.mu.RLock()
	out := make([]Asset, 0, len(s.assets))
	for _, a := range s.assets {
		if f.AssetType != "" && a.AssetType != f.AssetType {
			continue
		}
		if f.Manufacturer != "" && !strings.EqualFold(a.Manufacturer, f.Manufacturer) {
			continue
		}
		at := a.MTime
		if f.TimeField == "c_time" {
			at = a.CTime
		}
		if !f.Since.IsZero() && at.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && !at.Before(f.Until) {
			continue
		}
		out = append(out, cloneAsset(a))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CTime.Equal(out[j].CTime) {
			return out[i].CTime.Before(out[j].CTime)
		}
		return out[i].SN < out[j].SN
	})
	return page(out, f.Offset, f.Limit), nil
}

func (s *MemStore) GetPending(_ context.Context, sn string) (PendingAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[sn]
	if !ok {
		return PendingAsset{}, fmt.Errorf("%w: %s", ErrNoPendingAsset, sn)
	}
	return clonePending(p), nil
}

func (s *MemStore) ListPending(_ context.Context, f PendingFilter) ([]PendingAsset, error) {
	s.mu.RLock()
	out := make([]PendingAsset, 0, len(s.pending))
	for _, p := range s.pending {
		if f.AssetType != "" && p.AssetType != f.AssetType {
			continue
		}
		if f.Manufacturer != "" && !strings.EqualFold(p.Manufacturer, f.Manufacturer) {
			continue
		}
		out = append(out, clonePending(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CTime.Equal(out[j].CTime) {
			return out[i].CTime.Before(out[j].CTime)
		}
		return out[i].SN < out[j].SN
	})
	return out, nil
}

func (s *MemStore) ListEvents(_ context.Context, f EventFilter) ([]Event, error) {
	s.mu.RLock()
	out := make([]Event, 0)
	for _, e := range s.events {
		if f.SN != "" && e.SN != f.SN {
			continue
		}
		if f.AssetID != nil && (e.AssetID == nil || *e.AssetID != *f.AssetID) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, 0, f.Limit), nil
}

type memTx struct {
	store   *MemStore
	assets  map[uuid.UUID]Asset
	pending map[string]*PendingAsset // nil marks a delete
	events  []Event
}

func (t *memTx) LockIdentity(context.Context, string) error { return nil }

func (t *memTx) lookupAsset(id uuid.UUID) (Asset, bool) {
	if a, ok := t.assets[id]; ok {
		return a, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.assets[id]
	return a, ok
}

func (t *memTx) AssetsBySN(_ context.Context, sn string) ([]Asset, error) {
	seen := make(map[uuid.UUID]struct{})
	var out []Asset
	for id, a := range t.assets {
		seen[id] = struct{}{}
		if a.SN == sn {
			out = append(out, cloneAsset(a))
		}
	}
	t.store.mu.RLock()
	for id, a := range t.store.assets {
		if _, ok := seen[id]; ok {
			continue
		}
		if a.SN == sn {
			out = append(out, cloneAsset(a))
		}
	}
	t.store.mu.RUnlock()
	return out, nil
}

func (t *memTx) PendingBySN(_ context.Context, sn string) (*PendingAsset, error) {
	if p, ok := t.pending[sn]; ok {
		if p == nil {
			return nil, nil
		}
		c := clonePending(*p)
		return &c, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.pending[sn]
	if !ok {
		return nil, nil
	}
	c := clonePending(p)
	return &c, nil
}

func (t *memTx) PutPending(_ context.Context, p PendingAsset) error {
	c := clonePending(p)
	t.pending[p.SN] = &c
	return nil
}

func (t *memTx) DeletePending(ctx context.Context, sn string) (bool, error) {
	p, err := t.PendingBySN(ctx, sn)
	if err != nil || p == nil {
		return false, err
	}
	t.pending[sn] = nil
	return true, nil
}

func (t *memTx) CreateAsset(ctx context.Context, a *Asset) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	existing, err := t.AssetsBySN(ctx, a.SN)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("duplicate sn %q", a.SN)
	}
	c := cloneAsset(*a)
	c.Components = Components{}
	t.assets[a.ID] = c
	return nil
}

func (t *memTx) UpdateAsset(_ context.Context, a *Asset) error {
	current, ok := t.lookupAsset(a.ID)
	if !ok {
		return fmt.Errorf("asset %s: %w", a.ID, ErrNotFound)
	}
	c := cloneAsset(*a)
	c.Components = cloneComponents(current.Components)
	t.assets[a.ID] = c
	return nil
}

func (t *memTx) ReplaceComponents(_ context.Context, assetID uuid.UUID, comps Components) error {
	current, ok := t.lookupAsset(assetID)
	if !ok {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	current = cloneAsset(current)
	current.Components = cloneComponents(comps)
	t.assets[assetID] = current
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e *Event) error {
	detail, err := jsonRoundTrip(e.Detail)
	if err != nil {
		return fmt.Errorf("encode event detail: %w", err)
	}
	e.ID = t.store.eventSeq.Add(1)
	c := *e
	c.Detail = detail
	t.events = append(t.events, c)
	return nil
}

func clonePending(p PendingAsset) PendingAsset {
	p.Report.Extension = maps.Clone(p.Report.Extension)
	p.Report.Components = cloneComponents(p.Report.Components)
	if p.AssetID != nil {
		id := *p.AssetID
		p.AssetID = &id
	}
	return p
}

func cloneEvent(e Event) Event {
	if e.AssetID != nil {
		id := *e.AssetID
		e.AssetID = &id
	}
	e.Detail, _ = jsonRoundTrip(e.Detail)
	return e
}

// jsonRoundTrip stores details the way a jsonb column would.
func jsonRoundTrip(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return slices.Clip(items)
}
