package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subj string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subj)
	return nil
}

func serverReport(sn string) map[string]any {
	return map[string]any{
		"asset_type":      "server",
		"sn":              sn,
		"model":           "PowerEdge R740",
		"manufacturer":    "Dell Inc.",
		"os_type":         "Linux",
		"os_release":      "9.3",
		"os_distribution": "Rocky",
		"cpus": []any{
			map[string]any{"model": "Xeon Gold 6230", "core_count": 20.0},
			map[string]any{"model": "Xeon Gold 6230", "core_count": 20.0},
		},
		"ram": []any{
			map[string]any{"slot": "DIMM_A1", "capacity": 32.0, "manufacturer": "Samsung", "sn": "R-1"},
			map[string]any{"slot": "DIMM_A2", "capacity": 32.0, "manufacturer": "Samsung", "sn": "R-2"},
		},
		"disks": []any{
			map[string]any{"slot": 0.0, "sn": "D-1", "model": "PM883", "capacity": 960.0, "iface_type": "SATA"},
		},
		"nics": []any{
			map[string]any{"mac": "AA:BB:CC:DD:EE:01", "name": "eno1", "ip_address": "10.0.0.5", "net_mask": []any{"255.255.255.0"}},
		},
	}
}

func newTestEngine(t *testing.T, store Store, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	engine, err := NewEngine(store, opts...)
	require.NoError(t, err)
	return engine, clock
}

func eventsOf(t *testing.T, e *Engine, sn string, typ EventType) []Event {
	t.Helper()
	events, err := e.ListEvents(context.Background(), EventFilter{SN: sn, Type: typ})
	require.NoError(t, err)
	return events
}

func TestSubmitNewReportIsStaged(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	engine, _ := newTestEngine(t, NewMemStore(), WithPublisher(pub))

	res, err := engine.Submit(ctx, serverReport("SN-100"), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, DispositionNew, res.Disposition)
	assert.True(t, res.Staged)
	assert.False(t, res.Refresh)
	assert.Nil(t, res.AssetID)

	pending, err := engine.GetPending(ctx, "SN-100")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", pending.SubmittedBy)
	assert.Len(t, pending.Report.RAM, 2)

	submitted := eventsOf(t, engine, "SN-100", EventSubmitted)
	require.Len(t, submitted, 1)
	assert.Equal(t, "agent-1", submitted[0].Actor)
	assert.Nil(t, submitted[0].AssetID)

	assert.Equal(t, []string{SubjectReportStaged}, pub.subjects)
}

func TestResubmissionBeforeApprovalRefreshesInPlace(t *testing.T) {
	ctx := context.Background()
	engine, clock := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-200"), "agent-1")
	require.NoError(t, err)
	first, err := engine.GetPending(ctx, "SN-200")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	report := serverReport("SN-200")
	report["model"] = "PowerEdge R750"
	res, err := engine.Submit(ctx, report, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, DispositionNew, res.Disposition)
	assert.True(t, res.Refresh)

	pending, err := engine.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "PowerEdge R750", pending[0].Model)
	assert.Equal(t, first.CTime, pending[0].CTime)
	assert.True(t, pending[0].MTime.After(first.MTime))

	assert.Len(t, eventsOf(t, engine, "SN-200", EventSubmitted), 1)
}

func TestApproveCreatesAssetAndConsumesPending(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	engine, clock := newTestEngine(t, NewMemStore(), WithPublisher(pub))

	_, err := engine.Submit(ctx, serverReport("SN-300"), "agent-1")
	require.NoError(t, err)

	id, err := engine.Approve(ctx, "SN-300", "alice")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	_, err = engine.GetPending(ctx, "SN-300")
	assert.ErrorIs(t, err, ErrNoPendingAsset)

	asset, err := engine.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "SN-300", asset.SN)
	assert.Equal(t, "SN-300", asset.Name)
	assert.Equal(t, AssetTypeServer, asset.AssetType)
	assert.Equal(t, AssetStatusOnline, asset.Status)
	assert.Equal(t, "alice", asset.ApprovedBy)
	assert.Equal(t, clock.Now(), asset.CTime)
	assert.Equal(t, clock.Now(), asset.MTime)
	assert.Equal(t, map[string]string{"os_type": "Linux", "os_release": "9.3", "os_distribution": "Rocky"}, asset.Extension)
	assert.Len(t, asset.CPUs, 2)
	assert.Len(t, asset.RAM, 2)
	assert.Equal(t, []Disk{{Slot: "0", SN: "D-1", Model: "PM883", Capacity: 960, IfaceType: "sata"}}, asset.Disks)
	assert.Equal(t, []NIC{{MAC: "aa:bb:cc:dd:ee:01", Name: "eno1", IPAddress: "10.0.0.5", NetMask: "255.255.255.0"}}, asset.NICs)

	merged, err := engine.ListEvents(ctx, EventFilter{AssetID: &id, Type: EventMerged})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "alice", merged[0].Actor)
	assert.Len(t, eventsOf(t, engine, "SN-300", EventApproved), 1)
	assert.Empty(t, eventsOf(t, engine, "SN-300", EventFieldChanged))

	assert.Equal(t, []string{SubjectReportStaged, SubjectAssetMerged}, pub.subjects)
}

func TestApproveTwiceIsAlreadyResolved(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-301"), "agent-1")
	require.NoError(t, err)
	first, err := engine.Approve(ctx, "SN-301", "alice")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, "SN-301", "bob")
	require.ErrorIs(t, err, ErrNoPendingAsset)

	asset, err := engine.FindAssetBySN(ctx, "SN-301")
	require.NoError(t, err)
	assert.Equal(t, first, asset.ID)
	assert.Equal(t, "alice", asset.ApprovedBy)
	assert.Len(t, eventsOf(t, engine, "SN-301", EventMerged), 1)
}

func TestUnchangedReportAfterApprovalIsNoop(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-400"), "agent-1")
	require.NoError(t, err)
	_, err = engine.Approve(ctx, "SN-400", "alice")
	require.NoError(t, err)

	before, err := engine.ListEvents(ctx, EventFilter{SN: "SN-400"})
	require.NoError(t, err)

	// Component order is irrelevant.
	report := serverReport("SN-400")
	ram := report["ram"].([]any)
	report["ram"] = []any{ram[1], ram[0]}

	for i := 0; i < 2; i++ {
		res, err := engine.Submit(ctx, report, "agent-1")
		require.NoError(t, err)
		assert.Equal(t, DispositionNoop, res.Disposition)
		assert.False(t, res.Staged)
	}

	_, err = engine.GetPending(ctx, "SN-400")
	assert.ErrorIs(t, err, ErrNoPendingAsset)
	after, err := engine.ListEvents(ctx, EventFilter{SN: "SN-400"})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestChangedRAMIsStagedAsUpdateAndReplacedOnApproval(t *testing.T) {
	ctx := context.Background()
	engine, clock := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-500"), "agent-1")
	require.NoError(t, err)
	id, err := engine.Approve(ctx, "SN-500", "alice")
	require.NoError(t, err)
	created := clock.Now()

	clock.Advance(time.Hour)
	report := serverReport("SN-500")
	report["ram"] = []any{
		map[string]any{"slot": "DIMM_B1", "capacity_bytes": 68719476736.0, "manufacturer": "Micron"},
	}
	res, err := engine.Submit(ctx, report, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, DispositionUpdate, res.Disposition)
	require.NotNil(t, res.AssetID)
	assert.Equal(t, id, *res.AssetID)

	pending, err := engine.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, DispositionUpdate, pending[0].Disposition)

	clock.Advance(time.Minute)
	got, err := engine.Approve(ctx, "SN-500", "bob")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	asset, err := engine.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []RAM{{Slot: "DIMM_B1", Capacity: 64, Manufacturer: "Micron"}}, asset.RAM)
	assert.Equal(t, created, asset.CTime)
	assert.Equal(t, clock.Now(), asset.MTime)
	assert.Equal(t, "bob", asset.ApprovedBy)

	changed := eventsOf(t, engine, "SN-500", EventFieldChanged)
	require.Len(t, changed, 1)
	changes, ok := changed[0].Detail["changes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, changes, "ram")
	assert.NotContains(t, changes, "nics")

	merged, err := engine.ListEvents(ctx, EventFilter{AssetID: &id, Type: EventMerged})
	require.NoError(t, err)
	assert.Len(t, merged, 2)
}

func TestRejectLeavesCanonicalStoreUntouched(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-600"), "agent-1")
	require.NoError(t, err)
	require.NoError(t, engine.Reject(ctx, "SN-600", "alice"))

	_, err = engine.FindAssetBySN(ctx, "SN-600")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = engine.GetPending(ctx, "SN-600")
	assert.ErrorIs(t, err, ErrNoPendingAsset)
	rejected := eventsOf(t, engine, "SN-600", EventRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "alice", rejected[0].Actor)

	assert.ErrorIs(t, engine.Reject(ctx, "SN-600", "alice"), ErrNoPendingAsset)

	res, err := engine.Submit(ctx, serverReport("SN-600"), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, DispositionNew, res.Disposition)
	assert.False(t, res.Refresh)
}

func TestMalformedReportChangesNothing(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	report := serverReport("To Be Filled By O.E.M.")
	_, err := engine.Submit(ctx, report, "agent-1")
	require.ErrorIs(t, err, ErrMalformedReport)

	pending, err := engine.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
	events, err := engine.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDecisionRequiresPrincipal(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-700"), "agent-1")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, "SN-700", "  ")
	assert.ErrorIs(t, err, ErrPrincipalRequired)
	assert.ErrorIs(t, engine.Reject(ctx, "SN-700", ""), ErrPrincipalRequired)

	_, err = engine.GetPending(ctx, "SN-700")
	assert.NoError(t, err)
}

func TestDuplicateSerialIsAnIdentityConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	for i := 0; i < 2; i++ {
		id := uuid.New()
		store.assets[id] = Asset{ID: id, SN: "SN-DUP", AssetType: AssetTypeServer, Status: AssetStatusOnline}
	}
	engine, _ := newTestEngine(t, store)

	res, err := engine.Submit(ctx, serverReport("SN-DUP"), "agent-1")
	require.ErrorIs(t, err, ErrIdentityConflict)
	assert.Equal(t, DispositionAmbiguous, res.Disposition)

	pending, err := engine.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	store.pending["SN-DUP"] = PendingAsset{SN: "SN-DUP", AssetType: AssetTypeServer}
	_, err = engine.Approve(ctx, "SN-DUP", "alice")
	require.ErrorIs(t, err, ErrIdentityConflict)
	_, err = engine.GetPending(ctx, "SN-DUP")
	assert.NoError(t, err)
}

func TestApproveManyContainsFailures(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	for _, sn := range []string{"SN-801", "SN-802", "SN-803"} {
		_, err := engine.Submit(ctx, serverReport(sn), "agent-1")
		require.NoError(t, err)
	}

	result := engine.ApproveMany(ctx, []string{"SN-801", "SN-UNKNOWN", "SN-802", "SN-803"}, "alice")
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 4)
	assert.ErrorIs(t, result.Items[1].Err, ErrNoPendingAsset)
	for _, i := range []int{0, 2, 3} {
		assert.NoError(t, result.Items[i].Err)
		assert.NotNil(t, result.Items[i].AssetID)
	}

	assets, err := engine.ListAssets(ctx, AssetFilter{})
	require.NoError(t, err)
	assert.Len(t, assets, 3)
}

func TestRejectMany(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	_, err := engine.Submit(ctx, serverReport("SN-811"), "agent-1")
	require.NoError(t, err)

	result := engine.RejectMany(ctx, []string{"SN-811", "SN-811"}, "alice")
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Items[1].Err, ErrNoPendingAsset)
}

func TestListAssetsFilters(t *testing.T) {
	ctx := context.Background()
	engine, clock := newTestEngine(t, NewMemStore())

	submitAndApprove := func(raw map[string]any) {
		t.Helper()
		_, err := engine.Submit(ctx, raw, "agent-1")
		require.NoError(t, err)
		_, err = engine.Approve(ctx, raw["sn"].(string), "alice")
		require.NoError(t, err)
	}

	submitAndApprove(serverReport("SN-901"))
	start := clock.Now()
	clock.Advance(time.Hour)
	submitAndApprove(map[string]any{
		"asset_type":   "network_device",
		"sn":           "SW-902",
		"manufacturer": "Arista",
		"firmware":     "4.28",
	})
	clock.Advance(time.Hour)
	hp := serverReport("SN-903")
	hp["manufacturer"] = "HPE"
	submitAndApprove(hp)

	servers, err := engine.ListAssets(ctx, AssetFilter{AssetType: AssetTypeServer})
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "SN-901", servers[0].SN)
	assert.Equal(t, "SN-903", servers[1].SN)

	dell, err := engine.ListAssets(ctx, AssetFilter{Manufacturer: "dell inc."})
	require.NoError(t, err)
	require.Len(t, dell, 1)
	assert.Equal(t, "SN-901", dell[0].SN)

	window, err := engine.ListAssets(ctx, AssetFilter{
		TimeField: "c_time",
		Since:     start.Add(time.Minute),
		Until:     start.Add(90 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "SW-902", window[0].SN)
	assert.Equal(t, map[string]string{"firmware": "4.28"}, window[0].Extension)

	paged, err := engine.ListAssets(ctx, AssetFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "SW-902", paged[0].SN)
}

var errInjected = errors.New("injected fault")

// faultStore fails the nth write made inside a transaction.
type faultStore struct {
	*MemStore
	failAt int
	writes int
}

func (s *faultStore) Tx(ctx context.Context, fn func(Tx) error) error {
	return s.MemStore.Tx(ctx, func(tx Tx) error {
		return fn(&faultTx{Tx: tx, store: s})
	})
}

type faultTx struct {
	Tx
	store *faultStore
}

func (t *faultTx) step() error {
	t.store.writes++
	if t.store.writes == t.store.failAt {
		return errInjected
	}
	return nil
}

func (t *faultTx) DeletePending(ctx context.Context, sn string) (bool, error) {
	if err := t.step(); err != nil {
		return false, err
	}
	return t.Tx.DeletePending(ctx, sn)
}

func (t *faultTx) CreateAsset(ctx context.Context, a *Asset) error {
	if err := t.step(); err != nil {
		return err
	}
	return t.Tx.CreateAsset(ctx, a)
}

func (t *faultTx) UpdateAsset(ctx context.Context, a *Asset) error {
	if err := t.step(); err != nil {
		return err
	}
	return t.Tx.UpdateAsset(ctx, a)
}

func (t *faultTx) ReplaceComponents(ctx context.Context, id uuid.UUID, c Components) error {
	if err := t.step(); err != nil {
		return err
	}
	return t.Tx.ReplaceComponents(ctx, id, c)
}

func (t *faultTx) AppendEvent(ctx context.Context, e *Event) error {
	if err := t.step(); err != nil {
		return err
	}
	return t.Tx.AppendEvent(ctx, e)
}

type storeState struct {
	assets  []Asset
	pending []PendingAsset
	events  []Event
}

func captureState(t *testing.T, s Store) storeState {
	t.Helper()
	ctx := context.Background()
	assets, err := s.ListAssets(ctx, AssetFilter{})
	require.NoError(t, err)
	pending, err := s.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	events, err := s.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	return storeState{assets: assets, pending: pending, events: events}
}

func TestMergeIsAtomicUnderInjectedFaults(t *testing.T) {
	tests := []struct {
		name   string
		update bool
		writes int
	}{
		// create asset, components, remove pending, approved, merged
		{name: "new asset", writes: 5},
		// update asset, components, remove pending, approved, field_changed, merged
		{name: "update", update: true, writes: 6},
	}

	for _, tt := range tests {
		for failAt := 1; failAt <= tt.writes; failAt++ {
			t.Run(tt.name, func(t *testing.T) {
				ctx := context.Background()
				store := &faultStore{MemStore: NewMemStore()}
				engine, clock := newTestEngine(t, store)

				_, err := engine.Submit(ctx, serverReport("SN-ATOM"), "agent-1")
				require.NoError(t, err)
				if tt.update {
					_, err = engine.Approve(ctx, "SN-ATOM", "alice")
					require.NoError(t, err)
					clock.Advance(time.Hour)
					report := serverReport("SN-ATOM")
					report["ram"] = []any{map[string]any{"slot": "DIMM_C1", "capacity": 16.0}}
					_, err = engine.Submit(ctx, report, "agent-1")
					require.NoError(t, err)
				}

				before := captureState(t, store)
				store.writes = 0
				store.failAt = failAt

				_, err = engine.Approve(ctx, "SN-ATOM", "bob")
				require.ErrorIs(t, err, ErrTransactionFailure)
				require.ErrorIs(t, err, errInjected)
				assert.Equal(t, before, captureState(t, store))

				// The staged report survives and a retry goes through.
				store.failAt = 0
				_, err = engine.Approve(ctx, "SN-ATOM", "bob")
				require.NoError(t, err)
				assert.Equal(t, tt.writes, store.writes-failAt)
			})
		}
	}
}

// gateStore blocks transactions on one sn until released.
type gateStore struct {
	*MemStore
	sn      string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gateStore) Tx(ctx context.Context, fn func(Tx) error) error {
	return s.MemStore.Tx(ctx, func(tx Tx) error {
		return fn(&gateTx{Tx: tx, store: s})
	})
}

type gateTx struct {
	Tx
	store *gateStore
}

func (t *gateTx) LockIdentity(ctx context.Context, sn string) error {
	if sn == t.store.sn {
		t.store.once.Do(func() { close(t.store.entered) })
		select {
		case <-t.store.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.Tx.LockIdentity(ctx, sn)
}

func TestSubmissionsForDistinctSerialsDoNotBlock(t *testing.T) {
	store := &gateStore{
		MemStore: NewMemStore(),
		sn:       "SN-SLOW",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	engine, _ := newTestEngine(t, store)

	slowDone := make(chan error, 1)
	go func() {
		_, err := engine.Submit(context.Background(), serverReport("SN-SLOW"), "agent-1")
		slowDone <- err
	}()
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := engine.Submit(ctx, serverReport("SN-FAST"), "agent-2")
	require.NoError(t, err)
	assert.Equal(t, DispositionNew, res.Disposition)

	// A second submission for the held sn waits for the lock.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	_, err = engine.Submit(waitCtx, serverReport("SN-SLOW"), "agent-3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, <-slowDone)
}

func TestConcurrentSubmissionsForOneSerial(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, NewMemStore())

	var wg sync.WaitGroup
	results := make(chan SubmitResult, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.Submit(ctx, serverReport("SN-RACE"), "agent-1")
			assert.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	fresh := 0
	for res := range results {
		if !res.Refresh {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	pending, err := engine.ListPending(ctx, PendingFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Len(t, eventsOf(t, engine, "SN-RACE", EventSubmitted), 1)
	assert.Equal(t, 0, engine.locks.size())
}

type memArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *memArchiver) Archive(_ context.Context, sn string, _ map[string]any, at time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := archiveKey(sn, at, false)
	a.keys = append(a.keys, key)
	return key, nil
}

func TestSubmitArchivesStagedReportsOnly(t *testing.T) {
	ctx := context.Background()
	archiver := &memArchiver{}
	engine, _ := newTestEngine(t, NewMemStore(), WithArchiver(archiver))

	res, err := engine.Submit(ctx, serverReport("SN-ARC"), "agent-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Archive)

	_, err = engine.Approve(ctx, "SN-ARC", "alice")
	require.NoError(t, err)
	res, err = engine.Submit(ctx, serverReport("SN-ARC"), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, DispositionNoop, res.Disposition)
	assert.Empty(t, res.Archive)

	assert.Len(t, archiver.keys, 1)
}
