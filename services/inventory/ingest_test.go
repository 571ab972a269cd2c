package inventory

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdb/pkg/bus"
)

type fakeSubscriber struct {
	subject string
	durable string
	handler bus.Handler
	closed  bool
}

func (f *fakeSubscriber) Subscribe(_ context.Context, subj, durable string, fn bus.Handler) (io.Closer, error) {
	f.subject, f.durable, f.handler = subj, durable, fn
	return f, nil
}

func (f *fakeSubscriber) Close() error {
	f.closed = true
	return nil
}

func envelope(t *testing.T, agent string, report map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(ReportEnvelope{Agent: agent, Report: report})
	require.NoError(t, err)
	return data
}

func TestIngestorHandlesBusReports(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{MemStore: NewMemStore()}
	engine, _ := newTestEngine(t, store)
	sub := &fakeSubscriber{}

	ingestor, err := NewIngestor(engine, sub, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ingestor.Start(ctx))
	assert.Equal(t, AgentReportsSubject, sub.subject)
	assert.Equal(t, ingestDurable, sub.durable)

	require.NoError(t, sub.handler(ctx, envelope(t, "bus-agent", serverReport("SN-BUS"))))
	pending, err := engine.GetPending(ctx, "SN-BUS")
	require.NoError(t, err)
	assert.Equal(t, "bus-agent", pending.SubmittedBy)

	// Redelivery cannot fix these, so they are acknowledged.
	assert.NoError(t, sub.handler(ctx, []byte("{not json")))
	assert.NoError(t, sub.handler(ctx, envelope(t, "bus-agent", map[string]any{"asset_type": "server"})))

	// Storage failures are handed back for redelivery.
	store.writes, store.failAt = 0, 1
	err = sub.handler(ctx, envelope(t, "bus-agent", serverReport("SN-BUS-2")))
	assert.ErrorIs(t, err, ErrTransactionFailure)

	require.NoError(t, ingestor.Close())
	assert.True(t, sub.closed)
	require.NoError(t, ingestor.Close())
}

// panicStore blows up inside every transaction.
type panicStore struct {
	*MemStore
}

func (s *panicStore) Tx(context.Context, func(Tx) error) error {
	panic("storage driver bug")
}

func TestIngestorAcksReportsThatPanic(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &panicStore{MemStore: NewMemStore()})
	sub := &fakeSubscriber{}

	ingestor, err := NewIngestor(engine, sub, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ingestor.Start(ctx))

	assert.NotPanics(t, func() {
		assert.NoError(t, sub.handler(ctx, envelope(t, "bus-agent", serverReport("SN-PANIC"))))
	})
	assert.Equal(t, 0, engine.locks.size())

	// An oversized legacy summary is rejected before it can allocate.
	huge := map[string]any{"asset_type": "server", "sn": "SN-HUGE", "cpu_count": 1e19}
	assert.NoError(t, sub.handler(ctx, envelope(t, "bus-agent", huge)))
}

func TestNewIngestorValidates(t *testing.T) {
	engine, _ := newTestEngine(t, NewMemStore())
	_, err := NewIngestor(nil, &fakeSubscriber{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewIngestor(engine, nil, zerolog.Nop())
	assert.Error(t, err)
}
