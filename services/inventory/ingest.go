package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cmdb/pkg/bus"
)

const (
	// AgentReportsSubject carries hardware reports from agents that push over NATS.
	AgentReportsSubject = "cmdb.agent.reports"
	ingestDurable       = "cmdb-intake"

	// StreamName is the JetStream stream holding every cmdb.> subject.
	StreamName     = "CMDB"
	StreamSubjects = "cmdb.>"
)

// ReportEnvelope is the bus message an agent publishes.
type ReportEnvelope struct {
	Agent  string         `json:"agent"`
	Report map[string]any `json:"report"`
	SentAt time.Time      `json:"sent_at"`
}

// Subscriber is satisfied by *bus.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn bus.Handler) (io.Closer, error)
}

// Ingestor feeds reports arriving on the bus into the engine.
type Ingestor struct {
	engine *Engine
	bus    Subscriber
	log    zerolog.Logger

	subMu sync.Mutex
	sub   io.Closer
}

// NewIngestor constructs an Ingestor for the provided dependencies.
func NewIngestor(engine *Engine, sub Subscriber, log zerolog.Logger) (*Ingestor, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if sub == nil {
		return nil, errors.New("bus is required")
	}

	return &Ingestor{engine: engine, bus: sub, log: log}, nil
}

// Start subscribes to agent reports and processes them until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	if i == nil {
		return errors.New("nil ingestor")
	}

	sub, err := i.bus.Subscribe(ctx, AgentReportsSubject, ingestDurable, i.handleReport)
	if err != nil {
		return err
	}

	i.subMu.Lock()
	i.sub = sub
	i.subMu.Unlock()

	return nil
}

// Close stops the underlying subscription if it was created.
func (i *Ingestor) Close() error {
	if i == nil {
		return nil
	}

	i.subMu.Lock()
	defer i.subMu.Unlock()

	if i.sub == nil {
		return nil
	}
	err := i.sub.Close()
	i.sub = nil
	return err
}

// handleReport returns an error only when redelivery may succeed. A report
// that cannot be decoded or normalized, or that hits an identity conflict,
// is acknowledged and logged. So is one that panics the engine, since
// redelivering it would panic again.
func (i *Ingestor) handleReport(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.log.Error().
				Interface("panic", r).
				Int("bytes", len(data)).
				Msg("drop report that panicked the engine")
			err = nil
		}
	}()

	var env ReportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		i.log.Warn().Err(err).Msg("drop undecodable report message")
		return nil
	}

	res, err := i.engine.Submit(ctx, env.Report, env.Agent)
	switch {
	case err == nil:
		i.log.Debug().
			Str("sn", res.SN).
			Str("agent", env.Agent).
			Str("disposition", string(res.Disposition)).
			Msg("bus report handled")
		return nil
	case errors.Is(err, ErrMalformedReport), errors.Is(err, ErrIdentityConflict):
		i.log.Warn().Err(err).Str("agent", env.Agent).Msg("drop report")
		return nil
	default:
		return err
	}
}
