package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultAgent = "agent"

// Engine is the intake and reconciliation engine. All operations that touch
// one sn are mutually exclusive; operations on different serials run in
// parallel.
type Engine struct {
	store     Store
	locks     *identityLocks
	staging   Staging
	recorder  Recorder
	now       func() time.Time
	log       zerolog.Logger
	tracer    trace.Tracer
	archiver  Archiver
	publisher Publisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithArchiver keeps the raw document of every staged report.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithPublisher announces committed transitions on the bus.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine constructs an Engine over store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	e := &Engine{
		store:  store,
		locks:  newIdentityLocks(),
		now:    func() time.Time { return time.Now().UTC() },
		log:    zerolog.Nop(),
		tracer: otel.Tracer("cmdb/inventory"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.staging = Staging{now: e.now}
	e.recorder = Recorder{now: e.now}
	return e, nil
}

// SubmitResult is returned to the submitting agent.
type SubmitResult struct {
	SN          string      `json:"sn"`
	Disposition Disposition `json:"disposition"`
	Staged      bool        `json:"staged"`
	Refresh     bool        `json:"refresh,omitempty"`
	AssetID     *uuid.UUID  `json:"asset_id,omitempty"`
	Archive     string      `json:"archive,omitempty"`
}

// Submit normalizes a raw report and classifies it.
func (e *Engine) Submit(ctx context.Context, raw map[string]any, agent string) (SubmitResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Submit")
	defer span.End()

	report, err := Normalize(raw)
	if err != nil {
		countReport("", err)
		endSpan(span, err)
		e.log.Info().Err(err).Str("agent", agent).Msg("report rejected")
		return SubmitResult{}, err
	}

	result, err := e.SubmitReport(ctx, report, agent)
	if err != nil {
		endSpan(span, err)
		return result, err
	}

	if result.Staged && e.archiver != nil {
		key, err := e.archiver.Archive(context.WithoutCancel(ctx), report.SN, raw, e.now())
		if err != nil {
			e.log.Warn().Err(err).Str("sn", report.SN).Msg("archive report")
		} else {
			result.Archive = key
		}
	}
	return result, nil
}

// SubmitReport classifies an already normalized report and stages it when it
// is NEW or an UPDATE.
func (e *Engine) SubmitReport(ctx context.Context, report Report, agent string) (SubmitResult, error) {
	if strings.TrimSpace(agent) == "" {
		agent = defaultAgent
	}
	sn := report.SN
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("cmdb.sn", sn))

	unlock, err := e.locks.Lock(ctx, sn)
	if err != nil {
		return SubmitResult{}, err
	}
	defer unlock()

	var decision Decision
	err = e.store.Tx(ctx, func(tx Tx) error {
		if err := tx.LockIdentity(ctx, sn); err != nil {
			return err
		}
		res, err := Resolve(ctx, tx, sn)
		if err != nil {
			return err
		}
		if decision, err = Classify(res, report); err != nil {
			return err
		}
		if !decision.Staged() {
			return nil
		}
		if _, err := e.staging.Stage(ctx, tx, res.Pending, report, agent, decision.AssetID); err != nil {
			return err
		}
		if decision.Refresh {
			return nil
		}
		detail := map[string]any{"disposition": string(decision.Disposition)}
		if len(decision.Changes) > 0 {
			detail["changed"] = changedFields(decision.Changes)
		}
		_, err = e.recorder.Record(ctx, tx, EventSubmitted, EventKey{SN: sn, AssetID: decision.AssetID}, agent, detail)
		return err
	})
	err = txFailure(err)
	if errors.Is(err, ErrIdentityConflict) {
		decision.Disposition = DispositionAmbiguous
		e.log.Error().Err(err).Str("sn", sn).Msg("identity conflict, manual remediation required")
	}
	countReport(decision.Disposition, err)
	if err != nil {
		return SubmitResult{SN: sn, Disposition: decision.Disposition}, err
	}

	result := SubmitResult{
		SN:          sn,
		Disposition: decision.Disposition,
		Staged:      decision.Staged(),
		Refresh:     decision.Refresh,
		AssetID:     decision.AssetID,
	}
	span.SetAttributes(attribute.String("cmdb.disposition", string(result.Disposition)))
	e.log.Info().
		Str("sn", sn).
		Str("agent", agent).
		Str("disposition", string(result.Disposition)).
		Bool("refresh", result.Refresh).
		Msg("report classified")

	if result.Staged {
		if !result.Refresh {
			pendingGauge.Inc()
		}
		e.notify(ctx, SubjectReportStaged, StagedNotice{
			SN:          sn,
			AssetType:   report.AssetType,
			Disposition: result.Disposition,
			Refresh:     result.Refresh,
			Agent:       agent,
			AssetID:     result.AssetID,
			At:          e.now(),
		})
	}
	return result, nil
}

// Approve merges the report staged for sn into the canonical store and
// returns the asset id. A second approval of the same sn fails with
// ErrNoPendingAsset and changes nothing.
func (e *Engine) Approve(ctx context.Context, sn, principal string) (uuid.UUID, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Approve", trace.WithAttributes(attribute.String("cmdb.sn", sn)))
	defer span.End()

	principal = strings.TrimSpace(principal)
	if principal == "" {
		return uuid.Nil, ErrPrincipalRequired
	}

	unlock, err := e.locks.Lock(ctx, sn)
	if err != nil {
		return uuid.Nil, err
	}
	defer unlock()

	start := time.Now()
	var (
		merged  Asset
		created bool
		changes map[string]map[string]any
	)
	err = e.store.Tx(ctx, func(tx Tx) error {
		if err := tx.LockIdentity(ctx, sn); err != nil {
			return err
		}
		pending, err := e.staging.Get(ctx, tx, sn)
		if err != nil {
			return err
		}
		res, err := Resolve(ctx, tx, sn)
		if err != nil {
			return err
		}

		now := e.now()
		var current *Asset
		if len(res.Assets) == 1 {
			current = &res.Assets[0]
		}
		merged = applyReport(current, pending.Report)
		merged.ApprovedBy = principal
		merged.MTime = now
		if current == nil {
			created = true
			merged.ID = uuid.New()
			merged.CTime = now
			if err := tx.CreateAsset(ctx, &merged); err != nil {
				return err
			}
		} else {
			merged.ID = current.ID
			merged.CTime = current.CTime
			changes = computeDiff(assetSnapshot(*current), assetSnapshot(merged))
			if err := tx.UpdateAsset(ctx, &merged); err != nil {
				return err
			}
		}
		if err := tx.ReplaceComponents(ctx, merged.ID, merged.Components); err != nil {
			return err
		}
		if err := e.staging.Remove(ctx, tx, sn); err != nil {
			return err
		}

		id := merged.ID
		key := EventKey{SN: sn, AssetID: &id}
		disposition := DispositionUpdate
		if created {
			disposition = DispositionNew
		}
		if _, err := e.recorder.Record(ctx, tx, EventApproved, key, principal, map[string]any{
			"disposition":  string(disposition),
			"submitted_by": pending.SubmittedBy,
		}); err != nil {
			return err
		}
		if len(changes) > 0 {
			if _, err := e.recorder.Record(ctx, tx, EventFieldChanged, key, principal, map[string]any{
				"changes": changes,
			}); err != nil {
				return err
			}
		}
		_, err = e.recorder.Record(ctx, tx, EventMerged, key, principal, map[string]any{
			"created": created,
			"cpus":    len(merged.CPUs),
			"ram":     len(merged.RAM),
			"disks":   len(merged.Disks),
			"nics":    len(merged.NICs),
		})
		return err
	})
	err = txFailure(err)
	mergeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.countDecisionFailure(err)
		if errors.Is(err, ErrNoPendingAsset) {
			e.log.Info().Str("sn", sn).Str("principal", principal).Msg("approve: already resolved")
		} else {
			endSpan(span, err)
			e.log.Error().Err(err).Str("sn", sn).Str("principal", principal).Msg("approve failed")
		}
		return uuid.Nil, err
	}

	approvalsTotal.WithLabelValues(outcomeApproved).Inc()
	pendingGauge.Dec()
	span.SetAttributes(attribute.String("cmdb.asset_id", merged.ID.String()))
	e.log.Info().
		Str("sn", sn).
		Str("asset_id", merged.ID.String()).
		Str("principal", principal).
		Bool("created", created).
		Msg("asset merged")

	id := merged.ID
	e.notify(ctx, SubjectAssetMerged, DecisionNotice{
		SN:        sn,
		AssetID:   &id,
		Principal: principal,
		Created:   created,
		Changed:   changedFields(changes),
		At:        merged.MTime,
	})
	return merged.ID, nil
}

// Reject discards the report staged for sn. The canonical store is not touched.
func (e *Engine) Reject(ctx context.Context, sn, principal string) error {
	ctx, span := e.tracer.Start(ctx, "inventory.Reject", trace.WithAttributes(attribute.String("cmdb.sn", sn)))
	defer span.End()

	principal = strings.TrimSpace(principal)
	if principal == "" {
		return ErrPrincipalRequired
	}

	unlock, err := e.locks.Lock(ctx, sn)
	if err != nil {
		return err
	}
	defer unlock()

	var pending PendingAsset
	err = e.store.Tx(ctx, func(tx Tx) error {
		if err := tx.LockIdentity(ctx, sn); err != nil {
			return err
		}
		var err error
		if pending, err = e.staging.Get(ctx, tx, sn); err != nil {
			return err
		}
		if err := e.staging.Remove(ctx, tx, sn); err != nil {
			return err
		}
		_, err = e.recorder.Record(ctx, tx, EventRejected, EventKey{SN: sn, AssetID: pending.AssetID}, principal, map[string]any{
			"submitted_by": pending.SubmittedBy,
		})
		return err
	})
	err = txFailure(err)
	if err != nil {
		e.countDecisionFailure(err)
		if !errors.Is(err, ErrNoPendingAsset) {
			endSpan(span, err)
			e.log.Error().Err(err).Str("sn", sn).Str("principal", principal).Msg("reject failed")
		}
		return err
	}

	approvalsTotal.WithLabelValues(outcomeRejected).Inc()
	pendingGauge.Dec()
	e.log.Info().Str("sn", sn).Str("principal", principal).Msg("pending asset rejected")
	e.notify(ctx, SubjectPendingRejected, DecisionNotice{
		SN:        sn,
		AssetID:   pending.AssetID,
		Principal: principal,
		At:        e.now(),
	})
	return nil
}

// SyncPendingGauge sets the pending gauge from the store. Called at startup.
func (e *Engine) SyncPendingGauge(ctx context.Context) error {
	pending, err := e.store.ListPending(ctx, PendingFilter{})
	if err != nil {
		return err
	}
	pendingGauge.Set(float64(len(pending)))
	return nil
}

func (e *Engine) countDecisionFailure(err error) {
	if errors.Is(err, ErrNoPendingAsset) {
		approvalsTotal.WithLabelValues(outcomeResolved).Inc()
		return
	}
	approvalsTotal.WithLabelValues(outcomeFailed).Inc()
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
