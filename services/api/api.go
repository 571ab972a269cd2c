package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cmdb/services/inventory"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultIngestRate     = 600
)

// Engine is the part of the inventory engine the HTTP layer drives.
type Engine interface {
	Submit(ctx context.Context, raw map[string]any, agent string) (inventory.SubmitResult, error)
	ListPending(ctx context.Context, filter inventory.PendingFilter) ([]inventory.PendingSummary, error)
	GetPending(ctx context.Context, sn string) (inventory.PendingAsset, error)
	Approve(ctx context.Context, sn, principal string) (uuid.UUID, error)
	ApproveMany(ctx context.Context, sns []string, principal string) inventory.BatchResult
	Reject(ctx context.Context, sn, principal string) error
	RejectMany(ctx context.Context, sns []string, principal string) inventory.BatchResult
	GetAsset(ctx context.Context, id uuid.UUID) (inventory.Asset, error)
	FindAssetBySN(ctx context.Context, sn string) (inventory.Asset, error)
	ListAssets(ctx context.Context, filter inventory.AssetFilter) ([]inventory.Asset, error)
	ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error)
	Ping(ctx context.Context) error
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options controls runtime behaviour for the API handlers.
type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	// IngestRate caps report submissions per client IP per minute.
	IngestRate     int
	RequestTimeout time.Duration
	Readiness      []ReadinessCheck
	// Middleware wraps the whole router, e.g. tracing and access logs.
	Middleware []func(http.Handler) http.Handler
}

// API exposes the engine over HTTP.
type API struct {
	engine Engine
	opts   Options
	log    zerolog.Logger
}

// New initialises the API layer with defaults applied to opts.
func New(engine Engine, opts Options) (*API, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	opts.RequestTimeout = defaultDuration(opts.RequestTimeout, defaultRequestTimeout)
	if opts.IngestRate <= 0 {
		opts.IngestRate = defaultIngestRate
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &API{engine: engine, opts: opts, log: opts.Logger}, nil
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(a.opts.Middleware...)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerAgent, headerPrincipal},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Agents submit here; everything else is operator traffic.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(a.opts.IngestRate, time.Minute))
		r.Post("/v1/reports", a.handleSubmitReport)
		r.Post("/assets/report", a.handleLegacyReport)
		r.Post("/assets/report/", a.handleLegacyReport)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pending", a.handleListPending)
		r.Post("/pending/approve", a.handleApproveMany)
		r.Post("/pending/reject", a.handleRejectMany)
		r.Get("/pending/{sn}", a.handleGetPending)
		r.Post("/pending/{sn}/approve", a.handleApprove)
		r.Post("/pending/{sn}/reject", a.handleReject)

		r.Get("/assets", a.handleListAssets)
		r.Get("/assets/by-sn/{sn}", a.handleAssetBySN)
		r.Get("/assets/{id}", a.handleGetAsset)

		r.Get("/events", a.handleListEvents)
	})

	return r
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := append([]ReadinessCheck{a.engine.Ping}, a.opts.Readiness...)
	for _, check := range checks {
		if err := check(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
