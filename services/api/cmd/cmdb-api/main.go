package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cmdb/pkg/bus"
	"cmdb/pkg/db"
	"cmdb/pkg/s3"
	"cmdb/pkg/telemetry"
	"cmdb/services/api"
	"cmdb/services/api/internal/config"
	"cmdb/services/inventory"
)

const serviceName = "cmdb-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}
	log.Logger = logger

	cleanup, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init otel")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown otel")
		}
	}()

	store, readiness, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("open store")
	}
	defer closeStore()

	opts := []inventory.Option{inventory.WithLogger(logger)}

	var b *bus.Bus
	if cfg.NATSURL != "" {
		b, err = bus.New(cfg.NATSURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect nats")
		}
		defer b.Close()
		if err := b.EnsureStream(inventory.StreamName, inventory.StreamSubjects); err != nil {
			logger.Fatal().Err(err).Msg("ensure stream")
		}
		opts = append(opts, inventory.WithPublisher(b))
		readiness = append(readiness, func(context.Context) error {
			if !b.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		})
	}

	if cfg.ArchiveEnabled() {
		objects, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			logger.Fatal().Err(err).Msg("init s3")
		}
		if err := objects.BucketExists(ctx, cfg.ArchiveBucket); err != nil {
			logger.Fatal().Err(err).Str("bucket", cfg.ArchiveBucket).Msg("archive bucket")
		}
		archiver, err := inventory.NewObjectArchiver(objects, cfg.ArchiveBucket, cfg.ArchiveRecipient)
		if err != nil {
			logger.Fatal().Err(err).Msg("init archiver")
		}
		opts = append(opts, inventory.WithArchiver(archiver))
	}

	engine, err := inventory.NewEngine(store, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("init engine")
	}
	if err := engine.SyncPendingGauge(ctx); err != nil {
		logger.Warn().Err(err).Msg("sync pending gauge")
	}

	if b != nil {
		ingestor, err := inventory.NewIngestor(engine, b, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("init ingestor")
		}
		if err := ingestor.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start ingestor")
		}
		defer func() { _ = ingestor.Close() }()
	}

	handlers, err := api.New(engine, api.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		IngestRate:     cfg.IngestRate,
		RequestTimeout: cfg.RequestTimeout,
		Readiness:      readiness,
		Middleware:     []func(http.Handler) http.Handler{telemetry.Middleware(serviceName, logger)},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init api")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlers.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("starting " + serviceName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
}

func openStore(ctx context.Context, cfg config.Config) (inventory.Store, []api.ReadinessCheck, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return inventory.NewMemStore(), nil, func() {}, nil
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	orm, err := db.OpenORM(ctx, cfg.DBDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	store, err := inventory.NewGormStore(orm, pool)
	if err != nil {
		pool.Close()
		_ = db.CloseORM(orm)
		return nil, nil, nil, err
	}
	closer := func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
		pool.Close()
	}
	return store, nil, closer, nil
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
