package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"cmdb/pkg/s3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds runtime configuration for the CMDB API service.
type Config struct {
	Addr           string        `env:"CMDB_ADDR,default=:8080"`
	Store          string        `env:"CMDB_STORE,default=postgres"`
	DBDSN          string        `env:"CMDB_DB_DSN"`
	NATSURL        string        `env:"CMDB_NATS_URL"`
	AllowedOrigins []string      `env:"CMDB_CORS_ORIGINS,default=*"`
	IngestRate     int           `env:"CMDB_INGEST_RATE,default=600"`
	RequestTimeout time.Duration `env:"CMDB_REQUEST_TIMEOUT,default=30s"`
	LogLevel       string        `env:"CMDB_LOG_LEVEL,default=info"`
	LogFormat      string        `env:"CMDB_LOG_FORMAT,default=json"`
	OTLPEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	ArchiveBucket    string `env:"CMDB_ARCHIVE_BUCKET"`
	ArchiveRecipient string `env:"CMDB_ARCHIVE_RECIPIENT"`
	S3               s3.Config
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith populates a Config from lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("CMDB_DB_DSN is required for the %s store", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("CMDB_STORE must be %s or %s, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.ArchiveBucket != "" && !c.S3.Enabled() {
		return fmt.Errorf("CMDB_ARCHIVE_BUCKET requires S3_ENDPOINT")
	}
	return nil
}

// ArchiveEnabled reports whether staged reports should be written to object storage.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}
