package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"CMDB_DB_DSN": "postgres://cmdb@localhost/cmdb",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 600, cfg.IngestRate)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadValidates(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without dsn": {},
		"unknown store":        {"CMDB_STORE": "sqlite"},
		"archive without s3":   {"CMDB_STORE": "memory", "CMDB_ARCHIVE_BUCKET": "reports"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}

func TestLoadArchive(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"CMDB_STORE":          "memory",
		"CMDB_ARCHIVE_BUCKET": "reports",
		"S3_ENDPOINT":         "http://minio:9000",
		"S3_ACCESS_KEY":       "minio",
		"S3_SECRET_KEY":       "minio123",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.ArchiveEnabled())
	assert.True(t, cfg.S3.ForcePathStyle)
}
