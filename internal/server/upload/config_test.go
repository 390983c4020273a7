package upload

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/lib/lumen")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("/var/lib/lumen", "staging"), cfg.StagingDir)
	assert.Equal(t, filepath.Join("/var/lib/lumen", "files"), cfg.PublishDir)
	assert.EqualValues(t, 5<<20, cfg.ChunkSize)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, filepath.Join("/var/lib/lumen", "uploads.db"), cfg.DBPath)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "chunk size below min", mutate: func(c *Config) { c.ChunkSize = 1 }},
		{name: "inverted bounds", mutate: func(c *Config) { c.MaxChunkSize = c.MinChunkSize - 1 }},
		{name: "zero ttl", mutate: func(c *Config) { c.SessionTTL = 0 }},
		{name: "zero sweep", mutate: func(c *Config) { c.SweepInterval = 0 }},
		{name: "negative sessions", mutate: func(c *Config) { c.MaxOpenSessions = -1 }},
		{name: "bad pattern", mutate: func(c *Config) { c.AllowedNames = []string{"[a-"} }},
		{name: "sqlite without db", mutate: func(c *Config) { c.DBPath = "" }},
		{name: "unknown store", mutate: func(c *Config) { c.SessionStore = "etcd" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "ftp" }},
		{name: "local without dirs", mutate: func(c *Config) { c.StagingDir = "" }},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Backend = BackendS3 }},
		{name: "s3 oversized files", mutate: func(c *Config) {
			c.Backend = BackendS3
			c.S3 = S3Config{BucketName: "b", Region: "us-east-1", AccessKey: "k", SecretKey: "s"}
			c.MaxFileSize = 6 << 30
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ValidateS3(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = BackendS3
	cfg.S3 = S3Config{BucketName: "uploads", Region: "us-east-1", AccessKey: "key", SecretKey: "secret"}
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "uploads/abc/000001.chunk", cfg.S3.key("uploads", "abc", chunkName(1)))
	cfg.S3.Prefix = "/tenant-a/"
	assert.Equal(t, "tenant-a/files/x.bin", cfg.S3.key("files", "x.bin"))
}
