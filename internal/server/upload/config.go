package upload

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/lumensite/lumen/internal/chunkplan"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

const (
	DefaultMinChunkSize       = int64(256 << 10) // 256 KiB
	DefaultMaxChunkSize       = int64(64 << 20)  // 64 MiB
	DefaultMaxFileSize        = int64(5 << 30)   // 5 GiB
	DefaultSessionTTL         = 24 * time.Hour
	DefaultCompletedRetention = time.Hour
	DefaultSweepInterval      = 5 * time.Minute
	DefaultMaxOpenSessions    = 1000
	DefaultMinFreeBytes       = int64(512 << 20) // 512 MiB
)

type Config struct {
	ChunkSize          int64         `mapstructure:"chunk_size"`
	MinChunkSize       int64         `mapstructure:"min_chunk_size"`
	MaxChunkSize       int64         `mapstructure:"max_chunk_size"`
	MaxFileSize        int64         `mapstructure:"max_file_size"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	MaxOpenSessions    int           `mapstructure:"max_open_sessions"`
	MinFreeBytes       int64         `mapstructure:"min_free_bytes"`
	AllowedNames       []string      `mapstructure:"allowed_names"`
	SessionStore       string        `mapstructure:"session_store"`
	DBPath             string        `mapstructure:"db_path"`
	Backend            string        `mapstructure:"backend"`
	StagingDir         string        `mapstructure:"staging_dir"`
	PublishDir         string        `mapstructure:"publish_dir"`
	S3                 S3Config      `mapstructure:"s3"`
}

// DefaultConfig returns a local-disk configuration rooted at dataDir
func DefaultConfig(dataDir string) *Config {
	return &Config{
		ChunkSize:          chunkplan.DefaultChunkSize,
		MinChunkSize:       DefaultMinChunkSize,
		MaxChunkSize:       DefaultMaxChunkSize,
		MaxFileSize:        DefaultMaxFileSize,
		SessionTTL:         DefaultSessionTTL,
		CompletedRetention: DefaultCompletedRetention,
		SweepInterval:      DefaultSweepInterval,
		MaxOpenSessions:    DefaultMaxOpenSessions,
		MinFreeBytes:       DefaultMinFreeBytes,
		SessionStore:       SessionStoreSQLite,
		DBPath:             filepath.Join(dataDir, "uploads.db"),
		Backend:            BackendLocal,
		StagingDir:         filepath.Join(dataDir, "staging"),
		PublishDir:         filepath.Join(dataDir, "files"),
	}
}

func (c *Config) Validate() error {
	if c.MinChunkSize <= 0 || c.MaxChunkSize < c.MinChunkSize {
		return fmt.Errorf("upload: invalid chunk size bounds [%d, %d]", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.ChunkSize < c.MinChunkSize || c.ChunkSize > c.MaxChunkSize {
		return fmt.Errorf("upload: chunk_size %s outside [%s, %s]",
			humanize.IBytes(uint64(max(c.ChunkSize, 0))), humanize.IBytes(uint64(c.MinChunkSize)), humanize.IBytes(uint64(c.MaxChunkSize)))
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("upload: max_file_size must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("upload: session_ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("upload: sweep_interval must be positive")
	}
	if c.MaxOpenSessions < 0 || c.MinFreeBytes < 0 || c.CompletedRetention < 0 {
		return fmt.Errorf("upload: max_open_sessions, min_free_bytes and completed_retention must not be negative")
	}
	for _, pattern := range c.AllowedNames {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("upload: invalid allowed_names pattern %q", pattern)
		}
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("upload: db_path is required for the sqlite session store")
		}
	default:
		return fmt.Errorf("upload: unknown session_store %q", c.SessionStore)
	}

	switch c.Backend {
	case BackendLocal:
		if c.StagingDir == "" || c.PublishDir == "" {
			return fmt.Errorf("upload: staging_dir and publish_dir are required for the local backend")
		}
	case BackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("upload: s3: %w", err)
		}
		if c.MaxFileSize > maxS3CopySize {
			return fmt.Errorf("upload: max_file_size above %s is not supported by the s3 backend", humanize.IBytes(uint64(maxS3CopySize)))
		}
	default:
		return fmt.Errorf("upload: unknown backend %q", c.Backend)
	}
	return nil
}
