package upload

import (
	"context"
	"fmt"
	"log/slog"
)

// NewStorage builds the chunk store and publisher for the configured backend
func NewStorage(ctx context.Context, cfg *Config) (ChunkStore, Publisher, error) {
	switch cfg.Backend {
	case BackendS3:
		client, err := newS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("upload storage", "backend", BackendS3, "bucket", cfg.S3.BucketName, "endpoint", cfg.S3.Endpoint)
		return NewS3ChunkStore(client, &cfg.S3), NewS3Publisher(client, &cfg.S3), nil

	case BackendLocal, "":
		chunks, err := NewLocalChunkStore(cfg.StagingDir)
		if err != nil {
			return nil, nil, err
		}
		pub, err := NewLocalPublisher(cfg.PublishDir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("upload storage", "backend", BackendLocal, "staging", cfg.StagingDir, "publish", cfg.PublishDir)
		return chunks, pub, nil

	default:
		return nil, nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}
