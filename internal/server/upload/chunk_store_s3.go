package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3ChunkStore stages chunks as objects: <prefix>/uploads/<session id>/<index>.chunk
type S3ChunkStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   *S3Config
}

func NewS3ChunkStore(client *s3.Client, cfg *S3Config) *S3ChunkStore {
	return &S3ChunkStore{
		client:   client,
		uploader: newS3Uploader(client),
		config:   cfg,
	}
}

func (s *S3ChunkStore) Stage(ctx context.Context, w *ChunkWrite) (StagedChunk, error) {
	if err := validateSessionID(w.SessionID); err != nil {
		return nil, err
	}

	staged := &s3StagedChunk{
		store:      s,
		stagingKey: s.config.key("uploads", w.SessionID, ".staging", uuid.NewString()),
		key:        s.chunkKey(w.SessionID, w.Index),
	}
	body := newVerifyingReader(w.Body, w.Size, w.Checksum, ErrChunkSizeMismatch)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(staged.stagingKey),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	})
	if err == nil {
		err = body.Verify()
	} else if verr := body.Failure(); verr != nil {
		// the uploader wraps reader errors, report a verification failure as itself
		err = verr
	} else {
		err = storageErr(err)
	}
	if err != nil {
		staged.Discard()
		return nil, err
	}
	return staged, nil
}

// s3StagedChunk is an object under the session's staging prefix
type s3StagedChunk struct {
	store      *S3ChunkStore
	stagingKey string
	key        string
}

func (c *s3StagedChunk) Commit(ctx context.Context) error {
	cfg := c.store.config
	if _, err := c.store.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(cfg.BucketName),
		Key:        aws.String(c.key),
		CopySource: aws.String(cfg.BucketName + "/" + url.PathEscape(c.stagingKey)),
	}); err != nil {
		return fmt.Errorf("%w: copy to %s: %w", ErrStorageWrite, c.key, err)
	}
	c.Discard()
	return nil
}

func (c *s3StagedChunk) Discard() {
	if _, err := c.store.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(c.store.config.BucketName),
		Key:    aws.String(c.stagingKey),
	}); err != nil && !isS3NotFound(err) {
		slog.Warn("s3 chunk: delete staging object", "key", c.stagingKey, "error", err)
	}
}

func (s *S3ChunkStore) Get(ctx context.Context, sessionID string, index uint32) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(s.chunkKey(sessionID, index)),
	})
	if isS3NotFound(err) {
		return nil, fmt.Errorf("%w: chunk %d of %s", ErrNotFound, index, sessionID)
	} else if err != nil {
		return nil, fmt.Errorf("get chunk %d of %s: %w", index, sessionID, err)
	}
	return resp.Body, nil
}

func (s *S3ChunkStore) Size(ctx context.Context, sessionID string, index uint32) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(s.chunkKey(sessionID, index)),
	})
	if isS3NotFound(err) {
		return 0, fmt.Errorf("%w: chunk %d of %s", ErrNotFound, index, sessionID)
	} else if err != nil {
		return 0, fmt.Errorf("head chunk %d of %s: %w", index, sessionID, err)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

func (s *S3ChunkStore) DeleteAll(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.BucketName),
		Prefix: aws.String(s.sessionPrefix(sessionID)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list chunks of %s: %w", sessionID, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.config.BucketName),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", sessionID, err)
		}
	}
	return nil
}

func (s *S3ChunkStore) sessionPrefix(sessionID string) string {
	return s.config.key("uploads", sessionID) + "/"
}

func (s *S3ChunkStore) chunkKey(sessionID string, index uint32) string {
	return s.config.key("uploads", sessionID, chunkName(index))
}

var _ ChunkStore = (*S3ChunkStore)(nil)
