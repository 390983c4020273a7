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
	"github.com/google/uuid"
	"github.com/lumensite/lumen/internal/utils"
)

// S3Publisher writes artifacts to <prefix>/files/<name>.
// Content is uploaded under a staging key first and copied to the final key only after verification.
type S3Publisher struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   *S3Config
}

func NewS3Publisher(client *s3.Client, cfg *S3Config) *S3Publisher {
	return &S3Publisher{
		client:   client,
		uploader: newS3Uploader(client),
		config:   cfg,
	}
}

func (p *S3Publisher) Publish(ctx context.Context, name string, size int64, body io.Reader, verify func() error) error {
	if err := validatePublishedName(name); err != nil {
		return err
	}
	if size > maxS3CopySize {
		return fmt.Errorf("%w: %d bytes exceeds the s3 copy limit", ErrFileTooLarge, size)
	}

	bucket := aws.String(p.config.BucketName)
	stagingKey := p.config.key(".staging", uuid.NewString()+"-"+name)
	finalKey := p.fileKey(name)
	contentType := aws.String(utils.DetectContentType(name))

	defer func() {
		// the staging object is never needed after this call
		if _, err := p.client.DeleteObject(context.WithoutCancel(ctx), &s3.DeleteObjectInput{
			Bucket: bucket,
			Key:    aws.String(stagingKey),
		}); err != nil && !isS3NotFound(err) {
			slog.Warn("s3 publish: delete staging object", "key", stagingKey, "error", err)
		}
	}()

	if _, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      bucket,
		Key:         aws.String(stagingKey),
		Body:        body,
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("upload staging object: %w", err)
	}

	if verify != nil {
		if err := verify(); err != nil {
			return err
		}
	}

	if _, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:      bucket,
		Key:         aws.String(finalKey),
		CopySource:  aws.String(p.config.BucketName + "/" + url.PathEscape(stagingKey)),
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("copy to %s: %w", finalKey, err)
	}
	return nil
}

func (p *S3Publisher) Open(ctx context.Context, name string) (*PublishedFile, error) {
	if err := validatePublishedName(name); err != nil {
		return nil, err
	}

	resp, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.config.BucketName),
		Key:    aws.String(p.fileKey(name)),
	})
	if isS3NotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return &PublishedFile{
		Body:         resp.Body,
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified),
	}, nil
}

func (p *S3Publisher) fileKey(name string) string {
	return p.config.key("files", name)
}

var _ Publisher = (*S3Publisher)(nil)
