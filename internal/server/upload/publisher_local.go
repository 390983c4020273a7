package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lumensite/lumen/internal/utils"
)

// LocalPublisher writes artifacts into a directory.
// Files are written to a hidden temp file and renamed into place, so readers never see partial content.
type LocalPublisher struct {
	dir string
}

func NewLocalPublisher(dir string) (*LocalPublisher, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create publish dir: %w", err)
	}
	return &LocalPublisher{dir: dir}, nil
}

func (p *LocalPublisher) Publish(ctx context.Context, name string, size int64, body io.Reader, verify func() error) error {
	if err := validatePublishedName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.dir, ".publish-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	published := false
	defer func() {
		if !published {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, contextReader(ctx, body)); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}

	if verify != nil {
		if err := verify(); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpName, filepath.Join(p.dir, name)); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	published = true
	return nil
}

func (p *LocalPublisher) Open(ctx context.Context, name string) (*PublishedFile, error) {
	if err := validatePublishedName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(p.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	} else if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &PublishedFile{Body: f, Size: info.Size(), LastModified: info.ModTime()}, nil
}

var _ Publisher = (*LocalPublisher)(nil)
