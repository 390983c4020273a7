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
	"github.com/shirou/gopsutil/v4/disk"
)

// LocalChunkStore stages chunks as files: <dir>/<session id>/<index>.chunk
type LocalChunkStore struct {
	dir string
}

func NewLocalChunkStore(dir string) (*LocalChunkStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &LocalChunkStore{dir: dir}, nil
}

func (l *LocalChunkStore) Stage(ctx context.Context, w *ChunkWrite) (StagedChunk, error) {
	if err := validateSessionID(w.SessionID); err != nil {
		return nil, err
	}

	sessionDir := filepath.Join(l.dir, w.SessionID)
	if err := utils.EnsureDir(sessionDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	tmp, err := os.CreateTemp(sessionDir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	staged := &localStagedChunk{tmpPath: tmp.Name(), path: l.chunkPath(w.SessionID, w.Index)}

	body := newVerifyingReader(w.Body, w.Size, w.Checksum, ErrChunkSizeMismatch)
	if _, err := io.Copy(tmp, contextReader(ctx, body)); err != nil {
		tmp.Close()
		staged.Discard()
		return nil, storageErr(err)
	}
	if err := body.Verify(); err != nil {
		tmp.Close()
		staged.Discard()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		staged.Discard()
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		staged.Discard()
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return staged, nil
}

// localStagedChunk is a temp file next to its final path
type localStagedChunk struct {
	tmpPath   string
	path      string
	committed bool
}

func (c *localStagedChunk) Commit(ctx context.Context) error {
	// rename replaces an earlier copy of the same index atomically
	if err := os.Rename(c.tmpPath, c.path); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	c.committed = true
	return nil
}

func (c *localStagedChunk) Discard() {
	if c.committed {
		return
	}
	os.Remove(c.tmpPath)
}

func (l *LocalChunkStore) Get(ctx context.Context, sessionID string, index uint32) (io.ReadCloser, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	f, err := os.Open(l.chunkPath(sessionID, index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: chunk %d of %s", ErrNotFound, index, sessionID)
	}
	return f, err
}

func (l *LocalChunkStore) Size(ctx context.Context, sessionID string, index uint32) (int64, error) {
	if err := validateSessionID(sessionID); err != nil {
		return 0, err
	}
	info, err := os.Stat(l.chunkPath(sessionID, index))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: chunk %d of %s", ErrNotFound, index, sessionID)
	} else if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (l *LocalChunkStore) DeleteAll(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(l.dir, sessionID))
}

// FreeBytes reports the space available to the staging directory
func (l *LocalChunkStore) FreeBytes(ctx context.Context) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, l.dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", l.dir, err)
	}
	return usage.Free, nil
}

func (l *LocalChunkStore) chunkPath(sessionID string, index uint32) string {
	return filepath.Join(l.dir, sessionID, chunkName(index))
}

var (
	_ ChunkStore       = (*LocalChunkStore)(nil)
	_ capacityReporter = (*LocalChunkStore)(nil)
)
