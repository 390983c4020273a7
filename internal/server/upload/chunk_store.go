package upload

import (
	"context"
	"fmt"
	"io"
)

// ChunkWrite is one chunk body to stage.
// Size is the exact expected length; Checksum, when set, is the expected hex sha256.
type ChunkWrite struct {
	SessionID string
	Index     uint32
	Size      int64
	Checksum  string
	Body      io.Reader
}

// ChunkStore stages chunk bytes under a key derived from session id and index.
// Committing an index again replaces the previous bytes.
type ChunkStore interface {
	// Stage writes and verifies a chunk body without making it visible to Get or Size.
	Stage(ctx context.Context, w *ChunkWrite) (StagedChunk, error)

	// Get opens a staged chunk. Missing chunks return ErrNotFound.
	Get(ctx context.Context, sessionID string, index uint32) (io.ReadCloser, error)

	// Size returns the stored length of a staged chunk. Missing chunks return ErrNotFound.
	Size(ctx context.Context, sessionID string, index uint32) (int64, error)

	// DeleteAll removes every staged chunk of a session. Removing nothing is not an error.
	DeleteAll(ctx context.Context, sessionID string) error
}

// StagedChunk is a verified chunk body waiting to be committed
type StagedChunk interface {
	// Commit makes the chunk visible under its index
	Commit(ctx context.Context) error

	// Discard drops the staged bytes. It does nothing after a successful Commit.
	Discard()
}

// putChunk stages and commits w in one step
func putChunk(ctx context.Context, store ChunkStore, w *ChunkWrite) error {
	staged, err := store.Stage(ctx, w)
	if err != nil {
		return err
	}
	if err := staged.Commit(ctx); err != nil {
		staged.Discard()
		return err
	}
	return nil
}

// capacityReporter is implemented by stores backed by a local disk
type capacityReporter interface {
	FreeBytes(ctx context.Context) (uint64, error)
}

func chunkName(index uint32) string {
	return fmt.Sprintf("%06d.chunk", index)
}
