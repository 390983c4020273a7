package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

func validateSessionID(id string) error {
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("%w: malformed session id", ErrUnknownSession)
	}
	return nil
}

// storageErr keeps verification failures as they are and marks everything else as a storage write error
func storageErr(err error) error {
	if errors.Is(err, ErrChunkSizeMismatch) || errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrSizeMismatch) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageWrite, err)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

// contextReader stops reading once ctx is done
func contextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// chunkSequence reads staged chunks 0..n-1 back to back, opening each one only when needed
type chunkSequence struct {
	ctx       context.Context
	store     ChunkStore
	sessionID string
	total     uint32
	next      uint32
	cur       io.ReadCloser
}

func newChunkSequence(ctx context.Context, store ChunkStore, sessionID string, total uint32) *chunkSequence {
	return &chunkSequence{ctx: ctx, store: store, sessionID: sessionID, total: total}
}

func (c *chunkSequence) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		if c.cur == nil {
			if c.next >= c.total {
				return 0, io.EOF
			}
			rc, err := c.store.Get(c.ctx, c.sessionID, c.next)
			if err != nil {
				return 0, fmt.Errorf("open chunk %d: %w", c.next, err)
			}
			c.cur = rc
			c.next++
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *chunkSequence) Close() error {
	if c.cur != nil {
		err := c.cur.Close()
		c.cur = nil
		return err
	}
	return nil
}
