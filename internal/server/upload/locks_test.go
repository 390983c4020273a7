package upload

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocks_ReleaseDropsEntries(t *testing.T) {
	l := newSessionLocks()

	unlockA := l.rlock("a")
	unlockA2 := l.rlock("a")
	unlockB := l.lock("b")
	assert.Equal(t, 2, l.held())

	unlockA()
	assert.Equal(t, 2, l.held())
	unlockA2()
	unlockB()
	assert.Zero(t, l.held())
}

func TestSessionLocks_WriterWaitsForReaders(t *testing.T) {
	l := newSessionLocks()
	unlockRead := l.rlock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := l.lock("a")
		close(acquired)
		unlock()
	}()

	// another session is never held up
	done := make(chan struct{})
	go func() {
		l.lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b waited for a reader of a")
	}

	select {
	case <-acquired:
		t.Fatal("writer on a ran while a reader held it")
	case <-time.After(50 * time.Millisecond):
	}

	unlockRead()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("writer on a never acquired the lock")
	}
}

// stalledChunk starts a RecordChunk whose body never arrives until the returned writer is used.
// It returns once the chunk is being staged.
func stalledChunk(t *testing.T, env *testEnv, sess *Session, index uint32) (*io.PipeWriter, <-chan error) {
	t.Helper()
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, err := env.svc.RecordChunk(context.Background(), &ChunkParams{
			SessionID:   sess.ID,
			Index:       index,
			TotalChunks: sess.TotalChunks,
			Size:        -1,
			Body:        pr,
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		tmp, _ := filepath.Glob(filepath.Join(env.cfg.StagingDir, sess.ID, ".tmp-*"))
		return len(tmp) > 0
	}, 2*time.Second, 5*time.Millisecond)
	return pw, errCh
}

func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked for more than %s", what, d)
	}
}

func TestUploadService_StalledChunkDoesNotBlockOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	slow := env.initSession(t, "slow.bin", data, 4)
	other := env.initSession(t, "other.bin", data, 4)
	env.sendAll(t, other, data)

	pw, errCh := stalledChunk(t, env, slow, 0)

	var (
		artifact *Artifact
		err      error
	)
	within(t, 2*time.Second, "complete on another session", func() {
		artifact, err = env.svc.Complete(ctx, &CompleteParams{SessionID: other.ID})
	})
	require.NoError(t, err)
	assert.Equal(t, data, readPublished(t, env.publisher, artifact.PublishedName))

	var got *Session
	within(t, 2*time.Second, "another chunk of the stalled session", func() {
		got, err = env.sendChunk(t, slow, data, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, got.ReceivedIndices())

	pw.CloseWithError(errors.New("client went away"))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStorageWrite)
	case <-time.After(2 * time.Second):
		t.Fatal("stalled chunk never returned")
	}

	status, err := env.svc.Status(ctx, slow.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, status.ReceivedIndices())
	assert.Zero(t, env.svc.locks.held())

	// the aborted body leaves no temp file behind
	tmp, _ := filepath.Glob(filepath.Join(env.cfg.StagingDir, slow.ID, ".tmp-*"))
	assert.Empty(t, tmp)
}

func TestUploadService_ChunkStagedDuringAssemblyIsDropped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	sess := env.initSession(t, "report.pdf", data, 4)
	env.sendAll(t, sess, data)

	// a late resend of chunk 0 is still streaming when the assembly starts
	pw, errCh := stalledChunk(t, env, sess, 0)

	var (
		artifact *Artifact
		err      error
	)
	within(t, 2*time.Second, "complete with a chunk in flight", func() {
		artifact, err = env.svc.Complete(ctx, &CompleteParams{SessionID: sess.ID})
	})
	require.NoError(t, err)

	_, err = pw.Write([]byte("XXXX"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("late chunk never returned")
	}

	assert.Equal(t, data, readPublished(t, env.publisher, artifact.PublishedName))
}

func TestUploadService_ExpireSkipsRefreshedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	sess := env.initSession(t, "report.pdf", data, 4)
	env.sendAll(t, sess, data, 0)

	env.clock.Advance(env.cfg.SessionTTL + time.Second)
	listed, err := env.store.ListExpired(ctx, env.clock.Now())
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// a chunk lands between listing and expiry and slides the deadline
	_, err = env.store.AddChunk(ctx, sess.ID, 1, env.clock.Now().Add(env.cfg.SessionTTL))
	require.NoError(t, err)

	removed, err := env.svc.expire(ctx, listed[0])
	require.NoError(t, err)
	assert.False(t, removed)

	status, err := env.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, status.Status)
	assert.Equal(t, []uint32{0, 1}, status.ReceivedIndices())
}
