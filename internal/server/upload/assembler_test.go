package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAssembler_ConcurrentComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := randomBytes(t, 256<<10)
	sess := env.initSession(t, "video.mp4", data, 16<<10)
	env.sendAll(t, sess, data)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		artifacts []*Artifact
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			artifact, err := env.svc.Complete(ctx, &CompleteParams{SessionID: sess.ID})
			if err != nil {
				assert.ErrorIs(t, err, ErrAssemblyInProgress)
				return
			}
			mu.Lock()
			artifacts = append(artifacts, artifact)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.NotEmpty(t, artifacts)
	for _, a := range artifacts[1:] {
		assert.Equal(t, artifacts[0], a)
	}

	entries, err := os.ReadDir(env.cfg.PublishDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "exactly one artifact is published")
	assert.Equal(t, data, readPublished(t, env.publisher, artifacts[0].PublishedName))
}

func TestAssembler_PublishFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, int64(10), mock.Anything, mock.Anything).
		Return(errors.New("bucket unavailable"))
	svc := NewUploadService(env.cfg, env.store, env.chunks, pub, WithClock(env.clock.Now))

	data := []byte("0123456789")
	sess, err := svc.Init(ctx, &InitParams{FileName: "report.pdf", FileSize: 10, TotalChunks: 3, ChunkSize: 4})
	require.NoError(t, err)
	env.svc = svc
	env.sendAll(t, sess, data)

	_, err = svc.Complete(ctx, &CompleteParams{SessionID: sess.ID})
	assert.ErrorIs(t, err, ErrAssemblyFailed)

	got, err := env.store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Reason, "bucket unavailable")

	_, err = env.chunks.Size(ctx, sess.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound, "staged chunks are released on failure")
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestAssembler_ChunkDuringAssembly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	sess := env.initSession(t, "report.pdf", data, 4)
	env.sendAll(t, sess, data)

	var chunkErr error
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, int64(10), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, chunkErr = env.sendChunk(t, sess, data, 0)
			_, _ = io.Copy(io.Discard, args.Get(3).(io.Reader))
		}).
		Return(nil)

	svc := NewUploadService(env.cfg, env.store, env.chunks, pub, WithClock(env.clock.Now))
	env.svc = svc

	_, err := svc.Complete(ctx, &CompleteParams{SessionID: sess.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, chunkErr, ErrAssemblyInProgress)
}

func TestAssembler_MissingStagedChunk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	sess := env.initSession(t, "report.pdf", data, 4)
	env.sendAll(t, sess, data)

	// staged bytes lost behind the session's back
	require.NoError(t, env.chunks.DeleteAll(ctx, sess.ID))

	_, err := env.svc.Complete(ctx, &CompleteParams{SessionID: sess.ID})
	assert.ErrorIs(t, err, ErrAssemblyFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishedName(t *testing.T) {
	assert.Equal(t, "6f1c2a9b-report.pdf", publishedName("6f1c2a9b-0000-4000-8000-000000000000", "report.pdf"))
	assert.Equal(t, "abc-x.bin", publishedName("abc", "x.bin"))
}
