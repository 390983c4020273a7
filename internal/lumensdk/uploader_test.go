package lumensdk

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumensite/lumen/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func download(t *testing.T, ts *testServer, artifact *Artifact) []byte {
	t.Helper()
	resp, err := http.Get(ts.URL + "/files/" + artifact.PublishedName)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

func TestUpload_TwelveMiBInFiveMiBChunks(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "dataset.bin", 12<<20)

	var (
		mu       sync.Mutex
		progress []Progress
	)
	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{
		FilePath:      path,
		ChunkSize:     5 << 20,
		MaxConcurrent: 3,
		Checksum:      true,
	}, func(p Progress) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.EqualValues(t, 12<<20, artifact.Size)
	assert.Equal(t, utils.BytesSHA256(data), artifact.Checksum)
	assert.Equal(t, data, download(t, ts, artifact))

	for i := range uint32(3) {
		assert.Equal(t, 1, ts.chunkHits(i), "chunk %d", i)
	}
	assert.Equal(t, 1, ts.count(http.MethodPost, v1UploadInit))
	assert.Equal(t, 1, ts.count(http.MethodPost, v1UploadComplete))

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, 100, last.Percent)
	assert.EqualValues(t, 3, last.TotalChunks)
	for i, p := range progress[:len(progress)-1] {
		assert.LessOrEqual(t, p.Percent, 90, "only a published file reports 100")
		if i > 0 {
			assert.GreaterOrEqual(t, p.Percent, progress[i-1].Percent)
		}
	}
}

func TestUpload_SimplePath(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "notes.txt", 1024)

	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{
		FilePath: path,
		FileName: "renamed.txt",
		Checksum: true,
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, artifact.PublishedName, "renamed.txt")
	assert.Equal(t, data, download(t, ts, artifact))
	assert.Zero(t, ts.count(http.MethodPost, v1UploadInit))
	assert.Equal(t, 1, ts.count(http.MethodPut, v1UploadSimple))
}

func TestUpload_RejectsEmptyFile(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := sdk.Uploads.Start(context.Background(), &UploadParams{FilePath: path})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = sdk.Uploads.Start(context.Background(), &UploadParams{FilePath: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "a.bin", 10)

	var failed atomic.Bool
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if isChunk(r, 1) && failed.CompareAndSwap(false, true) {
			writeAPIError(w, http.StatusServiceUnavailable, &APIError{Code: CodeUploadChunkFailed, Message: "disk busy"})
			return true
		}
		return false
	})

	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{FilePath: path, ChunkSize: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, data, download(t, ts, artifact))
	assert.Equal(t, 2, ts.chunkHits(1))
}

func TestUpload_BoundsConcurrentChunks(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "a.bin", 48)

	var inFlight, peak atomic.Int32
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if r.URL.Path != v1UploadChunk {
			return false
		}
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		next.ServeHTTP(w, r)
		return true
	})

	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{
		FilePath:      path,
		ChunkSize:     4,
		MaxConcurrent: 3,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, data, download(t, ts, artifact))

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
	for i := range uint32(12) {
		assert.Equal(t, 1, ts.chunkHits(i), "chunk %d", i)
	}
}

func TestUpload_ClientErrorsAreFinal(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, _ := writeTestFile(t, "a.bin", 10)

	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if isChunk(r, 1) {
			writeAPIError(w, http.StatusBadRequest, &APIError{Code: CodeUploadIndexOutOfRange, Message: "index out of range"})
			return true
		}
		return false
	})

	_, err := sdk.Uploads.Upload(context.Background(), &UploadParams{FilePath: path, ChunkSize: 4, MaxConcurrent: 1}, nil)
	require.Error(t, err)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, StageChunk, uploadErr.Stage)
	assert.Equal(t, 1, uploadErr.Index)
	assert.ErrorIs(t, err, ErrChunkUploadFailed)
	assert.True(t, IsAPIError(err, CodeUploadIndexOutOfRange))

	assert.Equal(t, 1, ts.chunkHits(1), "4xx responses are not retried")
	assert.Zero(t, ts.count(http.MethodPost, v1UploadComplete))
	assert.Equal(t, 1, ts.countPrefix(http.MethodDelete, "/api/v1/uploads/"), "the session is discarded")
}

func TestUpload_Cancel(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, _ := writeTestFile(t, "a.bin", 10)

	blocked := make(chan struct{})
	var once sync.Once
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if isChunk(r, 1) {
			once.Do(func() { close(blocked) })
			<-r.Context().Done()
			return true
		}
		return false
	})

	task, err := sdk.Uploads.Start(context.Background(), &UploadParams{FilePath: path, ChunkSize: 4, MaxConcurrent: 1})
	require.NoError(t, err)

	select {
	case <-blocked:
	case <-time.After(10 * time.Second):
		t.Fatal("chunk 1 never arrived")
	}
	task.Cancel()

	_, err = task.Wait()
	assert.ErrorIs(t, err, ErrUploadCanceled)
	assert.NotErrorIs(t, err, ErrChunkUploadFailed)
	assert.NotEmpty(t, task.SessionID())

	assert.Zero(t, ts.count(http.MethodPost, v1UploadComplete))
	assert.Zero(t, ts.chunkHits(2), "no chunk is scheduled after cancel")
	assert.Equal(t, 1, ts.count(http.MethodDelete, "/api/v1/uploads/"+task.SessionID()))

	for range task.Progress() {
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("progress closed before the task ended")
	}
}

func TestUpload_ContextCancel(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, _ := writeTestFile(t, "a.bin", 10)

	ctx, cancel := context.WithCancel(context.Background())
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if isChunk(r, 0) {
			cancel()
			<-r.Context().Done()
			return true
		}
		return false
	})

	_, err := sdk.Uploads.Upload(ctx, &UploadParams{FilePath: path, ChunkSize: 4, MaxConcurrent: 1}, nil)
	assert.ErrorIs(t, err, ErrUploadCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpload_ResendsMissingChunks(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "a.bin", 10)

	var dropped atomic.Bool
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		// acknowledge chunk 1 without storing it
		if isChunk(r, 1) && dropped.CompareAndSwap(false, true) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accepted":true,"index":1,"receivedChunks":2,"totalChunks":3}`))
			return true
		}
		return false
	})

	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{FilePath: path, ChunkSize: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, data, download(t, ts, artifact))
	assert.Equal(t, 2, ts.chunkHits(1))
	assert.Equal(t, 2, ts.count(http.MethodPost, v1UploadComplete))
}

func TestUpload_PollsWhileAssembling(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "a.bin", 10)

	var first atomic.Bool
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if r.URL.Path == v1UploadComplete && first.CompareAndSwap(false, true) {
			// the server assembles while this caller is told to wait
			next.ServeHTTP(discardWriter{header: http.Header{}}, r)
			writeAPIError(w, http.StatusConflict, &APIError{Code: CodeUploadAssemblyInProgress, Message: "assembling"})
			return true
		}
		return false
	})

	artifact, err := sdk.Uploads.Upload(context.Background(), &UploadParams{
		FilePath:     path,
		ChunkSize:    4,
		PollInterval: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, data, download(t, ts, artifact))
	assert.Equal(t, 1, ts.count(http.MethodPost, v1UploadComplete))
}

func TestUpload_Resume(t *testing.T) {
	ts := newTestServer(t)
	sdk := newTestSDK(t, ts)
	path, data := writeTestFile(t, "a.bin", 10)
	resumeDir := t.TempDir()

	var fail atomic.Bool
	fail.Store(true)
	ts.setHook(func(w http.ResponseWriter, r *http.Request, next http.Handler) bool {
		if isChunk(r, 2) && fail.Load() {
			writeAPIError(w, http.StatusBadRequest, &APIError{Code: CodeInvalidRequest, Message: "rejected"})
			return true
		}
		return false
	})

	params := &UploadParams{FilePath: path, ChunkSize: 4, MaxConcurrent: 1, ResumeDir: resumeDir}
	_, err := sdk.Uploads.Upload(context.Background(), params, nil)
	require.ErrorIs(t, err, ErrChunkUploadFailed)
	assert.Zero(t, ts.countPrefix(http.MethodDelete, "/api/v1/uploads/"), "resumable sessions are kept")

	states, _ := filepath.Glob(filepath.Join(resumeDir, "*.json"))
	require.Len(t, states, 1)

	fail.Store(false)
	var first Progress
	var once sync.Once
	artifact, err := sdk.Uploads.Upload(context.Background(), params, func(p Progress) {
		once.Do(func() { first = p })
	})
	require.NoError(t, err)
	assert.Equal(t, data, download(t, ts, artifact))

	assert.Equal(t, 1, ts.count(http.MethodPost, v1UploadInit), "the session is reused")
	assert.Equal(t, 1, ts.chunkHits(0))
	assert.Equal(t, 1, ts.chunkHits(1))
	assert.Equal(t, 2, ts.chunkHits(2))
	assert.GreaterOrEqual(t, first.CompletedChunks, uint32(2), "resumed progress starts from the adopted chunks")

	states, _ = filepath.Glob(filepath.Join(resumeDir, "*.json"))
	assert.Empty(t, states)
}

func TestResumeFile_Lock(t *testing.T) {
	dir := t.TempDir()
	r1, err := openResumeFile(dir, "http://a", "/tmp/x", "x")
	require.NoError(t, err)

	_, err = openResumeFile(dir, "http://a", "/tmp/x", "x")
	assert.ErrorIs(t, err, ErrUploadInProgress)

	other, err := openResumeFile(dir, "http://a", "/tmp/y", "y")
	require.NoError(t, err)
	require.NoError(t, other.close())

	require.NoError(t, r1.close())
	r2, err := openResumeFile(dir, "http://a", "/tmp/x", "x")
	require.NoError(t, err)
	require.NoError(t, r2.close())
}

func TestResumeFile_DiscardsStaleState(t *testing.T) {
	dir := t.TempDir()
	r, err := openResumeFile(dir, "http://a", "/tmp/x", "x")
	require.NoError(t, err)
	defer r.close()

	state := &resumeState{ServerURL: "http://a", FilePath: "/tmp/x", FileName: "x", Fingerprint: "10:1", Size: 10, ChunkSize: 4, TotalChunks: 3, SessionID: "s1"}
	require.NoError(t, r.save(state))
	require.NoError(t, r.markDone(1))
	require.NoError(t, r.markDone(1))

	want := *state
	want.Completed = nil
	got, err := r.load(&want)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []uint32{1}, got.Completed)

	want.Fingerprint = "10:2"
	got, err = r.load(&want)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, utils.FileExists(r.path), "stale state is removed")
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(nil, errors.New("connection reset")))
	assert.False(t, shouldRetry(nil, context.Canceled))
	assert.False(t, shouldRetry(nil, nil))
}

type discardWriter struct {
	header http.Header
}

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (d discardWriter) WriteHeader(int)             {}
