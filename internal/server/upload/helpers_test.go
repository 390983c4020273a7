package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.ChunkSize = 4
	cfg.MinChunkSize = 1
	cfg.MaxChunkSize = 1 << 20
	cfg.MinFreeBytes = 0
	cfg.SessionStore = SessionStoreMemory
	return cfg
}

type testEnv struct {
	cfg       *Config
	store     SessionStore
	chunks    *LocalChunkStore
	publisher *LocalPublisher
	clock     *fakeClock
	svc       *UploadService
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	for _, fn := range mutate {
		fn(cfg)
	}
	require.NoError(t, cfg.Validate())

	chunks, err := NewLocalChunkStore(cfg.StagingDir)
	require.NoError(t, err)
	pub, err := NewLocalPublisher(cfg.PublishDir)
	require.NoError(t, err)

	store := NewMemorySessionStore()
	clock := newFakeClock()
	svc := NewUploadService(cfg, store, chunks, pub,
		WithClock(clock.Now),
		WithPublicURL("https://files.example.com/"))

	return &testEnv{cfg: cfg, store: store, chunks: chunks, publisher: pub, clock: clock, svc: svc}
}

// initSession opens a session for data cut into chunkSize pieces
func (e *testEnv) initSession(t *testing.T, name string, data []byte, chunkSize int64) *Session {
	t.Helper()
	sess, err := e.svc.Init(context.Background(), &InitParams{
		FileName:    name,
		FileSize:    int64(len(data)),
		TotalChunks: expectedChunks(int64(len(data)), chunkSize),
		ChunkSize:   chunkSize,
	})
	require.NoError(t, err)
	return sess
}

func (e *testEnv) sendChunk(t *testing.T, sess *Session, data []byte, index uint32) (*Session, error) {
	t.Helper()
	start := int64(index) * sess.ChunkSize
	end := min(start+sess.ChunkSize, int64(len(data)))
	return e.svc.RecordChunk(context.Background(), &ChunkParams{
		SessionID:   sess.ID,
		Index:       index,
		TotalChunks: sess.TotalChunks,
		Size:        -1,
		Body:        bytes.NewReader(data[start:end]),
	})
}

func (e *testEnv) sendAll(t *testing.T, sess *Session, data []byte, order ...uint32) {
	t.Helper()
	if len(order) == 0 {
		for i := uint32(0); i < sess.TotalChunks; i++ {
			order = append(order, i)
		}
	}
	for _, i := range order {
		_, err := e.sendChunk(t, sess, data, i)
		require.NoError(t, err)
	}
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func readPublished(t *testing.T, pub Publisher, name string) []byte {
	t.Helper()
	f, err := pub.Open(context.Background(), name)
	require.NoError(t, err)
	defer f.Body.Close()
	b, err := io.ReadAll(f.Body)
	require.NoError(t, err)
	return b
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, name string, size int64, body io.Reader, verify func() error) error {
	args := m.Called(ctx, name, size, body, verify)
	return args.Error(0)
}

func (m *MockPublisher) Open(ctx context.Context, name string) (*PublishedFile, error) {
	args := m.Called(ctx, name)
	if f := args.Get(0); f != nil {
		return f.(*PublishedFile), args.Error(1)
	}
	return nil, args.Error(1)
}

var _ Publisher = (*MockPublisher)(nil)
