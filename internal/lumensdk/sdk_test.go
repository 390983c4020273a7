package lumensdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumensite/lumen/internal/server"
	"github.com/lumensite/lumen/internal/server/upload"
	"github.com/stretchr/testify/require"
)

// hook intercepts a request before the real server sees it. Returning true means it was answered.
type hook func(w http.ResponseWriter, r *http.Request, next http.Handler) bool

type testServer struct {
	*httptest.Server
	handler http.Handler

	mu     sync.Mutex
	hook   hook
	chunks map[uint32]int
	counts map[string]int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := server.DefaultConfig(t.TempDir())
	cfg.Upload.SessionStore = upload.SessionStoreMemory
	cfg.Upload.MinChunkSize = 1
	cfg.Upload.MinFreeBytes = 0
	cfg.RateLimit = ""

	ctx := context.Background()
	svc, err := server.NewServices(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	handler, err := server.SetupRoutes(svc, cfg)
	require.NoError(t, err)

	ts := &testServer{
		handler: handler,
		chunks:  make(map[uint32]int),
		counts:  make(map[string]int),
	}
	ts.Server = httptest.NewServer(ts)
	t.Cleanup(ts.Close)
	return ts
}

func (s *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.counts[r.Method+" "+r.URL.Path]++
	if r.URL.Path == v1UploadChunk {
		if i, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 32); err == nil {
			s.chunks[uint32(i)]++
		}
	}
	h := s.hook
	s.mu.Unlock()

	if h != nil && h(w, r, s.handler) {
		return
	}
	s.handler.ServeHTTP(w, r)
}

func (s *testServer) setHook(h hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *testServer) chunkHits(index uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[index]
}

func (s *testServer) count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+path]
}

func (s *testServer) countPrefix(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.counts {
		if strings.HasPrefix(k, method+" "+prefix) {
			n += v
		}
	}
	return n
}

func newTestSDK(t *testing.T, ts *testServer) *LumenSDK {
	t.Helper()
	sdk, err := New(&Config{
		BaseURL:         ts.URL,
		RetryMinBackoff: time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	return sdk
}

func writeAPIError(w http.ResponseWriter, status int, body *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isChunk(r *http.Request, index uint32) bool {
	return r.URL.Path == v1UploadChunk && r.URL.Query().Get("index") == strconv.FormatUint(uint64(index), 10)
}
