package lumensdk

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
	"github.com/lumensite/lumen/internal/utils"
)

// resumeState is what survives a restart of an interrupted upload
type resumeState struct {
	ServerURL   string   `json:"serverUrl"`
	FilePath    string   `json:"filePath"`
	FileName    string   `json:"fileName"`
	Fingerprint string   `json:"fingerprint"`
	Size        int64    `json:"size"`
	ChunkSize   int64    `json:"chunkSize"`
	TotalChunks uint32   `json:"totalChunks"`
	SessionID   string   `json:"sessionId"`
	Completed   []uint32 `json:"completed"`
}

// resumeFile holds the state of one (server, file, name) upload.
// A file lock keeps a second process from uploading the same file at the same time.
type resumeFile struct {
	path string
	lock *flock.Flock

	mu    sync.Mutex
	state *resumeState
}

func openResumeFile(dir, serverURL, filePath, fileName string) (*resumeFile, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure resume dir: %w", err)
	}

	key := utils.BytesSHA256([]byte(serverURL + "|" + filePath + "|" + fileName))
	path := filepath.Join(dir, key+".json")

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock resume file: %w", err)
	}
	if !locked {
		return nil, ErrUploadInProgress
	}

	return &resumeFile{path: path, lock: lock}, nil
}

// load returns the saved state if it still describes the same file, nil otherwise
func (r *resumeFile) load(want *resumeState) (*resumeState, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read resume file: %w", err)
	}

	var s resumeState
	if err := jsonUnmarshal(data, &s); err != nil {
		// torn write, start over
		os.Remove(r.path)
		return nil, nil
	}

	if s.ServerURL != want.ServerURL || s.FilePath != want.FilePath || s.FileName != want.FileName ||
		s.Fingerprint != want.Fingerprint || s.Size != want.Size || s.ChunkSize != want.ChunkSize || s.SessionID == "" {
		os.Remove(r.path)
		return nil, nil
	}
	return &s, nil
}

func (r *resumeFile) save(s *resumeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	return r.writeLocked()
}

func (r *resumeFile) markDone(index uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil || slices.Contains(r.state.Completed, index) {
		return nil
	}
	r.state.Completed = append(r.state.Completed, index)
	return r.writeLocked()
}

func (r *resumeFile) writeLocked() error {
	data, err := jsonMarshal(r.state)
	if err != nil {
		return fmt.Errorf("encode resume file: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write resume file: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func (r *resumeFile) remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *resumeFile) close() error {
	return r.lock.Unlock()
}
