package upload

import (
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/lumensite/lumen/internal/chunkplan"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssembling Status = "assembling"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further transition is possible from s
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusExpired
}

// Artifact describes a published file
type Artifact struct {
	PublishedName string `json:"publishedName"`
	Size          int64  `json:"size"`
	URL           string `json:"url"`
	Checksum      string `json:"checksum,omitempty"`
}

// Session tracks one in-flight chunked upload.
type Session struct {
	ID           string
	FileName     string
	DeclaredSize int64
	ChunkSize    int64
	TotalChunks  uint32
	Checksum     string // optional sha256 of the whole file
	Received     mapset.Set[uint32]
	Status       Status
	Reason       string // failure reason, set on StatusFailed
	Artifact     *Artifact
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}

func newSession(id, fileName string, size, chunkSize int64, checksum string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		FileName:     fileName,
		DeclaredSize: size,
		ChunkSize:    chunkSize,
		TotalChunks:  expectedChunks(size, chunkSize),
		Checksum:     checksum,
		Received:     mapset.NewThreadUnsafeSet[uint32](),
		Status:       StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// expectedChunks is ceil(size/chunkSize), with an empty file still taking one (empty) chunk.
func expectedChunks(size, chunkSize int64) uint32 {
	return max(1, chunkplan.Count(size, chunkSize))
}

// ChunkLength is the exact byte length chunk index must have
func (s *Session) ChunkLength(index uint32) int64 {
	return chunkplan.LengthAt(s.DeclaredSize, s.ChunkSize, index)
}

// IsComplete reports whether every index in [0, TotalChunks) has been received
func (s *Session) IsComplete() bool {
	return uint32(s.Received.Cardinality()) == s.TotalChunks
}

// Missing returns the indices not yet received, ascending
func (s *Session) Missing() []uint32 {
	missing := make([]uint32, 0, int(s.TotalChunks)-s.Received.Cardinality())
	for i := uint32(0); i < s.TotalChunks; i++ {
		if !s.Received.Contains(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

// ReceivedIndices returns the received indices, ascending
func (s *Session) ReceivedIndices() []uint32 {
	out := s.Received.ToSlice()
	slices.Sort(out)
	return out
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	c := *s
	c.Received = s.Received.Clone()
	if s.Artifact != nil {
		a := *s.Artifact
		c.Artifact = &a
	}
	return &c
}
