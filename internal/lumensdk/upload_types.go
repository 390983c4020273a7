package lumensdk

import (
	"time"
)

const (
	DefaultChunkSize     = int64(5 << 20) // 5 MiB
	DefaultMaxConcurrent = 3
	DefaultPollInterval  = time.Second
	DefaultMaxPolls      = 120
)

// UploadParams describes one file upload
type UploadParams struct {
	FilePath      string
	FileName      string // published under this name, defaults to the base name of FilePath
	ChunkSize     int64  // default DefaultChunkSize
	MaxConcurrent int    // chunks in flight, default DefaultMaxConcurrent
	Checksum      bool   // send a sha256 of the whole file so the server verifies the assembly
	ResumeDir     string // persist progress here and resume interrupted uploads; empty disables
	PollInterval  time.Duration
	MaxPolls      int
}

func (p *UploadParams) withDefaults() *UploadParams {
	out := *p
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = DefaultMaxConcurrent
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.MaxPolls <= 0 {
		out.MaxPolls = DefaultMaxPolls
	}
	return &out
}

// Progress is reported while an upload runs.
// Percent stays below 90 until every chunk is accepted and reaches 100 only once the file is published.
type Progress struct {
	Percent         int
	CompletedChunks uint32
	TotalChunks     uint32
	BytesSent       int64
	TotalBytes      int64
}

type ProgressCallback func(Progress)

// Artifact describes a published file
type Artifact struct {
	PublishedName string `json:"publishedName"`
	Size          int64  `json:"size"`
	URL           string `json:"url"`
	Checksum      string `json:"checksum,omitempty"`
}

type InitRequest struct {
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	TotalChunks uint32 `json:"totalChunks"`
	ChunkSize   int64  `json:"chunkSize,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

type InitResponse struct {
	SessionID   string    `json:"sessionId"`
	FileName    string    `json:"fileName"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks uint32    `json:"totalChunks"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ChunkResponse struct {
	Accepted       bool   `json:"accepted"`
	Index          uint32 `json:"index"`
	ReceivedChunks int    `json:"receivedChunks"`
	TotalChunks    uint32 `json:"totalChunks"`
}

type CompleteRequest struct {
	SessionID        string `json:"sessionId"`
	FileName         string `json:"fileName"`
	TotalChunks      uint32 `json:"totalChunks"`
	OriginalFileName string `json:"originalFileName,omitempty"`
}

type SessionStatus string

const (
	StatusOpen       SessionStatus = "open"
	StatusAssembling SessionStatus = "assembling"
	StatusComplete   SessionStatus = "complete"
	StatusFailed     SessionStatus = "failed"
	StatusExpired    SessionStatus = "expired"
)

// Session is the server side state of an upload
type Session struct {
	SessionID      string        `json:"sessionId"`
	FileName       string        `json:"fileName"`
	Status         SessionStatus `json:"status"`
	FileSize       int64         `json:"fileSize"`
	ChunkSize      int64         `json:"chunkSize"`
	TotalChunks    uint32        `json:"totalChunks"`
	ReceivedChunks int           `json:"receivedChunks"`
	MissingIndices []uint32      `json:"missingIndices"`
	Reason         string        `json:"reason,omitempty"`
	Artifact       *Artifact     `json:"artifact,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}
