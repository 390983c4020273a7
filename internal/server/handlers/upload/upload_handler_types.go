package upload

import (
	"time"

	"github.com/lumensite/lumen/internal/server/upload"
)

type InitRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	FileSize    *int64 `json:"fileSize" binding:"required,min=0"`
	TotalChunks uint32 `json:"totalChunks" binding:"required,min=1"`
	ChunkSize   int64  `json:"chunkSize" binding:"omitempty,min=1"`
	Checksum    string `json:"checksum" binding:"omitempty,len=64,hexadecimal"`
}

type InitResponse struct {
	SessionID   string    `json:"sessionId"`
	FileName    string    `json:"fileName"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks uint32    `json:"totalChunks"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ChunkRequest is read from the query string, or from form fields for multipart bodies.
// fileName is accepted for compatibility and not used.
type ChunkRequest struct {
	SessionID   string  `form:"sessionId" binding:"required"`
	Index       *uint32 `form:"index" binding:"required"`
	TotalChunks uint32  `form:"totalChunks" binding:"required,min=1"`
	FileName    string  `form:"fileName"`
}

type ChunkResponse struct {
	Accepted       bool   `json:"accepted"`
	Index          uint32 `json:"index"`
	ReceivedChunks int    `json:"receivedChunks"`
	TotalChunks    uint32 `json:"totalChunks"`
}

type CompleteRequest struct {
	SessionID        string `json:"sessionId" binding:"required"`
	FileName         string `json:"fileName"`
	TotalChunks      uint32 `json:"totalChunks"`
	OriginalFileName string `json:"originalFileName"`
}

type SessionRequest struct {
	SessionID string `uri:"sessionId" binding:"required"`
}

type SessionResponse struct {
	SessionID      string           `json:"sessionId"`
	FileName       string           `json:"fileName"`
	Status         upload.Status    `json:"status"`
	FileSize       int64            `json:"fileSize"`
	ChunkSize      int64            `json:"chunkSize"`
	TotalChunks    uint32           `json:"totalChunks"`
	ReceivedChunks int              `json:"receivedChunks"`
	MissingIndices []uint32         `json:"missingIndices"`
	Reason         string           `json:"reason,omitempty"`
	Artifact       *upload.Artifact `json:"artifact,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      time.Time        `json:"expiresAt"`
}

type SimpleRequest struct {
	Checksum string `form:"checksum" binding:"omitempty,len=64,hexadecimal"`
}

func newSessionResponse(s *upload.Session) *SessionResponse {
	return &SessionResponse{
		SessionID:      s.ID,
		FileName:       s.FileName,
		Status:         s.Status,
		FileSize:       s.DeclaredSize,
		ChunkSize:      s.ChunkSize,
		TotalChunks:    s.TotalChunks,
		ReceivedChunks: s.Received.Cardinality(),
		MissingIndices: s.Missing(),
		Reason:         s.Reason,
		Artifact:       s.Artifact,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
	}
}
