package upload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownSession      = errors.New("unknown upload session")
	ErrIndexOutOfRange     = errors.New("chunk index out of range")
	ErrIncompleteUpload    = errors.New("upload incomplete")
	ErrAssemblyInProgress  = errors.New("assembly in progress")
	ErrAssemblyFailed      = errors.New("assembly failed")
	ErrSizeMismatch        = errors.New("size mismatch")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrChunkSizeMismatch   = errors.New("chunk size mismatch")
	ErrStorageWrite        = errors.New("storage write failed")
	ErrSessionClosed       = errors.New("upload session closed")
	ErrTooManySessions     = errors.New("too many open upload sessions")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInsufficientStorage = errors.New("insufficient storage")
	ErrNameNotAllowed      = errors.New("file name not allowed")
	ErrNotFound            = errors.New("not found")
)

// IncompleteUploadError lists the chunk indices the server has not received.
type IncompleteUploadError struct {
	SessionID string
	Missing   []uint32
}

func (e *IncompleteUploadError) Error() string {
	idx := make([]string, 0, min(len(e.Missing), 16))
	for i, m := range e.Missing {
		if i == 16 {
			idx = append(idx, "...")
			break
		}
		idx = append(idx, fmt.Sprint(m))
	}
	return fmt.Sprintf("%s: session %s missing %d chunks [%s]", ErrIncompleteUpload, e.SessionID, len(e.Missing), strings.Join(idx, ","))
}

func (e *IncompleteUploadError) Is(target error) bool {
	return target == ErrIncompleteUpload
}
