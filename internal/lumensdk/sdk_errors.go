package lumensdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	// sdk common
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")

	// upload
	ErrInvalidInput      = errors.New("sdk: invalid input")
	ErrInitFailed        = errors.New("sdk: upload init failed")
	ErrChunkUploadFailed = errors.New("sdk: chunk upload failed")
	ErrCompleteFailed    = errors.New("sdk: upload complete failed")
	ErrUploadCanceled    = errors.New("sdk: upload canceled")
	ErrUploadInProgress  = errors.New("sdk: file is already being uploaded")
)

const (
	CodeInvalidRequest           = "E_INVALID_REQUEST"
	CodeRateLimited              = "E_RATE_LIMITED"
	CodeInternalError            = "E_INTERNAL_ERROR"
	CodeAuthInvalidCredentials   = "E_AUTH_INVALID_CREDENTIALS"
	CodeUploadUnknownSession     = "E_UPLOAD_UNKNOWN_SESSION"
	CodeUploadIndexOutOfRange    = "E_UPLOAD_INDEX_OUT_OF_RANGE"
	CodeUploadIncomplete         = "E_UPLOAD_INCOMPLETE"
	CodeUploadAssemblyInProgress = "E_UPLOAD_ASSEMBLY_IN_PROGRESS"
	CodeUploadSessionClosed      = "E_UPLOAD_SESSION_CLOSED"
	CodeUploadSizeMismatch       = "E_UPLOAD_SIZE_MISMATCH"
	CodeUploadChecksumMismatch   = "E_UPLOAD_CHECKSUM_MISMATCH"
	CodeUploadAssemblyFailed     = "E_UPLOAD_ASSEMBLY_FAILED"
	CodeUploadChunkFailed        = "E_UPLOAD_CHUNK_FAILED"
	CodeUploadRejected           = "E_UPLOAD_REJECTED"
	CodeFileNotFound             = "E_FILE_NOT_FOUND"
)

// APIError is the error body returned by the server
type APIError struct {
	Code           string   `json:"code"`
	Message        string   `json:"error"`
	MissingIndices []uint32 `json:"missingIndices,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// IsAPIError reports whether err carries an api error with the given code
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Stage names the step of an upload that failed
type Stage string

const (
	StageValidate Stage = "validate"
	StageInit     Stage = "init"
	StageChunk    Stage = "chunk"
	StageComplete Stage = "complete"
)

// UploadError is the terminal error of a failed upload.
// It matches the sentinel of its stage with errors.Is, unless the upload was canceled.
type UploadError struct {
	Stage Stage
	Index int // chunk index for StageChunk, -1 otherwise
	Err   error
}

func (e *UploadError) Error() string {
	if e.Stage == StageChunk && e.Index >= 0 {
		return fmt.Sprintf("upload %s %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Is(target error) bool {
	if errors.Is(e.Err, ErrUploadCanceled) {
		return false
	}
	switch e.Stage {
	case StageInit:
		return target == ErrInitFailed
	case StageChunk:
		return target == ErrChunkUploadFailed
	case StageComplete:
		return target == ErrCompleteFailed
	}
	return false
}

func stageError(stage Stage, err error) *UploadError {
	return &UploadError{Stage: stage, Index: -1, Err: err}
}

// handleAPIError turns a failed request or an error response into an error
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return fmt.Errorf("%s %w", operation, err)
		}
		return fmt.Errorf("api error: %s status %d: %s", operation, resp.StatusCode, resp.String())
	}

	return nil
}
