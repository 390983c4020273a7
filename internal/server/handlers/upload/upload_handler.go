package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/upload"
)

type UploadHandler struct {
	svc *upload.UploadService
}

func New(svc *upload.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// multipartOverhead is the allowance for boundaries, part headers and form fields
const multipartOverhead = 64 << 10

// limitedBody marks when the wrapped MaxBytesReader cut the body off
type limitedBody struct {
	io.ReadCloser
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}
	return n, err
}

// limitBody caps the request body before anything parses it. A declared length over limit
// is rejected with tooLarge straight away.
func limitBody(ctx *gin.Context, limit int64, tooLarge error) (*limitedBody, bool) {
	if ctx.Request.ContentLength > limit {
		abortWithUploadError(ctx, fmt.Errorf("%w: request body of %d bytes exceeds %d", tooLarge, ctx.Request.ContentLength, limit))
		return nil, false
	}
	body := &limitedBody{ReadCloser: http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)}
	ctx.Request.Body = body
	return body, true
}

// abortOnBodyError reports a read failure, as tooLarge when the body went over its cap
func abortOnBodyError(ctx *gin.Context, body *limitedBody, tooLarge, err error) {
	if body.exceeded {
		abortWithUploadError(ctx, fmt.Errorf("%w: %w", tooLarge, err))
		return
	}
	api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
}

// abortWithUploadError maps service errors onto the api error codes
func abortWithUploadError(ctx *gin.Context, err error) {
	var incomplete *upload.IncompleteUploadError
	if errors.As(err, &incomplete) {
		api.AbortWithAPIError(ctx, http.StatusConflict, &api.APIError{
			Code:           api.CodeUploadIncomplete,
			Message:        err.Error(),
			MissingIndices: incomplete.Missing,
		}, err)
		return
	}

	status, code := classify(err)
	api.AbortWithError(ctx, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrInvalidInput):
		return http.StatusBadRequest, api.CodeInvalidRequest
	case errors.Is(err, upload.ErrUnknownSession):
		return http.StatusNotFound, api.CodeUploadUnknownSession
	case errors.Is(err, upload.ErrIndexOutOfRange):
		return http.StatusBadRequest, api.CodeUploadIndexOutOfRange
	case errors.Is(err, upload.ErrAssemblyInProgress):
		return http.StatusConflict, api.CodeUploadAssemblyInProgress
	case errors.Is(err, upload.ErrSessionClosed):
		return http.StatusConflict, api.CodeUploadSessionClosed
	// assembly failures wrap the size or checksum cause, so they are matched first
	case errors.Is(err, upload.ErrAssemblyFailed):
		return http.StatusInternalServerError, api.CodeUploadAssemblyFailed
	case errors.Is(err, upload.ErrChunkSizeMismatch), errors.Is(err, upload.ErrSizeMismatch):
		return http.StatusUnprocessableEntity, api.CodeUploadSizeMismatch
	case errors.Is(err, upload.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity, api.CodeUploadChecksumMismatch
	case errors.Is(err, upload.ErrStorageWrite):
		return http.StatusInternalServerError, api.CodeUploadChunkFailed
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, api.CodeUploadRejected
	case errors.Is(err, upload.ErrTooManySessions):
		return http.StatusTooManyRequests, api.CodeUploadRejected
	case errors.Is(err, upload.ErrInsufficientStorage):
		return http.StatusInsufficientStorage, api.CodeUploadRejected
	case errors.Is(err, upload.ErrNameNotAllowed):
		return http.StatusForbidden, api.CodeUploadRejected
	case errors.Is(err, upload.ErrNotFound):
		return http.StatusNotFound, api.CodeFileNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, api.CodeUploadChunkFailed
	default:
		return http.StatusInternalServerError, api.CodeInternalError
	}
}
