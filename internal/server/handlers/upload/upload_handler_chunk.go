package upload

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/upload"
)

// HeaderChunkChecksum carries the optional sha256 of a chunk body
const HeaderChunkChecksum = "X-Chunk-Checksum"

// Chunk accepts one chunk, either as the raw request body or as the multipart field "chunk"
func (h *UploadHandler) Chunk(ctx *gin.Context) {
	limited, ok := limitBody(ctx, h.svc.MaxChunkSize()+multipartOverhead, upload.ErrChunkSizeMismatch)
	if !ok {
		return
	}

	var req ChunkRequest
	multipart := strings.HasPrefix(ctx.ContentType(), "multipart/")

	var err error
	if multipart {
		err = ctx.ShouldBind(&req)
	} else {
		err = ctx.ShouldBindQuery(&req)
	}
	if err != nil {
		abortOnBodyError(ctx, limited, upload.ErrChunkSizeMismatch, fmt.Errorf("invalid chunk request: %w", err))
		return
	}

	var (
		body io.Reader
		size int64
	)
	if multipart {
		file, err := ctx.FormFile("chunk")
		if err != nil {
			abortOnBodyError(ctx, limited, upload.ErrChunkSizeMismatch, fmt.Errorf("invalid chunk: %w", err))
			return
		}
		fd, err := file.Open()
		if err != nil {
			api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid chunk: %w", err))
			return
		}
		defer fd.Close()
		body, size = fd, file.Size
	} else {
		body, size = ctx.Request.Body, ctx.Request.ContentLength
	}

	sess, err := h.svc.RecordChunk(ctx.Request.Context(), &upload.ChunkParams{
		SessionID:   req.SessionID,
		Index:       *req.Index,
		TotalChunks: req.TotalChunks,
		Size:        size,
		Checksum:    ctx.GetHeader(HeaderChunkChecksum),
		Body:        body,
	})
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ChunkResponse{
		Accepted:       true,
		Index:          *req.Index,
		ReceivedChunks: sess.Received.Cardinality(),
		TotalChunks:    sess.TotalChunks,
	})
}
