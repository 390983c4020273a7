package upload

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/accesslog"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/upload"
)

func (h *UploadHandler) Init(ctx *gin.Context) {
	var req InitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid init request: %w", err))
		return
	}

	sess, err := h.svc.Init(ctx.Request.Context(), &upload.InitParams{
		FileName:    req.FileName,
		FileSize:    *req.FileSize,
		TotalChunks: req.TotalChunks,
		ChunkSize:   req.ChunkSize,
		Checksum:    req.Checksum,
	})
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}
	ctx.Set(accesslog.SessionContextKey, sess.ID)

	ctx.PureJSON(http.StatusCreated, &InitResponse{
		SessionID:   sess.ID,
		FileName:    sess.FileName,
		ChunkSize:   sess.ChunkSize,
		TotalChunks: sess.TotalChunks,
		ExpiresAt:   sess.ExpiresAt,
	})
}
