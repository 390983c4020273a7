package upload

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/accesslog"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/upload"
)

func (h *UploadHandler) Complete(ctx *gin.Context) {
	var req CompleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid complete request: %w", err))
		return
	}

	ctx.Set(accesslog.SessionContextKey, req.SessionID)

	originalName := req.OriginalFileName
	if originalName == "" {
		originalName = req.FileName
	}

	artifact, err := h.svc.Complete(ctx.Request.Context(), &upload.CompleteParams{
		SessionID:        req.SessionID,
		TotalChunks:      req.TotalChunks,
		OriginalFileName: originalName,
	})
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, artifact)
}
