package upload

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/handlers/api"
)

func (h *UploadHandler) Status(ctx *gin.Context) {
	var req SessionRequest
	if err := ctx.ShouldBindUri(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid session request: %w", err))
		return
	}

	sess, err := h.svc.Status(ctx.Request.Context(), req.SessionID)
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, newSessionResponse(sess))
}

func (h *UploadHandler) Cancel(ctx *gin.Context) {
	var req SessionRequest
	if err := ctx.ShouldBindUri(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid session request: %w", err))
		return
	}

	if err := h.svc.Cancel(ctx.Request.Context(), req.SessionID); err != nil {
		abortWithUploadError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
