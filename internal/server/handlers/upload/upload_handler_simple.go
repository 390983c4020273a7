package upload

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/upload"
)

// Simple publishes a file sent whole as the multipart field "file"
func (h *UploadHandler) Simple(ctx *gin.Context) {
	limited, ok := limitBody(ctx, h.svc.MaxFileSize()+multipartOverhead, upload.ErrFileTooLarge)
	if !ok {
		return
	}

	var req SimpleRequest
	if err := ctx.ShouldBind(&req); err != nil {
		abortOnBodyError(ctx, limited, upload.ErrFileTooLarge, fmt.Errorf("invalid upload request: %w", err))
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		abortOnBodyError(ctx, limited, upload.ErrFileTooLarge, fmt.Errorf("invalid file: %w", err))
		return
	}

	fd, err := file.Open()
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid file: %w", err))
		return
	}
	defer fd.Close()

	artifact, err := h.svc.UploadSimple(ctx.Request.Context(), &upload.SimpleParams{
		FileName: file.Filename,
		Size:     file.Size,
		Checksum: req.Checksum,
		Body:     fd,
	})
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, artifact)
}
