package upload

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumensite/lumen/internal/utils"
)

// File serves a published artifact. Local files support range requests.
func (h *UploadHandler) File(ctx *gin.Context) {
	name := strings.TrimPrefix(ctx.Param("name"), "/")

	f, err := h.svc.Open(ctx.Request.Context(), name)
	if err != nil {
		abortWithUploadError(ctx, err)
		return
	}
	defer f.Body.Close()

	ctx.Header("Cache-Control", "public, max-age=31536000, immutable")
	ctx.Header("X-Content-Type-Options", "nosniff")

	if rs, ok := f.Body.(io.ReadSeeker); ok {
		ctx.Header("Content-Type", utils.DetectContentType(name))
		http.ServeContent(ctx.Writer, ctx.Request, name, f.LastModified, rs)
		return
	}

	ctx.DataFromReader(http.StatusOK, f.Size, utils.DetectContentType(name), f.Body, map[string]string{
		"Last-Modified":       f.LastModified.UTC().Format(http.TimeFormat),
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", name),
	})
}
