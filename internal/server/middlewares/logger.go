package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

// chunk requests arrive by the thousand, only failures are worth a line
const chunkRoute = "/api/v1/uploads/chunk"

func Logger() gin.HandlerFunc {
	return slogGin.NewWithConfig(slog.Default().WithGroup("http"), slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		Filters: []slogGin.Filter{
			slogGin.IgnorePath("/healthz"),
			skipAcceptedChunks,
		},
	})
}

func skipAcceptedChunks(ctx *gin.Context) bool {
	return ctx.FullPath() != chunkRoute || ctx.Writer.Status() >= http.StatusBadRequest
}
