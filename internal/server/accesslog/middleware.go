package accesslog

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records an entry after each request of the given action.
// subjectKey names the gin context key holding the authenticated subject.
func (al *AccessLogger) Middleware(action Action, subjectKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()

		entry := AccessLogEntry{
			Timestamp:  time.Now().UTC(),
			Action:     action,
			Subject:    ctx.GetString(subjectKey),
			SessionID:  sessionID(ctx),
			Path:       ctx.Request.URL.Path,
			IP:         ctx.ClientIP(),
			UserAgent:  ctx.Request.UserAgent(),
			Method:     ctx.Request.Method,
			StatusCode: ctx.Writer.Status(),
		}
		if errs := ctx.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			entry.Error = strings.Join(errs.Errors(), "; ")
		}
		al.Log(entry)
	}
}

func sessionID(ctx *gin.Context) string {
	if id := ctx.Param("sessionId"); id != "" {
		return id
	}
	if id := ctx.Query("sessionId"); id != "" {
		return id
	}
	return ctx.GetString(SessionContextKey)
}

// SessionContextKey lets handlers report a session id that is not part of the url
const SessionContextKey = "accesslog.session"
