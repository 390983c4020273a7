package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumensite/lumen/internal/server/accesslog"
	"github.com/lumensite/lumen/internal/server/handlers/api"
	"github.com/lumensite/lumen/internal/server/handlers/upload"
	"github.com/lumensite/lumen/internal/server/middlewares"
	"github.com/lumensite/lumen/internal/version"
)

func SetupRoutes(svc *Services, cfg *Config) (http.Handler, error) {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB, larger parts spill to disk

	uploadH := upload.New(svc.Upload)
	audit := func(action accesslog.Action) gin.HandlerFunc {
		return svc.AccessLog.Middleware(action, middlewares.SubjectContextKey)
	}

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.SecureHeaders(cfg.HTTP.TLS()))
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	r.GET("/files/*name", uploadH.File)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.JWTAuth(svc.Auth))

	uploads := v1.Group("/uploads")
	if cfg.RateLimit != "" {
		limiter, err := middlewares.RateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		uploads.Use(limiter)
	}
	{
		uploads.POST("/init", audit(accesslog.ActionInit), uploadH.Init)
		uploads.PUT("/chunk", uploadH.Chunk)
		uploads.POST("/chunk", uploadH.Chunk)
		uploads.POST("/complete", audit(accesslog.ActionComplete), uploadH.Complete)
		uploads.PUT("/simple", audit(accesslog.ActionSimple), uploadH.Simple)
		uploads.POST("/simple", audit(accesslog.ActionSimple), uploadH.Simple)
		uploads.GET("/:sessionId", uploadH.Status)
		uploads.DELETE("/:sessionId", audit(accesslog.ActionCancel), uploadH.Cancel)
	}

	r.HandleMethodNotAllowed = true
	r.NoRoute(func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusNotFound, &api.APIError{Code: api.CodeNotFound, Message: "not found"})
	})
	r.NoMethod(func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusMethodNotAllowed, &api.APIError{Code: api.CodeMethodNotAllowed, Message: "method not allowed"})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, version.Current())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
