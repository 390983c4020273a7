package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	// published files are served as stored, with range support
	excludedPaths = []string{
		"/healthz",
		"/files/",
	}
	excludedExtensions = []string{
		".png", ".gif", ".jpeg", ".jpg", ".webp", ".avif", ".ico",
		".zip", ".tar", ".gz", ".bz2", ".rar", ".7z", ".zst",
		".mp4", ".webm", ".mov", ".mp3",
		".woff", ".woff2", ".ttf", ".otf",
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	}
)

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
