package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// site assets that some platforms leave out of the mime table
var extraTypes = map[string]string{
	".webp": "image/webp",
	".avif": "image/avif",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// DetectContentType guesses the content type of a file from its name
func DetectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if isTextLike(ext) {
		return "text/plain; charset=utf-8"
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func isTextLike(ext string) bool {
	switch ext {
	case ".yaml", ".yml", ".toml", ".md":
		return true
	}
	return false
}
