package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

const maxFileNameLen = 200

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName reduces name to a single safe path segment.
// Directory parts are dropped and runs of unsafe characters become a single dash.
// Returns an empty string if nothing usable is left.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	name = unsafeNameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, ".-")
	if len(name) > maxFileNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFileNameLen-len(ext)] + ext
	}
	return name
}
