package upload

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Publisher makes assembled files visible under their final name.
type Publisher interface {
	// Publish streams body to name. verify runs after the body is fully written and before
	// the file becomes visible; a verify error aborts the publish and leaves nothing behind.
	Publish(ctx context.Context, name string, size int64, body io.Reader, verify func() error) error

	// Open returns a published file and its size. Unknown names return ErrNotFound.
	Open(ctx context.Context, name string) (*PublishedFile, error)
}

type PublishedFile struct {
	Body         io.ReadCloser
	Size         int64
	LastModified time.Time
}

var publishedNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]{0,254}$`)

// validatePublishedName accepts only single, already sanitised path segments
func validatePublishedName(name string) error {
	if !publishedNameRegex.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid file name %q", ErrNotFound, name)
	}
	return nil
}
