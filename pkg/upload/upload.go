// Package upload stores files attached to chat prompts on local disk, one
// directory per category.
package upload

import (
	"errors"
	"io"
	"strings"
	"time"
)

const (
	// MaxFileSize is the largest accepted upload.
	MaxFileSize = 50 << 20

	// MaxFiles is the largest number of files accepted by one request.
	MaxFiles = 10

	// URLPrefix is the path under which stored files are served.
	URLPrefix = "/uploads/"
)

// Categories of stored files.
const (
	CategoryImages = "images"
	CategoryPDFs   = "pdfs"
	CategoryAudio  = "audio"
	CategoryOthers = "others"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds the upload size limit")

	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidPath is returned for paths outside the upload directory.
	ErrInvalidPath = errors.New("invalid upload path")
)

// File describes a stored upload.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	Category   string    `json:"category"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store persists uploads.
type Store interface {
	// Save stores the content of r under a generated name.
	Save(name, mime string, r io.Reader) (File, error)

	// List returns every stored file, newest first.
	List() ([]File, error)

	// Open returns the content of a stored file addressed by its served
	// path ("/uploads/images/<id>"), a URL containing it, or "<category>/<id>".
	Open(path string) (io.ReadCloser, error)

	// Resolve maps the same references to a local file path.
	Resolve(path string) (string, error)
}

// Category returns the storage category of a MIME type.
func Category(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return CategoryImages
	case mime == "application/pdf":
		return CategoryPDFs
	case strings.HasPrefix(mime, "audio/"):
		return CategoryAudio
	default:
		return CategoryOthers
	}
}

// Categories returns every storage category.
func Categories() []string {
	return []string{CategoryImages, CategoryPDFs, CategoryAudio, CategoryOthers}
}
