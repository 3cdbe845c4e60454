package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// DiskStore stores uploads as <dir>/<category>/<uuid><ext>.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates the category directories under dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	for _, category := range Categories() {
		if err := os.MkdirAll(filepath.Join(dir, category), 0o755); err != nil {
			return nil, fmt.Errorf("creating upload directory: %w", err)
		}
	}
	return &DiskStore{dir: dir, maxSize: MaxFileSize}, nil
}

// Dir returns the root upload directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) Save(name, mimeType string, r io.Reader) (File, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	category := Category(mimeType)
	id := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	target := filepath.Join(s.dir, category, id)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("creating upload: %w", err)
	}

	// Read one byte past the limit to detect oversized uploads.
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(target)
		if errors.Is(err, ErrTooLarge) {
			return File{}, err
		}
		return File{}, fmt.Errorf("writing upload: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return File{}, fmt.Errorf("stat upload: %w", err)
	}

	return File{
		ID:         id,
		Name:       name,
		Size:       n,
		Type:       mimeType,
		Category:   category,
		Path:       URLPrefix + category + "/" + id,
		UploadedAt: info.ModTime().UTC(),
	}, nil
}

func (s *DiskStore) List() ([]File, error) {
	var files []File
	for _, category := range Categories() {
		entries, err := os.ReadDir(filepath.Join(s.dir, category))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("listing uploads: %w", err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			mimeType := mime.TypeByExtension(filepath.Ext(entry.Name()))
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			files = append(files, File{
				ID:         entry.Name(),
				Name:       entry.Name(),
				Size:       info.Size(),
				Type:       mimeType,
				Category:   category,
				Path:       URLPrefix + category + "/" + entry.Name(),
				UploadedAt: info.ModTime().UTC(),
			})
		}
	}

	slices.SortFunc(files, func(a, b File) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	return files, nil
}

func (s *DiskStore) Open(path string) (io.ReadCloser, error) {
	local, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	return f, nil
}

// Resolve maps a served path to a file system path inside the upload
// directory.
func (s *DiskStore) Resolve(path string) (string, error) {
	rel := path
	if i := strings.Index(rel, URLPrefix); i >= 0 {
		rel = rel[i+len(URLPrefix):]
	}
	rel = strings.TrimPrefix(rel, "/")

	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	category, _, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || !slices.Contains(Categories(), category) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	return filepath.Join(s.dir, rel), nil
}
