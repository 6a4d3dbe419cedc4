// Package uploads stores raw chat export files on local disk.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mixsig/internal/parsing"
)

var (
	// ErrTooLarge is returned when a file exceeds the configured cap.
	ErrTooLarge = errors.New("file exceeds max size")
	// ErrInvalidFile is returned for a disallowed extension or content type.
	ErrInvalidFile = errors.New("invalid file")
)

var allowedExtensions = map[string][]string{
	parsing.PlatformWhatsApp: {".txt"},
	parsing.PlatformIMessage: {".json"},
	parsing.PlatformGeneric:  {".json"},
}

var allowedContentTypes = map[string][]string{
	parsing.PlatformWhatsApp: {"text/plain", "application/octet-stream"},
	parsing.PlatformIMessage: {"application/json", "text/json", "application/octet-stream"},
	parsing.PlatformGeneric:  {"application/json", "text/json", "application/octet-stream"},
}

// PlatformFromFilename infers the export platform from a file extension:
// .txt is a WhatsApp export and .json the generic format. Other names yield "".
func PlatformFromFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return parsing.PlatformWhatsApp
	case ".json":
		return parsing.PlatformGeneric
	default:
		return ""
	}
}

// Files writes uploads under a root directory with a size cap.
type Files struct {
	root     string
	maxBytes int64
}

// NewFiles creates the root directory if needed.
func NewFiles(root string, maxBytes int64) (*Files, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Files{root: root, maxBytes: maxBytes}, nil
}

// Validate checks the file name extension and content type against the
// platform allow-lists.
func Validate(platform, filename, contentType string) (string, error) {
	exts, ok := allowedExtensions[platform]
	if !ok {
		return "", fmt.Errorf("%w: %q", parsing.ErrUnsupportedPlatform, platform)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(exts, ext) {
		return "", fmt.Errorf("%w: extension %q not allowed for %s", ErrInvalidFile, ext, platform)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !contains(allowedContentTypes[platform], mediaType) {
		return "", fmt.Errorf("%w: content type %q", ErrInvalidFile, contentType)
	}
	return ext, nil
}

// Save validates and streams r to <root>/<uuid><ext>. A partially written
// file is removed when the size cap is exceeded.
func (f *Files) Save(platform, filename, contentType string, r io.Reader) (string, error) {
	ext, err := Validate(platform, filename, contentType)
	if err != nil {
		return "", err
	}

	path := filepath.Join(f.root, uuid.NewString()+ext)
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, f.maxBytes+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	case n > f.maxBytes:
		_ = os.Remove(path)
		return "", ErrTooLarge
	case closeErr != nil:
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", closeErr)
	}
	return path, nil
}

// Open opens a stored upload for reading.
func (f *Files) Open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file. Missing files are not an error.
func (f *Files) Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
