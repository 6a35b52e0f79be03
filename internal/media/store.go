// Package media stores uploaded event banners on local disk and exposes
// them under a public base URL.
package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes files into Dir and builds their URLs from BaseURL.
type Store struct {
	Dir     string
	BaseURL string
}

// NewStore ensures dir exists.
func NewStore(dir, baseURL string) (*Store, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media dir: %w", err)
	}
	return &Store{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

var extByMime = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Extension picks a file extension for a MIME type, ".bin" when unknown.
func Extension(mimeType string) string {
	mt, _, _ := mime.ParseMediaType(mimeType)
	if ext, ok := extByMime[mt]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// Save writes data under a random name and returns its public URL.
func (s *Store) Save(data []byte, mimeType string) (string, error) {
	name := uuid.NewString() + Extension(mimeType)
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("save media: %w", err)
	}
	return s.BaseURL + "/" + name, nil
}
