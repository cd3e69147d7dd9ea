package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/reelforge/reelforge/internal/models"
)

// Store is the local media store: a filesystem hierarchy partitioned by
// media kind (image/video/audio/output). Identifiers are "<kind>/<filename>"
// and map directly onto paths under the root.
type Store struct {
	root string
}

var kinds = []models.MediaKind{
	models.MediaKindImage,
	models.MediaKindVideo,
	models.MediaKindAudio,
	models.MediaKindOutput,
}

// New creates the store root and one directory per media kind.
func New(root string) (*Store, error) {
	for _, k := range kinds {
		if err := os.MkdirAll(filepath.Join(root, string(k)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir for %s: %w", k, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory (served statically by the API).
func (s *Store) Root() string {
	return s.root
}

// FreshName returns a new unique identifier under the given kind.
func (s *Store) FreshName(kind models.MediaKind, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return string(kind) + "/" + uuid.New().String() + ext
}

// Path maps an identifier to its absolute path without checking existence.
// Identifiers containing traversal elements are rejected.
func (s *Store) Path(id string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid media identifier %q", id)
	}
	return filepath.Join(s.root, clean), nil
}

// Resolve maps an identifier to an existing file path.
func (s *Store) Resolve(id string) (string, error) {
	path, err := s.Path(id)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("media %q not found in store: %w", id, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("media %q is not a file", id)
	}
	return path, nil
}

// Save writes data under a fresh identifier of the given kind and returns it.
func (s *Store) Save(kind models.MediaKind, ext string, data []byte) (string, error) {
	id := s.FreshName(kind, ext)
	path, err := s.Path(id)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return id, nil
}

// Import moves an existing file into the store under a fresh identifier.
// Falls back to copy when a rename crosses filesystems.
func (s *Store) Import(kind models.MediaKind, srcPath string) (string, error) {
	id := s.FreshName(kind, filepath.Ext(srcPath))
	dst, err := s.Path(id)
	if err != nil {
		return "", err
	}
	if err := os.Rename(srcPath, dst); err != nil {
		data, readErr := os.ReadFile(srcPath)
		if readErr != nil {
			return "", fmt.Errorf("failed to import media: %w", err)
		}
		if writeErr := os.WriteFile(dst, data, 0644); writeErr != nil {
			return "", fmt.Errorf("failed to import media: %w", writeErr)
		}
		os.Remove(srcPath)
	}
	return id, nil
}
