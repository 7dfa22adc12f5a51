package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage persists image assets under a single configured root directory.
// Every path it hands out is validated to resolve inside that root.
type Storage struct {
	root string
}

var ErrOutsideRoot = errors.New("path resolves outside storage root")

func New(rootDir string) (*Storage, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &Storage{root: abs}, nil
}

// SaveRenderResult writes a completed render image and returns its relative path.
func (s *Storage) SaveRenderResult(userID, renderID uuid.UUID, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("render result is empty")
	}
	rel := filepath.Join("renders", userID.String(), renderID.String()+extensionFor(mimeType))
	abs, err := s.GetAbsolutePath(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("creating render directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("writing render result: %w", err)
	}
	return rel, nil
}

// GetAbsolutePath resolves a stored relative path, rejecting traversal out of the root.
func (s *Storage) GetAbsolutePath(relativePath string) (string, error) {
	if strings.TrimSpace(relativePath) == "" {
		return "", errors.New("relative path is required")
	}
	abs := filepath.Join(s.root, filepath.Clean("/"+relativePath))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// ReadFile loads a stored asset after validating its path.
func (s *Storage) ReadFile(relativePath string) ([]byte, error) {
	abs, err := s.GetAbsolutePath(relativePath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
