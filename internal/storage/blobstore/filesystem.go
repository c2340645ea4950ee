package blobstore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for keys that would resolve outside the store root.
var ErrOutsideRoot = errors.New("key escapes store root")

// FilesystemStore writes attachment bytes under a vault directory and resolves
// them to references usable inside markdown links.
type FilesystemStore struct {
	baseDir   string
	publicURL string
}

// NewFilesystemStore creates a new store rooted at the provided base directory.
// If publicURL is empty, Resolve returns the vault-relative path.
func NewFilesystemStore(baseDir, publicURL string) (*FilesystemStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("create filesystem store: empty base directory")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir, publicURL: strings.TrimSpace(publicURL)}, nil
}

// Root returns the store's base directory.
func (s *FilesystemStore) Root() string {
	return s.baseDir
}

// WriteBinary writes data to the vault-relative key and returns the normalised
// key as the handle. Existing files are never overwritten.
func (s *FilesystemStore) WriteBinary(key string, data []byte) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("ensure attachment dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("close attachment: %w", err)
	}
	return clean, nil
}

// Resolve maps a handle returned by WriteBinary to a markdown-safe reference.
func (s *FilesystemStore) Resolve(handle string) (string, error) {
	clean, err := cleanKey(handle)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, filepath.FromSlash(clean))); err != nil {
		return "", fmt.Errorf("resolve attachment: %w", err)
	}
	escaped := escapePath(clean)
	if s.publicURL != "" {
		u, err := url.Parse(s.publicURL)
		if err != nil {
			return "", fmt.Errorf("parse public url: %w", err)
		}
		return strings.TrimSuffix(u.String(), "/") + "/" + escaped, nil
	}
	return escaped, nil
}

// DeleteObject removes a stored attachment. Missing files are not an error.
func (s *FilesystemStore) DeleteObject(key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(clean))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(filepath.ToSlash(key))
	if key == "" {
		return "", fmt.Errorf("empty attachment key")
	}
	clean := path.Clean(strings.TrimPrefix(key, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("attachment key %q: %w", key, ErrOutsideRoot)
	}
	return clean, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
