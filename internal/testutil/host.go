// Package testutil holds in-memory host collaborators for tests.
package testutil

import (
	"errors"
	"fmt"
	"sync"

	"pasteup/internal/config"
	"pasteup/internal/host"
)

// Target records every insertion.
type Target struct {
	mu       sync.Mutex
	Path     string
	inserted []string
}

// NewTarget returns a target for the document at path.
func NewTarget(path string) *Target {
	return &Target{Path: path}
}

// InsertAtCursor records text.
func (t *Target) InsertAtCursor(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inserted = append(t.inserted, text)
}

// DocumentPath returns Path.
func (t *Target) DocumentPath() string { return t.Path }

// Inserted returns a copy of every inserted text.
func (t *Target) Inserted() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.inserted...)
}

// Workspace exposes a single optional target.
type Workspace struct {
	mu     sync.Mutex
	target *Target
}

// NewWorkspace returns a workspace focused on target, which may be nil.
func NewWorkspace(target *Target) *Workspace {
	return &Workspace{target: target}
}

// Focus replaces the focused target; nil clears focus.
func (w *Workspace) Focus(target *Target) {
	w.mu.Lock()
	w.target = target
	w.mu.Unlock()
}

// ActiveTarget returns the focused target.
func (w *Workspace) ActiveTarget() (host.Target, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.target == nil {
		return nil, false
	}
	return w.target, true
}

// MemoryStore is a config.Store kept in memory.
type MemoryStore struct {
	mu      sync.Mutex
	cfg     config.UploadConfig
	saves   int
	fields  map[string]any
	LoadErr error
	SaveErr error
}

// NewMemoryStore returns a store holding cfg.
func NewMemoryStore(cfg config.UploadConfig) *MemoryStore {
	return &MemoryStore{cfg: cfg}
}

// Load returns the stored config.
func (s *MemoryStore) Load() (config.UploadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return config.UploadConfig{}, s.LoadErr
	}
	return s.cfg, nil
}

// SaveFields applies values to the stored config.
func (s *MemoryStore) SaveFields(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cfg, err := s.cfg.WithFields(values)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.fields = values
	s.saves++
	return nil
}

// Replace swaps the stored config without counting a save.
func (s *MemoryStore) Replace(cfg config.UploadConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// LastFields returns the values passed to the last successful SaveFields.
func (s *MemoryStore) LastFields() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// Saves counts successful SaveFields calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Config returns the current stored config.
func (s *MemoryStore) Config() config.UploadConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// ErrWriteFailed is returned by a failing Files.
var ErrWriteFailed = errors.New("disk full")

// Files is an in-memory BinaryWriter and ResourceResolver.
type Files struct {
	mu         sync.Mutex
	files      map[string][]byte
	writes     int
	WriteErr   error
	ResolveErr error
}

// NewFiles returns an empty file set.
func NewFiles() *Files {
	return &Files{files: map[string][]byte{}}
}

// WriteBinary stores data under path and returns path as the handle.
func (f *Files) WriteBinary(path string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.WriteErr != nil {
		return "", f.WriteErr
	}
	f.files[path] = append([]byte(nil), data...)
	return path, nil
}

// Resolve returns an app-local reference for handle.
func (f *Files) Resolve(handle string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResolveErr != nil {
		return "", f.ResolveErr
	}
	if _, ok := f.files[handle]; !ok {
		return "", fmt.Errorf("%s: not found", handle)
	}
	return "local/" + handle, nil
}

// DeleteObject removes the file stored under handle.
func (f *Files) DeleteObject(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, handle)
	return nil
}

// Writes counts WriteBinary calls, including failed ones.
func (f *Files) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// File returns the stored bytes at path.
func (f *Files) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return data, ok
}
