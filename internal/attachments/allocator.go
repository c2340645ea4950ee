package attachments

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const maxAllocationAttempts = 10000

// ErrOutsideRoot is returned when a folder or note path escapes the vault root.
var ErrOutsideRoot = errors.New("path escapes vault root")

// Allocator hands out collision-free attachment paths inside a vault.
//
// Folder is relative to the vault root. A folder starting with "./" is
// resolved against the directory of the note being edited instead.
type Allocator struct {
	root   string
	folder string
	stat   func(string) (fs.FileInfo, error)
}

// NewAllocator creates an allocator for the vault rooted at root.
func NewAllocator(root, folder string) *Allocator {
	return &Allocator{root: root, folder: strings.TrimSpace(folder), stat: os.Stat}
}

// AllocatePath returns a vault-relative, slash-separated path for filename that
// does not exist yet. Existing names are suffixed " 1", " 2", ... before the
// extension.
func (a *Allocator) AllocatePath(filename, contextPath string) (string, error) {
	name := SanitizeFileName(filename, "")
	if name == "" {
		return "", fmt.Errorf("allocate attachment path: empty filename")
	}
	dir, err := a.folderFor(contextPath)
	if err != nil {
		return "", err
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = stem + " " + strconv.Itoa(attempt) + ext
		}
		rel := path.Join(dir, candidate)
		_, err := a.stat(filepath.Join(a.root, filepath.FromSlash(rel)))
		if errors.Is(err, fs.ErrNotExist) {
			return rel, nil
		}
		if err != nil {
			return "", fmt.Errorf("allocate attachment path: %w", err)
		}
	}
	return "", fmt.Errorf("allocate attachment path: no free name for %s after %d attempts", name, maxAllocationAttempts)
}

func (a *Allocator) folderFor(contextPath string) (string, error) {
	folder := filepath.ToSlash(a.folder)
	if folder == "" || folder == "/" {
		return ".", nil
	}
	if strings.HasPrefix(folder, "./") || folder == "." {
		noteDir := path.Dir(path.Clean("/" + filepath.ToSlash(strings.TrimSpace(contextPath))))
		folder = path.Join(noteDir, strings.TrimPrefix(folder, "."))
	}
	cleaned, ok := withinRoot(strings.TrimPrefix(folder, "/"))
	if !ok {
		return "", fmt.Errorf("attachment folder %q: %w", a.folder, ErrOutsideRoot)
	}
	return cleaned, nil
}

// NotePath cleans a vault-relative note path. Absolute paths and paths that
// climb out of the vault return ErrOutsideRoot.
func NotePath(notePath string) (string, error) {
	slashed := filepath.ToSlash(strings.TrimSpace(notePath))
	if slashed == "" {
		return "", fmt.Errorf("note path is empty")
	}
	if filepath.IsAbs(notePath) || path.IsAbs(slashed) {
		return "", fmt.Errorf("note %q: %w", notePath, ErrOutsideRoot)
	}
	cleaned, ok := withinRoot(slashed)
	if !ok || cleaned == "." {
		return "", fmt.Errorf("note %q: %w", notePath, ErrOutsideRoot)
	}
	return cleaned, nil
}

func withinRoot(rel string) (string, bool) {
	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}
