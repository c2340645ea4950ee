// Package host declares the capabilities the upload core needs from the editor
// application it runs inside.
package host

import "time"

// Target is the focused document position an image reference is written into.
// The core never creates or closes targets.
type Target interface {
	// InsertAtCursor replaces the current selection or cursor position with text.
	InsertAtCursor(text string)
	// DocumentPath is the vault-relative path of the document, used to place
	// attachments next to it. It may be empty.
	DocumentPath() string
}

// Workspace exposes the document view currently in focus.
type Workspace interface {
	ActiveTarget() (Target, bool)
}

// PathAllocator returns collision-free storage paths for attachments.
type PathAllocator interface {
	AllocatePath(filename, contextPath string) (string, error)
}

// BinaryWriter persists raw bytes and returns a handle to the stored file.
type BinaryWriter interface {
	WriteBinary(path string, data []byte) (string, error)
}

// BinaryRemover is implemented by writers that can delete a stored file again.
type BinaryRemover interface {
	DeleteObject(handle string) error
}

// ResourceResolver maps a stored file handle to a reference usable in markdown.
type ResourceResolver interface {
	Resolve(handle string) (string, error)
}

// NoticeID identifies a shown notice so it can be dismissed.
type NoticeID string

// Persistent keeps a notice on screen until it is dismissed.
const Persistent time.Duration = 0

// Notifier is the user-visible notification sink.
type Notifier interface {
	Show(message string, timeout time.Duration) NoticeID
	Dismiss(id NoticeID)
}

// TargetFunc adapts a function to Target with no document path.
type TargetFunc func(text string)

// InsertAtCursor calls f.
func (f TargetFunc) InsertAtCursor(text string) {
	if f != nil {
		f(text)
	}
}

// DocumentPath returns an empty path.
func (TargetFunc) DocumentPath() string { return "" }

// NoticeRouter is implemented by targets that carry their own notification
// sink, such as a remote editor connection. Notices about an upload into such
// a target go to that sink instead of the default one.
type NoticeRouter interface {
	Notifier() Notifier
}
