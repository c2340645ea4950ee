// Package intercept decides which editor paste and drop events carry images,
// suppresses their default handling and hands the images to the uploader.
package intercept

import (
	"sync"

	"pasteup/internal/host"
)

// Item is one clipboard entry. Kind is "file" for binary entries and
// "string" for text.
type Item struct {
	Kind      string
	MediaType string
	Name      string
	Data      []byte
}

// File is one dropped file.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

type defaultGuard struct {
	prevented bool
}

// PreventDefault suppresses the host's own handling of the event.
func (g *defaultGuard) PreventDefault() { g.prevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (g *defaultGuard) DefaultPrevented() bool { return g.prevented }

// PasteEvent is a clipboard paste into an editor.
type PasteEvent struct {
	defaultGuard
	Items []Item
}

// DropEvent is a drag-and-drop onto the workspace.
type DropEvent struct {
	defaultGuard
	Files []File
}

// DragOverEvent is a dragover on the workspace.
type DragOverEvent struct {
	defaultGuard
	DropEffect string
}

// PasteHandler receives a paste event and the editor it happened in.
type PasteHandler func(evt *PasteEvent, target host.Target)

// DropHandler receives a drop event.
type DropHandler func(evt *DropEvent)

// DragOverHandler receives a dragover event.
type DragOverHandler func(evt *DragOverEvent)

// Source delivers editor input events. Implementations dispatch one event at
// a time and wait for each handler to return before the next.
type Source interface {
	OnPaste(PasteHandler)
	OnDrop(DropHandler)
	OnDragOver(DragOverHandler)
}

// Dispatcher is an in-process Source. Dispatch calls are serialised.
type Dispatcher struct {
	mu       sync.Mutex
	paste    []PasteHandler
	drop     []DropHandler
	dragOver []DragOverHandler
}

// NewDispatcher returns a dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnPaste registers a paste handler.
func (d *Dispatcher) OnPaste(h PasteHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paste = append(d.paste, h)
}

// OnDrop registers a drop handler.
func (d *Dispatcher) OnDrop(h DropHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop = append(d.drop, h)
}

// OnDragOver registers a dragover handler.
func (d *Dispatcher) OnDragOver(h DragOverHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dragOver = append(d.dragOver, h)
}

// Paste runs every paste handler and reports whether default handling was
// prevented.
func (d *Dispatcher) Paste(evt *PasteEvent, target host.Target) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.paste {
		h(evt, target)
	}
	return evt.DefaultPrevented()
}

// Drop runs every drop handler and reports whether default handling was
// prevented.
func (d *Dispatcher) Drop(evt *DropEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.drop {
		h(evt)
	}
	return evt.DefaultPrevented()
}

// DragOver runs every dragover handler and reports whether default handling
// was prevented.
func (d *Dispatcher) DragOver(evt *DragOverEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.dragOver {
		h(evt)
	}
	return evt.DefaultPrevented()
}
