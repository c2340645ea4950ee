// Package notification provides notice sinks for the upload orchestrator.
package notification

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"pasteup/internal/host"
	id "pasteup/internal/utils/id"
)

// Terminal prints notices as single lines. Persistent notices are marked as
// pending and reprinted as done when dismissed.
type Terminal struct {
	mu           sync.Mutex
	out          io.Writer
	colorEnabled bool
	pending      map[host.NoticeID]string
}

// NewTerminal writes to out, colouring output only when out is a terminal.
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stderr
	}
	return &Terminal{
		out:          out,
		colorEnabled: isTerminal(out) && !color.NoColor,
		pending:      map[host.NoticeID]string{},
	}
}

// Show prints message and returns an id usable with Dismiss.
func (t *Terminal) Show(message string, timeout time.Duration) host.NoticeID {
	noticeID := host.NoticeID(id.NewNoticeID())

	t.mu.Lock()
	defer t.mu.Unlock()
	if timeout == host.Persistent {
		t.pending[noticeID] = message
		fmt.Fprintln(t.out, t.colorize("… "+message, color.FgCyan))
		return noticeID
	}
	fmt.Fprintln(t.out, t.colorize(message, colorFor(message)...))
	return noticeID
}

// Dismiss forgets a persistent notice.
func (t *Terminal) Dismiss(noticeID host.NoticeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, noticeID)
}

// Pending returns the number of persistent notices still shown.
func (t *Terminal) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Terminal) colorize(text string, attrs ...color.Attribute) string {
	if !t.colorEnabled || len(attrs) == 0 {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func colorFor(message string) []color.Attribute {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "fallback") && !strings.Contains(lower, "also failed"):
		return []color.Attribute{color.FgYellow}
	case strings.Contains(lower, "fail"), strings.Contains(lower, "missing"), strings.Contains(lower, "unavailable"):
		return []color.Attribute{color.FgRed, color.Bold}
	case strings.Contains(lower, "in progress"):
		return []color.Attribute{color.FgYellow}
	default:
		return []color.Attribute{color.FgGreen}
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
