package notification

import (
	"strconv"
	"sync"
	"time"

	"pasteup/internal/host"
)

// Notice is one recorded Show call.
type Notice struct {
	ID        host.NoticeID `json:"noticeId"`
	Message   string        `json:"message"`
	Timeout   time.Duration `json:"-"`
	Dismissed bool          `json:"dismissed"`
}

// Persistent reports whether the notice stays until dismissed.
func (n Notice) Persistent() bool {
	return n.Timeout == host.Persistent
}

// Recorder keeps every notice in memory and optionally forwards to another
// sink. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	next    int
	notices []Notice
	forward host.Notifier
}

// NewRecorder returns a recorder forwarding to next, which may be nil.
func NewRecorder(next host.Notifier) *Recorder {
	return &Recorder{forward: next}
}

// Show records the notice.
func (r *Recorder) Show(message string, timeout time.Duration) host.NoticeID {
	r.mu.Lock()
	r.next++
	noticeID := host.NoticeID("notice-" + strconv.Itoa(r.next))
	r.notices = append(r.notices, Notice{ID: noticeID, Message: message, Timeout: timeout})
	forward := r.forward
	r.mu.Unlock()

	if forward != nil {
		forwarded := forward.Show(message, timeout)
		r.mu.Lock()
		r.notices[len(r.notices)-1].ID = forwarded
		r.mu.Unlock()
		return forwarded
	}
	return noticeID
}

// Dismiss marks the notice as dismissed.
func (r *Recorder) Dismiss(noticeID host.NoticeID) {
	r.mu.Lock()
	for i := range r.notices {
		if r.notices[i].ID == noticeID {
			r.notices[i].Dismissed = true
		}
	}
	forward := r.forward
	r.mu.Unlock()

	if forward != nil {
		forward.Dismiss(noticeID)
	}
}

// Notices returns a copy of everything shown so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Messages returns the text of every notice in order.
func (r *Recorder) Messages() []string {
	notices := r.Notices()
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Message)
	}
	return out
}

// Reset discards recorded notices.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}
