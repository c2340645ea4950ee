package upload

import (
	"fmt"
	"strings"

	"pasteup/internal/attachments"
	pasteerrors "pasteup/internal/errors"
)

// Payload is an image extracted from an editor event. It is consumed once.
type Payload struct {
	Data      []byte
	Filename  string
	MediaType string
}

// NewPayload builds a payload, sanitising the filename and filling in a name
// derived from the media type when none is given.
func NewPayload(data []byte, filename, mediaType string) (Payload, error) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if !attachments.IsImageType(mediaType) {
		return Payload{}, fmt.Errorf("media type %q is not an image", mediaType)
	}
	name := attachments.SanitizeFileName(filename, mediaType)
	if name == "" {
		name = "image." + attachments.ImageExtension(mediaType)
	}
	return Payload{Data: data, Filename: name, MediaType: mediaType}, nil
}

// Size returns the payload length in bytes.
func (p Payload) Size() int {
	return len(p.Data)
}

// Outcome is the result of one upload attempt: a URL or a failure reason.
type Outcome struct {
	url    string
	reason string
	cause  error
	ok     bool
}

// Success reports a stored image reachable at url.
func Success(url string) Outcome {
	return Outcome{url: url, ok: true}
}

// Failure reports an attempt that did not store the image.
func Failure(reason string) Outcome {
	return Outcome{reason: reason}
}

// FailureWithCause reports a failure and keeps the underlying error for
// classification.
func FailureWithCause(reason string, cause error) Outcome {
	return Outcome{reason: reason, cause: cause}
}

// Failuref formats a failure reason.
func Failuref(format string, args ...any) Outcome {
	return Failure(fmt.Sprintf(format, args...))
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.ok }

// URL is the stored reference; empty on failure.
func (o Outcome) URL() string { return o.url }

// Reason is the failure description; empty on success.
func (o Outcome) Reason() string { return o.reason }

// Cause is the error behind a failure, if one was recorded.
func (o Outcome) Cause() error { return o.cause }

// ErrorType classifies a failure as transient, permanent or degraded. It is
// empty on success.
func (o Outcome) ErrorType() string {
	if o.ok {
		return ""
	}
	return pasteerrors.KindOf(o.cause).String()
}

func (o Outcome) status() string {
	if o.ok {
		return "ok"
	}
	return "failed"
}

func (o Outcome) String() string {
	if o.ok {
		return "success(" + o.url + ")"
	}
	return "failure(" + o.reason + ")"
}

// ImageMarkdown renders the reference inserted into the document.
func ImageMarkdown(filename, url string) string {
	return "![" + filename + "](" + url + ")"
}
