package server

import (
	"time"

	"pasteup/internal/notification"
)

// Inbound bridge message types.
const (
	MessageFocus    = "focus"
	MessageBlur     = "blur"
	MessagePaste    = "paste"
	MessageDrop     = "drop"
	MessageDragOver = "dragover"
)

// Outbound bridge message types.
const (
	MessageAck     = "ack"
	MessageInsert  = "insert"
	MessageNotice  = "notice"
	MessageDismiss = "dismiss"
	MessageError   = "error"
)

// WireItem is a clipboard item or dropped file. Data is base64 in JSON.
type WireItem struct {
	Kind string `json:"kind,omitempty"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// InboundMessage is an event forwarded by the editor.
type InboundMessage struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Path  string     `json:"path,omitempty"`
	Items []WireItem `json:"items,omitempty"`
	Files []WireItem `json:"files,omitempty"`
}

// OutboundMessage is an answer or command sent to the editor.
type OutboundMessage struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	PreventDefault *bool  `json:"preventDefault,omitempty"`
	Text           string `json:"text,omitempty"`
	Path           string `json:"path,omitempty"`
	NoticeID       string `json:"noticeId,omitempty"`
	Message        string `json:"message,omitempty"`
	TimeoutMs      int64  `json:"timeoutMs,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      string    `json:"uptime"`
	Uploading   bool      `json:"uploading"`
	Connections int       `json:"connections"`
}

// UploadResponse is returned by POST /v1/uploads.
type UploadResponse struct {
	UploadID  string                `json:"uploadId,omitempty"`
	Status    string                `json:"status"`
	Markdown  string                `json:"markdown,omitempty"`
	URL       string                `json:"url,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	ErrorType string                `json:"errorType,omitempty"`
	Notices   []notification.Notice `json:"notices"`
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
