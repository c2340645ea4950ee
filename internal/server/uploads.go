package server

import (
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"pasteup/internal/httpclient"
	"pasteup/internal/host"
	"pasteup/internal/notification"
	"pasteup/internal/upload"
)

const maxUploadBytes = 64 << 20

// bufferTarget collects insertions for a request that has no live editor.
type bufferTarget struct {
	mu       sync.Mutex
	path     string
	inserted strings.Builder
	notices  *notification.Recorder
}

func (b *bufferTarget) InsertAtCursor(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inserted.WriteString(text)
}

func (b *bufferTarget) DocumentPath() string { return b.path }

func (b *bufferTarget) Notifier() host.Notifier { return b.notices }

func (s *Server) handleUpload(c *gin.Context) {
	if s.orch == nil {
		s.writeError(c, http.StatusServiceUnavailable, "uploads are not configured", nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fileHeader, err := c.FormFile("image")
	if err != nil {
		s.writeError(c, http.StatusBadRequest, "multipart field \"image\" is required", err)
		return
	}
	data, err := readFormFile(fileHeader)
	if err != nil {
		s.writeError(c, http.StatusBadRequest, "read uploaded image", err)
		return
	}

	mediaType := fileHeader.Header.Get("Content-Type")
	if mediaType == "" || strings.HasPrefix(mediaType, "application/octet-stream") {
		mediaType = http.DetectContentType(data)
	}
	payload, err := upload.NewPayload(data, fileHeader.Filename, mediaType)
	if err != nil {
		s.writeError(c, http.StatusUnsupportedMediaType, "only images can be uploaded", err)
		return
	}

	target := &bufferTarget{path: c.PostForm("note"), notices: notification.NewRecorder(nil)}
	result := s.orch.UploadImageFile(context.WithoutCancel(c.Request.Context()), payload, target)

	c.JSON(statusForResult(result.Status), UploadResponse{
		UploadID:  result.UploadID,
		Status:    string(result.Status),
		Markdown:  result.Inserted,
		URL:       result.URL,
		Reason:    result.Reason,
		ErrorType: result.ErrorType,
		Notices:   target.notices.Notices(),
	})
}

func statusForResult(status upload.Status) int {
	switch status {
	case upload.StatusUploaded, upload.StatusSavedLocally:
		return http.StatusOK
	case upload.StatusBusy:
		return http.StatusConflict
	case upload.StatusMisconfigured:
		return http.StatusPreconditionFailed
	default:
		return http.StatusBadGateway
	}
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return httpclient.ReadAllWithLimit(file, maxUploadBytes)
}

func (s *Server) writeError(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		s.logger.Warn("HTTP %d - %s: %v", status, message, err)
		resp.Details = err.Error()
	} else {
		s.logger.Warn("HTTP %d - %s", status, message)
	}
	c.AbortWithStatusJSON(status, resp)
}
