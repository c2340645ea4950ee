package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"runtime/debug"
	"strings"
	"time"

	"pasteup/internal/config"
	pasteerrors "pasteup/internal/errors"
	"pasteup/internal/httpclient"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
)

// Uploader sends a payload to the remote image store.
type Uploader interface {
	Upload(ctx context.Context, payload Payload, cfg config.UploadConfig) Outcome
}

// Multipart field names understood by the remote endpoint.
const (
	FieldImage       = "image"
	FieldAccessToken = "accessToken"
	FieldAccount     = "account"
	FieldRepository  = "repository"
)

// RemoteClient posts images to the configured endpoint as multipart forms.
type RemoteClient struct {
	client *http.Client
	logger logging.Logger
	tracer *observability.TracerProvider
}

// RemoteOption customises a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithHTTPClient replaces the circuit-breaking default client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(c *RemoteClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger logging.Logger) RemoteOption {
	return func(c *RemoteClient) {
		c.logger = logging.OrNop(logger)
	}
}

// WithRemoteTracer sets the tracer used for upload spans.
func WithRemoteTracer(tracer *observability.TracerProvider) RemoteOption {
	return func(c *RemoteClient) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// NewRemoteClient builds a client whose transport opens a circuit after
// repeated server failures.
func NewRemoteClient(opts ...RemoteOption) *RemoteClient {
	c := &RemoteClient{
		logger: logging.NewComponentLogger("RemoteUpload"),
		tracer: observability.NoopTracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.client == nil {
		c.client = httpclient.NewWithCircuitBreaker(httpclient.DefaultTimeout, c.logger, "upload-endpoint")
	}
	return c
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
	Error    string `json:"error"`
}

// Upload performs a single POST. Every fault, including a panic while
// building or sending the request, is returned as a Failure.
func (c *RemoteClient) Upload(ctx context.Context, payload Payload, cfg config.UploadConfig) (outcome Outcome) {
	logger := logging.FromContext(ctx, c.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("remote upload panic: %v, stack: %s", r, debug.Stack())
			outcome = Failuref("unexpected upload fault: %v", r)
		}
	}()

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanRemoteUpload,
		observability.PayloadAttrs(payload.Filename, payload.MediaType, payload.Size())...)
	defer func() { observability.EndSpan(span, outcome.status(), outcome.Reason()) }()

	body, contentType, err := encodeForm(payload, cfg)
	if err != nil {
		return Failuref("encode upload request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.UploadTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.EndpointURL, body)
	if err != nil {
		return Failuref("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	logger.Debug("POST %s (%s, %d bytes, mode=%s, token=%s)", cfg.EndpointURL, payload.Filename,
		payload.Size(), cfg.CredentialMode, observability.SanitizeAPIKey(cfg.AccessToken))

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("upload transport error after %s: %v (%s)", time.Since(started), err, pasteerrors.KindOf(err))
		return FailureWithCause(describeTransportError(err), err)
	}

	limit := cfg.MaxResponseBytes
	if limit <= 0 {
		limit = httpclient.DefaultMaxResponseBytes
	}
	data, err := httpclient.ReadResponseBody(resp, limit)
	if err != nil {
		return FailureWithCause(fmt.Sprintf("read upload response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(data))
		classified := pasteerrors.FromHTTPStatus(resp.StatusCode, text)
		logger.Warn("upload rejected: status=%d type=%s", resp.StatusCode, pasteerrors.KindOf(classified))
		return FailureWithCause(fmt.Sprintf("upload failed with status %d: %s", resp.StatusCode, text), classified)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Failuref("malformed upload response: %v", err)
	}
	if !parsed.Success {
		if reason := strings.TrimSpace(parsed.Error); reason != "" {
			return Failure(reason)
		}
		return Failure("remote endpoint reported failure")
	}
	if strings.TrimSpace(parsed.ImageURL) == "" {
		return Failure("upload response did not include an image URL")
	}

	logger.Info("uploaded %s in %s", payload.Filename, time.Since(started))
	return Success(strings.TrimSpace(parsed.ImageURL))
}

func encodeForm(payload Payload, cfg config.UploadConfig) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldImage, payload.Filename))
	header.Set("Content-Type", payload.MediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, "", err
	}

	for _, field := range credentialFields(cfg) {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func credentialFields(cfg config.UploadConfig) [][2]string {
	switch cfg.CredentialMode {
	case config.ModeToken, config.ModeCredits:
		return [][2]string{{FieldAccessToken, cfg.AccessToken}}
	case config.ModeRepository:
		return [][2]string{
			{FieldAccessToken, cfg.AccessToken},
			{FieldAccount, cfg.AccountID},
			{FieldRepository, cfg.Repository},
		}
	default:
		return nil
	}
}

func describeTransportError(err error) string {
	var uploadErr *pasteerrors.UploadError
	if errors.As(err, &uploadErr) && uploadErr.Kind == pasteerrors.KindDegraded {
		return uploadErr.Error()
	}
	return fmt.Sprintf("upload request failed: %v", err)
}
