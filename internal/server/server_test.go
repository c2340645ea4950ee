package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasteup/internal/config"
	"pasteup/internal/logging"
	"pasteup/internal/notification"
	"pasteup/internal/observability"
	"pasteup/internal/testutil"
	"pasteup/internal/upload"
)

type stubRemote struct {
	outcome upload.Outcome
}

func (s stubRemote) Upload(context.Context, upload.Payload, config.UploadConfig) upload.Outcome {
	return s.outcome
}

func newTestServer(t *testing.T, outcome upload.Outcome, mutate func(*config.UploadConfig)) (*Server, *testutil.MemoryStore) {
	t.Helper()
	cfg := config.Defaults()
	cfg.EndpointURL = "https://img.example/upload"
	if mutate != nil {
		mutate(&cfg)
	}
	store := testutil.NewMemoryStore(cfg)

	obsCfg := observability.DefaultConfig()
	obsCfg.Logging.Output = &bytes.Buffer{}
	obs, err := observability.New(obsCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	files := testutil.NewFiles()
	orch := upload.NewOrchestrator(upload.Dependencies{
		Store:    store,
		Remote:   stubRemote{outcome: outcome},
		Local:    upload.NewLocalWriter(nil, files, files, "attachments").WithLogger(logging.Nop()),
		Notifier: notification.NewRecorder(nil),
		Logger:   logging.Nop(),
		Metrics:  obs.Metrics,
		Tracer:   obs.Tracer,
	})

	serverCfg := DefaultConfig()
	serverCfg.AllowedOrigins = []string{"app://obsidian.md"}
	srv := New(serverCfg, Dependencies{
		Orchestrator:  orch,
		Store:         store,
		Observability: obs,
		Logger:        logging.Nop(),
	})
	return srv, store
}

func multipartUpload(t *testing.T, field, filename, contentType string, data []byte, note string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if note != "" {
		require.NoError(t, writer.WriteField("note", note))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Uploading)
	assert.Zero(t, health.Connections)
}

func TestUploadEndpointReturnsMarkdown(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	body, contentType := multipartUpload(t, "image", "shot.png", "image/png", []byte("0123456789"), "notes/today.md")

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "uploaded", resp.Status)
	assert.Equal(t, "![shot.png](https://cdn.example/x.png)", resp.Markdown)
	assert.NotEmpty(t, resp.UploadID)
	require.NotEmpty(t, resp.Notices)
	assert.Equal(t, upload.NoticeUploaded, resp.Notices[len(resp.Notices)-1].Message)
}

func TestUploadEndpointFallsBackLocally(t *testing.T) {
	srv, _ := newTestServer(t, upload.Failure("network down"), nil)
	body, contentType := multipartUpload(t, "image", "shot.png", "image/png", []byte("png"), "")

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "saved_locally", resp.Status)
	assert.Equal(t, "network down", resp.Reason)
	assert.True(t, strings.HasPrefix(resp.Markdown, "![shot.png](local/attachments/pasted-image-"))
}

func TestUploadEndpointRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)

	body, contentType := multipartUpload(t, "file", "shot.png", "image/png", []byte("png"), "")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartUpload(t, "image", "notes.txt", "text/plain", []byte("hello"), "")
	req = httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadEndpointReportsMisconfiguration(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), func(cfg *config.UploadConfig) {
		cfg.EndpointURL = ""
	})
	body, contentType := multipartUpload(t, "image", "shot.png", "image/png", []byte("png"), "")

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload configuration missing: endpoint_url")
}

func TestMetricsEndpointAfterUpload(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	body, contentType := multipartUpload(t, "image", "shot.png", "image/png", []byte("png"), "")
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pasteup_uploads")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/uploads", nil)
	req.Header.Set("Origin", "app://obsidian.md")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "app://obsidian.md", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginPolicyWithoutAllowList(t *testing.T) {
	srv := &Server{cfg: Config{}}
	cases := map[string]bool{
		"http://localhost":                  true,
		"http://localhost:5173":             true,
		"https://localhost":                 true,
		"http://127.0.0.1:8080":             true,
		"http://[::1]:3000":                 true,
		"http://localhost.attacker.example": false,
		"http://127.0.0.1.attacker.example": false,
		"http://localhostevil.com":          false,
		"http://user@evil.example":          false,
		"https://obsidian.md":               false,
		"file://localhost":                  false,
		"null":                              false,
	}
	for origin, want := range cases {
		assert.Equal(t, want, srv.originAllowed(origin), origin)
	}
}

func TestBridgeUpgradeChecksOrigin(t *testing.T) {
	dial := func(t *testing.T, allowed []string, origin string) (*http.Response, error) {
		t.Helper()
		srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
		srv.cfg.AllowedOrigins = allowed
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		header := http.Header{}
		header.Set("Origin", origin)
		ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/events", header)
		if err == nil {
			_ = ws.Close()
		}
		return resp, err
	}

	cases := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{name: "configured origin", allowed: []string{"app://obsidian.md"}, origin: "app://obsidian.md", ok: true},
		{name: "origin outside allow list", allowed: []string{"app://obsidian.md"}, origin: "http://localhost:5173"},
		{name: "loopback without allow list", origin: "http://127.0.0.1:5173", ok: true},
		{name: "loopback prefix on foreign host", origin: "http://localhost.attacker.example"},
		{name: "loopback-like host name", origin: "http://localhostevil.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := dial(t, tc.allowed, tc.origin)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestCORSRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	srv.cfg.AllowedOrigins = nil

	req := httptest.NewRequest(http.MethodOptions, "/v1/uploads", nil)
	req.Header.Set("Origin", "http://localhost.attacker.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialBridge(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws, func() {
		_ = ws.Close()
		ts.Close()
	}
}

// collect reads bridge messages until every wanted type has been seen. Uploads
// run off the read loop, so an insert may arrive before the ack.
func collect(t *testing.T, ws *websocket.Conn, wanted ...string) map[string][]OutboundMessage {
	t.Helper()
	seen := make(map[string][]OutboundMessage)
	deadline := time.Now().Add(5 * time.Second)
	done := func() bool {
		for _, msgType := range wanted {
			if len(seen[msgType]) == 0 {
				return false
			}
		}
		return true
	}
	for !done() {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg OutboundMessage
		require.NoError(t, ws.ReadJSON(&msg))
		seen[msg.Type] = append(seen[msg.Type], msg)
	}
	return seen
}

func TestBridgePasteInsertsMarkdown(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	ws, cleanup := dialBridge(t, srv)
	defer cleanup()

	require.NoError(t, ws.WriteJSON(InboundMessage{Type: MessageFocus, Path: "notes/today.md"}))
	require.NoError(t, ws.WriteJSON(InboundMessage{
		Type: MessagePaste,
		ID:   "evt-1",
		Items: []WireItem{
			{Kind: "string", Type: "text/plain", Data: []byte("caption")},
			{Kind: "file", Type: "image/png", Data: []byte("0123456789")},
		},
	}))

	seen := collect(t, ws, MessageAck, MessageInsert)
	ack := seen[MessageAck][0]
	assert.Equal(t, "evt-1", ack.ID)
	require.NotNil(t, ack.PreventDefault)
	assert.True(t, *ack.PreventDefault)

	insert := seen[MessageInsert][0]
	assert.Equal(t, "![clipboard.png](https://cdn.example/x.png)", insert.Text)
	assert.Equal(t, "notes/today.md", insert.Path)

	require.Eventually(t, func() bool { return !srv.orch.Busy() }, 5*time.Second, 10*time.Millisecond)
}

func TestBridgeDropNeedsFocusedDocument(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	ws, cleanup := dialBridge(t, srv)
	defer cleanup()

	drop := InboundMessage{Type: MessageDrop, ID: "drop-1", Files: []WireItem{{Type: "image/png", Name: "a.png", Data: []byte("a")}}}
	require.NoError(t, ws.WriteJSON(drop))
	ack := collect(t, ws, MessageAck)[MessageAck][0]
	assert.Equal(t, "drop-1", ack.ID)
	require.NotNil(t, ack.PreventDefault)
	assert.False(t, *ack.PreventDefault)

	require.NoError(t, ws.WriteJSON(InboundMessage{Type: MessageFocus, Path: "inbox.md"}))
	drop.ID = "drop-2"
	require.NoError(t, ws.WriteJSON(drop))

	seen := collect(t, ws, MessageAck, MessageInsert)
	ack = seen[MessageAck][0]
	assert.Equal(t, "drop-2", ack.ID)
	assert.True(t, *ack.PreventDefault)
	assert.Equal(t, "![a.png](https://cdn.example/x.png)", seen[MessageInsert][0].Text)
	assert.Equal(t, "inbox.md", seen[MessageInsert][0].Path)
}

func TestBridgeDragOverAndUnknownMessages(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	ws, cleanup := dialBridge(t, srv)
	defer cleanup()

	require.NoError(t, ws.WriteJSON(InboundMessage{Type: MessageDragOver, ID: "over-1"}))
	ack := collect(t, ws, MessageAck)[MessageAck][0]
	require.NotNil(t, ack.PreventDefault)
	assert.True(t, *ack.PreventDefault)

	require.NoError(t, ws.WriteJSON(InboundMessage{Type: "resize", ID: "x"}))
	errMsg := collect(t, ws, MessageError)[MessageError][0]
	assert.Equal(t, "x", errMsg.ID)
	assert.Contains(t, errMsg.Error, "resize")
}

func TestShutdownClosesBridgeConnections(t *testing.T) {
	srv, _ := newTestServer(t, upload.Success("https://cdn.example/x.png"), nil)
	ws, cleanup := dialBridge(t, srv)
	defer cleanup()

	require.Eventually(t, func() bool {
		srv.connMu.RLock()
		defer srv.connMu.RUnlock()
		return len(srv.conns) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
}
