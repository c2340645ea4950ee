package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pasteup/internal/host"
	"pasteup/internal/intercept"
	"pasteup/internal/logging"
	id "pasteup/internal/utils/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 20
)

// bridgeConn is one editor connected over websocket. It is the editor's event
// source, workspace and notice sink at the same time.
type bridgeConn struct {
	id     string
	ws     *websocket.Conn
	logger logging.Logger
	events *intercept.Dispatcher

	writeMu sync.Mutex

	stateMu sync.Mutex
	focused bool
	path    string

	closeOnce sync.Once
	done      chan struct{}
}

// connTarget is the cursor of one document in a connected editor.
type connTarget struct {
	conn *bridgeConn
	path string
}

func (t connTarget) InsertAtCursor(text string) {
	t.conn.send(OutboundMessage{Type: MessageInsert, Text: text, Path: t.path})
}

func (t connTarget) DocumentPath() string { return t.path }

func (t connTarget) Notifier() host.Notifier { return t.conn }

func (s *Server) handleEvents(c *gin.Context) {
	if s.orch == nil {
		s.writeError(c, http.StatusServiceUnavailable, "uploads are not configured", nil)
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	connID := id.NewConnectionID()
	conn := &bridgeConn{
		id:     connID,
		ws:     ws,
		logger: logging.With(s.logger, "conn", connID),
		events: intercept.NewDispatcher(),
		done:   make(chan struct{}),
	}
	intercept.Register(conn.events, intercept.Dependencies{
		Uploader:  s.orch,
		Store:     s.store,
		Workspace: conn,
		Run:       s.runner.Run,
		Logger:    conn.logger,
		Metrics:   s.metrics(),
	})

	s.addConnection(conn)
	defer s.removeConnection(connID)
	conn.logger.Info("editor connected from %s", c.Request.RemoteAddr)

	go conn.keepAlive()
	conn.readLoop()
	conn.close()
	conn.logger.Info("editor disconnected")
}

// ActiveTarget returns the focused document, if any.
func (c *bridgeConn) ActiveTarget() (host.Target, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !c.focused {
		return nil, false
	}
	return connTarget{conn: c, path: c.path}, true
}

// Show sends a notice command and returns its id.
func (c *bridgeConn) Show(message string, timeout time.Duration) host.NoticeID {
	noticeID := host.NoticeID(id.NewNoticeID())
	c.send(OutboundMessage{
		Type:      MessageNotice,
		NoticeID:  string(noticeID),
		Message:   message,
		TimeoutMs: timeout.Milliseconds(),
	})
	return noticeID
}

// Dismiss sends a dismiss command.
func (c *bridgeConn) Dismiss(noticeID host.NoticeID) {
	if noticeID == "" {
		return
	}
	c.send(OutboundMessage{Type: MessageDismiss, NoticeID: string(noticeID)})
}

func (c *bridgeConn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read bridge message: %v", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(msg)
	}
}

func (c *bridgeConn) dispatch(msg InboundMessage) {
	switch msg.Type {
	case MessageFocus:
		c.stateMu.Lock()
		c.focused = true
		c.path = msg.Path
		c.stateMu.Unlock()
	case MessageBlur:
		c.stateMu.Lock()
		c.focused = false
		c.stateMu.Unlock()
	case MessagePaste:
		evt := &intercept.PasteEvent{Items: toItems(msg.Items)}
		c.ack(msg.ID, c.events.Paste(evt, c.pasteTarget(msg.Path)))
	case MessageDrop:
		evt := &intercept.DropEvent{Files: toFiles(msg.Files)}
		c.ack(msg.ID, c.events.Drop(evt))
	case MessageDragOver:
		c.ack(msg.ID, c.events.DragOver(&intercept.DragOverEvent{}))
	default:
		c.send(OutboundMessage{Type: MessageError, ID: msg.ID, Error: "unknown message type " + msg.Type})
	}
}

func (c *bridgeConn) pasteTarget(path string) host.Target {
	if path == "" {
		c.stateMu.Lock()
		path = c.path
		c.stateMu.Unlock()
	}
	return connTarget{conn: c, path: path}
}

func (c *bridgeConn) ack(eventID string, prevented bool) {
	c.send(OutboundMessage{Type: MessageAck, ID: eventID, PreventDefault: &prevented})
}

func (c *bridgeConn) send(msg OutboundMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Warn("write %s message: %v", msg.Type, err)
	}
}

func (c *bridgeConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *bridgeConn) close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closing"),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func toItems(wire []WireItem) []intercept.Item {
	items := make([]intercept.Item, 0, len(wire))
	for _, w := range wire {
		kind := w.Kind
		if kind == "" {
			kind = "file"
		}
		items = append(items, intercept.Item{Kind: kind, MediaType: w.Type, Name: w.Name, Data: w.Data})
	}
	return items
}

func toFiles(wire []WireItem) []intercept.File {
	files := make([]intercept.File, 0, len(wire))
	for _, w := range wire {
		files = append(files, intercept.File{Name: w.Name, MediaType: w.Type, Data: w.Data})
	}
	return files
}
