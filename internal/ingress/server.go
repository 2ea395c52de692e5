// Package ingress terminates the per-client WebSocket connection, decodes
// and validates inbound JSON messages, and routes them into the session
// manager. It owns no detection state of its own.
package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/proctorfusion/engine/internal/manager"
	"github.com/proctorfusion/engine/internal/schemavalidation"
	"github.com/proctorfusion/engine/internal/sessionstate"
	"github.com/proctorfusion/engine/internal/vision"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Registry narrows manager.Registry to what a connection needs, so tests
// can supply a fake without building a real Registry.
type Registry interface {
	Start(connectionID string, req manager.StartRequest, emitter manager.Emitter) (string, error)
	RouteFrame(connectionID string, substream vision.Substream, frame vision.Frame) error
	End(ctx context.Context, connectionID string) (sessionstate.SessionReport, error)
}

// Server upgrades incoming HTTP requests to WebSocket connections and runs
// one connection's read loop per client.
type Server struct {
	registry  Registry
	validator *schemavalidation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer builds a Server. now defaults to time.Now when nil.
func NewServer(registry Registry, validator *schemavalidation.Validator, logger *slog.Logger, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{registry: registry, validator: validator, logger: logger, now: now}
}

// Handler returns the http.HandlerFunc that upgrades and serves a single
// proctoring connection, grounded on the upgrade-then-read-loop shape of
// a direct browser-to-server WebSocket endpoint.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "err", err)
			return
		}
		conn := &connection{
			id:       uuid.NewString(),
			ws:       ws,
			server:   s,
			loggedAt: make(map[string]bool),
		}
		conn.serve()
	}
}

// connection is one client's WebSocket session. It owns no detection
// state — that lives in the manager.Registry, keyed by conn.id — but it
// does serialise writes back to the socket, since the manager's session
// actor calls EmitViolations/EmitStatus from its own goroutine, and the
// idle reaper may call EmitEnded from another, concurrently with this
// connection's read loop.
type connection struct {
	id     string
	ws     *websocket.Conn
	server *Server

	writeMu sync.Mutex

	mu             sync.Mutex
	loggedAt       map[string]bool // one decode-failure log per (substream) per connection
	sessionStarted bool
}

func (c *connection) serve() {
	defer c.ws.Close()

	c.writeJSON(newConnectionResponse("connected", ""))

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error", "connection", c.id, "err", err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleMessage(data)
	}

	if c.sessionStarted {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.server.registry.End(ctx, c.id)
		cancel()
	}
}

func (c *connection) handleMessage(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.writeJSON(newError("malformed json"))
		return
	}
	if !schemavalidation.KnownKind(probe.Type) {
		c.writeJSON(newError("unknown message type: " + probe.Type))
		return
	}
	if err := c.server.validator.Validate(probe.Type, data); err != nil {
		c.server.logger.Warn("schema validation failed", "connection", c.id, "type", probe.Type, "err", err)
		c.writeJSON(newError("invalid " + probe.Type + " payload"))
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.writeJSON(newError("malformed json"))
		return
	}

	switch msg.Type {
	case kindStartProctoring:
		c.handleStart(msg)
	case kindVideoFrame:
		c.handleFrame(vision.SubstreamCamera, msg)
	case kindScreenFrame:
		c.handleFrame(vision.SubstreamScreen, msg)
	case kindEndProctoring:
		c.handleEnd()
	}
}

func (c *connection) handleStart(msg inboundMessage) {
	sessionID, err := c.server.registry.Start(c.id, manager.StartRequest{StudentID: msg.StudentID, ExamID: msg.ExamID}, c)
	if err != nil {
		c.writeJSON(newError(err.Error()))
		return
	}
	c.mu.Lock()
	c.sessionStarted = true
	c.mu.Unlock()
	c.writeJSON(newProctoringStarted(sessionID))
}

func (c *connection) handleFrame(substream vision.Substream, msg inboundMessage) {
	pixels, err := decodeDataURL(msg.Frame)
	if err != nil {
		c.logOnce(string(substream), err)
		return
	}

	frame := vision.Frame{
		Substream:  substream,
		CapturedAt: c.server.now(),
		Pixels:     pixels,
	}
	if routeErr := c.server.registry.RouteFrame(c.id, substream, frame); routeErr != nil {
		c.writeJSON(newError(routeErr.Error()))
	}
}

func (c *connection) handleEnd() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.server.registry.End(ctx, c.id); err != nil {
		c.writeJSON(newError(err.Error()))
		return
	}
	c.mu.Lock()
	c.sessionStarted = false
	c.mu.Unlock()
}

func (c *connection) logOnce(kind string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedAt[kind] {
		return
	}
	c.loggedAt[kind] = true
	c.server.logger.Warn("frame decode failed, dropping frame", "connection", c.id, "substream", kind, "err", err)
}

func (c *connection) writeJSON(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		c.server.logger.Warn("websocket write failed", "connection", c.id, "err", err)
	}
}

// EmitViolations implements manager.Emitter.
func (c *connection) EmitViolations(violations []sessionstate.Violation) {
	c.writeJSON(newViolationDetected(violations, c.server.now().UnixMilli(), ""))
}

// EmitStatus implements manager.Emitter.
func (c *connection) EmitStatus(status manager.StatusSnapshot) {
	c.writeJSON(newProctorStatus(status))
}

// EmitEnded implements manager.Emitter.
func (c *connection) EmitEnded(report sessionstate.SessionReport) {
	c.writeJSON(newProctoringEnded(report))
}
