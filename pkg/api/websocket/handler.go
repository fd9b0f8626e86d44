package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventTypeSnapshot is the first message of every stream and carries the
// run status at subscription time
const EventTypeSnapshot domain.EventType = "run.snapshot"

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunLookup resolves the current status of a run
type RunLookup interface {
	GetRunStatus(ctx context.Context, runID string) (*domain.RunSummary, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	runs     RunLookup
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, runs RunLookup, logger *zap.Logger) *Handler {
	return &Handler{
		eventBus: eventBus,
		runs:     runs,
		logger:   logger,
	}
}

// HandleRunStream streams the events of one run until it is terminal or the
// client goes away
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before reading the status so no transition is missed
	events := make(chan domain.Event, eventBuffer)
	if err := h.eventBus.Subscribe(ctx, domain.TopicRunEvents, h.forward(runID, events)); err != nil {
		h.logger.Error("failed to subscribe to events", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"code": "EVENTS_UNAVAILABLE", "message": err.Error()}})
		return
	}

	summary, err := h.runs.GetRunStatus(ctx, runID)
	if err != nil {
		status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
		if domain.IsNotFound(err) {
			status, code = http.StatusNotFound, "NOT_FOUND"
		}
		c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	// Reads only detect the client closing the connection
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshot := domain.Event{
		Type:      EventTypeSnapshot,
		RunID:     summary.ID,
		Workflow:  summary.Workflow,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"status": string(summary.Status),
			"nodes":  summary.Nodes,
		},
	}
	if err := h.write(conn, snapshot); err != nil {
		return
	}
	if summary.Status.IsTerminal() {
		h.closeNormal(conn, "run "+string(summary.Status))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if err := h.write(conn, event); err != nil {
				return
			}
			if event.Type.IsTerminal() {
				h.closeNormal(conn, string(event.Type))
				return
			}
		}
	}
}

// forward returns an event handler passing events of runID to ch without
// blocking the publisher
func (h *Handler) forward(runID string, ch chan<- domain.Event) ports.EventHandler {
	return func(ctx context.Context, event domain.Event) error {
		if event.RunID != runID {
			return nil
		}
		select {
		case ch <- event:
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("run_id", runID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}

func (h *Handler) write(conn *websocket.Conn, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("failed to write message", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
