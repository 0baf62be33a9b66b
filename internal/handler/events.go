package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MorphGate/morphgate/internal/pkg/apperrors"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/MorphGate/morphgate/internal/service"
)

type EventsHandler struct {
	svc      *service.EventService
	upgrader websocket.Upgrader
}

func NewEventsHandler(svc *service.EventService) *EventsHandler {
	return &EventsHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *EventsHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	tenantID := ""
	if tenant := tenantFrom(c); tenant != nil {
		tenantID = tenant.ID
	}

	records, err := h.svc.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}

// Stream pushes execution events over a websocket as they happen.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := h.svc.Subscribe()
	defer cancel()

	// drain client frames so pings and close messages are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	tenantID := ""
	if tenant := tenantFrom(c); tenant != nil {
		tenantID = tenant.ID
	}

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if tenantID != "" && ev.TenantID != tenantID {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("event stream write failed", "error", err.Error())
				return
			}
		}
	}
}
