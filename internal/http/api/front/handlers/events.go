package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudez/cloudez/internal/realtime"
)

const streamKeepAlive = 25 * time.Second

// EventHandler streams realtime events over server-sent events.
type EventHandler struct {
	hub *realtime.Hub
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(hub *realtime.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// Stream holds the connection open and forwards the caller's events as SSE
// frames. Periodic pings keep intermediaries from closing idle streams.
func (h *EventHandler) Stream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	events, cancel := h.hub.Subscribe(userID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-time.After(streamKeepAlive):
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
