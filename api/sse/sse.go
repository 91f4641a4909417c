package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/game/planner"
	mw "github.com/kasuganosora/battleplanner/middleware"
)

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	mgr       *planner.Manager
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, mgr *planner.Manager, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, mgr: mgr, logger: logger, keepalive: keepaliveInterval}
}

// ServeSSE handles GET /sse/sessions/:id?token=<jwt>. It must run behind
// middleware.SessionAuth. Each tree notification of the session is sent as
// a "tree" event carrying the JSON payload.
func (h *Handler) ServeSSE(c *gin.Context) {
	id := mw.GetSessionID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	_, err := h.mgr.Get(ctx, id)
	cancel()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, planner.Channel(id))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("session_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"sessionId\":%q}\n\n", id)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: tree\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
