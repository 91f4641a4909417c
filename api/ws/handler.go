package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/config"
	"github.com/kasuganosora/battleplanner/game/planner"
	mw "github.com/kasuganosora/battleplanner/middleware"
)

// Handler is the Gin handler for GET /ws/sessions/:id.
type Handler struct {
	mgr      *planner.Manager
	pubsub   cache.PubSub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	mgr *planner.Manager,
	pubsub cache.PubSub,
	sec config.SecurityConfig,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		mgr:    mgr,
		pubsub: pubsub,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws/sessions/:id?token=<jwt>. It must run behind
// middleware.SessionAuth.
func (h *Handler) ServeWS(c *gin.Context) {
	id := mw.GetSessionID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	_, err := h.mgr.Get(ctx, id)
	cancel()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, planner.Channel(id))
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.String("session_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(id, conn, h.logger)
	client.Send(0, "connected", map[string]string{"sessionId": id})
	go h.forward(client, msgCh)

	h.logger.Info("ws client connected", zap.String("session_id", id))
	// Blocks until the connection closes.
	h.readPump(client)
}

// forward relays tree events published for the session to the client.
func (h *Handler) forward(client *Client, msgCh <-chan *cache.Message) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			client.Send(0, TypeEvent, json.RawMessage(msg.Payload))
		case <-client.Done:
			return
		}
	}
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(client *Client) {
	defer func() {
		client.Close()
		h.logger.Info("ws client disconnected", zap.String("session_id", client.SessionID))
	}()

	client.SetReadDeadline()
	client.Conn.SetPongHandler(func(string) error {
		client.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("session_id", client.SessionID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		client.SetReadDeadline()
		h.router.Dispatch(client, raw)
	}
}
