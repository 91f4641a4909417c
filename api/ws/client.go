package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one WebSocket connection bound to a planner session.
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	SendChan  chan []byte
	Done      chan struct{}
	TraceID   string
	LastSeq   uint64

	logger *zap.Logger
}

// NewClient creates a Client and starts its write goroutine.
func NewClient(sessionID string, conn *websocket.Conn, logger *zap.Logger) *Client {
	c := &Client{
		SessionID: sessionID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		logger:    logger,
	}
	go c.writePump()
	return c
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Conn.Close()
	for {
		select {
		case data, ok := <-c.SendChan:
			if !ok {
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("ws write error",
					zap.String("session_id", c.SessionID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes a packet of msgType with payload and queues it without
// blocking. It drops the packet if the queue is full or the client closed.
func (c *Client) Send(seq uint64, msgType string, payload any) {
	if c.IsClosed() {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.logger.Warn("ws payload encode failed", zap.String("type", msgType), zap.Error(err))
			return
		}
		raw = b
	}
	data, err := json.Marshal(&Packet{Seq: seq, Type: msgType, Payload: raw})
	if err != nil {
		return
	}
	c.SendRaw(data)
}

// SendRaw queues raw bytes without blocking.
func (c *Client) SendRaw(data []byte) {
	if c.IsClosed() {
		return
	}
	select {
	case c.SendChan <- data:
	case <-c.Done:
	default:
		if !c.IsClosed() {
			c.logger.Warn("send channel full, dropping packet",
				zap.String("session_id", c.SessionID))
		}
	}
}

// SetReadDeadline pushes the read deadline forward.
func (c *Client) SetReadDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}

// Close signals the writePump to shut down.
func (c *Client) Close() {
	select {
	case <-c.Done:
	default:
		close(c.Done)
	}
}

// IsClosed returns true if the client has been closed.
func (c *Client) IsClosed() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}
