package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reply packet types.
const (
	TypeError = "error"
	TypeEvent = "tree_event"
)

// HandlerFunc processes a decoded WS message payload. A non-nil result is
// sent back as "<type>_result" with the request seq; an error is sent back as
// an "error" packet.
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) (any, error)

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
func (r *Router) Dispatch(c *Client, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("session_id", c.SessionID),
			zap.Error(err))
		c.Send(0, TypeError, errorPayload{Error: "malformed packet"})
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= c.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session_id", c.SessionID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", c.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		c.LastSeq = pkt.Seq
	}

	// Assign a trace ID for this message dispatch.
	c.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, c.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("session_id", c.SessionID))
		c.Send(pkt.Seq, TypeError, errorPayload{Type: pkt.Type, Error: "unknown message type"})
		return
	}

	result, err := fn(ctx, c, pkt.Payload)
	if err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.String("session_id", c.SessionID),
			zap.String("trace_id", c.TraceID),
			zap.Error(err))
		c.Send(pkt.Seq, TypeError, errorPayload{Type: pkt.Type, Error: err.Error()})
		return
	}
	if result != nil {
		c.Send(pkt.Seq, pkt.Type+"_result", result)
	}
}

type errorPayload struct {
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
