package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/planner"
)

var errBadPayload = errors.New("invalid payload")

type turnPayload struct {
	P1 *battle.Action `json:"p1"`
	P2 *battle.Action `json:"p2"`
}

type resumePayload struct {
	Slot int `json:"slot"`
}

type navigatePayload struct {
	NodeID string `json:"nodeId"`
}

// RegisterPlannerHandlers registers the session packets on r.
func RegisterPlannerHandlers(r *Router, mgr *planner.Manager) {
	r.On("navigate", func(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
		var req navigatePayload
		if err := json.Unmarshal(raw, &req); err != nil || req.NodeID == "" {
			return nil, errBadPayload
		}
		s, err := mgr.Get(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		if err := s.Navigate(ctx, req.NodeID); err != nil {
			return nil, err
		}
		return cursor(s, true)
	})

	r.On("turn", func(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
		var req turnPayload
		if err := json.Unmarshal(raw, &req); err != nil || req.P1 == nil || req.P2 == nil {
			return nil, errBadPayload
		}
		s, err := mgr.Get(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		return s.ExecuteTurn(ctx, req.P1, req.P2)
	})

	r.On("resume", func(ctx context.Context, c *Client, raw json.RawMessage) (any, error) {
		var req resumePayload
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errBadPayload
		}
		s, err := mgr.Get(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Resume(ctx, req.Slot)
	})

	r.On("decline", func(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
		s, err := mgr.Get(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Decline(ctx)
	})

	r.On("undo", historyHandler(mgr, (*planner.Session).Undo))
	r.On("redo", historyHandler(mgr, (*planner.Session).Redo))
}

func historyHandler(mgr *planner.Manager, fn func(*planner.Session, context.Context) (bool, error)) HandlerFunc {
	return func(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
		s, err := mgr.Get(ctx, c.SessionID)
		if err != nil {
			return nil, err
		}
		changed, err := fn(s, ctx)
		if err != nil {
			return nil, err
		}
		return cursor(s, changed)
	}
}

func cursor(s *planner.Session, changed bool) (any, error) {
	node, err := s.Current()
	if err != nil {
		return nil, err
	}
	return map[string]any{"changed": changed, "node": node}, nil
}
