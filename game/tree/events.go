package tree

import (
	"context"
	"fmt"

	"github.com/kasuganosora/battleplanner/hook"
)

// Tree notification types.
const (
	EventNodeAdded          = "node_added"
	EventNodeRemoved        = "node_removed"
	EventCurrentNodeChanged = "current_node_changed"
	EventTreeUpdated        = "tree_updated"
)

// Events lists every notification type.
var Events = []string{EventNodeAdded, EventNodeRemoved, EventCurrentNodeChanged, EventTreeUpdated}

// Event is the payload of every tree notification.
type Event struct {
	Type       string   `json:"type"`
	NodeID     string   `json:"nodeId,omitempty"`
	ParentID   string   `json:"parentId,omitempty"`
	PreviousID string   `json:"prevNodeId,omitempty"`
	RemovedIDs []string `json:"removedIds,omitempty"`
	Node       *Node    `json:"node,omitempty"`
}

// Subscribe registers fn for event under name. Handlers run synchronously
// inside the mutating call; a panicking handler is logged and skipped.
func (t *Tree) Subscribe(event, name string, fn func(Event)) {
	t.hooks.Register(event, 0, name, func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		if ev, ok := data.(Event); ok {
			fn(ev)
		}
		return data, nil
	})
}

// SubscribeAll registers fn for every event type.
func (t *Tree) SubscribeAll(name string, fn func(Event)) {
	for _, ev := range Events {
		t.Subscribe(ev, name, fn)
	}
}

// Unsubscribe removes every handler registered under name.
func (t *Tree) Unsubscribe(name string) {
	t.hooks.UnregisterAll(name)
}

// EventBeforeAdd runs the guards before AddBranch stores a node. It is not
// in Events and never reaches subscribers.
const EventBeforeAdd = "before_add"

type candidate struct {
	parent, child *Node
}

// Guard registers fn under name to vet every new branch. A non-nil error
// rejects the branch and AddBranch returns it wrapped in ErrBranchRejected.
func (t *Tree) Guard(name string, fn func(parent, child *Node) error) {
	t.hooks.Register(EventBeforeAdd, 0, name, func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		c, ok := data.(candidate)
		if !ok {
			return data, nil
		}
		if err := fn(c.parent, c.child); err != nil {
			return data, fmt.Errorf("%w: %w", hook.ErrInterrupt, err)
		}
		return data, nil
	})
}

// Unguard removes the guard registered under name.
func (t *Tree) Unguard(name string) {
	t.hooks.Unregister(EventBeforeAdd, name)
}

func (t *Tree) vet(parent, child *Node) error {
	if _, err := t.hooks.Trigger(context.Background(), EventBeforeAdd, candidate{parent, child}); err != nil {
		return fmt.Errorf("%w: %w", ErrBranchRejected, err)
	}
	return nil
}
