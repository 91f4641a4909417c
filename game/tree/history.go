package tree

import (
	"slices"

	"github.com/samber/lo"
)

type editKind int

const (
	editAdd editKind = iota
	editRemove
)

// edit is one undoable structural change. While the subtree is detached its
// nodes are held in nodes, top node first.
type edit struct {
	kind     editKind
	nodeID   string
	parentID string
	index    int
	nodes    []*Node
	cursor   string
}

func (t *Tree) record(e *edit) {
	t.undo = append(t.undo, e)
	if len(t.undo) > t.limit {
		t.undo = t.undo[len(t.undo)-t.limit:]
	}
	t.redo = nil
}

func (t *Tree) push(stack *[]*edit, e *edit) {
	*stack = append(*stack, e)
	if len(*stack) > t.limit {
		*stack = (*stack)[len(*stack)-t.limit:]
	}
}

// CanUndo reports whether Undo has anything to revert.
func (t *Tree) CanUndo() bool { return len(t.undo) > 0 }

// CanRedo reports whether Redo has anything to reapply.
func (t *Tree) CanRedo() bool { return len(t.redo) > 0 }

// Undo reverts the most recent AddBranch or RemoveNode.
func (t *Tree) Undo() bool {
	if len(t.undo) == 0 {
		return false
	}
	e := t.undo[len(t.undo)-1]
	t.undo = t.undo[:len(t.undo)-1]
	var ok bool
	switch e.kind {
	case editAdd:
		ok = t.detach(e)
	case editRemove:
		ok = t.attach(e)
		if ok {
			t.moveCursor(e.cursor)
		}
	}
	if ok {
		t.push(&t.redo, e)
	}
	return ok
}

// Redo reapplies the most recently undone edit.
func (t *Tree) Redo() bool {
	if len(t.redo) == 0 {
		return false
	}
	e := t.redo[len(t.redo)-1]
	t.redo = t.redo[:len(t.redo)-1]
	var ok bool
	switch e.kind {
	case editAdd:
		ok = t.attach(e)
	case editRemove:
		ok = t.detach(e)
	}
	if ok {
		t.push(&t.undo, e)
	}
	return ok
}

// detach removes the subtree at e.nodeID and keeps it in e.
func (t *Tree) detach(e *edit) bool {
	n, ok := t.nodes[e.nodeID]
	if !ok {
		return false
	}
	ids := t.subtree(e.nodeID)
	if parent, ok := t.nodes[n.ParentID]; ok {
		if idx := slices.Index(parent.Children, e.nodeID); idx >= 0 {
			e.index = idx
			parent.Children = slices.Delete(parent.Children, idx, idx+1)
		}
	}
	e.nodes = lo.Map(ids, func(id string, _ int) *Node { return t.nodes[id] })
	for _, id := range ids {
		delete(t.nodes, id)
	}
	if slices.Contains(ids, t.current) {
		target := n.ParentID
		if _, ok := t.nodes[target]; !ok && len(t.rootIDs) > 0 {
			target = t.rootIDs[0]
		}
		t.moveCursor(target)
	}
	t.fire(Event{Type: EventNodeRemoved, NodeID: e.nodeID, ParentID: n.ParentID, RemovedIDs: ids})
	t.fire(Event{Type: EventTreeUpdated, NodeID: n.ParentID})
	return true
}

// attach puts a detached subtree back at its old position.
func (t *Tree) attach(e *edit) bool {
	parent, ok := t.nodes[e.parentID]
	if !ok || len(e.nodes) == 0 {
		return false
	}
	for _, n := range e.nodes {
		t.nodes[n.ID] = n
	}
	idx := min(max(e.index, 0), len(parent.Children))
	parent.Children = slices.Insert(parent.Children, idx, e.nodeID)
	e.nodes = nil
	t.fire(Event{Type: EventNodeAdded, NodeID: e.nodeID, ParentID: e.parentID, Node: t.nodes[e.nodeID]})
	t.fire(Event{Type: EventTreeUpdated, NodeID: e.nodeID})
	return true
}

// moveCursor navigates to id when it still exists.
func (t *Tree) moveCursor(id string) {
	if id == t.current {
		return
	}
	if _, ok := t.nodes[id]; ok {
		t.Navigate(id)
	}
}
