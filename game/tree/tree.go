// Package tree is the branching timeline of battle states. Every resolved
// turn becomes a child node; committed nodes are never rewritten.
package tree

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/hook"
)

var (
	// ErrParentNotFound is returned by AddBranch for an unknown parent id.
	ErrParentNotFound = errors.New("tree: parent node not found")
	// ErrNodeNotFound is returned when an operation names an unknown node.
	ErrNodeNotFound = errors.New("tree: node not found")
	// ErrNilState is returned when a branch is added without a state.
	ErrNilState = errors.New("tree: nil battle state")
	// ErrTurnOrder is returned when a branch would move the turn number backwards.
	ErrTurnOrder = errors.New("tree: turn number below parent")
	// ErrBranchRejected is returned when a guard refuses a new branch.
	ErrBranchRejected = errors.New("tree: branch rejected")
)

// DefaultHistoryLimit bounds the undo and redo stacks.
const DefaultHistoryLimit = 50

// Config configures a Tree.
type Config struct {
	Logger       *zap.Logger
	HistoryLimit int
	// Hooks receives tree notifications. A private centre is created when nil.
	Hooks *hook.Center
	Now   func() time.Time
}

// Tree owns every node across all roots and the navigation cursor.
// It is not safe for concurrent use; callers serialise access.
type Tree struct {
	nodes   map[string]*Node
	rootIDs []string
	current string

	undo []*edit
	redo []*edit

	limit  int
	logger *zap.Logger
	hooks  *hook.Center
	now    func() time.Time
}

// New creates an empty tree. Call Initialize or Deserialize before use.
func New(cfg Config) *Tree {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Hooks == nil {
		cfg.Hooks = hook.NewCenter(cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tree{
		nodes:  make(map[string]*Node),
		limit:  cfg.HistoryLimit,
		logger: cfg.Logger,
		hooks:  cfg.Hooks,
		now:    cfg.Now,
	}
}

// Initialize discards everything and starts over from a single root.
func (t *Tree) Initialize(state *battle.State) *Node {
	root := newNode("", state, battle.ActionPair{}, nil, t.now().UTC())
	root.Label = RootLabel
	t.nodes = map[string]*Node{root.ID: root}
	t.rootIDs = []string{root.ID}
	t.current = root.ID
	t.undo, t.redo = nil, nil
	t.fire(Event{Type: EventTreeUpdated, NodeID: root.ID})
	return root
}

// AddRoot adds an independent root, for example a different team, and
// makes it current.
func (t *Tree) AddRoot(state *battle.State, label string) *Node {
	if label == "" {
		label = RootLabel
	}
	root := newNode("", state, battle.ActionPair{}, nil, t.now().UTC())
	root.Label = label
	t.nodes[root.ID] = root
	t.rootIDs = append(t.rootIDs, root.ID)
	t.current = root.ID
	t.fire(Event{Type: EventTreeUpdated, NodeID: root.ID})
	return root
}

// Node returns the node with id, or nil.
func (t *Tree) Node(id string) *Node { return t.nodes[id] }

// Current returns the node under the cursor, or nil for an empty tree.
func (t *Tree) Current() *Node { return t.nodes[t.current] }

// CurrentID returns the cursor.
func (t *Tree) CurrentID() string { return t.current }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Roots returns the roots in creation order.
func (t *Tree) Roots() []*Node {
	return lo.FilterMap(t.rootIDs, func(id string, _ int) (*Node, bool) {
		n, ok := t.nodes[id]
		return n, ok
	})
}

// Root returns the root of the cursor's subtree.
func (t *Tree) Root() *Node {
	path := t.PathToNode(t.current)
	if len(path) == 0 {
		return nil
	}
	return t.nodes[path[0]]
}

// Navigate moves the cursor. It reports false for an unknown id.
func (t *Tree) Navigate(id string) bool {
	if _, ok := t.nodes[id]; !ok {
		return false
	}
	prev := t.current
	t.current = id
	t.fire(Event{Type: EventCurrentNodeChanged, NodeID: id, PreviousID: prev})
	return true
}

// NavigatePrevious moves the cursor to its parent.
func (t *Tree) NavigatePrevious() bool {
	cur := t.Current()
	if cur == nil || cur.IsRoot() {
		return false
	}
	return t.Navigate(cur.ParentID)
}

// NavigateNext moves the cursor to its first child.
func (t *Tree) NavigateNext() bool {
	cur := t.Current()
	if cur == nil || !cur.HasChildren() {
		return false
	}
	return t.Navigate(cur.Children[0])
}

// AddBranch stores a copy of state as a new child of parentID. The cursor
// does not move.
func (t *Tree) AddBranch(parentID string, state *battle.State, actions battle.ActionPair, outcome *battle.Outcome) (*Node, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		t.logger.Warn("add branch: parent not found", zap.String("node_id", parentID))
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
	}
	if state == nil {
		return nil, ErrNilState
	}
	if parent.State != nil && state.TurnNumber < parent.State.TurnNumber {
		return nil, fmt.Errorf("%w: %d < %d", ErrTurnOrder, state.TurnNumber, parent.State.TurnNumber)
	}
	n := newNode(parentID, state, actions, outcome, t.now().UTC())
	n.Label = n.FullLabel()
	if err := t.vet(parent, n); err != nil {
		t.logger.Debug("add branch: rejected", zap.String("parent_id", parentID), zap.Error(err))
		return nil, err
	}
	t.nodes[n.ID] = n
	parent.Children = append(parent.Children, n.ID)

	t.record(&edit{kind: editAdd, nodeID: n.ID, parentID: parentID, index: len(parent.Children) - 1, cursor: t.current})
	t.fire(Event{Type: EventNodeAdded, NodeID: n.ID, ParentID: parentID, Node: n})
	t.fire(Event{Type: EventTreeUpdated, NodeID: n.ID})
	return n, nil
}

// RemoveNode deletes id and its whole subtree. Roots and unknown ids are
// refused. A cursor inside the removed subtree moves to the parent.
func (t *Tree) RemoveNode(id string) bool {
	n, ok := t.nodes[id]
	if !ok || n.IsRoot() {
		return false
	}
	cursor := t.current
	e := &edit{kind: editRemove, nodeID: id, parentID: n.ParentID, cursor: cursor}
	t.detach(e)
	t.record(e)
	return true
}

// PathToNode returns the ids from the root down to id, or nil for an
// unknown id.
func (t *Tree) PathToNode(id string) []string {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	var path []string
	for cur := id; cur != ""; {
		n, ok := t.nodes[cur]
		if !ok || len(path) > len(t.nodes) {
			break
		}
		path = append(path, cur)
		cur = n.ParentID
	}
	slices.Reverse(path)
	return path
}

// Depth is the number of edges between id and its root, or -1.
func (t *Tree) Depth(id string) int {
	return len(t.PathToNode(id)) - 1
}

// CumulativeProbability multiplies the outcome probabilities on the path
// from the root to id. The root contributes no factor. Unknown ids give 0.
func (t *Tree) CumulativeProbability(id string) float64 {
	path := t.PathToNode(id)
	if len(path) == 0 {
		return 0
	}
	p := 1.0
	for _, nid := range path[1:] {
		if o := t.nodes[nid].Outcome; o != nil && o.Probability > 0 {
			p *= o.Probability
		}
	}
	return p
}

// subtree lists id and its descendants in depth-first order.
func (t *Tree) subtree(id string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		n, ok := t.nodes[cur]
		if !ok {
			return
		}
		out = append(out, cur)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(id)
	return out
}

// Leaves returns every node without children, root by root in depth-first order.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	for _, r := range t.rootIDs {
		out = append(out, t.leavesUnder(r)...)
	}
	return out
}

func (t *Tree) leavesUnder(rootID string) []*Node {
	return lo.FilterMap(t.subtree(rootID), func(id string, _ int) (*Node, bool) {
		n := t.nodes[id]
		return n, !n.HasChildren()
	})
}

// SetNotes replaces a node's free-text notes.
func (t *Tree) SetNotes(id, notes string) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.Notes = notes
	t.fire(Event{Type: EventTreeUpdated, NodeID: id})
	return true
}

// SetCollapsed folds or unfolds a node in the tree view.
func (t *Tree) SetCollapsed(id string, collapsed bool) bool {
	n, ok := t.nodes[id]
	if !ok {
		return false
	}
	n.Collapsed = collapsed
	t.fire(Event{Type: EventTreeUpdated, NodeID: id})
	return true
}

// ExpandAll unfolds every node.
func (t *Tree) ExpandAll() { t.setAllCollapsed(false) }

// CollapseAll folds every node that has children.
func (t *Tree) CollapseAll() { t.setAllCollapsed(true) }

func (t *Tree) setAllCollapsed(v bool) {
	for _, n := range t.nodes {
		n.Collapsed = v && n.HasChildren()
	}
	t.fire(Event{Type: EventTreeUpdated})
}

// fire delivers ev synchronously; observer failures are logged by the hook centre.
func (t *Tree) fire(ev Event) {
	t.hooks.Emit(context.Background(), ev.Type, ev)
}
