package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
)

// FormatVersion is the persisted document version.
const FormatVersion = 1

// ErrInvalidDocument wraps every Deserialize failure.
var ErrInvalidDocument = errors.New("tree: invalid document")

type document struct {
	Version       int              `json:"version"`
	RootID        string           `json:"rootId"`
	RootIDs       []string         `json:"rootIds"`
	CurrentNodeID string           `json:"currentNodeId"`
	Nodes         map[string]*Node `json:"nodes"`
}

// Serialize snapshots the whole tree as JSON. rootId is the cursor's root.
func (t *Tree) Serialize() ([]byte, error) {
	doc := document{
		Version:       FormatVersion,
		RootIDs:       append([]string{}, t.rootIDs...),
		CurrentNodeID: t.current,
		Nodes:         t.nodes,
	}
	if r := t.Root(); r != nil {
		doc.RootID = r.ID
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Deserialize replaces the tree with a serialized snapshot. On any error the
// existing tree is left untouched. An unknown version is logged, not rejected.
func (t *Tree) Deserialize(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.logger.Warn("deserialize tree: malformed json", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Version != FormatVersion {
		t.logger.Warn("deserialize tree: unknown version", zap.Int("version", doc.Version))
	}
	if err := validate(&doc); err != nil {
		t.logger.Warn("deserialize tree: rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	t.nodes = doc.Nodes
	t.rootIDs = doc.RootIDs
	t.current = doc.CurrentNodeID
	t.undo, t.redo = nil, nil
	t.fire(Event{Type: EventTreeUpdated, NodeID: t.current})
	return nil
}

// validate checks structural completeness and fills defaults in place.
func validate(doc *document) error {
	if len(doc.Nodes) == 0 {
		return errors.New("no nodes")
	}
	if len(doc.RootIDs) == 0 {
		if doc.RootID == "" {
			return errors.New("no root")
		}
		doc.RootIDs = []string{doc.RootID}
	}
	for _, id := range doc.RootIDs {
		n, ok := doc.Nodes[id]
		if !ok {
			return fmt.Errorf("root %s missing", id)
		}
		if n.ParentID != "" {
			return fmt.Errorf("root %s has a parent", id)
		}
	}
	if doc.RootID != "" {
		if _, ok := doc.Nodes[doc.RootID]; !ok {
			return fmt.Errorf("root %s missing", doc.RootID)
		}
	}
	if doc.CurrentNodeID == "" {
		doc.CurrentNodeID = doc.RootIDs[0]
	}
	if _, ok := doc.Nodes[doc.CurrentNodeID]; !ok {
		return fmt.Errorf("current node %s missing", doc.CurrentNodeID)
	}

	roots := make(map[string]bool, len(doc.RootIDs))
	for _, id := range doc.RootIDs {
		roots[id] = true
	}
	for id, n := range doc.Nodes {
		if n == nil {
			return fmt.Errorf("node %s is null", id)
		}
		if n.ID == "" {
			n.ID = id
		} else if n.ID != id {
			return fmt.Errorf("node %s stored under %s", n.ID, id)
		}
		if n.State == nil {
			return fmt.Errorf("node %s has no state", id)
		}
		if n.Children == nil {
			n.Children = []string{}
		}
		if n.Outcome == nil {
			n.Outcome = battle.NewOutcome(battle.DescriptionNormal, 1, 0)
		}
		n.Outcome.Normalize()
		if n.ParentID == "" {
			if !roots[id] {
				return fmt.Errorf("node %s has no parent and is not a root", id)
			}
			continue
		}
		parent, ok := doc.Nodes[n.ParentID]
		if !ok || parent == nil {
			return fmt.Errorf("node %s: parent %s missing", id, n.ParentID)
		}
		if !slices.Contains(parent.Children, id) {
			return fmt.Errorf("node %s not listed by parent %s", id, n.ParentID)
		}
	}
	for id, n := range doc.Nodes {
		for _, c := range n.Children {
			child, ok := doc.Nodes[c]
			if !ok || child == nil {
				return fmt.Errorf("node %s: child %s missing", id, c)
			}
			if child.ParentID != id {
				return fmt.Errorf("node %s lists %s whose parent is %s", id, c, child.ParentID)
			}
		}
		// Every node must reach a root; this rejects parent cycles.
		steps, cur := 0, n
		for cur.ParentID != "" {
			if steps++; steps > len(doc.Nodes) {
				return fmt.Errorf("node %s: parent cycle", id)
			}
			cur = doc.Nodes[cur.ParentID]
		}
	}
	return nil
}
