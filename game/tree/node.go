package tree

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/battleplanner/game/battle"
)

// RootLabel is the label given to roots created without one.
const RootLabel = "Battle Start"

// Node is one vertex of the planning tree: the state at the start of a turn
// and the actions and outcome that led to it from its parent.
type Node struct {
	ID        string            `json:"id"`
	ParentID  string            `json:"parentId"`
	Children  []string          `json:"children"`
	State     *battle.State     `json:"state"`
	Actions   battle.ActionPair `json:"actions"`
	Outcome   *battle.Outcome   `json:"outcome"`
	Label     string            `json:"label"`
	Notes     string            `json:"notes"`
	Collapsed bool              `json:"isCollapsed"`
	BestCase  bool              `json:"isBestCase"`
	WorstCase bool              `json:"isWorstCase"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newNode(parentID string, state *battle.State, actions battle.ActionPair, outcome *battle.Outcome, now time.Time) *Node {
	if outcome == nil {
		outcome = battle.NewOutcome(battle.DescriptionNormal, 1, 0)
	} else {
		outcome = outcome.Clone()
		outcome.Normalize()
	}
	return &Node{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Children:  []string{},
		State:     state.Clone(),
		Actions:   actions.Clone(),
		Outcome:   outcome,
		CreatedAt: now,
	}
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.ParentID == "" }

// HasChildren reports whether any branch continues from n.
func (n *Node) HasChildren() bool { return len(n.Children) > 0 }

// TurnLabel is "T" followed by the turn number.
func (n *Node) TurnLabel() string {
	turn := 0
	if n.State != nil {
		turn = n.State.TurnNumber
	}
	return fmt.Sprintf("T%d", turn)
}

// FullLabel is the breadcrumb text, e.g. "T2: Earthquake: vs Scald: (Crit)".
func (n *Node) FullLabel() string {
	parts := []string{n.TurnLabel()}
	if a := n.Actions.P1; a != nil && a.Type == battle.ActionMove {
		parts = append(parts, a.MoveName)
	}
	if a := n.Actions.P2; a != nil && a.Type == battle.ActionMove {
		parts = append(parts, "vs "+a.MoveName)
	}
	if n.Outcome != nil && n.Outcome.Description != "" && n.Outcome.Description != battle.DescriptionNormal {
		parts = append(parts, "("+n.Outcome.Label()+")")
	}
	return strings.Join(parts, ": ")
}

// Clone returns a deep copy that stays valid after the tree changes.
func (n *Node) Clone() *Node {
	c := *n
	c.Children = append([]string{}, n.Children...)
	c.State = n.State.Clone()
	c.Actions = n.Actions.Clone()
	c.Outcome = n.Outcome.Clone()
	return &c
}
