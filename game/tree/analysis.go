package tree

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// LeafScore rates one explored line from p1's point of view.
type LeafScore struct {
	NodeID      string  `json:"nodeId"`
	Label       string  `json:"label"`
	P1HP        int     `json:"p1HP"`
	P2HP        int     `json:"p2HP"`
	Advantage   int     `json:"advantage"`
	Probability float64 `json:"probability"`
}

// Analysis ranks the leaves under one root, best first.
type Analysis struct {
	RootID string      `json:"rootId"`
	Best   LeafScore   `json:"best"`
	Worst  LeafScore   `json:"worst"`
	All    []LeafScore `json:"all"`
}

// AnalyzeOutcomes scores every leaf under the cursor's root by p1's active
// %HP minus p2's, flags the best and worst leaves, and returns the ranking.
// Ties keep depth-first order. It returns nil for an empty tree.
func (t *Tree) AnalyzeOutcomes() *Analysis {
	root := t.Root()
	if root == nil {
		return nil
	}
	for _, n := range t.nodes {
		n.BestCase, n.WorstCase = false, false
	}
	scores := lo.Map(t.leavesUnder(root.ID), func(n *Node, _ int) LeafScore {
		var p1, p2 int
		if n.State != nil {
			if a := n.State.P1.Active; a != nil {
				p1 = a.PercentHP
			}
			if a := n.State.P2.Active; a != nil {
				p2 = a.PercentHP
			}
		}
		return LeafScore{
			NodeID:      n.ID,
			Label:       n.Label,
			P1HP:        p1,
			P2HP:        p2,
			Advantage:   p1 - p2,
			Probability: t.CumulativeProbability(n.ID),
		}
	})
	if len(scores) == 0 {
		return nil
	}
	slices.SortStableFunc(scores, func(a, b LeafScore) int { return cmp.Compare(b.Advantage, a.Advantage) })

	best, worst := scores[0], scores[len(scores)-1]
	t.nodes[best.NodeID].BestCase = true
	if worst.NodeID != best.NodeID {
		t.nodes[worst.NodeID].WorstCase = true
	}
	t.fire(Event{Type: EventTreeUpdated, NodeID: root.ID})
	return &Analysis{RootID: root.ID, Best: best, Worst: worst, All: scores}
}
