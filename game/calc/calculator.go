// Package calc is the planner's view of the damage calculator: the narrow
// interface the turn resolver consumes, two implementations, and the
// probability and effect helpers built on top of it.
package calc

import (
	"context"
	"errors"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// ErrUnknownMove is returned when a calculator has no data for a move.
var ErrUnknownMove = errors.New("calc: unknown move")

// Category is a move's damage class.
type Category string

const (
	Physical Category = "Physical"
	Special  Category = "Special"
	Status   Category = "Status"
)

// Secondary is one additional effect of a move. A Chance of 1 or more is
// guaranteed; 0 is treated as guaranteed when the effect only changes the
// user's stats.
type Secondary struct {
	Status string         `json:"status,omitempty" yaml:"status"`
	Boosts map[string]int `json:"boosts,omitempty" yaml:"boosts"`
	Self   map[string]int `json:"self,omitempty" yaml:"self"`
	Flinch bool           `json:"flinch,omitempty" yaml:"flinch"`
	Chance float64        `json:"chance" yaml:"chance"`
}

// Guaranteed reports whether the effect always happens.
func (s Secondary) Guaranteed() bool {
	if s.Chance >= 1 {
		return true
	}
	return s.Chance == 0 && s.Status == "" && len(s.Boosts) == 0 && !s.Flinch
}

// MoveInfo is the move metadata the resolver needs.
type MoveInfo struct {
	Name      string   `json:"name" yaml:"name"`
	Type      string   `json:"type" yaml:"type"`
	Category  Category `json:"category" yaml:"category"`
	BasePower int      `json:"basePower" yaml:"bp"`
	Priority  int      `json:"priority" yaml:"priority"`
	// Accuracy is a percentage; 0 means the move never misses.
	Accuracy         int            `json:"accuracy" yaml:"accuracy"`
	MultiHit         [2]int         `json:"multiHit,omitempty" yaml:"multihit"`
	Recoil           float64        `json:"recoil,omitempty" yaml:"recoil"`
	Drain            float64        `json:"drain,omitempty" yaml:"drain"`
	Heal             float64        `json:"heal,omitempty" yaml:"heal"`
	Secondaries      []Secondary    `json:"secondaries,omitempty" yaml:"secondaries"`
	SelfBoosts       map[string]int `json:"selfBoosts,omitempty" yaml:"selfBoosts"`
	SelfSwitch       bool           `json:"selfSwitch,omitempty" yaml:"selfSwitch"`
	ForceSwitch      bool           `json:"forceSwitch,omitempty" yaml:"forceSwitch"`
	SemiInvulnerable bool           `json:"semiInvulnerable,omitempty" yaml:"semiInvulnerable"`
}

// IsStatus reports whether the move deals no direct damage.
func (m MoveInfo) IsStatus() bool { return m.Category == Status }

// IsMultiHit reports whether the move strikes a variable number of times.
func (m MoveInfo) IsMultiHit() bool { return m.MultiHit[1] > 1 }

// DefaultHits is the hit count used when an action does not override it:
// the floor of the midpoint of the hit range.
func (m MoveInfo) DefaultHits() int {
	if !m.IsMultiHit() {
		return 1
	}
	return max(1, (m.MultiHit[0]+m.MultiHit[1])/2)
}

// Request asks for the damage of one move.
type Request struct {
	Gen          int
	Attacker     *pokemon.Pokemon
	Defender     *pokemon.Pokemon
	Move         string
	Field        battle.Field
	AttackerSide battle.SideConditions
	DefenderSide battle.SideConditions
	Crit         bool
	// Hits is the number of strikes for multi-hit moves; 0 means one.
	Hits int
}

// Result is a calculator's answer. Damage is a number, a list of rolls or a
// two-part list; Range is derived from it.
type Result struct {
	Damage any    `json:"damage"`
	Range  Range  `json:"range"`
	Desc   string `json:"desc,omitempty"`
}

// Calculator is the damage-calculation collaborator.
type Calculator interface {
	Damage(ctx context.Context, req Request) (Result, error)
	Move(ctx context.Context, gen int, name string) (MoveInfo, error)
}
