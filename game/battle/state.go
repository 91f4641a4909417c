// Package battle holds the point-in-time battle state and the action and
// outcome records that link states in the planner tree.
package battle

import (
	"fmt"

	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// SideID names one of the two sides.
type SideID string

const (
	P1 SideID = "p1"
	P2 SideID = "p2"
)

// Opponent returns the other side.
func (s SideID) Opponent() SideID {
	if s == P1 {
		return P2
	}
	return P1
}

// Valid reports whether s is p1 or p2.
func (s SideID) Valid() bool { return s == P1 || s == P2 }

const (
	WeatherNone = "None"
	TerrainNone = "None"
)

// Field holds conditions shared by both sides.
type Field struct {
	Weather        string `json:"weather"`
	WeatherTurns   int    `json:"weatherTurns"`
	Terrain        string `json:"terrain"`
	TerrainTurns   int    `json:"terrainTurns"`
	TrickRoom      bool   `json:"trickRoom"`
	TrickRoomTurns int    `json:"trickRoomTurns"`
	Gravity        bool   `json:"gravity"`
	GravityTurns   int    `json:"gravityTurns"`
	MagicRoom      bool   `json:"magicRoom"`
	WonderRoom     bool   `json:"wonderRoom"`
}

// SideConditions holds hazards and screens on one side of the field.
type SideConditions struct {
	Spikes           int  `json:"spikes"`
	ToxicSpikes      int  `json:"toxicSpikes"`
	StealthRock      bool `json:"stealthRock"`
	StickyWeb        bool `json:"stickyWeb"`
	Reflect          bool `json:"reflect"`
	ReflectTurns     int  `json:"reflectTurns"`
	LightScreen      bool `json:"lightScreen"`
	LightScreenTurns int  `json:"lightScreenTurns"`
	AuroraVeil       bool `json:"auroraVeil"`
	AuroraVeilTurns  int  `json:"auroraVeilTurns"`
	Tailwind         bool `json:"tailwind"`
	TailwindTurns    int  `json:"tailwindTurns"`
	Safeguard        bool `json:"safeguard"`
	Mist             bool `json:"mist"`
}

const (
	MaxSpikes      = 3
	MaxToxicSpikes = 2
)

// Sides pairs the per-side conditions.
type Sides struct {
	P1 SideConditions `json:"p1"`
	P2 SideConditions `json:"p2"`
}

// Side is one player's active Pokémon and team.
type Side struct {
	Active   *pokemon.Pokemon   `json:"active"`
	Team     []*pokemon.Pokemon `json:"team"`
	TeamSlot int                `json:"teamSlot"`
}

func (s Side) clone() Side {
	c := Side{Active: s.Active.Clone(), TeamSlot: s.TeamSlot}
	if s.Team != nil {
		c.Team = make([]*pokemon.Pokemon, len(s.Team))
		for i, p := range s.Team {
			c.Team[i] = p.Clone()
		}
	}
	return c
}

// State is the whole battle at one instant. States stored in the tree are
// never mutated; resolution works on a Clone.
type State struct {
	TurnNumber int   `json:"turnNumber"`
	P1         Side  `json:"p1"`
	P2         Side  `json:"p2"`
	Field      Field `json:"field"`
	Sides      Sides `json:"sides"`
}

// NewState returns a turn-0 state with the given teams. The first team
// member of each side becomes active.
func NewState(p1Team, p2Team []*pokemon.Pokemon) *State {
	s := &State{
		Field: Field{Weather: WeatherNone, Terrain: TerrainNone},
	}
	s.P1.Team = p1Team
	s.P2.Team = p2Team
	if len(p1Team) > 0 {
		s.P1.Active = p1Team[0].Clone()
	}
	if len(p2Team) > 0 {
		s.P2.Active = p2Team[0].Clone()
	}
	return s
}

// Clone deep-copies both sides; field and side conditions are flat values.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.P1 = s.P1.clone()
	c.P2 = s.P2.clone()
	return &c
}

// Side returns a pointer to the named side.
func (s *State) Side(id SideID) *Side {
	if id == P2 {
		return &s.P2
	}
	return &s.P1
}

// Conditions returns a pointer to the named side's hazards and screens.
func (s *State) Conditions(id SideID) *SideConditions {
	if id == P2 {
		return &s.Sides.P2
	}
	return &s.Sides.P1
}

// SyncActive writes the active Pokémon back into its team slot so the two
// never diverge.
func (s *State) SyncActive(id SideID) {
	side := s.Side(id)
	if side.Active == nil || side.TeamSlot < 0 || side.TeamSlot >= len(side.Team) {
		return
	}
	side.Team[side.TeamSlot] = side.Active.Clone()
}

// SyncAll syncs both sides.
func (s *State) SyncAll() {
	s.SyncActive(P1)
	s.SyncActive(P2)
}

// SwitchActive syncs the outgoing Pokémon and brings in team[slot] with its
// stat stages cleared. It reports false for an out-of-range slot.
func (s *State) SwitchActive(id SideID, slot int) bool {
	side := s.Side(id)
	if slot < 0 || slot >= len(side.Team) || side.Team[slot] == nil {
		return false
	}
	if side.Active != nil {
		side.Active.ClearBoosts()
		side.Active.Charging = ""
	}
	s.SyncActive(id)
	side.TeamSlot = slot
	side.Active = side.Team[slot].Clone()
	side.Active.ClearBoosts()
	side.Active.Charging = ""
	return true
}

// HealthyBench returns the team slots, other than the active one, whose
// Pokémon can still battle.
func (s *State) HealthyBench(id SideID) []int {
	side := s.Side(id)
	var out []int
	for i, p := range side.Team {
		if i == side.TeamSlot || p == nil || p.HasFainted() {
			continue
		}
		out = append(out, i)
	}
	return out
}

// SpeedComparison is the turn-order view of the two actives.
type SpeedComparison struct {
	P1Speed     int    `json:"p1Speed"`
	P2Speed     int    `json:"p2Speed"`
	P1First     bool   `json:"p1First"`
	P2First     bool   `json:"p2First"`
	SpeedTie    bool   `json:"speedTie"`
	TrickRoom   bool   `json:"trickRoom"`
	Description string `json:"description"`
}

// SpeedComparison compares effective speeds, inverted under Trick Room.
func (s *State) SpeedComparison() SpeedComparison {
	var p1Speed, p2Speed int
	if s.P1.Active != nil {
		p1Speed = s.P1.Active.EffectiveSpeed(pokemon.SpeedContext{Tailwind: s.Sides.P1.Tailwind})
	}
	if s.P2.Active != nil {
		p2Speed = s.P2.Active.EffectiveSpeed(pokemon.SpeedContext{Tailwind: s.Sides.P2.Tailwind})
	}
	tr := s.Field.TrickRoom
	sc := SpeedComparison{
		P1Speed:   p1Speed,
		P2Speed:   p2Speed,
		SpeedTie:  p1Speed == p2Speed,
		TrickRoom: tr,
	}
	if tr {
		sc.P1First, sc.P2First = p1Speed < p2Speed, p2Speed < p1Speed
	} else {
		sc.P1First, sc.P2First = p1Speed > p2Speed, p2Speed > p1Speed
	}
	sc.Description = s.speedDescription(p1Speed, p2Speed, tr)
	return sc
}

func (s *State) speedDescription(p1Speed, p2Speed int, trickRoom bool) string {
	p1Name, p2Name := "P1", "P2"
	if s.P1.Active != nil {
		p1Name = s.P1.Active.Name
	}
	if s.P2.Active != nil {
		p2Name = s.P2.Active.Name
	}
	if p1Speed == p2Speed {
		return fmt.Sprintf("Speed Tie (%d)", p1Speed)
	}
	if trickRoom {
		if p1Speed < p2Speed {
			return fmt.Sprintf("%s is slower (%d vs %d) - moves first in Trick Room", p1Name, p1Speed, p2Speed)
		}
		return fmt.Sprintf("%s is slower (%d vs %d) - moves first in Trick Room", p2Name, p2Speed, p1Speed)
	}
	if p1Speed > p2Speed {
		return fmt.Sprintf("%s outspeeds (%d vs %d)", p1Name, p1Speed, p2Speed)
	}
	return fmt.Sprintf("%s outspeeds (%d vs %d)", p2Name, p2Speed, p1Speed)
}
