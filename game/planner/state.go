package planner

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// ErrInvalidTeam is returned by BuildState for an empty team or an active
// index outside it.
var ErrInvalidTeam = errors.New("planner: invalid team")

// SideSpec describes one side, either as loose descriptors from a client or
// as sets exported by a team builder. Team wins when both are present.
type SideSpec struct {
	Team   []map[string]any       `json:"team"`
	Sets   []pokemon.Set          `json:"sets,omitempty"`
	Active int                    `json:"active"`
	Side   *battle.SideConditions `json:"side,omitempty"`
}

// StateSpec is the request body that seeds a scenario.
type StateSpec struct {
	P1         SideSpec      `json:"p1"`
	P2         SideSpec      `json:"p2"`
	Field      *battle.Field `json:"field,omitempty"`
	TurnNumber int           `json:"turnNumber"`
}

// BuildState turns descriptors into a battle state with the chosen actives.
// Imported sets get no species data; use Manager.BuildState for that.
func BuildState(in StateSpec) (*battle.State, error) {
	return buildState(in, nil)
}

// BuildState is the package BuildState with imported sets resolved against
// the manager's species data.
func (m *Manager) BuildState(in StateSpec) (*battle.State, error) {
	return buildState(in, m.cfg.Species)
}

func buildState(in StateSpec, lookup pokemon.SpeciesLookup) (*battle.State, error) {
	p1, err := buildTeam(battle.P1, in.P1, lookup)
	if err != nil {
		return nil, err
	}
	p2, err := buildTeam(battle.P2, in.P2, lookup)
	if err != nil {
		return nil, err
	}
	s := battle.NewState(p1, p2)
	s.TurnNumber = max(0, in.TurnNumber)
	seedActive(s.Side(battle.P1), in.P1.Active)
	seedActive(s.Side(battle.P2), in.P2.Active)
	if in.Field != nil {
		s.Field = *in.Field
		if s.Field.Weather == "" {
			s.Field.Weather = battle.WeatherNone
		}
		if s.Field.Terrain == "" {
			s.Field.Terrain = battle.TerrainNone
		}
	}
	if in.P1.Side != nil {
		s.Sides.P1 = *in.P1.Side
	}
	if in.P2.Side != nil {
		s.Sides.P2 = *in.P2.Side
	}
	return s, nil
}

// seedActive puts team[slot] in as the active Pokémon. Unlike a switch it
// keeps the descriptor's stat stages.
func seedActive(side *battle.Side, slot int) {
	side.TeamSlot = slot
	side.Active = side.Team[slot].Clone()
}

func buildTeam(id battle.SideID, in SideSpec, lookup pokemon.SpeciesLookup) ([]*pokemon.Pokemon, error) {
	var team []*pokemon.Pokemon
	switch {
	case len(in.Team) > 0:
		team = make([]*pokemon.Pokemon, len(in.Team))
		for i, d := range in.Team {
			team[i] = pokemon.FromDescriptor(d)
		}
	case len(in.Sets) > 0:
		team = make([]*pokemon.Pokemon, len(in.Sets))
		for i, set := range in.Sets {
			team[i] = pokemon.FromSet(set, lookup)
		}
	default:
		return nil, fmt.Errorf("%w: %s has no team", ErrInvalidTeam, id)
	}
	if in.Active < 0 || in.Active >= len(team) {
		return nil, fmt.Errorf("%w: %s active %d of %d", ErrInvalidTeam, id, in.Active, len(team))
	}
	return team, nil
}
