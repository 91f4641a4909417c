package resolver

import (
	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// ApplyKeyOutcome applies one previewed outcome of side's move to a clone of
// state, without resolving the opponent's action or end-of-turn effects. The
// returned state is one turn later.
func ApplyKeyOutcome(state *battle.State, side battle.SideID, k calc.KeyOutcome) (*battle.State, *battle.Outcome) {
	s := state.Clone()
	att := s.Side(side).Active
	def := s.Side(side.Opponent()).Active

	o := battle.NewOutcome(k.Label, k.Probability, 0)
	o.Crit, o.Miss = k.Crit, k.Miss

	switch k.Type {
	case calc.KeyNormal, calc.KeyCrit:
		if def != nil {
			dealt := min(k.Damage, def.CurrentHP)
			def.ApplyDamage(float64(k.Damage))
			o.DamageDealt = dealt
			o.DamagePercent = calc.Percent(dealt, def.MaxHP)
		}
	case calc.KeyStatus:
		if k.StatusEffects != nil {
			applyPreviewEffects(s, side, att, def, *k.StatusEffects)
			o.SecondaryTriggered = true
		}
	}

	s.TurnNumber++
	s.SyncAll()
	o.Details = map[string]any{
		DetailFirstMover: string(side),
		DetailP1Fainted:  fainted(s.P1.Active),
		DetailP2Fainted:  fainted(s.P2.Active),
	}
	return s, o
}

func applyPreviewEffects(s *battle.State, side battle.SideID, att, def *pokemon.Pokemon, e calc.StatusEffects) {
	if def != nil && !def.HasFainted() {
		if e.TargetStatus != "" && def.Status == pokemon.Healthy {
			def.SetStatus(e.TargetStatus)
		}
		for stat, n := range e.TargetBoosts {
			def.ApplyBoost(stat, n)
		}
	}
	if att != nil {
		for stat, n := range e.SelfBoosts {
			att.ApplyBoost(stat, n)
		}
		if e.SelfStatus == pokemon.Asleep {
			att.SetHP(att.MaxHP)
			att.SetStatusWithCounter(pokemon.Asleep, 0)
		} else if e.Heal > 0 && !e.Delayed {
			att.ApplyHealing(float64(att.MaxHP) * e.Heal)
		}
	}
	if e.Hazard != "" {
		setHazard(s.Conditions(side.Opponent()), e.Hazard)
	}
	if e.Screen != "" {
		setScreen(s.Conditions(side), e.Screen, e.ScreenTurns)
	}
	if e.Weather != "" {
		s.Field.Weather, s.Field.WeatherTurns = e.Weather, e.WeatherTurns
	}
}
