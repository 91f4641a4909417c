package resolver

import (
	"fmt"
	"slices"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// LegacyBurnGen is the last generation in which burn dealt 1/8 max HP.
const LegacyBurnGen = 6

var sides = []battle.SideID{battle.P1, battle.P2}

var (
	sandImmuneTypes     = []string{"Rock", "Ground", "Steel"}
	sandImmuneAbilities = []string{"Sand Veil", "Sand Rush", "Sand Force", "Overcoat", "Magic Guard"}
	hailImmuneAbilities = []string{"Ice Body", "Snow Cloak", "Overcoat", "Magic Guard"}
)

// endOfTurn applies residual effects in a fixed order: status damage, then
// weather, then held items, then berries, each p1 before p2. Field and side
// counters tick down last.
func (r *Resolver) endOfTurn(t *Turn) {
	s := t.State
	for _, side := range sides {
		if line := r.statusDamage(s.Side(side).Active); line != "" {
			t.EndOfTurn = append(t.EndOfTurn, line)
		}
	}
	for _, side := range sides {
		if line := weatherDamage(s.Field.Weather, s.Side(side).Active); line != "" {
			t.EndOfTurn = append(t.EndOfTurn, line)
		}
	}
	for _, side := range sides {
		p := s.Side(side).Active
		delta, line := calc.EndOfTurnItem(p)
		switch {
		case delta > 0:
			p.ApplyHealing(float64(delta))
		case delta < 0:
			p.ApplyDamage(float64(-delta))
		}
		if line != "" {
			t.EndOfTurn = append(t.EndOfTurn, line)
		}
	}
	for _, side := range sides {
		p := s.Side(side).Active
		if heal, ok := calc.Berry(p); ok {
			berry := p.Item
			p.ApplyHealing(float64(heal))
			p.Item = ""
			t.EndOfTurn = append(t.EndOfTurn, fmt.Sprintf("%s ate its %s and restored %d HP", p.Name, berry, heal))
		}
	}
	for _, side := range sides {
		if p := s.Side(side).Active; p != nil && p.HasFainted() {
			t.EndOfTurn = append(t.EndOfTurn, p.Name+" fainted")
		}
	}
	t.EndOfTurn = append(t.EndOfTurn, tickField(s)...)
}

// statusDamage hurts p for poison, toxic or burn. Toxic damage grows with
// the counter, which then advances up to 15.
func (r *Resolver) statusDamage(p *pokemon.Pokemon) string {
	if p == nil || p.HasFainted() || p.Ability == "Magic Guard" {
		return ""
	}
	var dmg int
	cause := "poison"
	switch p.Status {
	case pokemon.Poisoned:
		dmg = max(1, p.MaxHP/8)
	case pokemon.BadlyPoisoned:
		counter := max(1, p.ToxicCounter)
		dmg = max(1, p.MaxHP*counter/16)
		p.ToxicCounter = min(counter+1, pokemon.MaxToxicCounter)
	case pokemon.Burned:
		div := 16
		if r.gen <= LegacyBurnGen {
			div = 8
		}
		dmg = max(1, p.MaxHP/div)
		cause = "its burn"
	default:
		return ""
	}
	p.ApplyDamage(float64(dmg))
	return fmt.Sprintf("%s was hurt %d HP by %s", p.Name, dmg, cause)
}

func weatherDamage(weather string, p *pokemon.Pokemon) string {
	if p == nil || p.HasFainted() || p.Item == "Safety Goggles" {
		return ""
	}
	var name string
	switch weather {
	case "Sand", "Sandstorm":
		if slices.ContainsFunc(sandImmuneTypes, p.HasType) || slices.Contains(sandImmuneAbilities, p.Ability) {
			return ""
		}
		name = "the sandstorm"
	case "Hail":
		if p.HasType("Ice") || slices.Contains(hailImmuneAbilities, p.Ability) {
			return ""
		}
		name = "hail"
	default:
		return ""
	}
	dmg := max(1, p.MaxHP/16)
	p.ApplyDamage(float64(dmg))
	return fmt.Sprintf("%s was buffeted by %s (%d HP)", p.Name, name, dmg)
}

// tick counts a timed effect down; it reports true when the effect ends.
// A zero counter means the effect has no time limit.
func tick(turns *int) bool {
	if *turns <= 0 {
		return false
	}
	*turns--
	return *turns == 0
}

func tickField(s *battle.State) []string {
	var out []string
	f := &s.Field
	if f.Weather != "" && f.Weather != battle.WeatherNone && tick(&f.WeatherTurns) {
		out = append(out, fmt.Sprintf("The %s subsided", f.Weather))
		f.Weather = battle.WeatherNone
	}
	if f.Terrain != "" && f.Terrain != battle.TerrainNone && tick(&f.TerrainTurns) {
		out = append(out, fmt.Sprintf("The %s terrain faded", f.Terrain))
		f.Terrain = battle.TerrainNone
	}
	if f.TrickRoom && tick(&f.TrickRoomTurns) {
		f.TrickRoom = false
		out = append(out, "The twisted dimensions returned to normal")
	}
	if f.Gravity && tick(&f.GravityTurns) {
		f.Gravity = false
		out = append(out, "Gravity returned to normal")
	}
	for _, side := range sides {
		sc := s.Conditions(side)
		name := sideName(side)
		if sc.Reflect && tick(&sc.ReflectTurns) {
			sc.Reflect = false
			out = append(out, name+"'s Reflect wore off")
		}
		if sc.LightScreen && tick(&sc.LightScreenTurns) {
			sc.LightScreen = false
			out = append(out, name+"'s Light Screen wore off")
		}
		if sc.AuroraVeil && tick(&sc.AuroraVeilTurns) {
			sc.AuroraVeil = false
			out = append(out, name+"'s Aurora Veil wore off")
		}
		if sc.Tailwind && tick(&sc.TailwindTurns) {
			sc.Tailwind = false
			out = append(out, name+"'s Tailwind petered out")
		}
	}
	return out
}
