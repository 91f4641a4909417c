package calc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// ErrMissingCombatant is returned when a request lacks an attacker or defender.
var ErrMissingCombatant = errors.New("calc: missing attacker or defender")

// BuiltinCalculator runs the standard damage formula against an in-process
// dex. It covers STAB, type effectiveness, crits, burn, screens, rain and
// sun, and stat stages; abilities and items beyond that are not modelled.
type BuiltinCalculator struct {
	dex *Dex
}

// NewBuiltin creates a BuiltinCalculator. A nil dex uses the embedded one.
func NewBuiltin(dex *Dex) *BuiltinCalculator {
	if dex == nil {
		dex = DefaultDex()
	}
	return &BuiltinCalculator{dex: dex}
}

// Dex returns the calculator's data.
func (b *BuiltinCalculator) Dex() *Dex { return b.dex }

// Move implements Calculator.
func (b *BuiltinCalculator) Move(_ context.Context, _ int, name string) (MoveInfo, error) {
	m, ok := b.dex.Move(name)
	if !ok {
		return MoveInfo{}, fmt.Errorf("%w: %q", ErrUnknownMove, name)
	}
	if len(m.Secondaries) == 0 {
		m.Secondaries = SecondaryEffects(m.Name)
	}
	return m, nil
}

// Damage implements Calculator. The result holds 16 rolls, lowest first.
func (b *BuiltinCalculator) Damage(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	move, err := b.Move(ctx, req.Gen, req.Move)
	if err != nil {
		return Result{}, err
	}
	if req.Attacker == nil || req.Defender == nil {
		return Result{}, ErrMissingCombatant
	}
	if move.IsStatus() || move.BasePower <= 0 {
		return Result{Damage: 0, Desc: move.Name + " deals no damage"}, nil
	}
	att, def := req.Attacker, req.Defender
	eff := Effectiveness(move.Type, def.EffectiveTypes())
	if eff == 0 {
		return Result{Damage: 0, Desc: fmt.Sprintf("%s doesn't affect %s", move.Name, def.Name)}, nil
	}

	atkKey, defKey := pokemon.StatAtk, pokemon.StatDef
	if move.Category == Special {
		atkKey, defKey = pokemon.StatSpA, pokemon.StatSpD
	}
	atkStage, _ := att.Boosts.Get(atkKey)
	defStage, _ := def.Boosts.Get(defKey)
	if req.Crit {
		atkStage = max(atkStage, 0)
		defStage = min(defStage, 0)
	}
	a := math.Floor(float64(b.stat(att, atkKey)) * pokemon.StageMultiplier(atkStage))
	d := math.Max(1, math.Floor(float64(b.stat(def, defKey))*pokemon.StageMultiplier(defStage)))

	level := att.Level
	if level < 1 {
		level = pokemon.DefaultLevel
	}
	base := math.Floor(math.Floor(math.Floor(float64(2*level)/5+2)*float64(move.BasePower)*a/d)/50) + 2
	base = math.Floor(base * weatherModifier(move.Type, req.Field.Weather))
	if req.Crit {
		if req.Gen >= 2 && req.Gen <= 5 {
			base *= 2
		} else {
			base = math.Floor(base * 1.5)
		}
	}

	hits := max(1, req.Hits)
	rolls := make([]int, 16)
	for i := range rolls {
		dmg := math.Floor(base * float64(85+i) / 100)
		if att.HasType(move.Type) {
			dmg = math.Floor(dmg * 1.5)
		}
		dmg = math.Floor(dmg * eff)
		if move.Category == Physical && att.Status == pokemon.Burned && att.Ability != "Guts" {
			dmg = math.Floor(dmg * 0.5)
		}
		if !req.Crit && screened(move.Category, req) {
			dmg = math.Floor(dmg * 0.5)
		}
		rolls[i] = max(1, int(dmg)) * hits
	}
	return Result{
		Damage: rolls,
		Range:  RangeOf(rolls),
		Desc:   fmt.Sprintf("%s vs. %s: %d-%d", move.Name, def.Name, rolls[0], rolls[15]),
	}, nil
}

// stat returns the Pokémon's stat, deriving it from dex base stats when the
// snapshot carries none.
func (b *BuiltinCalculator) stat(p *pokemon.Pokemon, key string) int {
	if v := p.Stats.Get(key); v > 0 {
		return v
	}
	if sd, ok := b.dex.Species(p.Species); ok {
		c := p.Clone()
		c.ApplyBaseStats(sd.Base)
		if v := c.Stats.Get(key); v > 0 {
			return v
		}
	}
	return 100
}

func weatherModifier(moveType, weather string) float64 {
	switch {
	case moveType == "Water" && (weather == "Rain" || weather == "Heavy Rain"):
		return 1.5
	case moveType == "Fire" && (weather == "Rain" || weather == "Heavy Rain"):
		return 0.5
	case moveType == "Fire" && (weather == "Sun" || weather == "Harsh Sunshine"):
		return 1.5
	case moveType == "Water" && (weather == "Sun" || weather == "Harsh Sunshine"):
		return 0.5
	}
	return 1
}

func screened(cat Category, req Request) bool {
	side := req.DefenderSide
	if side.AuroraVeil {
		return true
	}
	if cat == Physical {
		return side.Reflect
	}
	return side.LightScreen
}
