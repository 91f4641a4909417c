package calc

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
	"github.com/kasuganosora/battleplanner/game/script"
)

// ScriptCalculator delegates to a JavaScript bundle that defines
//
//	calculate(gen, attacker, defender, move, field) -> {damage, desc}
//	moveData(gen, name) -> move object, or null when unknown
//
// Results are read through the pokemon descriptor readers, so fields may be
// plain values or zero-argument methods.
type ScriptCalculator struct {
	pool   *script.VMPool
	logger *zap.Logger
}

// NewScript creates a ScriptCalculator over a preloaded VM pool.
func NewScript(pool *script.VMPool, logger *zap.Logger) *ScriptCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptCalculator{pool: pool, logger: logger}
}

// Move implements Calculator.
func (s *ScriptCalculator) Move(ctx context.Context, gen int, name string) (MoveInfo, error) {
	var info MoveInfo
	found := false
	err := s.pool.Call(ctx, "moveData", []any{gen, name}, func(v any) error {
		d, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		info, found = moveInfoFrom(d, name), true
		return nil
	})
	if err != nil {
		return MoveInfo{}, fmt.Errorf("script moveData %q: %w", name, err)
	}
	if !found {
		return MoveInfo{}, fmt.Errorf("%w: %q", ErrUnknownMove, name)
	}
	if len(info.Secondaries) == 0 {
		info.Secondaries = SecondaryEffects(info.Name)
	}
	return info, nil
}

// Damage implements Calculator.
func (s *ScriptCalculator) Damage(ctx context.Context, req Request) (Result, error) {
	if req.Attacker == nil || req.Defender == nil {
		return Result{}, ErrMissingCombatant
	}
	move := map[string]any{"name": req.Move, "isCrit": req.Crit}
	if req.Hits > 1 {
		move["hits"] = req.Hits
	}
	args := []any{req.Gen, req.Attacker.Descriptor(), req.Defender.Descriptor(), move, fieldDescriptor(req)}

	var res Result
	err := s.pool.Call(ctx, "calculate", args, func(v any) error {
		d, ok := v.(map[string]any)
		if !ok {
			res.Damage = v
			return nil
		}
		res.Damage, _ = pokemon.Value(d, "damage")
		res.Desc = pokemon.String(d, "desc", "")
		return nil
	})
	if err != nil {
		s.logger.Warn("script calculate failed", zap.String("move", req.Move), zap.Error(err))
		return Result{}, fmt.Errorf("script calculate %q: %w", req.Move, err)
	}
	res.Range = RangeOf(res.Damage)
	return res, nil
}

func fieldDescriptor(req Request) map[string]any {
	side := func(sc battle.SideConditions) map[string]any {
		return map[string]any{
			"spikes":        sc.Spikes,
			"isSR":          sc.StealthRock,
			"isReflect":     sc.Reflect,
			"isLightScreen": sc.LightScreen,
			"isAuroraVeil":  sc.AuroraVeil,
			"isTailwind":    sc.Tailwind,
		}
	}
	weather := req.Field.Weather
	if weather == battle.WeatherNone {
		weather = ""
	}
	terrain := req.Field.Terrain
	if terrain == battle.TerrainNone {
		terrain = ""
	}
	return map[string]any{
		"weather":      weather,
		"terrain":      terrain,
		"isGravity":    req.Field.Gravity,
		"isMagicRoom":  req.Field.MagicRoom,
		"isWonderRoom": req.Field.WonderRoom,
		"attackerSide": side(req.AttackerSide),
		"defenderSide": side(req.DefenderSide),
	}
}

// fraction reads a number or a [numerator, denominator] pair.
func fraction(d map[string]any, key string) float64 {
	if pair, ok := pokemon.Slice(d, key); ok {
		if len(pair) != 2 {
			return 0
		}
		num, den := cast.ToFloat64(pair[0]), cast.ToFloat64(pair[1])
		if den == 0 {
			return 0
		}
		return num / den
	}
	return pokemon.Float(d, key, 0)
}

// chance reads a probability given either as a fraction or a percentage.
func chance(d map[string]any) float64 {
	c := pokemon.Float(d, "chance", 0)
	if c > 1 {
		c /= 100
	}
	return c
}

func boostMap(d map[string]any, key string) map[string]int {
	m, ok := pokemon.Map(d, key)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k := range m {
		out[k] = pokemon.Int(m, k, 0)
	}
	return out
}

func moveInfoFrom(d map[string]any, name string) MoveInfo {
	info := MoveInfo{
		Name:      pokemon.String(d, "name", name),
		Type:      pokemon.String(d, "type", "Normal"),
		Category:  Category(pokemon.String(d, "category", string(Physical))),
		BasePower: pokemon.Int(d, "basePower", pokemon.Int(d, "bp", 0)),
		Priority:  pokemon.Int(d, "priority", 0),
		Recoil:    fraction(d, "recoil"),
		Drain:     fraction(d, "drain"),
		Heal:      fraction(d, "heal"),
	}
	if acc, ok := pokemon.Value(d, "accuracy"); ok {
		if b, isBool := acc.(bool); !isBool || !b {
			info.Accuracy = cast.ToInt(acc)
		}
	}
	if hits, ok := pokemon.Slice(d, "multihit"); ok && len(hits) == 2 {
		info.MultiHit = [2]int{cast.ToInt(hits[0]), cast.ToInt(hits[1])}
	} else if n := pokemon.Int(d, "multihit", 0); n > 1 {
		info.MultiHit = [2]int{n, n}
	}
	if secs, ok := pokemon.Slice(d, "secondaries"); ok {
		for _, raw := range secs {
			sd, err := cast.ToStringMapE(raw)
			if err != nil {
				continue
			}
			sec := Secondary{
				Status: pokemon.String(sd, "status", ""),
				Boosts: boostMap(sd, "boosts"),
				Flinch: pokemon.String(sd, "volatileStatus", "") == "flinch" || pokemon.Bool(sd, "flinch", false),
				Chance: chance(sd),
			}
			if self, ok := pokemon.Map(sd, "self"); ok {
				sec.Self = boostMap(self, "boosts")
			}
			info.Secondaries = append(info.Secondaries, sec)
		}
	}
	info.SelfBoosts = boostMap(d, "selfBoosts")
	if self, ok := pokemon.Map(d, "self"); ok && info.SelfBoosts == nil {
		info.SelfBoosts = boostMap(self, "boosts")
	}
	if v, ok := pokemon.Value(d, "selfSwitch"); ok {
		b, err := cast.ToBoolE(v)
		info.SelfSwitch = err != nil || b
	}
	info.ForceSwitch = pokemon.Bool(d, "forceSwitch", false)
	info.SemiInvulnerable = pokemon.Bool(d, "semiInvulnerable", false)
	return info
}
