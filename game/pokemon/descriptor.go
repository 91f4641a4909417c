package pokemon

import (
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// Descriptor is a loosely-typed Pokémon description from outside the planner:
// decoded JSON, an object exported from a calculator script, an import file.
// Fields may hold plain values or zero-argument accessors.
type Descriptor = map[string]any

// Value reads key from d. A zero-argument function is invoked and its first
// result used. Missing keys, nil results, NaN and panicking accessors all
// report ok == false.
func Value(d map[string]any, key string) (v any, ok bool) {
	if d == nil {
		return nil, false
	}
	raw, found := d[key]
	if !found {
		return nil, false
	}
	return resolve(raw)
}

func resolve(raw any) (v any, ok bool) {
	if raw == nil {
		return nil, false
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Func {
		if rv.Type().NumIn() != 0 || rv.Type().NumOut() == 0 {
			return nil, false
		}
		defer func() {
			if r := recover(); r != nil {
				v, ok = nil, false
			}
		}()
		out := rv.Call(nil)
		if !out[0].IsValid() || !out[0].CanInterface() {
			return nil, false
		}
		return resolve(out[0].Interface())
	}
	if f, isFloat := raw.(float64); isFloat && math.IsNaN(f) {
		return nil, false
	}
	return raw, true
}

// Int reads an integer field, falling back to def.
func Int(d map[string]any, key string, def int) int {
	v, ok := Value(d, key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// Float reads a numeric field, falling back to def.
func Float(d map[string]any, key string, def float64) float64 {
	v, ok := Value(d, key)
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return def
	}
	return f
}

// String reads a string field, falling back to def.
func String(d map[string]any, key, def string) string {
	v, ok := Value(d, key)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Bool reads a boolean field, falling back to def.
func Bool(d map[string]any, key string, def bool) bool {
	v, ok := Value(d, key)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Map reads a nested object.
func Map(d map[string]any, key string) (map[string]any, bool) {
	v, ok := Value(d, key)
	if !ok {
		return nil, false
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Slice reads a list field.
func Slice(d map[string]any, key string) ([]any, bool) {
	v, ok := Value(d, key)
	if !ok {
		return nil, false
	}
	s, err := cast.ToSliceE(v)
	if err != nil {
		return nil, false
	}
	return s, true
}

func numeric(d map[string]any, key string) (int, bool) {
	v, ok := Value(d, key)
	if !ok {
		return 0, false
	}
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
	default:
		return 0, false
	}
	n, err := cast.ToIntE(v)
	return n, err == nil
}

func statBlock(d map[string]any, def int, into *Stats) {
	for _, key := range StatKeys {
		into.Set(key, Int(d, key, def))
	}
}

// ExtractMaxHP resolves max HP from rawStats.hp, then species base stats,
// then a maxHP accessor, then 1. Dynamax doubles the result.
func ExtractMaxHP(d map[string]any) int {
	if d == nil {
		return 1
	}
	maxHP := 1
	raw, hasRaw := Map(d, "rawStats")
	species, hasSpecies := Map(d, "species")
	baseStats, hasBase := Map(species, "baseStats")
	if hp, ok := numeric(raw, "hp"); hasRaw && ok {
		maxHP = hp
	} else if hasSpecies && hasBase {
		level := Int(d, "level", DefaultLevel)
		ivs, _ := Map(d, "ivs")
		evs, _ := Map(d, "evs")
		maxHP = CalcHP(String(species, "name", ""), Int(baseStats, "hp", 50), Int(ivs, "hp", DefaultIV), Int(evs, "hp", 0), level)
	} else if hp, ok := numeric(d, "maxHP"); ok && hp > 0 {
		maxHP = hp
	}
	if Bool(d, "isDynamaxed", false) && maxHP > 1 {
		maxHP *= 2
	}
	return max(1, maxHP)
}

// ExtractCurHP resolves current HP, clamped to [0, maxHP].
func ExtractCurHP(d map[string]any, maxHP int) int {
	if d == nil {
		return 0
	}
	cur := maxHP
	if hp, ok := numeric(d, "curHP"); ok {
		cur = hp
	}
	if Bool(d, "isDynamaxed", false) {
		if orig, ok := numeric(d, "originalCurHP"); ok && orig > 0 {
			cur = orig * 2
		}
	}
	return max(0, min(cur, maxHP))
}

func stringList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if name := String(v, "name", ""); name != "" {
				out = append(out, name)
			}
		default:
			if m, err := cast.ToStringMapE(v); err == nil {
				if name := String(m, "name", ""); name != "" {
					out = append(out, name)
				}
			} else if s, err := cast.ToStringE(v); err == nil && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// FromDescriptor builds a Pokémon from a descriptor. It never fails: every
// absent or malformed field takes its documented default.
func FromDescriptor(d map[string]any) *Pokemon {
	p := &Pokemon{
		Level:  DefaultLevel,
		Status: Healthy,
		Nature: DefaultNature,
		IVs:    Stats{HP: DefaultIV, Atk: DefaultIV, Def: DefaultIV, SpA: DefaultIV, SpD: DefaultIV, Spe: DefaultIV},
		PP:     []int{DefaultPP, DefaultPP, DefaultPP, DefaultPP},
	}
	if d == nil {
		p.SetMaxHP(1)
		return p
	}

	p.Name = String(d, "name", "")
	p.Species = p.Name
	if sp, ok := Map(d, "species"); ok {
		p.Species = String(sp, "name", p.Name)
	} else if s := String(d, "species", ""); s != "" {
		p.Species = s
	}
	if p.Name == "" {
		p.Name = p.Species
	}
	p.Level = Int(d, "level", DefaultLevel)

	p.Dynamaxed = Bool(d, "isDynamaxed", false)
	p.MaxHP = ExtractMaxHP(d)
	p.CurrentHP = ExtractCurHP(d, p.MaxHP)

	p.Status = ParseStatus(String(d, "status", ""))
	if p.Status == BadlyPoisoned {
		p.ToxicCounter = max(1, min(Int(d, "toxicCounter", 1), MaxToxicCounter))
	}

	if b, ok := Map(d, "boosts"); ok {
		for _, key := range []string{StatAtk, StatDef, StatSpA, StatSpD, StatSpe, StatAccuracy, StatEvasion} {
			p.ApplyBoost(key, Int(b, key, 0))
		}
	}

	p.Ability = String(d, "ability", "")
	p.Item = String(d, "item", "")
	p.Nature = String(d, "nature", DefaultNature)

	if types, ok := Slice(d, "types"); ok {
		p.Types = stringList(types)
	} else if sp, ok := Map(d, "species"); ok {
		if types, ok := Slice(sp, "types"); ok {
			p.Types = stringList(types)
		}
	}
	p.TeraType = String(d, "teraType", "")
	p.Terastallized = Bool(d, "isTerastallized", p.TeraType != "")

	if moves, ok := Slice(d, "moves"); ok {
		p.Moves = stringList(moves)
	}
	if pp, ok := Slice(d, "pp"); ok {
		p.PP = make([]int, 0, len(pp))
		for _, v := range pp {
			n, err := cast.ToIntE(v)
			if err != nil {
				n = DefaultPP
			}
			p.PP = append(p.PP, max(0, n))
		}
	}

	if raw, ok := Map(d, "rawStats"); ok {
		statBlock(raw, 0, &p.Stats)
	}
	if st, ok := Map(d, "stats"); ok {
		for _, key := range StatKeys {
			p.Stats.Set(key, Int(st, key, p.Stats.Get(key)))
		}
	}
	if evs, ok := Map(d, "evs"); ok {
		statBlock(evs, 0, &p.EVs)
	}
	if ivs, ok := Map(d, "ivs"); ok {
		statBlock(ivs, DefaultIV, &p.IVs)
	}
	p.Charging = String(d, "charging", "")

	p.SetMaxHP(p.MaxHP)
	p.recalc()
	return p
}

// Descriptor renders p in the shape calculators expect, with a status code
// instead of a status name and rawStats in place of stats.
func (p *Pokemon) Descriptor() map[string]any {
	stats := func(s Stats) map[string]any {
		return map[string]any{"hp": s.HP, "atk": s.Atk, "def": s.Def, "spa": s.SpA, "spd": s.SpD, "spe": s.Spe}
	}
	return map[string]any{
		"name":  p.Name,
		"level": p.Level,
		"species": map[string]any{
			"name":  p.Species,
			"types": append([]string(nil), p.Types...),
		},
		"curHP":    p.CurrentHP,
		"maxHP":    p.MaxHP,
		"rawStats": stats(p.Stats),
		"evs":      stats(p.EVs),
		"ivs":      stats(p.IVs),
		"boosts": map[string]any{
			"atk": p.Boosts.Atk, "def": p.Boosts.Def, "spa": p.Boosts.SpA, "spd": p.Boosts.SpD,
			"spe": p.Boosts.Spe, "accuracy": p.Boosts.Accuracy, "evasion": p.Boosts.Evasion,
		},
		"status":          p.Status.Code(),
		"toxicCounter":    p.ToxicCounter,
		"ability":         p.Ability,
		"item":            p.Item,
		"nature":          p.Nature,
		"types":           append([]string(nil), p.EffectiveTypes()...),
		"teraType":        p.TeraType,
		"isTerastallized": p.Terastallized,
		"isDynamaxed":     p.Dynamaxed,
		"moves":           append([]string(nil), p.Moves...),
	}
}
