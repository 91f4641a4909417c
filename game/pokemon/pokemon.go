// Package pokemon models a single Pokémon's battle-relevant state at one instant.
package pokemon

import (
	"fmt"
	"math"
	"strings"
)

const (
	MinStage = -6
	MaxStage = 6

	DefaultLevel  = 100
	DefaultNature = "Hardy"
	DefaultIV     = 31
	DefaultPP     = 35
	FallbackMaxHP = 300
)

// Stat names accepted by ApplyBoost.
const (
	StatAtk      = "atk"
	StatDef      = "def"
	StatSpA      = "spa"
	StatSpD      = "spd"
	StatSpe      = "spe"
	StatAccuracy = "accuracy"
	StatEvasion  = "evasion"
)

// Boosts holds stat stages, each clamped to [-6, 6].
type Boosts struct {
	Atk      int `json:"atk"`
	Def      int `json:"def"`
	SpA      int `json:"spa"`
	SpD      int `json:"spd"`
	Spe      int `json:"spe"`
	Accuracy int `json:"accuracy"`
	Evasion  int `json:"evasion"`
}

func (b *Boosts) ref(stat string) *int {
	switch stat {
	case StatAtk:
		return &b.Atk
	case StatDef:
		return &b.Def
	case StatSpA:
		return &b.SpA
	case StatSpD:
		return &b.SpD
	case StatSpe:
		return &b.Spe
	case StatAccuracy:
		return &b.Accuracy
	case StatEvasion:
		return &b.Evasion
	}
	return nil
}

// Get returns the stage for stat; ok is false for unknown names.
func (b Boosts) Get(stat string) (int, bool) {
	p := b.ref(stat)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Stats is a six-stat block, used for computed stats, EVs and IVs.
type Stats struct {
	HP  int `json:"hp"`
	Atk int `json:"atk"`
	Def int `json:"def"`
	SpA int `json:"spa"`
	SpD int `json:"spd"`
	Spe int `json:"spe"`
}

// Get returns the value for a stat key ("hp", "atk", ...).
func (s Stats) Get(stat string) int {
	switch stat {
	case "hp":
		return s.HP
	case StatAtk:
		return s.Atk
	case StatDef:
		return s.Def
	case StatSpA:
		return s.SpA
	case StatSpD:
		return s.SpD
	case StatSpe:
		return s.Spe
	}
	return 0
}

// Set assigns the value for a stat key; unknown keys are ignored.
func (s *Stats) Set(stat string, v int) {
	switch stat {
	case "hp":
		s.HP = v
	case StatAtk:
		s.Atk = v
	case StatDef:
		s.Def = v
	case StatSpA:
		s.SpA = v
	case StatSpD:
		s.SpD = v
	case StatSpe:
		s.Spe = v
	}
}

// StatKeys lists the six stat keys in canonical order.
var StatKeys = []string{"hp", StatAtk, StatDef, StatSpA, StatSpD, StatSpe}

// Pokemon is a point-in-time snapshot of one Pokémon.
// It is mutated in place by the operations below and deep-copied by Clone
// before it is stored in a tree node.
type Pokemon struct {
	Name    string `json:"name"`
	Species string `json:"species"`
	Level   int    `json:"level"`

	CurrentHP int  `json:"currentHP"`
	MaxHP     int  `json:"maxHP"`
	PercentHP int  `json:"percentHP"`
	Fainted   bool `json:"hasFainted"`

	Status       Status `json:"status"`
	ToxicCounter int    `json:"toxicCounter"`

	Boosts Boosts `json:"boosts"`
	Stats  Stats  `json:"stats"`
	EVs    Stats  `json:"evs"`
	IVs    Stats  `json:"ivs"`

	Moves []string `json:"moves"`
	PP    []int    `json:"pp"`

	Ability       string   `json:"ability"`
	Item          string   `json:"item"`
	Nature        string   `json:"nature"`
	Types         []string `json:"types"`
	TeraType      string   `json:"teraType,omitempty"`
	Terastallized bool     `json:"isTerastallized"`
	Dynamaxed     bool     `json:"isDynamaxed,omitempty"`

	// Charging names a semi-invulnerable two-turn move in progress.
	Charging string `json:"charging,omitempty"`
}

// New returns a Pokémon with default level, nature, IVs and PP and no stats.
func New(species string, level int) *Pokemon {
	if level < 1 {
		level = DefaultLevel
	}
	p := &Pokemon{
		Name:    species,
		Species: species,
		Level:   level,
		Status:  Healthy,
		Nature:  DefaultNature,
		IVs:     Stats{HP: DefaultIV, Atk: DefaultIV, Def: DefaultIV, SpA: DefaultIV, SpD: DefaultIV, Spe: DefaultIV},
		PP:      []int{DefaultPP, DefaultPP, DefaultPP, DefaultPP},
	}
	p.SetMaxHP(FallbackMaxHP)
	p.CurrentHP = p.MaxHP
	p.recalc()
	return p
}

// SetMaxHP sets maxHP (at least 1), mirrors it into stats.hp and clamps current HP.
func (p *Pokemon) SetMaxHP(maxHP int) {
	if maxHP < 1 {
		maxHP = 1
	}
	p.MaxHP = maxHP
	p.Stats.HP = maxHP
	if p.CurrentHP > maxHP {
		p.CurrentHP = maxHP
	}
	p.recalc()
}

// SetHP sets current HP, clamped to [0, maxHP].
func (p *Pokemon) SetHP(hp int) {
	p.CurrentHP = max(0, min(hp, p.MaxHP))
	p.recalc()
}

func (p *Pokemon) recalc() {
	if p.CurrentHP < 0 {
		p.CurrentHP = 0
	}
	if p.MaxHP > 0 {
		p.PercentHP = int(math.Round(float64(p.CurrentHP) / float64(p.MaxHP) * 100))
	} else {
		p.PercentHP = 100
	}
	p.Fainted = p.CurrentHP <= 0
}

// HasFainted reports whether current HP is zero.
func (p *Pokemon) HasFainted() bool {
	return p.CurrentHP <= 0
}

// ApplyDamage subtracts floor(amount) HP, never going below zero.
func (p *Pokemon) ApplyDamage(amount float64) {
	p.CurrentHP = max(0, p.CurrentHP-int(math.Floor(amount)))
	p.recalc()
}

// ApplyHealing adds floor(amount) HP, never exceeding maxHP.
func (p *Pokemon) ApplyHealing(amount float64) {
	p.CurrentHP = min(p.MaxHP, p.CurrentHP+int(math.Floor(amount)))
	p.recalc()
}

// ApplyBoost shifts a stat stage and clamps it to [-6, 6].
// Unknown stat names are ignored.
func (p *Pokemon) ApplyBoost(stat string, stages int) {
	ref := p.Boosts.ref(stat)
	if ref == nil {
		return
	}
	*ref = max(MinStage, min(MaxStage, *ref+stages))
}

// ClearBoosts resets every stage to zero.
func (p *Pokemon) ClearBoosts() {
	p.Boosts = Boosts{}
}

// SetStatus replaces the status. The toxic counter starts at 1 for
// BadlyPoisoned and is 0 otherwise. Callers decide whether an existing
// status may be overwritten.
func (p *Pokemon) SetStatus(s Status) {
	p.SetStatusWithCounter(s, 1)
}

// SetStatusWithCounter is SetStatus with an explicit toxic counter.
func (p *Pokemon) SetStatusWithCounter(s Status, toxicCounter int) {
	if !s.Valid() {
		s = Healthy
	}
	p.Status = s
	if s == BadlyPoisoned {
		p.ToxicCounter = max(1, min(toxicCounter, MaxToxicCounter))
	} else {
		p.ToxicCounter = 0
	}
}

// UsePP decrements the PP of the move at index, never below zero.
func (p *Pokemon) UsePP(index int) {
	if index < 0 || index >= len(p.PP) {
		return
	}
	if p.PP[index] > 0 {
		p.PP[index]--
	}
}

// MoveIndex returns the slot of the named move or -1.
func (p *Pokemon) MoveIndex(name string) int {
	for i, m := range p.Moves {
		if strings.EqualFold(m, name) {
			return i
		}
	}
	return -1
}

// HasType reports whether the Pokémon currently has type t, honouring Terastallization.
func (p *Pokemon) HasType(t string) bool {
	for _, have := range p.EffectiveTypes() {
		if strings.EqualFold(have, t) {
			return true
		}
	}
	return false
}

// EffectiveTypes returns the tera type when terastallized, else the natural types.
func (p *Pokemon) EffectiveTypes() []string {
	if p.Terastallized && p.TeraType != "" {
		return []string{p.TeraType}
	}
	return p.Types
}

// StageMultiplier converts a boost stage into its stat multiplier.
func StageMultiplier(stage int) float64 {
	switch {
	case stage > 0:
		return float64(2+stage) / 2
	case stage < 0:
		return 2 / float64(2-stage)
	}
	return 1
}

// SpeedContext carries the side conditions that affect speed.
type SpeedContext struct {
	Tailwind bool
}

// EffectiveSpeed returns the speed used for turn order. The result is
// floored after every multiplier, matching in-game integer truncation.
func (p *Pokemon) EffectiveSpeed(sc SpeedContext) int {
	spe := p.Stats.Spe
	if spe == 0 {
		spe = 100
	}
	speed := int(math.Floor(float64(spe) * StageMultiplier(p.Boosts.Spe)))
	if p.Status == Paralyzed {
		speed = int(math.Floor(float64(speed) * 0.5))
	}
	if p.Item == "Choice Scarf" {
		speed = int(math.Floor(float64(speed) * 1.5))
	}
	if sc.Tailwind {
		speed *= 2
	}
	return speed
}

var boostLabels = []struct{ key, label string }{
	{StatAtk, "Atk"}, {StatDef, "Def"}, {StatSpA, "SpA"}, {StatSpD, "SpD"}, {StatSpe, "Spe"},
}

// BoostSummary renders non-zero stages, e.g. "Atk +2, Spe -1".
func (p *Pokemon) BoostSummary() string {
	var parts []string
	for _, bl := range boostLabels {
		v, _ := p.Boosts.Get(bl.key)
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+d", bl.label, v))
		}
	}
	if len(parts) == 0 {
		return "No boosts"
	}
	return strings.Join(parts, ", ")
}

// Clone returns a deep copy sharing no slices with p.
func (p *Pokemon) Clone() *Pokemon {
	if p == nil {
		return nil
	}
	c := *p
	c.Moves = append([]string(nil), p.Moves...)
	c.PP = append([]int(nil), p.PP...)
	c.Types = append([]string(nil), p.Types...)
	return &c
}
