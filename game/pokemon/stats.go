package pokemon

import "math"

type natureMod struct{ up, down string }

var natures = map[string]natureMod{
	"Adamant": {StatAtk, StatSpA},
	"Bold":    {StatDef, StatAtk},
	"Brave":   {StatAtk, StatSpe},
	"Calm":    {StatSpD, StatAtk},
	"Careful": {StatSpD, StatSpA},
	"Gentle":  {StatSpD, StatDef},
	"Hasty":   {StatSpe, StatDef},
	"Impish":  {StatDef, StatSpA},
	"Jolly":   {StatSpe, StatSpA},
	"Lax":     {StatDef, StatSpD},
	"Lonely":  {StatAtk, StatDef},
	"Mild":    {StatSpA, StatDef},
	"Modest":  {StatSpA, StatAtk},
	"Naive":   {StatSpe, StatSpD},
	"Naughty": {StatAtk, StatSpD},
	"Quiet":   {StatSpA, StatSpe},
	"Rash":    {StatSpA, StatSpD},
	"Relaxed": {StatDef, StatSpe},
	"Sassy":   {StatSpD, StatSpe},
	"Timid":   {StatSpe, StatAtk},
}

// NatureMultiplier returns 1.1, 0.9 or 1 for the given nature and stat.
// Neutral and unknown natures always return 1.
func NatureMultiplier(nature, stat string) float64 {
	n, ok := natures[nature]
	if !ok {
		return 1
	}
	switch stat {
	case n.up:
		return 1.1
	case n.down:
		return 0.9
	}
	return 1
}

// CalcHP applies the HP formula. Shedinja is always 1.
func CalcHP(species string, base, iv, ev, level int) int {
	if species == "Shedinja" {
		return 1
	}
	return (2*base+iv+ev/4)*level/100 + level + 10
}

// CalcStat applies the non-HP stat formula with a nature multiplier.
func CalcStat(base, iv, ev, level int, natureMult float64) int {
	raw := (2*base+iv+ev/4)*level/100 + 5
	return int(math.Floor(float64(raw) * natureMult))
}

// ApplyBaseStats recomputes stats and maxHP from species base stats,
// keeping the current HP ratio when the Pokémon was already set up.
// Dynamax doubles the resulting maxHP.
func (p *Pokemon) ApplyBaseStats(base Stats) {
	level := p.Level
	if level < 1 {
		level = DefaultLevel
	}
	wasFull := p.CurrentHP == p.MaxHP || p.MaxHP == 0
	maxHP := CalcHP(p.Species, base.HP, p.IVs.HP, p.EVs.HP, level)
	if p.Dynamaxed && maxHP > 1 {
		maxHP *= 2
	}
	for _, key := range StatKeys[1:] {
		p.Stats.Set(key, CalcStat(base.Get(key), p.IVs.Get(key), p.EVs.Get(key), level, NatureMultiplier(p.Nature, key)))
	}
	p.SetMaxHP(maxHP)
	if wasFull {
		p.CurrentHP = p.MaxHP
	}
	p.recalc()
}

// SpeciesData is what a dex knows about a species.
type SpeciesData struct {
	Name  string   `json:"name" yaml:"name"`
	Types []string `json:"types" yaml:"types"`
	Base  Stats    `json:"bs" yaml:"bs"`
}

// SpeciesLookup resolves species data; ok is false when unknown.
type SpeciesLookup func(species string) (SpeciesData, bool)

// Set is an imported team member: the shape a team builder exports.
type Set struct {
	Name     string         `json:"name" yaml:"name"`
	Species  string         `json:"species" yaml:"species"`
	Level    int            `json:"level" yaml:"level"`
	Ability  string         `json:"ability" yaml:"ability"`
	Item     string         `json:"item" yaml:"item"`
	Nature   string         `json:"nature" yaml:"nature"`
	Moves    []string       `json:"moves" yaml:"moves"`
	Types    []string       `json:"types" yaml:"types"`
	EVs      map[string]int `json:"evs" yaml:"evs"`
	IVs      map[string]int `json:"ivs" yaml:"ivs"`
	TeraType string         `json:"teraType" yaml:"teraType"`
}

var legacyStatKeys = map[string]string{"hp": "hp", "at": StatAtk, "df": StatDef, "sa": StatSpA, "sd": StatSpD, "sp": StatSpe}

func canonicalStat(key string) string {
	if k, ok := legacyStatKeys[key]; ok {
		return k
	}
	return key
}

// FromSet builds a full-HP Pokémon from an imported set. Without species
// data the Pokémon gets FallbackMaxHP and zero stats.
func FromSet(set Set, lookup SpeciesLookup) *Pokemon {
	species := set.Species
	if species == "" {
		species = set.Name
	}
	p := New(species, set.Level)
	if set.Name != "" {
		p.Name = set.Name
	}
	p.Ability = set.Ability
	p.Item = set.Item
	if set.Nature != "" {
		p.Nature = set.Nature
	}
	p.Moves = append([]string(nil), set.Moves...)
	p.Types = append([]string(nil), set.Types...)
	p.TeraType = set.TeraType
	for k, v := range set.EVs {
		p.EVs.Set(canonicalStat(k), v)
	}
	for k, v := range set.IVs {
		if v == 0 {
			v = DefaultIV
		}
		p.IVs.Set(canonicalStat(k), v)
	}
	if lookup != nil {
		if sd, ok := lookup(species); ok {
			if len(p.Types) == 0 {
				p.Types = append([]string(nil), sd.Types...)
			}
			p.MaxHP = 0
			p.ApplyBaseStats(sd.Base)
		}
	}
	return p
}
