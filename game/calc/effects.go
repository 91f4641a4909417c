package calc

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// Hazard names as stored in side conditions.
const (
	HazardStealthRock = "stealthRock"
	HazardSpikes      = "spikes"
	HazardToxicSpikes = "toxicSpikes"
	HazardStickyWeb   = "stickyWeb"
)

// Screen names as stored in side conditions.
const (
	ScreenReflect     = "reflect"
	ScreenLightScreen = "lightScreen"
	ScreenAuroraVeil  = "auroraVeil"
)

// StatusEffects is what a status move does when it connects.
type StatusEffects struct {
	TargetStatus pokemon.Status `json:"targetStatus,omitempty"`
	SelfStatus   pokemon.Status `json:"selfStatus,omitempty"`
	SelfBoosts   map[string]int `json:"selfBoosts,omitempty"`
	TargetBoosts map[string]int `json:"targetBoosts,omitempty"`
	Hazard       string         `json:"hazard,omitempty"`
	Screen       string         `json:"screen,omitempty"`
	ScreenTurns  int            `json:"screenTurns,omitempty"`
	Weather      string         `json:"weather,omitempty"`
	WeatherTurns int            `json:"weatherTurns,omitempty"`
	// Heal is a fraction of the user's max HP.
	Heal float64 `json:"heal,omitempty"`
	// HealFromTargetAtk heals by the target's attack stat (Strength Sap).
	HealFromTargetAtk bool `json:"healFromTargetAtk,omitempty"`
	Delayed           bool `json:"delayed,omitempty"`
}

// Empty reports whether the move has no known effect.
func (e StatusEffects) Empty() bool {
	return e.TargetStatus == "" && e.SelfStatus == "" && len(e.SelfBoosts) == 0 && len(e.TargetBoosts) == 0 &&
		e.Hazard == "" && e.Screen == "" && e.Weather == "" && e.Heal == 0 && !e.HealFromTargetAtk
}

var statusInflicting = map[string]pokemon.Status{
	"Thunder Wave":  pokemon.Paralyzed,
	"Toxic":         pokemon.BadlyPoisoned,
	"Will-O-Wisp":   pokemon.Burned,
	"Hypnosis":      pokemon.Asleep,
	"Sleep Powder":  pokemon.Asleep,
	"Spore":         pokemon.Asleep,
	"Sing":          pokemon.Asleep,
	"Lovely Kiss":   pokemon.Asleep,
	"Dark Void":     pokemon.Asleep,
	"Stun Spore":    pokemon.Paralyzed,
	"Glare":         pokemon.Paralyzed,
	"Nuzzle":        pokemon.Paralyzed,
	"Poison Gas":    pokemon.Poisoned,
	"Poison Powder": pokemon.Poisoned,
}

var boostMoves = map[string]map[string]int{
	"Swords Dance": {"atk": 2},
	"Dragon Dance": {"atk": 1, "spe": 1},
	"Nasty Plot":   {"spa": 2},
	"Calm Mind":    {"spa": 1, "spd": 1},
	"Bulk Up":      {"atk": 1, "def": 1},
	"Iron Defense": {"def": 2},
	"Amnesia":      {"spd": 2},
	"Agility":      {"spe": 2},
	"Rock Polish":  {"spe": 2},
	"Quiver Dance": {"spa": 1, "spd": 1, "spe": 1},
	"Shell Smash":  {"atk": 2, "spa": 2, "spe": 2, "def": -1, "spd": -1},
	"Curse":        {"atk": 1, "def": 1, "spe": -1},
	"Growth":       {"atk": 1, "spa": 1},
	"Work Up":      {"atk": 1, "spa": 1},
	"Hone Claws":   {"atk": 1, "accuracy": 1},
	"Coil":         {"atk": 1, "def": 1, "accuracy": 1},
	"Tail Glow":    {"spa": 3},
	"Cotton Guard": {"def": 3},
	"Belly Drum":   {"atk": 6},
	"Minimize":     {"evasion": 2},
	"Double Team":  {"evasion": 1},
	"Autotomize":   {"spe": 2},
}

var loweringMoves = map[string]map[string]int{
	"Growl":         {"atk": -1},
	"Leer":          {"def": -1},
	"Screech":       {"def": -2},
	"Fake Tears":    {"spd": -2},
	"Metal Sound":   {"spd": -2},
	"Scary Face":    {"spe": -2},
	"Cotton Spore":  {"spe": -2},
	"String Shot":   {"spe": -2},
	"Charm":         {"atk": -2},
	"Feather Dance": {"atk": -2},
	"Tickle":        {"atk": -1, "def": -1},
	"Memento":       {"atk": -2, "spa": -2},
	"Captivate":     {"spa": -2},
	"Confide":       {"spa": -1},
	"Noble Roar":    {"atk": -1, "spa": -1},
	"Parting Shot":  {"atk": -1, "spa": -1},
	"King's Shield": {"atk": -2},
}

var hazardMoves = map[string]string{
	"Stealth Rock": HazardStealthRock,
	"Spikes":       HazardSpikes,
	"Toxic Spikes": HazardToxicSpikes,
	"Sticky Web":   HazardStickyWeb,
}

var screenMoves = map[string]string{
	"Reflect":      ScreenReflect,
	"Light Screen": ScreenLightScreen,
	"Aurora Veil":  ScreenAuroraVeil,
}

var weatherMoves = map[string]string{
	"Rain Dance": "Rain",
	"Sunny Day":  "Sun",
	"Sandstorm":  "Sand",
	"Hail":       "Hail",
	"Snowscape":  "Snow",
}

var healMoves = map[string]float64{
	"Recover":     0.5,
	"Soft-Boiled": 0.5,
	"Milk Drink":  0.5,
	"Slack Off":   0.5,
	"Roost":       0.5,
	"Synthesis":   0.5,
	"Morning Sun": 0.5,
	"Moonlight":   0.5,
	"Rest":        1,
	"Wish":        0.5,
	"Shore Up":    0.5,
}

// FieldEffectTurns is how long screens and move-set weather last.
const FieldEffectTurns = 5

// StatusMoveEffects looks up what a status move does.
func StatusMoveEffects(name string) StatusEffects {
	var e StatusEffects
	if s, ok := statusInflicting[name]; ok {
		e.TargetStatus = s
	}
	if b, ok := boostMoves[name]; ok {
		e.SelfBoosts = lo.Assign(b)
	}
	if b, ok := loweringMoves[name]; ok {
		e.TargetBoosts = lo.Assign(b)
	}
	e.Hazard = hazardMoves[name]
	if s, ok := screenMoves[name]; ok {
		e.Screen, e.ScreenTurns = s, FieldEffectTurns
	}
	if w, ok := weatherMoves[name]; ok {
		e.Weather, e.WeatherTurns = w, FieldEffectTurns
	}
	if h, ok := healMoves[name]; ok {
		e.Heal = h
	}
	switch name {
	case "Rest":
		e.SelfStatus = pokemon.Asleep
	case "Wish":
		e.Delayed = true
	case "Strength Sap":
		e.HealFromTargetAtk = true
	}
	return e
}

var labelOrder = []struct{ key, label string }{
	{"atk", "Atk"}, {"def", "Def"}, {"spa", "SpA"}, {"spd", "SpD"}, {"spe", "Spe"},
	{"accuracy", "accuracy"}, {"evasion", "evasion"},
}

// Label summarises the effects, e.g. "Toxic" or "Atk+1, Spe+1".
func (e StatusEffects) Label() string {
	var labels []string
	if e.TargetStatus != "" {
		labels = append(labels, e.TargetStatus.Verb())
	}
	if len(e.SelfBoosts) > 0 {
		var parts []string
		for _, lb := range labelOrder {
			if v, ok := e.SelfBoosts[lb.key]; ok {
				parts = append(parts, fmt.Sprintf("%s%+d", lb.label, v))
			}
		}
		labels = append(labels, strings.Join(parts, ", "))
	}
	if len(e.TargetBoosts) > 0 {
		labels = append(labels, "Lower stats")
	}
	if e.Hazard != "" {
		labels = append(labels, "Set hazard")
	}
	if e.Screen != "" {
		labels = append(labels, "Set screen")
	}
	if e.Weather != "" {
		labels = append(labels, e.Weather)
	}
	if e.Heal > 0 || e.HealFromTargetAtk {
		labels = append(labels, "Heal")
	}
	if len(labels) == 0 {
		return "Effect"
	}
	return strings.Join(labels, ", ")
}

var secondaryEffects = map[string]Secondary{
	"Thunderbolt":    {Status: "par", Chance: 0.1},
	"Thunder":        {Status: "par", Chance: 0.3},
	"Ice Beam":       {Status: "frz", Chance: 0.1},
	"Blizzard":       {Status: "frz", Chance: 0.1},
	"Flamethrower":   {Status: "brn", Chance: 0.1},
	"Fire Blast":     {Status: "brn", Chance: 0.1},
	"Scald":          {Status: "brn", Chance: 0.3},
	"Lava Plume":     {Status: "brn", Chance: 0.3},
	"Sludge Bomb":    {Status: "psn", Chance: 0.3},
	"Poison Jab":     {Status: "psn", Chance: 0.3},
	"Body Slam":      {Status: "par", Chance: 0.3},
	"Discharge":      {Status: "par", Chance: 0.3},
	"Iron Head":      {Flinch: true, Chance: 0.3},
	"Rock Slide":     {Flinch: true, Chance: 0.3},
	"Fake Out":       {Flinch: true, Chance: 1},
	"Air Slash":      {Flinch: true, Chance: 0.3},
	"Waterfall":      {Flinch: true, Chance: 0.2},
	"Zen Headbutt":   {Flinch: true, Chance: 0.2},
	"Close Combat":   {Self: map[string]int{"def": -1, "spd": -1}},
	"Superpower":     {Self: map[string]int{"atk": -1, "def": -1}},
	"Draco Meteor":   {Self: map[string]int{"spa": -2}},
	"Overheat":       {Self: map[string]int{"spa": -2}},
	"Leaf Storm":     {Self: map[string]int{"spa": -2}},
	"Psycho Boost":   {Self: map[string]int{"spa": -2}},
	"V-create":       {Self: map[string]int{"def": -1, "spd": -1, "spe": -1}},
	"Hammer Arm":     {Self: map[string]int{"spe": -1}},
	"Power-Up Punch": {Self: map[string]int{"atk": 1}},
	"Flame Charge":   {Self: map[string]int{"spe": 1}},
	"Ancient Power":  {Self: map[string]int{"atk": 1, "def": 1, "spa": 1, "spd": 1, "spe": 1}, Chance: 0.1},
	"Shadow Ball":    {Boosts: map[string]int{"spd": -1}, Chance: 0.2},
	"Psychic":        {Boosts: map[string]int{"spd": -1}, Chance: 0.1},
	"Earth Power":    {Boosts: map[string]int{"spd": -1}, Chance: 0.1},
	"Energy Ball":    {Boosts: map[string]int{"spd": -1}, Chance: 0.1},
	"Flash Cannon":   {Boosts: map[string]int{"spd": -1}, Chance: 0.1},
	"Crunch":         {Boosts: map[string]int{"def": -1}, Chance: 0.2},
}

// SecondaryEffects returns the known secondary effects of a damaging move.
func SecondaryEffects(name string) []Secondary {
	s, ok := secondaryEffects[name]
	if !ok {
		return nil
	}
	s.Boosts = lo.Assign(s.Boosts)
	s.Self = lo.Assign(s.Self)
	return []Secondary{s}
}
