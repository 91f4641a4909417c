package calc

import (
	"fmt"

	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// FocusSash caps damage so a full-HP holder survives at 1 HP. It returns
// the damage to apply and whether the sash was used up.
func FocusSash(defender *pokemon.Pokemon, damage int) (int, bool) {
	if defender == nil || defender.Item != "Focus Sash" {
		return damage, false
	}
	if defender.CurrentHP == defender.MaxHP && defender.MaxHP > 1 && damage >= defender.CurrentHP {
		return defender.CurrentHP - 1, true
	}
	return damage, false
}

// EndOfTurnItem returns the HP change from a held item at end of turn:
// positive heals, negative hurts.
func EndOfTurnItem(p *pokemon.Pokemon) (int, string) {
	if p == nil || p.HasFainted() {
		return 0, ""
	}
	switch p.Item {
	case "Leftovers":
		if p.CurrentHP < p.MaxHP {
			heal := max(1, p.MaxHP/16)
			return heal, fmt.Sprintf("%s restored %d HP with Leftovers", p.Name, heal)
		}
	case "Black Sludge":
		if p.HasType("Poison") {
			if p.CurrentHP < p.MaxHP {
				heal := max(1, p.MaxHP/16)
				return heal, fmt.Sprintf("%s restored %d HP with Black Sludge", p.Name, heal)
			}
			return 0, ""
		}
		dmg := max(1, p.MaxHP/8)
		return -dmg, fmt.Sprintf("%s was hurt %d HP by Black Sludge", p.Name, dmg)
	}
	return 0, ""
}

// Berry returns the healing from a low-HP berry when the holder is at or
// below half HP. The caller clears the item.
func Berry(p *pokemon.Pokemon) (int, bool) {
	if p == nil || p.HasFainted() || p.CurrentHP*2 > p.MaxHP {
		return 0, false
	}
	switch p.Item {
	case "Sitrus Berry":
		return p.MaxHP / 4, true
	case "Oran Berry":
		return 10, true
	}
	return 0, false
}

// BagEffect is what a bag item does to the active Pokémon.
type BagEffect struct {
	Heal       int            `json:"heal,omitempty"`
	FullHeal   bool           `json:"fullHeal,omitempty"`
	CureStatus bool           `json:"cureStatus,omitempty"`
	Boosts     map[string]int `json:"boosts,omitempty"`
}

var bagItems = map[string]BagEffect{
	"Potion":       {Heal: 20},
	"Super Potion": {Heal: 60},
	"Hyper Potion": {Heal: 120},
	"Max Potion":   {FullHeal: true},
	"Full Restore": {FullHeal: true, CureStatus: true},
	"Full Heal":    {CureStatus: true},
	"X Attack":     {Boosts: map[string]int{"atk": 2}},
	"X Defense":    {Boosts: map[string]int{"def": 2}},
	"X Sp. Atk":    {Boosts: map[string]int{"spa": 2}},
	"X Sp. Def":    {Boosts: map[string]int{"spd": 2}},
	"X Speed":      {Boosts: map[string]int{"spe": 2}},
	"X Accuracy":   {Boosts: map[string]int{"accuracy": 2}},
}

// BagItem looks up a bag item.
func BagItem(name string) (BagEffect, bool) {
	e, ok := bagItems[name]
	return e, ok
}
