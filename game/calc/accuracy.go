package calc

import (
	"math"
	"slices"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// Accuracy returns the hit percentage of move after ability, item,
// weather and gravity modifiers, capped at 100.
func Accuracy(move MoveInfo, attacker, defender *pokemon.Pokemon, field battle.Field) int {
	if move.Accuracy <= 0 {
		return 100
	}
	acc := move.Accuracy
	var atkAbility, defAbility, atkItem string
	if attacker != nil {
		atkAbility, atkItem = attacker.Ability, attacker.Item
	}
	if defender != nil {
		defAbility = defender.Ability
	}
	if atkAbility == "No Guard" || defAbility == "No Guard" {
		return 100
	}
	if atkAbility == "Compound Eyes" {
		acc = int(math.Floor(float64(acc) * 1.3))
	}
	if atkAbility == "Hustle" && move.Category == Physical {
		acc = int(math.Floor(float64(acc) * 0.8))
	}
	if atkItem == "Wide Lens" {
		acc = int(math.Floor(float64(acc) * 1.1))
	}

	switch move.Name {
	case "Thunder", "Hurricane":
		switch field.Weather {
		case "Rain", "Heavy Rain":
			return 100
		case "Sun", "Harsh Sunshine":
			acc = 50
		}
	case "Blizzard":
		if field.Weather == "Hail" || field.Weather == "Snow" {
			return 100
		}
	}
	if field.Gravity {
		acc = acc * 5 / 3
	}
	return min(100, acc)
}

var alwaysCrit = []string{"Storm Throw", "Frost Breath", "Zippy Zap", "Surging Strikes", "Wicked Blow"}

var highCrit = []string{
	"Slash", "Karate Chop", "Razor Leaf", "Crabhammer", "Shadow Claw",
	"Stone Edge", "Cross Chop", "Aeroblast", "Night Slash", "Psycho Cut",
	"Spacial Rend", "Air Cutter", "Attack Order", "Blaze Kick", "Cross Poison",
	"Drill Run", "Leaf Blade", "Poison Tail", "Sky Attack", "Shadow Blast",
}

var (
	critRatesModern = []float64{1.0 / 24, 1.0 / 8, 1.0 / 2, 1, 1}
	critRatesLegacy = []float64{1.0 / 16, 1.0 / 8, 1.0 / 4, 1.0 / 3, 1.0 / 2}
)

// CritChance returns the probability that move lands a critical hit.
func CritChance(move string, attacker, defender *pokemon.Pokemon, gen int) float64 {
	if move == "" {
		return 0
	}
	if slices.Contains(alwaysCrit, move) {
		return 1
	}
	if defender != nil && (defender.Ability == "Battle Armor" || defender.Ability == "Shell Armor") {
		return 0
	}
	stage := 0
	if slices.Contains(highCrit, move) {
		stage++
	}
	if attacker != nil {
		switch {
		case attacker.Item == "Scope Lens" || attacker.Item == "Razor Claw":
			stage++
		case attacker.Item == "Leek" && (attacker.Name == "Farfetch'd" || attacker.Name == "Sirfetch'd"):
			stage += 2
		case attacker.Item == "Lucky Punch" && attacker.Name == "Chansey":
			stage += 2
		case attacker.Item == "Stick" && attacker.Name == "Farfetch'd":
			stage += 2
		}
		if attacker.Ability == "Super Luck" {
			stage++
		}
	}
	rates := critRatesLegacy
	if gen == 0 || gen >= 7 {
		rates = critRatesModern
	}
	return rates[min(stage, len(rates)-1)]
}
