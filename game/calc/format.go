package calc

import (
	"fmt"
	"math"
)

// KOInfo estimates how many hits of a given damage knock the defender out.
type KOInfo struct {
	HitsToKO int     `json:"hitsToKO"` // 0 when the move cannot KO
	Chance   float64 `json:"chance,omitempty"`
	Label    string  `json:"label"`
}

// KOChance classifies damage against the defender's current and max HP.
func KOChance(damage, hp, maxHP int) KOInfo {
	switch {
	case damage <= 0:
		return KOInfo{Label: "No damage"}
	case hp <= 0:
		return KOInfo{HitsToKO: 1, Chance: 1, Label: "Already KO"}
	case damage >= hp:
		return KOInfo{HitsToKO: 1, Chance: 1, Label: "OHKO"}
	case damage*2 >= maxHP:
		return KOInfo{HitsToKO: 2, Chance: 0.5, Label: "2HKO likely"}
	case damage*3 >= maxHP:
		return KOInfo{HitsToKO: 3, Chance: 0.33, Label: "3HKO"}
	}
	n := (hp + damage - 1) / damage
	return KOInfo{HitsToKO: n, Label: fmt.Sprintf("%dHKO", n)}
}

// FormatProbability renders p as a percentage with precision that grows as
// p shrinks.
func FormatProbability(p float64) string {
	pct := p * 100
	switch {
	case pct >= 99.99:
		return "100%"
	case pct <= 0.01:
		return "<0.1%"
	case pct >= 10:
		return fmt.Sprintf("%.1f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatDamagePercent renders damage as a share of maxHP.
func FormatDamagePercent(damage, maxHP int) string {
	if maxHP <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(damage)/float64(maxHP)*100)
}

// Percent is damage as a rounded share of maxHP.
func Percent(damage, maxHP int) int {
	if maxHP <= 0 {
		return 0
	}
	return int(math.Round(float64(damage) / float64(maxHP) * 100))
}
