package calc

import (
	"context"
	"errors"

	"github.com/kasuganosora/battleplanner/game/battle"
)

// Roll weights: the lowest and highest of the 16 damage rolls each occur
// with probability 1/16; the rest are folded into "normal".
const (
	LowRollWeight    = 0.0625
	NormalRollWeight = 0.875
	HighRollWeight   = 0.0625

	DefaultSimplifyThreshold = 0.01
)

// Outcomes enumerates every resolution of one move: miss, then low, normal
// and high rolls with and without a crit. Probabilities sum to 1 before and
// after simplification.
func Outcomes(ctx context.Context, c Calculator, req Request, threshold float64) ([]*battle.Outcome, error) {
	move, err := c.Move(ctx, req.Gen, req.Move)
	if errors.Is(err, ErrUnknownMove) {
		return []*battle.Outcome{battle.NewOutcome("Unknown Move", 1, 0)}, nil
	}
	if err != nil {
		return nil, err
	}

	hit := float64(Accuracy(move, req.Attacker, req.Defender, req.Field)) / 100
	var out []*battle.Outcome
	if hit < 1 {
		o := battle.NewOutcome("Miss", 1-hit, 0)
		o.Miss = true
		out = append(out, o)
	}
	if hit <= 0 {
		return out, nil
	}

	if move.IsStatus() {
		o := battle.NewOutcome(StatusMoveEffects(move.Name).Label(), hit, 0)
		o.SecondaryTriggered = true
		return Simplify(append(out, o), threshold), nil
	}

	crit := CritChance(move.Name, req.Attacker, req.Defender, req.Gen)
	if crit < 1 {
		r := damageRange(ctx, c, req, false)
		out = append(out, rollOutcomes(r, hit*(1-crit), false)...)
	}
	if crit > 0 {
		r := damageRange(ctx, c, req, true)
		out = append(out, rollOutcomes(r, hit*crit, true)...)
	}
	return Simplify(out, threshold), nil
}

func damageRange(ctx context.Context, c Calculator, req Request, crit bool) Range {
	req.Crit = crit
	res, err := c.Damage(ctx, req)
	if err != nil {
		return Range{}
	}
	if res.Range.isZero() {
		return RangeOf(res.Damage)
	}
	return res.Range
}

func rollOutcomes(r Range, p float64, crit bool) []*battle.Outcome {
	names := [3]string{"Low Roll", "Normal", "High Roll"}
	if crit {
		names = [3]string{"Crit (Low)", "Crit", "Crit (High)"}
	}
	low := battle.NewOutcome(names[0], p*LowRollWeight, r.Min)
	low.LowRoll, low.Crit = true, crit
	mid := battle.NewOutcome(names[1], p*NormalRollWeight, r.Avg)
	mid.Crit = crit
	high := battle.NewOutcome(names[2], p*HighRollWeight, r.Max)
	high.HighRoll, high.Crit = true, crit
	return []*battle.Outcome{low, mid, high}
}

// Simplify drops outcomes below threshold and adds their combined
// probability to the first remaining outcome.
func Simplify(outcomes []*battle.Outcome, threshold float64) []*battle.Outcome {
	if threshold <= 0 {
		threshold = DefaultSimplifyThreshold
	}
	var kept []*battle.Outcome
	var dropped float64
	for _, o := range outcomes {
		if o.Probability >= threshold {
			kept = append(kept, o)
		} else {
			dropped += o.Probability
		}
	}
	if len(kept) == 0 {
		return outcomes
	}
	kept[0].Probability += dropped
	return kept
}

// PercentRange is a damage range as a share of max HP.
type PercentRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// KeyOutcome is one row of the move preview: miss, normal hit, crit, or the
// effect of a status move.
type KeyOutcome struct {
	Type               string         `json:"type"`
	Label              string         `json:"label"`
	Probability        float64        `json:"probability"`
	Damage             int            `json:"damage"`
	Range              Range          `json:"damageRange"`
	DamagePercent      int            `json:"damagePercent"`
	DamagePercentRange PercentRange   `json:"damagePercentRange"`
	Effectiveness      float64        `json:"effectiveness"`
	EffectivenessLabel string         `json:"effectivenessLabel,omitempty"`
	KO                 *KOInfo        `json:"koInfo,omitempty"`
	Crit               bool           `json:"isCrit,omitempty"`
	Miss               bool           `json:"isMiss,omitempty"`
	Secondaries        []Secondary    `json:"secondaryEffects,omitempty"`
	StatusEffects      *StatusEffects `json:"statusEffects,omitempty"`
	Move               MoveInfo       `json:"move"`
}

// Key outcome types.
const (
	KeyMiss    = "miss"
	KeyNormal  = "normal"
	KeyCrit    = "crit"
	KeyStatus  = "status"
	KeyUnknown = "unknown"
)

const (
	keyMissFloor = 0.05
	keyCritFloor = 0.01
)

// KeyOutcomes is the compact breakdown shown before choosing a move. Misses
// below 5% and crits at or below 1% are left out.
func KeyOutcomes(ctx context.Context, c Calculator, req Request) ([]KeyOutcome, error) {
	move, err := c.Move(ctx, req.Gen, req.Move)
	if errors.Is(err, ErrUnknownMove) {
		return []KeyOutcome{{Type: KeyUnknown, Label: "Unknown", Probability: 1, Effectiveness: 1}}, nil
	}
	if err != nil {
		return nil, err
	}

	acc := Accuracy(move, req.Attacker, req.Defender, req.Field)
	hit := float64(acc) / 100
	var out []KeyOutcome

	if move.IsStatus() {
		if acc < 100 {
			out = append(out, KeyOutcome{Type: KeyMiss, Label: "Miss", Probability: 1 - hit, Miss: true, Effectiveness: 1, Move: move})
		}
		effects := StatusMoveEffects(move.Name)
		return append(out, KeyOutcome{
			Type:          KeyStatus,
			Label:         effects.Label(),
			Probability:   hit,
			Effectiveness: 1,
			StatusEffects: &effects,
			Move:          move,
		}), nil
	}

	var defTypes []string
	hp, maxHP := 100, 100
	if req.Defender != nil {
		defTypes = req.Defender.EffectiveTypes()
		hp, maxHP = req.Defender.CurrentHP, req.Defender.MaxHP
	}
	eff := Effectiveness(move.Type, defTypes)
	secondaries := move.Secondaries
	if len(secondaries) == 0 {
		secondaries = SecondaryEffects(move.Name)
	}

	if miss := 1 - hit; miss >= keyMissFloor {
		out = append(out, KeyOutcome{Type: KeyMiss, Label: "Miss", Probability: miss, Miss: true, Effectiveness: eff, Move: move})
	}
	crit := CritChance(move.Name, req.Attacker, req.Defender, req.Gen)
	row := func(kind, label string, p float64, r Range, isCrit bool) KeyOutcome {
		ko := KOChance(r.Avg, hp, maxHP)
		return KeyOutcome{
			Type:               kind,
			Label:              label,
			Probability:        p,
			Damage:             r.Avg,
			Range:              r,
			DamagePercent:      Percent(r.Avg, maxHP),
			DamagePercentRange: PercentRange{Min: Percent(r.Min, maxHP), Max: Percent(r.Max, maxHP)},
			Effectiveness:      eff,
			EffectivenessLabel: EffectivenessLabel(eff),
			KO:                 &ko,
			Crit:               isCrit,
			Secondaries:        secondaries,
			Move:               move,
		}
	}
	if hit > 0 && crit < 1 {
		out = append(out, row(KeyNormal, "Normal", hit*(1-crit), damageRange(ctx, c, req, false), false))
	}
	if hit > 0 && crit > keyCritFloor {
		out = append(out, row(KeyCrit, "Critical Hit", hit*crit, damageRange(ctx, c, req, true), true))
	}
	return out, nil
}
