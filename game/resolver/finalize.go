package resolver

import (
	"strings"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// Outcome detail keys.
const (
	DetailFirstMover  = "firstMover"
	DetailP1Fainted   = "p1Fainted"
	DetailP2Fainted   = "p2Fainted"
	DetailLog         = "log"
	DetailEndOfTurn   = "endOfTurn"
	DetailSpeedTie    = "speedTie"
	DetailDescription = "description"
)

// finalize builds the result of a finished turn.
func (r *Resolver) finalize(t *Turn) *Result {
	t.State.SyncAll()

	// Damage is reported from p1's point of view unless p1 did not attack.
	dealer := battle.P1
	if a := t.Actions.P1; a == nil || a.Type != battle.ActionMove {
		dealer = battle.P2
	}
	o := &battle.Outcome{
		Probability:        t.Probability,
		DamageDealt:        t.Damage[dealer],
		DamagePercent:      t.Percent[dealer],
		Crit:               t.Crit,
		Miss:               t.Miss,
		HighRoll:           t.HighRoll,
		LowRoll:            t.LowRoll,
		SecondaryTriggered: t.Secondary,
	}
	o.Description = o.Label()
	o.Normalize()

	description := describeTurn(t)
	o.Details = map[string]any{
		DetailFirstMover:  string(t.First),
		DetailP1Fainted:   t.Fainted[battle.P1],
		DetailP2Fainted:   t.Fainted[battle.P2],
		DetailLog:         append([]string{}, t.Log...),
		DetailEndOfTurn:   append([]string{}, t.EndOfTurn...),
		DetailSpeedTie:    t.SpeedTie,
		DetailDescription: description,
	}
	return &Result{State: t.State, Actions: t.Actions, Outcome: o}
}

func fainted(p *pokemon.Pokemon) bool { return p != nil && p.HasFainted() }

// describeTurn renders e.g. "P1 first. P1: Earthquake, P2: Scald. Toxapex was hurt 21 HP by poison".
func describeTurn(t *Turn) string {
	var b strings.Builder
	b.WriteString(sideName(t.First))
	b.WriteString(" first. ")
	b.WriteString(describe(t, t.First))
	b.WriteString(", ")
	b.WriteString(describe(t, t.second()))
	if len(t.EndOfTurn) > 0 {
		b.WriteString(". ")
		b.WriteString(strings.Join(t.EndOfTurn, ". "))
	}
	return b.String()
}
