package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
)

// SwitchPriority puts switches and bag items ahead of every move.
const SwitchPriority = 7

// priority returns the action's bracket: switches and items at +7, moves at
// their own tier plus any custom modifier.
func (r *Resolver) priority(ctx context.Context, a *battle.Action) int {
	switch a.Type {
	case battle.ActionSwitch, battle.ActionItem:
		return SwitchPriority
	case battle.ActionMove:
		p := 0
		if info, err := r.calc.Move(ctx, r.gen, a.MoveName); err == nil {
			p = info.Priority
		} else {
			r.logger.Debug("priority: move lookup failed", zap.String("move", a.MoveName), zap.Error(err))
		}
		if a.Effects != nil {
			p += a.Effects.PriorityModifier
		}
		return p
	}
	return 0
}

// determineOrder picks the first mover: higher priority, then higher
// effective speed (lower under Trick Room), then a coin flip that halves
// the turn's probability.
func (r *Resolver) determineOrder(ctx context.Context, t *Turn) {
	p1 := r.priority(ctx, t.Actions.P1)
	p2 := r.priority(ctx, t.Actions.P2)
	switch {
	case p1 > p2:
		t.First = battle.P1
		return
	case p2 > p1:
		t.First = battle.P2
		return
	}

	sc := t.State.SpeedComparison()
	switch {
	case sc.P1First:
		t.First = battle.P1
	case sc.P2First:
		t.First = battle.P2
	default:
		t.SpeedTie = true
		t.Probability *= 0.5
		t.First = battle.P1
		if r.rng.Intn(2) == 1 {
			t.First = battle.P2
		}
		t.logf("Speed tie (%d): %s moves first", sc.P1Speed, sideName(t.First))
	}
}
