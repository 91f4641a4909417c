package resolver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// act runs side's chosen action and syncs both actives back into their teams.
func (r *Resolver) act(ctx context.Context, t *Turn, side battle.SideID) {
	a := t.Actions.Get(side)
	defer t.State.SyncAll()

	switch a.Type {
	case battle.ActionSwitch:
		r.doSwitch(t, side, a)
	case battle.ActionItem:
		r.useItem(t, side, a)
	case battle.ActionMove:
		r.useMove(ctx, t, side, a)
	default:
		t.logf("%s did nothing", sideName(side))
	}
}

// dropStaleCharges cancels a pending charge for any side whose action is not
// the charged move itself. It runs before turn order is decided.
func dropStaleCharges(t *Turn) {
	for _, side := range []battle.SideID{battle.P1, battle.P2} {
		p := t.State.Side(side).Active
		if p == nil || p.Charging == "" {
			continue
		}
		a := t.Actions.Get(side)
		if a.Type != battle.ActionMove || !strings.EqualFold(a.MoveName, p.Charging) {
			p.Charging = ""
		}
	}
}

// secondAction runs the slower side unless it fainted, flinched or is being
// forced out.
func (r *Resolver) secondAction(ctx context.Context, t *Turn) {
	side := t.second()
	active := t.State.Side(side).Active
	switch {
	case active == nil || active.HasFainted():
		return
	case t.Flinched:
		active.Charging = ""
		t.logf("%s flinched and couldn't move", active.Name)
		return
	case t.Forced[side]:
		return
	}
	r.act(ctx, t, side)
}

func (r *Resolver) doSwitch(t *Turn, side battle.SideID, a *battle.Action) {
	s := t.State.Side(side)
	slot := a.SwitchIndex
	if slot == s.TeamSlot || slot < 0 || slot >= len(s.Team) || s.Team[slot] == nil || s.Team[slot].HasFainted() {
		r.logger.Debug("switch: invalid target", zap.String("side", string(side)), zap.Int("slot", slot))
		t.logf("%s could not switch", sideName(side))
		return
	}
	out := ""
	if s.Active != nil {
		out = s.Active.Name
	}
	t.State.SwitchActive(side, slot)
	t.logf("%s switched %s out for %s", sideName(side), out, t.State.Side(side).Active.Name)
}

func (r *Resolver) useItem(t *Turn, side battle.SideID, a *battle.Action) {
	p := t.State.Side(side).Active
	if p == nil {
		return
	}
	e, ok := calc.BagItem(a.ItemName)
	if !ok {
		r.logger.Debug("item: unknown", zap.String("item", a.ItemName))
		t.logf("%s used %s, but nothing happened", sideName(side), a.ItemName)
		return
	}
	t.logf("%s used %s on %s", sideName(side), a.ItemName, p.Name)
	if e.FullHeal {
		p.SetHP(p.MaxHP)
	} else if e.Heal > 0 {
		p.ApplyHealing(float64(e.Heal))
	}
	if e.CureStatus {
		p.SetStatus(pokemon.Healthy)
	}
	for stat, n := range e.Boosts {
		p.ApplyBoost(stat, n)
	}
}

// factor multiplies the turn probability by p, ignoring the zero factor of
// an impossible forced branch.
func (t *Turn) factor(p float64) {
	if p > 0 {
		t.Probability *= p
	}
}

func rollProbability(roll battle.Roll) float64 {
	switch roll {
	case battle.RollLow:
		return calc.LowRollWeight
	case battle.RollHigh:
		return calc.HighRollWeight
	}
	return calc.NormalRollWeight
}

func (r *Resolver) useMove(ctx context.Context, t *Turn, side battle.SideID, a *battle.Action) {
	opp := side.Opponent()
	att := t.State.Side(side).Active
	def := t.State.Side(opp).Active
	if att == nil || att.HasFainted() {
		return
	}
	if idx := att.MoveIndex(a.MoveName); idx >= 0 {
		att.UsePP(idx)
	}
	fx := a.Effects
	if fx == nil {
		fx = &battle.CustomEffects{}
	}

	info, err := r.calc.Move(ctx, r.gen, a.MoveName)
	if err != nil {
		r.logger.Warn("resolve: move data unavailable",
			zap.String("move", a.MoveName), zap.String("side", string(side)), zap.Error(err))
		att.Charging = ""
		t.logf("%s used %s", att.Name, a.MoveName)
		r.applyCustom(t, side, att, def, fx)
		return
	}
	t.logf("%s used %s", att.Name, info.Name)

	if info.SemiInvulnerable && att.Charging != info.Name {
		att.Charging = info.Name
		t.logf("%s is charging %s", att.Name, info.Name)
		return
	}
	att.Charging = ""

	acc := calc.Accuracy(info, att, def, t.State.Field)
	if a.Miss {
		t.Miss = true
		t.factor(1 - float64(acc)/100)
		t.logf("%s's attack missed", att.Name)
		return
	}
	t.factor(float64(acc) / 100)

	if info.IsStatus() {
		r.applyStatusMove(t, side, att, def, info)
	} else {
		r.applyDamagingMove(ctx, t, side, att, def, info, a, fx)
	}
	r.applyCustom(t, side, att, def, fx)

	if info.SelfSwitch {
		t.Pivot[side] = true
	}
	if info.ForceSwitch && def != nil && !def.HasFainted() {
		t.Forced[opp] = true
	}
}

func (r *Resolver) applyDamagingMove(ctx context.Context, t *Turn, side battle.SideID, att, def *pokemon.Pokemon, info calc.MoveInfo, a *battle.Action, fx *battle.CustomEffects) {
	opp := side.Opponent()
	crit := calc.CritChance(info.Name, att, def, r.gen)
	if a.Crit {
		t.Crit = true
		t.factor(crit)
	} else {
		t.factor(1 - crit)
	}
	t.factor(rollProbability(a.Roll))
	switch a.Roll {
	case battle.RollHigh:
		t.HighRoll = true
	case battle.RollLow:
		t.LowRoll = true
	}

	if def == nil || def.HasFainted() {
		t.logf("But there was no target")
		return
	}

	hits := a.Hits
	if hits <= 0 {
		hits = info.DefaultHits()
	}
	dmg := 0
	res, err := r.calc.Damage(ctx, calc.Request{
		Gen:          r.gen,
		Attacker:     att,
		Defender:     def,
		Move:         info.Name,
		Field:        t.State.Field,
		AttackerSide: *t.State.Conditions(side),
		DefenderSide: *t.State.Conditions(opp),
		Crit:         a.Crit,
		Hits:         hits,
	})
	if err != nil {
		r.logger.Warn("resolve: damage calculation failed, dealing no damage",
			zap.String("move", info.Name), zap.String("side", string(side)), zap.Error(err))
	} else {
		rng := res.Range
		if rng.Min == 0 && rng.Max == 0 && rng.Avg == 0 {
			rng = calc.RangeOf(res.Damage)
		}
		dmg = rng.Pick(string(a.Roll))
	}

	switch {
	case fx.NoDamage:
		dmg = 0
	case def.Charging != "":
		t.logf("%s avoided the attack", def.Name)
		return
	}

	if d, used := calc.FocusSash(def, dmg); used {
		dmg = d
		def.Item = ""
		t.logf("%s hung on using its Focus Sash", def.Name)
	}
	dealt := min(dmg, def.CurrentHP)
	def.ApplyDamage(float64(dmg))
	t.Damage[side] += dealt
	t.Percent[side] += calc.Percent(dealt, def.MaxHP)
	if dealt > 0 {
		t.logf("%s lost %d HP (%d%%)", def.Name, dealt, calc.Percent(dealt, def.MaxHP))
	}
	if a.Crit {
		t.logf("A critical hit!")
	}
	if hits > 1 {
		t.logf("Hit %d times", hits)
	}
	if def.HasFainted() {
		t.logf("%s fainted", def.Name)
	}

	if info.Recoil > 0 && dealt > 0 {
		att.ApplyDamage(math.Max(1, math.Floor(float64(dealt)*info.Recoil)))
		t.logf("%s was hurt by recoil", att.Name)
	}
	if info.Drain > 0 && dealt > 0 {
		att.ApplyHealing(math.Max(1, math.Floor(float64(dealt)*info.Drain)))
		t.logf("%s drained HP", att.Name)
	}
	if info.Heal > 0 {
		att.ApplyHealing(float64(att.MaxHP) * info.Heal)
	}
	if att.HasFainted() {
		t.logf("%s fainted", att.Name)
	}

	secondaries := info.Secondaries
	if len(secondaries) == 0 {
		secondaries = calc.SecondaryEffects(info.Name)
	}
	for _, s := range secondaries {
		if !s.Guaranteed() {
			if !fx.Secondary {
				t.factor(1 - s.Chance)
				continue
			}
			t.factor(s.Chance)
			t.Secondary = true
		}
		r.applySecondary(t, side, att, def, s)
	}
	for stat, n := range info.SelfBoosts {
		att.ApplyBoost(stat, n)
	}
}

func (r *Resolver) applySecondary(t *Turn, side battle.SideID, att, def *pokemon.Pokemon, s calc.Secondary) {
	if !def.HasFainted() {
		if s.Status != "" {
			inflict(t, def, pokemon.ParseStatus(s.Status))
		}
		for stat, n := range s.Boosts {
			def.ApplyBoost(stat, n)
		}
		if s.Flinch && side == t.First {
			t.Flinched = true
		}
	}
	for stat, n := range s.Self {
		att.ApplyBoost(stat, n)
	}
}

// inflict sets a major status unless the target already has one.
func inflict(t *Turn, p *pokemon.Pokemon, s pokemon.Status) {
	if p == nil || p.HasFainted() || s == pokemon.Healthy || p.Status != pokemon.Healthy {
		return
	}
	p.SetStatus(s)
	t.logf("%s is now %s", p.Name, s)
}

func (r *Resolver) applyStatusMove(t *Turn, side battle.SideID, att, def *pokemon.Pokemon, info calc.MoveInfo) {
	opp := side.Opponent()
	e := calc.StatusMoveEffects(info.Name)
	t.Secondary = t.Secondary || !e.Empty()

	if def != nil && def.Charging != "" && (e.TargetStatus != "" || len(e.TargetBoosts) > 0) {
		t.logf("%s avoided the attack", def.Name)
	} else if def != nil {
		inflict(t, def, e.TargetStatus)
		for stat, n := range e.TargetBoosts {
			def.ApplyBoost(stat, n)
		}
	}
	for stat, n := range e.SelfBoosts {
		att.ApplyBoost(stat, n)
	}
	for stat, n := range info.SelfBoosts {
		att.ApplyBoost(stat, n)
	}

	if e.Hazard != "" {
		setHazard(t.State.Conditions(opp), e.Hazard)
		t.logf("%s set %s", sideName(side), e.Hazard)
	}
	if e.Screen != "" {
		setScreen(t.State.Conditions(side), e.Screen, e.ScreenTurns)
		t.logf("%s set up %s", sideName(side), e.Screen)
	}
	if e.Weather != "" {
		t.State.Field.Weather = e.Weather
		t.State.Field.WeatherTurns = e.WeatherTurns
		t.logf("The weather became %s", e.Weather)
	}

	switch {
	case e.SelfStatus == pokemon.Asleep:
		att.SetHP(att.MaxHP)
		att.SetStatusWithCounter(pokemon.Asleep, 0)
		t.logf("%s slept and became healthy", att.Name)
	case e.Delayed:
		t.logf("%s made a wish", att.Name)
	case e.HealFromTargetAtk && def != nil:
		att.ApplyHealing(math.Floor(float64(def.Stats.Atk) * pokemon.StageMultiplier(def.Boosts.Atk)))
		def.ApplyBoost(pokemon.StatAtk, -1)
	case e.Heal > 0:
		att.ApplyHealing(float64(att.MaxHP) * e.Heal)
	case info.Heal > 0:
		att.ApplyHealing(float64(att.MaxHP) * info.Heal)
	}
}

// applyCustom applies the action's forced overrides.
func (r *Resolver) applyCustom(t *Turn, side battle.SideID, att, def *pokemon.Pokemon, fx *battle.CustomEffects) {
	if def != nil && !def.HasFainted() {
		if fx.ForceStatus != "" {
			inflict(t, def, fx.ForceStatus)
		}
		for stat, n := range fx.ForceBoosts {
			def.ApplyBoost(stat, n)
		}
	}
	for stat, n := range fx.ForceSelfBoosts {
		att.ApplyBoost(stat, n)
	}
	if fx.SelfDamage > 0 {
		att.ApplyDamage(float64(att.MaxHP) * fx.SelfDamage)
		t.logf("%s hurt itself", att.Name)
	}
	if fx.SwitchOut {
		t.Pivot[side] = true
	}
	if fx.ForceTargetSwitch && def != nil && !def.HasFainted() {
		t.Forced[side.Opponent()] = true
	}
}

func setHazard(sc *battle.SideConditions, hazard string) {
	switch hazard {
	case calc.HazardStealthRock:
		sc.StealthRock = true
	case calc.HazardSpikes:
		sc.Spikes = min(battle.MaxSpikes, sc.Spikes+1)
	case calc.HazardToxicSpikes:
		sc.ToxicSpikes = min(battle.MaxToxicSpikes, sc.ToxicSpikes+1)
	case calc.HazardStickyWeb:
		sc.StickyWeb = true
	}
}

func setScreen(sc *battle.SideConditions, screen string, turns int) {
	switch screen {
	case calc.ScreenReflect:
		sc.Reflect, sc.ReflectTurns = true, turns
	case calc.ScreenLightScreen:
		sc.LightScreen, sc.LightScreenTurns = true, turns
	case calc.ScreenAuroraVeil:
		sc.AuroraVeil, sc.AuroraVeilTurns = true, turns
	}
}

func describe(t *Turn, side battle.SideID) string {
	return fmt.Sprintf("%s: %s", sideName(side), t.Actions.Get(side).Describe())
}
