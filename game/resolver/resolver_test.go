package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// fakeCalc deals 25 damage per hit unless told otherwise, ×1.5 on a crit.
type fakeCalc struct {
	moves   map[string]calc.MoveInfo
	damage  map[string]int
	failing map[string]bool
}

func (f *fakeCalc) Move(_ context.Context, _ int, name string) (calc.MoveInfo, error) {
	m, ok := f.moves[name]
	if !ok {
		return calc.MoveInfo{}, fmt.Errorf("%w: %q", calc.ErrUnknownMove, name)
	}
	return m, nil
}

func (f *fakeCalc) Damage(_ context.Context, req calc.Request) (calc.Result, error) {
	if f.failing[req.Move] {
		return calc.Result{}, errors.New("calculator exploded")
	}
	d, ok := f.damage[req.Move]
	if !ok {
		d = 25
	}
	if req.Crit {
		d = d * 3 / 2
	}
	if req.Hits > 1 {
		d *= req.Hits
	}
	return calc.Result{Damage: d}, nil
}

func newFake() *fakeCalc {
	phys := func(name string) calc.MoveInfo {
		return calc.MoveInfo{Name: name, Type: "Normal", Category: calc.Physical, BasePower: 80, Accuracy: 100}
	}
	status := func(name string) calc.MoveInfo {
		return calc.MoveInfo{Name: name, Type: "Normal", Category: calc.Status}
	}
	f := &fakeCalc{
		moves:   map[string]calc.MoveInfo{},
		damage:  map[string]int{"Giga Impact": 150},
		failing: map[string]bool{"Explode": true},
	}
	for _, n := range []string{"Tackle", "Explode", "Giga Impact"} {
		f.moves[n] = phys(n)
	}
	for _, n := range []string{"Reflect", "Rain Dance", "Spikes", "Recover", "Swords Dance"} {
		f.moves[n] = status(n)
	}
	qa := phys("Quick Attack")
	qa.Priority = 1
	f.moves[qa.Name] = qa

	edge := phys("Stone Edge")
	edge.Accuracy = 80
	f.moves[edge.Name] = edge

	sting := phys("Poison Sting")
	sting.Secondaries = []calc.Secondary{{Status: "psn", Chance: 0.3}}
	f.moves[sting.Name] = sting

	uturn := phys("U-turn")
	uturn.SelfSwitch = true
	f.moves[uturn.Name] = uturn

	roar := status("Roar")
	roar.Priority = -6
	roar.ForceSwitch = true
	f.moves[roar.Name] = roar

	fake := phys("Fake Out")
	fake.Priority = 3
	fake.Secondaries = []calc.Secondary{{Flinch: true, Chance: 1}}
	f.moves[fake.Name] = fake

	fly := phys("Fly")
	fly.SemiInvulnerable = true
	f.moves[fly.Name] = fly

	seed := phys("Bullet Seed")
	seed.MultiHit = [2]int{2, 5}
	f.moves[seed.Name] = seed

	de := phys("Double-Edge")
	de.Recoil = 0.33
	f.moves[de.Name] = de

	dp := phys("Drain Punch")
	dp.Drain = 0.5
	f.moves[dp.Name] = dp

	toxic := status("Toxic")
	toxic.Accuracy = 90
	f.moves[toxic.Name] = toxic
	return f
}

func mon(name string, spe int) *pokemon.Pokemon {
	p := pokemon.New(name, 100)
	p.SetMaxHP(100)
	p.Stats.Spe = spe
	p.Types = []string{"Normal"}
	return p
}

// teams returns fresh three-member teams; p1 leads with the faster Garchomp.
func teams() ([]*pokemon.Pokemon, []*pokemon.Pokemon) {
	return []*pokemon.Pokemon{mon("Garchomp", 120), mon("Clefable", 60), mon("Ferrothorn", 20)},
		[]*pokemon.Pokemon{mon("Toxapex", 80), mon("Corviknight", 70), mon("Blissey", 50)}
}

func newResolver(cfg Config) *Resolver {
	if cfg.Calc == nil {
		cfg.Calc = newFake()
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(7))
	}
	return New(cfg)
}

func mv(name string) *battle.Action { return battle.Move(name, 0) }

func execute(t *testing.T, r *Resolver, s *battle.State, p1, p2 *battle.Action) *Result {
	t.Helper()
	step, err := r.Execute(context.Background(), s, p1, p2)
	require.NoError(t, err)
	require.True(t, step.Done(), "unexpected pending request %+v", step.Pending)
	return step.Result
}

func logLines(o *battle.Outcome, key string) string {
	lines, _ := o.Details[key].([]string)
	return strings.Join(lines, "\n")
}

const noCrit = 23.0 / 24

// ---- End-to-end scenarios ----

func TestScenarioA_FlatDamage(t *testing.T) {
	p1, p2 := teams()
	s := battle.NewState(p1, p2)
	r := newResolver(Config{})

	res := execute(t, r, s, mv("Tackle"), battle.Skip())
	b := res.State.P2.Active
	assert.Equal(t, 75, b.CurrentHP)
	assert.Equal(t, 75, b.PercentHP)
	assert.False(t, b.HasFainted())
	assert.Equal(t, 25, res.Outcome.DamageDealt)
	assert.Equal(t, 25, res.Outcome.DamagePercent)
	assert.Equal(t, 75, res.State.P2.Team[0].CurrentHP, "team slot synced")
	assert.Equal(t, 1, res.State.TurnNumber)
	assert.InDelta(t, noCrit*calc.NormalRollWeight, res.Outcome.Probability, 1e-9)
	assert.Equal(t, battle.DescriptionNormal, res.Outcome.Description)
	assert.Equal(t, "p1", res.Outcome.Details[DetailFirstMover])
	assert.Equal(t, PhaseIdle, r.Phase())
}

func TestExecute_DoesNotMutateInput(t *testing.T) {
	p1, p2 := teams()
	s := battle.NewState(p1, p2)
	before := s.Clone()
	execute(t, newResolver(Config{}), s, mv("Tackle"), mv("Tackle"))
	assert.Equal(t, before, s)
}

func scenarioB() *battle.State {
	p1, p2 := teams()
	p2[0].SetHP(10)
	p2[2].SetHP(0)
	return battle.NewState(p1, p2)
}

func TestScenarioB_KOAndReplacement(t *testing.T) {
	r := newResolver(Config{})
	step, err := r.Execute(context.Background(), scenarioB(), mv("Tackle"), mv("Tackle"))
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, battle.P2, step.Pending.Side)
	assert.Equal(t, ReasonFainted, step.Pending.Reason)
	assert.Equal(t, []int{1}, step.Pending.Options)
	assert.Equal(t, PhasePendingReplacement, r.Phase())

	step, err = r.Resume(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, step.Done())
	s := step.Result.State
	assert.Equal(t, "Corviknight", s.P2.Active.Name)
	assert.Equal(t, 1, s.P2.TeamSlot)
	assert.Equal(t, 0, s.P2.Team[0].CurrentHP)
	assert.True(t, s.P2.Team[0].HasFainted())
	assert.Equal(t, 100, s.P1.Active.CurrentHP, "fainted defender never moved")
	assert.Equal(t, 10, step.Result.Outcome.DamageDealt)
	assert.Equal(t, true, step.Result.Outcome.Details[DetailP2Fainted])
	assert.Equal(t, false, step.Result.Outcome.Details[DetailP1Fainted])
	assert.Equal(t, PhaseIdle, r.Phase())
}

func TestScenarioC_StatusNotOverwritten(t *testing.T) {
	p1, p2 := teams()
	p2[0].SetStatus(pokemon.Burned)
	s := battle.NewState(p1, p2)
	a := mv("Poison Sting")
	a.Effects = &battle.CustomEffects{Secondary: true}

	res := execute(t, newResolver(Config{}), s, a, battle.Skip())
	assert.Equal(t, pokemon.Burned, res.State.P2.Active.Status)
	assert.Equal(t, 100-25-6, res.State.P2.Active.CurrentHP, "burn still ticks")
	assert.True(t, res.Outcome.SecondaryTriggered)
	assert.InDelta(t, noCrit*calc.NormalRollWeight*0.3, res.Outcome.Probability, 1e-9)
}

func TestScenarioD_ToxicRamp(t *testing.T) {
	p1, p2 := teams()
	p2[0].SetStatus(pokemon.BadlyPoisoned)
	require.Equal(t, 1, p2[0].ToxicCounter)
	s := battle.NewState(p1, p2)
	r := newResolver(Config{})

	res := execute(t, r, s, battle.Skip(), battle.Skip())
	b := res.State.P2.Active
	assert.Equal(t, 100-100/16, b.CurrentHP)
	assert.Equal(t, 2, b.ToxicCounter)

	res = execute(t, r, res.State, battle.Skip(), battle.Skip())
	b = res.State.P2.Active
	assert.Equal(t, 100-100/16-100*2/16, b.CurrentHP)
	assert.Equal(t, 3, b.ToxicCounter)
}

// ---- Suspension ----

func TestResume_Errors(t *testing.T) {
	r := newResolver(Config{})
	ctx := context.Background()
	_, err := r.Resume(ctx, 1)
	assert.ErrorIs(t, err, ErrNotSuspended)
	_, err = r.Decline(ctx)
	assert.ErrorIs(t, err, ErrNotSuspended)

	_, err = r.Execute(ctx, scenarioB(), mv("Tackle"), mv("Tackle"))
	require.NoError(t, err)
	_, err = r.Execute(ctx, scenarioB(), mv("Tackle"), mv("Tackle"))
	assert.ErrorIs(t, err, ErrBusy)

	_, err = r.Resume(ctx, 2)
	assert.ErrorIs(t, err, ErrInvalidSlot, "fainted member")
	_, err = r.Resume(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidSlot, "the fainted active itself")
	require.NotNil(t, r.Pending(), "still suspended")
	assert.Equal(t, PhasePendingReplacement, r.Phase())

	step, err := r.Resume(ctx, 1)
	require.NoError(t, err)
	assert.True(t, step.Done())
	_, err = r.Resume(ctx, 1)
	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestExecute_NilState(t *testing.T) {
	_, err := newResolver(Config{}).Execute(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilState)
}

func TestDecline_PicksFirstHealthy(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	p2[0].SetHP(10)
	s := battle.NewState(p1, p2)
	step, err := r.Execute(context.Background(), s, mv("Tackle"), battle.Skip())
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, step.Pending.Options)

	step, err = r.Decline(context.Background())
	require.NoError(t, err)
	require.True(t, step.Done())
	assert.Equal(t, 1, step.Result.State.P2.TeamSlot)
}

func TestNoHealthyBench_FinalizesFainted(t *testing.T) {
	r := newResolver(Config{})
	b := mon("Toxapex", 80)
	b.SetHP(10)
	s := battle.NewState([]*pokemon.Pokemon{mon("Garchomp", 120)}, []*pokemon.Pokemon{b})

	res := execute(t, r, s, mv("Tackle"), mv("Tackle"))
	assert.True(t, res.State.P2.Active.HasFainted())
	assert.Equal(t, 0, res.State.P2.Active.CurrentHP)
	assert.Equal(t, true, res.Outcome.Details[DetailP2Fainted])
}

func TestBothSidesReplace_P1First(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	p1[0].SetHP(1)
	p2[0].SetHP(10)
	s := battle.NewState(p1, p2)

	step, err := r.Execute(context.Background(), s, mv("Double-Edge"), battle.Skip())
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, battle.P1, step.Pending.Side, "recoil KO")

	step, err = r.Resume(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, battle.P2, step.Pending.Side)

	step, err = r.Resume(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, step.Done())
	assert.Equal(t, "Clefable", step.Result.State.P1.Active.Name)
	assert.Equal(t, "Blissey", step.Result.State.P2.Active.Name)
	assert.Equal(t, true, step.Result.Outcome.Details[DetailP1Fainted])
	assert.Equal(t, true, step.Result.Outcome.Details[DetailP2Fainted])
}

func TestSuspendedRestore(t *testing.T) {
	ctx := context.Background()
	r1 := newResolver(Config{})
	_, err := r1.Execute(ctx, scenarioB(), mv("Tackle"), mv("Tackle"))
	require.NoError(t, err)

	turn := r1.Suspended()
	require.NotNil(t, turn)
	assert.Equal(t, PhasePendingReplacement, turn.Phase)
	data, err := json.Marshal(turn)
	require.NoError(t, err)
	var back Turn
	require.NoError(t, json.Unmarshal(data, &back))

	r2 := newResolver(Config{})
	require.NoError(t, r2.Restore(&back))
	assert.ErrorIs(t, r2.Restore(&back), ErrBusy)
	assert.Equal(t, r1.Pending(), r2.Pending())

	step, err := r2.Resume(ctx, 1)
	require.NoError(t, err)
	require.True(t, step.Done())
	assert.Equal(t, "Corviknight", step.Result.State.P2.Active.Name)
	assert.Equal(t, 10, step.Result.Outcome.DamageDealt)

	r1.Abort()
	assert.Equal(t, PhaseIdle, r1.Phase())
	assert.Nil(t, r1.Suspended())
}

func TestRestore_Invalid(t *testing.T) {
	r := newResolver(Config{})
	assert.ErrorIs(t, r.Restore(nil), ErrInvalidTurn)
	assert.ErrorIs(t, r.Restore(&Turn{}), ErrInvalidTurn)
	s := scenarioB()
	err := r.Restore(&Turn{Phase: PhaseSecondActionApplied, State: s, Pending: &Request{Side: battle.P2}})
	assert.ErrorIs(t, err, ErrInvalidTurn)
}

// ---- Turn order ----

func TestSpeedTie_RoughlyEven(t *testing.T) {
	r := newResolver(Config{RNG: rand.New(rand.NewSource(time.Now().UnixNano()))})
	const trials = 500
	p1First := 0
	for range trials {
		s := battle.NewState([]*pokemon.Pokemon{mon("Garchomp", 100)}, []*pokemon.Pokemon{mon("Toxapex", 100)})
		res := execute(t, r, s, mv("Tackle"), mv("Tackle"))
		if res.Outcome.Details[DetailFirstMover] == "p1" {
			p1First++
		}
		require.Equal(t, true, res.Outcome.Details[DetailSpeedTie])
	}
	assert.GreaterOrEqual(t, p1First, trials*40/100)
	assert.LessOrEqual(t, p1First, trials*60/100)
}

func TestSpeedTie_HalvesProbability(t *testing.T) {
	s := battle.NewState([]*pokemon.Pokemon{mon("Garchomp", 100)}, []*pokemon.Pokemon{mon("Toxapex", 100)})
	res := execute(t, newResolver(Config{}), s, mv("Tackle"), mv("Tackle"))
	per := noCrit * calc.NormalRollWeight
	assert.InDelta(t, 0.5*per*per, res.Outcome.Probability, 1e-9)
}

func TestOrder_PriorityBeatsSpeed(t *testing.T) {
	p1, p2 := teams()
	p1[0].Stats.Spe = 10
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Quick Attack"), mv("Tackle"))
	assert.Equal(t, "p1", res.Outcome.Details[DetailFirstMover])
}

func TestOrder_PriorityModifier(t *testing.T) {
	p1, p2 := teams()
	a := mv("Tackle")
	a.Effects = &battle.CustomEffects{PriorityModifier: -1}
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, mv("Tackle"))
	assert.Equal(t, "p2", res.Outcome.Details[DetailFirstMover])
}

func TestOrder_SwitchBeforePriorityMove(t *testing.T) {
	p1, p2 := teams()
	p1[0].Boosts.Atk = 2
	s := battle.NewState(p1, p2)
	res := execute(t, newResolver(Config{}), s, battle.Switch(1, "Clefable"), mv("Quick Attack"))

	assert.Equal(t, "p1", res.Outcome.Details[DetailFirstMover])
	assert.Equal(t, "Clefable", res.State.P1.Active.Name)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP, "incoming Pokémon takes the hit")
	assert.Equal(t, 100, res.State.P1.Team[0].CurrentHP)
	assert.Zero(t, res.State.P1.Team[0].Boosts.Atk, "switching clears boosts")
}

func TestOrder_TrickRoom(t *testing.T) {
	p1, p2 := teams()
	s := battle.NewState(p1, p2)
	s.Field.TrickRoom = true
	res := execute(t, newResolver(Config{}), s, mv("Tackle"), mv("Tackle"))
	assert.Equal(t, "p2", res.Outcome.Details[DetailFirstMover])
}

// ---- Actions ----

func TestSwitch_InvalidTarget(t *testing.T) {
	p1, p2 := teams()
	p1[1].SetHP(0)
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), battle.Switch(1, "Clefable"), battle.Skip())
	assert.Equal(t, "Garchomp", res.State.P1.Active.Name)
	assert.Contains(t, logLines(res.Outcome, DetailLog), "could not switch")
}

func TestItem_PotionGoesFirst(t *testing.T) {
	p1, p2 := teams()
	p1[0].Stats.Spe = 10
	p1[0].SetHP(50)
	a := &battle.Action{Type: battle.ActionItem, ItemName: "Potion"}
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, mv("Tackle"))
	assert.Equal(t, 45, res.State.P1.Active.CurrentHP)
}

func TestPivot_FirstMoverSuspendsBeforeSecondAction(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	step, err := r.Execute(context.Background(), battle.NewState(p1, p2), mv("U-turn"), mv("Tackle"))
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, ReasonPivot, step.Pending.Reason)
	assert.Equal(t, battle.P1, step.Pending.Side)
	assert.Equal(t, PhasePendingPivot, r.Phase())

	step, err = r.Resume(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, step.Done())
	s := step.Result.State
	assert.Equal(t, "Clefable", s.P1.Active.Name)
	assert.Equal(t, 75, s.P1.Active.CurrentHP, "second action hits the replacement")
	assert.Equal(t, 100, s.P1.Team[0].CurrentHP)
	assert.Equal(t, 75, s.P2.Active.CurrentHP)
}

func TestPivot_SecondMoverSwitchesAtEndOfTurn(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	p1[0].Stats.Spe = 10
	step, err := r.Execute(context.Background(), battle.NewState(p1, p2), mv("U-turn"), mv("Tackle"))
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, ReasonPivot, step.Pending.Reason)
	assert.Equal(t, PhasePendingReplacement, r.Phase())

	step, err = r.Resume(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Ferrothorn", step.Result.State.P1.Active.Name)
	assert.Equal(t, 75, step.Result.State.P1.Team[0].CurrentHP)
}

func TestForcedSwitch_ByRoar(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	step, err := r.Execute(context.Background(), battle.NewState(p1, p2), mv("Tackle"), mv("Roar"))
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, battle.P1, step.Pending.Side)
	assert.Equal(t, ReasonForced, step.Pending.Reason)
}

func TestForcedSwitch_SkipsSecondAction(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	a := mv("Tackle")
	a.Effects = &battle.CustomEffects{ForceTargetSwitch: true}
	step, err := r.Execute(context.Background(), battle.NewState(p1, p2), a, mv("Tackle"))
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, battle.P2, step.Pending.Side)

	step, err = r.Resume(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 100, step.Result.State.P1.Active.CurrentHP)
	assert.Equal(t, "Corviknight", step.Result.State.P2.Active.Name)
}

func TestFlinch(t *testing.T) {
	p1, p2 := teams()
	p1[0].Stats.Spe = 10
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Fake Out"), mv("Tackle"))
	assert.Equal(t, 100, res.State.P1.Active.CurrentHP)
	assert.Equal(t, 75, res.State.P2.Active.CurrentHP)
	assert.Contains(t, logLines(res.Outcome, DetailLog), "flinched")
}

func TestSemiInvulnerable(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	res := execute(t, r, battle.NewState(p1, p2), mv("Fly"), mv("Tackle"))
	assert.Equal(t, "Fly", res.State.P1.Active.Charging)
	assert.Equal(t, 100, res.State.P1.Active.CurrentHP, "attack avoided")
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)

	res = execute(t, r, res.State, mv("Fly"), mv("Tackle"))
	assert.Empty(t, res.State.P1.Active.Charging)
	assert.Equal(t, 75, res.State.P2.Active.CurrentHP)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP)
}

func TestSemiInvulnerable_ChargeDroppedByOtherAction(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	res := execute(t, r, battle.NewState(p1, p2), mv("Fly"), mv("Tackle"))
	require.Equal(t, "Fly", res.State.P1.Active.Charging)

	res = execute(t, r, res.State, battle.Skip(), mv("Tackle"))
	assert.Empty(t, res.State.P1.Active.Charging)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP)
}

func TestSemiInvulnerable_SlowerSideDropsChargeBeforeBeingHit(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	p2[0].Charging = "Fly"
	res := execute(t, r, battle.NewState(p1, p2), mv("Tackle"), battle.Skip())
	assert.Empty(t, res.State.P2.Active.Charging)
	assert.Equal(t, 75, res.State.P2.Active.CurrentHP)
}

func TestSemiInvulnerable_ChargeDroppedByUnknownMove(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	p1[0].Charging = "Fly"
	res := execute(t, r, battle.NewState(p1, p2), mv("Hyper Mega Blast"), mv("Tackle"))
	assert.Empty(t, res.State.P1.Active.Charging)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP)
}

func TestMultiHit(t *testing.T) {
	p1, p2 := teams()
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Bullet Seed"), battle.Skip())
	assert.Equal(t, 25, res.State.P2.Active.CurrentHP, "default three hits")

	a := mv("Bullet Seed")
	a.Hits = 2
	res = execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, battle.Skip())
	assert.Equal(t, 50, res.State.P2.Active.CurrentHP)
}

func TestCrit(t *testing.T) {
	p1, p2 := teams()
	a := mv("Tackle")
	a.Crit = true
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, battle.Skip())
	assert.Equal(t, 63, res.State.P2.Active.CurrentHP)
	assert.True(t, res.Outcome.Crit)
	assert.Equal(t, "Crit", res.Outcome.Description)
	assert.InDelta(t, calc.NormalRollWeight/24, res.Outcome.Probability, 1e-9)
}

func TestMiss(t *testing.T) {
	p1, p2 := teams()
	a := mv("Stone Edge")
	a.Miss = true
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, battle.Skip())
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)
	assert.True(t, res.Outcome.Miss)
	assert.InDelta(t, 0.2, res.Outcome.Probability, 1e-9)
}

func TestNoDamageOverride(t *testing.T) {
	p1, p2 := teams()
	a := mv("Tackle")
	a.Effects = &battle.CustomEffects{NoDamage: true, ForceStatus: pokemon.Paralyzed, ForceSelfBoosts: map[string]int{"atk": 1}}
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, battle.Skip())
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)
	assert.Equal(t, pokemon.Paralyzed, res.State.P2.Active.Status)
	assert.Equal(t, 1, res.State.P1.Active.Boosts.Atk)
}

func TestRecoilAndDrain(t *testing.T) {
	p1, p2 := teams()
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Double-Edge"), battle.Skip())
	assert.Equal(t, 92, res.State.P1.Active.CurrentHP)

	p1[0].SetHP(50)
	res = execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Drain Punch"), battle.Skip())
	assert.Equal(t, 62, res.State.P1.Active.CurrentHP)
}

func TestSelfDamageOverride(t *testing.T) {
	p1, p2 := teams()
	a := mv("Tackle")
	a.Effects = &battle.CustomEffects{SelfDamage: 0.5}
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), a, battle.Skip())
	assert.Equal(t, 50, res.State.P1.Active.CurrentHP)
}

func TestFocusSash(t *testing.T) {
	p1, p2 := teams()
	p2[0].Item = "Focus Sash"
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Giga Impact"), battle.Skip())
	assert.Equal(t, 1, res.State.P2.Active.CurrentHP)
	assert.Empty(t, res.State.P2.Active.Item)
	assert.Equal(t, 99, res.Outcome.DamageDealt)
}

func TestCalculatorErrorDealsNoDamage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newResolver(Config{Logger: zap.New(core)})
	p1, p2 := teams()
	res := execute(t, r, battle.NewState(p1, p2), mv("Explode"), mv("Tackle"))
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP, "turn continues")
	assert.Equal(t, 1, logs.FilterMessage("resolve: damage calculation failed, dealing no damage").Len())
}

func TestUnknownMoveDealsNoDamage(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := newResolver(Config{Logger: zap.New(core)})
	p1, p2 := teams()
	res := execute(t, r, battle.NewState(p1, p2), mv("Hyper Mega Blast"), mv("Tackle"))
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)
	assert.Equal(t, 75, res.State.P1.Active.CurrentHP)
	assert.Equal(t, 1, logs.FilterMessage("resolve: move data unavailable").Len())
}

// ---- Status moves ----

func TestStatusMove_Toxic(t *testing.T) {
	p1, p2 := teams()
	res := execute(t, newResolver(Config{}), battle.NewState(p1, p2), mv("Toxic"), battle.Skip())
	b := res.State.P2.Active
	assert.Equal(t, pokemon.BadlyPoisoned, b.Status)
	assert.Equal(t, 94, b.CurrentHP)
	assert.Equal(t, 2, b.ToxicCounter)
	assert.True(t, res.Outcome.SecondaryTriggered)
	assert.InDelta(t, 0.9, res.Outcome.Probability, 1e-9)
}

func TestStatusMove_FieldEffects(t *testing.T) {
	r := newResolver(Config{})
	p1, p2 := teams()
	s := battle.NewState(p1, p2)

	res := execute(t, r, s, mv("Reflect"), battle.Skip())
	assert.True(t, res.State.Sides.P1.Reflect)
	assert.Equal(t, calc.FieldEffectTurns-1, res.State.Sides.P1.ReflectTurns)

	res = execute(t, r, res.State, mv("Rain Dance"), battle.Skip())
	assert.Equal(t, "Rain", res.State.Field.Weather)
	assert.Equal(t, calc.FieldEffectTurns-1, res.State.Field.WeatherTurns)

	for range 4 {
		res = execute(t, r, res.State, mv("Spikes"), battle.Skip())
	}
	assert.Equal(t, battle.MaxSpikes, res.State.Sides.P2.Spikes)
}

func TestStatusMove_BoostAndHeal(t *testing.T) {
	p1, p2 := teams()
	p1[0].SetHP(40)
	r := newResolver(Config{})
	res := execute(t, r, battle.NewState(p1, p2), mv("Swords Dance"), battle.Skip())
	assert.Equal(t, 2, res.State.P1.Active.Boosts.Atk)
	res = execute(t, r, res.State, mv("Recover"), battle.Skip())
	assert.Equal(t, 90, res.State.P1.Active.CurrentHP)
}

// ---- End of turn ----

func TestEndOfTurn_Order(t *testing.T) {
	p1, p2 := teams()
	p1[0].SetStatus(pokemon.Burned)
	p1[0].Item = "Leftovers"
	p2[0].SetStatus(pokemon.Poisoned)
	s := battle.NewState(p1, p2)
	s.Field.Weather = "Sand"

	res := execute(t, newResolver(Config{}), s, battle.Skip(), battle.Skip())
	lines, ok := res.Outcome.Details[DetailEndOfTurn].([]string)
	require.True(t, ok)
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Garchomp was hurt 6 HP by its burn")
	assert.Contains(t, lines[1], "Toxapex was hurt 12 HP by poison")
	assert.Contains(t, lines[2], "Garchomp was buffeted")
	assert.Contains(t, lines[3], "Toxapex was buffeted")
	assert.Contains(t, lines[4], "Leftovers")
	assert.Equal(t, 94, res.State.P1.Active.CurrentHP)
	assert.Equal(t, 82, res.State.P2.Active.CurrentHP)
	assert.Equal(t, "Sand", res.State.Field.Weather, "untimed weather stays")
}

func TestEndOfTurn_LegacyBurn(t *testing.T) {
	p1, p2 := teams()
	p1[0].SetStatus(pokemon.Burned)
	res := execute(t, newResolver(Config{Gen: 6}), battle.NewState(p1, p2), battle.Skip(), battle.Skip())
	assert.Equal(t, 88, res.State.P1.Active.CurrentHP)
}

func TestEndOfTurn_SandImmunity(t *testing.T) {
	p1, p2 := teams()
	p2[0].Types = []string{"Steel", "Flying"}
	s := battle.NewState(p1, p2)
	s.Field.Weather = "Sandstorm"
	res := execute(t, newResolver(Config{}), s, battle.Skip(), battle.Skip())
	assert.Equal(t, 100, res.State.P2.Active.CurrentHP)
	assert.Equal(t, 94, res.State.P1.Active.CurrentHP)
}

func TestEndOfTurn_BerryConsumedOnce(t *testing.T) {
	p1, p2 := teams()
	p1[0].SetHP(40)
	p1[0].Item = "Sitrus Berry"
	r := newResolver(Config{})
	res := execute(t, r, battle.NewState(p1, p2), battle.Skip(), battle.Skip())
	assert.Equal(t, 65, res.State.P1.Active.CurrentHP)
	assert.Empty(t, res.State.P1.Active.Item)
	assert.Empty(t, res.State.P1.Team[0].Item)

	res.State.P1.Active.SetHP(30)
	res = execute(t, r, res.State, battle.Skip(), battle.Skip())
	assert.Equal(t, 30, res.State.P1.Active.CurrentHP)
}

func TestEndOfTurn_Expiry(t *testing.T) {
	p1, p2 := teams()
	s := battle.NewState(p1, p2)
	s.Field.Weather, s.Field.WeatherTurns = "Rain", 1
	s.Field.TrickRoom, s.Field.TrickRoomTurns = true, 1
	s.Sides.P2.LightScreen, s.Sides.P2.LightScreenTurns = true, 1
	s.Sides.P1.Tailwind, s.Sides.P1.TailwindTurns = true, 2

	res := execute(t, newResolver(Config{}), s, battle.Skip(), battle.Skip())
	assert.Equal(t, battle.WeatherNone, res.State.Field.Weather)
	assert.False(t, res.State.Field.TrickRoom)
	assert.False(t, res.State.Sides.P2.LightScreen)
	assert.True(t, res.State.Sides.P1.Tailwind)
	assert.Equal(t, 1, res.State.Sides.P1.TailwindTurns)
	assert.Contains(t, logLines(res.Outcome, DetailEndOfTurn), "The Rain subsided")
}

// ---- Outcome preview ----

func TestApplyKeyOutcome(t *testing.T) {
	p1, p2 := teams()
	s := battle.NewState(p1, p2)

	next, o := ApplyKeyOutcome(s, battle.P1, calc.KeyOutcome{Type: calc.KeyNormal, Label: "Normal", Probability: 0.7, Damage: 30})
	assert.Equal(t, 70, next.P2.Active.CurrentHP)
	assert.Equal(t, 70, next.P2.Team[0].CurrentHP)
	assert.Equal(t, 1, next.TurnNumber)
	assert.Equal(t, 30, o.DamageDealt)
	assert.InDelta(t, 0.7, o.Probability, 1e-9)
	assert.Equal(t, 100, s.P2.Active.CurrentHP, "input untouched")

	effects := calc.StatusMoveEffects("Toxic")
	next, o = ApplyKeyOutcome(s, battle.P2, calc.KeyOutcome{Type: calc.KeyStatus, Label: "Toxic", Probability: 0.9, StatusEffects: &effects})
	assert.Equal(t, pokemon.BadlyPoisoned, next.P1.Active.Status)
	assert.True(t, o.SecondaryTriggered)

	next, o = ApplyKeyOutcome(s, battle.P1, calc.KeyOutcome{Type: calc.KeyMiss, Label: "Miss", Probability: 0.1, Miss: true})
	assert.Equal(t, 100, next.P2.Active.CurrentHP)
	assert.True(t, o.Miss)
}
