package calc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/script"
)

const calcBundle = `
var moves = {
  tackle: {name: "Tackle", type: "Normal", category: "Physical", basePower: 40, accuracy: 100},
  ironhead: {name: "Iron Head", type: "Steel", category: "Physical", basePower: 80, accuracy: 100,
    secondaries: [{chance: 30, volatileStatus: "flinch"}]},
  bravebird: {name: "Brave Bird", type: "Flying", category: "Physical", basePower: 120, accuracy: 100, recoil: [33, 100]},
  swift: {name: "Swift", type: "Normal", category: "Special", basePower: 60, accuracy: true},
  bulletseed: {name: "Bullet Seed", type: "Grass", category: "Physical", basePower: 25, accuracy: 100, multihit: [2, 5]},
  uturn: {name: "U-turn", type: "Bug", category: "Physical", basePower: 70, accuracy: 100, selfSwitch: true},
  closecombat: {name: "Close Combat", type: "Fighting", category: "Physical", basePower: 120, accuracy: 100,
    self: {boosts: {def: -1, spd: -1}}}
};

function toID(s) { return String(s).toLowerCase().replace(/[^a-z0-9]/g, ''); }

function moveData(gen, name) { return moves[toID(name)] || null; }

function Result(rolls, desc) { this.damage = rolls; this.text = desc; }
Result.prototype.desc = function() { return this.text; };

function calculate(gen, attacker, defender, move, field) {
  if (move.name === "Explode") { throw new Error("calc failure"); }
  var base = move.isCrit ? 30 : 20;
  if (move.hits) { base *= move.hits; }
  var rolls = [];
  for (var i = 0; i < 16; i++) { rolls.push(base + i); }
  return new Result(rolls, attacker.name + " vs " + defender.name + " in " + (field.weather || "clear"));
}
`

func newScriptCalc(t *testing.T) *ScriptCalculator {
	t.Helper()
	pool, err := script.NewVMPool(calcBundle, 2, time.Second, nil)
	require.NoError(t, err)
	return NewScript(pool, nil)
}

func TestScript_Move(t *testing.T) {
	c := newScriptCalc(t)
	m, err := c.Move(context.Background(), 9, "Tackle")
	require.NoError(t, err)
	assert.Equal(t, "Tackle", m.Name)
	assert.Equal(t, 40, m.BasePower)
	assert.Equal(t, 100, m.Accuracy)
	assert.Equal(t, Physical, m.Category)
}

func TestScript_MoveUnknown(t *testing.T) {
	c := newScriptCalc(t)
	_, err := c.Move(context.Background(), 9, "Nope")
	assert.ErrorIs(t, err, ErrUnknownMove)
}

func TestScript_MoveFields(t *testing.T) {
	c := newScriptCalc(t)
	ctx := context.Background()

	m, err := c.Move(ctx, 9, "Swift")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Accuracy, "accuracy true never misses")

	m, err = c.Move(ctx, 9, "Iron Head")
	require.NoError(t, err)
	require.Len(t, m.Secondaries, 1)
	assert.True(t, m.Secondaries[0].Flinch)
	assert.InDelta(t, 0.3, m.Secondaries[0].Chance, 1e-9)

	m, err = c.Move(ctx, 9, "Brave Bird")
	require.NoError(t, err)
	assert.InDelta(t, 0.33, m.Recoil, 1e-9)

	m, err = c.Move(ctx, 9, "Bullet Seed")
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 5}, m.MultiHit)

	m, err = c.Move(ctx, 9, "U-turn")
	require.NoError(t, err)
	assert.True(t, m.SelfSwitch)

	m, err = c.Move(ctx, 9, "Close Combat")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"def": -1, "spd": -1}, m.SelfBoosts)
}

func TestScript_Damage(t *testing.T) {
	c := newScriptCalc(t)
	r := Request{Gen: 9, Attacker: mon("Garchomp"), Defender: mon("Blissey"), Move: "Tackle"}
	r.Field.Weather = battle.WeatherNone
	res, err := c.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Range.Min)
	assert.Equal(t, 35, res.Range.Max)
	assert.Equal(t, "Garchomp vs Blissey in clear", res.Desc)

	r.Crit = true
	r.Field.Weather = "Rain"
	res, err = c.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Range.Min)
	assert.Equal(t, "Garchomp vs Blissey in Rain", res.Desc)
}

func TestScript_DamagePassesHits(t *testing.T) {
	c := newScriptCalc(t)
	r := Request{Gen: 9, Attacker: mon("Breloom"), Defender: mon("Blissey"), Move: "Bullet Seed", Hits: 3}
	res, err := c.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Range.Min)
}

func TestScript_DamageError(t *testing.T) {
	c := newScriptCalc(t)
	r := Request{Gen: 9, Attacker: mon("Electrode"), Defender: mon("Blissey"), Move: "Explode"}
	_, err := c.Damage(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calc failure")
}

func TestScript_FeedsOutcomes(t *testing.T) {
	c := newScriptCalc(t)
	outs, err := Outcomes(context.Background(), c, Request{Gen: 9, Attacker: mon("Garchomp"), Defender: mon("Blissey"), Move: "Tackle"}, DefaultSimplifyThreshold)
	require.NoError(t, err)
	require.NotEmpty(t, outs)
	assert.Equal(t, 20, outs[0].DamageDealt)
	assert.InDelta(t, 1.0, sum(outs), 1e-6)
}
