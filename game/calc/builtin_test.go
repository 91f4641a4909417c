package calc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/pokemon"
)

// ---- Dex ----

func TestDefaultDex_Loads(t *testing.T) {
	moves, species := DefaultDex().Len()
	assert.GreaterOrEqual(t, moves, 100)
	assert.GreaterOrEqual(t, species, 30)
}

func TestDex_LookupAnySpelling(t *testing.T) {
	d := DefaultDex()
	m, ok := d.Move("u-turn")
	require.True(t, ok)
	assert.Equal(t, "U-turn", m.Name)
	assert.True(t, m.SelfSwitch)

	m, ok = d.Move("ROCK BLAST")
	require.True(t, ok)
	assert.Equal(t, [2]int{2, 5}, m.MultiHit)
	assert.Equal(t, 3, m.DefaultHits())

	s, ok := d.Species("garchomp")
	require.True(t, ok)
	assert.Equal(t, []string{"Dragon", "Ground"}, s.Types)
	assert.Equal(t, 102, s.Base.Spe)
}

func TestParseDex_Errors(t *testing.T) {
	_, err := ParseDex([]byte("moves: [ {"))
	assert.Error(t, err)
	_, err = ParseDex([]byte("moves:\n  - {type: Normal}\n"))
	assert.Error(t, err)
	_, err = LoadDex("/nonexistent/dex.yaml")
	assert.Error(t, err)
}

func TestParseDex_DefaultsCategory(t *testing.T) {
	d, err := ParseDex([]byte("moves:\n  - {name: Pound, bp: 40}\n"))
	require.NoError(t, err)
	m, ok := d.Move("Pound")
	require.True(t, ok)
	assert.Equal(t, Physical, m.Category)
}

func TestToID(t *testing.T) {
	assert.Equal(t, "uturn", ToID("U-turn"))
	assert.Equal(t, "willowisp", ToID("Will-O-Wisp"))
	assert.Equal(t, "rotomwash", ToID("Rotom-Wash"))
}

// ---- BuiltinCalculator ----

func dmgReq(move string, att, def *pokemon.Pokemon) Request {
	return Request{Gen: 9, Attacker: att, Defender: def, Move: move}
}

func rolls(t *testing.T, res Result) []int {
	t.Helper()
	r, ok := res.Damage.([]int)
	require.True(t, ok, "damage is a roll list")
	require.Len(t, r, 16)
	return r
}

func TestBuiltin_RollsAscending(t *testing.T) {
	b := NewBuiltin(nil)
	res, err := b.Damage(context.Background(), dmgReq("Earthquake", mon("Garchomp", "Dragon", "Ground"), mon("Blissey", "Normal")))
	require.NoError(t, err)
	r := rolls(t, res)
	for i := 1; i < len(r); i++ {
		assert.GreaterOrEqual(t, r[i], r[i-1])
	}
	assert.Equal(t, r[0], res.Range.Min)
	assert.Equal(t, r[15], res.Range.Max)
	assert.Greater(t, res.Range.Min, 0)
	assert.Contains(t, res.Desc, "Earthquake")
}

func TestBuiltin_STAB(t *testing.T) {
	b := NewBuiltin(nil)
	def := mon("Blissey", "Normal")
	stab, err := b.Damage(context.Background(), dmgReq("Earthquake", mon("Garchomp", "Dragon", "Ground"), def))
	require.NoError(t, err)
	plain, err := b.Damage(context.Background(), dmgReq("Earthquake", mon("Garchomp", "Dragon"), def))
	require.NoError(t, err)
	assert.Greater(t, stab.Range.Max, plain.Range.Max)
}

func TestBuiltin_Immunity(t *testing.T) {
	b := NewBuiltin(nil)
	res, err := b.Damage(context.Background(), dmgReq("Earthquake", mon("Garchomp", "Dragon", "Ground"), mon("Corviknight", "Flying", "Steel")))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Damage)
	assert.Contains(t, res.Desc, "doesn't affect")
}

func TestBuiltin_StatusMoveDealsNothing(t *testing.T) {
	b := NewBuiltin(nil)
	res, err := b.Damage(context.Background(), dmgReq("Swords Dance", mon("Garchomp"), mon("Blissey")))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Damage)
}

func TestBuiltin_UnknownMove(t *testing.T) {
	b := NewBuiltin(nil)
	_, err := b.Damage(context.Background(), dmgReq("Hyper Mega Blast", mon("Garchomp"), mon("Blissey")))
	assert.ErrorIs(t, err, ErrUnknownMove)
	_, err = b.Move(context.Background(), 9, "Hyper Mega Blast")
	assert.ErrorIs(t, err, ErrUnknownMove)
}

func TestBuiltin_MissingDefender(t *testing.T) {
	b := NewBuiltin(nil)
	_, err := b.Damage(context.Background(), dmgReq("Tackle", mon("Garchomp"), nil))
	assert.ErrorIs(t, err, ErrMissingCombatant)
}

func TestBuiltin_CritHitsHarder(t *testing.T) {
	b := NewBuiltin(nil)
	r := dmgReq("Dragon Claw", mon("Garchomp", "Dragon", "Ground"), mon("Toxapex", "Poison", "Water"))
	normal, err := b.Damage(context.Background(), r)
	require.NoError(t, err)
	r.Crit = true
	crit, err := b.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Greater(t, crit.Range.Avg, normal.Range.Avg)
}

func TestBuiltin_HitsMultiply(t *testing.T) {
	b := NewBuiltin(nil)
	r := dmgReq("Rock Blast", mon("Garchomp"), mon("Blissey"))
	one, err := b.Damage(context.Background(), r)
	require.NoError(t, err)
	r.Hits = 3
	three, err := b.Damage(context.Background(), r)
	require.NoError(t, err)
	single, triple := rolls(t, one), rolls(t, three)
	for i := range single {
		assert.Equal(t, single[i]*3, triple[i])
	}
}

func TestBuiltin_BurnAndReflect(t *testing.T) {
	b := NewBuiltin(nil)
	att := mon("Garchomp", "Dragon", "Ground")
	def := mon("Blissey", "Normal")
	base, err := b.Damage(context.Background(), dmgReq("Earthquake", att, def))
	require.NoError(t, err)

	burned := att.Clone()
	burned.SetStatus(pokemon.Burned)
	res, err := b.Damage(context.Background(), dmgReq("Earthquake", burned, def))
	require.NoError(t, err)
	assert.Less(t, res.Range.Max, base.Range.Max)

	r := dmgReq("Earthquake", att, def)
	r.DefenderSide = battle.SideConditions{Reflect: true}
	res, err = b.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Less(t, res.Range.Max, base.Range.Max)
}

func TestBuiltin_Weather(t *testing.T) {
	b := NewBuiltin(nil)
	att := mon("Rotom-Wash", "Electric", "Water")
	def := mon("Blissey", "Normal")
	dry, err := b.Damage(context.Background(), dmgReq("Surf", att, def))
	require.NoError(t, err)
	r := dmgReq("Surf", att, def)
	r.Field = battle.Field{Weather: "Rain"}
	wet, err := b.Damage(context.Background(), r)
	require.NoError(t, err)
	assert.Greater(t, wet.Range.Max, dry.Range.Max)
}

func TestBuiltin_UsesSnapshotStats(t *testing.T) {
	b := NewBuiltin(nil)
	def := mon("Blissey", "Normal")
	weak := mon("Garchomp", "Dragon", "Ground")
	weak.Stats.Atk = 50
	strong := mon("Garchomp", "Dragon", "Ground")
	strong.Stats.Atk = 400
	lo, err := b.Damage(context.Background(), dmgReq("Earthquake", weak, def))
	require.NoError(t, err)
	hi, err := b.Damage(context.Background(), dmgReq("Earthquake", strong, def))
	require.NoError(t, err)
	assert.Greater(t, hi.Range.Min, lo.Range.Max)
}

func TestBuiltin_MoveFillsSecondaries(t *testing.T) {
	m, err := NewBuiltin(nil).Move(context.Background(), 9, "Thunderbolt")
	require.NoError(t, err)
	require.Len(t, m.Secondaries, 1)
	assert.Equal(t, "par", m.Secondaries[0].Status)
}
