package battle

import (
	"context"
	"testing"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raidOnTokyo(t *testing.T, rules Rules) (*battleHarness, []string, Battle) {
	t.Helper()
	h := newPacificHarness(t, rules, "Americans")
	bomber := h.place("Tokyo", "bomber", "Americans", 1)
	h.attack("Americans", bomber, true, "Sea Zone 6", "Tokyo")
	return h, bomber, h.pending("Tokyo", TypeBombingRaid)
}

func TestBombingRaid_SumsDiceIntoPUs(t *testing.T) {
	h, bomber, b := raidOnTokyo(t, DefaultRules())
	assert.Equal(t, KindBombingRaid, b.Kind())
	assert.Equal(t, "Japan", b.Defender())

	h.dice.Add(3, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, h.dice.Calls(), "both bomber dice in one roll")
	assert.Equal(t, Attacker, b.WhoWon())
	assert.Equal(t, 20, h.st.Player("Japan").Resources[world.ResourcePUs])
	assert.Equal(t, 10, h.st.PUsLost["Tokyo"])
	assert.True(t, h.st.Exists(bomber[0], "Tokyo"))
	assert.Equal(t, 10, b.(*StrategicBombingRaidBattle).Cost)
	assert.Equal(t, ResultBombed, h.record(b).Result)
	assert.Contains(t, h.log.Transcript(), "Bombing raid in Tokyo costs Japan 10 PUs")
}

func TestBombingRaid_DamageLimitedToProduction(t *testing.T) {
	rules := DefaultRules()
	rules.LimitSBRDamageToProduction = true
	rules.PUMultiplier = 2
	h, _, b := raidOnTokyo(t, rules)

	h.dice.Add(3, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	// 10 damage capped at production 8, doubled into PUs
	assert.Equal(t, 14, h.st.Player("Japan").Resources[world.ResourcePUs])
	assert.Equal(t, 8, h.st.PUsLost["Tokyo"])
	assert.Equal(t, 16, b.(*StrategicBombingRaidBattle).Cost)
}

func TestBombingRaid_DamageCappedPerTurn(t *testing.T) {
	rules := DefaultRules()
	rules.LimitSBRDamagePerTurn = true
	h, _, b := raidOnTokyo(t, rules)
	h.st.PUsLost["Tokyo"] = 6

	h.dice.Add(3, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 28, h.st.Player("Japan").Resources[world.ResourcePUs])
	assert.Equal(t, 8, h.st.PUsLost["Tokyo"])
}

func TestBombingRaid_HeavyBombersKeepTheBestDie(t *testing.T) {
	rules := DefaultRules()
	rules.LHTRHeavyBombers = true
	h, _, b := raidOnTokyo(t, rules)

	h.dice.Add(1, 4)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 25, h.st.Player("Japan").Resources[world.ResourcePUs])
}

func TestBombingRaid_AAShootsDownTheBomber(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Americans")
	h.place("Tokyo", "aagun", "Japan", 1)
	bomber := h.place("Tokyo", "bomber", "Americans", 1)
	h.attack("Americans", bomber, true, "Sea Zone 6", "Tokyo")
	b := h.pending("Tokyo", TypeBombingRaid)

	h.dice.Add(0)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, h.dice.Calls())
	assert.False(t, h.st.Exists(bomber[0], "Tokyo"))
	assert.Equal(t, Defender, b.WhoWon())
	assert.Equal(t, 30, h.st.Player("Japan").Resources[world.ResourcePUs])
	rec := h.record(b)
	assert.Equal(t, ResultLost, rec.Result)
	assert.Equal(t, 12, rec.AttackerLostTUV)
}

func TestBombingRaid_NothingToDamage(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	bomber := h.place("Hawaii", "bomber", "Japan", 1)
	h.attack("Japan", bomber, true, "Sea Zone 26", "Hawaii")
	b := h.pending("Hawaii", TypeBombingRaid)

	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 0, h.dice.Calls())
	assert.Equal(t, Draw, b.WhoWon())
	assert.Equal(t, ResultNoBattle, h.record(b).Result)
}

func TestBombingRaid_DamagesUnits(t *testing.T) {
	rules := DefaultRules()
	rules.DamageFromBombingDoneToUnitsInsteadOfTerritories = true
	h, _, b := raidOnTokyo(t, rules)
	factory := h.st.Matches("Tokyo", func(_ *world.Unit, ut *world.UnitType) bool { return ut.CanBeDamaged })
	require.Len(t, factory, 1)

	h.dice.Add(3, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 10, h.st.Unit(factory[0]).BombingDamage)
	assert.Equal(t, 30, h.st.Player("Japan").Resources[world.ResourcePUs])
	assert.Equal(t, Attacker, b.WhoWon())
}

func TestBombingRaid_CalledOffWhenBombersLost(t *testing.T) {
	h, bomber, b := raidOnTokyo(t, DefaultRules())

	require.NoError(t, b.UnitsLostInPrecedingBattle(h.ctx, h.bridge, bomber, false))

	assert.True(t, b.IsOver())
	assert.Nil(t, h.tracker.PendingBombingBattle("Tokyo"))
	_, ok := h.tracker.Records.Record("Americans", b.ID())
	assert.False(t, ok, "a raid that never flew leaves no record")
}

// flakyDice fails one call of the wrapped source, counted from one, with an interruption.
type flakyDice struct {
	dice.Source
	failOn int
	calls  int
}

func (f *flakyDice) Roll(ctx context.Context, sides, count int, player string, category dice.Category, annotation string) ([]int, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, dice.ErrInterrupted
	}
	return f.Source.Roll(ctx, sides, count, player, category, annotation)
}

func TestBombingRaid_ResumedRollKeepsEarlierBombersDice(t *testing.T) {
	rules := DefaultRules()
	rules.UseBombingMaxDiceSidesAndBonus = true
	h := newPacificHarness(t, rules, "Americans")
	heavy := *h.st.UnitTypes["bomber"]
	heavy.Name = "heavy bomber"
	heavy.BombingMaxDieSides = 4
	h.st.AddUnitType(&heavy)
	bombers := append(h.place("Tokyo", "bomber", "Americans", 1), h.place("Tokyo", "heavy bomber", "Americans", 1)...)
	h.attack("Americans", bombers, true, "Sea Zone 6", "Tokyo")
	b := h.pending("Tokyo", TypeBombingRaid)
	h.bridge.SetDice(&flakyDice{Source: h.dice, failOn: 2})

	// a d6 and a d4 bomber roll separately
	h.dice.Add(0, 0, 1, 1)
	err := b.Fight(h.ctx, h.bridge)
	require.ErrorIs(t, err, ErrSuspended)
	assert.Equal(t, 1, h.dice.Calls())

	require.NoError(t, b.Fight(h.ctx, h.bridge))
	assert.Equal(t, 2, h.dice.Calls(), "the first bomber does not roll again")
	assert.Zero(t, h.dice.Remaining())
	// (1+1) + (2+2)
	assert.Equal(t, 24, h.st.Player("Japan").Resources[world.ResourcePUs])
}

func TestBombingRaid_LowLuckDamageOnly(t *testing.T) {
	rules := DefaultRules()
	rules.LowLuckDamageOnly = true
	h, _, b := raidOnTokyo(t, rules)

	// d6 shrinks to d2 with a bonus of 2 per die
	h.dice.Add(0, 1)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 23, h.st.Player("Japan").Resources[world.ResourcePUs])
}

func TestBombingRaid_PlainLowLuckRollsFullDice(t *testing.T) {
	rules := DefaultRules()
	rules.LowLuck = true
	h, _, b := raidOnTokyo(t, rules)

	h.dice.Add(3, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 20, h.st.Player("Japan").Resources[world.ResourcePUs])
}
