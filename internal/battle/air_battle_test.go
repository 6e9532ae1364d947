package battle

import (
	"errors"
	"testing"

	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func airRaidOnHawaii(t *testing.T) (*battleHarness, []string, Battle) {
	t.Helper()
	rules := DefaultRules()
	rules.RaidsMayBePreceededByAirBattles = true
	h := newPacificHarness(t, rules, "Japan")
	bomber := h.place("Hawaii", "bomber", "Japan", 1)
	h.attack("Japan", bomber, true, "Sea Zone 26", "Hawaii")
	require.Nil(t, h.tracker.PendingBattle("Hawaii", TypeBombingRaid), "the raid waits for the air battle")
	return h, bomber, h.pending("Hawaii", TypeAirRaid)
}

func fightersIn(h *battleHarness, territory string) []string {
	return h.st.Matches(territory, func(_ *world.Unit, ut *world.UnitType) bool { return ut.Name == "fighter" })
}

func TestAirRaid_NoInterceptorsSendsBombersOn(t *testing.T) {
	h, bomber, b := airRaidOnHawaii(t)
	r := h.remote("Americans")

	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, r.timesAsked("select_units"))
	assert.Equal(t, 0, h.dice.Calls())
	assert.True(t, b.IsOver())
	assert.Equal(t, Attacker, b.WhoWon())
	assert.True(t, h.st.Unit(bomber[0]).WasInAirBattle)

	raid := h.pending("Hawaii", TypeBombingRaid)
	assert.Equal(t, bomber, raid.AttackingUnits())
	assert.Nil(t, h.tracker.PendingBattle("Hawaii", TypeAirRaid))
}

func TestAirRaid_InterceptorsShootDownBomber(t *testing.T) {
	h, bomber, b := airRaidOnHawaii(t)
	r := h.remote("Americans")
	r.interceptors = fightersIn(h, "Hawaii")
	require.Len(t, r.interceptors, 2)

	// bomber misses, first fighter hits
	h.dice.Add(5, 0, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 2, h.dice.Calls())
	assert.Equal(t, Defender, b.WhoWon())
	assert.False(t, h.st.Exists(bomber[0], "Hawaii"))
	assert.Nil(t, h.tracker.PendingBombingBattle("Hawaii"))
	rec := h.record(b)
	assert.Equal(t, ResultLost, rec.Result)
	assert.Equal(t, 12, rec.AttackerLostTUV)
}

func TestAirRaid_SurvivingBomberProceeds(t *testing.T) {
	h, bomber, b := airRaidOnHawaii(t)
	h.remote("Americans").interceptors = fightersIn(h, "Hawaii")[:1]

	h.dice.Add(5, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	// one round of air combat, then a draw
	assert.Equal(t, Draw, b.WhoWon())
	raid := h.pending("Hawaii", TypeBombingRaid)
	assert.Equal(t, bomber, raid.AttackingUnits())
}

func TestAirRaid_InterceptorsWithoutBaseNeedsAreUncapped(t *testing.T) {
	h, _, b := airRaidOnHawaii(t)
	h.place("Hawaii", "fighter", "Americans", 2)
	fighters := fightersIn(h, "Hawaii")
	require.Len(t, fighters, 4, "more fighters than the airfield's intercept count")
	h.remote("Americans").interceptors = fighters

	h.dice.Add(5, 5, 5, 5, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.ElementsMatch(t, fighters, b.DefendingUnits())
	assert.Equal(t, Draw, b.WhoWon())
}

func TestAirRaid_AirBaseCapsInterceptorsThatNeedIt(t *testing.T) {
	h, _, b := airRaidOnHawaii(t)
	h.st.UnitTypes["fighter"].RequiresAirBaseToIntercept = true
	h.place("Hawaii", "fighter", "Americans", 1)
	r := h.remote("Americans")
	r.interceptors = fightersIn(h, "Hawaii")
	require.Len(t, r.interceptors, 3)

	err := b.Fight(h.ctx, h.bridge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestAirRaid_HeadlessLaunchStopsAtBaseCapacity(t *testing.T) {
	h, _, b := airRaidOnHawaii(t)
	h.st.UnitTypes["fighter"].RequiresAirBaseToIntercept = true
	h.place("Hawaii", "fighter", "Americans", 1)
	b.(*AirBattle).Headless = true

	h.dice.Add(5, 5, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Len(t, b.DefendingUnits(), 2)
}

func TestAirRaid_EmptyDefenceClearedHeadless(t *testing.T) {
	h, bomber, _ := airRaidOnHawaii(t)
	// the defending fighters left before combat
	h.move("Hawaii", "Sea Zone 26", fightersIn(h, "Hawaii"))

	require.NoError(t, h.tracker.ClearEmptyAirBattleAttacks(h.ctx, h.bridge))

	assert.Nil(t, h.tracker.PendingBattle("Hawaii", TypeAirRaid))
	raid := h.pending("Hawaii", TypeBombingRaid)
	assert.Equal(t, bomber, raid.AttackingUnits())
}
