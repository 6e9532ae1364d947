package battle

import (
	"testing"

	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_BlitzCreatesFinishedBattles(t *testing.T) {
	h := newBattleHarness(t, landMap, DefaultRules(), "Germans")
	armour := h.place("Ukraine", "armour", "Germans", 1)
	h.attack("Germans", armour, false, "Germany", "Poland", "Ukraine")

	var taken []Battle
	for _, site := range []string{"Poland", "Ukraine"} {
		b := h.pending(site, TypeNormal)
		taken = append(taken, b)
		assert.Equal(t, KindFinished, b.Kind(), site)
		assert.Equal(t, armour, b.AttackingUnits(), site)
		assert.Equal(t, "Germans", h.st.Territory(site).Owner, site)
		assert.True(t, h.tracker.WasConquered(site), site)
	}
	assert.True(t, h.tracker.WasBlitzed("Poland"))
	assert.False(t, h.tracker.WasBlitzed("Ukraine"))
	assert.False(t, h.tracker.Listing().IsEmpty())

	require.NoError(t, h.tracker.ClearFinishedBattles(h.ctx, h.bridge))
	assert.Empty(t, h.tracker.Battles())
	assert.True(t, h.tracker.WasBattleFought("Ukraine"))
	for _, b := range taken {
		assert.Equal(t, Attacker, b.WhoWon())
		assert.Equal(t, ResultConquered, h.record(b).Result)
	}
}

func TestTracker_RejectsCycles(t *testing.T) {
	h := newBattleHarness(t, landMap, DefaultRules(), "Germans")
	a := NewMustFightBattle("Poland", "Germans", h.st, h.tracker)
	b := NewMustFightBattle("Ukraine", "Germans", h.st, h.tracker)
	c := NewMustFightBattle("Germany", "Russians", h.st, h.tracker)
	h.tracker.add(a)
	h.tracker.add(b)
	h.tracker.add(c)

	require.ErrorIs(t, h.tracker.AddDependency(a, a), ErrInvariant)

	require.NoError(t, h.tracker.AddDependency(a, b))
	require.NoError(t, h.tracker.AddDependency(b, c))
	require.ErrorIs(t, h.tracker.AddDependency(b, a), ErrInvariant)
	require.ErrorIs(t, h.tracker.AddDependency(c, a), ErrInvariant)

	h.tracker.RemoveDependency(b, c)
	require.NoError(t, h.tracker.AddDependency(c, a))
}

func TestTracker_DependentOnSkipsEmptyBattles(t *testing.T) {
	h := newBattleHarness(t, landMap, DefaultRules(), "Germans")
	armour := h.place("Poland", "armour", "Germans", 1)
	h.place("Poland", "infantry", "Russians", 1)
	h.attack("Germans", armour, false, "Germany", "Poland")
	normal := h.pending("Poland", TypeNormal)

	escort := NewAirBattle("Poland", "Germans", TypeAirBattle, h.st, h.tracker)
	h.tracker.add(escort)
	require.NoError(t, h.tracker.AddDependency(normal, escort))
	assert.Empty(t, h.tracker.DependentOn(normal), "an air battle without aircraft blocks nothing")

	fighter := h.place("Poland", "fighter", "Germans", 1)
	escort.AddAttackChange(world.NewRoute("Germany", "Poland"), fighter, nil)
	deps := h.tracker.DependentOn(normal)
	require.Len(t, deps, 1)
	assert.Equal(t, escort.ID(), deps[0].ID())
	assert.Len(t, h.tracker.Blocked(escort), 1)
}

func TestTracker_RaidPrecedesNormalBattle(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Americans")
	bomber := h.place("Tokyo", "bomber", "Americans", 1)
	armour := h.place("Tokyo", "armour", "Americans", 2)
	h.attack("Americans", bomber, true, "Sea Zone 6", "Tokyo")
	h.attack("Americans", armour, false, "Sea Zone 6", "Tokyo")

	raid := h.pending("Tokyo", TypeBombingRaid)
	normal := h.pending("Tokyo", TypeNormal)
	deps := h.tracker.DependentOn(normal)
	require.Len(t, deps, 1)
	assert.Equal(t, raid.ID(), deps[0].ID())
	assert.Empty(t, h.tracker.DependentOn(raid))

	listing := h.tracker.Listing()
	assert.Equal(t, []string{"Tokyo"}, listing.Battles[TypeBombingRaid])
	assert.Equal(t, []string{"Tokyo"}, listing.Battles[TypeNormal])

	h.tracker.RemoveBattle(raid)
	assert.Empty(t, h.tracker.DependentOn(normal))
	assert.True(t, h.tracker.WasBattleFought("Tokyo"))
}

func TestTracker_UndoBattleForgetsEmptyBattle(t *testing.T) {
	h := newBattleHarness(t, landMap, DefaultRules(), "Germans")
	armour := h.place("Poland", "armour", "Germans", 1)
	h.place("Poland", "infantry", "Russians", 1)
	route := world.NewRoute("Germany", "Poland")
	h.attack("Germans", armour, false, route.Territories...)
	b := h.pending("Poland", TypeNormal)

	require.NoError(t, h.tracker.UndoBattle(h.bridge, route, armour, "Germans"))

	assert.Nil(t, h.tracker.PendingBattle("Poland", TypeNormal))
	assert.False(t, h.tracker.WasBattleFought("Poland"))
	_, ok := h.tracker.Records.Record("Germans", b.ID())
	assert.False(t, ok)
}

func TestTracker_LostBlitzersWithdrawTheClaim(t *testing.T) {
	h := newBattleHarness(t, landMap, DefaultRules(), "Germans")
	armour := h.place("Ukraine", "armour", "Germans", 1)
	h.attack("Germans", armour, false, "Germany", "Poland", "Ukraine")
	b := h.pending("Ukraine", TypeNormal)

	require.NoError(t, b.UnitsLostInPrecedingBattle(h.ctx, h.bridge, armour, false))

	assert.Equal(t, Defender, b.WhoWon())
	assert.False(t, h.tracker.WasConquered("Ukraine"))
	assert.Equal(t, ResultLost, h.record(b).Result)
	// ownership stays with the conqueror
	assert.Equal(t, "Germans", h.st.Territory("Ukraine").Owner)
}
