package battle

import (
	"testing"

	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// landingOnHawaii has two Japanese infantry land on Hawaii from Sea Zone 26, where a Japanese
// battleship waits. The American fighters have left for Wake Island.
func landingOnHawaii(t *testing.T, rules Rules) (*battleHarness, *BattleDelegate, []string, []string) {
	t.Helper()
	h := newPacificHarness(t, rules, "Japan")
	h.move("Hawaii", "Wake Island", fightersIn(h, "Hawaii"))
	battleship := h.place("Sea Zone 26", "battleship", "Japan", 1)
	infantry := h.place("Hawaii", "infantry", "Japan", 2)
	h.attack("Japan", infantry, false, "Sea Zone 26", "Hawaii")
	return h, NewBattleDelegate(h.tracker, zaptest.NewLogger(t)), infantry, battleship
}

func TestAmphibious_LandingIsFlagged(t *testing.T) {
	h, _, infantry, _ := landingOnHawaii(t, DefaultRules())
	b := h.pending("Hawaii", TypeNormal).(*MustFightBattle)

	assert.True(t, b.IsAmphibiousAttack)
	assert.ElementsMatch(t, infantry, b.AmphibiousLandAttackers)
	assert.ElementsMatch(t, infantry, b.AmphibiousOrigins()["Sea Zone 26"])
	for _, id := range infantry {
		assert.True(t, h.st.Unit(id).WasAmphibious)
	}
}

func TestAmphibious_ShipsBombardTheLanding(t *testing.T) {
	h, d, infantry, battleship := landingOnHawaii(t, DefaultRules())
	defenders := h.st.Matches("Hawaii", func(u *world.Unit, ut *world.UnitType) bool {
		return u.Owner == "Americans" && !ut.IsInfrastructure
	})
	require.Len(t, defenders, 1)

	require.NoError(t, d.addBombardmentSources(h.ctx, h.bridge))
	b := h.pending("Hawaii", TypeNormal).(*MustFightBattle)
	assert.Equal(t, battleship, b.Bombarding)

	// the battleship hits on its 0; the sunk defender never fires back
	h.dice.Add(0)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, h.dice.Calls())
	assert.Equal(t, Attacker, b.WhoWon())
	assert.False(t, h.st.Exists(defenders[0], "Hawaii"))
	assert.True(t, h.st.Exists(battleship[0], "Sea Zone 26"))
	for _, id := range infantry {
		assert.True(t, h.st.Exists(id, "Hawaii"))
	}
	assert.Equal(t, "Japan", h.st.Territory("Hawaii").Owner)
	assert.Equal(t, 3, h.record(b).DefenderLostTUV)
}

func TestAmphibious_NoBombardAfterTheShipsFought(t *testing.T) {
	h, d, _, _ := landingOnHawaii(t, DefaultRules())
	h.tracker.AddNoBombardAllowedFrom("Sea Zone 26")

	require.NoError(t, d.addBombardmentSources(h.ctx, h.bridge))

	assert.Empty(t, h.pending("Hawaii", TypeNormal).(*MustFightBattle).Bombarding)
}

func TestAmphibious_BombardCappedPerGroundUnit(t *testing.T) {
	rules := DefaultRules()
	rules.ShoreBombardPerGroundUnit = true
	h, d, _, _ := landingOnHawaii(t, rules)
	h.place("Sea Zone 26", "battleship", "Japan", 2)

	require.NoError(t, d.addBombardmentSources(h.ctx, h.bridge))

	assert.Len(t, h.pending("Hawaii", TypeNormal).(*MustFightBattle).Bombarding, 2)
}

func TestAmphibious_OverlandUnitsRetreatWhileLandersStay(t *testing.T) {
	rules := DefaultRules()
	rules.PartialAmphibiousRetreat = true
	h := newPacificHarness(t, rules, "Japan")
	h.st.AddTerritory(&world.Territory{Name: "Maui", Owner: "Japan", Neighbors: []string{"Hawaii"}})
	h.move("Hawaii", "Wake Island", fightersIn(h, "Hawaii"))
	landed := h.place("Hawaii", "infantry", "Japan", 1)
	armour := h.place("Hawaii", "armour", "Japan", 1)
	h.attack("Japan", landed, false, "Sea Zone 26", "Hawaii")
	h.attack("Japan", armour, false, "Maui", "Hawaii")
	b := h.pending("Hawaii", TypeNormal)
	r := h.remote("Japan")
	r.retreat = "Maui"

	// round 1 misses on both sides, then the landed infantry wins round 2
	h.dice.Add(5, 5, 5, 0, 5)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, r.timesAsked("retreat"))
	assert.True(t, h.st.Exists(armour[0], "Maui"))
	assert.True(t, h.st.Exists(landed[0], "Hawaii"))
	assert.Equal(t, []string{landed[0]}, b.AttackingUnits())
	assert.Equal(t, Attacker, b.WhoWon())
	assert.Equal(t, 4, h.dice.Calls())
	assert.Equal(t, "Japan", h.st.Territory("Hawaii").Owner)
}

func TestTracker_TakingACapitalCapturesTreasuryAndInfrastructure(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	h.st.UnitTypes["aagun"].DestroyedWhenCaptured = true
	aa := h.place("Hawaii", "aagun", "Americans", 1)
	airfield := airfieldIn(h, "Hawaii")
	infantry := h.place("Hawaii", "infantry", "Japan", 1)

	require.NoError(t, h.tracker.TakeOver(h.bridge, "Hawaii", "Japan", infantry))

	assert.Equal(t, "Japan", h.st.Territory("Hawaii").Owner)
	assert.Equal(t, 70, h.st.Player("Japan").Resources[world.ResourcePUs])
	assert.Equal(t, 0, h.st.Player("Americans").Resources[world.ResourcePUs])
	assert.Equal(t, "Japan", h.st.OwnerOf(airfield))
	assert.False(t, h.st.Exists(aa[0], "Hawaii"))
	for _, id := range fightersIn(h, "Hawaii") {
		assert.Equal(t, "Americans", h.st.OwnerOf(id), "aircraft are not captured")
	}
	assert.Contains(t, h.log.Transcript(), "Japan captures 40 PUs while taking Americans capital")
}

func TestTracker_TakeOverWithPendingRaidIsFatal(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Americans")
	bomber := h.place("Tokyo", "bomber", "Americans", 1)
	h.attack("Americans", bomber, true, "Sea Zone 6", "Tokyo")
	armour := h.place("Tokyo", "armour", "Americans", 1)

	err := h.tracker.TakeOver(h.bridge, "Tokyo", "Americans", armour)
	require.ErrorIs(t, err, ErrInvariant)
	assert.Nil(t, h.tracker.PendingBattle("Tokyo", TypeBombingRaid))
	assert.Equal(t, "Japan", h.st.Territory("Tokyo").Owner)
}
