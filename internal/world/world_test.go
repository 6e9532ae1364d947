package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMapDefaults(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	inf := s.UnitTypes["infantry"]
	require.NotNil(t, inf)
	assert.Equal(t, 1, inf.AttackRolls)
	assert.Equal(t, 1, inf.DefenseRolls)
	assert.Equal(t, 1, inf.HitPoints)
	assert.Equal(t, -1, inf.BombingMaxDieSides)
	assert.Equal(t, -1, inf.MaxScrambleCount)

	bomber := s.UnitTypes["bomber"]
	assert.Equal(t, 2, bomber.AttackRolls)
	assert.True(t, bomber.IsStrategicBomber)

	aa := s.UnitTypes["aagun"]
	assert.Equal(t, "AA", aa.AAType)
	assert.True(t, aa.AAForBombing)

	assert.Equal(t, 2, s.UnitTypes["battleship"].HitPoints)
	assert.True(t, s.UnitTypes["battleship"].CanBombard())
}

func TestLoadMapTerritories(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	assert.Equal(t, NullPlayer, s.Territory("Wake Island").Owner)
	assert.Equal(t, "", s.Territory("Sea Zone 6").Owner)
	assert.Equal(t, "Japan", s.Territory("Tokyo").OriginalOwner)

	// neighbor edges are linked in both directions
	assert.Contains(t, s.Territory("Hawaii").Neighbors, "Sea Zone 26")
	assert.Contains(t, s.Territory("Sea Zone 26").Neighbors, "Wake Island")

	assert.Len(t, s.Territory("Tokyo").Units, 4)
	assert.Len(t, s.Territory("Hawaii").Units, 4)

	airfields := s.Matches("Hawaii", func(_ *Unit, ut *UnitType) bool { return ut.IsAirBase })
	require.Len(t, airfields, 1)
	assert.Equal(t, 2, s.Unit(airfields[0]).MaxScrambleCount)
}

func TestParseMapRejectsUnknownNeighbor(t *testing.T) {
	_, err := ParseMap([]byte(`
territories:
  - name: A
    neighbors: [B]
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTerritory)
}

func TestParseMapRejectsUnknownOwner(t *testing.T) {
	_, err := ParseMap([]byte(`
unit_types:
  - name: infantry
territories:
  - name: A
units:
  - type: infantry
    owner: Nobody
    territory: A
`))
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestAlliances(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)
	s.AddPlayer(&Player{Name: "British", Alliance: "Allies"})

	assert.True(t, s.IsAtWar("Japan", "Americans"))
	assert.False(t, s.IsAtWar("British", "Americans"))
	assert.True(t, s.IsAllied("British", "Americans"))
	assert.False(t, s.IsAtWar("Japan", NullPlayer))
	assert.False(t, s.IsAllied("Japan", NullPlayer))
}

func TestDistance(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	assert.Equal(t, 0, s.Distance("Tokyo", "Tokyo"))
	assert.Equal(t, 1, s.Distance("Tokyo", "Sea Zone 6"))
	assert.Equal(t, 3, s.Distance("Tokyo", "Hawaii"))
	assert.Equal(t, []string{"Hawaii", "Sea Zone 6", "Wake Island"}, s.NeighborsWithin("Sea Zone 26", 1))

	s.AddTerritory(&Territory{Name: "Island"})
	assert.Equal(t, -1, s.Distance("Tokyo", "Island"))
}

func TestChangeApply(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	infantry := s.Matches("Tokyo", func(_ *Unit, ut *UnitType) bool { return ut.Name == "infantry" })
	require.Len(t, infantry, 3)

	var c Change
	assert.True(t, c.IsEmpty())
	c.Add(MoveUnits("Tokyo", "Sea Zone 6", infantry[:1]))
	c.Add(RemoveUnits("Tokyo", infantry[1:2]))
	c.Add(SetUnitInt(infantry[2], PropHits, 1))
	c.Add(SetUnitBool(infantry[2:], PropWasAmphibious, true))
	c.Add(ChangeTerritoryOwner("Tokyo", "Americans"))
	c.Add(ChangeResource("Japan", ResourcePUs, -7))
	require.NoError(t, c.Apply(s))

	assert.True(t, s.Exists(infantry[0], "Sea Zone 6"))
	assert.False(t, s.Exists(infantry[0], "Tokyo"))
	assert.Nil(t, s.Unit(infantry[1]))
	assert.Equal(t, 1, s.Unit(infantry[2]).Hits)
	assert.True(t, s.Unit(infantry[2]).WasAmphibious)
	assert.Equal(t, "Americans", s.Territory("Tokyo").Owner)
	assert.Equal(t, 23, s.Player("Japan").Resources[ResourcePUs])
	assert.Equal(t, "[MOVE_UNITS,REMOVE_UNITS,UNIT_PROPERTY,UNIT_PROPERTY,TERRITORY_OWNER,RESOURCE]", c.String())
}

func TestChangeApplyUnknownUnit(t *testing.T) {
	s := NewState()
	s.AddTerritory(&Territory{Name: "A"})
	s.AddTerritory(&Territory{Name: "B", Neighbors: []string{"A"}})

	err := Change{Ops: []Op{MoveUnits("A", "B", []string{"ghost"})}}.Apply(s)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestUnitDamageCapacity(t *testing.T) {
	ut := &UnitType{Name: "factory", CanBeDamaged: true, MaxDamage: 20}
	u := &Unit{BombingDamage: 15}
	assert.Equal(t, 5, u.DamageCapacityLeft(ut))
	assert.False(t, u.AtMaxDamage(ut))

	u.BombingDamage = 20
	assert.Equal(t, 0, u.DamageCapacityLeft(ut))
	assert.True(t, u.AtMaxDamage(ut))
}

func TestRoute(t *testing.T) {
	r := NewRoute("Tokyo", "Sea Zone 6", "Sea Zone 26")
	assert.Equal(t, "Tokyo", r.Start())
	assert.Equal(t, "Sea Zone 26", r.End())
	assert.Equal(t, 2, r.NumberOfSteps())
	assert.Equal(t, "Sea Zone 6", r.TerritoryBeforeEnd())

	s := ScriptedRoute("Hawaii")
	assert.Equal(t, "Hawaii", s.Start())
	assert.Equal(t, "Hawaii", s.End())
	assert.Equal(t, 0, s.NumberOfSteps())
	assert.Nil(t, s.Steps())
}

func TestRouteUnload(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	assert.True(t, NewRoute("Sea Zone 26", "Hawaii").IsUnload(s))
	assert.True(t, NewRoute("Sea Zone 26", "Hawaii").HasExactlyOneStep())
	assert.False(t, NewRoute("Tokyo", "Sea Zone 6").IsUnload(s))
	assert.False(t, ScriptedRoute("Hawaii").IsUnload(s))
}

func TestTerritoryDamageAndLocate(t *testing.T) {
	s, err := LoadMap("testdata/pacific.yaml")
	require.NoError(t, err)

	require.NoError(t, Change{Ops: []Op{AddTerritoryDamage("Tokyo", 4), AddTerritoryDamage("Tokyo", 3)}}.Apply(s))
	assert.Equal(t, 7, s.PUsLost["Tokyo"])

	infantry := s.Matches("Hawaii", func(_ *Unit, ut *UnitType) bool { return ut.Name == "infantry" })
	require.Len(t, infantry, 1)
	assert.Equal(t, "Hawaii", s.Locate(infantry[0]))
	assert.Equal(t, "", s.Locate("ghost"))
}
