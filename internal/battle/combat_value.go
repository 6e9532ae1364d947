package battle

import (
	"sort"
	"strconv"
	"strings"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/world"
)

// fireKind selects which strength table a volley uses.
type fireKind int

const (
	fireNormal fireKind = iota
	fireBombard
	fireAirBattle
	fireAA
)

// combatValue computes strength and dice count of units for one side and situation.
type combatValue struct {
	state    *world.State
	rules    Rules
	defender bool
	kind     fireKind
}

func newCombatValue(st *world.State, rules Rules, defender bool, kind fireKind) combatValue {
	return combatValue{state: st, rules: rules, defender: defender, kind: kind}
}

// strength is clamped to the dice sides.
func (cv combatValue) strength(id string) int {
	u := cv.state.Unit(id)
	ut := cv.state.TypeOf(id)
	if u == nil {
		return 0
	}
	var s int
	switch cv.kind {
	case fireBombard:
		s = ut.Bombard
	case fireAirBattle:
		if cv.defender {
			s = ut.AirDefense
		} else {
			s = ut.AirAttack
		}
	case fireAA:
		s = ut.AAAttack
	default:
		if cv.defender {
			s = ut.Defense
			if ut.IsSuicideOnDefense && cv.rules.DefendingSuicideAndMunitionUnitsDoNotFire {
				s = 0
			}
		} else {
			s = ut.Attack
			if u.WasAmphibious && ut.IsMarine != 0 {
				s += ut.IsMarine
			}
		}
	}
	if s < 0 {
		s = 0
	}
	if sides := cv.state.DiceSides; sides > 0 && s > sides {
		s = sides
	}
	return s
}

func (cv combatValue) rolls(id string) int {
	ut := cv.state.TypeOf(id)
	switch cv.kind {
	case fireBombard, fireAirBattle:
		return 1
	case fireAA:
		return ut.AARolls
	}
	if cv.defender {
		return ut.DefenseRolls
	}
	return ut.AttackRolls
}

func (cv combatValue) power(id string) dice.Power {
	return dice.Power{Strength: cv.strength(id), Rolls: cv.rolls(id)}
}

func (cv combatValue) powers(ids []string) []dice.Power {
	out := make([]dice.Power, 0, len(ids))
	for _, id := range ids {
		out = append(out, cv.power(id))
	}
	return out
}

// canFire reports whether the unit would throw at least one die that can hit.
func (cv combatValue) canFire(id string) bool {
	p := cv.power(id)
	return p.Strength > 0 && p.Rolls > 0
}

// totalPower sums strength times rolls of the units.
func (cv combatValue) totalPower(ids []string) int {
	return dice.TotalPower(cv.powers(ids))
}

// canHit reports whether a unit of the firing type may take a target of the given type as casualty.
// Submarines never hit air, and with restricted air attack air needs a friendly destroyer to hit
// submarines.
func canHit(rules Rules, firing, target *world.UnitType, firingSideHasDestroyer bool) bool {
	if firing.IsFirstStrike && firing.IsSea && target.IsAir {
		return false
	}
	if firing.IsAir && target.IsFirstStrike && target.IsSea && rules.AirAttackSubRestricted && !firingSideHasDestroyer {
		return false
	}
	return true
}

// unit predicates shared by the battle variants

func isAir(_ *world.Unit, ut *world.UnitType) bool { return ut.IsAir }

func isSea(_ *world.Unit, ut *world.UnitType) bool { return ut.IsSea }

func isLand(_ *world.Unit, ut *world.UnitType) bool { return ut.IsLand() }

func notAir(_ *world.Unit, ut *world.UnitType) bool { return !ut.IsAir }

func notInfra(_ *world.Unit, ut *world.UnitType) bool { return !ut.IsInfrastructure }

func isFirstStrike(_ *world.Unit, ut *world.UnitType) bool { return ut.IsFirstStrike }

func isDestroyer(_ *world.Unit, ut *world.UnitType) bool { return ut.IsDestroyer }

func isTransportOnly(_ *world.Unit, ut *world.UnitType) bool {
	return ut.IsSeaTransport && ut.Attack == 0 && ut.Defense == 0
}

func isStrategicBomber(_ *world.Unit, ut *world.UnitType) bool { return ut.IsStrategicBomber }

func canBeDamaged(_ *world.Unit, ut *world.UnitType) bool { return ut.CanBeDamaged }

// describeUnits renders ids as "2 infantry, 1 armour" for history lines.
func describeUnits(st *world.State, ids []string) string {
	counts := make(map[string]int)
	for _, id := range ids {
		counts[st.TypeOf(id).Name]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		label := name
		if label == "" {
			label = "unknown"
		}
		parts = append(parts, strconv.Itoa(counts[name])+" "+label)
	}
	if len(parts) == 0 {
		return "no units"
	}
	return strings.Join(parts, ", ")
}
