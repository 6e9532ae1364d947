package world

import (
	"fmt"
	"strings"
)

// OpKind identifies a single state mutation.
type OpKind int

const (
	OpMoveUnits OpKind = iota
	OpRemoveUnits
	OpAddUnits
	OpUnitProperty
	OpTerritoryOwner
	OpUnitOwner
	OpResource
	OpTerritoryDamage
)

// String returns the name of the op kind.
func (k OpKind) String() string {
	switch k {
	case OpMoveUnits:
		return "MOVE_UNITS"
	case OpRemoveUnits:
		return "REMOVE_UNITS"
	case OpAddUnits:
		return "ADD_UNITS"
	case OpUnitProperty:
		return "UNIT_PROPERTY"
	case OpTerritoryOwner:
		return "TERRITORY_OWNER"
	case OpUnitOwner:
		return "UNIT_OWNER"
	case OpResource:
		return "RESOURCE"
	case OpTerritoryDamage:
		return "TERRITORY_DAMAGE"
	default:
		return "UNKNOWN"
	}
}

// Unit property names accepted by OpUnitProperty.
const (
	PropHits             = "hits"
	PropBombingDamage    = "bombingDamage"
	PropWasScrambled     = "wasScrambled"
	PropWasInAirBattle   = "wasInAirBattle"
	PropWasAmphibious    = "wasAmphibious"
	PropSubmerged        = "submerged"
	PropDisabled         = "disabled"
	PropOriginatedFrom   = "originatedFrom"
	PropTransportedBy    = "transportedBy"
	PropMaxScrambleCount = "maxScrambleCount"
)

// Op is one serializable mutation of the state.
type Op struct {
	Kind      OpKind
	From      string
	To        string
	Units     []string
	NewUnits  []Unit
	Property  string
	IntValue  int
	BoolValue bool
	StrValue  string
	Player    string
	Resource  string
}

// Change is an ordered list of mutations applied atomically by the caller.
type Change struct {
	Ops []Op
}

// IsEmpty reports whether the change does nothing.
func (c Change) IsEmpty() bool {
	return len(c.Ops) == 0
}

// Add appends ops to the change.
func (c *Change) Add(ops ...Op) {
	c.Ops = append(c.Ops, ops...)
}

// Merge appends every op of other.
func (c *Change) Merge(other Change) {
	c.Ops = append(c.Ops, other.Ops...)
}

// String summarises the change for logs.
func (c Change) String() string {
	parts := make([]string, 0, len(c.Ops))
	for _, op := range c.Ops {
		parts = append(parts, op.Kind.String())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// MoveUnits moves the units between territories.
func MoveUnits(from, to string, units []string) Op {
	return Op{Kind: OpMoveUnits, From: from, To: to, Units: copyIDs(units)}
}

// RemoveUnits deletes the units from the territory and the state.
func RemoveUnits(territory string, units []string) Op {
	return Op{Kind: OpRemoveUnits, From: territory, Units: copyIDs(units)}
}

// AddUnits creates the given units in the territory.
func AddUnits(territory string, units []Unit) Op {
	cpy := make([]Unit, len(units))
	copy(cpy, units)
	return Op{Kind: OpAddUnits, To: territory, NewUnits: cpy}
}

// SetUnitInt sets an integer unit property.
func SetUnitInt(unit, property string, value int) Op {
	return Op{Kind: OpUnitProperty, Units: []string{unit}, Property: property, IntValue: value}
}

// SetUnitBool sets a boolean unit property on every unit.
func SetUnitBool(units []string, property string, value bool) Op {
	return Op{Kind: OpUnitProperty, Units: copyIDs(units), Property: property, BoolValue: value}
}

// SetUnitString sets a string unit property on every unit.
func SetUnitString(units []string, property, value string) Op {
	return Op{Kind: OpUnitProperty, Units: copyIDs(units), Property: property, StrValue: value}
}

// ChangeTerritoryOwner transfers ownership of a territory.
func ChangeTerritoryOwner(territory, player string) Op {
	return Op{Kind: OpTerritoryOwner, To: territory, Player: player}
}

// ChangeUnitOwner transfers ownership of units.
func ChangeUnitOwner(units []string, player string) Op {
	return Op{Kind: OpUnitOwner, Units: copyIDs(units), Player: player}
}

// ChangeResource adds delta (possibly negative) of the resource to the player.
func ChangeResource(player, resource string, delta int) Op {
	return Op{Kind: OpResource, Player: player, Resource: resource, IntValue: delta}
}

// AddTerritoryDamage records bombing damage a territory took this turn.
func AddTerritoryDamage(territory string, amount int) Op {
	return Op{Kind: OpTerritoryDamage, To: territory, IntValue: amount}
}

// Apply performs every op in order against the state.
func (c Change) Apply(s *State) error {
	for i, op := range c.Ops {
		if err := op.apply(s); err != nil {
			return fmt.Errorf("apply op %d (%s): %w", i, op.Kind, err)
		}
	}
	return nil
}

func (op Op) apply(s *State) error {
	switch op.Kind {
	case OpMoveUnits:
		from, to := s.Territories[op.From], s.Territories[op.To]
		if from == nil || to == nil {
			return fmt.Errorf("%w: %s -> %s", ErrUnknownTerritory, op.From, op.To)
		}
		for _, id := range op.Units {
			if !from.removeUnit(id) {
				return fmt.Errorf("%w: %s not in %s", ErrUnknownUnit, id, op.From)
			}
			to.Units = append(to.Units, id)
		}
	case OpRemoveUnits:
		t := s.Territories[op.From]
		if t == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTerritory, op.From)
		}
		for _, id := range op.Units {
			t.removeUnit(id)
			delete(s.Units, id)
		}
	case OpAddUnits:
		t := s.Territories[op.To]
		if t == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTerritory, op.To)
		}
		for i := range op.NewUnits {
			u := op.NewUnits[i]
			s.Units[u.ID] = &u
			t.Units = append(t.Units, u.ID)
		}
	case OpUnitProperty:
		for _, id := range op.Units {
			u := s.Units[id]
			if u == nil {
				return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
			}
			if err := setProperty(u, op); err != nil {
				return err
			}
		}
	case OpTerritoryOwner:
		t := s.Territories[op.To]
		if t == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTerritory, op.To)
		}
		t.Owner = op.Player
	case OpUnitOwner:
		for _, id := range op.Units {
			u := s.Units[id]
			if u == nil {
				return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
			}
			u.Owner = op.Player
		}
	case OpResource:
		p := s.Players[op.Player]
		if p == nil {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, op.Player)
		}
		if p.Resources == nil {
			p.Resources = make(map[string]int)
		}
		p.Resources[op.Resource] += op.IntValue
	case OpTerritoryDamage:
		if s.Territories[op.To] == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTerritory, op.To)
		}
		if s.PUsLost == nil {
			s.PUsLost = make(map[string]int)
		}
		s.PUsLost[op.To] += op.IntValue
	default:
		return fmt.Errorf("unsupported op kind %d", op.Kind)
	}
	return nil
}

func setProperty(u *Unit, op Op) error {
	switch op.Property {
	case PropHits:
		u.Hits = op.IntValue
	case PropBombingDamage:
		u.BombingDamage = op.IntValue
	case PropMaxScrambleCount:
		u.MaxScrambleCount = op.IntValue
	case PropWasScrambled:
		u.WasScrambled = op.BoolValue
	case PropWasInAirBattle:
		u.WasInAirBattle = op.BoolValue
	case PropWasAmphibious:
		u.WasAmphibious = op.BoolValue
	case PropSubmerged:
		u.Submerged = op.BoolValue
	case PropDisabled:
		u.Disabled = op.BoolValue
	case PropOriginatedFrom:
		u.OriginatedFrom = op.StrValue
	case PropTransportedBy:
		u.TransportedBy = op.StrValue
	default:
		return fmt.Errorf("unknown unit property %q", op.Property)
	}
	return nil
}

func copyIDs(ids []string) []string {
	cpy := make([]string, len(ids))
	copy(cpy, ids)
	return cpy
}
