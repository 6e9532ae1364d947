package world

import (
	"math"

	"gopkg.in/yaml.v3"
)

// Unlimited is the sentinel for airbase scramble and intercept capacity that has no cap.
const Unlimited = math.MaxInt

// UnitType holds the static attributes the battle engine reads for a kind of unit.
type UnitType struct {
	Name         string `yaml:"name"`
	Cost         int    `yaml:"cost"`
	Attack       int    `yaml:"attack"`
	Defense      int    `yaml:"defense"`
	AttackRolls  int    `yaml:"attack_rolls"`
	DefenseRolls int    `yaml:"defense_rolls"`
	HitPoints    int    `yaml:"hit_points"`
	Movement     int    `yaml:"movement"`

	IsAir            bool `yaml:"air"`
	IsSea            bool `yaml:"sea"`
	IsInfrastructure bool `yaml:"infrastructure"`
	IsMarine         int  `yaml:"marine"`

	IsFirstStrike bool `yaml:"first_strike"`
	CanEvade      bool `yaml:"can_evade"`
	IsDestroyer   bool `yaml:"destroyer"`

	IsSeaTransport    bool `yaml:"sea_transport"`
	TransportCapacity int  `yaml:"transport_capacity"`
	TransportCost     int  `yaml:"transport_cost"`
	IsAirTransport    bool `yaml:"air_transport"`
	CarrierCapacity   int  `yaml:"carrier_capacity"`
	CarrierCost       int  `yaml:"carrier_cost"`

	Bombard            int  `yaml:"bombard"`
	IsSuicideOnAttack  bool `yaml:"suicide_on_attack"`
	IsSuicideOnDefense bool `yaml:"suicide_on_defense"`

	IsStrategicBomber  bool `yaml:"strategic_bomber"`
	BombingMaxDieSides int  `yaml:"bombing_max_die_sides"`
	BombingBonus       int  `yaml:"bombing_bonus"`
	ChooseBestRoll     bool `yaml:"choose_best_roll"`

	CanBeDamaged                bool   `yaml:"can_be_damaged"`
	MaxDamage                   int    `yaml:"max_damage"`
	CanDieFromReachingMaxDamage bool   `yaml:"can_die_from_max_damage"`
	WhenDamagedChangesInto      string `yaml:"when_damaged_changes_into"`

	IsAA                     bool     `yaml:"aa"`
	AAType                   string   `yaml:"aa_type"`
	AAAttack                 int      `yaml:"aa_attack"`
	AARolls                  int      `yaml:"aa_rolls"`
	AATargets                []string `yaml:"aa_targets"`
	AAForCombat              bool     `yaml:"aa_for_combat"`
	AAForBombing             bool     `yaml:"aa_for_bombing"`
	AAForBombingThisUnitOnly bool     `yaml:"aa_for_bombing_this_unit_only"`

	CanAirBattle               bool `yaml:"can_air_battle"`
	AirAttack                  int  `yaml:"air_attack"`
	AirDefense                 int  `yaml:"air_defense"`
	CanIntercept               bool `yaml:"can_intercept"`
	RequiresAirBaseToIntercept bool `yaml:"requires_air_base_to_intercept"`

	IsAirBase           bool `yaml:"air_base"`
	MaxScrambleCount    int  `yaml:"max_scramble_count"`
	MaxInterceptCount   int  `yaml:"max_intercept_count"`
	CanScramble         bool `yaml:"can_scramble"`
	MaxScrambleDistance int  `yaml:"max_scramble_distance"`
	FuelCost            int  `yaml:"fuel_cost"`

	IsCapturable          bool `yaml:"capturable"`
	DestroyedWhenCaptured bool `yaml:"destroyed_when_captured"`
}

// UnmarshalYAML fills the defaults a map author can omit.
func (ut *UnitType) UnmarshalYAML(value *yaml.Node) error {
	type plain UnitType
	p := plain{
		AttackRolls:        1,
		DefenseRolls:       1,
		HitPoints:          1,
		AARolls:            1,
		BombingMaxDieSides: -1,
		MaxScrambleCount:   -1,
		MaxInterceptCount:  -1,
		AAForCombat:        true,
		AAForBombing:       true,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*ut = UnitType(p)
	if ut.AAType == "" && ut.IsAA {
		ut.AAType = "AA"
	}
	return nil
}

// CanBombard reports whether the type supports shore bombardment.
func (ut *UnitType) CanBombard() bool {
	return ut.Bombard > 0
}

// IsLand reports whether the type is neither air nor sea.
func (ut *UnitType) IsLand() bool {
	return !ut.IsAir && !ut.IsSea
}

// Targets reports whether an AA of this type may fire at the given unit type.
func (ut *UnitType) Targets(target *UnitType) bool {
	if len(ut.AATargets) == 0 {
		return target.IsAir
	}
	for _, name := range ut.AATargets {
		if name == target.Name {
			return true
		}
	}
	return false
}

// Unit is a single piece on the map.
type Unit struct {
	ID    string
	Type  string
	Owner string

	Hits          int
	BombingDamage int

	WasScrambled   bool
	WasInAirBattle bool
	WasAmphibious  bool
	Submerged      bool
	Disabled       bool

	OriginatedFrom string
	TransportedBy  string

	// MaxScrambleCount is the remaining scramble capacity of an airbase; -1 is unlimited.
	MaxScrambleCount int
}

// Clone returns a copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	return &c
}

// HitPointsLeft returns how many more hits the unit can absorb before dying.
func (u *Unit) HitPointsLeft(ut *UnitType) int {
	return ut.HitPoints - u.Hits
}

// DamageCapacityLeft returns how much more bombing damage the unit can take.
func (u *Unit) DamageCapacityLeft(ut *UnitType) int {
	if !ut.CanBeDamaged {
		return 0
	}
	left := ut.MaxDamage - u.BombingDamage
	if left < 0 {
		return 0
	}
	return left
}

// AtMaxDamage reports whether the unit has absorbed all the bombing damage it can.
func (u *Unit) AtMaxDamage(ut *UnitType) bool {
	return !ut.CanBeDamaged || u.BombingDamage >= ut.MaxDamage
}
