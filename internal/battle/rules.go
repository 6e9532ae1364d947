package battle

// Rules is the game-property table the battle engine consults. Field tags let the config layer
// decode it straight from YAML or environment overrides.
type Rules struct {
	// Round limits; -1 means unlimited.
	LandBattleRounds int `mapstructure:"land_battle_rounds"`
	SeaBattleRounds  int `mapstructure:"sea_battle_rounds"`
	AirBattleRounds  int `mapstructure:"air_battle_rounds"`

	LowLuck           bool `mapstructure:"low_luck"`
	LowLuckDamageOnly bool `mapstructure:"low_luck_damage_only"`
	WW2V2             bool `mapstructure:"ww2v2"`
	WW2V3             bool `mapstructure:"ww2v3"`

	DefendingSubsSneakAttack                  bool `mapstructure:"defending_subs_sneak_attack"`
	SubRetreatBeforeBattle                    bool `mapstructure:"sub_retreat_before_battle"`
	SubmersibleSubs                           bool `mapstructure:"submersible_subs"`
	SubmarinesDefendingMaySubmergeOrRetreat   bool `mapstructure:"submarines_defending_may_submerge_or_retreat"`
	TransportCasualtiesRestricted             bool `mapstructure:"transport_casualties_restricted"`
	AirAttackSubRestricted                    bool `mapstructure:"air_attack_sub_restricted"`
	AlliedAirIndependent                      bool `mapstructure:"allied_air_independent"`
	NavalBombardCasualtiesReturnFire          bool `mapstructure:"naval_bombard_casualties_return_fire"`
	SuicideAndMunitionCasualtiesRestricted    bool `mapstructure:"suicide_and_munition_casualties_restricted"`
	DefendingSuicideAndMunitionUnitsDoNotFire bool `mapstructure:"defending_suicide_and_munition_units_do_not_fire"`
	ShoreBombardPerGroundUnit                 bool `mapstructure:"shore_bombard_per_ground_unit"`

	AttackerRetreatPlanes            bool `mapstructure:"attacker_retreat_planes"`
	PartialAmphibiousRetreat         bool `mapstructure:"partial_amphibious_retreat"`
	RetreatingUnitsRemainInPlace     bool `mapstructure:"retreating_units_remain_in_place"`
	RetreatExcludesFoughtTerritories bool `mapstructure:"retreat_excludes_fought_territories"`

	RaidsMayBePreceededByAirBattles   bool `mapstructure:"raids_may_be_preceded_by_air_battles"`
	BattlesMayBePreceededByAirBattles bool `mapstructure:"battles_may_be_preceded_by_air_battles"`
	AirBattleAttackersCanRetreat      bool `mapstructure:"air_battle_attackers_can_retreat"`
	AirBattleDefendersCanRetreat      bool `mapstructure:"air_battle_defenders_can_retreat"`

	ScrambleRulesInEffect      bool `mapstructure:"scramble_rules_in_effect"`
	ScrambledUnitsReturnToBase bool `mapstructure:"scrambled_units_return_to_base"`
	ScrambleToSeaOnly          bool `mapstructure:"scramble_to_sea_only"`
	ScrambleFuelCheck          bool `mapstructure:"scramble_fuel_check"`

	UseBombingMaxDiceSidesAndBonus                   bool `mapstructure:"use_bombing_max_dice_sides_and_bonus"`
	LHTRHeavyBombers                                 bool `mapstructure:"lhtr_heavy_bombers"`
	LimitSBRDamageToProduction                       bool `mapstructure:"limit_sbr_damage_to_production"`
	LimitSBRDamagePerTurn                            bool `mapstructure:"limit_sbr_damage_per_turn"`
	PUCap                                            bool `mapstructure:"pu_cap"`
	DamageFromBombingDoneToUnitsInsteadOfTerritories bool `mapstructure:"damage_from_bombing_done_to_units"`
	PUMultiplier                                     int  `mapstructure:"pu_multiplier"`

	AbandonedTerritoriesMayBeTakenOverImmediately bool `mapstructure:"abandoned_territories_may_be_taken_over_immediately"`
	ChooseAACasualties                            bool `mapstructure:"choose_aa_casualties"`
}

// DefaultRules returns the classic rule set: unlimited land and sea rounds, one air battle round.
func DefaultRules() Rules {
	return Rules{
		LandBattleRounds:     -1,
		SeaBattleRounds:      -1,
		AirBattleRounds:      1,
		AlliedAirIndependent: true,
		PUMultiplier:         1,
	}
}

func (r Rules) roundLimit(water bool) int {
	if water {
		return r.SeaBattleRounds
	}
	return r.LandBattleRounds
}
