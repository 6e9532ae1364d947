package battle

// StepKind names one resumable unit of battle work.
type StepKind int

const (
	StepFightLoop StepKind = iota
	StepFireAA
	StepRoll
	StepSelectCasualties
	StepNotifyCasualties
	StepRemoveNonCombatants
	StepBombard
	StepSuicideAttack
	StepSuicideDefend
	StepLandParatroopers
	StepSubmergeBeforeBattle
	StepRemoveUndefendedTransports
	StepSubmergeVsOnlyAir
	StepFirstStrike
	StepFire
	StepClearCasualties
	StepRemoveSuicide
	StepCheckEnd
	StepSubRetreat
	StepPlaneRetreat
	StepPartialAmphibiousRetreat
	StepRetreat
	StepRoundAdvance
	StepInterceptorsLaunch
	StepRaidRoll
	StepRaidDamage
	StepRaidEnd
)

var stepKindNames = map[StepKind]string{
	StepFightLoop:                  "FIGHT_LOOP",
	StepFireAA:                     "FIRE_AA",
	StepRoll:                       "ROLL_DICE",
	StepSelectCasualties:           "SELECT_CASUALTIES",
	StepNotifyCasualties:           "NOTIFY_CASUALTIES",
	StepRemoveNonCombatants:        "REMOVE_NON_COMBATANTS",
	StepBombard:                    "NAVAL_BOMBARD",
	StepSuicideAttack:              "SUICIDE_ATTACK",
	StepSuicideDefend:              "SUICIDE_DEFEND",
	StepLandParatroopers:           "LAND_PARATROOPERS",
	StepSubmergeBeforeBattle:       "SUBMERGE_BEFORE_BATTLE",
	StepRemoveUndefendedTransports: "REMOVE_UNDEFENDED_TRANSPORTS",
	StepSubmergeVsOnlyAir:          "SUBMERGE_VS_ONLY_AIR",
	StepFirstStrike:                "FIRST_STRIKE",
	StepFire:                       "FIRE",
	StepClearCasualties:            "CLEAR_CASUALTIES",
	StepRemoveSuicide:              "REMOVE_SUICIDE",
	StepCheckEnd:                   "CHECK_END",
	StepSubRetreat:                 "SUB_RETREAT",
	StepPlaneRetreat:               "PLANE_RETREAT",
	StepPartialAmphibiousRetreat:   "PARTIAL_AMPHIBIOUS_RETREAT",
	StepRetreat:                    "RETREAT",
	StepRoundAdvance:               "ROUND_ADVANCE",
	StepInterceptorsLaunch:         "INTERCEPTORS_LAUNCH",
	StepRaidRoll:                   "RAID_ROLL",
	StepRaidDamage:                 "RAID_DAMAGE",
	StepRaidEnd:                    "RAID_END",
}

// String returns the step kind name.
func (k StepKind) String() string {
	if name, ok := stepKindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Firing groups carried in Step.Group.
const (
	groupFirstStrike  = "first_strike"
	groupAirOnNonSubs = "air_on_non_subs"
	groupGeneral      = "general"
)

// Step is a serializable descriptor of pending work. Steps hold no closures; the battle that owns
// the stack interprets them, so a saved stack can be executed by a restored battle.
type Step struct {
	Kind     StepKind
	Defender bool
	// FirstRun marks the opening fight loop of a battle.
	FirstRun bool
	// Group is the firing group for fire steps.
	Group string
	// Fire is the id of the in-flight FireState for roll/select/notify steps.
	Fire   string
	AAType string
	// Name is the display name of the step, also listed to the UI.
	Name string
}

// StepResult tells the stack whether a step finished or must be retried after a suspension.
type StepResult int

const (
	StepCompleted StepResult = iota
	StepSuspended
)
