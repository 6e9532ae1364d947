package battle

import (
	"context"
	"fmt"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// MustFightBattle is fought in rounds until one side is destroyed, a round limit is reached or the
// attacker retreats.
type MustFightBattle struct {
	Core
	// AmphibiousFrom maps sea zones to the land units that landed from them.
	AmphibiousFrom map[string][]string
}

// NewMustFightBattle creates a normal battle; defenders are every enemy unit in the site.
func NewMustFightBattle(site, attacker string, st *world.State, tracker *Tracker) *MustFightBattle {
	b := &MustFightBattle{
		AmphibiousFrom: make(map[string][]string),
	}
	b.init(site, attacker, TypeNormal, st, tracker)
	b.Defenders = combatDefenders(st, site, attacker)
	return b
}

func combatDefenders(st *world.State, site, attacker string) []string {
	return st.Matches(site, func(u *world.Unit, _ *world.UnitType) bool {
		return !u.Submerged && st.IsAtWar(attacker, u.Owner)
	})
}

// Kind implements Battle.
func (b *MustFightBattle) Kind() BattleKind { return KindMustFight }

// IsEmpty reports whether no attacker is left, alive or waiting to die.
func (b *MustFightBattle) IsEmpty() bool {
	return len(b.Attackers) == 0 && len(b.AttackersWaiting) == 0
}

// AmphibiousOrigins returns the sea zones land units attacked from.
func (b *MustFightBattle) AmphibiousOrigins() map[string][]string {
	if !b.IsAmphibiousAttack {
		return nil
	}
	out := make(map[string][]string, len(b.AmphibiousFrom))
	for from, units := range b.AmphibiousFrom {
		out[from] = append([]string(nil), units...)
	}
	return out
}

// AddBombardingUnits registers ships that bombard the site in the first round.
func (b *MustFightBattle) AddBombardingUnits(units ...string) {
	b.Bombarding = appendUnique(b.Bombarding, units...)
}

// AddAttackChange adds units moving in along route. Land units unloading from a sea zone make the
// battle amphibious and are flagged so marines get their bonus.
func (b *MustFightBattle) AddAttackChange(route world.Route, units []string, _ map[string][]string) world.Change {
	st := b.state
	var change world.Change
	b.recordAttackingFrom(route, units)
	b.Attackers = appendUnique(b.Attackers, units...)

	b.trackCargo(st, units)

	if route.IsUnload(st) {
		if land := st.Filter(units, isLand); len(land) > 0 {
			from := route.TerritoryBeforeEnd()
			b.IsAmphibiousAttack = true
			b.AmphibiousFrom[from] = appendUnique(b.AmphibiousFrom[from], land...)
			b.AmphibiousLandAttackers = appendUnique(b.AmphibiousLandAttackers, land...)
			change.Add(world.SetUnitBool(land, world.PropWasAmphibious, true))
		}
	}
	return change
}

// RemoveAttack takes units back out of the battle, e.g. when their move is undone.
func (b *MustFightBattle) RemoveAttack(route world.Route, units []string) world.Change {
	st := b.state
	var change world.Change
	b.Attackers = without(b.Attackers, units)
	b.forgetAttackingFrom(route, units)
	for transport, cargo := range b.Dependents {
		if left := without(cargo, units); len(left) > 0 {
			b.Dependents[transport] = left
		} else {
			delete(b.Dependents, transport)
		}
	}

	land := st.Filter(units, isLand)
	if route.IsUnload(st) && len(land) > 0 {
		from := route.TerritoryBeforeEnd()
		b.AmphibiousLandAttackers = without(b.AmphibiousLandAttackers, land)
		if left := without(b.AmphibiousFrom[from], land); len(left) > 0 {
			b.AmphibiousFrom[from] = left
		} else {
			delete(b.AmphibiousFrom, from)
		}
		b.IsAmphibiousAttack = len(b.AmphibiousFrom) > 0
		change.Add(world.SetUnitBool(land, world.PropWasAmphibious, false))
	}
	return change
}

// UnitsLostInPrecedingBattle removes attackers (and their cargo) that died or withdrew in a battle
// this one depended on. Losing every amphibious lander also calls off the bombardment; losing
// every attacker ends the battle as lost.
func (b *MustFightBattle) UnitsLostInPrecedingBattle(ctx context.Context, br Bridge, units []string, withdrawn bool) error {
	st := br.State()
	lost := b.DependentUnits(units)
	for _, id := range units {
		if containsID(b.Attackers, id) {
			lost = appendUnique(lost, id)
		}
	}
	if len(lost) == 0 {
		return nil
	}

	b.AmphibiousLandAttackers = without(b.AmphibiousLandAttackers, lost)
	for from, landed := range b.AmphibiousFrom {
		if left := without(landed, lost); len(left) > 0 {
			b.AmphibiousFrom[from] = left
		} else {
			delete(b.AmphibiousFrom, from)
		}
	}
	if b.IsAmphibiousAttack && len(b.AmphibiousLandAttackers) == 0 {
		b.IsAmphibiousAttack = false
		b.Bombarding = nil
	}
	b.Attackers = without(b.Attackers, lost)

	if !withdrawn {
		here := st.Filter(lost, func(u *world.Unit, _ *world.UnitType) bool { return st.Exists(u.ID, b.Site) })
		if len(here) > 0 {
			if err := b.removeUnits(ctx, br, here); err != nil {
				return err
			}
		}
	}

	if len(b.Attackers) == 0 && !b.Over {
		b.Over = true
		b.Outcome = Defender
		b.Result = ResultLost
		b.Stack.Clear()
		br.History().AddChildToEvent(fmt.Sprintf("Attack on %s called off, no attackers left", b.Site), nil)
		if b.tracker != nil {
			b.tracker.Records.AddResult(b.AttackingPlayer, b.BattleID, b.DefendingPlayer, b.AttackerLostTUV, b.DefenderLostTUV, ResultLost)
			b.tracker.removeBattleID(b.BattleID)
		}
	}
	return nil
}

// Cancel implements Battle.
func (b *MustFightBattle) Cancel(_ context.Context, br Bridge) error {
	b.cancel(br)
	return nil
}

func (b *MustFightBattle) title() string {
	return fmt.Sprintf("%s attack %s in %s", b.AttackingPlayer, b.DefendingPlayer, b.Site)
}

func (b *MustFightBattle) isWater(st *world.State) bool {
	t := st.Territory(b.Site)
	return t != nil && t.Water
}

// Fight starts the battle, or resumes it where a suspension left it.
func (b *MustFightBattle) Fight(ctx context.Context, br Bridge) error {
	if b.Over {
		return nil
	}
	st := br.State()
	b.removeUnitsThatNoLongerExist(st)
	if b.Stack.IsExecuting() {
		b.showBattle(br, b.title(), b.roundSteps(st, br.Rules(), b.Round == 1))
		return b.execute(ctx, br, b.runStep)
	}

	br.History().StartEvent("Battle in " + b.Site)
	b.Defenders = combatDefenders(st, b.Site, b.AttackingPlayer)
	b.MaxRounds = br.Rules().roundLimit(b.isWater(st))
	b.removeNonCombatants(br, true)
	b.publish(br, history.EventBattleStarted, b.AttackingPlayer, 0, b.Attackers)
	b.logger(br).Info("battle started",
		zap.String("attacker", b.AttackingPlayer),
		zap.String("defender", b.DefendingPlayer),
		zap.Int("attackers", len(b.Attackers)),
		zap.Int("defenders", len(b.Defenders)),
	)

	if len(st.Filter(b.Attackers, notInfra)) == 0 {
		return b.defenderWins(ctx, br)
	}
	if len(st.Filter(b.Defenders, notInfra)) == 0 {
		return b.attackerWins(ctx, br)
	}
	b.showBattle(br, b.title(), b.roundSteps(st, br.Rules(), true))
	b.Stack.Push(Step{Kind: StepFightLoop, FirstRun: true})
	return b.execute(ctx, br, b.runStep)
}

// attackerWins takes the territory over when land units survive; air alone cannot conquer.
func (b *MustFightBattle) attackerWins(ctx context.Context, br Bridge) error {
	st := br.State()
	result := ResultWonWithoutConquering
	if st.Any(b.Attackers, notAir) {
		result = ResultConquered
		if !b.Headless && b.tracker != nil {
			if t := st.Territory(b.Site); t != nil && !t.Water && st.IsAtWar(b.AttackingPlayer, t.Owner) {
				b.tracker.AddToConquered(b.Site)
			}
			if err := b.tracker.TakeOver(br, b.Site, b.AttackingPlayer, b.Attackers); err != nil {
				return err
			}
		}
	}
	if landed := st.Filter(b.AmphibiousLandAttackers, func(u *world.Unit, _ *world.UnitType) bool { return u.TransportedBy != "" }); len(landed) > 0 {
		var change world.Change
		change.Add(world.SetUnitString(landed, world.PropTransportedBy, ""))
		if err := br.AddChange(change); err != nil {
			return fmt.Errorf("unload amphibious attackers: %w", err)
		}
	}
	br.History().AddChildToEvent(b.AttackingPlayer+" win", b.Attackers)
	return b.finish(ctx, br, Attacker, result, b.AttackingPlayer+" win")
}

// defenderWins may hand an abandoned territory to whoever still stands in it.
func (b *MustFightBattle) defenderWins(ctx context.Context, br Bridge) error {
	st := br.State()
	if br.Rules().AbandonedTerritoriesMayBeTakenOverImmediately && !b.Headless && b.tracker != nil && !b.isWater(st) {
		owner := st.Territory(b.Site).Owner
		defenders := st.Filter(b.Defenders, notInfra)
		if len(defenders) == 0 {
			remaining := st.Matches(b.Site, notInfra)
			if taker := playerWithMostUnits(st, remaining); taker != "" && st.IsAtWar(taker, owner) {
				br.History().AddChildToEvent(fmt.Sprintf("%s takes over %s as there are no defenders left", taker, b.Site), remaining)
				if err := b.tracker.TakeOver(br, b.Site, taker, remaining); err != nil {
					return err
				}
			}
		} else if st.IsAtWar(b.DefendingPlayer, owner) {
			if err := b.tracker.TakeOver(br, b.Site, b.DefendingPlayer, defenders); err != nil {
				return err
			}
		}
	}
	b.checkDefendingPlanesCanLand(br)
	return b.finish(ctx, br, Defender, ResultLost, b.DefendingPlayer+" win")
}

func (b *MustFightBattle) nobodyWins(ctx context.Context, br Bridge) error {
	b.checkDefendingPlanesCanLand(br)
	return b.finish(ctx, br, Draw, ResultStalemate, "Stalemate")
}

// checkDefendingPlanesCanLand records defending air in a sea zone with neither carrier room nor
// friendly land next door; the delegate destroys it at the end of combat.
func (b *MustFightBattle) checkDefendingPlanesCanLand(br Bridge) {
	st := br.State()
	if b.Headless || b.tracker == nil || !b.isWater(st) {
		return
	}
	air := st.Filter(b.Defenders, func(u *world.Unit, ut *world.UnitType) bool { return ut.IsAir && !u.WasScrambled })
	if len(air) == 0 {
		return
	}
	capacity, needed := 0, 0
	for _, id := range st.Filter(b.Defenders, isSea) {
		capacity += st.TypeOf(id).CarrierCapacity
	}
	for _, id := range air {
		needed += st.TypeOf(id).CarrierCost
	}
	if needed <= capacity {
		return
	}
	landable := st.Neighbors(b.Site, func(t *world.Territory) bool {
		return !t.Water && st.IsAllied(t.Owner, b.DefendingPlayer) && !b.tracker.WasConquered(t.Name)
	})
	if len(landable) > 0 {
		return
	}
	b.tracker.DefendingAirThatCanNotLand[b.Site] = appendUnique(b.tracker.DefendingAirThatCanNotLand[b.Site], air...)
}

func playerWithMostUnits(st *world.State, units []string) string {
	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, id := range units {
		owner := st.OwnerOf(id)
		counts[owner]++
		if counts[owner] > bestCount || (counts[owner] == bestCount && owner < best) {
			best, bestCount = owner, counts[owner]
		}
	}
	return best
}
