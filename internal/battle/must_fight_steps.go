package battle

import (
	"context"
	"fmt"
	"sort"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
)

// subReturnFire decides whether units hit by submarines may still fire back this round. A side
// without destroyers cannot answer the other side's submarines.
func subReturnFire(st *world.State, rules Rules, attackers, defenders []string) (againstAttacking, againstDefending ReturnFire) {
	attackingSubsSneakAttack := !st.Any(defenders, isDestroyer)
	defendingSubsSneakAttack := !st.Any(attackers, isDestroyer) && (rules.WW2V2 || rules.DefendingSubsSneakAttack)

	switch {
	case !attackingSubsSneakAttack:
		againstAttacking = ReturnFireAll
	case defendingSubsSneakAttack || rules.WW2V2:
		againstAttacking = ReturnFireSubs
	default:
		againstAttacking = ReturnFireNone
	}
	switch {
	case !defendingSubsSneakAttack:
		againstDefending = ReturnFireAll
	case attackingSubsSneakAttack || rules.WW2V2:
		againstDefending = ReturnFireSubs
	default:
		againstDefending = ReturnFireNone
	}
	return againstAttacking, againstDefending
}

func aaTypeOf(ut *world.UnitType) string {
	if ut.AAType != "" {
		return ut.AAType
	}
	return ut.Name
}

func combatAA(u *world.Unit, ut *world.UnitType) bool {
	return ut.IsAA && ut.AAForCombat && !u.Disabled
}

// aaTypes lists the combat AA types among units that have a target among targets.
func aaTypes(st *world.State, units, targets []string) []string {
	var out []string
	for _, id := range st.Filter(units, combatAA) {
		ut := st.TypeOf(id)
		if st.Any(targets, func(_ *world.Unit, tt *world.UnitType) bool { return ut.Targets(tt) }) {
			out = appendUnique(out, aaTypeOf(ut))
		}
	}
	sort.Strings(out)
	return out
}

func suicideOnAttack(_ *world.Unit, ut *world.UnitType) bool { return ut.IsSuicideOnAttack }

func suicideOnDefense(_ *world.Unit, ut *world.UnitType) bool { return ut.IsSuicideOnDefense }

// roundSteps plans one round. Conditions are evaluated again when each step runs.
func (b *MustFightBattle) roundSteps(st *world.State, rules Rules, firstRun bool) []Step {
	att, def := b.AttackingPlayer, b.DefendingPlayer
	var steps []Step

	if firstRun {
		aa := 0
		for _, typ := range aaTypes(st, b.Attackers, b.Defenders) {
			steps = append(steps, Step{Kind: StepFireAA, AAType: typ, Name: att + " " + typ + " fire"})
			aa++
		}
		for _, typ := range aaTypes(st, b.Defenders, b.Attackers) {
			steps = append(steps, Step{Kind: StepFireAA, Defender: true, AAType: typ, Name: def + " " + typ + " fire"})
			aa++
		}
		if aa > 0 {
			steps = append(steps, Step{Kind: StepClearCasualties})
		}
	}
	if b.Round > 1 {
		steps = append(steps, Step{Kind: StepRemoveNonCombatants})
	}
	if firstRun {
		if b.IsAmphibiousAttack && len(b.Bombarding) > 0 {
			steps = append(steps, Step{Kind: StepBombard, Name: "Naval bombard"})
		}
		if st.Any(b.Attackers, suicideOnAttack) {
			steps = append(steps, Step{Kind: StepSuicideAttack, Name: att + " suicide attack"})
		}
		if st.Any(b.Defenders, suicideOnDefense) {
			steps = append(steps, Step{Kind: StepSuicideDefend, Defender: true, Name: def + " suicide defend"})
		}
		steps = append(steps, Step{Kind: StepRemoveNonCombatants})
		if len(b.paratroopers(st)) > 0 {
			steps = append(steps, Step{Kind: StepLandParatroopers, Name: att + " land paratroopers"})
		}
	}
	if rules.SubRetreatBeforeBattle {
		if b.canAttackerSubsWithdraw(st, rules) {
			steps = append(steps, Step{Kind: StepSubmergeBeforeBattle, Name: att + " subs withdraw"})
		}
		if b.canDefenderSubsWithdraw(st, rules) {
			steps = append(steps, Step{Kind: StepSubmergeBeforeBattle, Defender: true, Name: def + " subs withdraw"})
		}
	}
	if rules.TransportCasualtiesRestricted {
		steps = append(steps, Step{Kind: StepRemoveUndefendedTransports})
	}
	steps = append(steps, Step{Kind: StepSubmergeVsOnlyAir})
	steps = append(steps, b.fireSteps(st, rules)...)
	steps = append(steps, Step{Kind: StepClearCasualties, Name: "Remove casualties"})
	if st.Any(b.Attackers, suicideOnAttack) || st.Any(b.Defenders, suicideOnDefense) {
		steps = append(steps, Step{Kind: StepRemoveSuicide})
	}
	steps = append(steps, Step{Kind: StepCheckEnd})

	if !rules.SubRetreatBeforeBattle && b.canAttackerSubsWithdraw(st, rules) {
		steps = append(steps, Step{Kind: StepSubRetreat, Name: att + " subs withdraw"})
	}
	if b.canAttackerRetreatPlanes(st, rules) {
		steps = append(steps, Step{Kind: StepPlaneRetreat, Name: att + " planes withdraw"})
	}
	if b.canAttackerRetreatPartialAmphibious(st, rules) {
		steps = append(steps, Step{Kind: StepPartialAmphibiousRetreat, Name: att + " non-amphibious units withdraw"})
	}
	steps = append(steps, Step{Kind: StepRetreat, Name: att + " withdraw"})
	if !rules.SubRetreatBeforeBattle && b.canDefenderSubsWithdraw(st, rules) {
		steps = append(steps, Step{Kind: StepSubRetreat, Defender: true, Name: def + " subs withdraw"})
	}
	steps = append(steps, Step{Kind: StepRoundAdvance})
	return steps
}

// fireSteps orders the volleys of a round. Submarines that sneak attack fire before the units
// they hit can answer; otherwise they fire along with everything else.
func (b *MustFightBattle) fireSteps(st *world.State, rules Rules) []Step {
	att, def := b.AttackingPlayer, b.DefendingPlayer
	againstAttacking, againstDefending := subReturnFire(st, rules, b.Attackers, b.Defenders)
	defenderSubsFireFirst := againstAttacking == ReturnFireAll && againstDefending == ReturnFireNone
	sneakAttack := rules.WW2V2 || rules.DefendingSubsSneakAttack
	withAllDefenders := !defenderSubsFireFirst && !rules.WW2V2 && againstDefending == ReturnFireAll

	attackSubs := st.Any(b.Attackers, isFirstStrike)
	defendSubs := st.Any(b.Defenders, isFirstStrike)
	defendSubsStep := Step{Kind: StepFirstStrike, Defender: true, Group: groupFirstStrike, Name: def + " subs fire"}

	var steps []Step
	if defendSubs && defenderSubsFireFirst {
		steps = append(steps, defendSubsStep)
	}
	if attackSubs {
		steps = append(steps, Step{Kind: StepFirstStrike, Group: groupFirstStrike, Name: att + " subs fire"})
	}
	if defendSubs && sneakAttack && !defenderSubsFireFirst && !withAllDefenders {
		steps = append(steps, defendSubsStep)
	}
	if b.airSeparated(st, rules, false) {
		steps = append(steps, Step{Kind: StepFire, Group: groupAirOnNonSubs, Name: att + " air fire on non subs"})
	}
	steps = append(steps, Step{Kind: StepFire, Group: groupGeneral, Name: att + " fire"})
	if defendSubs && !defenderSubsFireFirst && (!sneakAttack || withAllDefenders) {
		steps = append(steps, defendSubsStep)
	}
	if b.airSeparated(st, rules, true) {
		steps = append(steps, Step{Kind: StepFire, Defender: true, Group: groupAirOnNonSubs, Name: def + " air fire on non subs"})
	}
	steps = append(steps, Step{Kind: StepFire, Defender: true, Group: groupGeneral, Name: def + " fire"})
	return steps
}

// airSeparated reports whether a side's air must fire on its own because it cannot hit the enemy
// submarines.
func (b *MustFightBattle) airSeparated(st *world.State, rules Rules, defender bool) bool {
	own, enemy := b.sides(defender)
	return rules.AirAttackSubRestricted && st.Any(own, isAir) && st.Any(enemy, isFirstStrike) && !st.Any(own, isDestroyer)
}

// sides returns the live units of the side and of its enemy.
func (b *MustFightBattle) sides(defender bool) (own, enemy []string) {
	if defender {
		return b.Defenders, b.Attackers
	}
	return b.Attackers, b.Defenders
}

func (b *MustFightBattle) players(defender bool) (firer, hit string) {
	if defender {
		return b.DefendingPlayer, b.AttackingPlayer
	}
	return b.AttackingPlayer, b.DefendingPlayer
}

func (b *MustFightBattle) runStep(ctx context.Context, br Bridge, step Step) error {
	switch step.Kind {
	case StepFightLoop:
		return b.startRound(br, step.FirstRun)
	case StepFireAA:
		b.fireAA(br, step)
	case StepRoll, StepSelectCasualties, StepNotifyCasualties:
		return b.runFireStep(ctx, br, step)
	case StepRemoveNonCombatants:
		b.removeNonCombatants(br, false)
	case StepBombard:
		b.bombard(br, step)
	case StepSuicideAttack, StepSuicideDefend:
		b.suicideFire(br, step)
	case StepLandParatroopers:
		return b.landParatroopers(br)
	case StepSubmergeBeforeBattle, StepSubRetreat:
		return b.subsWithdraw(ctx, br, step.Defender)
	case StepRemoveUndefendedTransports:
		if err := b.removeUndefendedTransports(ctx, br, false); err != nil {
			return err
		}
		return b.removeUndefendedTransports(ctx, br, true)
	case StepSubmergeVsOnlyAir:
		return b.submergeSubsVsOnlyAir(br)
	case StepFirstStrike, StepFire:
		b.fireGroup(br, step)
	case StepClearCasualties:
		return b.clearWaitingToDie(ctx, br)
	case StepRemoveSuicide:
		return b.removeSuicide(ctx, br)
	case StepCheckEnd:
		return b.checkEnd(ctx, br)
	case StepPlaneRetreat:
		return b.planeRetreat(ctx, br)
	case StepPartialAmphibiousRetreat:
		return b.partialAmphibiousRetreat(ctx, br)
	case StepRetreat:
		return b.attackerRetreat(ctx, br)
	case StepRoundAdvance:
		return b.advanceRound(br)
	default:
		return invariantf("step %s does not belong to a normal battle", step.Kind)
	}
	return nil
}

func (b *MustFightBattle) startRound(br Bridge, firstRun bool) error {
	st := br.State()
	steps := b.roundSteps(st, br.Rules(), firstRun)
	b.publish(br, history.EventRoundStarted, b.AttackingPlayer, b.Round, nil)
	if !b.Headless && !firstRun {
		b.showBattle(br, b.title(), steps)
	}
	b.Stack.PushReverse(steps)
	return nil
}

func (b *MustFightBattle) advanceRound(br Bridge) error {
	if !b.Stack.IsEmpty() {
		return invariantf("round %d ended with %d steps pending", b.Round, b.Stack.Len())
	}
	b.Round++
	if b.Round > maxRounds {
		return invariantf("battle in %s exceeded %d rounds", b.Site, maxRounds)
	}
	br.History().AddChildToEvent(fmt.Sprintf("Round %d", b.Round), nil)
	b.Stack.Push(Step{Kind: StepFightLoop})
	return nil
}

// removeNonCombatants drops units that take no part in the fighting: cargo in a sea battle,
// infrastructure, disabled or submerged units and ships in a land battle. AA survives the first
// removal so it can fire.
func (b *MustFightBattle) removeNonCombatants(br Bridge, keepAA bool) {
	st := br.State()
	water := b.isWater(st)
	keep := func(u *world.Unit, ut *world.UnitType) bool {
		switch {
		case u.Disabled || u.Submerged:
			return false
		case water && ut.IsLand():
			return false
		case !water && ut.IsSea:
			return false
		case keepAA && ut.IsAA && ut.AAForCombat:
			return true
		}
		return !ut.IsInfrastructure
	}
	prune := func(ids []string, player string) []string {
		kept := st.Filter(ids, keep)
		if removed := without(ids, kept); len(removed) > 0 && !b.Headless {
			br.Display().ChangedUnitsNotification(b.BattleID.String(), player, removed, nil)
		}
		return kept
	}
	b.Attackers = prune(b.Attackers, b.AttackingPlayer)
	b.Defenders = prune(b.Defenders, b.DefendingPlayer)
}

// fireTargets returns the enemies any of the firing units may take as casualty. Unescorted
// transports are spared while other targets remain when transport casualties are restricted.
func (b *MustFightBattle) fireTargets(st *world.State, rules Rules, firing, enemy []string, firingHasDestroyer bool) []string {
	targets := st.Filter(enemy, func(u *world.Unit, tt *world.UnitType) bool {
		if u.Submerged {
			return false
		}
		for _, id := range firing {
			if canHit(rules, st.TypeOf(id), tt, firingHasDestroyer) {
				return true
			}
		}
		return false
	})
	if rules.TransportCasualtiesRestricted {
		if others := st.Filter(targets, func(u *world.Unit, ut *world.UnitType) bool { return !isTransportOnly(u, ut) }); len(others) > 0 {
			return others
		}
	}
	return targets
}

func (b *MustFightBattle) fireGroup(br Bridge, step Step) {
	st, rules := br.State(), br.Rules()
	own, enemy := b.sides(step.Defender)
	waiting := b.AttackersWaiting
	if step.Defender {
		waiting = b.DefendersWaiting
	}
	all := append(append([]string(nil), own...), waiting...)
	hasDestroyer := st.Any(all, isDestroyer)
	separated := b.airSeparated(st, rules, step.Defender)
	suicide := suicideOnAttack
	if step.Defender {
		suicide = suicideOnDefense
	}

	var firing []string
	switch step.Group {
	case groupFirstStrike:
		firing = st.Filter(all, isFirstStrike)
	case groupAirOnNonSubs:
		firing = st.Filter(all, func(u *world.Unit, ut *world.UnitType) bool { return ut.IsAir && !ut.IsFirstStrike })
	default:
		firing = st.Filter(all, func(u *world.Unit, ut *world.UnitType) bool {
			return !ut.IsFirstStrike && !(separated && ut.IsAir) && !suicide(u, ut)
		})
	}
	cv := newCombatValue(st, rules, step.Defender, fireNormal)
	firing = st.Filter(firing, func(u *world.Unit, _ *world.UnitType) bool { return cv.canFire(u.ID) })
	targets := b.fireTargets(st, rules, firing, enemy, hasDestroyer)
	if step.Group == groupAirOnNonSubs {
		targets = st.Filter(targets, func(_ *world.Unit, ut *world.UnitType) bool { return !ut.IsFirstStrike })
	}
	if len(firing) == 0 || len(targets) == 0 {
		return
	}

	rf := ReturnFireAll
	if step.Group == groupFirstStrike {
		againstAttacking, againstDefending := subReturnFire(st, rules, b.Attackers, b.Defenders)
		rf = againstAttacking
		if step.Defender {
			rf = againstDefending
		}
	}
	firer, hit := b.players(step.Defender)
	b.Stack.PushReverse(b.newFire(&FireState{
		Defender:   step.Defender,
		Firer:      firer,
		HitPlayer:  hit,
		Firing:     firing,
		Targets:    targets,
		ReturnFire: rf,
		Kind:       fireNormal,
		Category:   dice.CategoryBattle,
		StepName:   step.Name,
	}))
}

func (b *MustFightBattle) fireAA(br Bridge, step Step) {
	st := br.State()
	own, enemy := b.sides(step.Defender)
	aa := st.Filter(own, func(u *world.Unit, ut *world.UnitType) bool {
		return combatAA(u, ut) && aaTypeOf(ut) == step.AAType
	})
	targets := st.Filter(enemy, func(_ *world.Unit, tt *world.UnitType) bool {
		for _, id := range aa {
			if st.TypeOf(id).Targets(tt) {
				return true
			}
		}
		return false
	})
	if len(aa) == 0 || len(targets) == 0 {
		return
	}
	firer, hit := b.players(step.Defender)
	b.Stack.PushReverse(b.newFire(&FireState{
		Defender:   step.Defender,
		Firer:      firer,
		HitPlayer:  hit,
		Firing:     aa,
		Targets:    targets,
		ReturnFire: ReturnFireAll,
		Kind:       fireAA,
		Category:   dice.CategoryAA,
		StepName:   step.Name,
		AA:         true,
	}))
}

// bombard fires the ships supporting an amphibious landing. With one bombarding ship per ground
// unit the surplus ships stay silent.
func (b *MustFightBattle) bombard(br Bridge, step Step) {
	st, rules := br.State(), br.Rules()
	if !b.IsAmphibiousAttack {
		return
	}
	ships := st.Filter(b.Bombarding, func(_ *world.Unit, ut *world.UnitType) bool { return ut.CanBombard() })
	if rules.ShoreBombardPerGroundUnit && len(ships) > len(b.AmphibiousLandAttackers) {
		ships = ships[:len(b.AmphibiousLandAttackers)]
	}
	targets := st.Filter(b.Defenders, notAir)
	if len(ships) == 0 || len(targets) == 0 {
		return
	}
	rf := ReturnFireNone
	if rules.NavalBombardCasualtiesReturnFire {
		rf = ReturnFireAll
	}
	b.Stack.PushReverse(b.newFire(&FireState{
		Firer:      b.AttackingPlayer,
		HitPlayer:  b.DefendingPlayer,
		Firing:     ships,
		Targets:    targets,
		ReturnFire: rf,
		Kind:       fireBombard,
		Category:   dice.CategoryBattle,
		StepName:   step.Name,
	}))
}

func (b *MustFightBattle) suicideFire(br Bridge, step Step) {
	st, rules := br.State(), br.Rules()
	own, enemy := b.sides(step.Defender)
	suicide := suicideOnAttack
	if step.Defender {
		suicide = suicideOnDefense
	}
	cv := newCombatValue(st, rules, step.Defender, fireNormal)
	firing := st.Filter(own, func(u *world.Unit, ut *world.UnitType) bool { return suicide(u, ut) && cv.canFire(u.ID) })
	targets := b.fireTargets(st, rules, firing, enemy, st.Any(own, isDestroyer))
	if len(firing) == 0 || len(targets) == 0 {
		return
	}
	rf := ReturnFireAll
	if rules.SuicideAndMunitionCasualtiesRestricted {
		rf = ReturnFireNone
	}
	firer, hit := b.players(step.Defender)
	b.Stack.PushReverse(b.newFire(&FireState{
		Defender:   step.Defender,
		Firer:      firer,
		HitPlayer:  hit,
		Firing:     firing,
		Targets:    targets,
		ReturnFire: rf,
		Kind:       fireNormal,
		Category:   dice.CategoryBattle,
		StepName:   step.Name,
	}))
}

// removeSuicide kills every suicide unit that took part in the round.
func (b *MustFightBattle) removeSuicide(ctx context.Context, br Bridge) error {
	st := br.State()
	dead := st.Filter(b.Attackers, suicideOnAttack)
	dead = append(dead, st.Filter(b.Defenders, suicideOnDefense)...)
	if len(dead) == 0 {
		return nil
	}
	return b.removeUnits(ctx, br, dead)
}

// paratroopers are attacking land units still aboard an air transport.
func (b *MustFightBattle) paratroopers(st *world.State) []string {
	return st.Filter(b.Attackers, func(u *world.Unit, ut *world.UnitType) bool {
		if !ut.IsLand() || u.TransportedBy == "" {
			return false
		}
		carrier := st.TypeOf(u.TransportedBy)
		return carrier != nil && carrier.IsAirTransport
	})
}

func (b *MustFightBattle) landParatroopers(br Bridge) error {
	st := br.State()
	troops := b.paratroopers(st)
	if len(troops) == 0 {
		return nil
	}
	var change world.Change
	change.Add(world.SetUnitString(troops, world.PropTransportedBy, ""))
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("land paratroopers in %s: %w", b.Site, err)
	}
	for transport, cargo := range b.Dependents {
		if left := without(cargo, troops); len(left) > 0 {
			b.Dependents[transport] = left
		} else {
			delete(b.Dependents, transport)
		}
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s land in %s", describeUnits(st, troops), b.Site), troops)
	return nil
}

// removeUndefendedTransports sinks a side's transports when nothing else of that side is left at
// sea to screen them and the enemy can still fire. An attacker that could retreat instead keeps
// them.
func (b *MustFightBattle) removeUndefendedTransports(ctx context.Context, br Bridge, defender bool) error {
	st, rules := br.State(), br.Rules()
	if !b.isWater(st) {
		return nil
	}
	own, enemy := b.sides(defender)
	if !defender && (len(b.retreatTerritories(st, rules, own)) > 0 || st.Any(own, isAir)) {
		return nil
	}
	transports := st.Filter(own, isTransportOnly)
	if len(transports) == 0 {
		return nil
	}
	if len(st.Filter(own, func(u *world.Unit, ut *world.UnitType) bool { return !ut.IsLand() && !u.Submerged })) != len(transports) {
		return nil
	}
	cv := newCombatValue(st, rules, !defender, fireNormal)
	if cv.totalPower(st.Filter(enemy, func(_ *world.Unit, ut *world.UnitType) bool { return !ut.IsLand() })) == 0 {
		return nil
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s undefended in %s", describeUnits(st, transports), b.Site), transports)
	return b.removeUnits(ctx, br, transports)
}

// submergeSubsVsOnlyAir takes submarines out of a fight against nothing but aircraft that cannot
// hit them.
func (b *MustFightBattle) submergeSubsVsOnlyAir(br Bridge) error {
	st, rules := br.State(), br.Rules()
	for _, defender := range []bool{true, false} {
		own, enemy := b.sides(defender)
		if len(enemy) == 0 || !st.All(enemy, isAir) {
			continue
		}
		enemyDestroyer := st.Any(enemy, isDestroyer)
		subs := st.Filter(own, func(_ *world.Unit, ut *world.UnitType) bool {
			if !ut.CanEvade {
				return false
			}
			for _, id := range enemy {
				if canHit(rules, st.TypeOf(id), ut, enemyDestroyer) {
					return false
				}
			}
			return true
		})
		if len(subs) > 0 {
			if err := b.submergeUnits(br, subs, defender); err != nil {
				return err
			}
		}
	}
	return nil
}

// sideCanHit reports whether any unit of the side could score a hit on an enemy.
func (b *MustFightBattle) sideCanHit(st *world.State, rules Rules, defender bool) bool {
	own, enemy := b.sides(defender)
	cv := newCombatValue(st, rules, defender, fireNormal)
	firing := st.Filter(own, func(u *world.Unit, _ *world.UnitType) bool { return cv.canFire(u.ID) })
	return len(b.fireTargets(st, rules, firing, enemy, st.Any(own, isDestroyer))) > 0 && len(firing) > 0
}

func (b *MustFightBattle) checkEnd(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	if len(st.Filter(b.Attackers, notInfra)) == 0 {
		return b.defenderWins(ctx, br)
	}
	if len(st.Filter(b.Defenders, notInfra)) == 0 {
		return b.attackerWins(ctx, br)
	}
	if b.MaxRounds > 0 && b.Round >= b.MaxRounds {
		return b.nobodyWins(ctx, br)
	}
	if !b.sideCanHit(st, rules, false) && !b.sideCanHit(st, rules, true) {
		return b.nobodyWins(ctx, br)
	}
	return nil
}
