package battle

import (
	"context"
	"fmt"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// AirBattle is fought between aircraft before a bombing raid (an air raid) or before a normal
// battle. Surviving strategic bombers of an air raid go on to bomb the territory.
type AirBattle struct {
	Core
	// BombingTargets maps a target unit to the bombers that planned to hit it.
	BombingTargets map[string][]string
	// Launched is set once the defender committed interceptors.
	Launched bool
}

// NewAirBattle creates an air raid or an escort air battle.
func NewAirBattle(site, attacker string, typ BattleType, st *world.State, tracker *Tracker) *AirBattle {
	b := &AirBattle{
		BombingTargets: make(map[string][]string),
	}
	b.init(site, attacker, typ, st, tracker)
	b.MaxRounds = 1
	return b
}

// airBattleAttackers picks the units that take part: all air for a raid, air able to fight in the
// air for an escort battle.
func airBattleAttackers(st *world.State, units []string, typ BattleType) []string {
	if typ == TypeAirRaid {
		return st.Filter(units, isAir)
	}
	return st.Filter(units, func(_ *world.Unit, ut *world.UnitType) bool { return ut.IsAir && ut.CanAirBattle })
}

// Kind implements Battle.
func (b *AirBattle) Kind() BattleKind { return KindAirBattle }

// IsEmpty reports whether no attacker is left.
func (b *AirBattle) IsEmpty() bool {
	return len(b.Attackers) == 0 && len(b.AttackersWaiting) == 0
}

// AddAttackChange adds attacking aircraft. It never changes the map.
func (b *AirBattle) AddAttackChange(route world.Route, units []string, targets map[string][]string) world.Change {
	fighters := airBattleAttackers(b.state, units, b.BattleType)
	b.recordAttackingFrom(route, fighters)
	b.Attackers = appendUnique(b.Attackers, fighters...)
	for target, bombers := range targets {
		b.BombingTargets[target] = appendUnique(b.BombingTargets[target], bombers...)
	}
	return world.Change{}
}

// RemoveAttack implements Battle.
func (b *AirBattle) RemoveAttack(route world.Route, units []string) world.Change {
	b.Attackers = without(b.Attackers, units)
	b.forgetAttackingFrom(route, units)
	for target, bombers := range b.BombingTargets {
		if left := without(bombers, units); len(left) > 0 {
			b.BombingTargets[target] = left
		} else {
			delete(b.BombingTargets, target)
		}
	}
	return world.Change{}
}

// UnitsLostInPrecedingBattle drops lost attackers; with none left the battle is dropped quietly.
func (b *AirBattle) UnitsLostInPrecedingBattle(_ context.Context, br Bridge, units []string, _ bool) error {
	b.Attackers = without(b.Attackers, units)
	if !b.IsEmpty() || b.Over {
		return nil
	}
	b.Over = true
	b.Outcome = Defender
	b.Result = ResultNoBattle
	b.Stack.Clear()
	if b.tracker != nil {
		b.tracker.Records.RemoveBattle(b.AttackingPlayer, b.BattleID)
		b.tracker.removeBattleID(b.BattleID)
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s in %s called off", b.BattleType, b.Site), nil)
	return nil
}

// Cancel implements Battle.
func (b *AirBattle) Cancel(_ context.Context, br Bridge) error {
	b.cancel(br)
	return nil
}

// interceptor reports whether the enemy unit may rise to meet the attack.
func (b *AirBattle) interceptor(st *world.State) func(u *world.Unit, ut *world.UnitType) bool {
	hasBase := len(st.Matches(b.Site, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsAirBase && !u.Disabled && st.IsAtWar(b.AttackingPlayer, u.Owner)
	})) > 0
	return func(u *world.Unit, ut *world.UnitType) bool {
		if !ut.IsAir || !ut.CanAirBattle || u.Disabled || !st.IsAtWar(b.AttackingPlayer, u.Owner) {
			return false
		}
		if b.BattleType == TypeAirRaid {
			return ut.CanIntercept && (!ut.RequiresAirBaseToIntercept || hasBase)
		}
		return true
	}
}

// updateDefendingUnits refreshes the interceptor candidates until the defender has launched.
func (b *AirBattle) updateDefendingUnits(st *world.State) {
	if b.Launched {
		return
	}
	b.Defenders = st.Matches(b.Site, b.interceptor(st))
}

// maxInterceptors caps how many of candidates may launch; -1 is unlimited. The cap only applies
// when some candidate needs an air base, and is then the summed capacity of the working bases.
func (b *AirBattle) maxInterceptors(st *world.State, candidates []string) int {
	needsBase := st.Any(candidates, func(_ *world.Unit, ut *world.UnitType) bool {
		return ut.RequiresAirBaseToIntercept
	})
	if !needsBase {
		return -1
	}
	total := 0
	for _, id := range st.Matches(b.Site, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsAirBase && !u.Disabled
	}) {
		n := st.TypeOf(id).MaxInterceptCount
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

func (b *AirBattle) title() string {
	return fmt.Sprintf("%s %s in %s", b.AttackingPlayer, b.BattleType, b.Site)
}

// Fight starts or resumes the air battle.
func (b *AirBattle) Fight(ctx context.Context, br Bridge) error {
	if b.Over {
		return nil
	}
	st := br.State()
	b.removeUnitsThatNoLongerExist(st)
	if b.Stack.IsExecuting() {
		b.showBattle(br, b.title(), b.roundSteps())
		return b.execute(ctx, br, b.runStep)
	}

	br.History().StartEvent(fmt.Sprintf("%s in %s", b.BattleType, b.Site))
	b.MaxRounds = br.Rules().AirBattleRounds
	b.updateDefendingUnits(st)
	b.publish(br, history.EventBattleStarted, b.AttackingPlayer, 0, b.Attackers)
	if len(b.Attackers) == 0 {
		return b.finish(ctx, br, Defender, ResultNoBattle, "No attacking aircraft")
	}
	if b.BattleType == TypeAirRaid {
		var change world.Change
		change.Add(world.SetUnitBool(b.Attackers, world.PropWasInAirBattle, true))
		if err := br.AddChange(change); err != nil {
			return fmt.Errorf("flag air raid attackers: %w", err)
		}
	}
	b.showBattle(br, b.title(), b.roundSteps())
	b.Stack.PushReverse([]Step{
		{Kind: StepInterceptorsLaunch, Defender: true, Name: b.DefendingPlayer + " launch interceptors"},
		{Kind: StepFightLoop, FirstRun: true},
	})
	return b.execute(ctx, br, b.runStep)
}

func (b *AirBattle) roundSteps() []Step {
	att, def := b.AttackingPlayer, b.DefendingPlayer
	return []Step{
		{Kind: StepFire, Group: groupGeneral, Name: att + " air fire"},
		{Kind: StepFire, Defender: true, Group: groupGeneral, Name: def + " air fire"},
		{Kind: StepClearCasualties, Name: "Remove casualties"},
		{Kind: StepRemoveSuicide},
		{Kind: StepCheckEnd},
		{Kind: StepRetreat, Name: att + " withdraw"},
		{Kind: StepRetreat, Defender: true, Name: def + " withdraw"},
		{Kind: StepRoundAdvance},
	}
}

func (b *AirBattle) runStep(ctx context.Context, br Bridge, step Step) error {
	switch step.Kind {
	case StepInterceptorsLaunch:
		return b.launchInterceptors(ctx, br)
	case StepFightLoop:
		if b.Over {
			return nil
		}
		b.publish(br, history.EventRoundStarted, b.AttackingPlayer, b.Round, nil)
		b.Stack.PushReverse(b.roundSteps())
	case StepFire:
		b.fireGroup(br, step)
	case StepRoll, StepSelectCasualties, StepNotifyCasualties:
		return b.runFireStep(ctx, br, step)
	case StepClearCasualties:
		return b.clearWaitingToDie(ctx, br)
	case StepRemoveSuicide:
		st := br.State()
		if dead := st.Filter(b.Attackers, suicideOnAttack); len(dead) > 0 {
			return b.removeUnits(ctx, br, dead)
		}
	case StepCheckEnd:
		return b.checkEnd(ctx, br)
	case StepRetreat:
		return b.withdraw(ctx, br, step.Defender)
	case StepRoundAdvance:
		if !b.Stack.IsEmpty() {
			return invariantf("air battle round %d ended with %d steps pending", b.Round, b.Stack.Len())
		}
		b.Round++
		if b.Round > maxRounds {
			return invariantf("air battle in %s exceeded %d rounds", b.Site, maxRounds)
		}
		b.Stack.Push(Step{Kind: StepFightLoop})
	default:
		return invariantf("step %s does not belong to an air battle", step.Kind)
	}
	return nil
}

// launchInterceptors lets the defender choose its interceptors for a raid (or whenever defenders
// may stay out of the fight); otherwise every candidate launches up to the air base capacity.
func (b *AirBattle) launchInterceptors(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	candidates := b.Defenders
	limit := b.maxInterceptors(st, candidates)
	ask := b.BattleType == TypeAirRaid || rules.AirBattleDefendersCanRetreat

	var chosen []string
	switch {
	case len(candidates) == 0:
	case ask && !b.Headless:
		allowed := limit
		if allowed < 0 || allowed > len(candidates) {
			allowed = len(candidates)
		}
		err := callRemote(br, func() error {
			var err error
			chosen, err = remoteFor(br, b.DefendingPlayer).SelectUnitsQuery(ctx, b.Site, candidates, allowed,
				fmt.Sprintf("Select up to %d interceptors to defend %s", allowed, b.Site))
			return err
		})
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(chosen))
		for _, id := range chosen {
			if !containsID(candidates, id) || seen[id] {
				return invariantf("interceptor %s was not offered in %s", id, b.Site)
			}
			seen[id] = true
		}
		if len(chosen) > allowed {
			return invariantf("%d interceptors launched in %s, at most %d allowed", len(chosen), b.Site, allowed)
		}
	default:
		chosen = append([]string(nil), candidates...)
		if limit >= 0 && len(chosen) > limit {
			chosen = chosen[:limit]
		}
	}

	b.Defenders = chosen
	b.Launched = true
	if len(chosen) == 0 {
		br.History().AddChildToEvent(b.DefendingPlayer+" launches no interceptors", nil)
		if err := b.makeBattle(ctx, br); err != nil {
			return err
		}
		return b.finish(ctx, br, Attacker, ResultNoBattle, "No interceptors")
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s launches %s", b.DefendingPlayer, describeUnits(st, chosen)), chosen)
	b.publish(br, history.EventInterceptors, b.DefendingPlayer, len(chosen), chosen)
	return nil
}

func (b *AirBattle) fireGroup(br Bridge, step Step) {
	st, rules := br.State(), br.Rules()
	own, ownWaiting, enemy := b.Attackers, b.AttackersWaiting, b.Defenders
	firer, hit := b.AttackingPlayer, b.DefendingPlayer
	if step.Defender {
		own, ownWaiting, enemy = b.Defenders, b.DefendersWaiting, b.Attackers
		firer, hit = hit, firer
	}
	cv := newCombatValue(st, rules, step.Defender, fireAirBattle)
	all := append(append([]string(nil), own...), ownWaiting...)
	firing := st.Filter(all, func(u *world.Unit, _ *world.UnitType) bool { return cv.canFire(u.ID) })
	if len(firing) == 0 || len(enemy) == 0 {
		return
	}
	b.Stack.PushReverse(b.newFire(&FireState{
		Defender:   step.Defender,
		Firer:      firer,
		HitPlayer:  hit,
		Firing:     firing,
		Targets:    append([]string(nil), enemy...),
		ReturnFire: ReturnFireAll,
		Kind:       fireAirBattle,
		Category:   dice.CategoryAirBattle,
		StepName:   step.Name,
	}))
}

func (b *AirBattle) checkEnd(ctx context.Context, br Bridge) error {
	switch {
	case len(b.Attackers) == 0:
		return b.end(ctx, br, Defender, ResultLost)
	case len(b.Defenders) == 0:
		return b.end(ctx, br, Attacker, ResultWonWithoutConquering)
	case b.MaxRounds > 0 && b.Round >= b.MaxRounds:
		return b.end(ctx, br, Draw, ResultStalemate)
	}
	return nil
}

func (b *AirBattle) end(ctx context.Context, br Bridge, who WhoWon, result ResultDescription) error {
	if err := b.clearWaitingToDie(ctx, br); err != nil {
		return err
	}
	if err := b.makeBattle(ctx, br); err != nil {
		return err
	}
	msg := "Air battle stalemate"
	switch who {
	case Attacker:
		msg = b.AttackingPlayer + " win the air battle"
	case Defender:
		msg = b.DefendingPlayer + " win the air battle"
	}
	return b.finish(ctx, br, who, result, msg)
}

// withdraw lets a side leave the air battle in place. Attackers that leave take no further part
// in the battles waiting on this one.
func (b *AirBattle) withdraw(ctx context.Context, br Bridge, defender bool) error {
	rules := br.Rules()
	if b.Headless || (defender && !rules.AirBattleDefendersCanRetreat) || (!defender && !rules.AirBattleAttackersCanRetreat) {
		return nil
	}
	units, player := b.Attackers, b.AttackingPlayer
	if defender {
		units, player = b.Defenders, b.DefendingPlayer
	}
	if len(units) == 0 {
		return nil
	}
	req := RetreatRequest{
		BattleID: b.BattleID.String(),
		Player:   player,
		Site:     b.Site,
		Units:    append([]string(nil), units...),
		Options:  []string{b.Site},
		Message:  player + " withdraw from the air battle?",
	}
	var answer string
	err := callRemote(br, func() error {
		var err error
		answer, err = remoteFor(br, player).RetreatQuery(ctx, req)
		return err
	})
	if err != nil || answer == "" {
		return err
	}
	if answer != b.Site {
		b.logger(br).Warn("ignoring air battle withdrawal to a territory that was not offered",
			zap.String("player", player), zap.String("answer", answer))
		return nil
	}
	leaving := append([]string(nil), units...)
	b.dropFromLists(leaving)
	br.History().AddChildToEvent(fmt.Sprintf("%s withdraws %s", player, describeUnits(br.State(), leaving)), leaving)
	if !b.Headless {
		br.Display().NotifyRetreat(b.BattleID.String(), player, leaving, b.Site)
	}
	evt := history.NewEventWithAmount(history.EventRetreat, b.BattleID.String(), b.Site, player, len(leaving))
	evt.Units = leaving
	br.Events().Publish(evt)

	if !defender && b.tracker != nil {
		for _, blocked := range b.tracker.blockedBy(b.BattleID) {
			if err := blocked.UnitsLostInPrecedingBattle(ctx, br, leaving, true); err != nil {
				return err
			}
		}
	}
	if defender {
		return b.end(ctx, br, Attacker, ResultWonWithoutConquering)
	}
	return b.end(ctx, br, Defender, ResultLost)
}

// makeBattle sends the surviving bombers of an air raid on to a bombing raid.
func (b *AirBattle) makeBattle(ctx context.Context, br Bridge) error {
	if b.BattleType != TypeAirRaid || b.tracker == nil {
		return nil
	}
	st := br.State()
	bombers := st.Filter(b.Attackers, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsStrategicBomber && st.Exists(u.ID, b.Site)
	})
	if len(bombers) == 0 {
		return nil
	}
	targets, err := b.assignBombingTargets(ctx, br, bombers, b.BombingTargets)
	if err != nil {
		return err
	}
	for _, from := range b.AttackingFrom() {
		group := st.Filter(b.AttackingFromMap[from], func(u *world.Unit, _ *world.UnitType) bool { return containsID(bombers, u.ID) })
		if len(group) == 0 {
			continue
		}
		if _, err := b.tracker.addBombingRaid(world.NewRoute(from, b.Site), group, b.AttackingPlayer, st, targets); err != nil {
			return err
		}
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s proceed to bomb %s", describeUnits(st, bombers), b.Site), bombers)
	return nil
}

// finishHeadless ends an air battle nobody can defend without recording it.
func (b *AirBattle) finishHeadless(ctx context.Context, br Bridge) error {
	if err := b.makeBattle(ctx, br); err != nil {
		return err
	}
	b.Over = true
	b.Outcome = Attacker
	b.Result = ResultNoBattle
	b.Stack.Clear()
	if b.tracker != nil {
		b.tracker.Records.RemoveBattle(b.AttackingPlayer, b.BattleID)
		b.tracker.removeBattleID(b.BattleID)
	}
	return nil
}
