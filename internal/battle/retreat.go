package battle

import (
	"context"
	"fmt"
	"sort"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

func canEvade(_ *world.Unit, ut *world.UnitType) bool { return ut.CanEvade }

func (b *MustFightBattle) canAttackerSubsWithdraw(st *world.State, rules Rules) bool {
	if b.Headless || st.Any(b.Defenders, isDestroyer) || !st.Any(b.Attackers, canEvade) {
		return false
	}
	return rules.SubmersibleSubs || len(b.retreatTerritories(st, rules, st.Filter(b.Attackers, canEvade))) > 0
}

func (b *MustFightBattle) canDefenderSubsWithdraw(st *world.State, rules Rules) bool {
	if b.Headless || !rules.SubmarinesDefendingMaySubmergeOrRetreat {
		return false
	}
	if st.Any(b.Attackers, isDestroyer) || !st.Any(b.Defenders, canEvade) {
		return false
	}
	return rules.SubmersibleSubs || len(b.defenderSubRetreatTerritories(st)) > 0
}

func (b *MustFightBattle) canAttackerRetreatPlanes(st *world.State, rules Rules) bool {
	return !b.Headless && (rules.WW2V2 || rules.AttackerRetreatPlanes || rules.PartialAmphibiousRetreat) &&
		b.IsAmphibiousAttack && st.Any(b.Attackers, isAir)
}

// canAttackerRetreatPartialAmphibious holds when some attacking land units came over land and may
// leave while the amphibious landers stay.
func (b *MustFightBattle) canAttackerRetreatPartialAmphibious(st *world.State, rules Rules) bool {
	if b.Headless || !b.IsAmphibiousAttack || !rules.PartialAmphibiousRetreat {
		return false
	}
	return len(b.nonAmphibiousLand(st)) > 0
}

func (b *MustFightBattle) nonAmphibiousLand(st *world.State) []string {
	return st.Filter(b.Attackers, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsLand() && !u.WasAmphibious
	})
}

// onlyDefenselessTransportsLeft reports whether the defence consists of transports alone.
func (b *MustFightBattle) onlyDefenselessTransportsLeft(st *world.State) bool {
	defenders := st.Filter(b.Defenders, notInfra)
	return len(defenders) > 0 && st.All(defenders, isTransportOnly)
}

// retreatTerritories lists where attacking units may withdraw to. Air alone, headless battles
// and the stay-in-place rule only allow withdrawing in place.
func (b *MustFightBattle) retreatTerritories(st *world.State, rules Rules, units []string) []string {
	if b.Headless || rules.RetreatingUnitsRemainInPlace || (len(units) > 0 && st.All(units, isAir)) {
		return []string{b.Site}
	}
	var out []string
	for _, from := range b.AttackingFrom() {
		t := st.Territory(from)
		if t == nil || from == b.Site {
			continue
		}
		if len(st.Filter(st.EnemyUnits(from, b.AttackingPlayer), notInfra)) > 0 {
			continue
		}
		if (rules.WW2V2 || rules.WW2V3) && st.All(b.AttackingFromMap[from], isAir) {
			continue
		}
		if !t.Water && st.IsAtWar(b.AttackingPlayer, t.Owner) {
			continue
		}
		if rules.RetreatExcludesFoughtTerritories && b.tracker != nil &&
			(b.tracker.WasConquered(from) || b.tracker.WasBattleFought(from)) {
			continue
		}
		out = append(out, from)
	}
	switch {
	case st.Any(units, isSea):
		out = b.keepTerritories(st, out, true)
	case st.Any(units, isLand):
		out = b.keepTerritories(st, out, false)
	}
	sort.Strings(out)
	return out
}

func (b *MustFightBattle) keepTerritories(st *world.State, names []string, water bool) []string {
	var out []string
	for _, n := range names {
		if t := st.Territory(n); t != nil && t.Water == water {
			out = append(out, n)
		}
	}
	return out
}

// defenderSubRetreatTerritories are neighbouring sea zones free of enemies and of pending battles.
func (b *MustFightBattle) defenderSubRetreatTerritories(st *world.State) []string {
	return st.Neighbors(b.Site, func(t *world.Territory) bool {
		if !t.Water || st.HasEnemyUnits(t.Name, b.DefendingPlayer) {
			return false
		}
		return b.tracker == nil || !b.tracker.HasPendingNonBombingBattle(t.Name)
	})
}

// queryRetreat asks the player where to withdraw. An empty answer stays; an answer outside the
// options is logged and treated as staying.
func (b *MustFightBattle) queryRetreat(ctx context.Context, br Bridge, player string, units, options []string, submerge bool, message string) (string, error) {
	if b.Headless || len(units) == 0 || (len(options) == 0 && !submerge) {
		return "", nil
	}
	req := RetreatRequest{
		BattleID: b.BattleID.String(),
		Player:   player,
		Site:     b.Site,
		Units:    units,
		Options:  options,
		Submerge: submerge,
		Message:  message,
	}
	var answer string
	err := callRemote(br, func() error {
		var err error
		answer, err = remoteFor(br, player).RetreatQuery(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", nil
	}
	if !containsID(options, answer) && !(submerge && answer == b.Site) {
		b.logger(br).Warn("ignoring retreat to a territory that was not offered",
			zap.String("player", player),
			zap.String("answer", answer),
			zap.Strings("options", options),
		)
		return "", nil
	}
	return answer, nil
}

// subsWithdraw offers one side's evading submarines the chance to leave or submerge.
func (b *MustFightBattle) subsWithdraw(ctx context.Context, br Bridge, defender bool) error {
	st, rules := br.State(), br.Rules()
	var (
		subs    []string
		options []string
		player  string
	)
	if defender {
		if !b.canDefenderSubsWithdraw(st, rules) {
			return nil
		}
		subs = st.Filter(b.Defenders, canEvade)
		options = b.defenderSubRetreatTerritories(st)
		player = b.DefendingPlayer
	} else {
		if !b.canAttackerSubsWithdraw(st, rules) {
			return nil
		}
		subs = st.Filter(b.Attackers, canEvade)
		options = without(b.retreatTerritories(st, rules, subs), []string{b.Site})
		player = b.AttackingPlayer
	}
	answer, err := b.queryRetreat(ctx, br, player, subs, options, rules.SubmersibleSubs, player+" subs withdraw?")
	if err != nil || answer == "" {
		return err
	}
	if answer == b.Site {
		return b.submergeUnits(br, subs, defender)
	}
	return b.retreatUnits(ctx, br, subs, answer, defender)
}

// planeRetreat lets attacking air leave an amphibious assault; the planes stay in the territory
// and land later.
func (b *MustFightBattle) planeRetreat(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	if !b.canAttackerRetreatPlanes(st, rules) {
		return nil
	}
	planes := st.Filter(b.Attackers, isAir)
	answer, err := b.queryRetreat(ctx, br, b.AttackingPlayer, planes, []string{b.Site}, false, b.AttackingPlayer+" retreat planes?")
	if err != nil || answer == "" {
		return err
	}
	return b.retreatUnits(ctx, br, planes, answer, false)
}

func (b *MustFightBattle) partialAmphibiousRetreat(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	if !b.canAttackerRetreatPartialAmphibious(st, rules) {
		return nil
	}
	units := b.nonAmphibiousLand(st)
	options := b.keepTerritories(st, b.retreatTerritories(st, rules, units), false)
	answer, err := b.queryRetreat(ctx, br, b.AttackingPlayer, units, options, false, b.AttackingPlayer+" retreat non-amphibious units?")
	if err != nil || answer == "" {
		return err
	}
	return b.retreatUnits(ctx, br, units, answer, false)
}

// attackerRetreat offers the general withdrawal. It is not available to amphibious assaults or
// against nothing but defenceless transports; withdrawing everything ends the battle.
func (b *MustFightBattle) attackerRetreat(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	if b.Headless || b.IsAmphibiousAttack || b.onlyDefenselessTransportsLeft(st) {
		return nil
	}
	units := st.Filter(b.Attackers, notInfra)
	options := b.retreatTerritories(st, rules, units)
	answer, err := b.queryRetreat(ctx, br, b.AttackingPlayer, units, options, false, b.AttackingPlayer+" retreat?")
	if err != nil || answer == "" {
		return err
	}
	if err := b.retreatUnits(ctx, br, units, answer, false); err != nil {
		return err
	}
	return b.finish(ctx, br, Defender, ResultLost, fmt.Sprintf("%s retreats from %s", b.AttackingPlayer, b.Site))
}

// retreatUnits moves units (with their cargo) out of the battle. Retreating to the site itself
// withdraws them in place.
func (b *MustFightBattle) retreatUnits(ctx context.Context, br Bridge, units []string, to string, defender bool) error {
	st := br.State()
	all := withCargo(st, units)
	for _, id := range units {
		all = appendUnique(all, b.Dependents[id]...)
	}
	if to != b.Site {
		here := st.Filter(all, func(u *world.Unit, _ *world.UnitType) bool { return st.Exists(u.ID, b.Site) })
		var change world.Change
		change.Add(world.MoveUnits(b.Site, to, here))
		if err := br.AddChange(change); err != nil {
			return fmt.Errorf("retreat from %s to %s: %w", b.Site, to, err)
		}
	}
	b.dropFromLists(all)

	player, _ := b.players(defender)
	text := fmt.Sprintf("%s retreats %s to %s", player, describeUnits(st, units), to)
	br.History().AddChildToEvent(text, all)
	if !b.Headless {
		br.Display().NotifyRetreat(b.BattleID.String(), player, all, to)
	}
	evt := history.NewEventWithAmount(history.EventRetreat, b.BattleID.String(), b.Site, player, len(all))
	evt.Units = all
	evt.Metadata["to"] = to
	br.Events().Publish(evt)

	if b.tracker == nil || defender {
		return nil
	}
	for _, blocked := range b.tracker.blockedBy(b.BattleID) {
		if err := blocked.UnitsLostInPrecedingBattle(ctx, br, all, true); err != nil {
			return err
		}
	}
	return nil
}

// submergeUnits hides submarines for the rest of the battle.
func (b *MustFightBattle) submergeUnits(br Bridge, units []string, defender bool) error {
	st := br.State()
	var change world.Change
	change.Add(world.SetUnitBool(units, world.PropSubmerged, true))
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("submerge in %s: %w", b.Site, err)
	}
	b.dropFromLists(units)

	player, _ := b.players(defender)
	br.History().AddChildToEvent(fmt.Sprintf("%s submerges %s", player, describeUnits(st, units)), units)
	if !b.Headless {
		br.Display().NotifyRetreat(b.BattleID.String(), player, units, b.Site)
	}
	evt := history.NewEventWithAmount(history.EventSubmerge, b.BattleID.String(), b.Site, player, len(units))
	evt.Units = units
	br.Events().Publish(evt)
	return nil
}
