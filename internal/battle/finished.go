package battle

import (
	"context"
	"fmt"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
)

// FinishedBattle stands for a territory already taken during the move, such as a blitz or an
// unopposed landing. It keeps the attacking units on record so a later loss can undo the claim.
type FinishedBattle struct {
	Core
	AmphibiousFrom map[string][]string
	// PlannedOutcome and PlannedResult are recorded when the battle is fought.
	PlannedOutcome WhoWon
	PlannedResult  ResultDescription
}

// NewFinishedBattle creates a battle whose outcome is already known.
func NewFinishedBattle(site, attacker string, typ BattleType, result ResultDescription, who WhoWon, st *world.State, tracker *Tracker) *FinishedBattle {
	b := &FinishedBattle{
		AmphibiousFrom: make(map[string][]string),
		PlannedOutcome: who,
		PlannedResult:  result,
	}
	b.init(site, attacker, typ, st, tracker)
	return b
}

// Kind implements Battle.
func (b *FinishedBattle) Kind() BattleKind { return KindFinished }

// IsEmpty reports whether no attacker is left.
func (b *FinishedBattle) IsEmpty() bool { return len(b.Attackers) == 0 }

// AmphibiousOrigins implements Battle.
func (b *FinishedBattle) AmphibiousOrigins() map[string][]string {
	if len(b.AmphibiousFrom) == 0 {
		return nil
	}
	return b.AmphibiousFrom
}

// AddAttackChange implements Battle.
func (b *FinishedBattle) AddAttackChange(route world.Route, units []string, _ map[string][]string) world.Change {
	st := b.state
	b.recordAttackingFrom(route, units)
	b.Attackers = appendUnique(b.Attackers, units...)
	b.trackCargo(st, units)
	if route.End() == b.Site && route.IsUnload(st) {
		if land := st.Filter(units, isLand); len(land) > 0 {
			from := route.TerritoryBeforeEnd()
			b.IsAmphibiousAttack = true
			b.AmphibiousFrom[from] = appendUnique(b.AmphibiousFrom[from], land...)
		}
	}
	return world.Change{}
}

// RemoveAttack implements Battle.
func (b *FinishedBattle) RemoveAttack(route world.Route, units []string) world.Change {
	b.Attackers = without(b.Attackers, units)
	b.forgetAttackingFrom(route, units)
	for from, landed := range b.AmphibiousFrom {
		if left := without(landed, units); len(left) > 0 {
			b.AmphibiousFrom[from] = left
		} else {
			delete(b.AmphibiousFrom, from)
		}
	}
	return world.Change{}
}

// UnitsLostInPrecedingBattle drops lost units. Losing every attacker records the battle as lost
// and withdraws the conquest claim; ownership is not reverted.
func (b *FinishedBattle) UnitsLostInPrecedingBattle(_ context.Context, br Bridge, units []string, withdrawn bool) error {
	lost := appendUnique(b.DependentUnits(units), units...)
	before := len(b.Attackers)
	b.Attackers = without(b.Attackers, lost)
	if b.Over || before == len(b.Attackers) || len(b.Attackers) > 0 {
		return nil
	}
	b.Over = true
	b.Outcome = Defender
	b.Result = ResultLost
	if b.tracker != nil {
		b.tracker.Records.AddResult(b.AttackingPlayer, b.BattleID, b.DefendingPlayer, b.AttackerLostTUV, b.DefenderLostTUV, ResultLost)
		delete(b.tracker.Conquered, b.Site)
		delete(b.tracker.Blitzed, b.Site)
		b.tracker.removeBattleID(b.BattleID)
	}
	how := "lost"
	if withdrawn {
		how = "withdrawn"
	}
	br.History().AddChildToEvent(fmt.Sprintf("All units that took %s were %s", b.Site, how), nil)
	return nil
}

// Cancel implements Battle.
func (b *FinishedBattle) Cancel(_ context.Context, br Bridge) error {
	b.cancel(br)
	return nil
}

// Fight records the known outcome and removes the battle.
func (b *FinishedBattle) Fight(_ context.Context, br Bridge) error {
	if b.Over {
		return nil
	}
	b.Over = true
	b.Outcome = b.PlannedOutcome
	b.Result = b.PlannedResult
	if b.tracker != nil {
		b.tracker.Records.AddResult(b.AttackingPlayer, b.BattleID, b.DefendingPlayer, 0, 0, b.PlannedResult)
		b.tracker.removeBattleID(b.BattleID)
	}
	evt := history.NewEvent(history.EventBattleEnded, b.BattleID.String(), b.Site, b.AttackingPlayer)
	evt.Metadata["outcome"] = b.Outcome.String()
	evt.Metadata["result"] = b.Result.String()
	br.Events().Publish(evt)
	return nil
}
