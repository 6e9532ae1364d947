package battle

import (
	"context"
	"fmt"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// NonFightingBattle holds units that entered an empty enemy territory while an earlier battle
// (an amphibious assault from the sea zone, a raid, or possible scrambling) is still open. Once
// those are resolved the territory is taken if the attackers are still there and unopposed.
type NonFightingBattle struct {
	Core
}

// NewNonFightingBattle creates a non fighting battle on site.
func NewNonFightingBattle(site, attacker string, st *world.State, tracker *Tracker) *NonFightingBattle {
	b := &NonFightingBattle{}
	b.init(site, attacker, TypeNormal, st, tracker)
	return b
}

// Kind implements Battle.
func (b *NonFightingBattle) Kind() BattleKind { return KindNonFighting }

// IsEmpty reports whether no attacker is left.
func (b *NonFightingBattle) IsEmpty() bool { return len(b.Attackers) == 0 }

// AddAttackChange implements Battle.
func (b *NonFightingBattle) AddAttackChange(route world.Route, units []string, _ map[string][]string) world.Change {
	b.recordAttackingFrom(route, units)
	b.Attackers = appendUnique(b.Attackers, units...)
	b.trackCargo(b.state, units)
	return world.Change{}
}

// RemoveAttack implements Battle.
func (b *NonFightingBattle) RemoveAttack(route world.Route, units []string) world.Change {
	b.Attackers = without(b.Attackers, units)
	b.forgetAttackingFrom(route, units)
	return world.Change{}
}

// UnitsLostInPrecedingBattle drops lost or withdrawn units. The battle stays pending; fighting it
// with no attackers left records a loss.
func (b *NonFightingBattle) UnitsLostInPrecedingBattle(_ context.Context, _ Bridge, units []string, _ bool) error {
	b.Attackers = without(b.Attackers, append(b.DependentUnits(units), units...))
	return nil
}

// Cancel implements Battle.
func (b *NonFightingBattle) Cancel(_ context.Context, br Bridge) error {
	b.cancel(br)
	return nil
}

// Fight resolves the battle. It must not run while any battle it depends on is pending.
func (b *NonFightingBattle) Fight(ctx context.Context, br Bridge) error {
	if b.Over {
		return nil
	}
	if b.tracker != nil {
		if blockers := b.tracker.DependentOn(b); len(blockers) > 0 {
			return invariantf("battle in %s fought before %d battles it depends on", b.Site, len(blockers))
		}
	}
	st := br.State()
	b.removeUnitsThatNoLongerExist(st)
	br.History().StartEvent(fmt.Sprintf("Battle in %s", b.Site))
	b.publish(br, history.EventBattleStarted, b.AttackingPlayer, 0, b.Attackers)

	if len(b.Attackers) == 0 {
		return b.finish(ctx, br, Defender, ResultNoBattle, "No attacking units remain in "+b.Site)
	}
	land := st.Filter(b.Attackers, isLand)
	enemies := st.Filter(st.EnemyUnits(b.Site, b.AttackingPlayer), notInfra)
	if len(land) == 0 || len(enemies) > 0 {
		b.logger(br).Debug("territory not taken",
			zap.Int("land_attackers", len(land)),
			zap.Int("enemy_units", len(enemies)),
		)
		return b.finish(ctx, br, Defender, ResultLost, fmt.Sprintf("%s does not take %s", b.AttackingPlayer, b.Site))
	}
	if b.tracker != nil && conquerable(st, b.Site, b.AttackingPlayer) {
		b.tracker.AddToConquered(b.Site)
		if err := b.tracker.TakeOver(br, b.Site, b.AttackingPlayer, land); err != nil {
			return err
		}
	}
	return b.finish(ctx, br, Attacker, ResultBlitzed, fmt.Sprintf("%s takes %s", b.AttackingPlayer, b.Site))
}
