package battle

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// RelationshipChange records two players changing their stance during the turn.
type RelationshipChange struct {
	PlayerA string
	PlayerB string
	From    string
	To      string
}

// Tracker is the registry of pending battles and the graph of which battle must wait for which.
// It also remembers what happened this turn: conquests, blitzes, fought territories.
type Tracker struct {
	logger *zap.Logger

	pending []Battle
	// dependencies maps a blocked battle to the battles it waits for.
	dependencies map[uuid.UUID]map[uuid.UUID]bool
	onRemove     func(Battle)

	Conquered                  map[string]bool
	Blitzed                    map[string]bool
	FoughtBattles              map[string]bool
	NoBombardAllowed           map[string]bool
	DefendingAirThatCanNotLand map[string][]string
	RelationshipChanges        []RelationshipChange
	Records                    *BattleRecords
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:                     logger,
		dependencies:               make(map[uuid.UUID]map[uuid.UUID]bool),
		Conquered:                  make(map[string]bool),
		Blitzed:                    make(map[string]bool),
		FoughtBattles:              make(map[string]bool),
		NoBombardAllowed:           make(map[string]bool),
		DefendingAirThatCanNotLand: make(map[string][]string),
		Records:                    NewBattleRecords(),
	}
}

// SetOnRemove installs a hook called whenever a battle leaves the registry.
func (t *Tracker) SetOnRemove(fn func(Battle)) {
	t.onRemove = fn
}

// Battles returns the pending battles in creation order.
func (t *Tracker) Battles() []Battle {
	return append([]Battle(nil), t.pending...)
}

// PendingBattle returns the battle of the type in the territory, or nil.
func (t *Tracker) PendingBattle(territory string, typ BattleType) Battle {
	for _, b := range t.pending {
		if b.Territory() == territory && b.Type() == typ {
			return b
		}
	}
	return nil
}

// PendingBattles returns every battle in the territory.
func (t *Tracker) PendingBattles(territory string) []Battle {
	var out []Battle
	for _, b := range t.pending {
		if b.Territory() == territory {
			out = append(out, b)
		}
	}
	return out
}

// Battle returns the pending battle with the id, or nil.
func (t *Tracker) Battle(id uuid.UUID) Battle {
	for _, b := range t.pending {
		if b.ID() == id {
			return b
		}
	}
	return nil
}

// PendingBombingBattle returns the raid or air raid in the territory, or nil.
func (t *Tracker) PendingBombingBattle(territory string) Battle {
	if b := t.PendingBattle(territory, TypeAirRaid); b != nil {
		return b
	}
	return t.PendingBattle(territory, TypeBombingRaid)
}

// HasPendingNonBombingBattle reports whether a normal or air battle is pending in the territory.
func (t *Tracker) HasPendingNonBombingBattle(territory string) bool {
	return t.PendingBattle(territory, TypeNormal) != nil || t.PendingBattle(territory, TypeAirBattle) != nil
}

// PendingBattleSites lists the sites of non-empty battles in the bombing or non-bombing partition.
func (t *Tracker) PendingBattleSites(bombing bool) BattleListing {
	listing := BattleListing{Battles: make(map[BattleType][]string)}
	for _, b := range t.pending {
		if b.IsEmpty() || b.IsBombingRun() != bombing {
			continue
		}
		listing.Battles[b.Type()] = appendUnique(listing.Battles[b.Type()], b.Territory())
	}
	for typ := range listing.Battles {
		sort.Strings(listing.Battles[typ])
	}
	return listing
}

// Listing returns every non-empty pending battle grouped by type.
func (t *Tracker) Listing() BattleListing {
	listing := t.PendingBattleSites(false)
	for typ, sites := range t.PendingBattleSites(true).Battles {
		listing.Battles[typ] = sites
	}
	return listing
}

func (t *Tracker) sitesOf(bombing bool) []string {
	listing := t.PendingBattleSites(bombing)
	if bombing {
		return listing.BombingSites()
	}
	return listing.NormalSites()
}

// DependentOn returns the non-empty battles that must finish before b can fight.
func (t *Tracker) DependentOn(b Battle) []Battle {
	var out []Battle
	for _, other := range t.pending {
		if t.dependencies[b.ID()][other.ID()] && !other.IsEmpty() {
			out = append(out, other)
		}
	}
	return out
}

// Blocked returns the battles waiting for b.
func (t *Tracker) Blocked(b Battle) []Battle {
	return t.blockedBy(b.ID())
}

func (t *Tracker) blockedBy(id uuid.UUID) []Battle {
	var out []Battle
	for _, other := range t.pending {
		if t.dependencies[other.ID()][id] {
			out = append(out, other)
		}
	}
	return out
}

// AddDependency makes blocked wait for blocking. An edge that would close a cycle is fatal.
func (t *Tracker) AddDependency(blocked, blocking Battle) error {
	if blocked == nil || blocking == nil {
		return nil
	}
	if blocked.ID() == blocking.ID() || t.reaches(blocking.ID(), blocked.ID()) {
		return invariantf("dependency %s in %s -> %s in %s would close a cycle",
			blocked.Type(), blocked.Territory(), blocking.Type(), blocking.Territory())
	}
	deps := t.dependencies[blocked.ID()]
	if deps == nil {
		deps = make(map[uuid.UUID]bool)
		t.dependencies[blocked.ID()] = deps
	}
	deps[blocking.ID()] = true
	return nil
}

// RemoveDependency drops one edge.
func (t *Tracker) RemoveDependency(blocked, blocking Battle) {
	if deps := t.dependencies[blocked.ID()]; deps != nil {
		delete(deps, blocking.ID())
		if len(deps) == 0 {
			delete(t.dependencies, blocked.ID())
		}
	}
}

// reaches reports whether from transitively waits for to.
func (t *Tracker) reaches(from, to uuid.UUID) bool {
	seen := make(map[uuid.UUID]bool)
	stack := []uuid.UUID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for next := range t.dependencies[cur] {
			stack = append(stack, next)
		}
	}
	return false
}

func (t *Tracker) add(b Battle) {
	t.pending = append(t.pending, b)
	t.Records.AddBattle(b.Attacker(), b.ID(), b.Territory(), b.Type())
	if t.logger != nil {
		t.logger.Debug("battle added",
			zap.String("battle_id", b.ID().String()),
			zap.String("territory", b.Territory()),
			zap.String("battle_type", b.Type().String()),
			zap.String("kind", b.Kind().String()),
		)
	}
}

// replaceBattle swaps a pending battle for another, keeping its place in the dependency graph.
func (t *Tracker) replaceBattle(old, replacement Battle) {
	for i, b := range t.pending {
		if b.ID() == old.ID() {
			t.pending[i] = replacement
		}
	}
	for _, deps := range t.dependencies {
		if deps[old.ID()] {
			delete(deps, old.ID())
			deps[replacement.ID()] = true
		}
	}
	if deps, ok := t.dependencies[old.ID()]; ok {
		delete(t.dependencies, old.ID())
		t.dependencies[replacement.ID()] = deps
	}
	t.Records.RemoveBattle(old.Attacker(), old.ID())
	t.Records.AddBattle(replacement.Attacker(), replacement.ID(), replacement.Territory(), replacement.Type())
}

// RemoveBattle detaches the battle from the graph and marks its territory as fought over.
func (t *Tracker) RemoveBattle(b Battle) {
	if b != nil {
		t.removeBattleID(b.ID())
	}
}

func (t *Tracker) removeBattleID(id uuid.UUID) {
	var removed Battle
	kept := t.pending[:0]
	for _, b := range t.pending {
		if b.ID() == id {
			removed = b
			continue
		}
		kept = append(kept, b)
	}
	t.pending = kept
	if removed == nil {
		return
	}
	for blocked, deps := range t.dependencies {
		delete(deps, id)
		if len(deps) == 0 {
			delete(t.dependencies, blocked)
		}
	}
	delete(t.dependencies, id)
	t.FoughtBattles[removed.Territory()] = true
	if t.onRemove != nil {
		t.onRemove(removed)
	}
}

// linkSite wires the same-territory ordering: raids before air battles before the normal battle.
func (t *Tracker) linkSite(site string) error {
	normal := t.PendingBattle(site, TypeNormal)
	air := t.PendingBattle(site, TypeAirBattle)
	airRaid := t.PendingBattle(site, TypeAirRaid)
	raid := t.PendingBattle(site, TypeBombingRaid)
	edges := [][2]Battle{
		{normal, raid}, {normal, airRaid}, {normal, air},
		{air, airRaid}, {air, raid},
		{raid, airRaid},
	}
	for _, e := range edges {
		if e[0] == nil || e[1] == nil {
			continue
		}
		if err := t.AddDependency(e[0], e[1]); err != nil {
			return err
		}
	}
	return nil
}

// AddBattle registers the attack of units moving along route. Bombing moves create an air raid or
// a bombing raid; other moves may create an escort air battle, a normal battle and empty battles
// for unopposed conquest along the way.
func (t *Tracker) AddBattle(br Bridge, route world.Route, units []string, attacker string, bombing bool, targets map[string][]string) error {
	st := br.State()
	rules := br.Rules()
	site := route.End()
	if st.Territory(site) == nil {
		return fmt.Errorf("%w: %s", world.ErrUnknownTerritory, site)
	}
	if bombing {
		if rules.RaidsMayBePreceededByAirBattles && couldHaveAirDefenders(st, rules, site, attacker, true) {
			return t.addAirBattle(route, units, attacker, st, TypeAirRaid, targets)
		}
		_, err := t.addBombingRaid(route, units, attacker, st, targets)
		return err
	}

	if rules.BattlesMayBePreceededByAirBattles && couldHaveAirDefenders(st, rules, site, attacker, false) {
		if err := t.addAirBattle(route, units, attacker, st, TypeAirBattle, nil); err != nil {
			return err
		}
	}
	if err := t.addMustFightBattle(br, route, units, attacker); err != nil {
		return err
	}
	if st.Any(units, isLand) || st.Any(units, isSea) {
		return t.addEmptyBattle(br, route, units, attacker)
	}
	return nil
}

// couldHaveAirDefenders reports whether enemy air able to fight in the air is in the territory or
// could scramble into it.
func couldHaveAirDefenders(st *world.State, rules Rules, site, attacker string, bombing bool) bool {
	match := func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsAir && ut.CanAirBattle && !u.Disabled && st.IsAtWar(attacker, u.Owner) && (!bombing || ut.CanIntercept)
	}
	if len(st.Matches(site, match)) > 0 {
		return true
	}
	if !rules.ScrambleRulesInEffect {
		return false
	}
	distance := 0
	for _, ut := range st.UnitTypes {
		if ut.CanScramble && ut.MaxScrambleDistance > distance {
			distance = ut.MaxScrambleDistance
		}
	}
	for _, n := range st.NeighborsWithin(site, distance) {
		if len(st.Matches(n, func(u *world.Unit, ut *world.UnitType) bool { return match(u, ut) && ut.CanScramble })) > 0 {
			return true
		}
	}
	return false
}

func (t *Tracker) addAirBattle(route world.Route, units []string, attacker string, st *world.State, typ BattleType, targets map[string][]string) error {
	site := route.End()
	fighters := airBattleAttackers(st, units, typ)
	if len(fighters) == 0 {
		return nil
	}
	b := t.PendingBattle(site, typ)
	if b == nil {
		b = NewAirBattle(site, attacker, typ, st, t)
		t.add(b)
	}
	if change := b.AddAttackChange(route, fighters, targets); !change.IsEmpty() {
		return invariantf("non empty change adding %s in %s: %s", typ, site, change)
	}
	return t.linkSite(site)
}

func (t *Tracker) addBombingRaid(route world.Route, units []string, attacker string, st *world.State, targets map[string][]string) (Battle, error) {
	site := route.End()
	b := t.PendingBattle(site, TypeBombingRaid)
	if b == nil {
		b = NewStrategicBombingRaidBattle(site, attacker, st, t)
		t.add(b)
	}
	if change := b.AddAttackChange(route, units, targets); !change.IsEmpty() {
		return nil, invariantf("non empty change adding bombing raid in %s: %s", site, change)
	}
	return b, t.linkSite(site)
}

// amphibiousPrecede returns the sea battle an unload has to wait for.
func (t *Tracker) amphibiousPrecede(st *world.State, route world.Route) Battle {
	if !route.IsUnload(st) {
		return nil
	}
	return t.PendingBattle(route.Start(), TypeNormal)
}

func (t *Tracker) addMustFightBattle(br Bridge, route world.Route, units []string, attacker string) error {
	st := br.State()
	site := route.End()
	enemies := st.EnemyUnits(site, attacker)
	if len(enemies) == 0 || st.All(enemies, isInfraType) {
		return nil
	}
	b := t.PendingBattle(site, TypeNormal)
	if b == nil {
		b = NewMustFightBattle(site, attacker, st, t)
		t.add(b)
	}
	change := b.AddAttackChange(route, units, nil)
	if precede := t.amphibiousPrecede(st, route); precede != nil && st.Any(units, isLand) {
		if err := t.AddDependency(b, precede); err != nil {
			return err
		}
	}
	if err := t.linkSite(site); err != nil {
		return err
	}
	return br.AddChange(change)
}

func isInfraType(_ *world.Unit, ut *world.UnitType) bool { return ut.IsInfrastructure }

// conquerable is enemy land with nothing left to fight.
func conquerable(st *world.State, territory, player string) bool {
	t := st.Territory(territory)
	if t == nil || t.Water || !st.IsAtWar(player, t.Owner) {
		return false
	}
	return len(st.Filter(st.EnemyUnits(territory, player), notInfra)) == 0
}

func (t *Tracker) addEmptyBattle(br Bridge, route world.Route, units []string, attacker string) error {
	st := br.State()
	rules := br.Rules()
	end := route.End()

	var middle []string
	if st.Any(units, isLand) {
		if route.Start() != end && conquerable(st, route.Start(), attacker) {
			middle = append(middle, route.Start())
		}
		for _, step := range route.Steps() {
			if step != end && conquerable(st, step, attacker) {
				middle = append(middle, step)
			}
		}
	}
	for _, territory := range middle {
		t.Conquered[territory] = true
		t.Blitzed[territory] = true
		b := t.PendingBattle(territory, TypeNormal)
		if b == nil {
			b = NewFinishedBattle(territory, attacker, TypeNormal, ResultConquered, Attacker, st, t)
			t.add(b)
		}
		if err := br.AddChange(b.AddAttackChange(route, units, nil)); err != nil {
			return err
		}
		if err := t.TakeOver(br, territory, attacker, units); err != nil {
			return err
		}
	}

	if !conquerable(st, end, attacker) {
		return nil
	}
	precede := t.amphibiousPrecede(st, route)
	if precede == nil {
		precede = t.PendingBombingBattle(end)
	}
	scrambleWait := rules.ScrambleRulesInEffect && route.IsUnload(st) && route.HasExactlyOneStep()
	if precede != nil || scrambleWait {
		b := t.PendingBattle(end, TypeNormal)
		if b == nil {
			b = NewNonFightingBattle(end, attacker, st, t)
			t.add(b)
		}
		if err := br.AddChange(b.AddAttackChange(route, units, nil)); err != nil {
			return err
		}
		if precede != nil {
			return t.AddDependency(b, precede)
		}
		return nil
	}

	t.Conquered[end] = true
	b := t.PendingBattle(end, TypeNormal)
	if b == nil {
		b = NewFinishedBattle(end, attacker, TypeNormal, ResultConquered, Attacker, st, t)
		t.add(b)
	}
	if err := br.AddChange(b.AddAttackChange(route, units, nil)); err != nil {
		return err
	}
	return t.TakeOver(br, end, attacker, units)
}

// TakeOver hands the territory to the player (or back to its allied original owner), captures
// the loser's treasury when it is a capital and captures or destroys the infrastructure in it.
func (t *Tracker) TakeOver(br Bridge, territory, player string, units []string) error {
	st := br.State()
	terr := st.Territory(territory)
	if terr == nil {
		return fmt.Errorf("%w: %s", world.ErrUnknownTerritory, territory)
	}
	if terr.Water {
		return nil
	}
	if raid := t.PendingBombingBattle(territory); raid != nil {
		t.Records.AddResult(raid.Attacker(), raid.ID(), raid.Defender(), 0, 0, ResultNoBattle)
		if err := raid.Cancel(context.Background(), br); err != nil {
			return err
		}
		t.RemoveBattle(raid)
		return invariantf("bombing dependency: raid in %s must be fought before the territory is taken", territory)
	}

	oldOwner := terr.Owner
	newOwner := player
	if orig := terr.OriginalOwner; !world.IsNull(orig) && orig != player && st.IsAllied(orig, player) {
		if p := st.Player(orig); p != nil && (p.Capital == "" || st.Territory(p.Capital) == nil || st.Territory(p.Capital).Owner == orig) {
			newOwner = orig
		}
	}

	var change world.Change
	if terr.CapitalOf != "" && terr.CapitalOf == oldOwner && st.IsAtWar(player, oldOwner) {
		if loser := st.Player(oldOwner); loser != nil {
			if pus := loser.Resources[world.ResourcePUs]; pus > 0 {
				change.Add(world.ChangeResource(oldOwner, world.ResourcePUs, -pus))
				change.Add(world.ChangeResource(player, world.ResourcePUs, pus))
				br.History().AddChildToEvent(fmt.Sprintf("%s captures %d PUs while taking %s capital", player, pus, oldOwner), nil)
			}
		}
	}
	change.Add(world.ChangeTerritoryOwner(territory, newOwner))
	change.Merge(captureOrDestroyUnits(st, territory, player, newOwner))
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("take over %s: %w", territory, err)
	}

	text := fmt.Sprintf("%s takes %s from %s", player, territory, oldOwner)
	if newOwner != player {
		text = fmt.Sprintf("%s liberates %s for %s", player, territory, newOwner)
	}
	br.History().AddChildToEvent(text, units)
	evt := history.NewEvent(history.EventTerritoryTaken, "", territory, player)
	evt.Message = text
	evt.Metadata["from"] = oldOwner
	evt.Metadata["to"] = newOwner
	br.Events().Publish(evt)
	return nil
}

func captureOrDestroyUnits(st *world.State, territory, player, newOwner string) world.Change {
	var change world.Change
	var destroy, capture []string
	for _, id := range st.EnemyUnits(territory, player) {
		u := st.Unit(id)
		ut := st.TypeOf(id)
		switch {
		case ut.DestroyedWhenCaptured:
			destroy = append(destroy, id)
		case u.Disabled && !ut.IsInfrastructure:
			destroy = append(destroy, id)
		case ut.IsInfrastructure || ut.IsCapturable:
			capture = append(capture, id)
		}
	}
	if len(destroy) > 0 {
		change.Add(world.RemoveUnits(territory, destroy))
	}
	if len(capture) > 0 {
		change.Add(world.ChangeUnitOwner(capture, newOwner))
	}
	return change
}

// UndoBattle takes units back out of the battles at the route's end and forgets conquests that
// no longer hold.
func (t *Tracker) UndoBattle(br Bridge, route world.Route, units []string, player string) error {
	st := br.State()
	for _, b := range t.Battles() {
		if b.Territory() != route.End() || b.Attacker() != player {
			continue
		}
		if err := br.AddChange(b.RemoveAttack(route, units)); err != nil {
			return fmt.Errorf("undo attack on %s: %w", b.Territory(), err)
		}
		if b.IsEmpty() {
			t.Records.RemoveBattle(player, b.ID())
			t.RemoveBattle(b)
			delete(t.FoughtBattles, b.Territory())
		}
	}
	for _, name := range route.Territories {
		terr := st.Territory(name)
		if terr == nil {
			continue
		}
		if !st.IsAllied(terr.Owner, player) && t.Conquered[name] {
			delete(t.Conquered, name)
			delete(t.Blitzed, name)
		}
	}
	return nil
}

// AddToConquered marks territories as conquered this turn.
func (t *Tracker) AddToConquered(territories ...string) {
	for _, name := range territories {
		t.Conquered[name] = true
	}
}

// WasConquered reports whether the territory changed hands by conquest this turn.
func (t *Tracker) WasConquered(territory string) bool { return t.Conquered[territory] }

// WasBlitzed reports whether the territory was conquered in passing this turn.
func (t *Tracker) WasBlitzed(territory string) bool { return t.Blitzed[territory] }

// WasBattleFought reports whether a battle in the territory ended this turn.
func (t *Tracker) WasBattleFought(territory string) bool { return t.FoughtBattles[territory] }

// AddNoBombardAllowedFrom forbids bombardment out of the sea zone, e.g. after its units fought.
func (t *Tracker) AddNoBombardAllowedFrom(territory string) { t.NoBombardAllowed[territory] = true }

// AddRelationshipChange records a stance change made this turn.
func (t *Tracker) AddRelationshipChange(change RelationshipChange) {
	t.RelationshipChanges = append(t.RelationshipChanges, change)
}

// WentToWarThisTurn reports whether the two players started fighting this turn.
func (t *Tracker) WentToWarThisTurn(a, b string) bool {
	for _, rc := range t.RelationshipChanges {
		if ((rc.PlayerA == a && rc.PlayerB == b) || (rc.PlayerA == b && rc.PlayerB == a)) && rc.To == "war" {
			return true
		}
	}
	return false
}

// ClearFinishedBattles fights every already decided battle, which records and removes it.
func (t *Tracker) ClearFinishedBattles(ctx context.Context, br Bridge) error {
	for _, b := range t.Battles() {
		if b.Kind() != KindFinished {
			continue
		}
		if err := b.Fight(ctx, br); err != nil {
			return err
		}
	}
	return nil
}

// ClearEmptyAirBattleAttacks ends air battles nobody can defend, spawning their raids.
func (t *Tracker) ClearEmptyAirBattleAttacks(ctx context.Context, br Bridge) error {
	for _, b := range t.Battles() {
		ab, ok := b.(*AirBattle)
		if !ok {
			continue
		}
		ab.updateDefendingUnits(br.State())
		if len(ab.Defenders) == 0 {
			if err := ab.finishHeadless(ctx, br); err != nil {
				return err
			}
		}
	}
	return nil
}

// FightAirRaidsAndStrategicBombing fights every air raid, then every bombing raid (including the
// ones the air raids spawned).
func (t *Tracker) FightAirRaidsAndStrategicBombing(ctx context.Context, br Bridge) error {
	for _, site := range t.sitesOf(true) {
		if b := t.PendingBattle(site, TypeAirRaid); b != nil {
			if err := b.Fight(ctx, br); err != nil {
				return err
			}
		}
	}
	for _, site := range t.sitesOf(true) {
		if b := t.PendingBattle(site, TypeBombingRaid); b != nil {
			if err := b.Fight(ctx, br); err != nil {
				return err
			}
		}
	}
	return nil
}

// FightDefenselessBattles resolves normal battles whose defenders cannot roll a hit, then every
// unblocked occupation.
func (t *Tracker) FightDefenselessBattles(ctx context.Context, br Bridge) error {
	st := br.State()
	for _, site := range t.sitesOf(false) {
		b := t.PendingBattle(site, TypeNormal)
		if b == nil || len(t.DependentOn(b)) > 0 {
			continue
		}
		cv := newCombatValue(st, br.Rules(), true, fireNormal)
		if cv.totalPower(b.DefendingUnits()) == 0 {
			if err := b.Fight(ctx, br); err != nil {
				return err
			}
		}
	}
	for _, site := range t.sitesOf(false) {
		b := t.PendingBattle(site, TypeNormal)
		if b == nil || b.Kind() != KindNonFighting || len(t.DependentOn(b)) > 0 {
			continue
		}
		if err := b.Fight(ctx, br); err != nil {
			return err
		}
	}
	return nil
}

// FightBattleIfOnlyOne fights the battles of the only remaining site, when none is blocked.
func (t *Tracker) FightBattleIfOnlyOne(ctx context.Context, br Bridge) error {
	sites := t.sitesOf(false)
	if len(sites) != 1 {
		return nil
	}
	for _, typ := range []BattleType{TypeAirBattle, TypeNormal} {
		b := t.PendingBattle(sites[0], typ)
		if b == nil || len(t.DependentOn(b)) > 0 {
			continue
		}
		if err := b.Fight(ctx, br); err != nil {
			return err
		}
	}
	return nil
}

// Clear resets the tracker at the end of the combat phase.
func (t *Tracker) Clear() {
	t.pending = nil
	t.dependencies = make(map[uuid.UUID]map[uuid.UUID]bool)
	t.Conquered = make(map[string]bool)
	t.Blitzed = make(map[string]bool)
	t.FoughtBattles = make(map[string]bool)
	t.NoBombardAllowed = make(map[string]bool)
	t.DefendingAirThatCanNotLand = make(map[string][]string)
	t.RelationshipChanges = nil
}
