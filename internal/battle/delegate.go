package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// RecordSink receives the battle records of a finished combat phase.
type RecordSink func(ctx context.Context, records []BattleRecord) error

// BattleDelegate drives the combat phase: it prepares the pending battles, fights the ones that
// need no decision and lets the player pick the rest one at a time. The Need flags make Start
// resumable after a suspension.
type BattleDelegate struct {
	logger  *zap.Logger
	tracker *Tracker
	current Battle
	sink    RecordSink

	NeedToInitialize                 bool
	NeedToScramble                   bool
	NeedToKamikazeSuicideAttacks     bool
	NeedToClearEmptyAirBattleAttacks bool
	NeedToAddBombardmentSources      bool
	NeedToFightPendingBattles        bool
}

// NewBattleDelegate creates a delegate over the tracker.
func NewBattleDelegate(tracker *Tracker, logger *zap.Logger) *BattleDelegate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = NewTracker(logger)
	}
	d := &BattleDelegate{logger: logger, tracker: tracker}
	d.resetFlags()
	d.watchTracker()
	return d
}

func (d *BattleDelegate) watchTracker() {
	d.tracker.SetOnRemove(func(b Battle) {
		if d.current != nil && d.current.ID() == b.ID() {
			d.current = nil
		}
	})
}

func (d *BattleDelegate) resetFlags() {
	d.NeedToInitialize = true
	d.NeedToScramble = true
	d.NeedToKamikazeSuicideAttacks = true
	d.NeedToClearEmptyAirBattleAttacks = true
	d.NeedToAddBombardmentSources = true
	d.NeedToFightPendingBattles = true
}

// Tracker returns the battle tracker.
func (d *BattleDelegate) Tracker() *Tracker { return d.tracker }

// SetTracker replaces the tracker, e.g. after restoring a snapshot.
func (d *BattleDelegate) SetTracker(t *Tracker) {
	d.tracker = t
	d.current = nil
	d.watchTracker()
}

// SetRecordSink installs where End flushes battle records.
func (d *BattleDelegate) SetRecordSink(sink RecordSink) { d.sink = sink }

// CurrentBattle returns the battle being fought, or nil.
func (d *BattleDelegate) CurrentBattle() Battle { return d.current }

// RequiresUserInput reports whether battles are left for the player to choose.
func (d *BattleDelegate) RequiresUserInput() bool { return !d.tracker.Listing().IsEmpty() }

// Battles lists the pending battles.
func (d *BattleDelegate) Battles() BattleListing { return d.tracker.Listing() }

// Start runs the automatic part of the combat phase. It is safe to call again after a
// suspension; finished preparation steps are not repeated.
func (d *BattleDelegate) Start(ctx context.Context, br Bridge) error {
	if d.NeedToInitialize {
		if err := d.initialize(ctx, br); err != nil {
			return d.fail(br, err)
		}
		d.NeedToInitialize = false
	}
	if d.NeedToScramble {
		if err := d.doScrambling(ctx, br); err != nil {
			return d.fail(br, err)
		}
		d.NeedToScramble = false
	}
	// kamikaze suicide attacks are not played; the flag is only kept for snapshots
	d.NeedToKamikazeSuicideAttacks = false
	if d.NeedToClearEmptyAirBattleAttacks {
		if err := d.tracker.ClearEmptyAirBattleAttacks(ctx, br); err != nil {
			return d.fail(br, err)
		}
		d.NeedToClearEmptyAirBattleAttacks = false
	}
	if d.NeedToAddBombardmentSources {
		if err := d.addBombardmentSources(ctx, br); err != nil {
			return d.fail(br, err)
		}
		d.NeedToAddBombardmentSources = false
	}
	if d.NeedToFightPendingBattles {
		if err := d.tracker.FightAirRaidsAndStrategicBombing(ctx, br); err != nil {
			return d.fail(br, err)
		}
		if err := d.tracker.FightDefenselessBattles(ctx, br); err != nil {
			return d.fail(br, err)
		}
		if err := d.tracker.FightBattleIfOnlyOne(ctx, br); err != nil {
			return d.fail(br, err)
		}
		d.NeedToFightPendingBattles = false
	}
	d.logger.Debug("combat phase started",
		zap.String("player", br.Player()),
		zap.Int("pending_battles", len(d.tracker.Battles())),
	)
	return nil
}

// fail logs err at the level it deserves and returns it unchanged.
func (d *BattleDelegate) fail(br Bridge, err error) error {
	if errors.Is(err, ErrSuspended) {
		d.logger.Info("combat phase suspended", zap.String("player", br.Player()), zap.Error(err))
		return err
	}
	fields := []zap.Field{zap.String("player", br.Player()), zap.Error(err)}
	if d.current != nil {
		fields = append(fields, zap.String("battle_id", d.current.ID().String()))
	}
	d.logger.Error("combat phase failed", fields...)
	return err
}

// FightBattle fights the chosen battle. A battle that may not be fought yet yields a message for
// the player and no error.
func (d *BattleDelegate) FightBattle(ctx context.Context, br Bridge, territory string, bombing bool, typ BattleType) (string, error) {
	b := d.tracker.PendingBattle(territory, typ)
	if b == nil || b.IsBombingRun() != bombing {
		return "No pending battle in " + territory, nil
	}
	if d.current != nil && d.current.ID() != b.ID() && !d.current.IsOver() {
		return fmt.Sprintf("Must finish %s in %s first", d.current.Type(), d.current.Territory()), nil
	}
	if !bombing {
		if raid := d.tracker.PendingBombingBattle(territory); raid != nil {
			return fmt.Sprintf("Must finish %s in %s first", raid.Type(), territory), nil
		}
	}
	if blockers := d.tracker.DependentOn(b); len(blockers) > 0 {
		return fmt.Sprintf("Must complete %s in %s first", blockers[0].Type(), blockers[0].Territory()), nil
	}

	d.current = b
	d.logger.Info("fighting battle",
		zap.String("battle_id", b.ID().String()),
		zap.String("territory", territory),
		zap.String("battle_type", typ.String()),
	)
	if err := b.Fight(ctx, br); err != nil {
		return "", d.fail(br, err)
	}
	if b.IsOver() {
		d.current = nil
	}
	return "", nil
}

// End closes the combat phase: records are flushed, scrambled aircraft go home, defending
// aircraft with nowhere to land are lost and the tracker is reset.
func (d *BattleDelegate) End(ctx context.Context, br Bridge) error {
	if d.sink != nil {
		if err := d.sink(ctx, d.tracker.Records.All()); err != nil {
			return fmt.Errorf("flush battle records: %w", err)
		}
	}
	if err := d.scramblingCleanup(br); err != nil {
		return err
	}
	if err := d.airBattleCleanup(br); err != nil {
		return err
	}
	if err := d.killDefendingAirThatCanNotLand(br); err != nil {
		return err
	}
	d.logger.Info("combat phase ended",
		zap.String("player", br.Player()),
		zap.Int("battles", len(d.tracker.Records.All())),
	)
	d.tracker.Clear()
	d.tracker.Records.Clear()
	d.current = nil
	d.resetFlags()
	return nil
}

func (d *BattleDelegate) initialize(ctx context.Context, br Bridge) error {
	if err := d.setupUnitsInSameTerritoryBattles(br); err != nil {
		return err
	}
	if err := d.setupTerritoriesAbandonedToTheEnemy(br); err != nil {
		return err
	}
	if err := d.tracker.ClearFinishedBattles(ctx, br); err != nil {
		return err
	}
	return d.resetMaxScrambleCount(br)
}

// setupUnitsInSameTerritoryBattles starts battles where the player's units already share a
// territory with enemies, e.g. after declaring war.
func (d *BattleDelegate) setupUnitsInSameTerritoryBattles(br Bridge) error {
	st := br.State()
	player := br.Player()
	for _, name := range sortedTerritories(st) {
		if d.tracker.PendingBattle(name, TypeNormal) != nil {
			continue
		}
		own := st.Matches(name, func(u *world.Unit, ut *world.UnitType) bool {
			return u.Owner == player && !ut.IsInfrastructure
		})
		if len(own) == 0 {
			continue
		}
		enemies := st.Filter(st.EnemyUnits(name, player), notInfra)
		if len(enemies) == 0 {
			continue
		}
		if err := d.tracker.addMustFightBattle(br, world.ScriptedRoute(name), own, player); err != nil {
			return err
		}
	}
	return nil
}

// setupTerritoriesAbandonedToTheEnemy takes over enemy land the player occupies unopposed.
func (d *BattleDelegate) setupTerritoriesAbandonedToTheEnemy(br Bridge) error {
	st, rules := br.State(), br.Rules()
	if !rules.AbandonedTerritoriesMayBeTakenOverImmediately {
		return nil
	}
	player := br.Player()
	for _, name := range sortedTerritories(st) {
		if len(d.tracker.PendingBattles(name)) > 0 || !conquerable(st, name, player) {
			continue
		}
		land := st.Matches(name, func(u *world.Unit, ut *world.UnitType) bool {
			return u.Owner == player && ut.IsLand() && !ut.IsInfrastructure
		})
		if len(land) == 0 {
			continue
		}
		d.tracker.AddToConquered(name)
		if err := d.tracker.TakeOver(br, name, player, land); err != nil {
			return err
		}
	}
	return nil
}

func (d *BattleDelegate) resetMaxScrambleCount(br Bridge) error {
	st, rules := br.State(), br.Rules()
	if !rules.ScrambleRulesInEffect {
		return nil
	}
	var change world.Change
	ids := make([]string, 0)
	for id, u := range st.Units {
		if ut := st.TypeOf(id); ut != nil && ut.IsAirBase && u.MaxScrambleCount != ut.MaxScrambleCount {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		change.Add(world.SetUnitInt(id, world.PropMaxScrambleCount, st.TypeOf(id).MaxScrambleCount))
	}
	return br.AddChange(change)
}

// addBombardmentSources lets ships next to an amphibious assault bombard it. Each ship bombards
// at most one battle.
func (d *BattleDelegate) addBombardmentSources(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	player := br.Player()
	used := make(map[string]bool)
	for _, b := range d.tracker.Battles() {
		mf, ok := b.(*MustFightBattle)
		if !ok || mf.IsOver() || !mf.IsAmphibiousAttack {
			continue
		}
		site := st.Territory(mf.Site)
		if site == nil {
			continue
		}
		for _, from := range mf.AttackingFrom() {
			zone := st.Territory(from)
			if zone == nil || !zone.Water || !containsID(site.Neighbors, from) {
				continue
			}
			if d.tracker.NoBombardAllowed[from] || d.tracker.HasPendingNonBombingBattle(from) {
				continue
			}
			ships := st.Matches(from, func(u *world.Unit, ut *world.UnitType) bool {
				return u.Owner == player && ut.CanBombard() && !u.Disabled && !used[u.ID]
			})
			if len(ships) == 0 {
				continue
			}
			var chosen []string
			err := callRemote(br, func() error {
				var err error
				chosen, err = remoteFor(br, player).SelectShoreBombard(ctx, mf.Site, ships)
				return err
			})
			if err != nil {
				if isInterruption(err) {
					return fmt.Errorf("%w: shore bombard of %s: %w", ErrSuspended, mf.Site, err)
				}
				return err
			}
			for _, id := range chosen {
				if !containsID(ships, id) {
					return invariantf("unit %s may not bombard %s", id, mf.Site)
				}
			}
			if rules.ShoreBombardPerGroundUnit {
				limit := len(mf.AmphibiousLandAttackers) - len(mf.Bombarding)
				if limit < 0 {
					limit = 0
				}
				if len(chosen) > limit {
					chosen = chosen[:limit]
				}
			}
			for _, id := range chosen {
				used[id] = true
			}
			if len(chosen) > 0 {
				mf.AddBombardingUnits(chosen...)
				br.History().AddChildToEvent(fmt.Sprintf("%s bombard %s from %s", describeUnits(st, chosen), mf.Site, from), chosen)
			}
		}
	}
	return nil
}

// killDefendingAirThatCanNotLand removes defending aircraft left without a carrier or friendly
// land in reach after their battle.
func (d *BattleDelegate) killDefendingAirThatCanNotLand(br Bridge) error {
	st := br.State()
	territories := make([]string, 0, len(d.tracker.DefendingAirThatCanNotLand))
	for name := range d.tracker.DefendingAirThatCanNotLand {
		territories = append(territories, name)
	}
	sort.Strings(territories)
	for _, name := range territories {
		var dead []string
		for _, id := range d.tracker.DefendingAirThatCanNotLand[name] {
			if st.Exists(id, name) {
				dead = append(dead, id)
			}
		}
		if len(dead) == 0 {
			continue
		}
		lost := make(map[string]int)
		for _, id := range dead {
			lost[st.OwnerOf(id)] += st.TypeOf(id).Cost
		}
		text := fmt.Sprintf("%s could not land in %s and were killed", describeUnits(st, dead), name)
		var change world.Change
		change.Add(world.RemoveUnits(name, dead))
		if err := br.AddChange(change); err != nil {
			return fmt.Errorf("kill stranded air in %s: %w", name, err)
		}
		br.History().StartEvent(text)
		owners := make([]string, 0, len(lost))
		for o := range lost {
			owners = append(owners, o)
		}
		sort.Strings(owners)
		for _, o := range owners {
			evt := history.NewEventWithAmount(history.EventCasualties, "", name, o, lost[o])
			evt.Units = dead
			evt.Message = text
			br.Events().Publish(evt)
		}
	}
	return nil
}

func sortedTerritories(st *world.State) []string {
	names := make([]string, 0, len(st.Territories))
	for name := range st.Territories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
