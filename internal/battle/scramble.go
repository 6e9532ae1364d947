package battle

import (
	"context"
	"fmt"
	"sort"

	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// ScrambleLogic works out which defending aircraft may scramble into the battle sites of the
// attacker's turn.
type ScrambleLogic struct {
	st       *world.State
	rules    Rules
	attacker string
	sites    []string
	tracker  *Tracker
}

// NewScrambleLogic creates the planner for the attacker's battle sites.
func NewScrambleLogic(st *world.State, rules Rules, attacker string, sites []string, tracker *Tracker) *ScrambleLogic {
	return &ScrambleLogic{st: st, rules: rules, attacker: attacker, sites: sites, tracker: tracker}
}

// scrambleCapacity is how many more aircraft an airbase may send; -1 on the unit or its type is
// unlimited.
func scrambleCapacity(u *world.Unit, ut *world.UnitType) int {
	if ut.MaxScrambleCount < 0 || u.MaxScrambleCount < 0 {
		return world.Unlimited
	}
	return u.MaxScrambleCount
}

// airbases returns the live enemy airbases at from and their combined capacity.
func (l *ScrambleLogic) airbases(from string) ([]string, int) {
	st := l.st
	bases := st.Matches(from, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.IsAirBase && !u.Disabled && st.IsAtWar(l.attacker, u.Owner)
	})
	total := 0
	for _, id := range bases {
		c := scrambleCapacity(st.Unit(id), st.TypeOf(id))
		if c == world.Unlimited {
			return bases, world.Unlimited
		}
		total += c
	}
	return bases, total
}

func (l *ScrambleLogic) maxDistance() int {
	distance := 0
	for _, ut := range l.st.UnitTypes {
		if ut.CanScramble && ut.MaxScrambleDistance > distance {
			distance = ut.MaxScrambleDistance
		}
	}
	return distance
}

func (l *ScrambleLogic) hasFuel(u *world.Unit, ut *world.UnitType) bool {
	if !l.rules.ScrambleFuelCheck || ut.FuelCost <= 0 {
		return true
	}
	p := l.st.Player(u.Owner)
	return p != nil && p.Resources[world.ResourceFuel] >= ut.FuelCost
}

// UnitsThatCanScrambleByDestination maps each battle site to the origins whose aircraft may
// scramble into it.
func (l *ScrambleLogic) UnitsThatCanScrambleByDestination() map[string]map[string]ScrambleCandidates {
	st := l.st
	out := make(map[string]map[string]ScrambleCandidates)
	maxDist := l.maxDistance()
	if maxDist == 0 {
		return out
	}
	for _, to := range l.sites {
		target := st.Territory(to)
		if target == nil || (l.rules.ScrambleToSeaOnly && !target.Water) {
			continue
		}
		for _, from := range st.NeighborsWithin(to, maxDist) {
			if l.tracker != nil && l.tracker.HasPendingNonBombingBattle(from) {
				continue
			}
			bases, capacity := l.airbases(from)
			if len(bases) == 0 || capacity == 0 {
				continue
			}
			dist := st.Distance(from, to)
			scramblers := st.Matches(from, func(u *world.Unit, ut *world.UnitType) bool {
				return ut.IsAir && ut.CanScramble && !u.WasScrambled && !u.Disabled &&
					st.IsAtWar(l.attacker, u.Owner) && ut.MaxScrambleDistance >= dist && l.hasFuel(u, ut)
			})
			if len(scramblers) == 0 {
				continue
			}
			if out[to] == nil {
				out[to] = make(map[string]ScrambleCandidates)
			}
			out[to][from] = ScrambleCandidates{Airbases: bases, Scramblers: scramblers}
		}
	}
	return out
}

// scrambleSites are the normal battle sites plus the sea zones amphibious assaults come from.
func (d *BattleDelegate) scrambleSites() []string {
	sites := append([]string(nil), d.tracker.PendingBattleSites(false).NormalSites()...)
	for _, b := range d.tracker.Battles() {
		for from := range b.AmphibiousOrigins() {
			sites = appendUnique(sites, from)
		}
	}
	sort.Strings(sites)
	return sites
}

// doScrambling asks each defending player which aircraft rise to each battle site.
func (d *BattleDelegate) doScrambling(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	if !rules.ScrambleRulesInEffect {
		return nil
	}
	attacker := br.Player()
	byDestination := NewScrambleLogic(st, rules, attacker, d.scrambleSites(), d.tracker).UnitsThatCanScrambleByDestination()
	destinations := make([]string, 0, len(byDestination))
	for to := range byDestination {
		destinations = append(destinations, to)
	}
	sort.Strings(destinations)

	for _, to := range destinations {
		perOwner := make(map[string]map[string]ScrambleCandidates)
		for from, c := range byDestination[to] {
			for _, id := range c.Scramblers {
				// already sent to an earlier destination
				if u := st.Unit(id); u == nil || u.WasScrambled || !st.Exists(id, from) {
					continue
				}
				owner := st.OwnerOf(id)
				if perOwner[owner] == nil {
					perOwner[owner] = make(map[string]ScrambleCandidates)
				}
				oc := perOwner[owner][from]
				oc.Airbases = c.Airbases
				oc.Scramblers = append(oc.Scramblers, id)
				perOwner[owner][from] = oc
			}
		}
		owners := make([]string, 0, len(perOwner))
		for o := range perOwner {
			owners = append(owners, o)
		}
		sort.Strings(owners)

		for _, owner := range owners {
			candidates := perOwner[owner]
			var choice map[string][]string
			err := callRemote(br, func() error {
				var err error
				choice, err = remoteFor(br, owner).ScrambleUnitsQuery(ctx, to, candidates)
				return err
			})
			if err != nil {
				if isInterruption(err) {
					return fmt.Errorf("%w: scramble to %s: %w", ErrSuspended, to, err)
				}
				return err
			}
			if _, err := d.scramble(br, to, owner, candidates, choice); err != nil {
				return err
			}
		}
		// aircraft scrambled before a suspension count as well
		arrived := st.Matches(to, func(u *world.Unit, _ *world.UnitType) bool {
			return u.WasScrambled && st.IsAtWar(attacker, u.Owner)
		})
		if len(arrived) == 0 {
			continue
		}
		if err := d.joinScrambleBattle(br, to, attacker); err != nil {
			return err
		}
	}
	return nil
}

// scramble validates and carries out one player's scramble into to.
func (d *BattleDelegate) scramble(br Bridge, to, owner string, candidates map[string]ScrambleCandidates, choice map[string][]string) ([]string, error) {
	st, rules := br.State(), br.Rules()
	origins := make([]string, 0, len(choice))
	for from, units := range choice {
		if len(units) > 0 {
			origins = append(origins, from)
		}
	}
	sort.Strings(origins)

	var (
		change    world.Change
		all       []string
		fuel      int
		seen      = make(map[string]bool)
		remaining = make(map[string]int)
	)
	for _, from := range origins {
		units := choice[from]
		offered, ok := candidates[from]
		if !ok {
			return nil, invariantf("scramble from %s to %s was not offered", from, to)
		}
		for _, id := range units {
			if seen[id] || !containsID(offered.Scramblers, id) {
				return nil, invariantf("unit %s may not scramble from %s to %s", id, from, to)
			}
			seen[id] = true
			fuel += st.TypeOf(id).FuelCost
		}

		capacity := 0
		for _, base := range offered.Airbases {
			left, ok := remaining[base]
			if !ok {
				left = scrambleCapacity(st.Unit(base), st.TypeOf(base))
				remaining[base] = left
			}
			if left == world.Unlimited {
				capacity = world.Unlimited
				break
			}
			capacity += left
		}
		if len(units) > capacity {
			return nil, invariantf("%d units scrambled from %s, airbases allow %d", len(units), from, capacity)
		}
		need := len(units)
		for _, base := range offered.Airbases {
			if need == 0 || remaining[base] == world.Unlimited {
				break
			}
			take := min(need, remaining[base])
			remaining[base] -= take
			need -= take
			change.Add(world.SetUnitInt(base, world.PropMaxScrambleCount, remaining[base]))
		}

		change.Add(
			world.SetUnitBool(units, world.PropWasScrambled, true),
			world.SetUnitString(units, world.PropOriginatedFrom, from),
			world.MoveUnits(from, to, units),
		)
		all = append(all, units...)
		br.History().AddChildToEvent(fmt.Sprintf("%s scrambles %s from %s to %s", owner, describeUnits(st, units), from, to), units)
		evt := history.NewEventWithAmount(history.EventScramble, "", to, owner, len(units))
		evt.Units = units
		evt.Metadata["from"] = from
		br.Events().Publish(evt)
	}
	if len(all) == 0 {
		return nil, nil
	}
	if rules.ScrambleFuelCheck && fuel > 0 {
		p := st.Player(owner)
		if p == nil || p.Resources[world.ResourceFuel] < fuel {
			return nil, invariantf("%s lacks %d fuel to scramble to %s", owner, fuel, to)
		}
		change.Add(world.ChangeResource(owner, world.ResourceFuel, -fuel))
	}
	if err := br.AddChange(change); err != nil {
		return nil, fmt.Errorf("scramble to %s: %w", to, err)
	}
	d.logger.Info("units scrambled",
		zap.String("player", owner),
		zap.String("territory", to),
		zap.Int("units", len(all)),
	)
	return all, nil
}

// joinScrambleBattle makes sure the scrambled aircraft are fought: an existing battle picks them
// up as defenders, an empty site gets a new battle, and amphibious assaults out of a sea zone wait
// for the fight there.
func (d *BattleDelegate) joinScrambleBattle(br Bridge, to, attacker string) error {
	st := br.State()
	existing := d.tracker.PendingBattle(to, TypeNormal)
	var battle *MustFightBattle
	switch b := existing.(type) {
	case *MustFightBattle:
		b.Defenders = combatDefenders(st, to, attacker)
		battle = b
	case *NonFightingBattle:
		battle = NewMustFightBattle(to, attacker, st, d.tracker)
		battle.Attackers = append([]string(nil), b.Attackers...)
		for from, units := range b.AttackingFromMap {
			battle.AttackingFromMap[from] = append([]string(nil), units...)
			if t := st.Territory(from); t != nil && t.Water {
				if landed := st.Filter(units, func(u *world.Unit, ut *world.UnitType) bool { return ut.IsLand() && u.WasAmphibious }); len(landed) > 0 {
					battle.IsAmphibiousAttack = true
					battle.AmphibiousFrom[from] = landed
					battle.AmphibiousLandAttackers = appendUnique(battle.AmphibiousLandAttackers, landed...)
				}
			}
		}
		for transport, cargo := range b.Dependents {
			battle.Dependents[transport] = append([]string(nil), cargo...)
		}
		d.tracker.replaceBattle(b, battle)
		if err := d.tracker.linkSite(to); err != nil {
			return err
		}
	case nil:
		battle = NewMustFightBattle(to, attacker, st, d.tracker)
		battle.Attackers = st.Matches(to, func(u *world.Unit, ut *world.UnitType) bool {
			return !ut.IsInfrastructure && st.IsAllied(u.Owner, attacker)
		})
		water := st.Territory(to).Water
		for _, n := range st.Neighbors(to, func(t *world.Territory) bool { return t.Water == water }) {
			battle.AttackingFromMap[n] = append([]string(nil), battle.Attackers...)
		}
		d.tracker.add(battle)
		if err := d.tracker.linkSite(to); err != nil {
			return err
		}
	default:
		return invariantf("scramble into %s joins a %s", to, existing.Kind())
	}

	if t := st.Territory(to); t != nil && t.Water {
		for _, b := range d.tracker.Battles() {
			if b.ID() == battle.ID() {
				continue
			}
			if _, ok := b.AmphibiousOrigins()[to]; ok {
				if err := d.tracker.AddDependency(b, battle); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// scramblingCleanup sends scrambled aircraft home when the rules allow and their base is still
// friendly, then clears the scramble flags.
func (d *BattleDelegate) scramblingCleanup(br Bridge) error {
	st, rules := br.State(), br.Rules()
	ids := make([]string, 0)
	for id, u := range st.Units {
		if u.WasScrambled {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	var change world.Change
	if rules.ScrambledUnitsReturnToBase {
		home := make(map[[2]string][]string)
		for _, id := range ids {
			u := st.Unit(id)
			origin := st.Territory(u.OriginatedFrom)
			at := st.Locate(id)
			if origin == nil || at == "" || at == origin.Name || !st.IsAllied(origin.Owner, u.Owner) {
				continue
			}
			key := [2]string{at, origin.Name}
			home[key] = append(home[key], id)
		}
		keys := make([][2]string, 0, len(home))
		for k := range home {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i][0] != keys[j][0] {
				return keys[i][0] < keys[j][0]
			}
			return keys[i][1] < keys[j][1]
		})
		for _, k := range keys {
			change.Add(world.MoveUnits(k[0], k[1], home[k]))
			br.History().AddChildToEvent(fmt.Sprintf("%s return from %s to %s", describeUnits(st, home[k]), k[0], k[1]), home[k])
		}
	}
	change.Add(
		world.SetUnitBool(ids, world.PropWasScrambled, false),
		world.SetUnitString(ids, world.PropOriginatedFrom, ""),
	)
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("scramble cleanup: %w", err)
	}
	return nil
}

// airBattleCleanup clears the air battle flag of every unit.
func (d *BattleDelegate) airBattleCleanup(br Bridge) error {
	st := br.State()
	var ids []string
	for id, u := range st.Units {
		if u.WasInAirBattle {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	var change world.Change
	change.Add(world.SetUnitBool(ids, world.PropWasInAirBattle, false))
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("air battle cleanup: %w", err)
	}
	return nil
}
