package battle

import (
	"context"
	"fmt"
	"sort"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// StrategicBombingRaidBattle is a bombing run against a territory's production, or against
// damageable units when the rules say so. Defending AA fires once; surviving bombers roll damage.
type StrategicBombingRaidBattle struct {
	Core
	// Targets maps a damageable unit to the bombers aimed at it.
	Targets map[string][]string
	// BombingDice holds the zero-based damage dice of each bomber once rolled.
	BombingDice map[string][]int
	Rolled      bool
	Cost        int
}

// NewStrategicBombingRaidBattle creates an empty raid on site.
func NewStrategicBombingRaidBattle(site, attacker string, st *world.State, tracker *Tracker) *StrategicBombingRaidBattle {
	b := &StrategicBombingRaidBattle{
		Targets:     make(map[string][]string),
		BombingDice: make(map[string][]int),
	}
	b.init(site, attacker, TypeBombingRaid, st, tracker)
	b.Defenders = raidDefenders(st, site, attacker)
	return b
}

func bombingAA(u *world.Unit, ut *world.UnitType) bool {
	return ut.IsAA && ut.AAForBombing && !u.Disabled
}

// raidDefenders are the enemy units a raid can damage plus the AA that shoots at bombers.
func raidDefenders(st *world.State, site, attacker string) []string {
	return st.Matches(site, func(u *world.Unit, ut *world.UnitType) bool {
		if !st.IsAtWar(attacker, u.Owner) {
			return false
		}
		return ut.CanBeDamaged || bombingAA(u, ut)
	})
}

// Kind implements Battle.
func (b *StrategicBombingRaidBattle) Kind() BattleKind { return KindBombingRaid }

// IsEmpty reports whether no bomber is left.
func (b *StrategicBombingRaidBattle) IsEmpty() bool { return len(b.Attackers) == 0 }

// AddAttackChange adds bombers and their planned targets. It never changes the map.
func (b *StrategicBombingRaidBattle) AddAttackChange(route world.Route, units []string, targets map[string][]string) world.Change {
	b.recordAttackingFrom(route, units)
	b.Attackers = appendUnique(b.Attackers, units...)
	for target, bombers := range targets {
		b.Targets[target] = appendUnique(b.Targets[target], bombers...)
	}
	return world.Change{}
}

// RemoveAttack implements Battle.
func (b *StrategicBombingRaidBattle) RemoveAttack(route world.Route, units []string) world.Change {
	b.Attackers = without(b.Attackers, units)
	b.forgetAttackingFrom(route, units)
	b.dropTargets(units)
	return world.Change{}
}

func (b *StrategicBombingRaidBattle) dropTargets(units []string) {
	for target, bombers := range b.Targets {
		if left := without(bombers, units); len(left) > 0 {
			b.Targets[target] = left
		} else {
			delete(b.Targets, target)
		}
	}
}

// UnitsLostInPrecedingBattle drops bombers shot down in the air battle; with none left the raid
// is dropped without a record.
func (b *StrategicBombingRaidBattle) UnitsLostInPrecedingBattle(_ context.Context, br Bridge, units []string, _ bool) error {
	b.Attackers = without(b.Attackers, units)
	b.dropTargets(units)
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
	br.History().AddChildToEvent("Bombing raid in "+b.Site+" called off", nil)
	return nil
}

// Cancel implements Battle.
func (b *StrategicBombingRaidBattle) Cancel(_ context.Context, br Bridge) error {
	b.cancel(br)
	return nil
}

func (b *StrategicBombingRaidBattle) title() string {
	return fmt.Sprintf("Bombing raid in %s", b.Site)
}

// damageable lists what the raid can still hurt: any damageable enemy unit when bombing the
// territory, units with damage capacity left otherwise.
func (b *StrategicBombingRaidBattle) damageable(st *world.State, rules Rules) []string {
	return st.Matches(b.Site, func(u *world.Unit, ut *world.UnitType) bool {
		if !ut.CanBeDamaged || !st.IsAtWar(b.AttackingPlayer, u.Owner) {
			return false
		}
		return !rules.DamageFromBombingDoneToUnitsInsteadOfTerritories || !u.AtMaxDamage(ut)
	})
}

// Fight starts or resumes the raid.
func (b *StrategicBombingRaidBattle) Fight(ctx context.Context, br Bridge) error {
	if b.Over {
		return nil
	}
	st, rules := br.State(), br.Rules()
	b.removeUnitsThatNoLongerExist(st)
	if b.Stack.IsExecuting() {
		b.showBattle(br, b.title(), b.raidSteps(st))
		return b.execute(ctx, br, b.runStep)
	}

	br.History().StartEvent(b.title())
	b.Defenders = raidDefenders(st, b.Site, b.AttackingPlayer)
	b.publish(br, history.EventBattleStarted, b.AttackingPlayer, 0, b.Attackers)
	b.logger(br).Info("bombing raid started",
		zap.String("attacker", b.AttackingPlayer),
		zap.String("defender", b.DefendingPlayer),
		zap.Int("bombers", len(b.Attackers)),
	)
	if len(b.Attackers) == 0 || len(b.damageable(st, rules)) == 0 {
		return b.finish(ctx, br, Draw, ResultNoBattle, "Bombing raid does no damage")
	}
	steps := b.raidSteps(st)
	b.showBattle(br, b.title(), steps)
	b.Stack.PushReverse(steps)
	return b.execute(ctx, br, b.runStep)
}

func (b *StrategicBombingRaidBattle) raidSteps(st *world.State) []Step {
	var steps []Step
	aa := st.Filter(b.Defenders, bombingAA)
	var types []string
	for _, id := range aa {
		ut := st.TypeOf(id)
		if st.Any(b.Attackers, func(_ *world.Unit, tt *world.UnitType) bool { return ut.Targets(tt) }) {
			types = appendUnique(types, aaTypeOf(ut))
		}
	}
	sort.Strings(types)
	for _, typ := range types {
		steps = append(steps, Step{Kind: StepFireAA, Defender: true, AAType: typ, Name: b.DefendingPlayer + " " + typ + " fire"})
	}
	return append(steps,
		Step{Kind: StepRaidRoll, Name: b.AttackingPlayer + " bombing"},
		Step{Kind: StepRaidDamage, Name: "Bombing damage"},
		Step{Kind: StepRaidEnd},
	)
}

func (b *StrategicBombingRaidBattle) runStep(ctx context.Context, br Bridge, step Step) error {
	switch step.Kind {
	case StepFireAA:
		b.fireAA(br, step)
		return nil
	case StepRoll, StepSelectCasualties, StepNotifyCasualties:
		return b.runFireStep(ctx, br, step)
	case StepRaidRoll:
		if !b.Headless {
			br.Display().GotoBattleStep(b.BattleID.String(), step.Name)
		}
		return b.rollDamage(ctx, br)
	case StepRaidDamage:
		return b.applyDamage(ctx, br)
	case StepRaidEnd:
		return b.end(ctx, br)
	}
	return invariantf("bombing raid cannot run step %s", step.Kind)
}

// aaTargets returns the bombers the AA units may shoot at. An AA limited to defending itself only
// sees the bombers aimed at it.
func (b *StrategicBombingRaidBattle) aaTargets(st *world.State, aa []string) []string {
	var targets []string
	for _, id := range aa {
		ut := st.TypeOf(id)
		candidates := b.Attackers
		if ut.AAForBombingThisUnitOnly {
			candidates = st.Filter(b.Targets[id], func(u *world.Unit, _ *world.UnitType) bool {
				return containsID(b.Attackers, u.ID)
			})
		}
		targets = appendUnique(targets, st.Filter(candidates, func(_ *world.Unit, tt *world.UnitType) bool {
			return ut.Targets(tt)
		})...)
	}
	return targets
}

func (b *StrategicBombingRaidBattle) fireAA(br Bridge, step Step) {
	st := br.State()
	aa := st.Filter(b.Defenders, func(u *world.Unit, ut *world.UnitType) bool {
		return bombingAA(u, ut) && aaTypeOf(ut) == step.AAType
	})
	targets := b.aaTargets(st, aa)
	if len(aa) == 0 || len(targets) == 0 {
		return
	}
	b.Stack.PushReverse(b.newFire(&FireState{
		Defender:   true,
		Firer:      b.DefendingPlayer,
		HitPlayer:  b.AttackingPlayer,
		Firing:     aa,
		Targets:    targets,
		ReturnFire: ReturnFireNone,
		Kind:       fireAA,
		Category:   dice.CategoryAA,
		StepName:   step.Name,
		AA:         true,
	}))
}

// bomberDice returns the die size, number of dice and per-die bonus of one bomber.
func bomberDice(st *world.State, rules Rules, ut *world.UnitType) (sides, count, bonus int) {
	sides = st.DiceSides
	if rules.UseBombingMaxDiceSidesAndBonus {
		if ut.BombingMaxDieSides > 0 {
			sides = ut.BombingMaxDieSides
		}
		bonus = ut.BombingBonus
	}
	// low luck only shrinks dice big enough to keep a spread
	if rules.LowLuckDamageOnly && sides >= 5 {
		third := (sides + 1) / 3
		sides = third
		bonus += third
	}
	count = ut.AttackRolls
	if count < 1 {
		count = 1
	}
	return sides, count, bonus
}

// rollDamage rolls the bombing dice. Bombers sharing a die size roll together.
func (b *StrategicBombingRaidBattle) rollDamage(ctx context.Context, br Bridge) error {
	if b.Rolled {
		return nil
	}
	st, rules := br.State(), br.Rules()
	bombers := st.Filter(b.Attackers, func(u *world.Unit, _ *world.UnitType) bool { return st.Exists(u.ID, b.Site) })
	if rules.DamageFromBombingDoneToUnitsInsteadOfTerritories {
		targets, err := b.assignBombingTargets(ctx, br, bombers, b.Targets)
		if err != nil {
			return err
		}
		b.Targets = targets
		if b.Targets == nil {
			b.Targets = make(map[string][]string)
		}
	}

	sides := make(map[string]int, len(bombers))
	counts := make(map[string]int, len(bombers))
	same := true
	for _, id := range bombers {
		s, n, _ := bomberDice(st, rules, st.TypeOf(id))
		sides[id], counts[id] = s, n
		if s != sides[bombers[0]] {
			same = false
		}
	}
	annotation := fmt.Sprintf("%s bombing raid in %s", b.AttackingPlayer, b.Site)
	rolled := make(map[string][]int, len(bombers))
	if same && len(bombers) > 0 {
		total := 0
		for _, id := range bombers {
			total += counts[id]
		}
		values, err := br.Dice().Roll(ctx, sides[bombers[0]], total, b.AttackingPlayer, dice.CategoryBombing, annotation)
		if err != nil {
			return err
		}
		if len(values) != total {
			return invariantf("bombing roll returned %d dice, want %d", len(values), total)
		}
		for _, id := range bombers {
			rolled[id] = values[:counts[id]]
			values = values[counts[id]:]
		}
	} else {
		// each roll is kept as soon as it succeeds so a resumed raid skips finished bombers
		if b.BombingDice == nil {
			b.BombingDice = make(map[string][]int, len(bombers))
		}
		for _, id := range bombers {
			if _, done := b.BombingDice[id]; done {
				rolled[id] = b.BombingDice[id]
				continue
			}
			values, err := br.Dice().Roll(ctx, sides[id], counts[id], b.AttackingPlayer, dice.CategoryBombing, annotation)
			if err != nil {
				return err
			}
			b.BombingDice[id] = values
			rolled[id] = values
		}
	}
	b.BombingDice, b.Rolled = rolled, true

	var all []int
	for _, id := range bombers {
		all = append(all, rolled[id]...)
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s rolls bombing dice %v", b.AttackingPlayer, oneBased(all)), bombers)
	b.publish(br, history.EventDiceRolled, b.AttackingPlayer, len(all), bombers)
	return nil
}

func oneBased(values []int) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = v + 1
	}
	return out
}

// bomberDamage turns one bomber's dice into damage: the best die under heavy bomber rules or for
// types that choose their best roll, otherwise the sum.
func bomberDamage(rules Rules, ut *world.UnitType, values []int, bonus int) int {
	if len(values) == 0 {
		return 0
	}
	if rules.LHTRHeavyBombers || ut.ChooseBestRoll {
		best := values[0]
		for _, v := range values[1:] {
			if v > best {
				best = v
			}
		}
		return best + 1 + bonus
	}
	total := 0
	for _, v := range values {
		total += v + 1 + bonus
	}
	return total
}

func (b *StrategicBombingRaidBattle) applyDamage(ctx context.Context, br Bridge) error {
	st, rules := br.State(), br.Rules()
	damage := make(map[string]int, len(b.BombingDice))
	bombers := make([]string, 0, len(b.BombingDice))
	for id, values := range b.BombingDice {
		ut := st.TypeOf(id)
		if ut == nil {
			continue
		}
		_, _, bonus := bomberDice(st, rules, ut)
		damage[id] = bomberDamage(rules, ut, values, bonus)
		bombers = append(bombers, id)
	}
	sort.Strings(bombers)

	var (
		cost int
		err  error
	)
	if rules.DamageFromBombingDoneToUnitsInsteadOfTerritories {
		cost, err = b.damageUnits(ctx, br, damage)
	} else {
		total := 0
		for _, id := range bombers {
			total += damage[id]
		}
		cost, err = b.damageTerritory(br, total)
	}
	if err != nil {
		return err
	}
	b.Cost = cost

	var all []int
	for _, id := range bombers {
		all = append(all, oneBased(b.BombingDice[id])...)
	}
	if !b.Headless {
		br.Display().BombingResults(b.BattleID.String(), all, cost)
	}
	b.publish(br, history.EventBombingDamage, b.DefendingPlayer, cost, bombers)
	b.logger(br).Info("bombing damage", zap.Int("cost", cost), zap.Ints("dice", all))
	return nil
}

// damageTerritory charges the territory owner. Damage is capped by production under the
// production and per-turn rules, then multiplied into PUs and capped by what the owner holds.
func (b *StrategicBombingRaidBattle) damageTerritory(br Bridge, total int) (int, error) {
	st, rules := br.State(), br.Rules()
	t := st.Territory(b.Site)
	if t == nil {
		return 0, fmt.Errorf("bombing %s: %w", b.Site, world.ErrUnknownTerritory)
	}
	damage := total
	if rules.WW2V2 || rules.LimitSBRDamageToProduction {
		damage = min(damage, t.Production)
	}
	if rules.PUCap || rules.LimitSBRDamagePerTurn {
		damage = min(damage, max(0, t.Production-st.PUsLost[b.Site]))
	}
	if damage <= 0 {
		return 0, nil
	}
	cost := damage
	if rules.PUMultiplier > 1 {
		cost *= rules.PUMultiplier
	}
	if p := st.Player(t.Owner); p != nil {
		cost = min(cost, p.Resources[world.ResourcePUs])
	} else {
		cost = 0
	}

	var change world.Change
	if cost > 0 {
		change.Add(world.ChangeResource(t.Owner, world.ResourcePUs, -cost))
	}
	change.Add(world.AddTerritoryDamage(b.Site, damage))
	if err := br.AddChange(change); err != nil {
		return 0, fmt.Errorf("bombing damage in %s: %w", b.Site, err)
	}
	br.History().AddChildToEvent(fmt.Sprintf("Bombing raid in %s costs %s %d PUs", b.Site, t.Owner, cost), nil)
	return cost, nil
}

// damageUnits adds bombing damage to each target, capped by the damage it can still take. Targets
// that reach their maximum and die from it are removed.
func (b *StrategicBombingRaidBattle) damageUnits(ctx context.Context, br Bridge, damage map[string]int) (int, error) {
	st := br.State()
	targets := make([]string, 0, len(b.Targets))
	for target := range b.Targets {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	cost := 0
	var (
		change world.Change
		dead   []string
	)
	for _, target := range targets {
		u := st.Unit(target)
		if u == nil {
			continue
		}
		ut := st.TypeOf(target)
		amount := 0
		for _, bomber := range b.Targets[target] {
			amount += damage[bomber]
		}
		amount = min(amount, u.DamageCapacityLeft(ut))
		if amount <= 0 {
			continue
		}
		cost += amount
		change.Add(world.SetUnitInt(target, world.PropBombingDamage, u.BombingDamage+amount))
		br.History().AddChildToEvent(fmt.Sprintf("Bombing raid in %s does %d damage to %s", b.Site, amount, ut.Name), []string{target})
		if u.BombingDamage+amount >= ut.MaxDamage && ut.CanDieFromReachingMaxDamage {
			dead = append(dead, target)
		}
	}
	if !change.IsEmpty() {
		if err := br.AddChange(change); err != nil {
			return 0, fmt.Errorf("bombing damage in %s: %w", b.Site, err)
		}
	}
	if len(dead) > 0 {
		if err := b.removeUnits(ctx, br, dead); err != nil {
			return 0, err
		}
	}
	return cost, nil
}

func (b *StrategicBombingRaidBattle) end(ctx context.Context, br Bridge) error {
	st := br.State()
	if suicide := st.Filter(b.Attackers, suicideOnAttack); len(suicide) > 0 {
		if err := b.removeUnits(ctx, br, suicide); err != nil {
			return err
		}
	}
	if b.Cost > 0 {
		return b.finish(ctx, br, Attacker, ResultBombed, fmt.Sprintf("Raid causes %d damage in %s", b.Cost, b.Site))
	}
	return b.finish(ctx, br, Defender, ResultLost, "Bombing raid does no damage")
}

// assignBombingTargets assigns each bomber a unit to damage when bombing hits units rather than the
// territory. A target chosen before the air battle is kept while it is still valid.
func (c *Core) assignBombingTargets(ctx context.Context, br Bridge, bombers []string, plannedTargets map[string][]string) (map[string][]string, error) {
	st, rules := br.State(), br.Rules()
	if !rules.DamageFromBombingDoneToUnitsInsteadOfTerritories {
		return nil, nil
	}
	candidates := st.Matches(c.Site, func(u *world.Unit, ut *world.UnitType) bool {
		return ut.CanBeDamaged && st.IsAtWar(c.AttackingPlayer, u.Owner)
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	planned := make(map[string]string)
	for target, list := range plannedTargets {
		for _, bomber := range list {
			planned[bomber] = target
		}
	}
	targets := make(map[string][]string)
	for _, bomber := range bombers {
		target := planned[bomber]
		switch {
		case len(candidates) == 1:
			target = candidates[0]
		case containsID(candidates, target):
		case c.Headless:
			target = candidates[0]
		default:
			err := callRemote(br, func() error {
				var err error
				target, err = remoteFor(br, c.AttackingPlayer).SelectBombingTarget(ctx, c.Site, bomber, candidates)
				return err
			})
			if err != nil {
				return nil, err
			}
			if !containsID(candidates, target) {
				return nil, invariantf("bombing target %s is not in %s", target, c.Site)
			}
		}
		targets[target] = append(targets[target], bomber)
	}
	for target := range targets {
		sort.Strings(targets[target])
	}
	return targets, nil
}
