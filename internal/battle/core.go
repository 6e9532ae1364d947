package battle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// maxRounds guards against a battle that never ends.
const maxRounds = 10000

// Battle is one pending fight in one territory. The set of implementations is closed; see
// BattleKind for the exhaustive list.
type Battle interface {
	ID() uuid.UUID
	Territory() string
	Type() BattleType
	Attacker() string
	Defender() string
	IsBombingRun() bool
	// Fight runs or resumes the battle. It returns a wrapped ErrSuspended when a step is waiting
	// on a remote player or the dice, and a wrapped ErrInvariant on a fatal rule violation.
	Fight(ctx context.Context, br Bridge) error
	AddAttackChange(route world.Route, units []string, targets map[string][]string) world.Change
	RemoveAttack(route world.Route, units []string) world.Change
	IsEmpty() bool
	IsOver() bool
	WhoWon() WhoWon
	UnitsLostInPrecedingBattle(ctx context.Context, br Bridge, units []string, withdrawn bool) error
	// AmphibiousOrigins maps sea zones to the units that landed from them; nil when the battle
	// has no amphibious attack.
	AmphibiousOrigins() map[string][]string
	AttackingUnits() []string
	DefendingUnits() []string
	DependentUnits(units []string) []string
	Cancel(ctx context.Context, br Bridge) error
	Kind() BattleKind

	core() *Core
}

// BattleKind is the concrete variant of a battle.
type BattleKind int

const (
	KindMustFight BattleKind = iota
	KindAirBattle
	KindBombingRaid
	KindNonFighting
	KindFinished
)

// String returns the variant name.
func (k BattleKind) String() string {
	switch k {
	case KindMustFight:
		return "MustFightBattle"
	case KindAirBattle:
		return "AirBattle"
	case KindBombingRaid:
		return "StrategicBombingRaidBattle"
	case KindNonFighting:
		return "NonFightingBattle"
	case KindFinished:
		return "FinishedBattle"
	default:
		return "Unknown"
	}
}

// FireState is the scratch state of one volley, kept on the battle so it survives save/restore
// between its roll, select and notify steps.
type FireState struct {
	ID         string
	Defender   bool
	Firer      string
	HitPlayer  string
	Firing     []string
	Targets    []string
	ReturnFire ReturnFire
	Kind       fireKind
	Category   dice.Category
	StepName   string
	AA         bool

	Roll       dice.Roll
	Rolled     bool
	Casualties CasualtyDetails
	Selected   bool
}

// Core holds the state every battle variant shares. Fields are exported so snapshots can encode
// them; tracker and state are re-attached after a restore.
type Core struct {
	BattleID           uuid.UUID
	Site               string
	BattleType         BattleType
	AttackingPlayer    string
	DefendingPlayer    string
	Headless           bool
	Round              int
	MaxRounds          int
	Over               bool
	Outcome            WhoWon
	Result             ResultDescription
	IsAmphibiousAttack bool

	Attackers               []string
	Defenders               []string
	AttackersWaiting        []string
	DefendersWaiting        []string
	Bombarding              []string
	AmphibiousLandAttackers []string
	AttackingFromMap        map[string][]string
	// Dependents maps a transport to the units it carries into the battle.
	Dependents map[string][]string
	Killed     []string

	AttackerLostTUV int
	DefenderLostTUV int

	Stack ExecutionStack
	Fires map[string]*FireState

	tracker *Tracker
	state   *world.State
}

// init fills in a zero Core in place; the embedded stack holds a mutex and must not be copied.
func (c *Core) init(site, attacker string, typ BattleType, st *world.State, tracker *Tracker) {
	c.BattleID = uuid.New()
	c.Site = site
	c.BattleType = typ
	c.AttackingPlayer = attacker
	c.DefendingPlayer = findDefender(st, site, attacker)
	c.Round = 1
	c.MaxRounds = -1
	c.AttackingFromMap = make(map[string][]string)
	c.Dependents = make(map[string][]string)
	c.Fires = make(map[string]*FireState)
	c.tracker = tracker
	c.state = st
}

// findDefender is the land owner when at war with the attacker, otherwise the enemy with the most
// units present, otherwise the neutral player.
func findDefender(st *world.State, site, attacker string) string {
	t := st.Territory(site)
	if t == nil {
		return world.NullPlayer
	}
	if !t.Water && st.IsAtWar(attacker, t.Owner) {
		return t.Owner
	}
	counts := make(map[string]int)
	for _, id := range st.EnemyUnits(site, attacker) {
		counts[st.OwnerOf(id)]++
	}
	best, bestCount := "", 0
	owners := make([]string, 0, len(counts))
	for o := range counts {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	for _, o := range owners {
		if counts[o] > bestCount {
			best, bestCount = o, counts[o]
		}
	}
	if best == "" {
		if !t.Water && !world.IsNull(t.Owner) {
			return t.Owner
		}
		return world.NullPlayer
	}
	return best
}

func (c *Core) attach(st *world.State, tracker *Tracker) {
	c.state = st
	c.tracker = tracker
	if c.AttackingFromMap == nil {
		c.AttackingFromMap = make(map[string][]string)
	}
	if c.Dependents == nil {
		c.Dependents = make(map[string][]string)
	}
	if c.Fires == nil {
		c.Fires = make(map[string]*FireState)
	}
}

func (c *Core) core() *Core { return c }

// ID returns the stable battle id.
func (c *Core) ID() uuid.UUID { return c.BattleID }

// Territory returns the battle site.
func (c *Core) Territory() string { return c.Site }

// Type returns the battle type.
func (c *Core) Type() BattleType { return c.BattleType }

// Attacker returns the attacking player.
func (c *Core) Attacker() string { return c.AttackingPlayer }

// Defender returns the defending player.
func (c *Core) Defender() string { return c.DefendingPlayer }

// IsBombingRun reports whether the battle is a raid or an air raid.
func (c *Core) IsBombingRun() bool { return c.BattleType.IsBombingRun() }

// IsOver reports whether the battle reached an outcome.
func (c *Core) IsOver() bool { return c.Over }

// WhoWon returns the outcome so far.
func (c *Core) WhoWon() WhoWon { return c.Outcome }

// AttackingUnits returns a copy of the attacking units.
func (c *Core) AttackingUnits() []string { return append([]string(nil), c.Attackers...) }

// DefendingUnits returns a copy of the defending units.
func (c *Core) DefendingUnits() []string { return append([]string(nil), c.Defenders...) }

// AmphibiousOrigins returns nil; only battles with amphibious landings override it.
func (c *Core) AmphibiousOrigins() map[string][]string { return nil }

// DependentUnits returns the cargo of the given transports.
func (c *Core) DependentUnits(units []string) []string {
	var out []string
	for _, id := range units {
		out = append(out, c.Dependents[id]...)
	}
	return out
}

// SetHeadless suppresses display and remote queries; used by simulations.
func (c *Core) SetHeadless(headless bool) { c.Headless = headless }

// TUVLost returns the total value each side lost so far.
func (c *Core) TUVLost() (attacker, defender int) {
	return c.AttackerLostTUV, c.DefenderLostTUV
}

func (c *Core) logger(br Bridge) *zap.Logger {
	if l := br.Logger(); l != nil {
		return l.With(
			zap.String("battle_id", c.BattleID.String()),
			zap.String("territory", c.Site),
			zap.String("battle_type", c.BattleType.String()),
		)
	}
	return zap.NewNop()
}

func (c *Core) publish(br Bridge, typ history.EventType, player string, amount int, units []string) {
	evt := history.NewEventWithAmount(typ, c.BattleID.String(), c.Site, player, amount)
	evt.Units = units
	br.Events().Publish(evt)
}

func (c *Core) isAttackerSide(st *world.State, id string) bool {
	return st.IsAllied(st.OwnerOf(id), c.AttackingPlayer)
}

// removeUnitsThatNoLongerExist drops units that died or left the site outside this battle.
func (c *Core) removeUnitsThatNoLongerExist(st *world.State) {
	here := func(ids []string) []string {
		out := ids[:0:0]
		for _, id := range ids {
			if st.Exists(id, c.Site) {
				out = append(out, id)
			}
		}
		return out
	}
	c.Attackers = here(c.Attackers)
	c.Defenders = here(c.Defenders)
	c.AttackersWaiting = here(c.AttackersWaiting)
	c.DefendersWaiting = here(c.DefendersWaiting)
}

func (c *Core) dropFromLists(ids []string) {
	c.Attackers = without(c.Attackers, ids)
	c.Defenders = without(c.Defenders, ids)
	c.AttackersWaiting = without(c.AttackersWaiting, ids)
	c.DefendersWaiting = without(c.DefendersWaiting, ids)
	c.Bombarding = without(c.Bombarding, ids)
	c.AmphibiousLandAttackers = without(c.AmphibiousLandAttackers, ids)
	for from, units := range c.AttackingFromMap {
		c.AttackingFromMap[from] = without(units, ids)
	}
}

// withCargo adds every unit transported by one of the ids.
func withCargo(st *world.State, ids []string) []string {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	out := append([]string(nil), ids...)
	owners := make([]string, 0, len(st.Units))
	for id := range st.Units {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	for _, id := range owners {
		if u := st.Units[id]; u.TransportedBy != "" && set[u.TransportedBy] && !set[id] {
			set[id] = true
			out = append(out, id)
		}
	}
	return out
}

// removeUnits takes killed units (and their cargo) off the map, charges their value to the side
// that owned them and passes the loss on to every battle blocked by this one.
func (c *Core) removeUnits(ctx context.Context, br Bridge, killed []string) error {
	st := br.State()
	all := withCargo(st, killed)
	for _, id := range killed {
		all = appendUnique(all, c.Dependents[id]...)
	}
	var present []string
	for _, id := range all {
		if st.Unit(id) != nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		c.dropFromLists(all)
		return nil
	}

	lost := make(map[string]int)
	byLocation := make(map[string][]string)
	for _, id := range present {
		cost := st.TypeOf(id).Cost
		if c.isAttackerSide(st, id) {
			c.AttackerLostTUV += cost
		} else {
			c.DefenderLostTUV += cost
		}
		lost[st.OwnerOf(id)] += cost
		loc := st.Locate(id)
		byLocation[loc] = append(byLocation[loc], id)
	}
	text := fmt.Sprintf("%s lost in %s", describeUnits(st, present), c.Site)

	var change world.Change
	locations := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	for _, loc := range locations {
		if loc == "" {
			continue
		}
		change.Add(world.RemoveUnits(loc, byLocation[loc]))
	}
	if err := br.AddChange(change); err != nil {
		return fmt.Errorf("remove casualties in %s: %w", c.Site, err)
	}
	br.History().AddChildToEvent(text, present)

	owners := make([]string, 0, len(lost))
	for o := range lost {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	for _, o := range owners {
		c.publish(br, history.EventCasualties, o, lost[o], present)
	}

	c.Killed = append(c.Killed, present...)
	c.dropFromLists(all)

	if c.tracker == nil {
		return nil
	}
	for _, blocked := range c.tracker.blockedBy(c.BattleID) {
		if err := blocked.UnitsLostInPrecedingBattle(ctx, br, present, false); err != nil {
			return err
		}
	}
	return nil
}

// markWaitingToDie moves casualties aside; they keep firing until clearWaitingToDie.
func (c *Core) markWaitingToDie(ids []string, defenders bool) {
	if defenders {
		c.Defenders = without(c.Defenders, ids)
		c.DefendersWaiting = appendUnique(c.DefendersWaiting, ids...)
		return
	}
	c.Attackers = without(c.Attackers, ids)
	c.AttackersWaiting = appendUnique(c.AttackersWaiting, ids...)
}

func (c *Core) clearWaitingToDie(ctx context.Context, br Bridge) error {
	attackers := append([]string(nil), c.AttackersWaiting...)
	defenders := append([]string(nil), c.DefendersWaiting...)
	c.AttackersWaiting, c.DefendersWaiting = nil, nil
	if len(attackers) > 0 {
		if err := c.removeUnits(ctx, br, attackers); err != nil {
			return err
		}
	}
	if len(defenders) > 0 {
		if err := c.removeUnits(ctx, br, defenders); err != nil {
			return err
		}
	}
	return nil
}

// applyCasualties disposes of a volley's dead according to the return fire policy.
func (c *Core) applyCasualties(ctx context.Context, br Bridge, killed []string, rf ReturnFire, defenders bool) error {
	if len(killed) == 0 {
		return nil
	}
	st := br.State()
	switch rf {
	case ReturnFireAll:
		c.markWaitingToDie(killed, defenders)
		return nil
	case ReturnFireSubs:
		subs := st.Filter(killed, isFirstStrike)
		c.markWaitingToDie(subs, defenders)
		return c.removeUnits(ctx, br, without(killed, subs))
	default:
		return c.removeUnits(ctx, br, killed)
	}
}

// transformDamaged replaces damaged units whose type turns into another when hit.
func (c *Core) transformDamaged(br Bridge, damaged []string) error {
	st := br.State()
	done := make(map[string]bool)
	for _, id := range damaged {
		if done[id] {
			continue
		}
		done[id] = true
		u := st.Unit(id)
		if u == nil {
			continue
		}
		into := st.TypeOf(id).WhenDamagedChangesInto
		if into == "" || st.UnitTypes[into] == nil {
			continue
		}
		loc := st.Locate(id)
		nu := *u.Clone()
		nu.ID = uuid.NewString()
		nu.Type = into
		var change world.Change
		change.Add(world.RemoveUnits(loc, []string{id}), world.AddUnits(loc, []world.Unit{nu}))
		if err := br.AddChange(change); err != nil {
			return fmt.Errorf("transform damaged %s: %w", id, err)
		}
		c.Attackers = replaceID(c.Attackers, id, nu.ID)
		c.Defenders = replaceID(c.Defenders, id, nu.ID)
		if !c.Headless {
			br.Display().ChangedUnitsNotification(c.BattleID.String(), nu.Owner, []string{id}, []string{nu.ID})
		}
	}
	return nil
}

// newFire registers the scratch state of a volley and returns the roll/select/notify children.
func (c *Core) newFire(f *FireState) []Step {
	f.ID = uuid.NewString()
	c.Fires[f.ID] = f
	return []Step{
		{Kind: StepRoll, Fire: f.ID, Name: f.StepName, Defender: f.Defender},
		{Kind: StepSelectCasualties, Fire: f.ID, Name: f.StepName, Defender: f.Defender},
		{Kind: StepNotifyCasualties, Fire: f.ID, Name: f.StepName, Defender: f.Defender},
	}
}

func (c *Core) fire(step Step) (*FireState, error) {
	f := c.Fires[step.Fire]
	if f == nil {
		return nil, invariantf("no fire state %s for step %s", step.Fire, step.Kind)
	}
	return f, nil
}

func aaPowers(cv combatValue, firing []string, targets int) []dice.Power {
	out := make([]dice.Power, 0, len(firing))
	left := targets
	for _, id := range firing {
		if left <= 0 {
			break
		}
		p := cv.power(id)
		if p.Rolls < 0 || p.Rolls > left {
			p.Rolls = left
		}
		left -= p.Rolls
		out = append(out, p)
	}
	return out
}

func (c *Core) rollFire(ctx context.Context, br Bridge, f *FireState) error {
	if f.Rolled {
		return nil
	}
	st := br.State()
	rules := br.Rules()
	cv := newCombatValue(st, rules, f.Defender, f.Kind)
	firing := st.Filter(f.Firing, func(*world.Unit, *world.UnitType) bool { return true })
	powers := cv.powers(firing)
	if f.AA {
		powers = aaPowers(cv, firing, len(f.Targets))
	}
	annotation := fmt.Sprintf("%s %s", f.Firer, f.StepName)
	roll, err := dice.RollBattle(ctx, br.Dice(), st.DiceSides, powers, rules.LowLuck, f.Firer, f.Category, annotation)
	if err != nil {
		return err
	}
	f.Roll, f.Rolled = roll, true

	if !c.Headless {
		br.Display().NotifyDice(c.BattleID.String(), f.StepName, roll)
	}
	br.History().AddChildToEvent(fmt.Sprintf("%s roll dice for %s, got %s", f.Firer, describeUnits(st, firing), roll), firing)
	c.publish(br, history.EventDiceRolled, f.Firer, roll.Hits, firing)
	return nil
}

func (c *Core) selectFireCasualties(ctx context.Context, br Bridge, f *FireState) error {
	if f.Selected {
		return nil
	}
	st := br.State()
	targets := st.Filter(f.Targets, func(u *world.Unit, _ *world.UnitType) bool {
		return st.Exists(u.ID, c.Site)
	})
	req := CasualtyRequest{
		BattleID:  c.BattleID.String(),
		Step:      f.StepName,
		Territory: c.Site,
		Player:    f.HitPlayer,
		Firer:     f.Firer,
		Targets:   targets,
		Hits:      f.Roll.Hits,
		Message:   fmt.Sprintf("%d hits from %s", f.Roll.Hits, f.Firer),
	}
	var (
		details CasualtyDetails
		err     error
	)
	if f.AA {
		details, err = selectAACasualties(ctx, br, c.Headless, req)
	} else {
		details, err = selectCasualties(ctx, br, c.Headless, req)
	}
	if err != nil {
		return err
	}
	f.Casualties, f.Selected = details, true
	return nil
}

func (c *Core) notifyFireCasualties(ctx context.Context, br Bridge, f *FireState) error {
	details := f.Casualties
	if !c.Headless {
		br.Display().CasualtyNotification(c.BattleID.String(), f.StepName, f.HitPlayer, details.Killed, details.Damaged, details.AutoCalculated)
		if !details.IsEmpty() {
			err := callRemote(br, func() error {
				return remoteFor(br, f.HitPlayer).ConfirmOwnCasualties(ctx, c.BattleID.String(), "Press space to continue")
			})
			if err != nil {
				return err
			}
		}
	}
	if len(details.Damaged) > 0 {
		if err := br.AddChange(damageChange(br.State(), details.Damaged)); err != nil {
			return fmt.Errorf("damage units in %s: %w", c.Site, err)
		}
		br.History().AddChildToEvent(fmt.Sprintf("%s damaged in %s", describeUnits(br.State(), details.Damaged), c.Site), details.Damaged)
		c.publish(br, history.EventUnitsDamaged, f.HitPlayer, len(details.Damaged), details.Damaged)
		if err := c.transformDamaged(br, details.Damaged); err != nil {
			return err
		}
	}
	if err := c.applyCasualties(ctx, br, details.Killed, f.ReturnFire, !f.Defender); err != nil {
		return err
	}
	delete(c.Fires, f.ID)
	return nil
}

// runFireStep executes the roll, select or notify child of a volley.
func (c *Core) runFireStep(ctx context.Context, br Bridge, step Step) error {
	f, err := c.fire(step)
	if err != nil {
		return err
	}
	switch step.Kind {
	case StepRoll:
		if !c.Headless {
			br.Display().GotoBattleStep(c.BattleID.String(), step.Name)
		}
		return c.rollFire(ctx, br, f)
	case StepSelectCasualties:
		return c.selectFireCasualties(ctx, br, f)
	case StepNotifyCasualties:
		return c.notifyFireCasualties(ctx, br, f)
	}
	return invariantf("unexpected fire step %s", step.Kind)
}

// execute drives the stack, handing each step to run.
func (c *Core) execute(ctx context.Context, br Bridge, run func(ctx context.Context, br Bridge, step Step) error) error {
	err := c.Stack.Execute(ctx, func(ctx context.Context, step Step) (StepResult, error) {
		if c.Over {
			return StepCompleted, nil
		}
		if err := run(ctx, br, step); err != nil {
			return StepCompleted, err
		}
		return StepCompleted, nil
	})
	if errors.Is(err, ErrSuspended) {
		c.logger(br).Debug("battle suspended", zap.Int("round", c.Round), zap.Error(err))
	}
	return err
}

func (c *Core) showBattle(br Bridge, title string, steps []Step) {
	if c.Headless {
		return
	}
	id := c.BattleID.String()
	br.Display().ShowBattle(id, c.Site, title, c.Attackers, c.Defenders, c.AttackingPlayer, c.DefendingPlayer)
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	br.Display().ListBattleSteps(id, names)
}

// finish records the outcome and removes the battle from the tracker.
func (c *Core) finish(ctx context.Context, br Bridge, who WhoWon, result ResultDescription, message string) error {
	if err := c.clearWaitingToDie(ctx, br); err != nil {
		return err
	}
	c.Over = true
	c.Outcome = who
	c.Result = result
	c.Stack.Clear()
	c.Fires = make(map[string]*FireState)

	if c.tracker != nil {
		c.tracker.Records.AddResult(c.AttackingPlayer, c.BattleID, c.DefendingPlayer, c.AttackerLostTUV, c.DefenderLostTUV, result)
		c.tracker.removeBattleID(c.BattleID)
	}
	if !c.Headless {
		br.Display().BattleEnd(c.BattleID.String(), message)
	}
	br.History().AddChildToEvent(message, nil)
	evt := history.NewEvent(history.EventBattleEnded, c.BattleID.String(), c.Site, c.AttackingPlayer)
	evt.Message = message
	evt.Metadata["outcome"] = who.String()
	evt.Metadata["result"] = result.String()
	br.Events().Publish(evt)

	c.logger(br).Info("battle ended",
		zap.String("outcome", who.String()),
		zap.String("result", result.String()),
		zap.Int("round", c.Round),
		zap.Int("attacker_lost_tuv", c.AttackerLostTUV),
		zap.Int("defender_lost_tuv", c.DefenderLostTUV),
	)
	return nil
}

// cancel ends the battle without an outcome.
func (c *Core) cancel(br Bridge) {
	c.Over = true
	c.Outcome = NotFinished
	c.Result = ResultNoBattle
	c.Stack.Clear()
	c.Fires = make(map[string]*FireState)
	if c.tracker != nil {
		c.tracker.Records.RemoveBattle(c.AttackingPlayer, c.BattleID)
		c.tracker.removeBattleID(c.BattleID)
	}
	br.History().AddChildToEvent("Battle in "+c.Site+" cancelled", nil)
	c.publish(br, history.EventBattleCancelled, c.AttackingPlayer, 0, nil)
	if !c.Headless {
		br.Display().BattleEnd(c.BattleID.String(), "Battle cancelled")
	}
}

// trackCargo records which moving units ride on which moving transports.
func (c *Core) trackCargo(st *world.State, units []string) {
	moving := make(map[string]bool, len(units))
	for _, id := range units {
		moving[id] = true
	}
	for _, id := range units {
		if u := st.Unit(id); u != nil && u.TransportedBy != "" && moving[u.TransportedBy] {
			c.Dependents[u.TransportedBy] = appendUnique(c.Dependents[u.TransportedBy], id)
		}
	}
}

// recordAttackingFrom notes where units came from for retreats and bombardment.
func (c *Core) recordAttackingFrom(route world.Route, units []string) {
	from := route.TerritoryBeforeEnd()
	c.AttackingFromMap[from] = appendUnique(c.AttackingFromMap[from], units...)
}

func (c *Core) forgetAttackingFrom(route world.Route, units []string) {
	from := route.TerritoryBeforeEnd()
	left := without(c.AttackingFromMap[from], units)
	if len(left) == 0 {
		delete(c.AttackingFromMap, from)
		return
	}
	c.AttackingFromMap[from] = left
}

// AttackingFrom returns the sorted territories the attack came from.
func (c *Core) AttackingFrom() []string {
	out := make([]string, 0, len(c.AttackingFromMap))
	for t, units := range c.AttackingFromMap {
		if len(units) > 0 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func without(list, remove []string) []string {
	if len(remove) == 0 {
		return list
	}
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	out := list[:0:0]
	for _, id := range list {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func appendUnique(list []string, ids ...string) []string {
	have := make(map[string]bool, len(list))
	for _, id := range list {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			have[id] = true
			list = append(list, id)
		}
	}
	return list
}

func containsID(list []string, id string) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

func replaceID(list []string, old, replacement string) []string {
	for i, id := range list {
		if id == old {
			list[i] = replacement
		}
	}
	return list
}
