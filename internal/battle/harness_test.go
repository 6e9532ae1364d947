package battle

import (
	"context"
	"sync"
	"testing"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const landMap = `
name: eastern-front
dice_sides: 6
unit_types:
  - name: infantry
    cost: 3
    attack: 1
    defense: 2
    movement: 1
  - name: armour
    cost: 5
    attack: 3
    defense: 3
    movement: 2
  - name: fighter
    cost: 10
    attack: 3
    defense: 4
    movement: 4
    air: true
    can_air_battle: true
players:
  - name: Germans
    alliance: Axis
    resources:
      PUs: 40
  - name: Russians
    alliance: Allies
    resources:
      PUs: 24
territories:
  - name: Germany
    owner: Germans
    production: 10
  - name: Poland
    owner: Russians
    production: 2
    neighbors: [Germany]
  - name: Ukraine
    owner: Russians
    production: 2
    neighbors: [Poland]
`

// scriptedRemote answers queries from fixed choices and counts how often it was asked.
type scriptedRemote struct {
	WeakAI
	mu sync.Mutex

	interceptors []string
	retreat      string
	scramble     map[string][]string
	interrupt    int
	asked        map[string]int
}

func newScriptedRemote() *scriptedRemote {
	return &scriptedRemote{asked: make(map[string]int)}
}

func (r *scriptedRemote) ask(query string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked[query]++
	if r.interrupt > 0 {
		r.interrupt--
		return ErrInterrupted
	}
	return nil
}

func (r *scriptedRemote) timesAsked(query string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asked[query]
}

func (r *scriptedRemote) SelectUnitsQuery(_ context.Context, _ string, _ []string, _ int, _ string) ([]string, error) {
	if err := r.ask("select_units"); err != nil {
		return nil, err
	}
	return append([]string(nil), r.interceptors...), nil
}

func (r *scriptedRemote) RetreatQuery(_ context.Context, _ RetreatRequest) (string, error) {
	if err := r.ask("retreat"); err != nil {
		return "", err
	}
	return r.retreat, nil
}

func (r *scriptedRemote) ScrambleUnitsQuery(_ context.Context, _ string, _ map[string]ScrambleCandidates) (map[string][]string, error) {
	if err := r.ask("scramble"); err != nil {
		return nil, err
	}
	return r.scramble, nil
}

// battleHarness wires a map, scripted dice and a tracker behind a DelegateBridge.
type battleHarness struct {
	t       *testing.T
	ctx     context.Context
	st      *world.State
	dice    *dice.ScriptedSource
	log     *history.Log
	events  *history.EventBus
	bridge  *DelegateBridge
	tracker *Tracker
}

func newBattleHarness(t *testing.T, mapYAML string, rules Rules, player string) *battleHarness {
	t.Helper()
	st, err := world.ParseMap([]byte(mapYAML))
	require.NoError(t, err)
	return newBattleHarnessFor(t, st, rules, player)
}

func newPacificHarness(t *testing.T, rules Rules, player string) *battleHarness {
	t.Helper()
	st, err := world.LoadMap("../world/testdata/pacific.yaml")
	require.NoError(t, err)
	return newBattleHarnessFor(t, st, rules, player)
}

func newBattleHarnessFor(t *testing.T, st *world.State, rules Rules, player string) *battleHarness {
	logger := zaptest.NewLogger(t)
	bus := history.NewEventBus()
	log := history.NewLog(bus)
	src := dice.NewScriptedSource()
	br := NewDelegateBridge(BridgeOptions{
		State:   st,
		Rules:   rules,
		Dice:    src,
		History: log,
		Events:  bus,
		Logger:  logger,
		Player:  player,
	})
	return &battleHarness{
		t:       t,
		ctx:     context.Background(),
		st:      st,
		dice:    src,
		log:     log,
		events:  bus,
		bridge:  br,
		tracker: NewTracker(logger),
	}
}

// place creates units where the battle happens, as if they had already moved there.
func (h *battleHarness) place(territory, unitType, owner string, count int) []string {
	h.t.Helper()
	ids, err := h.st.CreateUnits(territory, unitType, owner, count)
	require.NoError(h.t, err)
	return ids
}

func (h *battleHarness) attack(attacker string, units []string, bombing bool, route ...string) {
	h.t.Helper()
	require.NoError(h.t, h.tracker.AddBattle(h.bridge, world.NewRoute(route...), units, attacker, bombing, nil))
}

func (h *battleHarness) pending(territory string, typ BattleType) Battle {
	h.t.Helper()
	b := h.tracker.PendingBattle(territory, typ)
	require.NotNil(h.t, b, "no %s pending in %s", typ, territory)
	return b
}

func (h *battleHarness) remote(player string) *scriptedRemote {
	r := newScriptedRemote()
	h.bridge.SetRemote(player, r)
	return r
}

func (h *battleHarness) record(b Battle) BattleRecord {
	h.t.Helper()
	rec, ok := h.tracker.Records.Record(b.Attacker(), b.ID())
	require.True(h.t, ok, "no record for %s in %s", b.Type(), b.Territory())
	return rec
}

func (h *battleHarness) move(from, to string, units []string) {
	h.t.Helper()
	var change world.Change
	change.Add(world.MoveUnits(from, to, units))
	require.NoError(h.t, h.bridge.AddChange(change))
}
