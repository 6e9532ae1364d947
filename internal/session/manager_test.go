package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/display"
	"github.com/magefree/battle-server-go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memorySnapshots keeps encoded snapshots so loaded games never share state with saved ones.
type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string][]byte)}
}

func (s *memorySnapshots) Save(_ context.Context, snap *battle.Snapshot) (*battle.SnapshotChecksum, error) {
	data, err := battle.MarshalSnapshot(snap)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.GameID] = data
	return snap.ComputeChecksum()
}

func (s *memorySnapshots) Load(_ context.Context, gameID string) (*battle.Snapshot, error) {
	s.mu.Lock()
	data, ok := s.data[gameID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return battle.UnmarshalSnapshot(data)
}

func (s *memorySnapshots) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, gameID)
	return nil
}

func (s *memorySnapshots) has(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[gameID]
	return ok
}

type memoryRecords struct {
	mu      sync.Mutex
	records map[string][]battle.BattleRecord
}

func (r *memoryRecords) Sink(gameID string) battle.RecordSink {
	return func(_ context.Context, records []battle.BattleRecord) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.records == nil {
			r.records = make(map[string][]battle.BattleRecord)
		}
		r.records[gameID] = append(r.records[gameID], records...)
		return nil
	}
}

// stallingRemote interrupts the first retreat decision, as a disconnecting client would.
type stallingRemote struct {
	battle.WeakAI
	stalls int
}

func (r *stallingRemote) RetreatQuery(ctx context.Context, req battle.RetreatRequest) (string, error) {
	if r.stalls > 0 {
		r.stalls--
		return "", battle.ErrInterrupted
	}
	return r.WeakAI.RetreatQuery(ctx, req)
}

type notifications struct {
	mu    sync.Mutex
	types []string
}

func (n *notifications) handle(msg display.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, msg.Type)
}

func (n *notifications) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, t := range n.types {
		if t == kind {
			c++
		}
	}
	return c
}

func loadFront(t *testing.T) *world.State {
	t.Helper()
	st, err := world.LoadMap("testdata/eastern-front.yaml")
	require.NoError(t, err)
	return st
}

// attackPoland creates a game where one German armour attacks one Russian infantry in Poland.
func attackPoland(t *testing.T, m *Manager) *Game {
	t.Helper()
	st := loadFront(t)
	armour, err := st.CreateUnits("Poland", "armour", "Germans", 1)
	require.NoError(t, err)
	_, err = st.CreateUnits("Poland", "infantry", "Russians", 1)
	require.NoError(t, err)

	g, err := m.CreateGame(st, "Germans")
	require.NoError(t, err)
	_, err = g.AddAttack(world.NewRoute("Germany", "Poland"), armour, false, nil)
	require.NoError(t, err)
	return g
}

func TestManager_CreateGetRemove(t *testing.T) {
	m := NewManager(Options{MaxGames: 1}, zaptest.NewLogger(t))

	g, err := m.CreateGame(loadFront(t), "Germans")
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, GameStateWaiting, g.State())

	got, ok := m.GetGame(g.ID)
	require.True(t, ok)
	assert.Same(t, g, got)

	_, err = m.CreateGame(loadFront(t), "Russians")
	require.ErrorIs(t, err, ErrTooManyGames)

	m.RemoveGame(g.ID)
	_, ok = m.GetGame(g.ID)
	assert.False(t, ok)
	err = m.StartCombat(context.Background(), g.ID)
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestManager_StartCombatFightsTheOnlyBattle(t *testing.T) {
	seen := &notifications{}
	m := NewManager(Options{Notify: seen.handle}, zaptest.NewLogger(t))
	g := attackPoland(t, m)
	g.SetDice(dice.NewScriptedSource(0, 5))

	require.NoError(t, m.StartCombat(context.Background(), g.ID))

	assert.Equal(t, "Germans", g.World().Territory("Poland").Owner)
	assert.Equal(t, GameStateWaiting, g.State())
	snap := g.Snapshot()
	assert.Empty(t, snap.Battles)
	assert.Equal(t, 3, snap.TUVLost["Russians"])
	assert.Positive(t, seen.count(display.TypeShowBattle))
	assert.Equal(t, 1, seen.count(display.TypeBattleListChange))
	assert.Contains(t, g.Transcript(), "Poland")
}

func TestManager_SuspendedGameIsSavedAndResumes(t *testing.T) {
	snapshots := newMemorySnapshots()
	m := NewManager(Options{Snapshots: snapshots}, zaptest.NewLogger(t))
	g := attackPoland(t, m)
	g.SetRemote("Germans", &stallingRemote{stalls: 1})
	g.SetDice(dice.NewScriptedSource(5, 5))

	msg, err := m.FightBattle(context.Background(), g.ID, "Poland", false, battle.TypeNormal)
	require.ErrorIs(t, err, battle.ErrSuspended)
	assert.Empty(t, msg)
	assert.Equal(t, GameStateSuspended, g.State())
	require.True(t, snapshots.has(g.ID), "suspension saves the game")

	loaded, err := m.LoadGame(context.Background(), g.ID)
	require.NoError(t, err)
	assert.NotSame(t, g, loaded)
	assert.Equal(t, GameStateSuspended, loaded.State())
	assert.Equal(t, "Poland", loaded.Snapshot().Current)

	src := dice.NewScriptedSource(0, 5)
	loaded.SetDice(src)
	msg, err = m.FightBattle(context.Background(), g.ID, "Poland", false, battle.TypeNormal)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, "Germans", loaded.World().Territory("Poland").Owner)
	assert.Equal(t, "Russians", g.World().Territory("Poland").Owner)
}

func TestManager_FightBattleReportsWhyItCannotFight(t *testing.T) {
	m := NewManager(Options{}, zaptest.NewLogger(t))
	g := attackPoland(t, m)

	msg, err := m.FightBattle(context.Background(), g.ID, "Ukraine", false, battle.TypeNormal)
	require.NoError(t, err)
	assert.Equal(t, "No pending battle in Ukraine", msg)
	assert.Equal(t, GameStateWaiting, g.State())
}

func TestManager_CancelBattle(t *testing.T) {
	m := NewManager(Options{}, zaptest.NewLogger(t))
	g := attackPoland(t, m)

	err := m.CancelBattle(context.Background(), g.ID, "Ukraine", battle.TypeNormal)
	require.ErrorIs(t, err, ErrNoBattle)

	require.NoError(t, m.CancelBattle(context.Background(), g.ID, "Poland", battle.TypeNormal))
	assert.Empty(t, g.Snapshot().Battles)
	assert.Equal(t, "Russians", g.World().Territory("Poland").Owner)
}

func TestManager_EndCombatFlushesRecordsAndReplay(t *testing.T) {
	records := &memoryRecords{}
	replays := battle.NewReplayRecorder(zaptest.NewLogger(t), t.TempDir())
	m := NewManager(Options{Records: records, Replays: replays}, zaptest.NewLogger(t))
	g := attackPoland(t, m)
	g.SetDice(dice.NewScriptedSource(0, 5))
	require.True(t, replays.IsRecording(g.ID))

	require.NoError(t, m.StartCombat(context.Background(), g.ID))
	require.NoError(t, m.EndCombat(context.Background(), g.ID))

	assert.Equal(t, GameStatePhaseOver, g.State())
	assert.Zero(t, m.GetActiveGameCount())
	require.Len(t, records.records[g.ID], 1)
	rec := records.records[g.ID][0]
	assert.Equal(t, "Poland", rec.Territory)
	assert.Equal(t, battle.ResultConquered, rec.Result)
	assert.Empty(t, g.Snapshot().TUVLost, "watchers reset with the phase")

	assert.False(t, replays.IsRecording(g.ID))
	replay, err := replays.LoadReplay(g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "end"}, replay.Labels())
}

func TestManager_EvictsIdleGames(t *testing.T) {
	snapshots := newMemorySnapshots()
	m := NewManager(Options{Snapshots: snapshots, IdleTimeout: time.Minute}, zaptest.NewLogger(t))
	g := attackPoland(t, m)

	assert.Zero(t, m.evictIdle(context.Background(), time.Now()))
	assert.Equal(t, 1, m.evictIdle(context.Background(), time.Now().Add(time.Hour)))

	_, ok := m.GetGame(g.ID)
	assert.False(t, ok)
	assert.True(t, snapshots.has(g.ID))

	loaded, err := m.LoadGame(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Poland"}, loaded.Snapshot().Battles["Battle"])
}

func TestManager_Listing(t *testing.T) {
	m := NewManager(Options{}, zaptest.NewLogger(t))
	g := attackPoland(t, m)

	v, ok := m.Listing(g.ID)
	require.True(t, ok)
	snap, ok := v.(GameSnapshot)
	require.True(t, ok)
	assert.Equal(t, map[string][]string{"Battle": {"Poland"}}, snap.Battles)
	assert.Equal(t, "WAITING", snap.State)

	_, ok = m.Listing("missing")
	assert.False(t, ok)
}

func TestGame_AddAttackDefaultsToUnitsAtTheDestination(t *testing.T) {
	m := NewManager(Options{}, zaptest.NewLogger(t))
	st := loadFront(t)
	armour, err := st.CreateUnits("Ukraine", "armour", "Germans", 2)
	require.NoError(t, err)
	_, err = st.CreateUnits("Ukraine", "infantry", "Russians", 1)
	require.NoError(t, err)
	g, err := m.CreateGame(st, "Germans")
	require.NoError(t, err)

	units, err := g.AddAttack(world.NewRoute("Poland", "Ukraine"), nil, false, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, armour, units)
	assert.Equal(t, []string{"Ukraine"}, g.Snapshot().Battles["Battle"])

	_, err = g.AddAttack(world.NewRoute("Germany", "Poland"), nil, false, nil)
	assert.Error(t, err, "nobody to attack with")
}
