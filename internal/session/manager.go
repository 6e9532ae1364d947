// Package session keeps the live games of a battle server: one delegate, bridge and world per
// game, their snapshots and their replays.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/display"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrTooManyGames = errors.New("too many games")
	ErrNoStore      = errors.New("snapshot store not configured")
	ErrNoBattle     = errors.New("no pending battle")
)

// GameState is where a game is in its combat phase.
type GameState int

const (
	GameStateWaiting GameState = iota
	GameStateFighting
	GameStateSuspended
	GameStatePhaseOver
)

func (s GameState) String() string {
	switch s {
	case GameStateWaiting:
		return "WAITING"
	case GameStateFighting:
		return "FIGHTING"
	case GameStateSuspended:
		return "SUSPENDED"
	case GameStatePhaseOver:
		return "PHASE_OVER"
	default:
		return "UNKNOWN"
	}
}

// SnapshotStore persists the latest snapshot of a game.
type SnapshotStore interface {
	Save(ctx context.Context, snap *battle.Snapshot) (*battle.SnapshotChecksum, error)
	Load(ctx context.Context, gameID string) (*battle.Snapshot, error)
	Delete(ctx context.Context, gameID string) error
}

// RecordStore receives the battle records of finished combat phases.
type RecordStore interface {
	Sink(gameID string) battle.RecordSink
}

// Options configures a Manager. Every collaborator is optional.
type Options struct {
	Rules       battle.Rules
	Snapshots   SnapshotStore
	Records     RecordStore
	Replays     *battle.ReplayRecorder
	Notify      display.Handler
	MaxGames    int
	IdleTimeout time.Duration
	// DiceSeed seeds every new game's dice; zero picks a seed per game.
	DiceSeed int64
}

// Game is one live game.
type Game struct {
	ID         string
	Player     string
	CreateTime time.Time

	state      GameState
	lastActive time.Time
	world      *world.State
	delegate   *battle.BattleDelegate
	bridge     *battle.DelegateBridge
	log        *history.Log
	bus        *history.EventBus
	watchers   *history.WatcherRegistry
	losses     *history.TUVLossWatcher
	display    *display.Broadcaster
	mu         sync.Mutex
}

// GameSnapshot is a consistent copy of a game's externally visible state.
type GameSnapshot struct {
	ID         string              `json:"id"`
	Player     string              `json:"player"`
	State      string              `json:"state"`
	Battles    map[string][]string `json:"battles"`
	Current    string              `json:"current,omitempty"`
	TUVLost    map[string]int      `json:"tuv_lost,omitempty"`
	CreateTime time.Time           `json:"create_time"`
	LastActive time.Time           `json:"last_active"`
}

// Snapshot returns a consistent view of the game.
func (g *Game) Snapshot() GameSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() GameSnapshot {
	snap := GameSnapshot{
		ID:         g.ID,
		Player:     g.Player,
		State:      g.state.String(),
		Battles:    listingByName(g.delegate.Battles()),
		CreateTime: g.CreateTime,
		LastActive: g.lastActive,
	}
	if b := g.delegate.CurrentBattle(); b != nil {
		snap.Current = b.Territory()
	}
	for _, p := range g.losses.Players() {
		if snap.TUVLost == nil {
			snap.TUVLost = make(map[string]int)
		}
		snap.TUVLost[p] = g.losses.Lost(p)
	}
	return snap
}

// State returns the game state.
func (g *Game) State() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// World returns the game's world. Callers must not modify it while a battle runs.
func (g *Game) World() *world.State { return g.world }

// Transcript returns the game's battle history as text.
func (g *Game) Transcript() string { return g.log.Transcript() }

// SetRemote registers who answers a player's battle decisions.
func (g *Game) SetRemote(player string, remote battle.RemotePlayer) {
	g.bridge.SetRemote(player, remote)
}

// SetDice replaces the game's dice source.
func (g *Game) SetDice(src dice.Source) {
	g.bridge.SetDice(src)
}

// AddAttack registers units that moved along route into combat. Nil units means every
// non-infrastructure unit of the player already at the route's end.
func (g *Game) AddAttack(route world.Route, units []string, bombing bool, targets map[string][]string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if units == nil {
		units = g.world.Matches(route.End(), func(u *world.Unit, ut *world.UnitType) bool {
			return u.Owner == g.Player && !ut.IsInfrastructure
		})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no %s units in %s", g.Player, route.End())
	}
	if err := g.delegate.Tracker().AddBattle(g.bridge, route, units, g.Player, bombing, targets); err != nil {
		return nil, err
	}
	g.lastActive = time.Now()
	return units, nil
}

func listingByName(l battle.BattleListing) map[string][]string {
	out := make(map[string][]string, len(l.Battles))
	for typ, sites := range l.Battles {
		if len(sites) > 0 {
			out[typ.String()] = append([]string(nil), sites...)
		}
	}
	return out
}

// Manager manages live games.
type Manager struct {
	games  map[string]*Game
	mu     sync.RWMutex
	opts   Options
	logger *zap.Logger
}

// NewManager creates a new game manager.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Rules == (battle.Rules{}) {
		opts.Rules = battle.DefaultRules()
	}
	return &Manager{
		games:  make(map[string]*Game),
		opts:   opts,
		logger: logger,
	}
}

// CreateGame starts managing a world whose combat phase belongs to player.
func (m *Manager) CreateGame(st *world.State, player string) (*Game, error) {
	return m.addGame(uuid.New().String(), st, player, battle.NewBattleDelegate(battle.NewTracker(m.logger), m.logger))
}

func (m *Manager) addGame(id string, st *world.State, player string, d *battle.BattleDelegate) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.games[id]; !exists && m.opts.MaxGames > 0 && len(m.games) >= m.opts.MaxGames {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyGames, m.opts.MaxGames)
	}

	g := m.newGame(id, st, player, d)
	m.games[id] = g
	if m.opts.Replays != nil && !m.opts.Replays.IsRecording(id) {
		m.opts.Replays.StartRecording(id)
	}

	m.logger.Info("game created",
		zap.String("game_id", id),
		zap.String("player", player),
		zap.Int("territories", len(st.Territories)),
	)
	return g, nil
}

func (m *Manager) newGame(id string, st *world.State, player string, d *battle.BattleDelegate) *Game {
	now := time.Now()
	bus := history.NewEventBus()
	log := history.NewLog(bus)
	watchers := history.NewWatcherRegistry(bus)
	losses := history.NewTUVLossWatcher()
	watchers.AddWatcher(losses)
	watchers.AddWatcher(history.NewBattleCountWatcher())

	broadcaster := display.NewBroadcaster(id, m.logger)
	if m.opts.Notify != nil {
		broadcaster.SetHandler(m.opts.Notify)
	}

	seed := m.opts.DiceSeed
	if seed == 0 {
		seed = now.UnixNano()
	}
	br := battle.NewDelegateBridge(battle.BridgeOptions{
		State:   st,
		Rules:   m.opts.Rules,
		Dice:    dice.NewSeededSource(seed),
		History: log,
		Display: broadcaster,
		Events:  bus,
		Logger:  m.logger.With(zap.String("game_id", id)),
		Player:  player,
	})
	if m.opts.Records != nil {
		d.SetRecordSink(m.opts.Records.Sink(id))
	}
	return &Game{
		ID:         id,
		Player:     player,
		CreateTime: now,
		lastActive: now,
		world:      st,
		delegate:   d,
		bridge:     br,
		log:        log,
		bus:        bus,
		watchers:   watchers,
		losses:     losses,
		display:    broadcaster,
	}
}

// GetGame retrieves a game by ID.
func (m *Manager) GetGame(gameID string) (*Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[gameID]
	return g, ok
}

func (m *Manager) game(gameID string) (*Game, error) {
	g, ok := m.GetGame(gameID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return g, nil
}

// RemoveGame forgets a game. Its stored snapshot is kept.
func (m *Manager) RemoveGame(gameID string) {
	m.mu.Lock()
	g, ok := m.games[gameID]
	delete(m.games, gameID)
	m.mu.Unlock()

	if ok {
		g.watchers.Close()
	}
	m.logger.Info("game removed", zap.String("game_id", gameID))
}

// GetAllGames returns all games ordered by id.
func (m *Manager) GetAllGames() []*Game {
	m.mu.RLock()
	defer m.mu.RUnlock()

	games := make([]*Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games
}

// GetActiveGameCount returns the number of games whose combat phase is not over.
func (m *Manager) GetActiveGameCount() int {
	count := 0
	for _, g := range m.GetAllGames() {
		if g.State() != GameStatePhaseOver {
			count++
		}
	}
	return count
}

// Listing returns the game view served by the display router.
func (m *Manager) Listing(gameID string) (any, bool) {
	g, ok := m.GetGame(gameID)
	if !ok {
		return nil, false
	}
	return g.Snapshot(), true
}

// StartCombat runs the automatic part of the game's combat phase.
func (m *Manager) StartCombat(ctx context.Context, gameID string) error {
	g, err := m.game(gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	err = g.delegate.Start(ctx, g.bridge)
	return m.afterRun(ctx, g, "start", err)
}

// FightBattle fights the pending battle of the given type in territory. A non-empty message
// means the battle cannot be fought yet.
func (m *Manager) FightBattle(ctx context.Context, gameID, territory string, bombing bool, typ battle.BattleType) (string, error) {
	g, err := m.game(gameID)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	msg, err := g.delegate.FightBattle(ctx, g.bridge, territory, bombing, typ)
	if msg != "" && err == nil {
		return msg, nil
	}
	return msg, m.afterRun(ctx, g, fmt.Sprintf("%s in %s", typ, territory), err)
}

// EndCombat closes the game's combat phase.
func (m *Manager) EndCombat(ctx context.Context, gameID string) error {
	g, err := m.game(gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.delegate.End(ctx, g.bridge); err != nil {
		return m.afterRun(ctx, g, "end", err)
	}
	g.state = GameStatePhaseOver
	g.lastActive = time.Now()
	g.watchers.ResetWatchers()
	m.recordFrame(g, "end")
	g.display.BattleListChanged(map[string][]string{}, "")
	if m.opts.Replays != nil && m.opts.Replays.IsRecording(g.ID) {
		if err := m.opts.Replays.SaveReplay(g.ID); err != nil {
			m.logger.Warn("failed to save replay", zap.String("game_id", g.ID), zap.Error(err))
		}
	}
	return nil
}

// CancelBattle ends a pending battle without an outcome.
func (m *Manager) CancelBattle(ctx context.Context, gameID, territory string, typ battle.BattleType) error {
	g, err := m.game(gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.delegate.Tracker().PendingBattle(territory, typ)
	if b == nil {
		return fmt.Errorf("%w: %s in %s", ErrNoBattle, typ, territory)
	}
	if err := b.Cancel(ctx, g.bridge); err != nil {
		return err
	}
	m.logger.Info("battle cancelled",
		zap.String("game_id", g.ID),
		zap.String("battle_id", b.ID().String()),
		zap.String("territory", territory),
		zap.String("battle_type", typ.String()),
	)
	return m.afterRun(ctx, g, "cancel "+territory, nil)
}

// afterRun updates the game after the delegate ran. A suspended game is saved so that it can
// be resumed by another process.
func (m *Manager) afterRun(ctx context.Context, g *Game, label string, runErr error) error {
	g.lastActive = time.Now()
	switch {
	case runErr == nil:
		g.state = GameStateFighting
		if !g.delegate.RequiresUserInput() {
			g.state = GameStateWaiting
		}
	case errors.Is(runErr, battle.ErrSuspended):
		g.state = GameStateSuspended
		m.logger.Info("battle suspended", zap.String("game_id", g.ID), zap.Error(runErr))
		if m.opts.Snapshots != nil {
			if _, err := m.saveLocked(context.WithoutCancel(ctx), g); err != nil {
				m.logger.Warn("failed to save suspended game", zap.String("game_id", g.ID), zap.Error(err))
			}
		}
	default:
		m.logger.Error("combat failed", zap.String("game_id", g.ID), zap.String("action", label), zap.Error(runErr))
		return runErr
	}
	m.recordFrame(g, label)
	current := ""
	if b := g.delegate.CurrentBattle(); b != nil {
		current = b.ID().String()
	}
	g.display.BattleListChanged(listingByName(g.delegate.Battles()), current)
	return runErr
}

func (m *Manager) recordFrame(g *Game, label string) {
	if m.opts.Replays == nil || !m.opts.Replays.IsRecording(g.ID) {
		return
	}
	snap, err := battle.NewSnapshot(g.delegate, g.world, g.ID, g.Player)
	if err == nil {
		err = m.opts.Replays.Record(g.ID, label, snap)
	}
	if err != nil {
		m.logger.Warn("failed to record replay frame", zap.String("game_id", g.ID), zap.Error(err))
	}
}

// SaveGame stores the game's snapshot.
func (m *Manager) SaveGame(ctx context.Context, gameID string) (*battle.SnapshotChecksum, error) {
	g, err := m.game(gameID)
	if err != nil {
		return nil, err
	}
	if m.opts.Snapshots == nil {
		return nil, ErrNoStore
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return m.saveLocked(ctx, g)
}

func (m *Manager) saveLocked(ctx context.Context, g *Game) (*battle.SnapshotChecksum, error) {
	snap, err := battle.NewSnapshot(g.delegate, g.world, g.ID, g.Player)
	if err != nil {
		return nil, err
	}
	sum, err := m.opts.Snapshots.Save(ctx, snap)
	if err != nil {
		return nil, err
	}
	m.logger.Info("game saved",
		zap.String("game_id", g.ID),
		zap.String("checksum", sum.Hash),
		zap.Int("battles", len(snap.Battles)),
	)
	return sum, nil
}

// LoadGame restores a game from its stored snapshot, replacing the live game of that id.
func (m *Manager) LoadGame(ctx context.Context, gameID string) (*Game, error) {
	if m.opts.Snapshots == nil {
		return nil, ErrNoStore
	}
	snap, err := m.opts.Snapshots.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrGameNotFound, gameID)
	}
	d, err := snap.Restore(m.logger)
	if err != nil {
		return nil, fmt.Errorf("restore game %s: %w", gameID, err)
	}
	if old, ok := m.GetGame(gameID); ok {
		old.watchers.Close()
	}
	g, err := m.addGame(gameID, snap.State, snap.Player, d)
	if err != nil {
		return nil, err
	}
	if d.CurrentBattle() != nil {
		g.state = GameStateSuspended
	} else if d.RequiresUserInput() {
		g.state = GameStateFighting
	}
	return g, nil
}

// DeleteGame removes a game and its stored snapshot.
func (m *Manager) DeleteGame(ctx context.Context, gameID string) error {
	m.RemoveGame(gameID)
	if m.opts.Snapshots == nil {
		return nil
	}
	return m.opts.Snapshots.Delete(ctx, gameID)
}

// CleanupIdleGames evicts games idle for longer than the idle timeout until ctx is done.
// Evicted games are saved first when a snapshot store is configured.
func (m *Manager) CleanupIdleGames(ctx context.Context, interval time.Duration) {
	if m.opts.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.evictIdle(ctx, now)
		}
	}
}

func (m *Manager) evictIdle(ctx context.Context, now time.Time) int {
	evicted := 0
	for _, g := range m.GetAllGames() {
		g.mu.Lock()
		idle := now.Sub(g.lastActive) > m.opts.IdleTimeout
		if idle && m.opts.Snapshots != nil {
			if _, err := m.saveLocked(ctx, g); err != nil {
				m.logger.Warn("failed to save idle game", zap.String("game_id", g.ID), zap.Error(err))
				idle = false
			}
		}
		g.mu.Unlock()
		if idle {
			m.RemoveGame(g.ID)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Info("evicted idle games", zap.Int("count", evicted))
	}
	return evicted
}

// CloseAll forgets every game, saving them first when a snapshot store is configured.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, g := range m.GetAllGames() {
		if m.opts.Snapshots != nil {
			if _, err := m.SaveGame(ctx, g.ID); err != nil {
				m.logger.Warn("failed to save game on shutdown", zap.String("game_id", g.ID), zap.Error(err))
			}
		}
		m.RemoveGame(g.ID)
	}
}
